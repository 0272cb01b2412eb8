// Package axis maps marker measurements to per-axis PWM commands.
//
// Every axis has the same shape: derive a signed error from the
// measurement, run it through a dedicated PID engine, add or subtract the
// output around neutral, and clamp. The axes differ only in data: error
// function, sign, gains and direction labels.
package axis

import (
	"log"
	"math"
	"time"

	"github.com/ofu951/UUV-Position-Stabilization/internal/marker"
	"github.com/ofu951/UUV-Position-Stabilization/internal/pid"
)

const (
	NeutralPWM = 1500
	MinPWM     = 1100
	MaxPWM     = 1900
)

// Controller computes one axis PWM per cycle. A nil measurement means no
// marker was detected.
type Controller interface {
	Name() string
	ComputePWM(m *marker.Measurement) int
	Status() Status
}

// Status is the read-only view of the last computed command.
type Status struct {
	PWM        int    `json:"pwm"`
	Direction  string `json:"direction"`
	InDeadband bool   `json:"in_deadband"`
}

// Sign is how the PID output is applied around neutral.
type Sign int

const (
	Direct   Sign = 1
	Inverted Sign = -1
)

// Labels name the direction of travel for pwm above, below and at neutral.
type Labels struct {
	Above, Below, Neutral string
}

// Spec configures one axis.
type Spec struct {
	Name string
	// Error derives the signed error from a detected marker.
	Error  func(m *marker.Measurement) float64
	Sign   Sign
	PID    pid.Config
	Labels Labels
}

// Axis is the single Controller implementation; the four vehicle axes are
// configured instances of it.
//
// Not safe for concurrent use.
type Axis struct {
	spec     Spec
	engine   *pid.Engine
	pwm      int
	detected bool
	debug    bool
	lastErr  float64
}

func New(spec Spec, now func() time.Time) *Axis {
	cfg := spec.PID
	if cfg.Name == "" {
		cfg.Name = spec.Name
	}
	return &Axis{
		spec:   spec,
		engine: pid.NewWithClock(cfg, now),
		pwm:    NeutralPWM,
		debug:  cfg.Debug,
	}
}

func (a *Axis) Name() string { return a.spec.Name }

// Engine exposes the PID engine for inspection.
func (a *Axis) Engine() *pid.Engine { return a.engine }

// LastError is the error fed to the PID engine on the last detected cycle.
func (a *Axis) LastError() float64 { return a.lastErr }

// ComputePWM returns neutral and leaves the PID state untouched when m is nil
// or yields a non-finite error.
func (a *Axis) ComputePWM(m *marker.Measurement) int {
	if m == nil {
		return a.hold()
	}
	e := a.spec.Error(m)
	if !finite(e) {
		log.Printf("%s: ignoring non-finite error %v", a.spec.Name, e)
		return a.hold()
	}
	a.detected = true
	a.lastErr = e
	out := a.engine.Compute(e)
	if !finite(out) {
		log.Printf("%s: non-finite pid output %v, resetting", a.spec.Name, out)
		a.engine.Reset()
		return a.hold()
	}
	a.pwm = ClampPWM(int(float64(NeutralPWM) + float64(a.spec.Sign)*out))

	if a.debug && !a.engine.InDeadband() {
		log.Printf("%s: error=%.1f pwm=%d direction=%s", a.spec.Name, a.lastErr, a.pwm, a.direction())
	}
	return a.pwm
}

// hold commands neutral. PID state stays frozen until the marker comes back.
func (a *Axis) hold() int {
	a.pwm = NeutralPWM
	a.detected = false
	return a.pwm
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func (a *Axis) Status() Status {
	return Status{
		PWM:        a.pwm,
		Direction:  a.direction(),
		InDeadband: a.detected && a.engine.InDeadband(),
	}
}

func (a *Axis) direction() string {
	switch {
	case a.pwm > NeutralPWM:
		return a.spec.Labels.Above
	case a.pwm < NeutralPWM:
		return a.spec.Labels.Below
	default:
		return a.spec.Labels.Neutral
	}
}

// ClampPWM limits v to [MinPWM, MaxPWM].
func ClampPWM(v int) int {
	if v < MinPWM {
		return MinPWM
	}
	if v > MaxPWM {
		return MaxPWM
	}
	return v
}
