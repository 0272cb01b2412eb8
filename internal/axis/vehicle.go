package axis

import (
	"time"

	"github.com/ofu951/UUV-Position-Stabilization/internal/marker"
	"github.com/ofu951/UUV-Position-Stabilization/internal/pid"
)

const (
	Forward  = "forward"
	Yaw      = "yaw"
	Lateral  = "lateral"
	Vertical = "vertical"
)

// DefaultTargetArea is the marker area (px^2) held by the forward axis.
const DefaultTargetArea = 20000

// Gains are the tunable PID parameters of one axis.
type Gains struct {
	Kp       float64 `yaml:"kp"`
	Ki       float64 `yaml:"ki"`
	Kd       float64 `yaml:"kd"`
	Deadband float64 `yaml:"deadband"`
	OutLimit float64 `yaml:"out_limit"`
}

func (g Gains) pidConfig(debug bool) pid.Config {
	return pid.Config{
		Kp:       g.Kp,
		Ki:       g.Ki,
		Kd:       g.Kd,
		OutMin:   -g.OutLimit,
		OutMax:   g.OutLimit,
		Deadband: g.Deadband,
		Debug:    debug,
	}
}

// Default gains per axis; the output limit of 200 keeps every PWM inside
// [1300, 1700].
var (
	DefaultForwardGains  = Gains{Kp: 0.02, Ki: 0.0005, Kd: 0.01, Deadband: 200, OutLimit: 200}
	DefaultYawGains      = Gains{Kp: 5.0, Ki: 0.025, Kd: 1.0, Deadband: 2, OutLimit: 200}
	DefaultLateralGains  = Gains{Kp: 2.0, Ki: 0.02, Kd: 0.4, Deadband: 15, OutLimit: 200}
	DefaultVerticalGains = Gains{Kp: 2.0, Ki: 0.02, Kd: 0.4, Deadband: 15, OutLimit: 200}
)

// Config describes the full four-axis set.
type Config struct {
	FrameWidth  int
	FrameHeight int
	TargetArea  float64

	Forward  Gains
	Yaw      Gains
	Lateral  Gains
	Vertical Gains

	Debug bool
}

// DefaultConfig returns the stock tuning for a 640x480 frame.
func DefaultConfig() Config {
	return Config{
		FrameWidth:  640,
		FrameHeight: 480,
		TargetArea:  DefaultTargetArea,
		Forward:     DefaultForwardGains,
		Yaw:         DefaultYawGains,
		Lateral:     DefaultLateralGains,
		Vertical:    DefaultVerticalGains,
	}
}

// ForwardSpec holds marker area at targetArea: a small marker (far away)
// drives forward.
func ForwardSpec(targetArea float64, g Gains, debug bool) Spec {
	return Spec{
		Name:   Forward,
		Error:  func(m *marker.Measurement) float64 { return targetArea - m.Area },
		Sign:   Direct,
		PID:    g.pidConfig(debug),
		Labels: Labels{Above: "FORWARD", Below: "BACKWARD", Neutral: "NEUTRAL"},
	}
}

// YawSpec balances the left and right marker edges.
func YawSpec(g Gains, debug bool) Spec {
	return Spec{
		Name: Yaw,
		Error: func(m *marker.Measurement) float64 {
			return m.Edge(marker.Left) - m.Edge(marker.Right)
		},
		Sign:   Direct,
		PID:    g.pidConfig(debug),
		Labels: Labels{Above: "RIGHT", Below: "LEFT", Neutral: "STRAIGHT"},
	}
}

// LateralSpec centers the marker horizontally. The output is subtracted:
// a marker right of center yields pwm below neutral.
func LateralSpec(frameWidth int, g Gains, debug bool) Spec {
	target := float64(frameWidth / 2)
	return Spec{
		Name:   Lateral,
		Error:  func(m *marker.Measurement) float64 { return m.Center.X - target },
		Sign:   Inverted,
		PID:    g.pidConfig(debug),
		Labels: Labels{Above: "RIGHT", Below: "LEFT", Neutral: "CENTER"},
	}
}

// VerticalSpec centers the marker vertically through the throttle channel.
func VerticalSpec(frameHeight int, g Gains, debug bool) Spec {
	target := float64(frameHeight / 2)
	return Spec{
		Name:   Vertical,
		Error:  func(m *marker.Measurement) float64 { return m.Center.Y - target },
		Sign:   Direct,
		PID:    g.pidConfig(debug),
		Labels: Labels{Above: "UP", Below: "DOWN", Neutral: "CENTER"},
	}
}

// Set is the four vehicle axes. Axes are computed independently; there is
// no cross-axis coupling.
type Set struct {
	Forward  *Axis
	Yaw      *Axis
	Lateral  *Axis
	Vertical *Axis
}

// PWM is one cycle's four axis commands.
type PWM struct {
	Forward  int `json:"forward"`
	Yaw      int `json:"yaw"`
	Lateral  int `json:"lateral"`
	Vertical int `json:"vertical"`
}

// NeutralCommand has every axis at NeutralPWM.
var NeutralCommand = PWM{Forward: NeutralPWM, Yaw: NeutralPWM, Lateral: NeutralPWM, Vertical: NeutralPWM}

func NewSet(cfg Config, now func() time.Time) *Set {
	if now == nil {
		now = time.Now
	}
	return &Set{
		Forward:  New(ForwardSpec(cfg.TargetArea, cfg.Forward, cfg.Debug), now),
		Yaw:      New(YawSpec(cfg.Yaw, cfg.Debug), now),
		Lateral:  New(LateralSpec(cfg.FrameWidth, cfg.Lateral, cfg.Debug), now),
		Vertical: New(VerticalSpec(cfg.FrameHeight, cfg.Vertical, cfg.Debug), now),
	}
}

// Compute runs every axis on m.
func (s *Set) Compute(m *marker.Measurement) PWM {
	return PWM{
		Forward:  s.Forward.ComputePWM(m),
		Yaw:      s.Yaw.ComputePWM(m),
		Lateral:  s.Lateral.ComputePWM(m),
		Vertical: s.Vertical.ComputePWM(m),
	}
}

// Controllers returns the axes in a stable order.
func (s *Set) Controllers() []Controller {
	return []Controller{s.Forward, s.Yaw, s.Lateral, s.Vertical}
}

// Statuses returns the status of every axis keyed by axis name.
func (s *Set) Statuses() map[string]Status {
	out := make(map[string]Status, 4)
	for _, c := range s.Controllers() {
		out[c.Name()] = c.Status()
	}
	return out
}
