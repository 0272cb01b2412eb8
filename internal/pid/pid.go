package pid

import (
	"log"
	"math"
	"time"
)

// MinDT is the discretization step used when the wall clock reports no
// elapsed time (or runs backwards) between two Compute calls.
const MinDT = 1e-4

// Config holds the fixed gains and limits of an Engine.
type Config struct {
	Kp, Ki, Kd float64
	OutMin     float64
	OutMax     float64
	// Deadband is the error magnitude at or below which the error is forced
	// to zero and the integral accumulator is reset.
	Deadband float64
	// Name prefixes deadband transition logs when Debug is set.
	Name  string
	Debug bool
}

// Engine is a wall-clock PID controller with deadband suppression and
// output-clamped anti-windup.
//
// Not safe for concurrent use.
type Engine struct {
	cfg Config
	now func() time.Time

	integral   float64
	prevError  float64
	prevAt     time.Time
	inDeadband bool
}

// State is a read-only copy of the mutable engine state.
type State struct {
	Integral   float64
	PrevError  float64
	PrevAt     time.Time
	InDeadband bool
}

// New returns an Engine whose previous timestamp is the construction time.
func New(cfg Config) *Engine {
	return NewWithClock(cfg, time.Now)
}

// NewWithClock is like New but reads time from now.
func NewWithClock(cfg Config, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{cfg: cfg, now: now, prevAt: now()}
}

func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) State() State {
	return State{
		Integral:   e.integral,
		PrevError:  e.prevError,
		PrevAt:     e.prevAt,
		InDeadband: e.inDeadband,
	}
}

// InDeadband reports whether the last Compute saw an error inside the deadband.
func (e *Engine) InDeadband() bool { return e.inDeadband }

// Compute advances the controller by the wall-clock time elapsed since the
// previous call and returns the clamped output.
func (e *Engine) Compute(err float64) float64 {
	at := e.now()
	dt := at.Sub(e.prevAt).Seconds()
	if dt <= 0 {
		dt = MinDT
	}

	was := e.inDeadband
	if math.Abs(err) <= e.cfg.Deadband {
		err = 0
		e.integral = 0
		e.inDeadband = true
	} else {
		e.inDeadband = false
	}
	if e.cfg.Debug && was != e.inDeadband {
		state := "INACTIVE"
		if e.inDeadband {
			state = "ACTIVE"
		}
		log.Printf("pid %s: deadband %s err=%.2f", e.cfg.Name, state, err)
	}

	e.integral += err * dt
	derivative := (err - e.prevError) / dt

	out := e.cfg.Kp*err + e.cfg.Ki*e.integral + e.cfg.Kd*derivative

	// Anti-windup: a saturated step does not keep its integral contribution.
	if out > e.cfg.OutMax {
		out = e.cfg.OutMax
		e.integral -= err * dt
	} else if out < e.cfg.OutMin {
		out = e.cfg.OutMin
		e.integral -= err * dt
	}

	e.prevError = err
	e.prevAt = at
	return out
}

// Reset clears accumulated state and restarts timing from now.
func (e *Engine) Reset() {
	e.integral = 0
	e.prevError = 0
	e.prevAt = e.now()
	e.inDeadband = false
}
