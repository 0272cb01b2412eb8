package control

import (
	"time"

	"github.com/ofu951/UUV-Position-Stabilization/internal/axis"
	"github.com/ofu951/UUV-Position-Stabilization/internal/link"
	"github.com/ofu951/UUV-Position-Stabilization/internal/marker"
)

// State is the orchestrator lifecycle. Transitions only move forward.
type State int32

const (
	Idle State = iota
	Connecting
	Running
	ShuttingDown
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Running:
		return "running"
	case ShuttingDown:
		return "shutting_down"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Cycle is the outcome of one control cycle, handed to observers.
type Cycle struct {
	Seq uint64
	At  time.Time
	// ControlStart is when the axis controllers were created. Their first
	// step spans ControlStart..At of the first cycle.
	ControlStart time.Time

	// Markers is how many markers were detected; only the first drives
	// Measurement.
	Markers     int
	Measurement *marker.Measurement
	PWM         axis.PWM
	Channels    link.Channels
	Statuses    map[string]axis.Status
	Armed       bool
}

func (c Cycle) Detected() bool { return c.Measurement != nil }

// Observer receives every completed cycle on the loop goroutine.
// Implementations must not block.
type Observer interface {
	ObserveCycle(c Cycle)
}

type ObserverFunc func(c Cycle)

func (f ObserverFunc) ObserveCycle(c Cycle) { f(c) }

// Snapshot is the JSON status view served to operators.
type Snapshot struct {
	State    string `json:"state"`
	Armed    bool   `json:"armed"`
	Detected bool   `json:"detected"`

	Measurement *marker.Measurement    `json:"measurement,omitempty"`
	PWM         axis.PWM               `json:"pwm"`
	Axes        map[string]axis.Status `json:"axes"`

	Cycles            uint64  `json:"cycles"`
	NoDetectionCycles uint64  `json:"no_detection_cycles"`
	ReadFailures      uint64  `json:"read_failures"`
	FPS               float64 `json:"fps"`

	StopReason   string    `json:"stop_reason,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
	LastUpdateAt time.Time `json:"last_update_utc,omitempty"`
}
