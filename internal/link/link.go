// Package link talks to the vehicle autopilot: connect, arm, disarm and RC
// channel override.
package link

import (
	"context"
	"errors"

	"github.com/ofu951/UUV-Position-Stabilization/internal/axis"
)

var (
	ErrNotConnected = errors.New("link: not connected")
	ErrArmTimeout   = errors.New("link: vehicle did not report armed")
	ErrClosed       = errors.New("link: closed")
)

// Channels is one RC override command for channels 1..8. A zero value on a
// channel means "do not override this channel".
type Channels [8]uint16

// Ignore releases every channel back to the autopilot.
var Ignore = Channels{}

// Channel numbers (1-based) carrying the four axes.
const (
	ChannelThrottle = 3
	ChannelYaw      = 4
	ChannelForward  = 5
	ChannelLateral  = 6
)

// FromPWM assembles the 8-channel command: 1, 2, 7 and 8 are left alone;
// 3..6 carry throttle, yaw, forward and lateral.
func FromPWM(p axis.PWM) Channels {
	var c Channels
	c[ChannelThrottle-1] = uint16(p.Vertical)
	c[ChannelYaw-1] = uint16(p.Yaw)
	c[ChannelForward-1] = uint16(p.Forward)
	c[ChannelLateral-1] = uint16(p.Lateral)
	return c
}

// Attitude is the last vehicle attitude report, in radians.
type Attitude struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// Link is the actuator link consumed by the control loop.
type Link interface {
	Connect(ctx context.Context) error
	Arm(ctx context.Context) error
	Disarm(ctx context.Context) error
	SendChannels(c Channels) error
	Armed() bool
	Close() error
}
