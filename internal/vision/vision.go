// Package vision provides frame sources and marker detection for the
// control loop, plus the optional on-screen display.
package vision

import (
	"context"
	"errors"

	"github.com/ofu951/UUV-Position-Stabilization/internal/axis"
	"github.com/ofu951/UUV-Position-Stabilization/internal/marker"
)

var (
	// ErrUnsupported is returned when a source was not compiled in.
	ErrUnsupported = errors.New("vision: unsupported in this build")
	// ErrNoFrame is a transient read failure; the caller skips the cycle.
	ErrNoFrame = errors.New("vision: frame could not be read")
	// ErrEnded is returned by finite sources once exhausted.
	ErrEnded = errors.New("vision: source ended")
)

// Frame is one acquired image. Close releases any native memory.
type Frame interface {
	Close() error
}

// Source acquires frames and detects markers in them. Read blocks until a
// frame is available or ctx is done.
type Source interface {
	Read(ctx context.Context) (Frame, error)
	// DetectMarkers returns the corners of every detected marker, possibly
	// none. Corner order is clockwise from top-left.
	DetectMarkers(f Frame) ([]marker.Quad, error)
	Close() error
}

// Overlay is what the display draws on top of a frame.
type Overlay struct {
	Quads    []marker.Quad
	Measure  *marker.Measurement
	Statuses map[string]axis.Status
	Armed    bool
	FPS      float64
}

// Display shows frames. Show reports whether the operator asked to quit.
type Display interface {
	Show(f Frame, o Overlay) (quit bool)
	Close() error
}

// Headless is a Display that shows nothing.
type Headless struct{}

func (Headless) Show(Frame, Overlay) bool { return false }
func (Headless) Close() error             { return nil }

// CameraConfig selects the capture device. Zero values mean 640x480 at
// 30 fps on index 0.
type CameraConfig struct {
	Index  int
	Width  int
	Height int
	FPS    int
}

func (c CameraConfig) withDefaults() CameraConfig {
	if c.Width <= 0 {
		c.Width = 640
	}
	if c.Height <= 0 {
		c.Height = 480
	}
	if c.FPS <= 0 {
		c.FPS = 30
	}
	return c
}
