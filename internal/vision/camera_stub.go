//go:build !gocv

package vision

import (
	"context"

	"github.com/ofu951/UUV-Position-Stabilization/internal/marker"
)

// Camera is unavailable without the gocv build tag.
type Camera struct{}

func OpenCamera(CameraConfig) (*Camera, error) { return nil, ErrUnsupported }

func (*Camera) Read(context.Context) (Frame, error)        { return nil, ErrUnsupported }
func (*Camera) DetectMarkers(Frame) ([]marker.Quad, error) { return nil, ErrUnsupported }
func (*Camera) Close() error                               { return nil }

type Window struct{}

func OpenWindow(string) (*Window, error) { return nil, ErrUnsupported }

func (*Window) Show(Frame, Overlay) bool { return false }
func (*Window) Close() error             { return nil }
