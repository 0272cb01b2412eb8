// Package marker turns detected fiducial corners into the per-cycle
// measurement consumed by the axis controllers.
//
// Corners are expected in the detector's winding order, clockwise from
// top-left in image coordinates: top-left, top-right, bottom-right,
// bottom-left. Edge i runs from corner i to corner i+1 (wrapping), which
// yields TOP, RIGHT, BOTTOM, LEFT.
package marker

import "math"

type Point struct {
	X, Y float64
}

// Quad is the four corner points of one detected marker.
type Quad [4]Point

type Edge int

const (
	Top Edge = iota
	Right
	Bottom
	Left
)

func (e Edge) String() string {
	switch e {
	case Top:
		return "TOP"
	case Right:
		return "RIGHT"
	case Bottom:
		return "BOTTOM"
	case Left:
		return "LEFT"
	default:
		return "UNKNOWN"
	}
}

// Measurement is shared read-only by every axis controller for one cycle.
// A nil *Measurement means no marker was detected.
type Measurement struct {
	// Area is the planar area of the quadrilateral in px^2.
	Area float64 `json:"area"`
	// SignedArea keeps the shoelace sign (positive for clockwise corners in
	// image coordinates).
	SignedArea float64    `json:"signed_area"`
	EdgeLength [4]float64 `json:"edge_length"`
	Center     Point      `json:"center"`
}

func (m *Measurement) Edge(e Edge) float64 {
	return m.EdgeLength[e]
}

// FromQuad computes area (shoelace), edge lengths and center of q.
func FromQuad(q Quad) Measurement {
	var m Measurement
	var twice float64
	var cx, cy float64
	for i := 0; i < 4; i++ {
		p1 := q[i]
		p2 := q[(i+1)%4]
		twice += p1.X*p2.Y - p2.X*p1.Y
		m.EdgeLength[i] = math.Hypot(p2.X-p1.X, p2.Y-p1.Y)
		cx += p1.X
		cy += p1.Y
	}
	m.SignedArea = twice / 2
	m.Area = math.Abs(m.SignedArea)
	m.Center = Point{X: cx / 4, Y: cy / 4}
	return m
}

// FromDetections returns the measurement of the first detected marker, or
// nil when the list is empty. Only the first element drives control; later
// markers are ignored regardless of size or distance.
func FromDetections(quads []Quad) *Measurement {
	if len(quads) == 0 {
		return nil
	}
	m := FromQuad(quads[0])
	return &m
}

// All computes a measurement for every detected marker, in detection order.
func All(quads []Quad) []Measurement {
	if len(quads) == 0 {
		return nil
	}
	out := make([]Measurement, 0, len(quads))
	for _, q := range quads {
		out = append(out, FromQuad(q))
	}
	return out
}
