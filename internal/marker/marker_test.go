package marker

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func square(x, y, side float64) Quad {
	return Quad{
		{X: x, Y: y},
		{X: x + side, Y: y},
		{X: x + side, Y: y + side},
		{X: x, Y: y + side},
	}
}

func TestFromQuad_Square(t *testing.T) {
	m := FromQuad(square(100, 50, 10))

	want := Measurement{
		Area:       100,
		SignedArea: 100,
		EdgeLength: [4]float64{10, 10, 10, 10},
		Center:     Point{X: 105, Y: 55},
	}
	if diff := cmp.Diff(want, m, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Fatalf("measurement mismatch (-want +got):\n%s", diff)
	}
}

func TestFromQuad_CounterClockwiseAreaIsPositive(t *testing.T) {
	q := square(0, 0, 20)
	q[1], q[3] = q[3], q[1]

	m := FromQuad(q)
	if m.Area != 400 {
		t.Fatalf("area=%v want 400", m.Area)
	}
	if m.SignedArea != -400 {
		t.Fatalf("signed area=%v want -400", m.SignedArea)
	}
}

func TestFromQuad_EdgeOrder(t *testing.T) {
	// Trapezoid: left edge longer than right edge (marker yawed).
	q := Quad{
		{X: 0, Y: 0},
		{X: 30, Y: 5},
		{X: 30, Y: 25},
		{X: 0, Y: 30},
	}
	m := FromQuad(q)

	if got, want := m.Edge(Top), math.Hypot(30, 5); math.Abs(got-want) > 1e-9 {
		t.Fatalf("top=%v want %v", got, want)
	}
	if got := m.Edge(Right); got != 20 {
		t.Fatalf("right=%v want 20", got)
	}
	if got := m.Edge(Left); got != 30 {
		t.Fatalf("left=%v want 30", got)
	}
	if m.Edge(Left) <= m.Edge(Right) {
		t.Fatalf("expected left edge longer than right edge")
	}
	if m.Center.X != 15 || m.Center.Y != 15 {
		t.Fatalf("center=%+v", m.Center)
	}
}

func TestFromDetections_Empty(t *testing.T) {
	if m := FromDetections(nil); m != nil {
		t.Fatalf("expected nil measurement, got %+v", m)
	}
	if m := FromDetections([]Quad{}); m != nil {
		t.Fatalf("expected nil measurement, got %+v", m)
	}
}

func TestFromDetections_UsesFirstMarkerOnly(t *testing.T) {
	small := square(0, 0, 10)
	large := square(200, 200, 100)

	m := FromDetections([]Quad{small, large})
	if m == nil {
		t.Fatalf("expected measurement")
	}
	if m.Area != 100 {
		t.Fatalf("area=%v want 100 (first marker), larger marker must not win", m.Area)
	}
}

func TestAll(t *testing.T) {
	ms := All([]Quad{square(0, 0, 1), square(0, 0, 2)})
	if len(ms) != 2 || ms[0].Area != 1 || ms[1].Area != 4 {
		t.Fatalf("unexpected measurements: %+v", ms)
	}
}

func TestEdgeString(t *testing.T) {
	cases := map[Edge]string{Top: "TOP", Right: "RIGHT", Bottom: "BOTTOM", Left: "LEFT", Edge(9): "UNKNOWN"}
	for e, want := range cases {
		if got := e.String(); got != want {
			t.Fatalf("Edge(%d).String()=%q want %q", int(e), got, want)
		}
	}
}
