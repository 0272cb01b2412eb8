package vision

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/ofu951/UUV-Position-Stabilization/internal/marker"
)

func TestScenario_ParseAndInterpolate(t *testing.T) {
	yaml := []byte(`
version: 1
# duration derived from last keyframe
markers:
  - keyframes:
      - t: 0s
        center_x: 300
        center_y: 200
        size: 100
        skew: 0
      - t: 10s
        center_x: 400
        center_y: 300
        size: 200
        skew: 20
`)

	script, err := ParseScenarioScriptYAML(yaml)
	if err != nil {
		t.Fatalf("ParseScenarioScriptYAML: %v", err)
	}
	scn, err := NewScenario(script)
	if err != nil {
		t.Fatalf("NewScenario: %v", err)
	}
	if scn.Duration() != 10*time.Second {
		t.Fatalf("duration: got %s want %s", scn.Duration(), 10*time.Second)
	}

	quads := scn.QuadsAt(5 * time.Second)
	if len(quads) != 1 {
		t.Fatalf("quads=%d want 1", len(quads))
	}
	m := marker.FromQuad(quads[0])
	if m.Center.X != 350 || m.Center.Y != 250 {
		t.Fatalf("center=%+v want (350,250)", m.Center)
	}
	// size 150, skew 10: left 155, right 145, width 150.
	if got := m.Edge(marker.Left); math.Abs(got-155) > 1e-9 {
		t.Fatalf("left=%v want 155", got)
	}
	if got := m.Edge(marker.Right); math.Abs(got-145) > 1e-9 {
		t.Fatalf("right=%v want 145", got)
	}
	if got := m.Area; math.Abs(got-150*150) > 1e-6 {
		t.Fatalf("area=%v want %v", got, 150*150)
	}
}

func TestScenario_VisibilitySwitchesAtKeyframes(t *testing.T) {
	hidden := false
	scn, err := NewScenario(ScenarioScript{
		Duration: 10 * time.Second,
		Markers: []ScenarioMarker{{Keyframes: []MarkerKeyframe{
			{T: 0, CenterX: 320, CenterY: 240, Size: 100},
			{T: 4 * time.Second, Visible: &hidden},
			{T: 6 * time.Second, CenterX: 320, CenterY: 240, Size: 100},
		}}},
	})
	if err != nil {
		t.Fatalf("NewScenario: %v", err)
	}

	if got := scn.QuadsAt(2 * time.Second); len(got) != 1 {
		t.Fatalf("t=2s quads=%d want 1", len(got))
	}
	// Approaching a hidden keyframe holds the last visible pose.
	q := scn.QuadsAt(3 * time.Second)
	if len(q) != 1 || marker.FromQuad(q[0]).Center.X != 320 {
		t.Fatalf("t=3s quads=%v", q)
	}
	if got := scn.QuadsAt(5 * time.Second); len(got) != 0 {
		t.Fatalf("t=5s quads=%d want 0", len(got))
	}
	if got := scn.QuadsAt(7 * time.Second); len(got) != 1 {
		t.Fatalf("t=7s quads=%d want 1", len(got))
	}
}

func TestScenario_MultipleMarkersKeepScriptOrder(t *testing.T) {
	scn, err := NewScenario(ScenarioScript{
		Duration: time.Second,
		Markers: []ScenarioMarker{
			{Keyframes: []MarkerKeyframe{{CenterX: 100, CenterY: 100, Size: 20}}},
			{Keyframes: []MarkerKeyframe{{CenterX: 320, CenterY: 240, Size: 200}}},
		},
	})
	if err != nil {
		t.Fatalf("NewScenario: %v", err)
	}
	m := marker.FromDetections(scn.QuadsAt(0))
	if m == nil || m.Center.X != 100 {
		t.Fatalf("first marker=%+v want center x 100", m)
	}
}

func TestNewScenario_Validation(t *testing.T) {
	cases := []struct {
		name   string
		script ScenarioScript
	}{
		{"no markers", ScenarioScript{Duration: time.Second}},
		{"bad version", ScenarioScript{Version: 2, Markers: []ScenarioMarker{{Keyframes: []MarkerKeyframe{{Size: 1}}}}}},
		{"empty keyframes", ScenarioScript{Duration: time.Second, Markers: []ScenarioMarker{{}}}},
		{"unsorted", ScenarioScript{Markers: []ScenarioMarker{{Keyframes: []MarkerKeyframe{
			{T: 2 * time.Second, Size: 1}, {T: time.Second, Size: 1},
		}}}}},
		{"zero size", ScenarioScript{Duration: time.Second, Markers: []ScenarioMarker{{Keyframes: []MarkerKeyframe{{Size: 0}}}}}},
		{"no duration", ScenarioScript{Markers: []ScenarioMarker{{Keyframes: []MarkerKeyframe{{Size: 1}}}}}},
		{"nan center", ScenarioScript{Duration: time.Second, Markers: []ScenarioMarker{{Keyframes: []MarkerKeyframe{{CenterX: math.NaN(), Size: 1}}}}}},
		{"inf size", ScenarioScript{Duration: time.Second, Markers: []ScenarioMarker{{Keyframes: []MarkerKeyframe{{Size: math.Inf(1)}}}}}},
		{"bad dropout", ScenarioScript{
			Duration: time.Second,
			Markers:  []ScenarioMarker{{Keyframes: []MarkerKeyframe{{Size: 1}}}},
			Dropouts: []Dropout{{From: time.Second, To: time.Second}},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewScenario(tc.script); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

type stepClock struct {
	t time.Time
}

func (c *stepClock) now() time.Time { return c.t }

func TestParseScenarioScriptYAML_NonFiniteRejected(t *testing.T) {
	script, err := ParseScenarioScriptYAML([]byte(`
duration: 1s
markers:
  - keyframes:
      - t: 0s
        center_x: .nan
        center_y: 240
        size: 100
`))
	if err != nil {
		t.Fatalf("ParseScenarioScriptYAML() error: %v", err)
	}
	if _, err := NewScenario(script); err == nil {
		t.Fatalf("expected error for .nan center_x")
	}
}

func TestScenarioSource_ReadDropoutsAndEnd(t *testing.T) {
	scn, err := NewScenario(ScenarioScript{
		Duration: 10 * time.Second,
		Markers:  []ScenarioMarker{{Keyframes: []MarkerKeyframe{{CenterX: 320, CenterY: 240, Size: 100}}}},
		Dropouts: []Dropout{{From: 2 * time.Second, To: 3 * time.Second}},
	})
	if err != nil {
		t.Fatalf("NewScenario: %v", err)
	}
	clk := &stepClock{t: time.Unix(1000, 0)}
	src := NewScenarioSourceWithClock(scn, false, clk.now)
	ctx := context.Background()

	f, err := src.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	quads, err := src.DetectMarkers(f)
	if err != nil || len(quads) != 1 {
		t.Fatalf("DetectMarkers=%v,%v", quads, err)
	}

	clk.t = clk.t.Add(2500 * time.Millisecond)
	if _, err := src.Read(ctx); !errors.Is(err, ErrNoFrame) {
		t.Fatalf("dropout err=%v want ErrNoFrame", err)
	}

	clk.t = clk.t.Add(10 * time.Second)
	if _, err := src.Read(ctx); !errors.Is(err, ErrEnded) {
		t.Fatalf("end err=%v want ErrEnded", err)
	}
}

func TestScenarioSource_LoopWraps(t *testing.T) {
	scn, err := NewScenario(ScenarioScript{
		Duration: 10 * time.Second,
		Markers:  []ScenarioMarker{{Keyframes: []MarkerKeyframe{{CenterX: 320, CenterY: 240, Size: 100}}}},
	})
	if err != nil {
		t.Fatalf("NewScenario: %v", err)
	}
	clk := &stepClock{t: time.Unix(1000, 0)}
	src := NewScenarioSourceWithClock(scn, true, clk.now)
	clk.t = clk.t.Add(25 * time.Second)
	f, err := src.Read(context.Background())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got := f.(scenarioFrame).at; got != 5*time.Second {
		t.Fatalf("at=%s want 5s", got)
	}
}

func TestScenarioSource_ReadHonorsContext(t *testing.T) {
	scn, err := NewScenario(ScenarioScript{
		Duration:      time.Second,
		FrameInterval: time.Hour,
		Markers:       []ScenarioMarker{{Keyframes: []MarkerKeyframe{{Size: 1}}}},
	})
	if err != nil {
		t.Fatalf("NewScenario: %v", err)
	}
	src := NewScenarioSource(scn, true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := src.Read(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want context.Canceled", err)
	}
}

func TestScenario_ShippedScripts(t *testing.T) {
	for _, name := range []string{"approach.yaml", "lost_marker.yaml"} {
		t.Run(name, func(t *testing.T) {
			src, err := OpenScenario(filepath.Join("..", "..", "configs", "scenarios", name), false)
			if err != nil {
				t.Fatalf("OpenScenario(%s) error: %v", name, err)
			}
			if got := src.sc.QuadsAt(0); len(got) != 1 {
				t.Fatalf("markers at t=0: %d want 1", len(got))
			}
		})
	}
}
