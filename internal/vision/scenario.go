package vision

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ofu951/UUV-Position-Stabilization/internal/marker"
)

// ScenarioScript is a deterministic, script-driven marker trajectory used in
// place of a camera.
//
// YAML schema (v1):
//
//	version: 1
//	duration: 20s
//	frame_interval: 33ms
//	markers:
//	  - keyframes:
//	      - t: 0s
//	        center_x: 420
//	        center_y: 240
//	        size: 120
//	        skew: 0
//	      - t: 5s
//	        visible: false
//	dropouts:
//	  - from: 8s
//	    to: 9s
//
// Marker poses are linearly interpolated between keyframes; visibility
// switches at keyframe boundaries. Skew is left edge minus right edge in
// pixels. During a dropout window Read fails with ErrNoFrame.
type ScenarioScript struct {
	Version       int              `yaml:"version"`
	Duration      time.Duration    `yaml:"duration"`
	FrameInterval time.Duration    `yaml:"frame_interval"`
	Markers       []ScenarioMarker `yaml:"markers"`
	Dropouts      []Dropout        `yaml:"dropouts"`
}

type ScenarioMarker struct {
	Keyframes []MarkerKeyframe `yaml:"keyframes"`
}

type MarkerKeyframe struct {
	T       time.Duration `yaml:"t"`
	CenterX float64       `yaml:"center_x"`
	CenterY float64       `yaml:"center_y"`
	Size    float64       `yaml:"size"`
	Skew    float64       `yaml:"skew"`
	Visible *bool         `yaml:"visible"`
}

func (k MarkerKeyframe) visible() bool {
	return k.Visible == nil || *k.Visible
}

type Dropout struct {
	From time.Duration `yaml:"from"`
	To   time.Duration `yaml:"to"`
}

// Scenario is the validated runtime representation.
type Scenario struct {
	script   ScenarioScript
	duration time.Duration
}

func LoadScenarioScript(path string) (ScenarioScript, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return ScenarioScript{}, err
	}
	return ParseScenarioScriptYAML(b)
}

func ParseScenarioScriptYAML(b []byte) (ScenarioScript, error) {
	var s ScenarioScript
	if err := yaml.Unmarshal(b, &s); err != nil {
		return ScenarioScript{}, err
	}
	return s, nil
}

func NewScenario(script ScenarioScript) (*Scenario, error) {
	if script.Version == 0 {
		script.Version = 1
	}
	if script.Version != 1 {
		return nil, fmt.Errorf("unsupported scenario version %d", script.Version)
	}
	if len(script.Markers) == 0 {
		return nil, fmt.Errorf("markers is required")
	}
	for i, m := range script.Markers {
		if len(m.Keyframes) == 0 {
			return nil, fmt.Errorf("markers[%d].keyframes is required", i)
		}
		for j, kf := range m.Keyframes {
			if kf.T < 0 {
				return nil, fmt.Errorf("markers[%d].keyframes[%d].t must be >= 0", i, j)
			}
			if j > 0 && kf.T < m.Keyframes[j-1].T {
				return nil, fmt.Errorf("markers[%d].keyframes must be sorted by t (index %d)", i, j)
			}
			for _, v := range []float64{kf.CenterX, kf.CenterY, kf.Size, kf.Skew} {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					return nil, fmt.Errorf("markers[%d].keyframes[%d] has a non-finite value", i, j)
				}
			}
			if kf.visible() && kf.Size <= 0 {
				return nil, fmt.Errorf("markers[%d].keyframes[%d].size must be > 0", i, j)
			}
		}
	}
	for i, d := range script.Dropouts {
		if d.To <= d.From {
			return nil, fmt.Errorf("dropouts[%d].to must be after from", i)
		}
	}

	dur := script.Duration
	if dur <= 0 {
		for _, m := range script.Markers {
			if last := m.Keyframes[len(m.Keyframes)-1].T; last > dur {
				dur = last
			}
		}
	}
	if dur <= 0 {
		return nil, fmt.Errorf("duration is required (or deriveable from keyframes)")
	}
	return &Scenario{script: script, duration: dur}, nil
}

func (s *Scenario) Duration() time.Duration {
	if s == nil {
		return 0
	}
	return s.duration
}

// QuadsAt returns the visible markers at elapsed, in script order.
func (s *Scenario) QuadsAt(elapsed time.Duration) []marker.Quad {
	var out []marker.Quad
	for _, m := range s.script.Markers {
		k0, k1, alpha := selectSegment(m.Keyframes, elapsed)
		if !k0.visible() {
			continue
		}
		if !k1.visible() {
			k1 = k0
		}
		out = append(out, poseQuad(
			lerp(k0.CenterX, k1.CenterX, alpha),
			lerp(k0.CenterY, k1.CenterY, alpha),
			lerp(k0.Size, k1.Size, alpha),
			lerp(k0.Skew, k1.Skew, alpha),
		))
	}
	return out
}

// DroppedAt reports whether elapsed falls inside a dropout window.
func (s *Scenario) DroppedAt(elapsed time.Duration) bool {
	for _, d := range s.script.Dropouts {
		if elapsed >= d.From && elapsed < d.To {
			return true
		}
	}
	return false
}

// poseQuad builds corners clockwise from top-left for a marker centered at
// (cx, cy) whose left edge is skew pixels longer than its right edge.
func poseQuad(cx, cy, size, skew float64) marker.Quad {
	half := size / 2
	lh := (size + skew/2) / 2
	rh := (size - skew/2) / 2
	return marker.Quad{
		{X: cx - half, Y: cy - lh},
		{X: cx + half, Y: cy - rh},
		{X: cx + half, Y: cy + rh},
		{X: cx - half, Y: cy + lh},
	}
}

func selectSegment(kfs []MarkerKeyframe, t time.Duration) (MarkerKeyframe, MarkerKeyframe, float64) {
	if len(kfs) == 1 {
		return kfs[0], kfs[0], 0
	}
	idx := sort.Search(len(kfs), func(i int) bool { return kfs[i].T > t })
	if idx <= 0 {
		return kfs[0], kfs[0], 0
	}
	if idx >= len(kfs) {
		last := kfs[len(kfs)-1]
		return last, last, 0
	}
	k0 := kfs[idx-1]
	k1 := kfs[idx]
	dt := k1.T - k0.T
	if dt <= 0 {
		return k1, k1, 0
	}
	alpha := float64(t-k0.T) / float64(dt)
	if alpha < 0 {
		alpha = 0
	}
	if alpha > 1 {
		alpha = 1
	}
	return k0, k1, alpha
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

type scenarioFrame struct {
	at time.Duration
}

func (scenarioFrame) Close() error { return nil }

// ScenarioSource plays a Scenario as a frame source, paced at the script's
// frame interval.
type ScenarioSource struct {
	sc       *Scenario
	interval time.Duration
	loop     bool

	now   func() time.Time
	start time.Time
}

func NewScenarioSource(sc *Scenario, loop bool) *ScenarioSource {
	return NewScenarioSourceWithClock(sc, loop, time.Now)
}

func NewScenarioSourceWithClock(sc *Scenario, loop bool, now func() time.Time) *ScenarioSource {
	if now == nil {
		now = time.Now
	}
	return &ScenarioSource{
		sc:       sc,
		interval: sc.script.FrameInterval,
		loop:     loop,
		now:      now,
		start:    now(),
	}
}

// OpenScenario loads and validates the script at path.
func OpenScenario(path string, loop bool) (*ScenarioSource, error) {
	script, err := LoadScenarioScript(path)
	if err != nil {
		return nil, fmt.Errorf("vision: scenario %s: %w", path, err)
	}
	sc, err := NewScenario(script)
	if err != nil {
		return nil, fmt.Errorf("vision: scenario %s: %w", path, err)
	}
	return NewScenarioSource(sc, loop), nil
}

func (s *ScenarioSource) Read(ctx context.Context) (Frame, error) {
	if s.interval > 0 {
		t := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	elapsed := s.now().Sub(s.start)
	if elapsed < 0 {
		elapsed = 0
	}
	if s.loop {
		elapsed %= s.sc.duration
	} else if elapsed > s.sc.duration {
		return nil, ErrEnded
	}
	if s.sc.DroppedAt(elapsed) {
		return nil, ErrNoFrame
	}
	return scenarioFrame{at: elapsed}, nil
}

func (s *ScenarioSource) DetectMarkers(f Frame) ([]marker.Quad, error) {
	sf, ok := f.(scenarioFrame)
	if !ok {
		return nil, fmt.Errorf("vision: frame %T did not come from a scenario source", f)
	}
	return s.sc.QuadsAt(sf.at), nil
}

func (s *ScenarioSource) Close() error { return nil }
