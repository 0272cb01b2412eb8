package replay

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ofu951/UUV-Position-Stabilization/internal/axis"
	"github.com/ofu951/UUV-Position-Stabilization/internal/control"
	"github.com/ofu951/UUV-Position-Stabilization/internal/link"
	"github.com/ofu951/UUV-Position-Stabilization/internal/marker"
)

func neutral() axis.PWM { return axis.NeutralCommand }

func TestRecompute_MatchesRecordedRun(t *testing.T) {
	// Drive a live axis set with a stepped clock and record what it sent,
	// then recompute from the log with the same timing.
	cfg := axis.DefaultConfig()
	start := time.Unix(0, 0)
	now := start
	set := axis.NewSet(cfg, func() time.Time { return now })

	centers := []float64{420, 410, 395, 380, 360, 345, 330}
	recs := []Record{{Start: true}}
	for i, cx := range centers {
		now = start.Add(time.Duration(i+1) * 33 * time.Millisecond)
		m := marker.FromQuad(marker.Quad{{X: cx - 60, Y: 180}, {X: cx + 60, Y: 180}, {X: cx + 60, Y: 300}, {X: cx - 60, Y: 300}})
		if i == 3 {
			p := set.Compute(nil)
			ch := link.FromPWM(p)
			recs = append(recs, Record{At: now.Sub(start), Channels: channels36(ch)})
			continue
		}
		p := set.Compute(&m)
		recs = append(recs, Record{At: now.Sub(start), Measurement: &m, Channels: channels36(link.FromPWM(p))})
	}

	res := Recompute(recs, cfg, 0)
	if res.Recomputed.Len() != len(centers) {
		t.Fatalf("recomputed=%d want %d", res.Recomputed.Len(), len(centers))
	}
	if res.Detected != len(centers)-1 {
		t.Fatalf("detected=%d want %d", res.Detected, len(centers)-1)
	}
	if res.Mismatches != 0 {
		t.Fatalf("mismatches=%d maxDelta=%d\nrecorded=%v\nrecomputed=%v", res.Mismatches, res.MaxDelta, res.Recorded, res.Recomputed)
	}
}

func TestRecompute_StartupGapBeforeFirstCycle(t *testing.T) {
	// The live controllers exist for the whole connect/arm wait before the
	// first cycle. The log written by the orchestrator observer must carry
	// that gap so the first recomputed step uses the same dt.
	cfg := axis.DefaultConfig()
	created := time.Unix(1700000000, 0)
	now := created
	set := axis.NewSet(cfg, func() time.Time { return now })

	path := filepath.Join(t.TempDir(), "cycles.log")
	w, err := CreateWriter(path)
	if err != nil {
		t.Fatalf("CreateWriter() error: %v", err)
	}
	first := created.Add(2 * time.Second)
	for i := 0; i < 10; i++ {
		now = first.Add(time.Duration(i) * 33 * time.Millisecond)
		cx := 420 - float64(i)*8
		m := marker.FromQuad(marker.Quad{{X: cx - 50, Y: 190}, {X: cx + 50, Y: 190}, {X: cx + 50, Y: 290}, {X: cx - 50, Y: 290}})
		p := set.Compute(&m)
		w.ObserveCycle(control.Cycle{
			Seq:          uint64(i + 1),
			At:           now,
			ControlStart: created,
			Measurement:  &m,
			PWM:          p,
			Channels:     link.FromPWM(p),
		})
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	recs, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	if recs[1].At != 2*time.Second {
		t.Fatalf("first cycle at %s want %s", recs[1].At, 2*time.Second)
	}
	res := Recompute(recs, cfg, 0)
	if res.Detected != 10 {
		t.Fatalf("detected=%d want 10", res.Detected)
	}
	if res.Mismatches != 0 {
		t.Fatalf("mismatches=%d maxDelta=%d\nrecorded=%v\nrecomputed=%v", res.Mismatches, res.MaxDelta, res.Recorded.Forward, res.Recomputed.Forward)
	}
}

func TestRecompute_ReportsMismatch(t *testing.T) {
	m := marker.Measurement{Area: 20000, Center: marker.Point{X: 320, Y: 240}, EdgeLength: [4]float64{141, 141, 141, 141}}
	recs := []Record{
		{At: 0, Measurement: &m, Channels: [4]int{1500, 1500, 1500, 1700}},
	}
	res := Recompute(recs, axis.DefaultConfig(), 10)
	if res.Mismatches != 1 || res.MaxDelta != 200 {
		t.Fatalf("mismatches=%d maxDelta=%d want 1/200", res.Mismatches, res.MaxDelta)
	}
	if res.Recorded.Lateral[0] != 1700 || res.Recomputed.Lateral[0] != 1500 {
		t.Fatalf("lateral recorded=%v recomputed=%v", res.Recorded.Lateral, res.Recomputed.Lateral)
	}
}

func channels36(ch link.Channels) [4]int {
	return [4]int{int(ch[2]), int(ch[3]), int(ch[4]), int(ch[5])}
}

var _ control.Observer = (*Writer)(nil)
