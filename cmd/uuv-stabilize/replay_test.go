package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ofu951/UUV-Position-Stabilization/internal/replay"
)

type recordingSleeper struct {
	waits []time.Duration
}

func (s *recordingSleeper) Sleep(d time.Duration) { s.waits = append(s.waits, d) }

func TestSummarizeCycleLog(t *testing.T) {
	recs := []replay.Record{
		{Start: true},
		{At: 0, Measurement: measurementAt(320, 240, 100)},
		{At: 200 * time.Millisecond},
		{Start: true},
		{At: 0, Measurement: measurementAt(320, 240, 200)},
		{At: 1 * time.Second, Measurement: measurementAt(320, 240, 150)},
	}

	s := summarizeCycleLog(recs)
	if s.Segments != 2 {
		t.Fatalf("segments=%d want %d", s.Segments, 2)
	}
	if s.Cycles != 4 {
		t.Fatalf("cycles=%d want %d", s.Cycles, 4)
	}
	if s.Detected != 3 {
		t.Fatalf("detected=%d want %d", s.Detected, 3)
	}
	if s.MaxDuration != 1*time.Second {
		t.Fatalf("maxDuration=%s want %s", s.MaxDuration, 1*time.Second)
	}
	if s.MinArea != 10000 || s.MaxArea != 40000 {
		t.Fatalf("area range=%v..%v want 10000..40000", s.MinArea, s.MaxArea)
	}
}

func TestSummarizeCycleLog_NoStartLine(t *testing.T) {
	s := summarizeCycleLog([]replay.Record{{At: 0}})
	if s.Segments != 1 || s.Cycles != 1 || s.Detected != 0 {
		t.Fatalf("summary=%+v", s)
	}
}

func TestPrintLogSummary_PrintsExpectedFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cycles.log")
	writeCycleLog(t, path)

	var out bytes.Buffer
	if err := printLogSummary(&out, path); err != nil {
		t.Fatalf("printLogSummary() error: %v", err)
	}
	for _, want := range []string{
		"path: " + path,
		"segments: 1",
		"cycles: 3",
		"detected: 2",
		"max_duration: 200ms",
		"area_px2: 10000..19600",
	} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("output missing %q:\n%s", want, out.String())
		}
	}

	if err := printLogSummary(&out, "  "); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestReplayCommand_ComparesAndPlots(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cycles.log")
	writeCycleLog(t, path)

	out, err := executeRoot(t, "replay", path, "--tolerance", "1000")
	if err != nil {
		t.Fatalf("replay error: %v", err)
	}
	for _, want := range []string{
		"cycles: 3 (detected 2)",
		"mismatches: 0 (tolerance 1000",
		"forward PWM",
		"vertical PWM",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestReplayCommand_NoPlot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cycles.log")
	writeCycleLog(t, path)

	out, err := executeRoot(t, "replay", path, "--no-plot")
	if err != nil {
		t.Fatalf("replay error: %v", err)
	}
	if strings.Contains(out, "PWM (recorded") {
		t.Fatalf("plot printed with --no-plot:\n%s", out)
	}
	if !strings.Contains(out, "mismatches:") {
		t.Fatalf("output=%s", out)
	}
}

func TestReplayCommand_PlayUsesRecordedTiming(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cycles.log")
	writeCycleLog(t, path)

	sl := &recordingSleeper{}
	prev := replaySleeper
	replaySleeper = sl
	t.Cleanup(func() { replaySleeper = prev })

	out, err := executeRoot(t, "replay", path, "--play", "--speed", "2", "--no-plot")
	if err != nil {
		t.Fatalf("replay error: %v", err)
	}
	if len(sl.waits) != 2 || sl.waits[0] != 50*time.Millisecond || sl.waits[1] != 50*time.Millisecond {
		t.Fatalf("waits=%v want [50ms 50ms]", sl.waits)
	}
	if !strings.Contains(out, "area=10000") || !strings.Contains(out, "no marker") {
		t.Fatalf("play output=%s", out)
	}
}

func TestReplayCommand_Summary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cycles.log")
	writeCycleLog(t, path)

	out, err := executeRoot(t, "replay", path, "--summary")
	if err != nil {
		t.Fatalf("replay error: %v", err)
	}
	if !strings.Contains(out, "segments: 1") {
		t.Fatalf("output=%s", out)
	}
}

func TestReplayCommand_RequiresPath(t *testing.T) {
	if _, err := executeRoot(t, "replay"); err == nil {
		t.Fatalf("expected error without a log path")
	}
}
