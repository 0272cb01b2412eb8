package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ofu951/UUV-Position-Stabilization/internal/config"
	"github.com/ofu951/UUV-Position-Stabilization/internal/link"
	"github.com/ofu951/UUV-Position-Stabilization/internal/marker"
	"github.com/ofu951/UUV-Position-Stabilization/internal/replay"
)

func executeRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile(%s) error: %v", name, err)
	}
	return p
}

func measurementAt(cx, cy, size float64) *marker.Measurement {
	h := size / 2
	m := marker.FromQuad(marker.Quad{
		{X: cx - h, Y: cy - h},
		{X: cx + h, Y: cy - h},
		{X: cx + h, Y: cy + h},
		{X: cx - h, Y: cy + h},
	})
	return &m
}

// writeCycleLog records a short session: two detected cycles and one miss.
func writeCycleLog(t *testing.T, path string) {
	t.Helper()
	w, err := replay.CreateWriter(path)
	if err != nil {
		t.Fatalf("CreateWriter() error: %v", err)
	}
	base := time.Unix(1700000000, 0)
	var neutral link.Channels
	for i := range neutral {
		neutral[i] = 1500
	}
	steps := []struct {
		at time.Duration
		m  *marker.Measurement
	}{
		{0, measurementAt(320, 240, 100)},
		{100 * time.Millisecond, measurementAt(330, 240, 140)},
		{200 * time.Millisecond, nil},
	}
	for _, s := range steps {
		if err := w.WriteCycle(base.Add(s.at), s.m, neutral); err != nil {
			_ = w.Close()
			t.Fatalf("WriteCycle() error: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
}

func TestCheckConfig_Defaults(t *testing.T) {
	out, err := executeRoot(t, "check-config")
	if err != nil {
		t.Fatalf("check-config error: %v", err)
	}
	for _, want := range []string{
		"config: (defaults) ok",
		"frame: 640x480 target_area=20000",
		"axis forward",
		"axis vertical",
		"link: udp:127.0.0.1:14551 system_id=255",
		"vision: camera 0 @30fps",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestCheckConfig_FileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "cfg.yaml", `
link:
  dry_run: true
vision:
  source: scenario
  scenario: ./hold.yaml
axes:
  yaw:
    kp: 0.9
`)
	out, err := executeRoot(t, "--config", path, "check-config")
	if err != nil {
		t.Fatalf("check-config error: %v", err)
	}
	for _, want := range []string{"link: dry run", "vision: scenario ./hold.yaml", "axis yaw      kp=0.9"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestCheckConfig_InvalidFails(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.yaml", "vision:\n  source: scenario\n")
	_, err := executeRoot(t, "--config", path, "check-config")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "vision.scenario is required") {
		t.Fatalf("err=%v", err)
	}
}

func TestRunOptionsApply(t *testing.T) {
	cfg := config.Default()
	opts := runOptions{dryRun: true, scenario: "s.yaml", loop: true, display: true, debug: true}
	if err := opts.apply(&cfg); err != nil {
		t.Fatalf("apply error: %v", err)
	}
	if !cfg.Link.DryRun || cfg.Vision.Source != "scenario" || cfg.Vision.Scenario != "s.yaml" {
		t.Fatalf("link/vision not overridden: %+v %+v", cfg.Link, cfg.Vision)
	}
	if !cfg.Vision.ScenarioLoop || !cfg.Vision.Display || !cfg.Log.Debug {
		t.Fatalf("flags not applied: %+v %+v", cfg.Vision, cfg.Log)
	}
	if !cfg.ControllerConfig().Debug {
		t.Fatalf("debug not carried into controller config")
	}

	cfg = config.Default()
	if err := (runOptions{}).apply(&cfg); err != nil {
		t.Fatalf("apply error: %v", err)
	}
	if cfg.Link.DryRun || cfg.Vision.Source != "camera" {
		t.Fatalf("empty options changed config: %+v %+v", cfg.Link, cfg.Vision)
	}
}
