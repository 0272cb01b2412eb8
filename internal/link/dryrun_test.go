package link

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func TestDryRun_ReportsEveryN(t *testing.T) {
	var buf bytes.Buffer
	d := NewDryRun(3)
	d.Out = &buf

	ctx := context.Background()
	if err := d.SendChannels(Ignore); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("SendChannels before connect err=%v", err)
	}
	if err := d.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := d.Arm(ctx); err != nil || !d.Armed() {
		t.Fatalf("Arm err=%v armed=%v", err, d.Armed())
	}

	cmd := Channels{0, 0, 1500, 1520, 1480, 1500, 0, 0}
	for i := 0; i < 2; i++ {
		if err := d.SendChannels(cmd); err != nil {
			t.Fatalf("SendChannels: %v", err)
		}
	}
	if buf.Len() != 0 {
		t.Fatalf("expected no report before the 3rd command, got %q", buf.String())
	}
	_ = d.SendChannels(cmd)
	out := buf.String()
	if !strings.Contains(out, "1520") || !strings.Contains(out, "ARMED") {
		t.Fatalf("report missing values: %q", out)
	}

	last, n := d.Last()
	if last != cmd || n != 3 {
		t.Fatalf("last=%v n=%d", last, n)
	}
}

func TestDryRun_AlwaysReportsRelease(t *testing.T) {
	var buf bytes.Buffer
	d := NewDryRun(100)
	d.Out = &buf
	_ = d.Connect(context.Background())

	if err := d.SendChannels(Ignore); err != nil {
		t.Fatalf("SendChannels: %v", err)
	}
	if !strings.Contains(buf.String(), "ignore") {
		t.Fatalf("expected release report, got %q", buf.String())
	}
	if err := d.Disarm(context.Background()); err != nil {
		t.Fatalf("Disarm: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := d.Arm(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Arm after Close err=%v", err)
	}
}
