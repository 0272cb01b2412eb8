package killswitch

import (
	"errors"
	"io"
	"testing"
)

type fakeLine struct {
	closed int
}

func (f *fakeLine) Close() error {
	f.closed++
	return nil
}

func useFakeLine(t *testing.T) (*fakeLine, *func(bool)) {
	t.Helper()
	fl := &fakeLine{}
	var edge func(bool)
	prev := openLineFn
	openLineFn = func(cfg Config, e func(active bool)) (io.Closer, error) {
		edge = e
		return fl, nil
	}
	t.Cleanup(func() { openLineFn = prev })
	return fl, &edge
}

func TestSwitch_TripsOnceOnActiveEdge(t *testing.T) {
	fl, edge := useFakeLine(t)
	var reasons []string
	s, err := Open(Config{Line: 17}, func(r string) { reasons = append(reasons, r) })
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	(*edge)(false)
	if s.Tripped() || len(reasons) != 0 {
		t.Fatalf("tripped on inactive edge")
	}
	(*edge)(true)
	(*edge)(false)
	(*edge)(true)
	if !s.Tripped() {
		t.Fatalf("expected tripped")
	}
	if len(reasons) != 1 || reasons[0] != "kill switch GPIO17" {
		t.Fatalf("reasons=%v", reasons)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if fl.closed != 1 {
		t.Fatalf("closed=%d want 1", fl.closed)
	}
}

func TestOpen_InvalidLine(t *testing.T) {
	useFakeLine(t)
	if _, err := Open(Config{Line: 0}, nil); err == nil {
		t.Fatalf("expected error")
	}
}

func TestOpen_PropagatesLineError(t *testing.T) {
	prev := openLineFn
	openLineFn = func(Config, func(bool)) (io.Closer, error) { return nil, ErrUnsupported }
	t.Cleanup(func() { openLineFn = prev })

	if _, err := Open(Config{Line: 4}, nil); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("err=%v want ErrUnsupported", err)
	}
}
