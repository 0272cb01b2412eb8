package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ofu951/UUV-Position-Stabilization/internal/replay"
)

type logSummary struct {
	Segments    int
	Cycles      int
	Detected    int
	MaxDuration time.Duration
	// MinArea and MaxArea cover detected cycles only.
	MinArea float64
	MaxArea float64
}

func summarizeCycleLog(records []replay.Record) logSummary {
	var s logSummary
	if len(records) == 0 {
		return s
	}

	hasCycles := false
	segments := 0
	for _, r := range records {
		if r.Start {
			segments++
			continue
		}
		hasCycles = true

		s.Cycles++
		if r.At > s.MaxDuration {
			s.MaxDuration = r.At
		}
		if r.Measurement == nil {
			continue
		}
		a := r.Measurement.Area
		if s.Detected == 0 || a < s.MinArea {
			s.MinArea = a
		}
		if s.Detected == 0 || a > s.MaxArea {
			s.MaxArea = a
		}
		s.Detected++
	}
	if segments == 0 && hasCycles {
		segments = 1
	}
	s.Segments = segments
	return s
}

func printLogSummary(w io.Writer, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("path is empty")
	}

	recs, err := replay.ReadFile(path)
	if err != nil {
		return err
	}
	writeLogSummary(w, path, summarizeCycleLog(recs))
	return nil
}

func writeLogSummary(w io.Writer, path string, s logSummary) {
	fmt.Fprintf(w, "path: %s\n", path)
	fmt.Fprintf(w, "segments: %d\n", s.Segments)
	fmt.Fprintf(w, "cycles: %d\n", s.Cycles)
	fmt.Fprintf(w, "detected: %d\n", s.Detected)
	fmt.Fprintf(w, "max_duration: %s\n", s.MaxDuration)
	if s.Detected > 0 {
		fmt.Fprintf(w, "area_px2: %.0f..%.0f\n", s.MinArea, s.MaxArea)
	}
}
