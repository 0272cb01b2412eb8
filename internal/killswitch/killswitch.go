// Package killswitch turns a GPIO input into a stop request.
package killswitch

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

var ErrUnsupported = errors.New("killswitch: gpio unsupported on this platform")

type Config struct {
	// Chip is tried first, then every other /dev/gpiochip*.
	Chip string
	// Line is the BCM GPIO number; the line is looked up by name "GPIO<n>".
	Line      int
	ActiveLow bool
	Debounce  time.Duration
}

// Switch calls onTrip the first time the input goes active.
type Switch struct {
	cfg    Config
	onTrip func(reason string)

	once    sync.Once
	tripped atomic.Bool
	line    io.Closer
}

func Open(cfg Config, onTrip func(reason string)) (*Switch, error) {
	if cfg.Line <= 0 {
		return nil, fmt.Errorf("killswitch: invalid gpio line %d", cfg.Line)
	}
	s := &Switch{cfg: cfg, onTrip: onTrip}
	line, err := openLineFn(cfg, s.edge)
	if err != nil {
		return nil, err
	}
	s.line = line
	log.Printf("killswitch: watching GPIO%d (active_low=%v)", cfg.Line, cfg.ActiveLow)
	return s, nil
}

func (s *Switch) edge(active bool) {
	if !active {
		return
	}
	s.once.Do(func() {
		s.tripped.Store(true)
		reason := fmt.Sprintf("kill switch GPIO%d", s.cfg.Line)
		log.Printf("killswitch: %s tripped", reason)
		if s.onTrip != nil {
			s.onTrip(reason)
		}
	})
}

func (s *Switch) Tripped() bool { return s.tripped.Load() }

func (s *Switch) Close() error {
	if s == nil || s.line == nil {
		return nil
	}
	err := s.line.Close()
	s.line = nil
	return err
}
