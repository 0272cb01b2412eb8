// Package control runs the marker stabilization loop: acquire a frame,
// detect markers, compute the four axis commands and send them to the
// vehicle, until a stop is requested.
package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"golang.org/x/time/rate"

	"github.com/ofu951/UUV-Position-Stabilization/internal/axis"
	"github.com/ofu951/UUV-Position-Stabilization/internal/link"
	"github.com/ofu951/UUV-Position-Stabilization/internal/marker"
	"github.com/ofu951/UUV-Position-Stabilization/internal/vision"
)

const (
	DefaultRateHz         = 100
	DefaultMaxReadFailure = 10 * time.Second

	shutdownTimeout = 5 * time.Second
)

type Config struct {
	Axes    axis.Config
	Link    link.Link
	Source  vision.Source
	Display vision.Display

	Observers []Observer

	// RateHz caps the cycle rate. Frame acquisition usually paces the loop
	// first.
	RateHz float64
	// MaxReadFailure is how long consecutive frame read failures are
	// tolerated before the loop gives up.
	MaxReadFailure time.Duration
	// InitialReadBackoff is the first wait after a failed read.
	InitialReadBackoff time.Duration

	Clock func() time.Time
}

type Orchestrator struct {
	cfg     Config
	now     func() time.Time
	axes    *axis.Set
	link    link.Link
	source  vision.Source
	display vision.Display
	limiter *rate.Limiter
	readBO  *backoff.ExponentialBackOff

	state         atomic.Int32
	stopRequested atomic.Bool

	stopMu     sync.Mutex
	stopReason string
	cancel     context.CancelFunc

	shutdownOnce sync.Once

	mu   sync.RWMutex
	snap Snapshot

	seq          uint64
	controlStart time.Time
	cycleAt      time.Time
	lastCycleAt  time.Time
	fps          float64
	lastSendErr  string
}

type clockFunc func() time.Time

func (f clockFunc) Now() time.Time { return f() }

func New(cfg Config) (*Orchestrator, error) {
	if cfg.Link == nil {
		return nil, errors.New("control: link is required")
	}
	if cfg.Source == nil {
		return nil, errors.New("control: source is required")
	}
	if cfg.Display == nil {
		cfg.Display = vision.Headless{}
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.RateHz <= 0 {
		cfg.RateHz = DefaultRateHz
	}
	if cfg.MaxReadFailure <= 0 {
		cfg.MaxReadFailure = DefaultMaxReadFailure
	}
	if cfg.InitialReadBackoff <= 0 {
		cfg.InitialReadBackoff = 10 * time.Millisecond
	}

	bo := &backoff.ExponentialBackOff{
		InitialInterval:     cfg.InitialReadBackoff,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         time.Second,
		MaxElapsedTime:      cfg.MaxReadFailure,
		Clock:               clockFunc(cfg.Clock),
	}
	bo.Reset()

	o := &Orchestrator{
		cfg:     cfg,
		now:     cfg.Clock,
		link:    cfg.Link,
		source:  cfg.Source,
		display: cfg.Display,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateHz), 1),
		readBO:  bo,
	}
	// The controllers see the cycle's timestamp so a recorded cycle log
	// reproduces their dt exactly.
	o.controlStart = cfg.Clock()
	o.cycleAt = o.controlStart
	o.axes = axis.NewSet(cfg.Axes, func() time.Time { return o.cycleAt })
	o.snap = Snapshot{
		State: Idle.String(),
		PWM:   axis.NeutralCommand,
		Axes:  o.axes.Statuses(),
	}
	return o, nil
}

func (o *Orchestrator) State() State { return State(o.state.Load()) }

// Axes exposes the controllers, mainly for tests and replay.
func (o *Orchestrator) Axes() *axis.Set { return o.axes }

func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	s := o.snap
	s.State = o.State().String()
	s.Axes = make(map[string]axis.Status, len(o.snap.Axes))
	for k, v := range o.snap.Axes {
		s.Axes[k] = v
	}
	return s
}

func (o *Orchestrator) setState(s State) {
	o.state.Store(int32(s))
	log.Printf("control: state %s", s)
}

// RequestStop asks the loop to exit and shut down. Every stop source
// (signal, quit key, kill switch, read failure) goes through here. Safe to
// call from any goroutine, any number of times; the first reason wins.
func (o *Orchestrator) RequestStop(reason string) {
	o.stopMu.Lock()
	first := o.stopRequested.CompareAndSwap(false, true)
	if first {
		o.stopReason = reason
	}
	cancel := o.cancel
	o.stopMu.Unlock()

	if first {
		log.Printf("control: stop requested: %s", reason)
		o.mu.Lock()
		o.snap.StopReason = reason
		o.mu.Unlock()
	}
	if cancel != nil {
		cancel()
	}
}

func (o *Orchestrator) StopRequested() bool { return o.stopRequested.Load() }

// Run connects, arms and runs the loop until a stop is requested or ctx is
// canceled, then shuts down. A link that cannot be connected is fatal.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.state.CompareAndSwap(int32(Idle), int32(Connecting)) {
		return fmt.Errorf("control: run called in state %s", o.State())
	}
	log.Printf("control: state %s", Connecting)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.stopMu.Lock()
	o.cancel = cancel
	stopped := o.stopRequested.Load()
	o.stopMu.Unlock()
	if stopped {
		cancel()
	}
	stopOnCancel := context.AfterFunc(ctx, func() { o.RequestStop("interrupted") })
	defer stopOnCancel()

	if err := o.link.Connect(runCtx); err != nil {
		o.stopIfCanceled(ctx)
		o.Shutdown()
		if o.StopRequested() {
			return nil
		}
		o.setLastError(err)
		return fmt.Errorf("control: connect: %w", err)
	}
	if err := o.link.Arm(runCtx); err != nil {
		log.Printf("control: warning: arm failed, continuing disarmed: %v", err)
	}

	o.banner()
	o.setState(Running)

	err := o.loop(runCtx)
	o.stopIfCanceled(ctx)
	o.Shutdown()
	return err
}

func (o *Orchestrator) stopIfCanceled(ctx context.Context) {
	if ctx.Err() != nil {
		o.RequestStop("interrupted")
	}
}

func (o *Orchestrator) banner() {
	log.Printf("control: channels: %d=throttle %d=yaw %d=forward %d=lateral (1,2,7,8 released)",
		link.ChannelThrottle, link.ChannelYaw, link.ChannelForward, link.ChannelLateral)
	c := o.cfg.Axes
	log.Printf("control: frame %dx%d target_area=%.0f rate=%.0fHz armed=%v",
		c.FrameWidth, c.FrameHeight, c.TargetArea, o.cfg.RateHz, o.link.Armed())
}

func (o *Orchestrator) loop(ctx context.Context) error {
	failing := false
	for !o.StopRequested() {
		if err := o.limiter.Wait(ctx); err != nil {
			return nil
		}

		f, err := o.source.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, vision.ErrEnded) {
				o.RequestStop("source ended")
				return nil
			}
			if !failing {
				failing = true
				o.readBO.Reset()
			}
			o.countReadFailure(err)
			wait := o.readBO.NextBackOff()
			if wait == backoff.Stop {
				o.RequestStop("unrecoverable read failure")
				return fmt.Errorf("control: frame read failing for more than %s: %w", o.cfg.MaxReadFailure, err)
			}
			log.Printf("control: frame read failed, retrying in %s: %v", wait, err)
			if !sleepCtx(ctx, wait) {
				return nil
			}
			continue
		}
		failing = false

		quads, err := o.source.DetectMarkers(f)
		if err != nil {
			log.Printf("control: marker detection failed, skipping cycle: %v", err)
			_ = f.Close()
			continue
		}

		c := o.Step(quads)
		quit := o.display.Show(f, vision.Overlay{
			Quads:    quads,
			Measure:  c.Measurement,
			Statuses: c.Statuses,
			Armed:    c.Armed,
			FPS:      o.fps,
		})
		_ = f.Close()
		if quit {
			o.RequestStop("quit key")
		}
	}
	return nil
}

// Step runs one control cycle on already detected markers: measure,
// compute, send, observe.
func (o *Orchestrator) Step(quads []marker.Quad) Cycle {
	now := o.now()
	o.cycleAt = now
	m := marker.FromDetections(quads)
	pwm := o.axes.Compute(m)
	ch := link.FromPWM(pwm)

	if err := o.link.SendChannels(ch); err != nil {
		if msg := err.Error(); msg != o.lastSendErr {
			log.Printf("control: warning: channel override not delivered: %v", err)
			o.lastSendErr = msg
		}
	} else {
		o.lastSendErr = ""
	}

	if !o.lastCycleAt.IsZero() {
		if dt := now.Sub(o.lastCycleAt).Seconds(); dt > 0 {
			inst := 1 / dt
			if o.fps == 0 {
				o.fps = inst
			} else {
				o.fps = 0.9*o.fps + 0.1*inst
			}
		}
	}
	o.lastCycleAt = now
	o.seq++

	c := Cycle{
		Seq:          o.seq,
		At:           now,
		ControlStart: o.controlStart,
		Markers:      len(quads),
		Measurement:  m,
		PWM:          pwm,
		Channels:     ch,
		Statuses:     o.axes.Statuses(),
		Armed:        o.link.Armed(),
	}

	o.mu.Lock()
	o.snap.Armed = c.Armed
	o.snap.Detected = c.Detected()
	o.snap.Measurement = m
	o.snap.PWM = pwm
	o.snap.Axes = c.Statuses
	o.snap.Cycles = c.Seq
	if m == nil {
		o.snap.NoDetectionCycles++
	}
	o.snap.FPS = o.fps
	o.snap.LastUpdateAt = now.UTC()
	o.mu.Unlock()

	for _, obs := range o.cfg.Observers {
		obs.ObserveCycle(c)
	}
	return c
}

func (o *Orchestrator) countReadFailure(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.snap.ReadFailures++
	o.snap.LastError = err.Error()
}

func (o *Orchestrator) setLastError(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.snap.LastError = err.Error()
}

// Shutdown releases the vehicle and every resource, in order: neutral
// (released) channels, disarm, close link, close source, close display,
// close observers. Each step runs even if an earlier one failed. Only the
// first call does anything; later calls wait for it and return.
//
// Run calls Shutdown itself; call it directly only when Run was never
// started. Other goroutines should use RequestStop.
func (o *Orchestrator) Shutdown() {
	o.shutdownOnce.Do(func() {
		o.RequestStop("shutdown")
		o.setState(ShuttingDown)

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		steps := []struct {
			name string
			fn   func() error
		}{
			{"release channels", func() error { return o.link.SendChannels(link.Ignore) }},
			{"disarm", func() error { return o.link.Disarm(ctx) }},
			{"close link", o.link.Close},
			{"close source", o.source.Close},
			{"close display", o.display.Close},
		}
		for _, obs := range o.cfg.Observers {
			if c, ok := obs.(io.Closer); ok {
				steps = append(steps, struct {
					name string
					fn   func() error
				}{fmt.Sprintf("close %T", obs), c.Close})
			}
		}

		for _, s := range steps {
			if err := s.fn(); err != nil {
				log.Printf("control: shutdown: %s: %v", s.name, err)
				continue
			}
			log.Printf("control: shutdown: %s ok", s.name)
		}
		o.setState(Stopped)
	})
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
