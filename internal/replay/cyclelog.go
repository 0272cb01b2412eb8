package replay

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ofu951/UUV-Position-Stabilization/internal/control"
	"github.com/ofu951/UUV-Position-Stabilization/internal/link"
	"github.com/ofu951/UUV-Position-Stabilization/internal/marker"
)

// Log format: line-oriented text.
//
// - Blank lines ignored.
// - Lines starting with '#' ignored.
// - Line "START" resets the origin (next record time is relative to 0 again).
// - Data lines are:
//   <t_ns>,<detected>,<area>,<top>,<right>,<bottom>,<left>,<cx>,<cy>,<ch3>,<ch4>,<ch5>,<ch6>
//   where t_ns is nanoseconds since the controllers were created (the
//   time origin of the segment), detected is 0 or 1, the
//   geometry fields are 0 when nothing was detected, and ch3..ch6 are the
//   throttle, yaw, forward and lateral PWM that were sent.

const dataFields = 13

type Record struct {
	At time.Duration
	// Start marks a START line; no other field is set.
	Start bool

	// Measurement is nil for no-detection cycles.
	Measurement *marker.Measurement
	// Channels holds channels 3..6 in order.
	Channels [4]int
}

type Reader struct {
	r io.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return NewReader(f).ReadAll()
}

func (rr *Reader) ReadAll() ([]Record, error) {
	s := bufio.NewScanner(rr.r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	recs := make([]Record, 0, 1024)
	lineNo := 0
	for s.Scan() {
		lineNo++
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if line == "START" {
			recs = append(recs, Record{Start: true})
			continue
		}
		rec, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		recs = append(recs, rec)
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}

func parseLine(line string) (Record, error) {
	parts := strings.Split(line, ",")
	if len(parts) != dataFields {
		return Record{}, fmt.Errorf("invalid cycle line (want %d fields, got %d): %q", dataFields, len(parts), line)
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	tsNs, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("invalid timestamp %q: %w", parts[0], err)
	}
	if tsNs < 0 {
		return Record{}, fmt.Errorf("invalid timestamp (negative): %d", tsNs)
	}
	rec := Record{At: time.Duration(tsNs)}

	var detected bool
	switch parts[1] {
	case "0":
	case "1":
		detected = true
	default:
		return Record{}, fmt.Errorf("invalid detected flag %q", parts[1])
	}

	var geo [7]float64
	for i := range geo {
		v, err := strconv.ParseFloat(parts[2+i], 64)
		if err != nil {
			return Record{}, fmt.Errorf("invalid number %q: %w", parts[2+i], err)
		}
		geo[i] = v
	}
	if detected {
		rec.Measurement = &marker.Measurement{
			Area:       geo[0],
			SignedArea: geo[0],
			EdgeLength: [4]float64{geo[1], geo[2], geo[3], geo[4]},
			Center:     marker.Point{X: geo[5], Y: geo[6]},
		}
	}

	for i := 0; i < 4; i++ {
		v, err := strconv.Atoi(parts[9+i])
		if err != nil {
			return Record{}, fmt.Errorf("invalid channel %q: %w", parts[9+i], err)
		}
		rec.Channels[i] = v
	}
	return rec, nil
}

func formatRecord(at time.Duration, m *marker.Measurement, ch [4]int) string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	var b strings.Builder
	b.WriteString(strconv.FormatInt(at.Nanoseconds(), 10))
	if m == nil {
		b.WriteString(",0,0,0,0,0,0,0,0")
	} else {
		b.WriteString(",1,")
		b.WriteString(strings.Join([]string{
			f(m.Area),
			f(m.EdgeLength[marker.Top]), f(m.EdgeLength[marker.Right]),
			f(m.EdgeLength[marker.Bottom]), f(m.EdgeLength[marker.Left]),
			f(m.Center.X), f(m.Center.Y),
		}, ","))
	}
	for _, c := range ch {
		b.WriteByte(',')
		b.WriteString(strconv.Itoa(c))
	}
	b.WriteByte('\n')
	return b.String()
}

// Writer records control cycles. It is a control.Observer; the
// orchestrator closes it on shutdown.
type Writer struct {
	mu      sync.Mutex
	c       io.Closer
	w       *bufio.Writer
	start   time.Time
	started bool
	closed  bool
	failed  bool
}

func CreateWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	ww, err := NewWriter(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return ww, nil
}

// NewWriter writes to w. If w is an io.Closer, Close closes it.
func NewWriter(w io.Writer) (*Writer, error) {
	bw := bufio.NewWriterSize(w, 64*1024)
	if _, err := bw.WriteString("START\n"); err != nil {
		return nil, err
	}
	ww := &Writer{w: bw}
	if c, ok := w.(io.Closer); ok {
		ww.c = c
	}
	return ww, nil
}

// SetOrigin fixes t=0 of the log, normally the time the controllers were
// created. It has no effect once a cycle has been written.
func (ww *Writer) SetOrigin(at time.Time) {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	if !ww.started && !at.IsZero() {
		ww.start = at
		ww.started = true
	}
}

// WriteCycle appends one record. Without SetOrigin the first cycle written
// defines t=0.
func (ww *Writer) WriteCycle(at time.Time, m *marker.Measurement, ch link.Channels) error {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	if ww.closed {
		return errors.New("replay writer is closed")
	}
	if !ww.started {
		ww.start = at
		ww.started = true
	}
	d := at.Sub(ww.start)
	if d < 0 {
		d = 0
	}
	out := [4]int{
		int(ch[link.ChannelThrottle-1]),
		int(ch[link.ChannelYaw-1]),
		int(ch[link.ChannelForward-1]),
		int(ch[link.ChannelLateral-1]),
	}
	_, err := ww.w.WriteString(formatRecord(d, m, out))
	return err
}

func (ww *Writer) ObserveCycle(c control.Cycle) {
	ww.SetOrigin(c.ControlStart)
	if err := ww.WriteCycle(c.At, c.Measurement, c.Channels); err != nil {
		ww.mu.Lock()
		first := !ww.failed
		ww.failed = true
		ww.mu.Unlock()
		if first {
			log.Printf("replay: record failed: %v", err)
		}
	}
}

func (ww *Writer) Flush() error {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	if ww.closed {
		return nil
	}
	return ww.w.Flush()
}

func (ww *Writer) Close() error {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	if ww.closed {
		return nil
	}
	ww.closed = true
	err := ww.w.Flush()
	if ww.c != nil {
		if cerr := ww.c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

type Sleeper interface {
	Sleep(d time.Duration)
}

type realSleeper struct{}

func (realSleeper) Sleep(d time.Duration) { time.Sleep(d) }

// Play replays records with their relative timing.
//
// cb is invoked for every data record; START markers reset the origin.
//
// speedMultiplier: 1.0 = real time, 2.0 = 2x speed (half waits), 0.5 = half speed.
func Play(records []Record, speedMultiplier float64, loop bool, sleeper Sleeper, cb func(r Record) error) error {
	if speedMultiplier <= 0 {
		return fmt.Errorf("speedMultiplier must be > 0")
	}
	if sleeper == nil {
		sleeper = realSleeper{}
	}
	if cb == nil {
		return errors.New("callback is nil")
	}
	if len(records) == 0 {
		return errors.New("no records")
	}

	for {
		var lastAt time.Duration
		var haveLast bool

		for _, r := range records {
			if r.Start {
				lastAt = 0
				haveLast = false
				continue
			}

			if haveLast {
				wait := r.At - lastAt
				if wait < 0 {
					wait = 0
				}
				wait = time.Duration(float64(wait) / speedMultiplier)
				if wait > 0 {
					sleeper.Sleep(wait)
				}
			}

			if err := cb(r); err != nil {
				return err
			}

			lastAt = r.At
			haveLast = true
		}

		if !loop {
			return nil
		}
	}
}
