package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ofu951/UUV-Position-Stabilization/internal/axis"
	"github.com/ofu951/UUV-Position-Stabilization/internal/control"
)

// CycleEvent is the per-cycle payload streamed to browsers.
type CycleEvent struct {
	Seq      uint64                 `json:"seq"`
	AtUTC    string                 `json:"at_utc"`
	Detected bool                   `json:"detected"`
	Markers  int                    `json:"markers"`
	Area     float64                `json:"area,omitempty"`
	CenterX  float64                `json:"center_x,omitempty"`
	CenterY  float64                `json:"center_y,omitempty"`
	PWM      axis.PWM               `json:"pwm"`
	Axes     map[string]axis.Status `json:"axes"`
	Armed    bool                   `json:"armed"`
}

func NewCycleEvent(c control.Cycle) CycleEvent {
	ev := CycleEvent{
		Seq:      c.Seq,
		AtUTC:    c.At.UTC().Format(time.RFC3339Nano),
		Detected: c.Detected(),
		Markers:  c.Markers,
		PWM:      c.PWM,
		Axes:     c.Statuses,
		Armed:    c.Armed,
	}
	if m := c.Measurement; m != nil {
		ev.Area = m.Area
		ev.CenterX = m.Center.X
		ev.CenterY = m.Center.Y
	}
	return ev
}

// CycleBroadcaster fans cycle events out to any listeners (SSE). It keeps
// the most recent event so new subscribers get an immediate sample. Slow
// subscribers miss events rather than stall the control loop.
type CycleBroadcaster struct {
	mu       sync.RWMutex
	subs     map[int]chan CycleEvent
	nextID   int
	last     CycleEvent
	haveLast bool
}

func NewCycleBroadcaster() *CycleBroadcaster {
	return &CycleBroadcaster{subs: make(map[int]chan CycleEvent)}
}

func (b *CycleBroadcaster) Subscribe(buffer int) (int, <-chan CycleEvent) {
	if buffer <= 0 {
		buffer = 4
	}
	ch := make(chan CycleEvent, buffer)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	last, have := b.last, b.haveLast
	b.mu.Unlock()
	if have {
		select {
		case ch <- last:
		default:
		}
	}
	return id, ch
}

func (b *CycleBroadcaster) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

func (b *CycleBroadcaster) Publish(ev CycleEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.last = ev
	b.haveLast = true
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (b *CycleBroadcaster) ObserveCycle(c control.Cycle) {
	b.Publish(NewCycleEvent(c))
}

// ServeHTTP streams events as text/event-stream until the client leaves.
func (b *CycleBroadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	id, ch := b.Subscribe(8)
	defer b.Unsubscribe(id)
	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
