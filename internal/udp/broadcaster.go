// Package udp sends per-cycle status datagrams to a topside station.
package udp

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"sync"

	"github.com/ofu951/UUV-Position-Stabilization/internal/axis"
	"github.com/ofu951/UUV-Position-Stabilization/internal/control"
)

type udpConn interface {
	Write(p []byte) (int, error)
	Close() error
}

type resolveFunc func(network, address string) (*net.UDPAddr, error)
type dialFunc func(network string, laddr, raddr *net.UDPAddr) (udpConn, error)

func dialUDP(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
	return net.DialUDP(network, laddr, raddr)
}

// Datagram is one JSON status packet.
type Datagram struct {
	Seq        uint64          `json:"seq"`
	UnixNano   int64           `json:"t_ns"`
	Detected   bool            `json:"detected"`
	Markers    int             `json:"markers"`
	Area       float64         `json:"area"`
	CenterX    float64         `json:"cx"`
	CenterY    float64         `json:"cy"`
	PWM        axis.PWM        `json:"pwm"`
	InDeadband map[string]bool `json:"in_deadband"`
	Armed      bool            `json:"armed"`
}

func NewDatagram(c control.Cycle) Datagram {
	d := Datagram{
		Seq:        c.Seq,
		UnixNano:   c.At.UnixNano(),
		Detected:   c.Detected(),
		Markers:    c.Markers,
		PWM:        c.PWM,
		InDeadband: make(map[string]bool, len(c.Statuses)),
		Armed:      c.Armed,
	}
	if m := c.Measurement; m != nil {
		d.Area = m.Area
		d.CenterX = m.Center.X
		d.CenterY = m.Center.Y
	}
	for name, st := range c.Statuses {
		d.InDeadband[name] = st.InDeadband
	}
	return d
}

type Broadcaster struct {
	dest string
	conn udpConn

	mu      sync.Mutex
	lastErr string
}

func NewBroadcaster(dest string) (*Broadcaster, error) {
	return newBroadcaster(dest, net.ResolveUDPAddr, dialUDP)
}

func newBroadcaster(dest string, resolve resolveFunc, dial dialFunc) (*Broadcaster, error) {
	addr, err := resolve("udp", dest)
	if err != nil {
		return nil, fmt.Errorf("resolve dest: %w", err)
	}

	// DialUDP selects a suitable local address automatically.
	conn, err := dial("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dial udp: %w", err)
	}
	return &Broadcaster{dest: dest, conn: conn}, nil
}

func (b *Broadcaster) Send(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	_, err := b.conn.Write(payload)
	return err
}

// ObserveCycle sends the cycle as one datagram. Send errors are logged once
// until the next success.
func (b *Broadcaster) ObserveCycle(c control.Cycle) {
	payload, err := json.Marshal(NewDatagram(c))
	if err == nil {
		err = b.Send(payload)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		if msg := err.Error(); msg != b.lastErr {
			log.Printf("udp: send to %s failed: %v", b.dest, err)
			b.lastErr = msg
		}
		return
	}
	b.lastErr = ""
}

func (b *Broadcaster) Close() error {
	if b.conn == nil {
		return nil
	}
	return b.conn.Close()
}
