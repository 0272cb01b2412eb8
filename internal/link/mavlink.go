package link

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bluenviron/gomavlib/v2"
	"github.com/bluenviron/gomavlib/v2/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v2/pkg/message"
)

// forceArmMagic is the ArduPilot param2 value that bypasses arming checks.
const forceArmMagic = 21196

type MAVLinkConfig struct {
	// Endpoint is a pymavlink-style connection string, e.g. "udp:127.0.0.1:14551".
	Endpoint string
	// SystemID identifies this ground station on the MAVLink network.
	SystemID int
	ForceArm bool

	HeartbeatTimeout time.Duration
	ArmTimeout       time.Duration
	DisarmTimeout    time.Duration
}

type frame struct {
	sys, comp uint8
	msg       message.Message
}

// nodeConn is the subset of a gomavlib node the link uses.
type nodeConn struct {
	frames <-chan frame
	write  func(message.Message)
	close  func()
}

var newNodeFn = newNode

func newNode(ep gomavlib.EndpointConf, systemID int) (*nodeConn, error) {
	node, err := gomavlib.NewNode(gomavlib.NodeConf{
		Endpoints:   []gomavlib.EndpointConf{ep},
		Dialect:     common.Dialect,
		OutVersion:  gomavlib.V2,
		OutSystemID: byte(systemID),
	})
	if err != nil {
		return nil, err
	}
	frames := make(chan frame, 64)
	go func() {
		defer close(frames)
		for evt := range node.Events() {
			if f, ok := evt.(*gomavlib.EventFrame); ok {
				frames <- frame{sys: f.SystemID(), comp: f.ComponentID(), msg: f.Message()}
			}
		}
	}()
	return &nodeConn{
		frames: frames,
		write:  func(m message.Message) { node.WriteMessageAll(m) },
		close:  func() { node.Close() },
	}, nil
}

type heartbeat struct {
	sys, comp uint8
	armed     bool
}

// MAVLink drives an ArduSub-style autopilot over MAVLink.
//
// Arm and disarm confirmation poll the periodic heartbeat rather than
// waiting for a command ACK.
type MAVLink struct {
	cfg MAVLinkConfig

	mu         sync.Mutex
	conn       *nodeConn
	connected  bool
	targetSys  uint8
	targetComp uint8

	armed    atomic.Bool
	attitude atomic.Value // Attitude

	heartbeats chan heartbeat
	done       chan struct{}
	closeOnce  sync.Once
}

func NewMAVLink(cfg MAVLinkConfig) *MAVLink {
	if cfg.SystemID <= 0 || cfg.SystemID > 255 {
		cfg.SystemID = 255
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = 10 * time.Second
	}
	if cfg.ArmTimeout <= 0 {
		cfg.ArmTimeout = 5 * time.Second
	}
	if cfg.DisarmTimeout <= 0 {
		cfg.DisarmTimeout = 3 * time.Second
	}
	return &MAVLink{
		cfg:        cfg,
		heartbeats: make(chan heartbeat, 16),
		done:       make(chan struct{}),
	}
}

// Connect opens the endpoint and waits for the first autopilot heartbeat.
func (l *MAVLink) Connect(ctx context.Context) error {
	select {
	case <-l.done:
		return ErrClosed
	default:
	}
	l.mu.Lock()
	if l.connected {
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	ep, err := parseEndpoint(l.cfg.Endpoint)
	if err != nil {
		return err
	}
	log.Printf("link: connecting endpoint=%s", l.cfg.Endpoint)
	conn, err := newNodeFn(ep, l.cfg.SystemID)
	if err != nil {
		return fmt.Errorf("link: open %s: %w", l.cfg.Endpoint, err)
	}
	go l.readLoop(conn.frames)

	log.Printf("link: waiting for heartbeat (timeout %s)", l.cfg.HeartbeatTimeout)
	hb, ok := l.waitHeartbeat(ctx, l.cfg.HeartbeatTimeout, func(heartbeat) bool { return true })
	if !ok {
		conn.close()
		return fmt.Errorf("link: no heartbeat from %s within %s", l.cfg.Endpoint, l.cfg.HeartbeatTimeout)
	}

	l.mu.Lock()
	l.conn = conn
	l.connected = true
	l.targetSys = hb.sys
	l.targetComp = hb.comp
	l.mu.Unlock()
	l.armed.Store(hb.armed)

	log.Printf("link: connected system=%d component=%d", hb.sys, hb.comp)
	return nil
}

func (l *MAVLink) readLoop(frames <-chan frame) {
	for f := range frames {
		switch m := f.msg.(type) {
		case *common.MessageHeartbeat:
			if int(f.sys) == l.cfg.SystemID || m.Type == common.MAV_TYPE_GCS {
				continue
			}
			hb := heartbeat{sys: f.sys, comp: f.comp, armed: m.BaseMode&common.MAV_MODE_FLAG_SAFETY_ARMED != 0}
			select {
			case l.heartbeats <- hb:
			default:
				// Keep the newest heartbeat when nobody is polling.
				select {
				case <-l.heartbeats:
				default:
				}
				select {
				case l.heartbeats <- hb:
				default:
				}
			}
		case *common.MessageAttitude:
			l.attitude.Store(Attitude{Roll: float64(m.Roll), Pitch: float64(m.Pitch), Yaw: float64(m.Yaw)})
		}
	}
}

func (l *MAVLink) waitHeartbeat(ctx context.Context, timeout time.Duration, match func(heartbeat) bool) (heartbeat, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case hb := <-l.heartbeats:
			if match(hb) {
				return hb, true
			}
		case <-timer.C:
			return heartbeat{}, false
		case <-ctx.Done():
			return heartbeat{}, false
		case <-l.done:
			return heartbeat{}, false
		}
	}
}

func (l *MAVLink) target() (*nodeConn, uint8, uint8, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.connected || l.conn == nil {
		return nil, 0, 0, ErrNotConnected
	}
	return l.conn, l.targetSys, l.targetComp, nil
}

func (l *MAVLink) sendArmDisarm(arm bool) error {
	conn, sys, comp, err := l.target()
	if err != nil {
		return err
	}
	var p1, p2 float32
	if arm {
		p1 = 1
		if l.cfg.ForceArm {
			p2 = forceArmMagic
		}
	}
	conn.write(&common.MessageCommandLong{
		TargetSystem:    sys,
		TargetComponent: comp,
		Command:         common.MAV_CMD_COMPONENT_ARM_DISARM,
		Param1:          p1,
		Param2:          p2,
	})
	return nil
}

// Arm requests arming and waits up to ArmTimeout for a heartbeat with the
// safety-armed flag.
func (l *MAVLink) Arm(ctx context.Context) error {
	if err := l.sendArmDisarm(true); err != nil {
		return err
	}
	log.Printf("link: arm requested")
	if _, ok := l.waitHeartbeat(ctx, l.cfg.ArmTimeout, func(hb heartbeat) bool { return hb.armed }); ok {
		l.armed.Store(true)
		log.Printf("link: vehicle ARMED")
		return nil
	}
	log.Printf("link: vehicle not armed within %s (safety switch or mode may prevent arming)", l.cfg.ArmTimeout)
	return ErrArmTimeout
}

// Disarm requests disarming and waits up to DisarmTimeout for confirmation.
// The vehicle is treated as disarmed once the command is sent, confirmed or not.
func (l *MAVLink) Disarm(ctx context.Context) error {
	if err := l.sendArmDisarm(false); err != nil {
		return err
	}
	log.Printf("link: disarm requested")
	if _, ok := l.waitHeartbeat(ctx, l.cfg.DisarmTimeout, func(hb heartbeat) bool { return !hb.armed }); ok {
		log.Printf("link: vehicle DISARMED")
	} else {
		log.Printf("link: disarm not confirmed within %s", l.cfg.DisarmTimeout)
	}
	l.armed.Store(false)
	return nil
}

func (l *MAVLink) SendChannels(c Channels) error {
	conn, sys, comp, err := l.target()
	if err != nil {
		return err
	}
	conn.write(&common.MessageRcChannelsOverride{
		TargetSystem:    sys,
		TargetComponent: comp,
		Chan1Raw:        c[0],
		Chan2Raw:        c[1],
		Chan3Raw:        c[2],
		Chan4Raw:        c[3],
		Chan5Raw:        c[4],
		Chan6Raw:        c[5],
		Chan7Raw:        c[6],
		Chan8Raw:        c[7],
	})
	return nil
}

func (l *MAVLink) Armed() bool { return l.armed.Load() }

// Attitude returns the last ATTITUDE report, if any was received.
func (l *MAVLink) Attitude() (Attitude, bool) {
	v, ok := l.attitude.Load().(Attitude)
	return v, ok
}

// Close releases the endpoint. It is safe to call more than once.
func (l *MAVLink) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
		l.mu.Lock()
		conn := l.conn
		l.conn = nil
		l.connected = false
		l.mu.Unlock()
		if conn != nil {
			conn.close()
		}
		log.Printf("link: closed")
	})
	return nil
}
