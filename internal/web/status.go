package web

import (
	"math"
	"runtime"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/ofu951/UUV-Position-Stabilization/internal/control"
	"github.com/ofu951/UUV-Position-Stabilization/internal/link"
)

// Status aggregates what /api/status reports. Providers are bound after the
// control loop and link are built; unbound providers report zero values.
type Status struct {
	startUnixNano int64
	endpoint      atomic.Value // string
	source        atomic.Value // string
	dryRun        atomic.Bool
	control       atomic.Value // func() control.Snapshot
	attitude      atomic.Value // func() (link.Attitude, bool)
}

func NewStatus() *Status {
	s := &Status{}
	atomic.StoreInt64(&s.startUnixNano, time.Now().UTC().UnixNano())
	s.endpoint.Store("")
	s.source.Store("")
	s.control.Store(func() control.Snapshot { return control.Snapshot{State: control.Idle.String()} })
	s.attitude.Store(func() (link.Attitude, bool) { return link.Attitude{}, false })
	return s
}

func (s *Status) SetStatic(endpoint string, source string, dryRun bool) {
	s.endpoint.Store(endpoint)
	s.source.Store(source)
	s.dryRun.Store(dryRun)
}

func (s *Status) BindControl(fn func() control.Snapshot) {
	if fn != nil {
		s.control.Store(fn)
	}
}

func (s *Status) BindAttitude(fn func() (link.Attitude, bool)) {
	if fn != nil {
		s.attitude.Store(fn)
	}
}

// Control returns the current loop snapshot.
func (s *Status) Control() control.Snapshot {
	return s.control.Load().(func() control.Snapshot)()
}

// AttitudeSnapshot is the vehicle attitude in degrees; fields are omitted
// until the autopilot has reported one.
type AttitudeSnapshot struct {
	Valid    bool     `json:"valid"`
	RollDeg  *float64 `json:"roll_deg,omitempty"`
	PitchDeg *float64 `json:"pitch_deg,omitempty"`
	YawDeg   *float64 `json:"yaw_deg,omitempty"`
}

type BuildInfo struct {
	GoVersion string `json:"go_version"`
	Version   string `json:"version,omitempty"`
	Commit    string `json:"commit,omitempty"`
	Dirty     bool   `json:"dirty,omitempty"`
}

type StatusSnapshot struct {
	Service   string           `json:"service"`
	NowUTC    string           `json:"now_utc"`
	UptimeSec int64            `json:"uptime_sec"`
	Endpoint  string           `json:"endpoint"`
	Source    string           `json:"source"`
	DryRun    bool             `json:"dry_run"`
	Control   control.Snapshot `json:"control"`
	Attitude  AttitudeSnapshot `json:"attitude"`
	Build     BuildInfo        `json:"build"`
}

func (s *Status) Snapshot(nowUTC time.Time) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()

	snap := StatusSnapshot{
		Service:   "uuv-stabilize",
		NowUTC:    nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec: int64(nowUTC.Sub(start).Seconds()),
		Endpoint:  s.endpoint.Load().(string),
		Source:    s.source.Load().(string),
		DryRun:    s.dryRun.Load(),
		Control:   s.Control(),
		Build:     buildInfo(),
	}
	if att, ok := s.attitude.Load().(func() (link.Attitude, bool))(); ok {
		snap.Attitude = AttitudeSnapshot{
			Valid:    true,
			RollDeg:  deg(att.Roll),
			PitchDeg: deg(att.Pitch),
			YawDeg:   deg(att.Yaw),
		}
	}
	return snap
}

func deg(rad float64) *float64 {
	v := rad * 180 / math.Pi
	return &v
}

func buildInfo() BuildInfo {
	out := BuildInfo{GoVersion: runtime.Version()}
	bi, ok := debug.ReadBuildInfo()
	if !ok || bi == nil {
		return out
	}
	out.Version = bi.Main.Version
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			out.Commit = s.Value
		case "vcs.modified":
			out.Dirty = s.Value == "true"
		}
	}
	return out
}
