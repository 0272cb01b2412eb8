package replay

import (
	"time"

	"github.com/ofu951/UUV-Position-Stabilization/internal/axis"
)

// Series is one PWM trace per axis, in record order.
type Series struct {
	Forward  []float64
	Yaw      []float64
	Lateral  []float64
	Vertical []float64
}

func (s *Series) add(forward, yaw, lateral, vertical int) {
	s.Forward = append(s.Forward, float64(forward))
	s.Yaw = append(s.Yaw, float64(yaw))
	s.Lateral = append(s.Lateral, float64(lateral))
	s.Vertical = append(s.Vertical, float64(vertical))
}

func (s Series) Len() int { return len(s.Forward) }

// Comparison is the result of feeding recorded measurements through fresh
// controllers.
type Comparison struct {
	Recorded   Series
	Recomputed Series
	// Mismatches counts cycles where any axis differs by more than the
	// tolerance.
	Mismatches int
	MaxDelta   int
	Detected   int
}

// Recompute re-runs every recorded measurement through a new axis set whose
// clock follows the recorded timestamps. Each segment's controllers are
// created at t=0 of that segment, like the live ones; a START marker resets
// them. PWMs within tolerance of the recorded value count as equal.
func Recompute(records []Record, cfg axis.Config, tolerance int) Comparison {
	var res Comparison
	base := time.Unix(0, 0)
	var now time.Time
	clock := func() time.Time { return now }

	var set *axis.Set
	reset := func() {
		now = base
		set = axis.NewSet(cfg, clock)
	}

	for _, r := range records {
		if r.Start {
			set = nil
			continue
		}
		if set == nil {
			reset()
		}
		now = base.Add(r.At)
		if r.Measurement != nil {
			res.Detected++
		}

		p := set.Compute(r.Measurement)
		res.Recomputed.add(p.Forward, p.Yaw, p.Lateral, p.Vertical)
		// Channels are stored as 3..6: throttle, yaw, forward, lateral.
		res.Recorded.add(r.Channels[2], r.Channels[1], r.Channels[3], r.Channels[0])

		deltas := []int{
			abs(p.Vertical - r.Channels[0]),
			abs(p.Yaw - r.Channels[1]),
			abs(p.Forward - r.Channels[2]),
			abs(p.Lateral - r.Channels[3]),
		}
		mismatch := false
		for _, d := range deltas {
			if d > res.MaxDelta {
				res.MaxDelta = d
			}
			if d > tolerance {
				mismatch = true
			}
		}
		if mismatch {
			res.Mismatches++
		}
	}
	return res
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
