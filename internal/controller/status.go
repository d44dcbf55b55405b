package controller

import (
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/HansolSon1113/MakerProject/internal/engine"
	"github.com/HansolSon1113/MakerProject/internal/nav"
	"github.com/HansolSon1113/MakerProject/internal/remote"
)

const timingWindow = 200

// Fill levels reported in Status.
const (
	FillHasRoom = "has-room"
	FillFull    = "full"
	FillUnknown = "unknown"
)

// Status is the externally visible state after one cycle.
type Status struct {
	Time          time.Time      `json:"time"`
	Cycle         uint64         `json:"cycle"`
	Mode          engine.Mode    `json:"mode"`
	Branch        engine.Branch  `json:"branch"`
	Drive         nav.Direction  `json:"drive"`
	LoadCm        float64        `json:"load_cm"`
	ObstacleCm    float64        `json:"obstacle_cm"`
	Motion        bool           `json:"motion"`
	Fill          string         `json:"fill"`
	Scores        nav.ZoneScores `json:"scores"`
	Best          nav.Direction  `json:"best"`
	Locked        bool           `json:"locked"`
	LockRemaining float64        `json:"lock_remaining_s"`
	BinFullCount  int            `json:"bin_full_count"`
	Display       [2]string      `json:"display"`
	Timing        Timing         `json:"timing"`
}

// Timing summarises recent cycle durations in milliseconds.
type Timing struct {
	Samples  int     `json:"samples"`
	MeanMs   float64 `json:"mean_ms"`
	StdDevMs float64 `json:"stddev_ms"`
	MaxMs    float64 `json:"max_ms"`
}

func (c *Controller) buildStatus(now time.Time, snap engine.Snapshot, d engine.Decision) Status {
	fill := FillUnknown
	if snap.LoadDistance.Valid() {
		fill = FillHasRoom
		if remote.AckForLoad(snap.LoadDistance, c.engine.Policy().NearlyFullThresholdCm) == remote.AckFull {
			fill = FillFull
		}
	}
	return Status{
		Time:          now,
		Cycle:         c.cycles,
		Mode:          d.Mode,
		Branch:        d.Branch,
		Drive:         d.Drive,
		LoadCm:        float64(snap.LoadDistance),
		ObstacleCm:    float64(snap.ObstacleDistance),
		Motion:        snap.MotionDetected,
		Fill:          fill,
		Scores:        snap.Scores,
		Best:          snap.Best,
		Locked:        d.Lock.Active(now),
		LockRemaining: d.Lock.Remaining(now).Seconds(),
		BinFullCount:  d.BinFullCount,
		Display:       d.Display,
		Timing:        c.timings.summary(),
	}
}

// timingRing keeps the most recent cycle durations.
type timingRing struct {
	mu   sync.Mutex
	buf  []float64
	next int
	full bool
}

func newTimingRing(n int) *timingRing {
	return &timingRing{buf: make([]float64, n)}
}

func (r *timingRing) add(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = float64(d) / float64(time.Millisecond)
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
}

func (r *timingRing) summary() Timing {
	r.mu.Lock()
	defer r.mu.Unlock()
	xs := r.buf[:r.next]
	if r.full {
		xs = r.buf
	}
	if len(xs) == 0 {
		return Timing{}
	}
	mean, std := stat.MeanStdDev(xs, nil)
	if len(xs) == 1 {
		std = 0
	}
	return Timing{
		Samples:  len(xs),
		MeanMs:   mean,
		StdDevMs: std,
		MaxMs:    floats.Max(xs),
	}
}
