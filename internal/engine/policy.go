package engine

import (
	"errors"
	"fmt"
	"time"
)

// Navigation selects how free driving follows the vision signal.
type Navigation string

const (
	// NavigationReactive follows the best direction every cycle.
	NavigationReactive Navigation = "reactive"
	// NavigationLocked commits to a chosen direction for LockDuration.
	NavigationLocked Navigation = "locked"
)

// Policy holds every threshold and behaviour switch of the engine.
type Policy struct {
	FullThresholdCm           float64
	NearlyFullThresholdCm     float64
	MotionOpenRangeCm         float64
	ObstacleStopCm            float64
	RequiredConsecutiveCycles int
	BinFullInStandby          bool
	Navigation                Navigation
	LockDuration              time.Duration

	LidOpenAngle   int
	LidClosedAngle int
	LidStepDelay   time.Duration
	LidSettle      time.Duration
	BinFullHold    time.Duration
	MotionOpenHold time.Duration
}

// DefaultPolicy is the latched-navigation configuration.
func DefaultPolicy() Policy {
	return Policy{
		FullThresholdCm:           1.5,
		NearlyFullThresholdCm:     3,
		MotionOpenRangeCm:         5,
		ObstacleStopCm:            10,
		RequiredConsecutiveCycles: 5,
		BinFullInStandby:          false,
		Navigation:                NavigationLocked,
		LockDuration:              5 * time.Second,

		LidOpenAngle:   180,
		LidClosedAngle: 90,
		LidStepDelay:   10 * time.Millisecond,
		LidSettle:      time.Second,
		BinFullHold:    10 * time.Second,
		MotionOpenHold: 5 * time.Second,
	}
}

// Validate reports the first inconsistent setting.
func (p Policy) Validate() error {
	for _, t := range []struct {
		name string
		v    float64
	}{
		{"full threshold", p.FullThresholdCm},
		{"nearly-full threshold", p.NearlyFullThresholdCm},
		{"motion open range", p.MotionOpenRangeCm},
		{"obstacle stop range", p.ObstacleStopCm},
	} {
		if !(t.v > 0) {
			return fmt.Errorf("%s must be positive, got %v", t.name, t.v)
		}
	}
	if p.RequiredConsecutiveCycles < 1 {
		return fmt.Errorf("required consecutive cycles must be at least 1, got %d", p.RequiredConsecutiveCycles)
	}
	switch p.Navigation {
	case NavigationReactive:
	case NavigationLocked:
		if p.LockDuration <= 0 {
			return errors.New("lock duration must be positive for locked navigation")
		}
	default:
		return fmt.Errorf("unknown navigation policy %q", p.Navigation)
	}
	for _, a := range []int{p.LidOpenAngle, p.LidClosedAngle} {
		if a < 0 || a > 180 {
			return fmt.Errorf("lid angle %d outside 0-180", a)
		}
	}
	for _, t := range []struct {
		name string
		d    time.Duration
	}{
		{"lid step delay", p.LidStepDelay},
		{"lid settle", p.LidSettle},
		{"bin-full hold", p.BinFullHold},
		{"motion open hold", p.MotionOpenHold},
	} {
		if t.d < 0 {
			return fmt.Errorf("%s must not be negative", t.name)
		}
	}
	return nil
}
