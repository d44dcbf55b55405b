// Package actuators drives the robot's outputs: the two stepper wheels, the
// lid servo, and the alert devices (status LED, buzzer, 16x2 display).
package actuators

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HansolSon1113/MakerProject/internal/hal"
	"github.com/HansolSon1113/MakerProject/internal/monitoring"
	"github.com/HansolSon1113/MakerProject/internal/nav"
	"github.com/HansolSon1113/MakerProject/internal/timeutil"
)

// halfStep is the 8-phase half-step sequence for a 4-coil unipolar stepper.
var halfStep = [8][4]byte{
	{1, 0, 0, 0}, {1, 1, 0, 0}, {0, 1, 0, 0}, {0, 1, 1, 0},
	{0, 0, 1, 0}, {0, 0, 1, 1}, {0, 0, 0, 1}, {1, 0, 0, 1},
}

// DrivePins maps the wheel coils to header pins. LeftSign and RightSign are
// +1 or -1 to account for mirrored motor mounting.
type DrivePins struct {
	Left      [4]string
	Right     [4]string
	LeftSign  int
	RightSign int
}

// DefaultStepInterval is the delay between half-steps.
const DefaultStepInterval = time.Millisecond

// DriveBase runs both wheels from a background stepping loop. The control
// loop only swaps the target direction, so a slow cycle never stalls motor
// commutation.
type DriveBase struct {
	board    hal.DigitalWriter
	pins     DrivePins
	clock    timeutil.Clock
	interval time.Duration

	dir atomic.Int32 // nav.Direction

	// pinMu serialises coil writes between the stepping loop and Stop.
	pinMu      sync.Mutex
	leftPhase  int
	rightPhase int
	failing    bool

	closeOnce sync.Once
}

// NewDriveBase zeroes every coil and returns a stopped drive base. Call Run to
// start the stepping loop.
func NewDriveBase(board hal.DigitalWriter, clock timeutil.Clock, pins DrivePins, interval time.Duration) (*DriveBase, error) {
	if interval <= 0 {
		interval = DefaultStepInterval
	}
	if pins.LeftSign == 0 {
		pins.LeftSign = -1
	}
	if pins.RightSign == 0 {
		pins.RightSign = 1
	}
	d := &DriveBase{
		board:    board,
		pins:     pins,
		clock:    clock,
		interval: interval,
	}
	d.dir.Store(int32(nav.Stop))
	if err := d.zero(); err != nil {
		return nil, fmt.Errorf("failed to zero drive coils: %w", err)
	}
	return d, nil
}

// Move sets the target direction. Non-moving directions stop the wheels.
func (d *DriveBase) Move(dir nav.Direction) error {
	if !dir.Moving() {
		return d.Stop()
	}
	d.dir.Store(int32(dir))
	return nil
}

// Current returns the target direction.
func (d *DriveBase) Current() nav.Direction {
	return nav.Direction(d.dir.Load())
}

// Stop halts both wheels and de-energises every coil before returning.
func (d *DriveBase) Stop() error {
	d.dir.Store(int32(nav.Stop))
	d.pinMu.Lock()
	defer d.pinMu.Unlock()
	return d.zero()
}

// zero must be called with pinMu held (or before the loop starts).
func (d *DriveBase) zero() error {
	var firstErr error
	for _, pin := range append(d.pins.Left[:], d.pins.Right[:]...) {
		if err := d.board.DigitalWrite(pin, hal.Low); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("pin %s: %w", pin, err)
		}
	}
	return firstErr
}

// wheelSigns returns the phase increment for each wheel.
func (d *DriveBase) wheelSigns(dir nav.Direction) (left, right int) {
	switch dir {
	case nav.Center:
		return d.pins.LeftSign, d.pins.RightSign
	case nav.Left:
		return -d.pins.LeftSign, d.pins.RightSign
	case nav.Right:
		return d.pins.LeftSign, -d.pins.RightSign
	}
	return 0, 0
}

// step advances both wheels by one half-step in the current direction.
func (d *DriveBase) step() error {
	d.pinMu.Lock()
	defer d.pinMu.Unlock()

	dir := nav.Direction(d.dir.Load())
	if !dir.Moving() {
		return nil
	}
	ls, rs := d.wheelSigns(dir)
	d.leftPhase = (d.leftPhase + ls + 8) % 8
	d.rightPhase = (d.rightPhase + rs + 8) % 8

	for i := 0; i < 4; i++ {
		if err := d.board.DigitalWrite(d.pins.Left[i], halfStep[d.leftPhase][i]); err != nil {
			return fmt.Errorf("left coil %s: %w", d.pins.Left[i], err)
		}
		if err := d.board.DigitalWrite(d.pins.Right[i], halfStep[d.rightPhase][i]); err != nil {
			return fmt.Errorf("right coil %s: %w", d.pins.Right[i], err)
		}
	}
	return nil
}

// Run steps the wheels until ctx is cancelled, then stops them.
func (d *DriveBase) Run(ctx context.Context) {
	ticker := d.clock.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := d.Stop(); err != nil {
				monitoring.Logf("drive: stop on shutdown failed: %v", err)
			}
			return
		case <-ticker.C():
			err := d.step()
			switch {
			case err != nil && !d.failing:
				d.failing = true
				monitoring.Logf("drive: step failed: %v", err)
			case err == nil && d.failing:
				d.failing = false
				monitoring.Logf("drive: stepping recovered")
			}
		}
	}
}

// Close stops the wheels. It is safe to call more than once.
func (d *DriveBase) Close() error {
	var err error
	d.closeOnce.Do(func() {
		err = d.Stop()
	})
	return err
}
