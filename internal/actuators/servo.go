package actuators

import (
	"fmt"
	"sync"
	"time"

	"github.com/HansolSon1113/MakerProject/internal/hal"
	"github.com/HansolSon1113/MakerProject/internal/timeutil"
)

// ServoBoard is the subset of hal.Board a servo needs.
type ServoBoard interface {
	hal.ServoWriter
	hal.PWMWriter
}

// DefaultServoSettle is how long the final angle is held before the pulse
// train is relaxed.
const DefaultServoSettle = 300 * time.Millisecond

// Servo is the lid servo.
type Servo struct {
	board   ServoBoard
	clock   timeutil.Clock
	pin     string
	settle  time.Duration
	current int

	closeOnce sync.Once
}

// NewServo moves the servo instantly to initAngle.
func NewServo(board ServoBoard, clock timeutil.Clock, pin string, initAngle int, settle time.Duration) (*Servo, error) {
	if settle <= 0 {
		settle = DefaultServoSettle
	}
	s := &Servo{board: board, clock: clock, pin: pin, settle: settle, current: initAngle}
	if err := s.SetAngleInstant(initAngle); err != nil {
		return nil, fmt.Errorf("failed to set initial servo angle: %w", err)
	}
	return s, nil
}

// Angle returns the last angle that was fully written.
func (s *Servo) Angle() int {
	return s.current
}

// SetAngle sweeps one degree at a time from the current angle towards target,
// pausing stepDelay between degrees, then writes target.
func (s *Servo) SetAngle(target int, stepDelay time.Duration) error {
	target = clampAngle(target)
	if target == s.current {
		return nil
	}
	step := 1
	if target < s.current {
		step = -1
	}
	for a := s.current; a != target; a += step {
		if err := s.board.ServoWrite(s.pin, byte(a)); err != nil {
			return fmt.Errorf("servo sweep at %d°: %w", a, err)
		}
		s.clock.Sleep(stepDelay)
	}
	return s.write(target)
}

// SetAngleInstant skips interpolation.
func (s *Servo) SetAngleInstant(target int) error {
	return s.write(clampAngle(target))
}

func (s *Servo) write(angle int) error {
	if err := s.board.ServoWrite(s.pin, byte(angle)); err != nil {
		return fmt.Errorf("servo write %d°: %w", angle, err)
	}
	s.clock.Sleep(s.settle)
	if err := s.board.PwmWrite(s.pin, 0); err != nil {
		return fmt.Errorf("servo relax: %w", err)
	}
	s.current = angle
	return nil
}

// Close relaxes the servo output. It is safe to call more than once.
func (s *Servo) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.board.PwmWrite(s.pin, 0)
	})
	return err
}

func clampAngle(a int) int {
	if a < 0 {
		return 0
	}
	if a > 180 {
		return 180
	}
	return a
}
