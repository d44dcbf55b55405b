package sensors

import (
	"fmt"
	"time"

	"github.com/HansolSon1113/MakerProject/internal/hal"
	"github.com/HansolSon1113/MakerProject/internal/timeutil"
)

// speedOfSoundCmPerSec at roughly 20°C.
const speedOfSoundCmPerSec = 34300.0

// DefaultEchoTimeout bounds a whole measurement, trigger to falling echo.
const DefaultEchoTimeout = 40 * time.Millisecond

// Ultrasonic is an HC-SR04 style trigger/echo ranger.
type Ultrasonic struct {
	board   hal.Board
	trig    string
	echo    string
	timeout time.Duration
	clock   timeutil.Clock
}

// NewUltrasonic configures the trigger pin low and returns the ranger. A
// timeout of zero selects DefaultEchoTimeout.
func NewUltrasonic(board hal.Board, clock timeutil.Clock, trigPin, echoPin string, timeout time.Duration) (*Ultrasonic, error) {
	if timeout <= 0 {
		timeout = DefaultEchoTimeout
	}
	if err := board.DigitalWrite(trigPin, hal.Low); err != nil {
		return nil, fmt.Errorf("failed to reset trigger pin %s: %w", trigPin, err)
	}
	return &Ultrasonic{
		board:   board,
		trig:    trigPin,
		echo:    echoPin,
		timeout: timeout,
		clock:   clock,
	}, nil
}

// Read fires one 10µs trigger pulse and times the echo. It never waits longer
// than the configured timeout; on timeout it returns NoReading and
// ErrNoReading.
func (u *Ultrasonic) Read() (Distance, error) {
	if err := u.board.DigitalWrite(u.trig, hal.High); err != nil {
		return NoReading, fmt.Errorf("trigger high: %w", err)
	}
	u.clock.Sleep(10 * time.Microsecond)
	if err := u.board.DigitalWrite(u.trig, hal.Low); err != nil {
		return NoReading, fmt.Errorf("trigger low: %w", err)
	}

	start := u.clock.Now()
	deadline := start.Add(u.timeout)

	// wait for the echo line to rise
	for {
		v, err := u.board.DigitalRead(u.echo)
		if err != nil {
			return NoReading, fmt.Errorf("echo read: %w", err)
		}
		if v == 1 {
			break
		}
		start = u.clock.Now()
		if start.After(deadline) {
			return NoReading, ErrNoReading
		}
	}

	// time the pulse width
	stop := start
	for {
		v, err := u.board.DigitalRead(u.echo)
		if err != nil {
			return NoReading, fmt.Errorf("echo read: %w", err)
		}
		if v == 0 {
			break
		}
		stop = u.clock.Now()
		if stop.After(deadline) {
			return NoReading, ErrNoReading
		}
	}

	elapsed := stop.Sub(start).Seconds()
	return Distance(elapsed * speedOfSoundCmPerSec / 2), nil
}
