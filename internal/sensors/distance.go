// Package sensors reads the robot's ultrasonic rangers, PIR motion sensor and
// power button through the hal.Board hardware context.
package sensors

import (
	"errors"
	"fmt"
)

// ErrNoReading is returned when a ranger produced no usable echo.
var ErrNoReading = errors.New("sensors: no reading")

// Distance is a range reading in centimetres.
type Distance float64

// NoReading is the sentinel for a failed or timed-out measurement. It is
// negative so it can never fall inside a (0, X) trigger window.
const NoReading Distance = -1

// Valid reports whether d is a usable, strictly positive reading.
func (d Distance) Valid() bool {
	return d > 0
}

// Within reports whether d lies in the open interval (0, limit). Sentinel,
// zero, negative and NaN readings are never within any window.
func (d Distance) Within(limit float64) bool {
	return d > 0 && float64(d) < limit
}

func (d Distance) String() string {
	if !d.Valid() {
		return "n/a"
	}
	return fmt.Sprintf("%.1fcm", float64(d))
}

// Fixed is a ranger that always reports the same distance. A sentinel value
// reads as ErrNoReading.
type Fixed Distance

func (f Fixed) Read() (Distance, error) {
	if !Distance(f).Valid() {
		return NoReading, ErrNoReading
	}
	return Distance(f), nil
}
