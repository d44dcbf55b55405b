// Package hal is the hardware context handed to every sensor and actuator
// constructor. Pins are addressed by their header name as strings ("11",
// "40"); no package keeps global pin tables.
package hal

import "errors"

// ErrClosed is returned by a Board after Close.
var ErrClosed = errors.New("hal: board closed")

// Logic levels.
const (
	Low  byte = 0
	High byte = 1
)

// DigitalWriter drives an output pin.
type DigitalWriter interface {
	DigitalWrite(pin string, level byte) error
}

// DigitalReader samples an input pin.
type DigitalReader interface {
	DigitalRead(pin string) (int, error)
}

// PWMWriter sets a pin's duty cycle on a 0-255 scale.
type PWMWriter interface {
	PwmWrite(pin string, duty byte) error
}

// ServoWriter positions a hobby servo in degrees (0-180).
type ServoWriter interface {
	ServoWrite(pin string, angle byte) error
}

// I2CDevice is a single-address I2C peripheral that accepts raw bytes.
type I2CDevice interface {
	WriteByte(b byte) error
}

// Board bundles every hardware capability the robot uses.
type Board interface {
	DigitalWriter
	DigitalReader
	PWMWriter
	ServoWriter
	// I2C opens the peripheral at address on the given bus.
	I2C(address, bus int) (I2CDevice, error)
	// Close releases the board. It is safe to call more than once.
	Close() error
}
