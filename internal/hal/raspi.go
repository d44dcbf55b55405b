package hal

import (
	"fmt"
	"sync"

	"gobot.io/x/gobot/platforms/raspi"
)

// RaspiBoard is a Board backed by the gobot Raspberry Pi adaptor.
type RaspiBoard struct {
	adaptor   *raspi.Adaptor
	closeOnce sync.Once
	closeErr  error
}

// NewRaspiBoard connects to the Raspberry Pi GPIO, PWM and I2C subsystems.
func NewRaspiBoard() (*RaspiBoard, error) {
	a := raspi.NewAdaptor()
	if err := a.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect raspi adaptor: %w", err)
	}
	return &RaspiBoard{adaptor: a}, nil
}

func (b *RaspiBoard) DigitalWrite(pin string, level byte) error {
	return b.adaptor.DigitalWrite(pin, level)
}

func (b *RaspiBoard) DigitalRead(pin string) (int, error) {
	return b.adaptor.DigitalRead(pin)
}

func (b *RaspiBoard) PwmWrite(pin string, duty byte) error {
	return b.adaptor.PwmWrite(pin, duty)
}

func (b *RaspiBoard) ServoWrite(pin string, angle byte) error {
	return b.adaptor.ServoWrite(pin, angle)
}

// I2C opens an I2C connection. The gobot connection already satisfies
// I2CDevice.
func (b *RaspiBoard) I2C(address, bus int) (I2CDevice, error) {
	conn, err := b.adaptor.GetConnection(address, bus)
	if err != nil {
		return nil, fmt.Errorf("failed to open i2c 0x%02x on bus %d: %w", address, bus, err)
	}
	return conn, nil
}

// Close finalizes the adaptor, releasing exported GPIO and PWM pins.
func (b *RaspiBoard) Close() error {
	b.closeOnce.Do(func() {
		b.closeErr = b.adaptor.Finalize()
	})
	return b.closeErr
}
