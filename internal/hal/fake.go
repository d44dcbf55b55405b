package hal

import (
	"errors"
	"sync"
)

// Write records one output operation on a FakeBoard.
type Write struct {
	Pin   string
	Kind  string // "digital", "pwm" or "servo"
	Value byte
}

// FakeBoard is an in-memory Board for tests and -dev runs. Outputs are
// recorded; inputs come from per-pin reader functions.
type FakeBoard struct {
	mu      sync.Mutex
	levels  map[string]byte
	writes  []Write
	readers map[string]func() int
	i2c     map[int]*FakeI2C
	errs    map[string]error
	closed  bool

	// CloseCalls counts Close invocations.
	CloseCalls int
}

// NewFakeBoard returns an empty FakeBoard; every input reads Low.
func NewFakeBoard() *FakeBoard {
	return &FakeBoard{
		levels:  make(map[string]byte),
		readers: make(map[string]func() int),
		i2c:     make(map[int]*FakeI2C),
		errs:    make(map[string]error),
	}
}

// SetInput installs a reader for an input pin.
func (b *FakeBoard) SetInput(pin string, read func() int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.readers[pin] = read
}

// SetLevel makes an input pin read a constant level.
func (b *FakeBoard) SetLevel(pin string, level int) {
	b.SetInput(pin, func() int { return level })
}

// FailPin makes every operation on pin return err until cleared with nil.
func (b *FakeBoard) FailPin(pin string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.errs, pin)
		return
	}
	b.errs[pin] = err
}

func (b *FakeBoard) record(pin, kind string, v byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if err := b.errs[pin]; err != nil {
		return err
	}
	b.levels[pin] = v
	b.writes = append(b.writes, Write{Pin: pin, Kind: kind, Value: v})
	return nil
}

func (b *FakeBoard) DigitalWrite(pin string, level byte) error {
	return b.record(pin, "digital", level)
}

func (b *FakeBoard) PwmWrite(pin string, duty byte) error {
	return b.record(pin, "pwm", duty)
}

func (b *FakeBoard) ServoWrite(pin string, angle byte) error {
	return b.record(pin, "servo", angle)
}

func (b *FakeBoard) DigitalRead(pin string) (int, error) {
	b.mu.Lock()
	read, ok := b.readers[pin]
	err := b.errs[pin]
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return read(), nil
}

// Level returns the last value written to pin.
func (b *FakeBoard) Level(pin string) byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.levels[pin]
}

// Writes returns a copy of every recorded write, optionally filtered by pin.
func (b *FakeBoard) Writes(pins ...string) []Write {
	b.mu.Lock()
	defer b.mu.Unlock()
	want := make(map[string]bool, len(pins))
	for _, p := range pins {
		want[p] = true
	}
	var out []Write
	for _, w := range b.writes {
		if len(pins) == 0 || want[w.Pin] {
			out = append(out, w)
		}
	}
	return out
}

// ResetWrites forgets recorded writes but keeps current levels.
func (b *FakeBoard) ResetWrites() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writes = nil
}

func (b *FakeBoard) I2C(address, bus int) (I2CDevice, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	dev, ok := b.i2c[address]
	if !ok {
		dev = &FakeI2C{}
		b.i2c[address] = dev
	}
	return dev, nil
}

// I2CDevice returns the fake peripheral opened at address, if any.
func (b *FakeBoard) I2CDevice(address int) *FakeI2C {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.i2c[address]
}

func (b *FakeBoard) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.CloseCalls++
	b.closed = true
	return nil
}

// FakeI2C records bytes written to an I2C address.
type FakeI2C struct {
	mu    sync.Mutex
	bytes []byte
	Err   error
}

func (d *FakeI2C) WriteByte(v byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return d.Err
	}
	d.bytes = append(d.bytes, v)
	return nil
}

// Bytes returns a copy of the bytes written so far.
func (d *FakeI2C) Bytes() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.bytes...)
}

// ErrFakeWrite is a convenience error for FailPin.
var ErrFakeWrite = errors.New("fake write failure")
