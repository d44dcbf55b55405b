package actuators

import (
	"fmt"
	"strings"
	"time"

	"github.com/HansolSon1113/MakerProject/internal/hal"
	"github.com/HansolSon1113/MakerProject/internal/timeutil"
)

// DisplayWidth is the number of characters per line.
const DisplayWidth = 16

// HD44780 behind a PCF8574 backpack, 4-bit mode.
const (
	lcdBacklight = 0x08
	lcdEnable    = 0x04
	lcdModeCmd   = 0x00
	lcdModeChr   = 0x01
	lcdClear     = 0x01
	lcdLine1     = 0x80
	lcdLine2     = 0xC0
	lcdPulse     = 500 * time.Microsecond
)

var lcdInit = []byte{0x33, 0x32, 0x06, 0x0C, 0x28, lcdClear}

// LCD is a 16x2 character display on an I2C backpack.
type LCD struct {
	dev   hal.I2CDevice
	clock timeutil.Clock
}

// NewLCD runs the controller init sequence and clears the screen.
func NewLCD(dev hal.I2CDevice, clock timeutil.Clock) (*LCD, error) {
	l := &LCD{dev: dev, clock: clock}
	for _, cmd := range lcdInit {
		if err := l.send(cmd, lcdModeCmd); err != nil {
			return nil, fmt.Errorf("lcd init: %w", err)
		}
	}
	return l, nil
}

// WriteLine replaces line 0 or 1 with text padded or cut to DisplayWidth.
func (l *LCD) WriteLine(line int, text string) error {
	addr := byte(lcdLine1)
	if line == 1 {
		addr = lcdLine2
	}
	if err := l.send(addr, lcdModeCmd); err != nil {
		return err
	}
	for _, c := range []byte(FitLine(text)) {
		if err := l.send(c, lcdModeChr); err != nil {
			return err
		}
	}
	return nil
}

// Clear blanks both lines.
func (l *LCD) Clear() error {
	return l.send(lcdClear, lcdModeCmd)
}

func (l *LCD) send(bits, mode byte) error {
	high := mode | bits&0xF0 | lcdBacklight
	low := mode | (bits<<4)&0xF0 | lcdBacklight
	if err := l.strobe(high); err != nil {
		return err
	}
	return l.strobe(low)
}

func (l *LCD) strobe(b byte) error {
	if err := l.dev.WriteByte(b); err != nil {
		return fmt.Errorf("lcd write: %w", err)
	}
	l.clock.Sleep(lcdPulse)
	if err := l.dev.WriteByte(b | lcdEnable); err != nil {
		return fmt.Errorf("lcd write: %w", err)
	}
	l.clock.Sleep(lcdPulse)
	if err := l.dev.WriteByte(b &^ lcdEnable); err != nil {
		return fmt.Errorf("lcd write: %w", err)
	}
	l.clock.Sleep(lcdPulse)
	return nil
}

// FitLine pads or truncates s to DisplayWidth and replaces characters the
// controller cannot show with '?'.
func FitLine(s string) string {
	var b strings.Builder
	for _, r := range s {
		if b.Len() == DisplayWidth {
			break
		}
		if r < 0x20 || r > 0x7E {
			r = '?'
		}
		b.WriteRune(r)
	}
	for b.Len() < DisplayWidth {
		b.WriteByte(' ')
	}
	return b.String()
}

// LineWriter is the device side of a Display.
type LineWriter interface {
	WriteLine(line int, text string) error
	Clear() error
}

// Display caches the two lines shown and only rewrites lines that changed.
type Display struct {
	dev   LineWriter
	lines [2]string
	valid [2]bool
}

// NewDisplay wraps dev.
func NewDisplay(dev LineWriter) *Display {
	return &Display{dev: dev}
}

// Show puts l1 and l2 on screen. A failed line is retried on the next call.
func (d *Display) Show(l1, l2 string) error {
	var firstErr error
	for i, text := range [2]string{FitLine(l1), FitLine(l2)} {
		if d.valid[i] && d.lines[i] == text {
			continue
		}
		if err := d.dev.WriteLine(i, text); err != nil {
			d.valid[i] = false
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		d.lines[i] = text
		d.valid[i] = true
	}
	return firstErr
}

// Lines returns what the display currently shows.
func (d *Display) Lines() [2]string {
	return d.lines
}

// Close clears the screen.
func (d *Display) Close() error {
	d.valid = [2]bool{}
	d.lines = [2]string{}
	return d.dev.Clear()
}
