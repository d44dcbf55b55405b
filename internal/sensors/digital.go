package sensors

import (
	"fmt"
	"time"

	"github.com/HansolSon1113/MakerProject/internal/hal"
	"github.com/HansolSon1113/MakerProject/internal/timeutil"
)

// PIR is a passive infrared motion sensor with an active-high output.
type PIR struct {
	board hal.DigitalReader
	pin   string
}

func NewPIR(board hal.DigitalReader, pin string) *PIR {
	return &PIR{board: board, pin: pin}
}

// Detected reports whether motion is currently signalled.
func (p *PIR) Detected() (bool, error) {
	v, err := p.board.DigitalRead(p.pin)
	if err != nil {
		return false, fmt.Errorf("pir read: %w", err)
	}
	return v == 1, nil
}

// DefaultDebounce is the minimum spacing between accepted button presses.
const DefaultDebounce = 300 * time.Millisecond

// Button is a pulled-up push button; pressing it pulls the line low.
type Button struct {
	board     hal.DigitalReader
	pin       string
	clock     timeutil.Clock
	debounce  time.Duration
	lastLevel int
	lastPress time.Time
}

func NewButton(board hal.DigitalReader, clock timeutil.Clock, pin string, debounce time.Duration) *Button {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Button{
		board:     board,
		pin:       pin,
		clock:     clock,
		debounce:  debounce,
		lastLevel: 1,
	}
}

// Pressed reports a falling edge at most once per physical press, ignoring
// edges that arrive within the debounce window of the previous accepted one.
func (b *Button) Pressed() (bool, error) {
	level, err := b.board.DigitalRead(b.pin)
	if err != nil {
		return false, fmt.Errorf("button read: %w", err)
	}

	detected := false
	if b.lastLevel == 1 && level == 0 {
		now := b.clock.Now()
		if b.lastPress.IsZero() || now.Sub(b.lastPress) > b.debounce {
			detected = true
			b.lastPress = now
		}
	}
	b.lastLevel = level
	return detected, nil
}
