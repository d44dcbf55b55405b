package actuators

import (
	"fmt"
	"sync"
	"time"

	"github.com/HansolSon1113/MakerProject/internal/hal"
	"github.com/HansolSon1113/MakerProject/internal/timeutil"
)

// LED is a single status LED.
type LED struct {
	board hal.DigitalWriter
	pin   string
	on    bool
}

// NewLED returns an LED that starts off.
func NewLED(board hal.DigitalWriter, pin string) (*LED, error) {
	l := &LED{board: board, pin: pin}
	if err := l.Set(false); err != nil {
		return nil, err
	}
	return l, nil
}

// Set switches the LED.
func (l *LED) Set(on bool) error {
	level := hal.Low
	if on {
		level = hal.High
	}
	if err := l.board.DigitalWrite(l.pin, level); err != nil {
		return fmt.Errorf("led %s: %w", l.pin, err)
	}
	l.on = on
	return nil
}

// On reports the last state written.
func (l *LED) On() bool { return l.on }

// Close switches the LED off.
func (l *LED) Close() error { return l.Set(false) }

// Notes maps note names to frequencies in Hz.
var Notes = map[string]float64{
	"C4": 261, "D4": 293, "E4": 329, "F4": 349,
	"G4": 392, "A4": 440, "B4": 493, "C5": 523,
}

// Note is one tone in a sequence. Gap is the silence after the tone.
type Note struct {
	Name     string
	Duration time.Duration
	Gap      time.Duration
}

// BinFullTune is the alert played before the bin-full lid sequence.
var BinFullTune = []Note{
	{Name: "C4", Duration: 100 * time.Millisecond, Gap: 50 * time.Millisecond},
	{Name: "E4", Duration: 100 * time.Millisecond, Gap: 50 * time.Millisecond},
	{Name: "G4", Duration: 100 * time.Millisecond, Gap: 50 * time.Millisecond},
	{Name: "C5", Duration: 200 * time.Millisecond},
}

// Buzzer is a passive piezo driven with a software square wave.
type Buzzer struct {
	board hal.DigitalWriter
	clock timeutil.Clock
	pin   string
	mu    sync.Mutex
}

// NewBuzzer returns a silent buzzer.
func NewBuzzer(board hal.DigitalWriter, clock timeutil.Clock, pin string) (*Buzzer, error) {
	b := &Buzzer{board: board, clock: clock, pin: pin}
	if err := board.DigitalWrite(pin, hal.Low); err != nil {
		return nil, fmt.Errorf("buzzer %s: %w", pin, err)
	}
	return b, nil
}

// PlayNote sounds a named note for d. Unknown names are silent rests.
func (b *Buzzer) PlayNote(name string, d time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tone(Notes[name], d)
}

// PlaySequence plays notes in order, stopping at the first write error.
func (b *Buzzer) PlaySequence(notes []Note) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, n := range notes {
		if err := b.tone(Notes[n.Name], n.Duration); err != nil {
			return err
		}
		if n.Gap > 0 {
			b.clock.Sleep(n.Gap)
		}
	}
	return nil
}

func (b *Buzzer) tone(freq float64, d time.Duration) error {
	if freq <= 0 {
		b.clock.Sleep(d)
		return nil
	}
	half := time.Duration(float64(time.Second) / freq / 2)
	end := b.clock.Now().Add(d)
	for b.clock.Now().Before(end) {
		if err := b.board.DigitalWrite(b.pin, hal.High); err != nil {
			return fmt.Errorf("buzzer %s: %w", b.pin, err)
		}
		b.clock.Sleep(half)
		if err := b.board.DigitalWrite(b.pin, hal.Low); err != nil {
			return fmt.Errorf("buzzer %s: %w", b.pin, err)
		}
		b.clock.Sleep(half)
	}
	return nil
}

// Close silences the buzzer.
func (b *Buzzer) Close() error {
	return b.board.DigitalWrite(b.pin, hal.Low)
}
