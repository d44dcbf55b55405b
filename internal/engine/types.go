// Package engine is the robot's arbitration logic. Engine.Step consumes one
// cycle's sensor snapshot and inputs and returns a Decision; it never touches
// hardware and never blocks, so every branch is testable with plain values.
package engine

import (
	"fmt"
	"time"

	"github.com/HansolSon1113/MakerProject/internal/nav"
	"github.com/HansolSon1113/MakerProject/internal/remote"
	"github.com/HansolSon1113/MakerProject/internal/sensors"
)

// Mode is the operator-selected system mode.
type Mode int

const (
	Standby Mode = iota
	Active
)

func (m Mode) String() string {
	switch m {
	case Standby:
		return "standby"
	case Active:
		return "active"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// Branch identifies which arbitration rule produced a Decision.
type Branch int

const (
	BranchStandby Branch = iota
	BranchBinFull
	BranchMotionLid
	BranchObstacle
	BranchNavigate
)

func (b Branch) String() string {
	switch b {
	case BranchStandby:
		return "standby"
	case BranchBinFull:
		return "bin-full"
	case BranchMotionLid:
		return "motion-lid"
	case BranchObstacle:
		return "obstacle"
	case BranchNavigate:
		return "navigate"
	default:
		return fmt.Sprintf("Branch(%d)", int(b))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (b Branch) MarshalText() ([]byte, error) { return []byte(b.String()), nil }

// AlertEvent is an audible alert to play.
type AlertEvent int

const (
	AlertNone AlertEvent = iota
	AlertBinFull
)

func (a AlertEvent) String() string {
	if a == AlertBinFull {
		return "bin-full"
	}
	return "none"
}

// LidSequence is a synchronous open, hold, close run of the lid servo.
type LidSequence struct {
	OpenAngle  int
	CloseAngle int
	Hold       time.Duration
	Settle     time.Duration
	StepDelay  time.Duration
	// ClosingDisplay replaces the display when the lid starts closing. Empty
	// lines leave the display as it was.
	ClosingDisplay [2]string
}

// Snapshot is every sensor reading for one cycle.
type Snapshot struct {
	LoadDistance     sensors.Distance
	ObstacleDistance sensors.Distance
	MotionDetected   bool
	Scores           nav.ZoneScores
	Best             nav.Direction
}

// Input is everything Step needs for one cycle.
type Input struct {
	Now           time.Time
	Snapshot      Snapshot
	Command       remote.Command
	ButtonPressed bool
}

// LockState is the latched navigation direction. A zero Expiry means no lock.
type LockState struct {
	Current nav.Direction
	Expiry  time.Time
}

// Active reports whether the lock holds at now.
func (l LockState) Active(now time.Time) bool {
	return !l.Expiry.IsZero() && now.Before(l.Expiry)
}

// Remaining returns the time left on the lock at now.
func (l LockState) Remaining(now time.Time) time.Duration {
	if !l.Active(now) {
		return 0
	}
	return l.Expiry.Sub(now)
}

// Annotation is drawn on the debug frame.
type Annotation struct {
	Status string
	Banner string
}

// Decision is the complete output of one cycle.
type Decision struct {
	Mode        Mode
	ModeChanged bool
	Branch      Branch
	Drive       nav.Direction
	Lid         *LidSequence
	Alert       AlertEvent
	Display     [2]string
	Annotation  Annotation
	// Acks are status bytes for the remote peer, in send order.
	Acks []byte
	// LED mirrors Mode.
	LED          bool
	Lock         LockState
	BinFullCount int
}
