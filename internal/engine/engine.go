package engine

import (
	"fmt"

	"github.com/HansolSon1113/MakerProject/internal/nav"
	"github.com/HansolSon1113/MakerProject/internal/remote"
	"github.com/HansolSon1113/MakerProject/internal/sensors"
)

// Display texts.
var (
	DisplayStartup    = [2]string{"System Ready", "Waiting BT..."}
	DisplayStandby    = [2]string{"Standby Mode", "BT Ready"}
	DisplayBinFull    = [2]string{"!! BIN FULL !!", "Please Empty"}
	DisplayMotionOpen = [2]string{"Motion Detect", "Opening..."}
	DisplayMotionShut = [2]string{"Motion Detect", "Closing..."}
)

// Frame banners.
const (
	BannerBinFull  = "BIN FULL!"
	BannerObstacle = "OBSTACLE"
)

// Engine owns the mode, the navigation lock and the bin-full counter. It is
// not safe for concurrent use; the control loop is its only caller.
type Engine struct {
	policy  Policy
	mode    Mode
	lock    LockState
	binFull int
}

// New returns an engine in Standby.
func New(p Policy) (*Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}
	return &Engine{policy: p, mode: Standby}, nil
}

// Policy returns the engine's policy.
func (e *Engine) Policy() Policy { return e.policy }

// Mode returns the current mode.
func (e *Engine) Mode() Mode { return e.mode }

// Lock returns the current navigation lock.
func (e *Engine) Lock() LockState { return e.lock }

// BinFullCount returns the consecutive in-range load cycles so far.
func (e *Engine) BinFullCount() int { return e.binFull }

// Step runs one arbitration cycle.
func (e *Engine) Step(in Input) Decision {
	prevMode := e.mode
	if in.ButtonPressed {
		if e.mode == Active {
			e.mode = Standby
		} else {
			e.mode = Active
		}
	}

	var acks []byte
	switch in.Command {
	case remote.PowerOff:
		e.mode = Standby
	case remote.PowerOn:
		e.mode = Active
	case remote.QueryLoadStatus:
		acks = append(acks, remote.AckForLoad(in.Snapshot.LoadDistance, e.policy.NearlyFullThresholdCm))
	}

	d := e.arbitrate(in)
	d.Mode = e.mode
	d.ModeChanged = e.mode != prevMode
	d.LED = e.mode == Active
	d.Acks = append(acks, d.Acks...)
	d.Lock = e.lock
	d.BinFullCount = e.binFull
	return d
}

func (e *Engine) arbitrate(in Input) Decision {
	s := in.Snapshot
	p := e.policy

	eligible := e.mode == Active || p.BinFullInStandby
	if eligible && s.LoadDistance.Within(p.FullThresholdCm) {
		e.binFull++
	} else if eligible {
		e.binFull = 0
	}
	if eligible && e.binFull >= p.RequiredConsecutiveCycles {
		e.binFull = 0
		e.lock = LockState{}
		return Decision{
			Branch:  BranchBinFull,
			Drive:   nav.Stop,
			Alert:   AlertBinFull,
			Display: DisplayBinFull,
			Lid: &LidSequence{
				OpenAngle:  p.LidOpenAngle,
				CloseAngle: p.LidClosedAngle,
				Hold:       p.BinFullHold,
				Settle:     p.LidSettle,
				StepDelay:  p.LidStepDelay,
			},
			Annotation: Annotation{Status: "STOP", Banner: BannerBinFull},
			Acks:       []byte{remote.AckFull},
		}
	}

	if e.mode != Active {
		if !p.BinFullInStandby {
			e.binFull = 0
		}
		e.lock = LockState{}
		return Decision{
			Branch:     BranchStandby,
			Drive:      nav.Stop,
			Display:    DisplayStandby,
			Annotation: Annotation{Status: "STANDBY"},
		}
	}

	if s.MotionDetected && s.ObstacleDistance.Within(p.MotionOpenRangeCm) {
		e.lock = LockState{}
		return Decision{
			Branch:  BranchMotionLid,
			Drive:   nav.Stop,
			Display: DisplayMotionOpen,
			Lid: &LidSequence{
				OpenAngle:      p.LidOpenAngle,
				CloseAngle:     p.LidClosedAngle,
				Hold:           p.MotionOpenHold,
				Settle:         p.LidSettle,
				StepDelay:      p.LidStepDelay,
				ClosingDisplay: DisplayMotionShut,
			},
			Annotation: Annotation{Status: "STOP"},
		}
	}

	if s.ObstacleDistance.Within(p.ObstacleStopCm) {
		e.lock = LockState{}
		return Decision{
			Branch:     BranchObstacle,
			Drive:      nav.Stop,
			Display:    [2]string{"OBSTACLE", fmt.Sprintf("F:%dcm", int(s.ObstacleDistance))},
			Annotation: Annotation{Status: "STOP", Banner: BannerObstacle},
		}
	}

	drive, status := e.navigate(in)
	return Decision{
		Branch:     BranchNavigate,
		Drive:      drive,
		Display:    [2]string{"Run: " + ActionName(drive), LoadLine(s.LoadDistance)},
		Annotation: Annotation{Status: status},
	}
}

func (e *Engine) navigate(in Input) (nav.Direction, string) {
	best := in.Snapshot.Best
	if e.policy.Navigation == NavigationReactive {
		if !best.Moving() {
			return nav.Stop, "FREE: " + nav.None.String()
		}
		return best, "FREE: " + best.String()
	}

	if !e.lock.Active(in.Now) {
		e.lock = LockState{}
		if !best.Moving() {
			return nav.Stop, "FREE: " + nav.None.String()
		}
		e.lock = LockState{Current: best, Expiry: in.Now.Add(e.policy.LockDuration)}
	}
	return e.lock.Current, fmt.Sprintf("LOCKED: %s (%.1fs)", e.lock.Current, e.lock.Remaining(in.Now).Seconds())
}

// ActionName is the drive action shown on the display.
func ActionName(d nav.Direction) string {
	switch d {
	case nav.Left:
		return "left"
	case nav.Center:
		return "forward"
	case nav.Right:
		return "right"
	}
	return "stop"
}

// LoadLine formats the load distance for the second display line.
func LoadLine(d sensors.Distance) string {
	if !d.Valid() {
		return "L:Err"
	}
	return fmt.Sprintf("L:%dcm", int(d))
}
