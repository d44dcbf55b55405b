// Package controller runs the robot's sense, decide, actuate cycle. It reads
// every sensor once, asks the engine for a Decision and applies it to the
// actuators. Per-cycle faults are logged and contained; the next cycle retries.
package controller

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"sync"
	"time"

	"github.com/HansolSon1113/MakerProject/internal/actuators"
	"github.com/HansolSon1113/MakerProject/internal/engine"
	"github.com/HansolSon1113/MakerProject/internal/journal"
	"github.com/HansolSon1113/MakerProject/internal/latest"
	"github.com/HansolSon1113/MakerProject/internal/monitoring"
	"github.com/HansolSon1113/MakerProject/internal/nav"
	"github.com/HansolSon1113/MakerProject/internal/remote"
	"github.com/HansolSon1113/MakerProject/internal/sensors"
	"github.com/HansolSon1113/MakerProject/internal/timeutil"
	"github.com/HansolSon1113/MakerProject/internal/vision"
)

// DefaultCycleInterval paces the loop when Options leaves it unset.
const DefaultCycleInterval = 50 * time.Millisecond

// DistanceSensor is an ultrasonic ranger.
type DistanceSensor interface {
	Read() (sensors.Distance, error)
}

// MotionSensor is a PIR sensor.
type MotionSensor interface {
	Detected() (bool, error)
}

// Button reports debounced presses.
type Button interface {
	Pressed() (bool, error)
}

// Scorer scores the latest camera frame.
type Scorer interface {
	ScoreLatest(ctx context.Context, src vision.FrameSource) vision.Result
}

// Remote is the non-blocking operator link.
type Remote interface {
	TryReceive() (remote.Command, bool)
	Send(b byte) error
}

// Drive is the stepper drive base.
type Drive interface {
	Move(dir nav.Direction) error
	Stop() error
}

// Lid is the lid servo.
type Lid interface {
	SetAngle(target int, stepDelay time.Duration) error
	Angle() int
}

// Indicator is the status LED.
type Indicator interface {
	Set(on bool) error
}

// Tone plays note sequences.
type Tone interface {
	PlaySequence(notes []actuators.Note) error
}

// Display shows two text lines.
type Display interface {
	Show(l1, l2 string) error
}

// Recorder persists journal events.
type Recorder interface {
	Record(ctx context.Context, e journal.Event) error
}

// StatusSink receives the status after every cycle.
type StatusSink interface {
	Publish(s Status) error
}

// Hardware is every collaborator the loop drives. All fields are required.
type Hardware struct {
	Load     DistanceSensor
	Obstacle DistanceSensor
	Motion   MotionSensor
	Button   Button
	Camera   vision.FrameSource
	Scorer   Scorer
	Remote   Remote
	Drive    Drive
	Lid      Lid
	LED      Indicator
	Buzzer   Tone
	Display  Display
}

func (h Hardware) validate() error {
	var missing []string
	check := func(name string, ok bool) {
		if !ok {
			missing = append(missing, name)
		}
	}
	check("load sensor", h.Load != nil)
	check("obstacle sensor", h.Obstacle != nil)
	check("motion sensor", h.Motion != nil)
	check("button", h.Button != nil)
	check("camera", h.Camera != nil)
	check("scorer", h.Scorer != nil)
	check("remote", h.Remote != nil)
	check("drive", h.Drive != nil)
	check("lid", h.Lid != nil)
	check("led", h.LED != nil)
	check("buzzer", h.Buzzer != nil)
	check("display", h.Display != nil)
	if len(missing) > 0 {
		return fmt.Errorf("missing hardware: %v", missing)
	}
	return nil
}

// Options tunes the loop. Zero values pick defaults; Journal and Status are
// optional.
type Options struct {
	Clock         timeutil.Clock
	CycleInterval time.Duration
	Journal       Recorder
	Status        StatusSink
	// ScoreSampleEvery journals the vision scores once every N cycles.
	ScoreSampleEvery int
}

// FrameView is the last scored frame and what should be drawn on it.
type FrameView struct {
	Frame   image.Image
	Overlay vision.Overlay
	Time    time.Time
}

type closer struct {
	name string
	c    io.Closer
}

// Controller owns the engine and the hardware for the life of the process.
type Controller struct {
	hw     Hardware
	engine *engine.Engine
	clock  timeutil.Clock
	opts   Options

	cycles     uint64
	lastBranch engine.Branch
	ledSet     bool
	ledOn      bool
	faults     map[string]bool
	timings    *timingRing

	status latest.Cell[Status]
	frame  latest.Cell[FrameView]

	closeMu      sync.Mutex
	closers      []closer
	shutdownOnce sync.Once
	shutdownErr  error
}

// New validates hw and returns a controller in Standby.
func New(hw Hardware, eng *engine.Engine, opts Options) (*Controller, error) {
	if eng == nil {
		return nil, errors.New("controller: nil engine")
	}
	if err := hw.validate(); err != nil {
		return nil, err
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.CycleInterval <= 0 {
		opts.CycleInterval = DefaultCycleInterval
	}
	if opts.ScoreSampleEvery <= 0 {
		opts.ScoreSampleEvery = 20
	}
	return &Controller{
		hw:         hw,
		engine:     eng,
		clock:      opts.Clock,
		opts:       opts,
		lastBranch: -1,
		faults:     make(map[string]bool),
		timings:    newTimingRing(timingWindow),
	}, nil
}

// Engine returns the controller's engine.
func (c *Controller) Engine() *engine.Engine { return c.engine }

// Status returns the status after the most recent cycle.
func (c *Controller) Status() (Status, bool) { return c.status.Load() }

// Frame returns the most recently scored frame.
func (c *Controller) Frame() (FrameView, bool) { return c.frame.Load() }

// Run shows the startup text and cycles until ctx is done. The drive is
// stopped on every exit. A panic runs Shutdown before it propagates.
func (c *Controller) Run(ctx context.Context) error {
	defer func() {
		if r := recover(); r != nil {
			monitoring.Logf("controller: panic in control loop: %v", r)
			if err := c.Shutdown(); err != nil {
				monitoring.Logf("controller: shutdown after panic: %v", err)
			}
			panic(r)
		}
		if err := c.hw.Drive.Stop(); err != nil {
			monitoring.Logf("controller: drive stop on exit: %v", err)
		}
	}()

	c.actuate("display", c.hw.Display.Show(engine.DisplayStartup[0], engine.DisplayStartup[1]))
	c.record(ctx, journal.Event{Kind: journal.KindStartup, Mode: c.engine.Mode().String()})

	ticker := c.clock.NewTicker(c.opts.CycleInterval)
	defer ticker.Stop()
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.Cycle(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
		}
	}
}

// Cycle runs one sense, decide, actuate pass and returns the decision.
func (c *Controller) Cycle(ctx context.Context) engine.Decision {
	start := c.clock.Now()
	c.cycles++

	snap, pressed, frame := c.sense(ctx)
	cmd, _ := c.hw.Remote.TryReceive()
	if cmd != remote.None {
		monitoring.Logf("remote command: %s", cmd)
	}

	prevMode := c.engine.Mode()
	d := c.engine.Step(engine.Input{
		Now:           start,
		Snapshot:      snap,
		Command:       cmd,
		ButtonPressed: pressed,
	})

	c.journalDecision(ctx, start, snap, cmd, prevMode, d)
	c.apply(d, snap, frame)

	c.timings.add(c.clock.Since(start))
	st := c.buildStatus(start, snap, d)
	c.status.Store(st)
	if c.opts.Status != nil {
		if err := c.opts.Status.Publish(st); err != nil {
			monitoring.Debugf("status publish: %v", err)
		}
	}
	return d
}

func (c *Controller) sense(ctx context.Context) (engine.Snapshot, bool, image.Image) {
	var snap engine.Snapshot

	load, err := c.hw.Load.Read()
	if err != nil {
		monitoring.Debugf("load sensor: %v", err)
		load = sensors.NoReading
	}
	snap.LoadDistance = load

	obstacle, err := c.hw.Obstacle.Read()
	if err != nil {
		monitoring.Debugf("obstacle sensor: %v", err)
		obstacle = sensors.NoReading
	}
	snap.ObstacleDistance = obstacle

	motion, err := c.hw.Motion.Detected()
	if err != nil {
		monitoring.Debugf("motion sensor: %v", err)
		motion = false
	}
	snap.MotionDetected = motion

	pressed, err := c.hw.Button.Pressed()
	if err != nil {
		monitoring.Debugf("button: %v", err)
		pressed = false
	}

	res := c.hw.Scorer.ScoreLatest(ctx, c.hw.Camera)
	snap.Scores = res.Scores
	snap.Best = res.Best
	return snap, pressed, res.Frame
}

// apply drives the actuators in a fixed order: LED, drive, alert, display,
// acks, then the synchronous lid sequence.
func (c *Controller) apply(d engine.Decision, snap engine.Snapshot, frame image.Image) {
	if !c.ledSet || c.ledOn != d.LED {
		err := c.hw.LED.Set(d.LED)
		c.actuate("led", err)
		if err == nil {
			c.ledSet, c.ledOn = true, d.LED
		}
	}

	c.actuate("drive", c.hw.Drive.Move(d.Drive))

	if d.Alert == engine.AlertBinFull {
		monitoring.Logf("bin full")
		c.actuate("buzzer", c.hw.Buzzer.PlaySequence(actuators.BinFullTune))
	}

	c.actuate("display", c.hw.Display.Show(d.Display[0], d.Display[1]))

	for _, b := range d.Acks {
		if err := c.hw.Remote.Send(b); err != nil {
			monitoring.Debugf("remote send %d: %v", b, err)
		}
	}

	if frame != nil {
		c.frame.Store(FrameView{
			Frame: frame,
			Overlay: vision.Overlay{
				Scores: snap.Scores,
				Chosen: snap.Best,
				Status: d.Annotation.Status,
				Banner: d.Annotation.Banner,
			},
			Time: c.clock.Now(),
		})
	}

	if d.Lid != nil {
		c.runLid(*d.Lid)
	}
}

func (c *Controller) runLid(seq engine.LidSequence) {
	monitoring.Logf("lid: open to %d for %s", seq.OpenAngle, seq.Hold)
	c.actuate("lid", c.hw.Lid.SetAngle(seq.OpenAngle, seq.StepDelay))
	c.clock.Sleep(seq.Hold)

	if seq.ClosingDisplay != ([2]string{}) {
		c.actuate("display", c.hw.Display.Show(seq.ClosingDisplay[0], seq.ClosingDisplay[1]))
	}
	c.actuate("lid", c.hw.Lid.SetAngle(seq.CloseAngle, seq.StepDelay))
	c.clock.Sleep(seq.Settle)
}

// actuate logs a failing actuator once and its recovery once.
func (c *Controller) actuate(name string, err error) {
	if err != nil {
		if !c.faults[name] {
			monitoring.Logf("controller: %s failed: %v", name, err)
			c.record(context.Background(), journal.Event{
				Kind:   journal.KindFault,
				Detail: fmt.Sprintf("%s: %v", name, err),
			})
		}
		c.faults[name] = true
		return
	}
	if c.faults[name] {
		monitoring.Logf("controller: %s recovered", name)
		delete(c.faults, name)
	}
}

func (c *Controller) journalDecision(ctx context.Context, now time.Time, snap engine.Snapshot, cmd remote.Command, prevMode engine.Mode, d engine.Decision) {
	if c.opts.Journal == nil {
		return
	}
	base := journal.Event{
		Time:     now,
		Mode:     d.Mode.String(),
		Branch:   d.Branch.String(),
		Load:     float64(snap.LoadDistance),
		Obstacle: float64(snap.ObstacleDistance),
		Scores:   snap.Scores,
		Best:     snap.Best,
	}
	emit := func(kind journal.Kind, detail string) {
		e := base
		e.Kind = kind
		e.Detail = detail
		c.record(ctx, e)
	}

	if cmd != remote.None {
		emit(journal.KindCommand, cmd.String())
	}
	if d.ModeChanged {
		emit(journal.KindMode, prevMode.String()+" -> "+d.Mode.String())
	}
	if d.Branch != c.lastBranch {
		emit(journal.KindBranch, d.Branch.String())
		c.lastBranch = d.Branch
	}
	if d.Alert == engine.AlertBinFull {
		emit(journal.KindBinFull, "")
	}
	for _, b := range d.Acks {
		emit(journal.KindAck, fmt.Sprintf("%d", b))
	}
	if c.cycles%uint64(c.opts.ScoreSampleEvery) == 0 {
		emit(journal.KindScores, "")
	}
}

func (c *Controller) record(ctx context.Context, e journal.Event) {
	if c.opts.Journal == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = c.clock.Now()
	}
	if err := c.opts.Journal.Record(ctx, e); err != nil {
		monitoring.Debugf("journal: %v", err)
	}
}

// AddCloser registers a resource to release on Shutdown. Closers run in
// reverse registration order.
func (c *Controller) AddCloser(name string, cl io.Closer) {
	if cl == nil {
		return
	}
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	c.closers = append(c.closers, closer{name: name, c: cl})
}

// Shutdown stops the drive and closes every registered resource exactly
// once. Later calls return the first result.
func (c *Controller) Shutdown() error {
	c.shutdownOnce.Do(func() {
		var errs []error
		if err := c.hw.Drive.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("drive stop: %w", err))
		}
		c.record(context.Background(), journal.Event{Kind: journal.KindShutdown, Mode: c.engine.Mode().String()})

		c.closeMu.Lock()
		closers := c.closers
		c.closers = nil
		c.closeMu.Unlock()
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].c.Close(); err != nil {
				monitoring.Logf("shutdown: closing %s: %v", closers[i].name, err)
				errs = append(errs, fmt.Errorf("%s: %w", closers[i].name, err))
			}
		}
		c.shutdownErr = errors.Join(errs...)
	})
	return c.shutdownErr
}
