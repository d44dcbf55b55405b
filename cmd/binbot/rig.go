package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/HansolSon1113/MakerProject/internal/actuators"
	"github.com/HansolSon1113/MakerProject/internal/config"
	"github.com/HansolSon1113/MakerProject/internal/controller"
	"github.com/HansolSon1113/MakerProject/internal/fsutil"
	"github.com/HansolSon1113/MakerProject/internal/hal"
	"github.com/HansolSon1113/MakerProject/internal/remote"
	"github.com/HansolSon1113/MakerProject/internal/sensors"
	"github.com/HansolSon1113/MakerProject/internal/timeutil"
	"github.com/HansolSon1113/MakerProject/internal/vision"
)

const (
	cameraRestartDelay = 2 * time.Second
	syntheticDwell     = 3 * time.Second
)

type namedCloser struct {
	name string
	c    io.Closer
}

// closerStack collects resources during startup so a failed start can
// release everything opened so far.
type closerStack struct {
	items []namedCloser
}

func (s *closerStack) push(name string, c io.Closer) {
	s.items = append(s.items, namedCloser{name, c})
}

// closeAll closes in reverse order.
func (s *closerStack) closeAll() error {
	var errs []error
	for i := len(s.items) - 1; i >= 0; i-- {
		if err := s.items[i].c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.items[i].name, err))
		}
	}
	s.items = nil
	return errors.Join(errs...)
}

// moveTo hands every resource to the controller's shutdown path.
func (s *closerStack) moveTo(ctrl *controller.Controller) {
	for _, it := range s.items {
		ctrl.AddCloser(it.name, it.c)
	}
	s.items = nil
}

// frameProducer is a camera: Start reports a launch failure, Run supervises
// it afterwards.
type frameProducer interface {
	Start(ctx context.Context) error
	Run(ctx context.Context) error
}

type rig struct {
	hw     controller.Hardware
	board  hal.Board
	drive  *actuators.DriveBase
	remote *remote.Channel
	camera frameProducer
}

// start launches the camera, the drive stepper and the remote supervisor. A
// camera that cannot be launched is a startup fault.
func (r *rig) start(ctx context.Context, wg *sync.WaitGroup) error {
	if err := r.camera.Start(ctx); err != nil {
		return fmt.Errorf("camera: %w", err)
	}
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.drive.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := r.camera.Run(ctx); err != nil {
			log.Printf("camera stopped: %v", err)
		}
	}()
	r.remote.Start(ctx)
	return nil
}

// buildRig opens the board and every driver. Each opened resource is pushed
// onto cleanup as soon as it exists.
func buildRig(cfg *config.RobotConfig, dev bool, clock timeutil.Clock, cleanup *closerStack) (*rig, error) {
	r := &rig{}

	if dev {
		fb := hal.NewFakeBoard()
		// Pulled-up button at rest.
		fb.SetLevel(cfg.GetButtonPin(), 1)
		r.board = fb
	} else {
		rb, err := hal.NewRaspiBoard()
		if err != nil {
			return nil, err
		}
		r.board = rb
	}
	cleanup.push("board", r.board)

	if dev {
		r.hw.Load = sensors.Fixed(30)
		r.hw.Obstacle = sensors.Fixed(sensors.NoReading)
	} else {
		load, err := sensors.NewUltrasonic(r.board, clock, cfg.GetLoadTrigPin(), cfg.GetLoadEchoPin(), cfg.GetEchoTimeout())
		if err != nil {
			return nil, fmt.Errorf("load sensor: %w", err)
		}
		obstacle, err := sensors.NewUltrasonic(r.board, clock, cfg.GetObstacleTrigPin(), cfg.GetObstacleEchoPin(), cfg.GetEchoTimeout())
		if err != nil {
			return nil, fmt.Errorf("obstacle sensor: %w", err)
		}
		r.hw.Load, r.hw.Obstacle = load, obstacle
	}
	r.hw.Motion = sensors.NewPIR(r.board, cfg.GetPIRPin())
	r.hw.Button = sensors.NewButton(r.board, clock, cfg.GetButtonPin(), cfg.GetButtonDebounce())

	drive, err := actuators.NewDriveBase(r.board, clock, actuators.DrivePins{
		Left:      cfg.GetLeftMotorPins(),
		Right:     cfg.GetRightMotorPins(),
		LeftSign:  cfg.GetLeftMotorSign(),
		RightSign: cfg.GetRightMotorSign(),
	}, cfg.GetStepInterval())
	if err != nil {
		return nil, fmt.Errorf("drive base: %w", err)
	}
	cleanup.push("drive", drive)
	r.drive, r.hw.Drive = drive, drive

	servo, err := actuators.NewServo(r.board,
		clock, cfg.GetServoPin(), cfg.GetLidClosedAngle(), cfg.GetServoSettle())
	if err != nil {
		return nil, fmt.Errorf("lid servo: %w", err)
	}
	cleanup.push("lid servo", servo)
	r.hw.Lid = servo

	led, err := actuators.NewLED(r.board, cfg.GetLEDPin())
	if err != nil {
		return nil, fmt.Errorf("status led: %w", err)
	}
	cleanup.push("status led", led)
	r.hw.LED = led

	buzzer, err := actuators.NewBuzzer(r.board, clock, cfg.GetBuzzerPin())
	if err != nil {
		return nil, fmt.Errorf("buzzer: %w", err)
	}
	cleanup.push("buzzer", buzzer)
	r.hw.Buzzer = buzzer

	i2c, err := r.board.I2C(cfg.GetLCDAddress(), cfg.GetLCDBus())
	if err != nil {
		return nil, fmt.Errorf("lcd: %w", err)
	}
	lcd, err := actuators.NewLCD(i2c, clock)
	if err != nil {
		return nil, fmt.Errorf("lcd: %w", err)
	}
	display := actuators.NewDisplay(lcd)
	cleanup.push("display", display)
	r.hw.Display = display

	transport, err := openTransport(cfg, dev)
	if err != nil {
		return nil, fmt.Errorf("remote: %w", err)
	}
	r.remote = remote.NewChannel(transport)
	cleanup.push("remote", r.remote)
	r.hw.Remote = r.remote

	var classifier vision.Classifier
	if dev {
		synth := vision.NewSyntheticCamera(vision.FrameWidth, vision.FrameHeight, syntheticDwell)
		r.camera, r.hw.Camera = synth, synth
		classifier = vision.LumaClassifier{}
	} else {
		cam := vision.NewCamera(cfg.GetCameraCommand(), cameraRestartDelay)
		r.camera, r.hw.Camera = cam, cam

		assets, err := vision.LoadAssets(fsutil.OSFileSystem{}, cfg.GetModelPath(), cfg.GetLabelsPath(),
			cfg.GetTargetClassIndex(), cfg.GetModelInputWidth(), cfg.GetModelInputHeight())
		if err != nil {
			return nil, fmt.Errorf("classifier assets: %w", err)
		}
		assets.Output = cfg.GetModelOutputType()
		log.Printf("model %s (%d bytes, %s output), target class %q", assets.ModelName, assets.ModelSize, assets.Output, assets.TargetLabel())
		grpcClassifier, err := vision.DialClassifier(cfg.GetClassifierAddress(), assets)
		if err != nil {
			return nil, fmt.Errorf("classifier: %w", err)
		}
		cleanup.push("classifier", grpcClassifier)
		classifier = grpcClassifier
	}
	r.hw.Scorer = vision.NewScorer(classifier, cfg.GetVisionThreshold(), cfg.GetClassifyTimeout())

	return r, nil
}

func openTransport(cfg *config.RobotConfig, dev bool) (remote.Transport, error) {
	kind := cfg.GetRemoteTransport()
	if dev && kind == config.TransportSerial {
		kind = config.TransportTCP
	}
	switch kind {
	case config.TransportSerial:
		return remote.NewSerialTransport(cfg.GetRemoteDevice(), cfg.GetRemoteSerial()), nil
	case config.TransportTCP:
		t, err := remote.NewTCPTransport(cfg.GetRemoteListen())
		if err != nil {
			return nil, err
		}
		return t, nil
	case config.TransportNone:
		return remote.NewIdleTransport(), nil
	}
	return nil, fmt.Errorf("unknown transport %q", kind)
}
