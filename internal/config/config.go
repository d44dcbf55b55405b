// Package config loads the robot's JSON configuration. Every field is a
// pointer so a partial file only overrides what it names; the Get* methods
// supply defaults for the rest.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/HansolSon1113/MakerProject/internal/engine"
	"github.com/HansolSon1113/MakerProject/internal/remote"
	"github.com/HansolSon1113/MakerProject/internal/vision"
)

// DefaultConfigPath is the canonical defaults file, kept in sync with the
// Get* fallbacks.
const DefaultConfigPath = "config/binbot.defaults.json"

// Remote transports.
const (
	TransportSerial = "serial"
	TransportTCP    = "tcp"
	TransportNone   = "none"
)

// RobotConfig is the root configuration.
type RobotConfig struct {
	// Decision engine
	FullThresholdCm           *float64 `json:"full_threshold_cm,omitempty"`
	NearlyFullThresholdCm     *float64 `json:"nearly_full_threshold_cm,omitempty"`
	MotionOpenRangeCm         *float64 `json:"motion_open_range_cm,omitempty"`
	ObstacleStopCm            *float64 `json:"obstacle_stop_cm,omitempty"`
	RequiredConsecutiveCycles *int     `json:"required_consecutive_cycles,omitempty"`
	BinFullInStandby          *bool    `json:"bin_full_in_standby,omitempty"`
	Navigation                *string  `json:"navigation,omitempty"`    // "reactive" or "locked"
	LockDuration              *string  `json:"lock_duration,omitempty"` // duration string like "5s"
	VisionThreshold           *float64 `json:"vision_threshold,omitempty"`
	CycleInterval             *string  `json:"cycle_interval,omitempty"`

	// Lid
	LidOpenAngle   *int    `json:"lid_open_angle,omitempty"`
	LidClosedAngle *int    `json:"lid_closed_angle,omitempty"`
	LidStepDelay   *string `json:"lid_step_delay,omitempty"`
	LidSettle      *string `json:"lid_settle,omitempty"`
	ServoSettle    *string `json:"servo_settle,omitempty"`
	BinFullHold    *string `json:"bin_full_hold,omitempty"`
	MotionOpenHold *string `json:"motion_open_hold,omitempty"`

	// Hardware timing
	EchoTimeout    *string `json:"echo_timeout,omitempty"`
	ButtonDebounce *string `json:"button_debounce,omitempty"`
	StepInterval   *string `json:"step_interval,omitempty"`

	// Header pin names
	LeftMotorPins   []string `json:"left_motor_pins,omitempty"`
	RightMotorPins  []string `json:"right_motor_pins,omitempty"`
	LeftMotorSign   *int     `json:"left_motor_sign,omitempty"`
	RightMotorSign  *int     `json:"right_motor_sign,omitempty"`
	ServoPin        *string  `json:"servo_pin,omitempty"`
	LoadTrigPin     *string  `json:"load_trig_pin,omitempty"`
	LoadEchoPin     *string  `json:"load_echo_pin,omitempty"`
	ObstacleTrigPin *string  `json:"obstacle_trig_pin,omitempty"`
	ObstacleEchoPin *string  `json:"obstacle_echo_pin,omitempty"`
	PIRPin          *string  `json:"pir_pin,omitempty"`
	ButtonPin       *string  `json:"button_pin,omitempty"`
	LEDPin          *string  `json:"led_pin,omitempty"`
	BuzzerPin       *string  `json:"buzzer_pin,omitempty"`
	LCDAddress      *int     `json:"lcd_address,omitempty"`
	LCDBus          *int     `json:"lcd_bus,omitempty"`

	// Remote link
	RemoteTransport *string             `json:"remote_transport,omitempty"`
	RemoteDevice    *string             `json:"remote_device,omitempty"`
	RemoteListen    *string             `json:"remote_listen,omitempty"`
	RemoteSerial    *remote.PortOptions `json:"remote_serial,omitempty"`

	// Camera and classifier
	CameraCommand     []string `json:"camera_command,omitempty"`
	ClassifierAddress *string  `json:"classifier_address,omitempty"`
	ModelPath         *string  `json:"model_path,omitempty"`
	LabelsPath        *string  `json:"labels_path,omitempty"`
	TargetClassIndex  *int     `json:"target_class_index,omitempty"`
	ModelInputWidth   *int     `json:"model_input_width,omitempty"`
	ModelInputHeight  *int     `json:"model_input_height,omitempty"`
	ModelOutputType   *string  `json:"model_output_type,omitempty"`
	ClassifyTimeout   *string  `json:"classify_timeout,omitempty"`

	// Journal, debug surface and status publishing. Empty strings disable.
	JournalPath      *string `json:"journal_path,omitempty"`
	ScoreSampleEvery *int    `json:"score_sample_every,omitempty"`
	DebugListen      *string `json:"debug_listen,omitempty"`
	MQTTBroker       *string `json:"mqtt_broker,omitempty"`
	MQTTTopic        *string `json:"mqtt_topic,omitempty"`
	MQTTClientID     *string `json:"mqtt_client_id,omitempty"`
}

// EmptyConfig returns a RobotConfig with every field unset.
func EmptyConfig() *RobotConfig {
	return &RobotConfig{}
}

// LoadConfig loads a RobotConfig from a JSON file. Omitted fields keep their
// defaults.
func LoadConfig(path string) (*RobotConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *RobotConfig) Validate() error {
	durations := []struct {
		name string
		v    *string
	}{
		{"lock_duration", c.LockDuration},
		{"cycle_interval", c.CycleInterval},
		{"lid_step_delay", c.LidStepDelay},
		{"lid_settle", c.LidSettle},
		{"servo_settle", c.ServoSettle},
		{"bin_full_hold", c.BinFullHold},
		{"motion_open_hold", c.MotionOpenHold},
		{"echo_timeout", c.EchoTimeout},
		{"button_debounce", c.ButtonDebounce},
		{"step_interval", c.StepInterval},
		{"classify_timeout", c.ClassifyTimeout},
	}
	for _, d := range durations {
		if d.v == nil || *d.v == "" {
			continue
		}
		if _, err := time.ParseDuration(*d.v); err != nil {
			return fmt.Errorf("invalid %s '%s': %w", d.name, *d.v, err)
		}
	}

	if c.VisionThreshold != nil && (*c.VisionThreshold < 0 || *c.VisionThreshold >= 1) {
		return fmt.Errorf("vision_threshold must be in [0, 1), got %f", *c.VisionThreshold)
	}
	if c.LeftMotorPins != nil && len(c.LeftMotorPins) != 4 {
		return fmt.Errorf("left_motor_pins needs 4 pins, got %d", len(c.LeftMotorPins))
	}
	if c.RightMotorPins != nil && len(c.RightMotorPins) != 4 {
		return fmt.Errorf("right_motor_pins needs 4 pins, got %d", len(c.RightMotorPins))
	}
	for name, sign := range map[string]*int{"left_motor_sign": c.LeftMotorSign, "right_motor_sign": c.RightMotorSign} {
		if sign != nil && *sign != 1 && *sign != -1 {
			return fmt.Errorf("%s must be 1 or -1, got %d", name, *sign)
		}
	}
	switch c.GetRemoteTransport() {
	case TransportSerial, TransportTCP, TransportNone:
	default:
		return fmt.Errorf("unknown remote_transport %q", c.GetRemoteTransport())
	}
	if c.RemoteSerial != nil {
		if _, err := c.RemoteSerial.Normalize(); err != nil {
			return fmt.Errorf("remote_serial: %w", err)
		}
	}
	if c.CameraCommand != nil && len(c.CameraCommand) == 0 {
		return fmt.Errorf("camera_command must not be empty")
	}
	if c.ScoreSampleEvery != nil && *c.ScoreSampleEvery < 1 {
		return fmt.Errorf("score_sample_every must be at least 1, got %d", *c.ScoreSampleEvery)
	}
	if c.ModelOutputType != nil {
		if _, err := vision.ParseOutputType(*c.ModelOutputType); err != nil {
			return fmt.Errorf("model_output_type: %w", err)
		}
	}
	if c.TargetClassIndex != nil && *c.TargetClassIndex < 0 {
		return fmt.Errorf("target_class_index must be non-negative, got %d", *c.TargetClassIndex)
	}

	if err := c.Policy().Validate(); err != nil {
		return err
	}
	return nil
}

// Policy assembles the decision engine policy.
func (c *RobotConfig) Policy() engine.Policy {
	return engine.Policy{
		FullThresholdCm:           c.GetFullThresholdCm(),
		NearlyFullThresholdCm:     c.GetNearlyFullThresholdCm(),
		MotionOpenRangeCm:         c.GetMotionOpenRangeCm(),
		ObstacleStopCm:            c.GetObstacleStopCm(),
		RequiredConsecutiveCycles: c.GetRequiredConsecutiveCycles(),
		BinFullInStandby:          c.GetBinFullInStandby(),
		Navigation:                engine.Navigation(c.GetNavigation()),
		LockDuration:              c.GetLockDuration(),
		LidOpenAngle:              c.GetLidOpenAngle(),
		LidClosedAngle:            c.GetLidClosedAngle(),
		LidStepDelay:              c.GetLidStepDelay(),
		LidSettle:                 c.GetLidSettle(),
		BinFullHold:               c.GetBinFullHold(),
		MotionOpenHold:            c.GetMotionOpenHold(),
	}
}

func orDefault[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}

// parseDurationOr returns def for unset, empty or unparseable values.
func parseDurationOr(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return def
	}
	return d
}

func (c *RobotConfig) GetFullThresholdCm() float64 {
	return orDefault(c.FullThresholdCm, 1.5)
}

func (c *RobotConfig) GetNearlyFullThresholdCm() float64 {
	return orDefault(c.NearlyFullThresholdCm, 3)
}

func (c *RobotConfig) GetMotionOpenRangeCm() float64 {
	return orDefault(c.MotionOpenRangeCm, 5)
}

func (c *RobotConfig) GetObstacleStopCm() float64 {
	return orDefault(c.ObstacleStopCm, 10)
}

func (c *RobotConfig) GetRequiredConsecutiveCycles() int {
	return orDefault(c.RequiredConsecutiveCycles, 5)
}

func (c *RobotConfig) GetBinFullInStandby() bool {
	return orDefault(c.BinFullInStandby, false)
}

func (c *RobotConfig) GetNavigation() string {
	return orDefault(c.Navigation, string(engine.NavigationLocked))
}

func (c *RobotConfig) GetLockDuration() time.Duration {
	return parseDurationOr(c.LockDuration, 5*time.Second)
}

func (c *RobotConfig) GetVisionThreshold() float64 {
	return orDefault(c.VisionThreshold, 0.4)
}

func (c *RobotConfig) GetCycleInterval() time.Duration {
	return parseDurationOr(c.CycleInterval, 50*time.Millisecond)
}

func (c *RobotConfig) GetLidOpenAngle() int {
	return orDefault(c.LidOpenAngle, 180)
}

func (c *RobotConfig) GetLidClosedAngle() int {
	return orDefault(c.LidClosedAngle, 90)
}

func (c *RobotConfig) GetLidStepDelay() time.Duration {
	return parseDurationOr(c.LidStepDelay, 10*time.Millisecond)
}

func (c *RobotConfig) GetLidSettle() time.Duration {
	return parseDurationOr(c.LidSettle, time.Second)
}

func (c *RobotConfig) GetServoSettle() time.Duration {
	return parseDurationOr(c.ServoSettle, 300*time.Millisecond)
}

func (c *RobotConfig) GetBinFullHold() time.Duration {
	return parseDurationOr(c.BinFullHold, 10*time.Second)
}

func (c *RobotConfig) GetMotionOpenHold() time.Duration {
	return parseDurationOr(c.MotionOpenHold, 5*time.Second)
}

func (c *RobotConfig) GetEchoTimeout() time.Duration {
	return parseDurationOr(c.EchoTimeout, 40*time.Millisecond)
}

func (c *RobotConfig) GetButtonDebounce() time.Duration {
	return parseDurationOr(c.ButtonDebounce, 300*time.Millisecond)
}

func (c *RobotConfig) GetStepInterval() time.Duration {
	return parseDurationOr(c.StepInterval, time.Millisecond)
}

// Header pin defaults (BCM numbering in brackets).
var (
	defaultLeftMotorPins  = [4]string{"11", "13", "15", "7"}  // [17 27 22 4]
	defaultRightMotorPins = [4]string{"32", "36", "38", "40"} // [12 16 20 21]
)

func pins4(p []string, def [4]string) [4]string {
	if len(p) != 4 {
		return def
	}
	return [4]string{p[0], p[1], p[2], p[3]}
}

func (c *RobotConfig) GetLeftMotorPins() [4]string {
	return pins4(c.LeftMotorPins, defaultLeftMotorPins)
}

func (c *RobotConfig) GetRightMotorPins() [4]string {
	return pins4(c.RightMotorPins, defaultRightMotorPins)
}

func (c *RobotConfig) GetLeftMotorSign() int {
	return orDefault(c.LeftMotorSign, -1)
}

func (c *RobotConfig) GetRightMotorSign() int {
	return orDefault(c.RightMotorSign, 1)
}

func (c *RobotConfig) GetServoPin() string {
	return orDefault(c.ServoPin, "12") // BCM 18
}

func (c *RobotConfig) GetLoadTrigPin() string {
	return orDefault(c.LoadTrigPin, "16") // BCM 23
}

func (c *RobotConfig) GetLoadEchoPin() string {
	return orDefault(c.LoadEchoPin, "18") // BCM 24
}

func (c *RobotConfig) GetObstacleTrigPin() string {
	return orDefault(c.ObstacleTrigPin, "29") // BCM 5
}

func (c *RobotConfig) GetObstacleEchoPin() string {
	return orDefault(c.ObstacleEchoPin, "31") // BCM 6
}

func (c *RobotConfig) GetPIRPin() string {
	return orDefault(c.PIRPin, "22") // BCM 25
}

func (c *RobotConfig) GetButtonPin() string {
	return orDefault(c.ButtonPin, "37") // BCM 26
}

func (c *RobotConfig) GetLEDPin() string {
	return orDefault(c.LEDPin, "35") // BCM 19
}

func (c *RobotConfig) GetBuzzerPin() string {
	return orDefault(c.BuzzerPin, "33") // BCM 13
}

func (c *RobotConfig) GetLCDAddress() int {
	return orDefault(c.LCDAddress, 0x27)
}

func (c *RobotConfig) GetLCDBus() int {
	return orDefault(c.LCDBus, 1)
}

func (c *RobotConfig) GetRemoteTransport() string {
	return orDefault(c.RemoteTransport, TransportSerial)
}

func (c *RobotConfig) GetRemoteDevice() string {
	return orDefault(c.RemoteDevice, "/dev/rfcomm0")
}

func (c *RobotConfig) GetRemoteListen() string {
	return orDefault(c.RemoteListen, ":7070")
}

func (c *RobotConfig) GetRemoteSerial() remote.PortOptions {
	return orDefault(c.RemoteSerial, remote.PortOptions{})
}

// DefaultCameraCommand streams 640x240 MJPEG at 20 fps to stdout.
var DefaultCameraCommand = []string{
	"rpicam-vid", "-t", "0", "--width", "640", "--height", "240",
	"--framerate", "20", "--codec", "mjpeg", "--nopreview", "-o", "-",
}

func (c *RobotConfig) GetCameraCommand() []string {
	if len(c.CameraCommand) == 0 {
		return append([]string(nil), DefaultCameraCommand...)
	}
	return append([]string(nil), c.CameraCommand...)
}

func (c *RobotConfig) GetClassifierAddress() string {
	return orDefault(c.ClassifierAddress, "127.0.0.1:50051")
}

func (c *RobotConfig) GetModelPath() string {
	return orDefault(c.ModelPath, "/opt/binbot/model_unquant.tflite")
}

func (c *RobotConfig) GetLabelsPath() string {
	return orDefault(c.LabelsPath, "/opt/binbot/labels.txt")
}

func (c *RobotConfig) GetTargetClassIndex() int {
	return orDefault(c.TargetClassIndex, 1)
}

func (c *RobotConfig) GetModelInputWidth() int {
	return orDefault(c.ModelInputWidth, 224)
}

func (c *RobotConfig) GetModelInputHeight() int {
	return orDefault(c.ModelInputHeight, 224)
}

// GetModelOutputType is the tensor type of the classifier output. Unknown
// values fall back to float32; Validate rejects them.
func (c *RobotConfig) GetModelOutputType() vision.OutputType {
	t, err := vision.ParseOutputType(orDefault(c.ModelOutputType, string(vision.OutputFloat32)))
	if err != nil {
		return vision.OutputFloat32
	}
	return t
}

func (c *RobotConfig) GetClassifyTimeout() time.Duration {
	return parseDurationOr(c.ClassifyTimeout, 300*time.Millisecond)
}

func (c *RobotConfig) GetJournalPath() string {
	return orDefault(c.JournalPath, "/var/lib/binbot/journal.db")
}

func (c *RobotConfig) GetScoreSampleEvery() int {
	return orDefault(c.ScoreSampleEvery, 20)
}

func (c *RobotConfig) GetDebugListen() string {
	return orDefault(c.DebugListen, "127.0.0.1:8080")
}

func (c *RobotConfig) GetMQTTBroker() string {
	return orDefault(c.MQTTBroker, "")
}

func (c *RobotConfig) GetMQTTTopic() string {
	return orDefault(c.MQTTTopic, "binbot/status")
}

func (c *RobotConfig) GetMQTTClientID() string {
	return orDefault(c.MQTTClientID, "binbot")
}
