package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/HansolSon1113/MakerProject/internal/engine"
	"github.com/HansolSon1113/MakerProject/internal/remote"
	"github.com/HansolSon1113/MakerProject/internal/vision"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestEmptyConfigMatchesEngineDefaults(t *testing.T) {
	cfg := EmptyConfig()
	if diff := cmp.Diff(engine.DefaultPolicy(), cfg.Policy()); diff != "" {
		t.Errorf("Policy() mismatch (-engine default +config default):\n%s", diff)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("empty config should validate: %v", err)
	}
}

// The shipped defaults file must agree with the Get* fallbacks.
func TestLoadDefaultConfigFile(t *testing.T) {
	cfg, err := LoadConfig("../../" + DefaultConfigPath)
	if err != nil {
		t.Fatalf("Failed to load %s: %v", DefaultConfigPath, err)
	}
	empty := EmptyConfig()

	if diff := cmp.Diff(empty.Policy(), cfg.Policy()); diff != "" {
		t.Errorf("policy mismatch (-code +file):\n%s", diff)
	}

	type snapshot struct {
		VisionThreshold float64
		Cycle, Servo    time.Duration
		Echo, Debounce  time.Duration
		Step, Classify  time.Duration
		Left, Right     [4]string
		Signs           [2]int
		Pins            []string
		LCD             [2]int
		Transport       string
		Device, Listen  string
		Serial          remote.PortOptions
		Camera          []string
		Classifier      []string
		Model           [3]int
		Output          vision.OutputType
		Journal         string
		Sample          int
		Debug           string
		MQTT            [3]string
	}
	take := func(c *RobotConfig) snapshot {
		serial, _ := c.GetRemoteSerial().Normalize()
		return snapshot{
			VisionThreshold: c.GetVisionThreshold(),
			Cycle:           c.GetCycleInterval(),
			Servo:           c.GetServoSettle(),
			Echo:            c.GetEchoTimeout(),
			Debounce:        c.GetButtonDebounce(),
			Step:            c.GetStepInterval(),
			Classify:        c.GetClassifyTimeout(),
			Left:            c.GetLeftMotorPins(),
			Right:           c.GetRightMotorPins(),
			Signs:           [2]int{c.GetLeftMotorSign(), c.GetRightMotorSign()},
			Pins: []string{
				c.GetServoPin(), c.GetLoadTrigPin(), c.GetLoadEchoPin(), c.GetObstacleTrigPin(),
				c.GetObstacleEchoPin(), c.GetPIRPin(), c.GetButtonPin(), c.GetLEDPin(), c.GetBuzzerPin(),
			},
			LCD:        [2]int{c.GetLCDAddress(), c.GetLCDBus()},
			Transport:  c.GetRemoteTransport(),
			Device:     c.GetRemoteDevice(),
			Listen:     c.GetRemoteListen(),
			Serial:     serial,
			Camera:     c.GetCameraCommand(),
			Classifier: []string{c.GetClassifierAddress(), c.GetModelPath(), c.GetLabelsPath()},
			Model:      [3]int{c.GetTargetClassIndex(), c.GetModelInputWidth(), c.GetModelInputHeight()},
			Output:     c.GetModelOutputType(),
			Journal:    c.GetJournalPath(),
			Sample:     c.GetScoreSampleEvery(),
			Debug:      c.GetDebugListen(),
			MQTT:       [3]string{c.GetMQTTBroker(), c.GetMQTTTopic(), c.GetMQTTClientID()},
		}
	}
	if diff := cmp.Diff(take(empty), take(cfg)); diff != "" {
		t.Errorf("getter mismatch (-code +file):\n%s", diff)
	}
}

func TestLoadConfigPartial(t *testing.T) {
	path := writeConfig(t, "partial.json", `{
  "navigation": "reactive",
  "required_consecutive_cycles": 1,
  "full_threshold_cm": 3,
  "motion_open_range_cm": 20,
  "bin_full_hold": "2s",
  "remote_transport": "tcp"
}`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	p := cfg.Policy()
	if p.Navigation != engine.NavigationReactive {
		t.Errorf("Navigation = %q, want reactive", p.Navigation)
	}
	if p.RequiredConsecutiveCycles != 1 {
		t.Errorf("RequiredConsecutiveCycles = %d, want 1", p.RequiredConsecutiveCycles)
	}
	if p.FullThresholdCm != 3 || p.MotionOpenRangeCm != 20 {
		t.Errorf("thresholds = %v/%v, want 3/20", p.FullThresholdCm, p.MotionOpenRangeCm)
	}
	if p.BinFullHold != 2*time.Second {
		t.Errorf("BinFullHold = %v, want 2s", p.BinFullHold)
	}
	// Unset fields keep their defaults.
	if p.ObstacleStopCm != 10 {
		t.Errorf("ObstacleStopCm = %v, want 10", p.ObstacleStopCm)
	}
	if cfg.GetRemoteTransport() != TransportTCP {
		t.Errorf("GetRemoteTransport() = %q", cfg.GetRemoteTransport())
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{"bad json", "c.json", `{"navigation":`, "parse"},
		{"non json extension", "c.yaml", `{}`, ".json extension"},
		{"bad duration", "c.json", `{"lock_duration": "soon"}`, "lock_duration"},
		{"bad navigation", "c.json", `{"navigation": "zigzag"}`, "navigation"},
		{"locked without lock", "c.json", `{"lock_duration": "0s"}`, "lock duration"},
		{"bad threshold", "c.json", `{"obstacle_stop_cm": -1}`, "obstacle"},
		{"bad vision threshold", "c.json", `{"vision_threshold": 1.5}`, "vision_threshold"},
		{"short pin list", "c.json", `{"left_motor_pins": ["1","2"]}`, "left_motor_pins"},
		{"bad sign", "c.json", `{"right_motor_sign": 2}`, "right_motor_sign"},
		{"bad transport", "c.json", `{"remote_transport": "carrier-pigeon"}`, "remote_transport"},
		{"bad parity", "c.json", `{"remote_serial": {"parity": "X"}}`, "remote_serial"},
		{"empty camera", "c.json", `{"camera_command": []}`, "camera_command"},
		{"bad sample rate", "c.json", `{"score_sample_every": 0}`, "score_sample_every"},
		{"bad output type", "c.json", `{"model_output_type": "int4"}`, "model_output_type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.file, tt.body))
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfigMissing(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadConfigRejectsLargeFile(t *testing.T) {
	big := `{"mqtt_topic": "` + strings.Repeat("x", 1024*1024) + `"}`
	if _, err := LoadConfig(writeConfig(t, "big.json", big)); err == nil {
		t.Fatal("expected error for oversized config")
	}
}

func TestGetDurationFallbacks(t *testing.T) {
	empty := ""
	cfg := &RobotConfig{LockDuration: &empty}
	if got := cfg.GetLockDuration(); got != 5*time.Second {
		t.Errorf("GetLockDuration() = %v, want 5s", got)
	}
	bad := "later"
	cfg = &RobotConfig{CycleInterval: &bad}
	if got := cfg.GetCycleInterval(); got != 50*time.Millisecond {
		t.Errorf("GetCycleInterval() = %v, want 50ms", got)
	}
}

func TestGetModelOutputType(t *testing.T) {
	if got := EmptyConfig().GetModelOutputType(); got != vision.OutputFloat32 {
		t.Errorf("default GetModelOutputType() = %q, want float32", got)
	}
	q := "uint8"
	if got := (&RobotConfig{ModelOutputType: &q}).GetModelOutputType(); got != vision.OutputUint8 {
		t.Errorf("GetModelOutputType() = %q, want uint8", got)
	}
}

func TestGetCameraCommandCopies(t *testing.T) {
	cfg := EmptyConfig()
	cmd := cfg.GetCameraCommand()
	cmd[0] = "mutated"
	if DefaultCameraCommand[0] != "rpicam-vid" {
		t.Fatal("GetCameraCommand must not alias the default slice")
	}
}
