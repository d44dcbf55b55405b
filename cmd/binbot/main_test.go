package main

import (
	"context"
	"errors"
	"flag"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HansolSon1113/MakerProject/internal/config"
	"github.com/HansolSon1113/MakerProject/internal/controller"
	"github.com/HansolSon1113/MakerProject/internal/engine"
	"github.com/HansolSon1113/MakerProject/internal/monitoring"
	"github.com/HansolSon1113/MakerProject/internal/nav"
	"github.com/HansolSon1113/MakerProject/internal/remote"
	"github.com/HansolSon1113/MakerProject/internal/timeutil"
)

func TestFlagDefaults(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"config", ""},
		{"dev", "false"},
		{"listen", ""},
		{"verbose", "false"},
		{"journal", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := flag.Lookup(tt.name)
			require.NotNil(t, f, "flag -%s not defined", tt.name)
			assert.Equal(t, tt.want, f.DefValue)
		})
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		override, def, want string
	}{
		{"", "127.0.0.1:8080", "127.0.0.1:8080"},
		{":9090", "127.0.0.1:8080", ":9090"},
		{"off", "127.0.0.1:8080", ""},
		{"", "off", ""},
		{"", "", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, resolve(tt.override, tt.def), "resolve(%q, %q)", tt.override, tt.def)
	}
}

func TestLoadConfig_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, engine.DefaultPolicy(), cfg.Policy())
}

type closeFunc func() error

func (f closeFunc) Close() error { return f() }

func TestCloserStack_ReverseAndJoin(t *testing.T) {
	var order []string
	boom := errors.New("boom")
	s := &closerStack{}
	s.push("a", closeFunc(func() error { order = append(order, "a"); return nil }))
	s.push("b", closeFunc(func() error { order = append(order, "b"); return boom }))
	s.push("c", closeFunc(func() error { order = append(order, "c"); return nil }))

	err := s.closeAll()
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "b: boom")
	assert.Equal(t, []string{"c", "b", "a"}, order)
	assert.NoError(t, s.closeAll())
}

type failingCamera struct{ runs int }

func (f *failingCamera) Start(context.Context) error { return errors.New("exec: rpicam-vid: not found") }
func (f *failingCamera) Run(context.Context) error   { f.runs++; return nil }

func TestRigStart_CameraLaunchFailureIsFatal(t *testing.T) {
	cam := &failingCamera{}
	r := &rig{camera: cam}
	var wg sync.WaitGroup
	err := r.start(context.Background(), &wg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "camera")
	wg.Wait()
	assert.Zero(t, cam.runs)
}

func devConfig(t *testing.T) *config.RobotConfig {
	t.Helper()
	cfg := config.EmptyConfig()
	transport := config.TransportTCP
	listen := "127.0.0.1:0"
	cfg.RemoteTransport = &transport
	cfg.RemoteListen = &listen
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestDevRig_RunsControlLoop(t *testing.T) {
	monitoring.SetLogger(t.Logf)
	defer monitoring.SetLogger(nil)

	cleanup := &closerStack{}
	r, err := buildRig(devConfig(t), true, timeutil.RealClock{}, cleanup)
	require.NoError(t, err)

	eng, err := engine.New(engine.DefaultPolicy())
	require.NoError(t, err)
	ctrl, err := controller.New(r.hw, eng, controller.Options{CycleInterval: 5 * time.Millisecond})
	require.NoError(t, err)
	cleanup.moveTo(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	require.NoError(t, r.start(ctx, &wg))

	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx) }()

	r.remote.Inject(remote.PowerOn)
	require.Eventually(t, func() bool {
		st, ok := ctrl.Status()
		return ok && st.Mode == engine.Active && st.Branch == engine.BranchNavigate
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("control loop did not stop")
	}
	wg.Wait()
	assert.NoError(t, ctrl.Shutdown())
	assert.Equal(t, nav.Stop, r.drive.Current())
}
