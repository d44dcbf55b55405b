package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/HansolSon1113/MakerProject/internal/api"
	"github.com/HansolSon1113/MakerProject/internal/config"
	"github.com/HansolSon1113/MakerProject/internal/controller"
	"github.com/HansolSon1113/MakerProject/internal/engine"
	"github.com/HansolSon1113/MakerProject/internal/fsutil"
	"github.com/HansolSon1113/MakerProject/internal/journal"
	"github.com/HansolSon1113/MakerProject/internal/monitoring"
	"github.com/HansolSon1113/MakerProject/internal/statuspub"
	"github.com/HansolSon1113/MakerProject/internal/timeutil"
	"github.com/HansolSon1113/MakerProject/internal/version"
)

var (
	configPath = flag.String("config", "", "Path to JSON config (defaults apply when empty)")
	devMode    = flag.Bool("dev", false, "Run with a fake board, synthetic camera and TCP remote")
	listen     = flag.String("listen", "", "Debug HTTP listen address (overrides config; \"off\" disables)")
	verbose    = flag.Bool("verbose", false, "Log per-cycle diagnostics")
	journalDB  = flag.String("journal", "", "Journal database path (overrides config; \"off\" disables)")
)

func loadConfig(path string) (*config.RobotConfig, error) {
	if path == "" {
		return config.EmptyConfig(), nil
	}
	return config.LoadConfig(path)
}

// resolve returns override when set, otherwise def, and "" when the result is
// "off".
func resolve(override, def string) string {
	v := def
	if override != "" {
		v = override
	}
	if v == "off" {
		return ""
	}
	return v
}

func main() {
	flag.Parse()
	monitoring.SetVerbose(*verbose)
	log.Printf("binbot %s", version.String())

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	policy := cfg.Policy()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cleanup := &closerStack{}
	var ctrl *controller.Controller
	fatal := func(format string, v ...interface{}) {
		if err := cleanup.closeAll(); err != nil {
			log.Printf("cleanup: %v", err)
		}
		if ctrl != nil {
			if err := ctrl.Shutdown(); err != nil {
				log.Printf("shutdown: %v", err)
			}
		}
		log.Fatalf(format, v...)
	}

	clock := timeutil.RealClock{}
	rig, err := buildRig(cfg, *devMode, clock, cleanup)
	if err != nil {
		fatal("failed to initialise hardware: %v", err)
	}

	var jrnl *journal.Journal
	journalPath := resolve(*journalDB, cfg.GetJournalPath())
	if *devMode && *journalDB == "" {
		journalPath = ":memory:"
	}
	if journalPath != "" {
		if err := fsutil.EnsureParent(fsutil.OSFileSystem{}, journalPath); err != nil {
			fatal("failed to create journal directory: %v", err)
		}
		jrnl, err = journal.Open(journalPath)
		if err != nil {
			fatal("failed to open journal: %v", err)
		}
		cleanup.push("journal", jrnl)

		cfgJSON, _ := json.Marshal(cfg)
		if err := jrnl.StartRun(ctx, time.Now(), version.Version, string(policy.Navigation), string(cfgJSON)); err != nil {
			fatal("failed to record run: %v", err)
		}
		log.Printf("journal %s (run %s)", journalPath, jrnl.RunID())
	}

	var sink controller.StatusSink
	if broker := cfg.GetMQTTBroker(); broker != "" {
		runID := ""
		if jrnl != nil {
			runID = jrnl.RunID()
		}
		pub, err := statuspub.New(statuspub.Config{
			Broker:   broker,
			Topic:    cfg.GetMQTTTopic(),
			ClientID: cfg.GetMQTTClientID(),
			RunID:    runID,
		})
		if err != nil {
			fatal("failed to start status publisher: %v", err)
		}
		cleanup.push("status publisher", pub)
		sink = pub
	}

	eng, err := engine.New(policy)
	if err != nil {
		fatal("invalid policy: %v", err)
	}
	opts := controller.Options{
		Clock:            clock,
		CycleInterval:    cfg.GetCycleInterval(),
		Status:           sink,
		ScoreSampleEvery: cfg.GetScoreSampleEvery(),
	}
	if jrnl != nil {
		opts.Journal = jrnl
	}
	ctrl, err = controller.New(rig.hw, eng, opts)
	if err != nil {
		fatal("failed to create controller: %v", err)
	}
	cleanup.moveTo(ctrl)
	// Covers panics; Shutdown is once-only so the explicit call below wins.
	defer func() { _ = ctrl.Shutdown() }()

	var wg sync.WaitGroup
	if err := rig.start(ctx, &wg); err != nil {
		fatal("failed to start hardware: %v", err)
	}

	if addr := resolve(*listen, cfg.GetDebugListen()); addr != "" {
		var history api.History
		if jrnl != nil {
			history = jrnl
		}
		mux := api.NewServer(ctrl, rig.remote, history, policy).ServeMux()
		if jrnl != nil {
			if err := jrnl.AttachAdminRoutes(mux); err != nil {
				log.Printf("journal admin routes unavailable: %v", err)
			}
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			serveHTTP(ctx, addr, api.LoggingMiddleware(mux))
		}()
	}

	log.Printf("control loop running (navigation=%s, cycle=%s)", policy.Navigation, cfg.GetCycleInterval())
	if err := ctrl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("control loop stopped: %v", err)
	}

	stop()
	wg.Wait()
	if err := ctrl.Shutdown(); err != nil {
		log.Printf("shutdown: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}

func serveHTTP(ctx context.Context, addr string, h http.Handler) {
	server := &http.Server{
		Addr:    addr,
		Handler: h,
	}

	// Start server in a goroutine so it doesn't block
	go func() {
		log.Printf("debug server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("debug server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	log.Printf("HTTP server routine stopped")
}
