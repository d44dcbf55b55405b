// Package api serves the robot's debug HTTP surface: live status, the
// annotated camera frame, a score history chart, journal events and remote
// command injection.
package api

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/HansolSon1113/MakerProject/internal/controller"
	"github.com/HansolSon1113/MakerProject/internal/engine"
	"github.com/HansolSon1113/MakerProject/internal/httputil"
	"github.com/HansolSon1113/MakerProject/internal/journal"
	"github.com/HansolSon1113/MakerProject/internal/remote"
	"github.com/HansolSon1113/MakerProject/internal/version"
	"github.com/HansolSon1113/MakerProject/internal/vision"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
	defaultChartLimit = 300
	jpegQuality       = 80
)

// StatusSource exposes the controller's latest cycle.
type StatusSource interface {
	Status() (controller.Status, bool)
	Frame() (controller.FrameView, bool)
}

// CommandInjector queues a remote command as if the peer sent it.
type CommandInjector interface {
	Inject(cmd remote.Command)
}

// History reads the decision journal.
type History interface {
	Events(ctx context.Context, kind journal.Kind, limit int) ([]journal.Event, error)
	ScoreHistory(ctx context.Context, limit int) ([]journal.Event, error)
}

type Server struct {
	status  StatusSource
	remote  CommandInjector
	history History
	policy  engine.Policy
}

// NewServer returns a server. history may be nil when the journal is
// disabled.
func NewServer(status StatusSource, remote CommandInjector, history History, policy engine.Policy) *Server {
	return &Server{
		status:  status,
		remote:  remote,
		history: history,
		policy:  policy,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/frame.jpg", s.showFrame)
	mux.HandleFunc("/api/command", s.sendCommandHandler)
	mux.HandleFunc("/api/events", s.listEvents)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/api/charts/scores", s.showScoreChart)
	return mux
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	st, ok := s.status.Status()
	if !ok {
		httputil.ServiceUnavailable(w, "no cycle has run yet")
		return
	}
	httputil.WriteJSONOK(w, st)
}

func (s *Server) showFrame(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	fv, ok := s.status.Frame()
	if !ok || fv.Frame == nil {
		httputil.NotFound(w, "no frame yet")
		return
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, vision.Annotate(fv.Frame, fv.Overlay), &jpeg.Options{Quality: jpegQuality}); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to encode frame: %v", err))
		return
	}
	httputil.WriteBody(w, "image/jpeg", buf.Bytes())
}

func (s *Server) sendCommandHandler(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodPost) {
		return
	}

	cmd, err := remote.ParseCommand(r.FormValue("command"))
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	s.remote.Inject(cmd)
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"queued": cmd.String()})
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	if s.history == nil {
		httputil.NotFound(w, "journal disabled")
		return
	}

	limit, err := parseLimit(r.URL.Query().Get("limit"), defaultEventLimit)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	events, err := s.history.Events(r.Context(), journal.Kind(r.URL.Query().Get("kind")), limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve events: %v", err))
		return
	}
	if events == nil {
		events = []journal.Event{}
	}
	httputil.WriteJSONOK(w, events)
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	p := s.policy
	httputil.WriteJSONOK(w, map[string]interface{}{
		"version":                     version.String(),
		"navigation":                  p.Navigation,
		"full_threshold_cm":           p.FullThresholdCm,
		"nearly_full_threshold_cm":    p.NearlyFullThresholdCm,
		"motion_open_range_cm":        p.MotionOpenRangeCm,
		"obstacle_stop_cm":            p.ObstacleStopCm,
		"required_consecutive_cycles": p.RequiredConsecutiveCycles,
		"bin_full_in_standby":         p.BinFullInStandby,
		"lock_duration":               p.LockDuration.String(),
	})
}

func (s *Server) showScoreChart(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	if s.history == nil {
		httputil.NotFound(w, "journal disabled")
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"), defaultChartLimit)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	events, err := s.history.ScoreHistory(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve scores: %v", err))
		return
	}

	var buf bytes.Buffer
	if err := RenderScoreChart(&buf, events, s.policy.FullThresholdCm); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	httputil.WriteBody(w, "text/html; charset=utf-8", buf.Bytes())
}

// RenderScoreChart draws per-zone scores and the load distance over time.
func RenderScoreChart(w io.Writer, events []journal.Event, fullThresholdCm float64) error {
	x := make([]string, 0, len(events))
	left := make([]opts.LineData, 0, len(events))
	center := make([]opts.LineData, 0, len(events))
	right := make([]opts.LineData, 0, len(events))
	load := make([]opts.LineData, 0, len(events))
	for _, e := range events {
		x = append(x, e.Time.Format("15:04:05"))
		left = append(left, opts.LineData{Value: e.Scores.Left})
		center = append(center, opts.LineData{Value: e.Scores.Center})
		right = append(right, opts.LineData{Value: e.Scores.Right})
		load = append(load, opts.LineData{Value: e.Load})
	}

	subtitle := fmt.Sprintf("samples=%d full<%gcm", len(events), fullThresholdCm)
	if len(events) > 0 {
		subtitle += " since " + events[0].Time.Format(time.RFC3339)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "binbot scores", Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Zone scores", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Bottom: "0"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "score", Min: 0, Max: 1}),
	)
	line.ExtendYAxis(opts.YAxis{Name: "load (cm)", Position: "right"})
	line.SetXAxis(x).
		AddSeries("left", left).
		AddSeries("center", center).
		AddSeries("right", right).
		AddSeries("load", load, charts.WithLineChartOpts(opts.LineChart{YAxisIndex: 1}))
	return line.Render(w)
}

func parseLimit(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxEventLimit {
		return 0, fmt.Errorf("invalid 'limit' parameter")
	}
	return n, nil
}
