// Package journal records the robot's decisions in a local SQLite database:
// mode changes, branch transitions, remote commands, bin-full events and a
// sample of vision scores. Every row carries the run ID of the process that
// wrote it.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/HansolSon1113/MakerProject/internal/monitoring"
	"github.com/HansolSon1113/MakerProject/internal/nav"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Kind classifies a journal row.
type Kind string

const (
	KindStartup  Kind = "startup"
	KindShutdown Kind = "shutdown"
	KindMode     Kind = "mode"
	KindBranch   Kind = "branch"
	KindCommand  Kind = "command"
	KindAck      Kind = "ack"
	KindBinFull  Kind = "bin-full"
	KindScores   Kind = "scores"
	KindFault    Kind = "fault"
)

// Event is one journal row.
type Event struct {
	ID       int64          `json:"id"`
	RunID    string         `json:"run_id"`
	Time     time.Time      `json:"time"`
	Kind     Kind           `json:"kind"`
	Mode     string         `json:"mode,omitempty"`
	Branch   string         `json:"branch,omitempty"`
	Detail   string         `json:"detail,omitempty"`
	Load     float64        `json:"load_cm"`
	Obstacle float64        `json:"obstacle_cm"`
	Scores   nav.ZoneScores `json:"scores"`
	Best     nav.Direction  `json:"best"`
}

// Run describes one process lifetime.
type Run struct {
	ID         string
	Started    time.Time
	Version    string
	Navigation string
	ConfigJSON string
}

// Journal is the SQLite-backed decision log.
type Journal struct {
	db    *sql.DB
	path  string
	runID string
}

// Open opens (creating if needed) the database at path and migrates it to
// the latest schema. ":memory:" is accepted for tests.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps ":memory:" databases coherent and serialises writers.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	j := &Journal{db: db, path: path, runID: uuid.NewString()}
	if err := j.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(j.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// SchemaVersion returns the applied migration version.
func (j *Journal) SchemaVersion() (uint, bool, error) {
	var version uint
	var dirty bool
	err := j.db.QueryRow(`SELECT version, dirty FROM schema_migrations LIMIT 1`).Scan(&version, &dirty)
	if err != nil {
		return 0, false, err
	}
	return version, dirty, nil
}

// migrateLogger implements migrate.Logger.
type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Logf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return false
}

// RunID identifies this process in every row it writes.
func (j *Journal) RunID() string { return j.runID }

// DB exposes the handle for the debug SQL console.
func (j *Journal) DB() *sql.DB { return j.db }

// StartRun records the run row.
func (j *Journal) StartRun(ctx context.Context, started time.Time, version, navigation, configJSON string) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, started_ns, version, navigation, config_json) VALUES (?, ?, ?, ?, ?)`,
		j.runID, started.UnixNano(), version, navigation, configJSON,
	)
	return err
}

// Runs returns the most recent runs, newest first.
func (j *Journal) Runs(ctx context.Context, limit int) ([]Run, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT run_id, started_ns, version, navigation, config_json FROM runs ORDER BY started_ns DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var ns int64
		if err := rows.Scan(&r.ID, &ns, &r.Version, &r.Navigation, &r.ConfigJSON); err != nil {
			return nil, err
		}
		r.Started = time.Unix(0, ns)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Record writes e under this run's ID.
func (j *Journal) Record(ctx context.Context, e Event) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO events (
			run_id, ts_unix_ns, kind, mode, branch, detail, load_cm, obstacle_cm,
			score_left, score_center, score_right, best
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.runID, e.Time.UnixNano(), string(e.Kind), e.Mode, e.Branch, e.Detail, e.Load, e.Obstacle,
		e.Scores.Left, e.Scores.Center, e.Scores.Right, e.Best.String(),
	)
	if err != nil {
		return fmt.Errorf("journal insert: %w", err)
	}
	return nil
}

// Events returns up to limit events, newest first. An empty kind matches
// every kind.
func (j *Journal) Events(ctx context.Context, kind Kind, limit int) ([]Event, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT event_id, run_id, ts_unix_ns, kind, mode, branch, detail, load_cm, obstacle_cm,
			score_left, score_center, score_right, best
		FROM events
		WHERE (? = '' OR kind = ?)
		ORDER BY ts_unix_ns DESC, event_id DESC
		LIMIT ?`, string(kind), string(kind), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var ns int64
		var k, best string
		if err := rows.Scan(&e.ID, &e.RunID, &ns, &k, &e.Mode, &e.Branch, &e.Detail, &e.Load, &e.Obstacle,
			&e.Scores.Left, &e.Scores.Center, &e.Scores.Right, &best); err != nil {
			return nil, err
		}
		e.Time = time.Unix(0, ns)
		e.Kind = Kind(k)
		e.Best, _ = nav.ParseDirection(best)
		events = append(events, e)
	}
	return events, rows.Err()
}

// ScoreHistory returns the latest limit sampled score rows, oldest first,
// ready for charting.
func (j *Journal) ScoreHistory(ctx context.Context, limit int) ([]Event, error) {
	events, err := j.Events(ctx, KindScores, limit)
	if err != nil {
		return nil, err
	}
	for i, k := 0, len(events)-1; i < k; i, k = i+1, k-1 {
		events[i], events[k] = events[k], events[i]
	}
	return events, nil
}

// CountByKind returns per-kind row counts for this run.
func (j *Journal) CountByKind(ctx context.Context) (map[Kind]int, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT kind, COUNT(*) FROM events WHERE run_id = ? GROUP BY kind`, j.runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[Kind]int)
	for rows.Next() {
		var k string
		var n int
		if err := rows.Scan(&k, &n); err != nil {
			return nil, err
		}
		out[Kind(k)] = n
	}
	return out, rows.Err()
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}
