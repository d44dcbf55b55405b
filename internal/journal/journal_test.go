package journal

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HansolSon1113/MakerProject/internal/monitoring"
	"github.com/HansolSon1113/MakerProject/internal/nav"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	m.Run()
}

func openTemp(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestOpenMigrates(t *testing.T) {
	j := openTemp(t)

	version, dirty, err := j.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	_, err = uuid.Parse(j.RunID())
	assert.NoError(t, err)
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j.Record(context.Background(), Event{Time: time.Unix(10, 0), Kind: KindStartup}))
	first := j.RunID()
	require.NoError(t, j.Close())

	j, err = Open(path)
	require.NoError(t, err)
	defer j.Close()
	assert.NotEqual(t, first, j.RunID(), "each process gets its own run ID")

	events, err := j.Events(context.Background(), "", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, first, events[0].RunID)
}

func TestRecordAndQuery(t *testing.T) {
	j := openTemp(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

	require.NoError(t, j.Record(ctx, Event{Time: base, Kind: KindMode, Mode: "active", Detail: "standby->active"}))
	require.NoError(t, j.Record(ctx, Event{Time: base.Add(time.Second), Kind: KindCommand, Detail: "query-load"}))
	for i := 0; i < 3; i++ {
		require.NoError(t, j.Record(ctx, Event{
			Time:     base.Add(time.Duration(2+i) * time.Second),
			Kind:     KindScores,
			Mode:     "active",
			Branch:   "navigate",
			Load:     20,
			Obstacle: -1,
			Scores:   nav.ZoneScores{Left: 0.1 * float64(i), Center: 0.5, Right: 0.2},
			Best:     nav.Center,
		}))
	}

	all, err := j.Events(ctx, "", 100)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, KindScores, all[0].Kind, "newest first")
	assert.Equal(t, KindMode, all[4].Kind)
	assert.Equal(t, "standby->active", all[4].Detail)
	assert.True(t, all[4].Time.Equal(base))

	cmds, err := j.Events(ctx, KindCommand, 100)
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, "query-load", cmds[0].Detail)
	assert.Equal(t, nav.None, cmds[0].Best)

	hist, err := j.ScoreHistory(ctx, 2)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.True(t, hist[0].Time.Before(hist[1].Time), "oldest first")
	assert.InDelta(t, 0.2, hist[1].Scores.Left, 1e-9)
	assert.Equal(t, nav.Center, hist[1].Best)
	assert.Equal(t, -1.0, hist[1].Obstacle)

	counts, err := j.CountByKind(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[Kind]int{KindMode: 1, KindCommand: 1, KindScores: 3}, counts)
}

func TestRuns(t *testing.T) {
	j := openTemp(t)
	ctx := context.Background()
	require.NoError(t, j.StartRun(ctx, time.Unix(100, 0), "v1.2.3", "locked", `{"navigation":"locked"}`))

	runs, err := j.Runs(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, j.RunID(), runs[0].ID)
	assert.Equal(t, "locked", runs[0].Navigation)
	assert.Equal(t, int64(100), runs[0].Started.Unix())
}

func TestAdminRoutes(t *testing.T) {
	j := openTemp(t)
	require.NoError(t, j.Record(context.Background(), Event{Time: time.Unix(1, 0), Kind: KindBinFull}))

	mux := http.NewServeMux()
	require.NoError(t, j.AttachAdminRoutes(mux))

	req := httptest.NewRequest(http.MethodGet, "/debug/journal?kind=bin-full", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var events []Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 1)
	assert.Equal(t, KindBinFull, events[0].Kind)

	req = httptest.NewRequest(http.MethodGet, "/debug/journal-backup", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	gz, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	data, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.Equal(t, "SQLite format 3\x00", string(data[:16]))
}
