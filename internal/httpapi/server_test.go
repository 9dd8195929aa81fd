package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ws "nhooyr.io/websocket"

	"github.com/rodrigorodrigues/kairos/internal/clock"
	"github.com/rodrigorodrigues/kairos/internal/eventbus"
	"github.com/rodrigorodrigues/kairos/internal/journal"
	"github.com/rodrigorodrigues/kairos/internal/metrics"
	"github.com/rodrigorodrigues/kairos/internal/runtime/supervisor"
	"github.com/rodrigorodrigues/kairos/internal/scheduler"
	"github.com/rodrigorodrigues/kairos/internal/timeframe"
	"github.com/rodrigorodrigues/kairos/internal/timespec"
	logx "github.com/rodrigorodrigues/kairos/pkg/logx"
)

const t0 = 1_700_000_000_000

type fixture struct {
	srv   *Server
	clk   *clock.Fake
	bus   *eventbus.Bus
	sched *scheduler.Scheduler
	store journal.Store
}

func newFixture(t *testing.T, token string) *fixture {
	t.Helper()
	return newFixtureConfig(t, Config{Token: token})
}

func newFixtureConfig(t *testing.T, cfg Config) *fixture {
	t.Helper()
	clk := clock.NewFake(time.UnixMilli(t0))
	bus := eventbus.New(eventbus.WithNow(clk.Now))
	sched, err := scheduler.New(scheduler.Config{
		Frames: []timespec.FrameSpec{
			{Name: "warmup", End: timespec.Absolute(t0 + 60_000), Interval: timespec.Millis(1000), Sync: timespec.SyncOff()},
			{Name: "main", Begin: timespec.Absolute(t0 + 1000)},
		},
	}, scheduler.WithClock(clk), scheduler.WithBus(bus))
	require.NoError(t, err)

	store, err := journal.Open(journal.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "j.jsonl")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	m := metrics.New()
	srv := New(cfg, Deps{
		Timeline: func() Timeline { return sched },
		Journal:  store,
		Bus:      bus,
		Metrics:  m.Handler(),
		Workers:  func() []supervisor.WorkerStatus {
			return []supervisor.WorkerStatus{{Name: "journal", Running: true, Runs: 1}}
		},
	}, logx.Nop())
	return &fixture{srv: srv, clk: clk, bus: bus, sched: sched, store: store}
}

func (f *fixture) do(method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "secret")

	rec := f.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = f.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "kairos_frames_total")
}

func TestTokenRequired(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "secret")

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/v1/frames", "").Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/v1/frames", "wrong").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/v1/frames", "secret").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/v1/frames?token=secret", "").Code)
}

func TestFrames(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "")

	rec := f.do(http.MethodGet, "/v1/frames", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var frames []timeframe.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &frames))
	require.Len(t, frames, 2)
	assert.Equal(t, "warmup", frames[0].Name)
	assert.Equal(t, "started", frames[0].State)
	assert.Equal(t, "pending", frames[1].State)

	rec = f.do(http.MethodGet, "/v1/frames/main", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var one timeframe.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &one))
	assert.Equal(t, int64(t0+1000), one.BeginsAt)
	assert.Nil(t, one.EndsAt)

	rec = f.do(http.MethodGet, "/v1/frames/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"frame_not_found"}`, rec.Body.String())

	rec = f.do(http.MethodGet, "/v1/timeline", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap scheduler.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, int64(t0), snap.Now)
	assert.Equal(t, 1, snap.Active)
	assert.Equal(t, "UTC", snap.Timezone)
}

func TestPauseAndResume(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "")

	rec := f.do(http.MethodPost, "/v1/frames/warmup/pause", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var one timeframe.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &one))
	assert.True(t, one.Paused)

	rec = f.do(http.MethodPost, "/v1/frames/warmup/resume", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &one))
	assert.False(t, one.Paused)

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/v1/frames/nope/pause", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, f.do(http.MethodGet, "/v1/pause", "").Code)

	rec = f.do(http.MethodPost, "/v1/pause", "")
	require.Equal(t, http.StatusOK, rec.Code)
	for _, fr := range f.sched.Frames() {
		assert.True(t, fr.Paused(), fr.Name())
	}
	rec = f.do(http.MethodPost, "/v1/resume", "")
	require.Equal(t, http.StatusOK, rec.Code)
	for _, fr := range f.sched.Frames() {
		assert.False(t, fr.Paused(), fr.Name())
	}
}

func TestJournal(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "")
	ctx := context.Background()
	for _, e := range []journal.Entry{
		{ID: "1", At: time.UnixMilli(t0), Frame: "warmup", Event: "began"},
		{ID: "2", At: time.UnixMilli(t0 + 1000), Frame: "main", Event: "began"},
		{ID: "3", At: time.UnixMilli(t0 + 2000), Frame: "warmup", Event: "ticked"},
	} {
		require.NoError(t, f.store.Append(ctx, e))
	}

	rec := f.do(http.MethodGet, "/v1/journal?frame=warmup", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got []journal.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "3", got[1].ID)

	rec = f.do(http.MethodGet, "/v1/journal?limit=1", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "3", got[0].ID)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/v1/journal?limit=x", "").Code)
}

func TestWorkers(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "")
	rec := f.do(http.MethodGet, "/v1/workers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got []supervisor.WorkerStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "journal", got[0].Name)
	assert.True(t, got[0].Running)
}

func TestJournalDisabledAndNoTimeline(t *testing.T) {
	t.Parallel()
	srv := New(Config{}, Deps{Timeline: func() Timeline { return nil }}, logx.Nop())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/journal", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/frames", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.JSONEq(t, `{"status":"starting"}`, rec.Body.String())
}

func TestEventStream(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "secret")
	hs := httptest.NewServer(f.srv.Handler())
	defer hs.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(hs.URL, "http") + "/v1/events?frame=main&token=secret"
	conn, _, err := ws.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(ws.StatusNormalClosure, "")

	read := func() map[string]any {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		var m map[string]any
		require.NoError(t, json.Unmarshal(data, &m))
		return m
	}
	assert.Equal(t, "hello", read()["type"])

	// warmup ticks are filtered out; main begins at t0+1000.
	f.clk.Advance(1500 * time.Millisecond)
	msg := read()
	assert.Equal(t, "event", msg["type"])
	assert.Equal(t, "main", msg["frame"])
	assert.Equal(t, "began", msg["event"])
}

func TestEventStreamChecksOrigin(t *testing.T) {
	t.Parallel()
	f := newFixtureConfig(t, Config{Origins: []string{"dash.example"}})
	hs := httptest.NewServer(f.srv.Handler())
	defer hs.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(hs.URL, "http") + "/v1/events"
	dial := func(origin string) (*ws.Conn, *http.Response, error) {
		return ws.Dial(ctx, url, &ws.DialOptions{HTTPHeader: http.Header{"Origin": []string{origin}}})
	}

	_, resp, err := dial("http://evil.example")
	require.Error(t, err, "foreign page must not read the stream")
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := dial("https://dash.example")
	require.NoError(t, err)
	defer conn.Close(ws.StatusNormalClosure, "")
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")

	local, _, err := ws.Dial(ctx, url, nil)
	require.NoError(t, err, "clients without an Origin header pass")
	local.Close(ws.StatusNormalClosure, "")
}

func TestPprofBehindToken(t *testing.T) {
	t.Parallel()
	srv := New(Config{Token: "secret", Pprof: true}, Deps{}, logx.Nop())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/debug/pprof/cmdline", nil)
	req.Header.Set("Authorization", "Bearer secret")
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	off := New(Config{}, Deps{}, logx.Nop())
	rec = httptest.NewRecorder()
	off.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
