package app

import (
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rodrigorodrigues/kairos/internal/config"
	"github.com/rodrigorodrigues/kairos/internal/journal"
	"github.com/rodrigorodrigues/kairos/internal/timespec"
)

func writeConfig(t *testing.T, dir string, endsAt int64) string {
	t.Helper()
	body := fmt.Sprintf(`{
  "logging": {"level": "error"},
  "timeline": {
    "frames": [{"name": "quick", "end": %d, "data": {"n": 1}}]
  },
  "journal": {"driver": "file", "path": %q}
}`, endsAt, filepath.Join(dir, "journal.jsonl"))
	path := filepath.Join(dir, "kairos.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestAppRecordsLifecycle(t *testing.T) {
	dir := t.TempDir()
	a, err := New(writeConfig(t, dir, time.Now().Add(200*time.Millisecond).UnixMilli()))
	require.NoError(t, err)
	require.NotNil(t, a.store)
	assert.Nil(t, a.relay)
	assert.Nil(t, a.notif)
	assert.Nil(t, a.http)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.Start(ctx))

	require.Eventually(t, func() bool {
		entries, err := a.store.Recent(context.Background(), journal.Query{Frame: "quick"})
		return err == nil && len(entries) == 2
	}, 5*time.Second, 20*time.Millisecond)

	entries, err := a.store.Recent(context.Background(), journal.Query{Frame: "quick"})
	require.NoError(t, err)
	assert.Equal(t, "began", entries[0].Event)
	assert.Equal(t, "ended", entries[1].Event)
	assert.JSONEq(t, `{"n":1}`, string(entries[0].Data))

	names := map[string]bool{}
	for _, w := range a.Workers() {
		names[w.Name] = true
	}
	assert.True(t, names["journal.recorder"])
	assert.True(t, names["config.watch"])

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	require.NoError(t, a.Stop(stopCtx, StopAppStop))
	<-a.Done()
}

func TestAppSwapsTimeline(t *testing.T) {
	dir := t.TempDir()
	far := time.Now().Add(time.Hour).UnixMilli()
	a, err := New(writeConfig(t, dir, far))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.Start(ctx))
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		_ = a.Stop(stopCtx, StopAppStop)
	}()

	prev := a.Scheduler()
	quick, err := prev.Frame("quick")
	require.NoError(t, err)
	assert.True(t, quick.Started())

	next := *a.cfgm.Get()
	next.Timeline = config.TimelineConfig{
		Frames: []timespec.FrameSpec{
			{Name: "alpha", Begin: timespec.Absolute(far)},
			{Name: "beta", Begin: timespec.Absolute(far)},
		},
	}
	a.apply(a.cfgm.Get(), &next)

	cur := a.Scheduler()
	require.NotSame(t, prev, cur)
	assert.Equal(t, 2, cur.Len())
	_, err = cur.Frame("alpha")
	assert.NoError(t, err)
	assert.Equal(t, "started", quick.State().String())

	rec := httptest.NewRecorder()
	a.metrics.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `kairos_config_reloads_total{result="ok"} 1`)
	assert.Contains(t, rec.Body.String(), "kairos_frames_total 2")
}

func TestValidateRejectsBadTimezone(t *testing.T) {
	dir := t.TempDir()
	a, err := New(writeConfig(t, dir, time.Now().Add(time.Hour).UnixMilli()))
	require.NoError(t, err)
	defer a.close()

	bad := *a.cfgm.Get()
	bad.Timeline.Timezone = "Mars/Olympus"
	assert.Error(t, a.validate(context.Background(), &bad))
	assert.NoError(t, a.validate(context.Background(), a.cfgm.Get()))
}

func TestMappers(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Journal: &config.JournalConfig{Driver: " SQLite ", Path: " ./k.db "},
		Relay:   &config.RelayConfig{Driver: "none"},
		Notify:  &config.NotifyConfig{Enabled: true, Token: "t", ChatID: 5, Timeout: "3s"},
		HTTP:    &config.HTTPConfig{Enabled: false},
	}
	jc, ok := mapJournal(cfg)
	require.True(t, ok)
	assert.Equal(t, "sqlite", jc.Driver)
	assert.Equal(t, "./k.db", jc.Path)
	assert.Equal(t, time.Second, jc.BusyTimeout)

	_, ok = mapRelay(cfg)
	assert.False(t, ok)

	nc, ok := mapNotify(cfg)
	require.True(t, ok)
	assert.Equal(t, 3*time.Second, nc.Timeout)
	assert.Equal(t, int64(5), nc.ChatID)

	_, ok = mapHTTP(cfg)
	assert.False(t, ok)

	sc, autoStart := mapTimeline(cfg)
	assert.True(t, autoStart)
	require.NotNil(t, sc.AutoStart)
	assert.False(t, *sc.AutoStart)
}
