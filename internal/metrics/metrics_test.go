package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rodrigorodrigues/kairos/internal/clock"
	"github.com/rodrigorodrigues/kairos/internal/eventbus"
	"github.com/rodrigorodrigues/kairos/internal/scheduler"
	"github.com/rodrigorodrigues/kairos/internal/timespec"
)

func TestMetricsCountLifecycle(t *testing.T) {
	t.Parallel()
	m := New()
	bus := eventbus.New()
	m.Attach(bus)

	clk := clock.NewFake(time.UnixMilli(1_700_000_000_000))
	now := clk.Now().UnixMilli()
	s, err := scheduler.New(scheduler.Config{
		Frames: []timespec.FrameSpec{
			{Name: "short", End: timespec.Absolute(now + 1000)},
			{Name: "long", End: timespec.Absolute(now + 5000)},
			{Name: "later", Begin: timespec.Absolute(now + 10_000)},
		},
	}, scheduler.WithClock(clk), scheduler.WithBus(bus))
	require.NoError(t, err)
	m.Reset(s.Len())

	assert.Equal(t, float64(3), testutil.ToFloat64(m.frames))
	// Reset ran after the first two frames began.
	assert.Equal(t, float64(0), testutil.ToFloat64(m.active))

	clk.Advance(2 * time.Second)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.events.WithLabelValues("began")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.events.WithLabelValues("ended")))

	clk.Advance(10 * time.Second)
	assert.Equal(t, float64(3), testutil.ToFloat64(m.events.WithLabelValues("began")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.events.WithLabelValues("ended")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.active))

	m.Detach()
	assert.False(t, bus.Has(scheduler.ChannelBegan))
}

func TestMetricsHandler(t *testing.T) {
	t.Parallel()
	m := New()
	m.Reloaded(true)
	m.Reloaded(false)
	m.HandlerFailed("x", errors.New("boom"))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)
	assert.Contains(t, text, `kairos_config_reloads_total{result="ok"} 1`)
	assert.Contains(t, text, `kairos_config_reloads_total{result="error"} 1`)
	assert.Contains(t, text, "kairos_handler_failures_total 1")
	assert.Contains(t, text, `kairos_frame_events_total{event="ticked"} 0`)
	assert.Contains(t, text, "go_goroutines")
}
