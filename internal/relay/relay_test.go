package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rodrigorodrigues/kairos/internal/clock"
	"github.com/rodrigorodrigues/kairos/internal/eventbus"
	"github.com/rodrigorodrigues/kairos/internal/scheduler"
	"github.com/rodrigorodrigues/kairos/internal/timespec"
	logx "github.com/rodrigorodrigues/kairos/pkg/logx"
)

type message struct {
	subject string
	env     Envelope
}

type memPublisher struct {
	mu     sync.Mutex
	got    []message
	fail   error
	closed bool
}

func (p *memPublisher) Publish(ctx context.Context, subject string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return err
	}
	p.got = append(p.got, message{subject: subject, env: env})
	return nil
}

func (p *memPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func runTimeline(t *testing.T, bus *eventbus.Bus, clk *clock.Fake) {
	t.Helper()
	_, err := scheduler.New(scheduler.Config{
		Frames: []timespec.FrameSpec{{
			Name:      "promo",
			RelatedTo: timespec.Millis(clk.Now().UnixMilli() + 3000),
			Interval:  timespec.Millis(1000),
			Sync:      timespec.SyncOff(),
			End:       timespec.Absolute(clk.Now().UnixMilli() + 1500),
			Data:      map[string]any{"sku": 7},
		}},
	}, scheduler.WithClock(clk), scheduler.WithBus(bus))
	require.NoError(t, err)
	clk.Advance(2 * time.Second)
}

func TestRelayPublishesEnvelopes(t *testing.T) {
	t.Parallel()
	pub := &memPublisher{}
	r := New(pub, Config{Prefix: "acme.", NodeID: "node-1"}, logx.Nop())
	clk := clock.NewFake(time.UnixMilli(1_700_000_000_000))
	bus := eventbus.New(eventbus.WithNow(clk.Now))
	r.Attach(bus)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	runTimeline(t, bus, clk)
	cancel()
	require.NoError(t, <-done)

	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.True(t, pub.closed)
	require.Len(t, pub.got, 4)
	subjects := []string{pub.got[0].subject, pub.got[1].subject, pub.got[2].subject, pub.got[3].subject}
	assert.Equal(t, []string{"acme.began", "acme.ticked", "acme.ticked", "acme.ended"}, subjects)

	first := pub.got[0].env
	assert.Equal(t, "began", first.Event)
	assert.Equal(t, "promo", first.Frame)
	assert.Equal(t, int64(3000), first.RemainingMS)
	assert.Equal(t, "node-1", first.NodeID)
	assert.NotEmpty(t, first.MessageID)
	assert.JSONEq(t, `{"sku":7}`, string(first.Data))
	assert.NotEqual(t, first.MessageID, pub.got[1].env.MessageID)
	assert.Equal(t, int64(1500), pub.got[3].env.RemainingMS)

	published, failed, dropped := r.Stats()
	assert.Equal(t, uint64(4), published)
	assert.Zero(t, failed)
	assert.Zero(t, dropped)
}

func TestRelayCountsFailures(t *testing.T) {
	t.Parallel()
	pub := &memPublisher{fail: errors.New("broker down")}
	r := New(pub, Config{}, logx.Nop())
	assert.NotEmpty(t, r.NodeID())
	clk := clock.NewFake(time.UnixMilli(0))
	bus := eventbus.New()
	r.Attach(bus)

	ctx, cancel := context.WithCancel(context.Background())
	runTimeline(t, bus, clk)
	r.Detach()
	assert.False(t, bus.Has(scheduler.ChannelBegan))

	cancel()
	require.NoError(t, r.Run(ctx))
	_, failed, _ := r.Stats()
	assert.Equal(t, uint64(4), failed)
}

func TestOpen(t *testing.T) {
	t.Parallel()
	r, err := Open(context.Background(), Config{Driver: "none"}, logx.Nop())
	require.NoError(t, err)
	assert.Nil(t, r)

	_, err = Open(context.Background(), Config{Driver: "kafka"}, logx.Nop())
	assert.ErrorIs(t, err, ErrUnknownDriver)

	assert.Equal(t, "kairos.ended", Subject("", "ended"))
}

func TestRedisRelay(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	sub := client.Subscribe(context.Background(), "kairos.began")
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(context.Background())
	require.NoError(t, err)

	r, err := Open(context.Background(), Config{Driver: "redis", URL: "redis://" + mr.Addr() + "/0", NodeID: "n"}, logx.Nop())
	require.NoError(t, err)
	require.NotNil(t, r)

	clk := clock.NewFake(time.UnixMilli(1_700_000_000_000))
	bus := eventbus.New(eventbus.WithNow(clk.Now))
	r.Attach(bus)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	runTimeline(t, bus, clk)

	select {
	case msg := <-sub.Channel():
		var env Envelope
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &env))
		assert.Equal(t, "promo", env.Frame)
		assert.Equal(t, "n", env.NodeID)
	case <-time.After(5 * time.Second):
		t.Fatal("no message on kairos.began")
	}
	cancel()
	require.NoError(t, <-done)
}

func TestRedisRelayUnreachable(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := Open(context.Background(), Config{Driver: "redis", URL: addr, Timeout: 200 * time.Millisecond}, logx.Nop())
	assert.ErrorContains(t, err, "relay redis ping")
}
