package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rodrigorodrigues/kairos/internal/clock"
	"github.com/rodrigorodrigues/kairos/internal/eventbus"
	"github.com/rodrigorodrigues/kairos/internal/scheduler"
	"github.com/rodrigorodrigues/kairos/internal/timespec"
	logx "github.com/rodrigorodrigues/kairos/pkg/logx"
)

type sent struct {
	chatID   int64
	threadID int
	text     string
}

type fakeSender struct {
	mu    sync.Mutex
	got   []sent
	fails int
}

func (s *fakeSender) Send(_ context.Context, chatID int64, threadID int, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fails > 0 {
		s.fails--
		return errors.New("flood")
	}
	s.got = append(s.got, sent{chatID: chatID, threadID: threadID, text: text})
	return nil
}

func (s *fakeSender) texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.got))
	for _, m := range s.got {
		out = append(out, m.text)
	}
	return out
}

func runTimeline(t *testing.T, bus *eventbus.Bus) {
	t.Helper()
	clk := clock.NewFake(time.UnixMilli(1_700_000_000_000))
	now := clk.Now().UnixMilli()
	_, err := scheduler.New(scheduler.Config{
		Frames: []timespec.FrameSpec{
			{
				Name:      "standup",
				RelatedTo: timespec.Millis(now + 60_000),
				Interval:  timespec.Millis(1000),
				Sync:      timespec.SyncOff(),
				End:       timespec.Absolute(now + 1500),
			},
			{
				Name: "quiet",
				End:  timespec.Absolute(now + 500),
			},
		},
	}, scheduler.WithClock(clk), scheduler.WithBus(bus))
	require.NoError(t, err)
	clk.Advance(2 * time.Second)
}

func drain(t *testing.T, n *Notifier, want int, s *fakeSender) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()
	require.Eventually(t, func() bool { return len(s.texts()) >= want }, 3*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestNotifierFiltersFramesAndEvents(t *testing.T) {
	t.Parallel()
	s := &fakeSender{}
	n := New(s, Config{ChatID: 42, ThreadID: 7, Frames: []string{"standup"}, RatePerSec: 100}, logx.Nop())
	bus := eventbus.New()
	n.Attach(bus)
	runTimeline(t, bus)
	n.Detach()
	assert.False(t, bus.Has(scheduler.ChannelEnded))

	drain(t, n, 2, s)
	assert.Equal(t, []string{"▶️ standup began (1m0s left)", "⏹ standup ended"}, s.texts())

	s.mu.Lock()
	assert.Equal(t, int64(42), s.got[0].chatID)
	assert.Equal(t, 7, s.got[0].threadID)
	s.mu.Unlock()

	sentN, failed, dropped := n.Stats()
	assert.Equal(t, uint64(2), sentN)
	assert.Zero(t, failed)
	assert.Zero(t, dropped)
}

func TestNotifierWants(t *testing.T) {
	t.Parallel()
	n := New(&fakeSender{}, Config{Events: []string{"ticked"}}, logx.Nop())
	assert.True(t, n.Wants("any", "ticked"))
	assert.False(t, n.Wants("any", "began"))

	n = New(&fakeSender{}, Config{Frames: []string{" a ", ""}}, logx.Nop())
	assert.True(t, n.Wants("a", "began"))
	assert.True(t, n.Wants("a", "ended"))
	assert.False(t, n.Wants("b", "began"))
	assert.False(t, n.Wants("a", "muted"))
}

func TestNotifierRetries(t *testing.T) {
	t.Parallel()
	s := &fakeSender{fails: 1}
	n := New(s, Config{RatePerSec: 100, RetryMax: 1}, logx.Nop())
	require.NoError(t, n.Enqueue(Message{Frame: "x", Event: "began", Text: "hello"}))
	drain(t, n, 1, s)
	assert.Equal(t, []string{"hello"}, s.texts())
}

func TestNotifierQueueFull(t *testing.T) {
	t.Parallel()
	n := New(&fakeSender{}, Config{}, logx.Nop())
	for i := 0; i < defaultQueueSize; i++ {
		require.NoError(t, n.Enqueue(Message{Text: "x"}))
	}
	assert.ErrorIs(t, n.Enqueue(Message{Text: "x"}), ErrQueueFull)
	_, _, dropped := n.Stats()
	assert.Equal(t, uint64(1), dropped)
}

func TestFormat(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "▶️ lunch began (1h30m0s left)", Format("lunch", "began", 90*60*1000))
	assert.Equal(t, "⏱ lunch ticked (2s left)", Format("lunch", "ticked", 1600))
	assert.Equal(t, "⏹ lunch ended", Format("lunch", "ended", 0))
	assert.Equal(t, "⏸ unnamed frame muted", Format("", "muted", -1))
}

func TestTelegramSender(t *testing.T) {
	t.Parallel()
	var (
		mu   sync.Mutex
		path string
		form map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		path = r.URL.Path
		form = decodeBody(r.Header.Get("Content-Type"), body)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":1,"date":1700000000,"chat":{"id":42,"type":"supergroup"},"text":"hi"}}`)
	}))
	defer srv.Close()

	n, err := Open(Config{Token: "123:abc", APIURL: srv.URL, ChatID: 42, ThreadID: 9, RatePerSec: 100}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, n.sender.Send(context.Background(), 42, 9, "hi"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/bot123:abc/sendMessage", path)
	assert.Equal(t, "42", asString(form["chat_id"]))
	assert.Equal(t, "9", asString(form["message_thread_id"]))
	assert.Equal(t, "hi", asString(form["text"]))
}

func TestOpenRequiresToken(t *testing.T) {
	t.Parallel()
	_, err := Open(Config{Token: " "}, logx.Nop())
	assert.Error(t, err)
}

func decodeBody(contentType string, body []byte) map[string]any {
	out := map[string]any{}
	if strings.HasPrefix(contentType, "application/json") {
		_ = json.Unmarshal(body, &out)
		return out
	}
	vals, _ := url.ParseQuery(string(body))
	for k := range vals {
		out[k] = vals.Get(k)
	}
	return out
}

func asString(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
