package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/rodrigorodrigues/kairos/internal/eventbus"
	"github.com/rodrigorodrigues/kairos/internal/scheduler"
	"github.com/rodrigorodrigues/kairos/internal/timeframe"
	logx "github.com/rodrigorodrigues/kairos/pkg/logx"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultRate      = 1
	defaultQueueSize = 64
	retryDelay       = 500 * time.Millisecond
)

// Notifier turns relayed frame events into chat messages.
type Notifier struct {
	cfg     Config
	sender  Sender
	limiter *rate.Limiter
	log     logx.Logger

	frames map[string]struct{}
	events map[string]struct{}
	queue  chan Message

	sent    atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64

	mu   sync.Mutex
	bus  *eventbus.Bus
	subs []eventbus.Subscription
}

// Open builds a Notifier backed by the Telegram Bot API.
func Open(cfg Config, log logx.Logger) (*Notifier, error) {
	s, err := newTelegramSender(cfg)
	if err != nil {
		return nil, err
	}
	return New(s, cfg, log), nil
}

// New builds a Notifier around any Sender.
func New(sender Sender, cfg Config, log logx.Logger) *Notifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = defaultRate
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if len(cfg.Events) == 0 {
		cfg.Events = []string{timeframe.EventBegan, timeframe.EventEnded}
	}
	n := &Notifier{
		cfg:     cfg,
		sender:  sender,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		log:     log.With(logx.String("component", "notify")),
		frames:  toSet(cfg.Frames),
		events:  toSet(cfg.Events),
		queue:   make(chan Message, defaultQueueSize),
	}
	return n
}

func toSet(in []string) map[string]struct{} {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s != "" {
			out[s] = struct{}{}
		}
	}
	return out
}

// Wants reports whether an event of frame should produce a message.
func (n *Notifier) Wants(frame, event string) bool {
	if _, ok := n.events[event]; !ok {
		return false
	}
	if n.frames == nil {
		return true
	}
	_, ok := n.frames[frame]
	return ok
}

// Attach subscribes to the generic relay channels of bus.
func (n *Notifier) Attach(bus *eventbus.Bus) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.bus = bus
	for _, ch := range scheduler.GenericChannels() {
		n.subs = append(n.subs, bus.Subscribe(ch, n.handle))
	}
}

// Detach removes the subscriptions made by Attach.
func (n *Notifier) Detach() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, s := range n.subs {
		n.bus.Unsubscribe(s)
	}
	n.subs = nil
}

func (n *Notifier) handle(e eventbus.Event) error {
	event := scheduler.EventOf(e.Channel)
	f, _ := e.Arg(0).(*timeframe.Frame)
	name := ""
	if f != nil {
		name = f.Name()
	}
	if !n.Wants(name, event) {
		return nil
	}
	rem, _ := e.Arg(2).(int64)
	return n.Enqueue(Message{Frame: name, Event: event, Text: Format(name, event, rem)})
}

// Enqueue queues m without blocking.
func (n *Notifier) Enqueue(m Message) error {
	select {
	case n.queue <- m:
		return nil
	default:
		n.dropped.Add(1)
		n.log.Warn("notify queue full", logx.String("frame", m.Frame), logx.String("event", m.Event))
		return ErrQueueFull
	}
}

// Format renders the message text for one event.
func Format(frame, event string, remainingMS int64) string {
	if frame == "" {
		frame = "unnamed frame"
	}
	var icon string
	switch event {
	case timeframe.EventBegan:
		icon = "▶️"
	case timeframe.EventTicked:
		icon = "⏱"
	case timeframe.EventEnded:
		icon = "⏹"
	case timeframe.EventMuted:
		icon = "⏸"
	case timeframe.EventUnmuted:
		icon = "⏯"
	default:
		icon = "•"
	}
	text := fmt.Sprintf("%s %s %s", icon, frame, event)
	if event != timeframe.EventEnded && remainingMS > 0 {
		left := time.Duration(remainingMS) * time.Millisecond
		text += fmt.Sprintf(" (%s left)", left.Round(time.Second))
	}
	return text
}

// Run sends queued messages until ctx is done.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-n.queue:
			n.send(ctx, m)
		}
	}
}

func (n *Notifier) send(ctx context.Context, m Message) {
	attempts := 1 + n.cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := n.limiter.Wait(ctx); err != nil {
			return
		}
		callCtx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
		err := n.sender.Send(callCtx, n.cfg.ChatID, n.cfg.ThreadID, m.Text)
		cancel()
		if err == nil {
			n.sent.Add(1)
			return
		}
		lastErr = err
		n.log.Debug("notify send failed", logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", attempts))
		if attempt == attempts {
			break
		}
		t := time.NewTimer(retryDelay * time.Duration(attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return
		}
	}
	n.failed.Add(1)
	n.log.Warn("notify failed", logx.String("frame", m.Frame), logx.String("event", m.Event), logx.Err(lastErr))
}

// Stats reports sent, failed and dropped message counts.
func (n *Notifier) Stats() (sent, failed, dropped uint64) {
	return n.sent.Load(), n.failed.Load(), n.dropped.Load()
}
