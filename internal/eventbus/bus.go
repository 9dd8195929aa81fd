package eventbus

import (
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	logx "github.com/rodrigorodrigues/kairos/pkg/logx"
)

// Event is one delivery to one subscriber.
type Event struct {
	Channel string
	Args    []any
	// Scope is the optional context value the publisher passed along
	// (the frame or scheduler that emitted the event).
	Scope any
	Time  time.Time
}

// Arg returns Args[i], or nil when out of range.
func (e Event) Arg(i int) any {
	if i < 0 || i >= len(e.Args) {
		return nil
	}
	return e.Args[i]
}

// Handler receives events. A returned error is reported, never propagated.
type Handler func(e Event) error

// Subscription identifies one Subscribe call.
type Subscription struct {
	Channel string
	id      uint64
}

func (s Subscription) IsZero() bool { return s.id == 0 }

type subscriber struct {
	id uint64
	h  Handler
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the diagnostic sink for subscriber failures.
func WithLogger(log logx.Logger) Option {
	return func(b *Bus) { b.log = log }
}

// WithNow overrides the timestamp source stamped on events.
func WithNow(now func() time.Time) Option {
	return func(b *Bus) { b.now = now }
}

// WithFailureHook is called (after logging) for every failed delivery.
func WithFailureHook(fn func(channel string, err error)) Option {
	return func(b *Bus) { b.onFailure = fn }
}

// Bus is safe for concurrent use.
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]subscriber
	seq  atomic.Uint64

	log       logx.Logger
	now       func() time.Time
	onFailure func(channel string, err error)

	failures atomic.Uint64

	// Failure report throttling: key is channel name.
	warnMu   sync.Mutex
	lastWarn map[string]time.Time
}

// New returns an empty bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		subs:     map[string][]subscriber{},
		now:      time.Now,
		lastWarn: map[string]time.Time{},
	}
	for _, o := range opts {
		o(b)
	}
	if b.log.IsZero() {
		b.log = logx.Nop()
	}
	return b
}

// Subscribe registers h on channel. Subscribing to a new channel creates it.
func (b *Bus) Subscribe(channel string, h Handler) Subscription {
	if h == nil {
		return Subscription{}
	}
	id := b.seq.Add(1)
	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], subscriber{id: id, h: h})
	b.mu.Unlock()
	return Subscription{Channel: channel, id: id}
}

// SubscribeFunc is Subscribe for handlers that cannot fail.
func (b *Bus) SubscribeFunc(channel string, fn func(e Event)) Subscription {
	if fn == nil {
		return Subscription{}
	}
	return b.Subscribe(channel, func(e Event) error {
		fn(e)
		return nil
	})
}

// Unsubscribe removes a subscription. It returns false if it was not registered.
func (b *Bus) Unsubscribe(s Subscription) bool {
	if s.IsZero() {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[s.Channel]
	for i, sub := range list {
		if sub.id != s.id {
			continue
		}
		if len(list) == 1 {
			delete(b.subs, s.Channel)
			return true
		}
		// Copy instead of shifting in place: in-flight publishes hold the old slice.
		next := make([]subscriber, 0, len(list)-1)
		next = append(next, list[:i]...)
		next = append(next, list[i+1:]...)
		b.subs[s.Channel] = next
		return true
	}
	return false
}

// Publish delivers args to every current subscriber of channel and returns
// how many subscribers were invoked.
func (b *Bus) Publish(channel string, args ...any) int {
	return b.PublishScoped(channel, nil, args...)
}

// PublishScoped is Publish with a scope value attached to the event.
func (b *Bus) PublishScoped(channel string, scope any, args ...any) int {
	b.mu.RLock()
	list := b.subs[channel]
	b.mu.RUnlock()
	if len(list) == 0 {
		return 0
	}

	// list is never mutated in place (Subscribe may append into spare capacity,
	// which is past len(list)), so it is a stable snapshot.
	ev := Event{Channel: channel, Args: args, Scope: scope, Time: b.now()}
	for _, sub := range list {
		b.deliver(sub, ev)
	}
	return len(list)
}

func (b *Bus) deliver(sub subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.reportFailure(ev.Channel, fmt.Errorf("subscriber panic: %v", r), string(debug.Stack()))
		}
	}()
	if err := sub.h(ev); err != nil {
		b.reportFailure(ev.Channel, err, "")
	}
}

// Has reports whether channel has at least one subscriber.
func (b *Bus) Has(channel string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.subs[channel]
	return ok
}

// Count returns the number of subscribers on channel.
func (b *Bus) Count(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[channel])
}

// Channels returns the number of channels with subscribers.
func (b *Bus) Channels() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Failures returns how many deliveries failed since the bus was created.
func (b *Bus) Failures() uint64 { return b.failures.Load() }
