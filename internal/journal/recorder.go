package journal

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rodrigorodrigues/kairos/internal/eventbus"
	"github.com/rodrigorodrigues/kairos/internal/scheduler"
	"github.com/rodrigorodrigues/kairos/internal/timeframe"
	logx "github.com/rodrigorodrigues/kairos/pkg/logx"
)

const (
	defaultQueueSize = 256
	appendTimeout    = 5 * time.Second
)

// Recorder turns relayed lifecycle events into entries and appends them on
// its own goroutine so that slow storage never delays frame timers.
type Recorder struct {
	store Store
	log   logx.Logger
	queue chan Entry

	dropped atomic.Uint64
	written atomic.Uint64

	mu   sync.Mutex
	subs []eventbus.Subscription
	bus  *eventbus.Bus
}

func NewRecorder(store Store, log logx.Logger, queueSize int) *Recorder {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Recorder{store: store, log: log, queue: make(chan Entry, queueSize)}
}

// Attach subscribes to every generic relay channel of bus.
func (r *Recorder) Attach(bus *eventbus.Bus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bus = bus
	for _, ch := range scheduler.GenericChannels() {
		r.subs = append(r.subs, bus.Subscribe(ch, r.handle))
	}
}

// Detach removes the subscriptions made by Attach.
func (r *Recorder) Detach() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.subs {
		r.bus.Unsubscribe(s)
	}
	r.subs = nil
}

func (r *Recorder) handle(e eventbus.Event) error {
	entry := EntryFromEvent(e)
	select {
	case r.queue <- entry:
	default:
		if r.dropped.Add(1)%100 == 1 {
			r.log.Warn("journal queue full; dropping entries", logx.Uint64("dropped", r.dropped.Load()))
		}
	}
	return nil
}

// EntryFromEvent builds an entry from a relayed scheduler event.
func EntryFromEvent(e eventbus.Event) Entry {
	entry := Entry{
		ID:    uuid.NewString(),
		At:    e.Time,
		Event: scheduler.EventOf(e.Channel),
	}
	if entry.Event == "" {
		entry.Event = e.Channel
	}
	if f, ok := e.Arg(0).(*timeframe.Frame); ok && f != nil {
		entry.Frame = f.Name()
	}
	if data := e.Arg(1); data != nil {
		if b, err := json.Marshal(data); err == nil {
			entry.Data = b
		}
	}
	if rem, ok := e.Arg(2).(int64); ok {
		entry.RemainingMS = rem
	}
	return entry
}

// Run writes queued entries until ctx is done, then drains what is left.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			r.drain()
			return nil
		case e := <-r.queue:
			r.write(context.Background(), e)
		}
	}
}

func (r *Recorder) drain() {
	for {
		select {
		case e := <-r.queue:
			r.write(context.Background(), e)
		default:
			return
		}
	}
}

func (r *Recorder) write(parent context.Context, e Entry) {
	ctx, cancel := context.WithTimeout(parent, appendTimeout)
	defer cancel()
	if err := r.store.Append(ctx, e); err != nil {
		r.log.Warn("journal append failed", logx.String("frame", e.Frame), logx.String("event", e.Event), logx.Err(err))
		return
	}
	r.written.Add(1)
}

// Stats reports written and dropped entry counts.
func (r *Recorder) Stats() (written, dropped uint64) {
	return r.written.Load(), r.dropped.Load()
}
