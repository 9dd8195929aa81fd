package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/rodrigorodrigues/kairos/internal/eventbus"
	"github.com/rodrigorodrigues/kairos/internal/scheduler"
	"github.com/rodrigorodrigues/kairos/internal/timeframe"
	logx "github.com/rodrigorodrigues/kairos/pkg/logx"
)

const queueSize = 256

// Relay publishes scheduler events through a Publisher on its own goroutine.
type Relay struct {
	pub    Publisher
	prefix string
	nodeID string
	log    logx.Logger

	cfg   Config
	queue chan Envelope

	published atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64

	mu   sync.Mutex
	bus  *eventbus.Bus
	subs []eventbus.Subscription
}

// Open connects the configured driver. It returns (nil, nil) when the relay
// is disabled.
func Open(ctx context.Context, cfg Config, log logx.Logger) (*Relay, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = withDefaults(cfg)
	log = log.With(logx.String("relay", driver))

	var (
		pub Publisher
		err error
	)
	switch driver {
	case "redis":
		pub, err = newRedisPublisher(ctx, cfg.URL, cfg.Timeout)
	case "nats":
		pub, err = newNATSPublisher(cfg.URL, cfg.NodeID, cfg.Timeout, log)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
	}
	if err != nil {
		return nil, err
	}
	log.Info("relay connected", logx.String("prefix", cfg.Prefix), logx.String("node_id", cfg.NodeID))
	return New(pub, cfg, log), nil
}

func withDefaults(cfg Config) Config {
	cfg.Prefix = strings.Trim(strings.TrimSpace(cfg.Prefix), ".")
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if strings.TrimSpace(cfg.NodeID) == "" {
		cfg.NodeID = uuid.NewString()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return cfg
}

// New wraps an existing publisher.
func New(pub Publisher, cfg Config, log logx.Logger) *Relay {
	cfg = withDefaults(cfg)
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Relay{
		pub:    pub,
		prefix: cfg.Prefix,
		nodeID: cfg.NodeID,
		log:    log,
		cfg:    cfg,
		queue:  make(chan Envelope, queueSize),
	}
}

func (r *Relay) NodeID() string { return r.nodeID }

// Attach subscribes to every generic relay channel of bus.
func (r *Relay) Attach(bus *eventbus.Bus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bus = bus
	for _, ch := range scheduler.GenericChannels() {
		r.subs = append(r.subs, bus.Subscribe(ch, r.handle))
	}
}

func (r *Relay) Detach() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.subs {
		r.bus.Unsubscribe(s)
	}
	r.subs = nil
}

func (r *Relay) handle(e eventbus.Event) error {
	select {
	case r.queue <- r.envelope(e):
	default:
		if r.dropped.Add(1)%100 == 1 {
			r.log.Warn("relay queue full; dropping events", logx.Uint64("dropped", r.dropped.Load()))
		}
	}
	return nil
}

func (r *Relay) envelope(e eventbus.Event) Envelope {
	env := Envelope{
		Event:     scheduler.EventOf(e.Channel),
		At:        e.Time,
		NodeID:    r.nodeID,
		MessageID: uuid.NewString(),
	}
	if env.Event == "" {
		env.Event = e.Channel
	}
	if f, ok := e.Arg(0).(*timeframe.Frame); ok && f != nil {
		env.Frame = f.Name()
	}
	if data := e.Arg(1); data != nil {
		if b, err := json.Marshal(data); err == nil {
			env.Data = b
		} else {
			r.log.Debug("relay data not serializable", logx.String("frame", env.Frame), logx.Err(err))
		}
	}
	if rem, ok := e.Arg(2).(int64); ok {
		env.RemainingMS = rem
	}
	return env
}

// Run publishes queued envelopes until ctx is done, then flushes what is
// queued and closes the publisher.
func (r *Relay) Run(ctx context.Context) error {
	defer func() {
		if err := r.pub.Close(); err != nil {
			r.log.Warn("relay close failed", logx.Err(err))
		}
	}()
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case env := <-r.queue:
					r.send(context.Background(), env)
				default:
					return nil
				}
			}
		case env := <-r.queue:
			r.send(ctx, env)
		}
	}
}

func (r *Relay) send(parent context.Context, env Envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		r.failed.Add(1)
		r.log.Warn("relay encode failed", logx.Err(err))
		return
	}
	ctx, cancel := context.WithTimeout(parent, r.cfg.Timeout)
	defer cancel()
	subject := Subject(r.prefix, env.Event)
	if err := r.pub.Publish(ctx, subject, payload); err != nil {
		r.failed.Add(1)
		r.log.Warn("relay publish failed", logx.String("subject", subject), logx.Err(err))
		return
	}
	r.published.Add(1)
}

// Stats reports published, failed and dropped counts.
func (r *Relay) Stats() (published, failed, dropped uint64) {
	return r.published.Load(), r.failed.Load(), r.dropped.Load()
}
