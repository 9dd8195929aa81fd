// Package metrics exposes scheduler activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rodrigorodrigues/kairos/internal/eventbus"
	"github.com/rodrigorodrigues/kairos/internal/scheduler"
	"github.com/rodrigorodrigues/kairos/internal/timeframe"
)

const namespace = "kairos"

// Metrics owns a private registry so that tests and reloads never collide
// with the global one.
type Metrics struct {
	reg *prometheus.Registry

	events      *prometheus.CounterVec
	active      prometheus.Gauge
	frames      prometheus.Gauge
	busFailures prometheus.Counter
	reloads     *prometheus.CounterVec

	mu   sync.Mutex
	bus  *eventbus.Bus
	subs []eventbus.Subscription
	live map[*timeframe.Frame]struct{}
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frame_events_total",
			Help:      "Frame lifecycle events by kind.",
		}, []string{"event"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "frames_active",
			Help:      "Frames that have begun and not yet ended.",
		}),
		frames: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Frames in the current timeline.",
		}),
		busFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_failures_total",
			Help:      "Event handlers that returned an error or panicked.",
		}),
		reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_reloads_total",
			Help:      "Configuration reloads by result.",
		}, []string{"result"}),
		live: map[*timeframe.Frame]struct{}{},
	}
	m.reg.MustRegister(
		m.events, m.active, m.frames, m.busFailures, m.reloads,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	for _, ev := range timeframe.Events {
		m.events.WithLabelValues(ev)
	}
	return m
}

// Registry returns the registry backing Handler.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Attach counts the generic relay events published on bus.
func (m *Metrics) Attach(bus *eventbus.Bus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bus = bus
	for _, ch := range scheduler.GenericChannels() {
		m.subs = append(m.subs, bus.Subscribe(ch, m.handle))
	}
}

// Detach removes the subscriptions made by Attach.
func (m *Metrics) Detach() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		m.bus.Unsubscribe(s)
	}
	m.subs = nil
}

// Reset sets the timeline gauges for a freshly built scheduler.
func (m *Metrics) Reset(frames int) {
	m.mu.Lock()
	m.live = map[*timeframe.Frame]struct{}{}
	m.mu.Unlock()
	m.frames.Set(float64(frames))
	m.active.Set(0)
}

// HandlerFailed counts one failing bus handler. It matches the signature of
// eventbus.WithFailureHook.
func (m *Metrics) HandlerFailed(string, error) { m.busFailures.Inc() }

// Reloaded counts a configuration reload attempt.
func (m *Metrics) Reloaded(ok bool) {
	if ok {
		m.reloads.WithLabelValues("ok").Inc()
		return
	}
	m.reloads.WithLabelValues("error").Inc()
}

func (m *Metrics) handle(e eventbus.Event) error {
	event := scheduler.EventOf(e.Channel)
	m.events.WithLabelValues(event).Inc()

	f, _ := e.Arg(0).(*timeframe.Frame)
	if f == nil {
		return nil
	}
	m.mu.Lock()
	switch event {
	case timeframe.EventBegan:
		m.live[f] = struct{}{}
	case timeframe.EventEnded:
		delete(m.live, f)
	}
	n := len(m.live)
	m.mu.Unlock()
	m.active.Set(float64(n))
	return nil
}
