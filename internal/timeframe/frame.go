package timeframe

import (
	"math"
	"sync"
	"time"

	"github.com/rodrigorodrigues/kairos/internal/clock"
	"github.com/rodrigorodrigues/kairos/internal/eventbus"
	"github.com/rodrigorodrigues/kairos/internal/timespec"
	logx "github.com/rodrigorodrigues/kairos/pkg/logx"
)

// Lifecycle event names (generic channels).
const (
	EventBegan   = "began"
	EventTicked  = "ticked"
	EventEnded   = "ended"
	EventMuted   = "muted"
	EventUnmuted = "unmuted"
)

// Events lists every lifecycle event in the order a frame can emit them.
var Events = []string{EventBegan, EventTicked, EventMuted, EventUnmuted, EventEnded}

// State is the lifecycle position of a frame.
type State int

const (
	Pending State = iota
	Started
	Ended
)

func (s State) String() string {
	switch s {
	case Started:
		return "started"
	case Ended:
		return "ended"
	default:
		return "pending"
	}
}

// Option configures a Frame.
type Option func(*Frame)

func WithClock(c clock.Clock) Option { return func(f *Frame) { f.clk = c } }

func WithLogger(log logx.Logger) Option { return func(f *Frame) { f.log = log } }

// WithBus publishes on b instead of a private bus.
func WithBus(b *eventbus.Bus) Option { return func(f *Frame) { f.bus = b } }

type emission struct {
	event     string
	remaining int64
}

// Frame is safe for concurrent use. Timer callbacks may run on other goroutines.
type Frame struct {
	spec  timespec.Resolved
	sched tickSchedule
	clk   clock.Clock
	bus   *eventbus.Bus
	log   logx.Logger

	mu      sync.Mutex
	started bool
	ended   bool
	paused  bool
	stopped bool

	beginTimer clock.Timer
	tickTimer  clock.Timer
	endTimer   clock.Timer
	// tickGen invalidates tick callbacks that were already in flight when
	// their timer was cancelled.
	tickGen  uint64
	tickDue  int64
	ticks    uint64
	lastTick int64

	queue    []emission
	flushing bool
}

// New builds a pending frame. Nothing is scheduled until Start.
func New(spec timespec.Resolved, opts ...Option) *Frame {
	f := &Frame{spec: spec}
	for _, o := range opts {
		o(f)
	}
	if f.clk == nil {
		f.clk = clock.Real{}
	}
	if f.log.IsZero() {
		f.log = logx.Nop()
	}
	if spec.Name != "" {
		f.log = f.log.With(logx.String("frame", spec.Name))
	}
	if f.bus == nil {
		f.bus = eventbus.New(eventbus.WithLogger(f.log), eventbus.WithNow(f.clk.Now))
	}
	f.sched = newTickSchedule(spec.TickInterval, spec.Sync.Basis(spec.TickInterval))
	return f
}

func (f *Frame) Name() string { return f.spec.Name }

// Spec returns the resolved description the frame was built from.
func (f *Frame) Spec() timespec.Resolved { return f.spec }

// Bus is where the frame publishes its events.
func (f *Frame) Bus() *eventbus.Bus { return f.bus }

// Subscribe registers h for a lifecycle event of this frame.
func (f *Frame) Subscribe(event string, h eventbus.Handler) eventbus.Subscription {
	return f.bus.Subscribe(event, h)
}

// Unsubscribe removes a subscription made with Subscribe.
func (f *Frame) Unsubscribe(s eventbus.Subscription) bool { return f.bus.Unsubscribe(s) }

// Channel returns the named channel for event, or the generic one for unnamed frames.
func (f *Frame) Channel(event string) string {
	if f.spec.Name == "" {
		return event
	}
	return f.spec.Name + "/" + event
}

func (f *Frame) nowMillis() int64 { return f.clk.Now().UnixMilli() }

// maxDelayMillis is the longest wait a time.Duration can hold. Timers for
// later deadlines fire early and are re-armed until the deadline is reached.
const maxDelayMillis = math.MaxInt64 / int64(time.Millisecond)

func delay(ms int64) time.Duration {
	if ms <= 0 {
		return 0
	}
	if ms > maxDelayMillis {
		ms = maxDelayMillis
	}
	return time.Duration(ms) * time.Millisecond
}

// Start begins the frame now if its begin time has passed, otherwise at
// its begin time. Calling Start again is a no-op.
func (f *Frame) Start() {
	f.mu.Lock()
	if f.started || f.stopped || f.beginTimer != nil {
		f.mu.Unlock()
		return
	}
	now := f.nowMillis()
	if now >= f.spec.BeginsAt {
		f.beginLocked(now)
	} else {
		wait := delay(f.spec.BeginsAt - now)
		f.beginTimer = f.clk.AfterFunc(wait, f.onBegin)
		f.log.Debug("frame begin scheduled", logx.Int64("begins_at", f.spec.BeginsAt), logx.Duration("in", wait))
	}
	f.mu.Unlock()
	f.flush()
}

func (f *Frame) onBegin() {
	f.mu.Lock()
	f.beginTimer = nil
	if f.started || f.stopped {
		f.mu.Unlock()
		return
	}
	if now := f.nowMillis(); now < f.spec.BeginsAt {
		f.beginTimer = f.clk.AfterFunc(delay(f.spec.BeginsAt-now), f.onBegin)
		f.mu.Unlock()
		return
	}
	f.beginLocked(f.nowMillis())
	f.mu.Unlock()
	f.flush()
}

func (f *Frame) beginLocked(now int64) {
	f.started = true
	f.emitLocked(EventBegan, now)
	f.log.Debug("frame began", logx.Int64("at", now))

	if f.spec.TickInterval > 0 && !f.paused {
		f.tickLocked(now)
	}
	if !f.spec.Bounded() {
		return
	}
	if now >= f.spec.EndsAt {
		f.endLocked(now)
		return
	}
	f.endTimer = f.clk.AfterFunc(delay(f.spec.EndsAt-now), f.onEnd)
}

// tickLocked fires one tick and schedules the next one.
func (f *Frame) tickLocked(now int64) {
	if !f.started || f.ended || f.paused || f.stopped {
		return
	}
	f.ticks++
	f.lastTick = now
	f.emitLocked(EventTicked, now)

	f.tickGen++
	f.tickDue = f.sched.NextMillis(now)
	f.armTickLocked(now)
}

func (f *Frame) armTickLocked(now int64) {
	gen := f.tickGen
	f.tickTimer = f.clk.AfterFunc(delay(f.tickDue-now), func() { f.onTick(gen) })
}

func (f *Frame) onTick(gen uint64) {
	f.mu.Lock()
	if gen != f.tickGen {
		f.mu.Unlock()
		return
	}
	f.tickTimer = nil
	if now := f.nowMillis(); now < f.tickDue {
		f.armTickLocked(now)
	} else {
		f.tickLocked(now)
	}
	f.mu.Unlock()
	f.flush()
}

func (f *Frame) onEnd() {
	f.mu.Lock()
	f.endTimer = nil
	if now := f.nowMillis(); now < f.spec.EndsAt && !f.ended && !f.stopped {
		f.endTimer = f.clk.AfterFunc(delay(f.spec.EndsAt-now), f.onEnd)
		f.mu.Unlock()
		return
	}
	f.endLocked(f.nowMillis())
	f.mu.Unlock()
	f.flush()
}

// End ends a started frame now. It is a no-op before the frame began and
// after it ended.
func (f *Frame) End() {
	f.mu.Lock()
	f.endLocked(f.nowMillis())
	f.mu.Unlock()
	f.flush()
}

func (f *Frame) endLocked(now int64) {
	if f.ended || !f.started || f.stopped {
		return
	}
	f.ended = true
	f.cancelTickLocked()
	if f.endTimer != nil {
		f.endTimer.Stop()
		f.endTimer = nil
	}
	f.emitLocked(EventEnded, now)
	f.log.Debug("frame ended", logx.Int64("at", now), logx.Uint64("ticks", f.ticks))
}

func (f *Frame) cancelTickLocked() {
	f.tickGen++
	if f.tickTimer != nil {
		f.tickTimer.Stop()
		f.tickTimer = nil
	}
}

// Pause suspends recurring ticks. Begin and end still happen on time.
// Pausing a paused or ended frame is a no-op. A frame paused before it
// began starts without ticking and stays silent until Resume.
func (f *Frame) Pause() {
	f.mu.Lock()
	if f.paused || f.ended || f.stopped {
		f.mu.Unlock()
		return
	}
	f.paused = true
	f.cancelTickLocked()
	if f.started {
		f.emitLocked(EventMuted, f.nowMillis())
	}
	f.mu.Unlock()
	f.flush()
}

// Resume clears the paused flag and, for a running frame, ticks immediately
// and restarts the tick schedule from now. Resuming a frame that is not
// paused is a no-op; an ended frame only drops the flag.
func (f *Frame) Resume() {
	f.mu.Lock()
	if !f.paused {
		f.mu.Unlock()
		return
	}
	f.paused = false
	if f.started && !f.ended && !f.stopped {
		now := f.nowMillis()
		f.emitLocked(EventUnmuted, now)
		if f.spec.TickInterval > 0 {
			f.tickLocked(now)
		}
	}
	f.mu.Unlock()
	f.flush()
}

// Stop cancels every pending timer without emitting events. A stopped frame
// never starts, ticks or ends again.
func (f *Frame) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return
	}
	f.stopped = true
	f.cancelTickLocked()
	if f.beginTimer != nil {
		f.beginTimer.Stop()
		f.beginTimer = nil
	}
	if f.endTimer != nil {
		f.endTimer.Stop()
		f.endTimer = nil
	}
}

func (f *Frame) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stateLocked()
}

func (f *Frame) stateLocked() State {
	switch {
	case f.ended:
		return Ended
	case f.started:
		return Started
	default:
		return Pending
	}
}

func (f *Frame) Started() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

func (f *Frame) Ended() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ended
}

func (f *Frame) Paused() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paused
}

// Remaining is relatedTo minus now in milliseconds, 0 without relatedTo.
func (f *Frame) Remaining() int64 { return f.remainingAt(f.nowMillis()) }

func (f *Frame) remainingAt(now int64) int64 {
	if !f.spec.HasRelated {
		return 0
	}
	return f.spec.RelatedTo - now
}

func (f *Frame) emitLocked(event string, now int64) {
	f.queue = append(f.queue, emission{event: event, remaining: f.remainingAt(now)})
}

// flush publishes queued emissions in order. Only one goroutine flushes at a
// time; emissions queued meanwhile (including re-entrant ones from handlers)
// are picked up by the active flusher.
func (f *Frame) flush() {
	f.mu.Lock()
	if f.flushing {
		f.mu.Unlock()
		return
	}
	f.flushing = true
	for len(f.queue) > 0 {
		em := f.queue[0]
		f.queue = f.queue[1:]
		f.mu.Unlock()

		f.publish(em)

		f.mu.Lock()
	}
	f.queue = nil
	f.flushing = false
	f.mu.Unlock()
}

func (f *Frame) publish(em emission) {
	f.bus.PublishScoped(em.event, f, f.spec.Data, em.remaining)
	if f.spec.Name != "" {
		f.bus.PublishScoped(f.Channel(em.event), f, f.spec.Data, em.remaining)
	}
}
