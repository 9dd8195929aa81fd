package scheduler

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rodrigorodrigues/kairos/internal/clock"
	"github.com/rodrigorodrigues/kairos/internal/eventbus"
	"github.com/rodrigorodrigues/kairos/internal/timeframe"
	"github.com/rodrigorodrigues/kairos/internal/timespec"
	logx "github.com/rodrigorodrigues/kairos/pkg/logx"
)

// Scheduler fans lifecycle operations out to its frames in construction order.
type Scheduler struct {
	log logx.Logger
	clk clock.Clock
	bus *eventbus.Bus
	loc *time.Location

	frames []*timeframe.Frame
	byName map[string]*timeframe.Frame

	mu     sync.Mutex
	relays []relaySub
}

// New resolves cfg and builds one frame per entry. Unless cfg.AutoStart is
// false every frame is started before New returns.
func New(cfg Config, opts ...Option) (*Scheduler, error) {
	o := options{}
	for _, fn := range opts {
		fn(&o)
	}
	if o.clk == nil {
		o.clk = clock.Real{}
	}
	if o.log.IsZero() {
		o.log = logx.Nop()
	}
	if o.bus == nil {
		o.bus = eventbus.New(eventbus.WithLogger(o.log), eventbus.WithNow(o.clk.Now))
	}

	if err := checkNames(cfg.Frames); err != nil {
		return nil, err
	}
	loc, err := loadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}
	resolved, err := timespec.Normalize(cfg.Times, cfg.Frames,
		timespec.WithLogger(o.log), timespec.WithLocation(loc))
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		log:    o.log,
		clk:    o.clk,
		bus:    o.bus,
		loc:    loc,
		frames: make([]*timeframe.Frame, 0, len(resolved)),
		byName: make(map[string]*timeframe.Frame, len(resolved)),
	}
	for _, r := range resolved {
		f := timeframe.New(r, timeframe.WithClock(o.clk), timeframe.WithLogger(o.log))
		s.frames = append(s.frames, f)
		if r.Name != "" {
			s.byName[r.Name] = f
		}
		s.relay(f)
	}
	s.log.Debug("timeline built", logx.Int("frames", len(s.frames)), logx.String("tz", loc.String()))

	if cfg.autoStart() {
		s.Start()
	}
	return s, nil
}

func checkNames(frames []timespec.FrameSpec) error {
	seen := make(map[string]struct{}, len(frames))
	for _, f := range frames {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			return &DuplicateNameError{Name: name}
		}
		seen[name] = struct{}{}
	}
	return nil
}

func loadLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", tz, err)
	}
	return loc, nil
}

// Start starts every frame. Frames already started are left alone.
func (s *Scheduler) Start() {
	for _, f := range s.frames {
		f.Start()
	}
	s.log.Info("timeline started", logx.Int("frames", len(s.frames)))
}

// Pause mutes every frame.
func (s *Scheduler) Pause() {
	for _, f := range s.frames {
		f.Pause()
	}
	s.log.Info("timeline paused")
}

// Resume unmutes every frame.
func (s *Scheduler) Resume() {
	for _, f := range s.frames {
		f.Resume()
	}
	s.log.Info("timeline resumed")
}

// Stop cancels every frame's timers and detaches the relays. No further
// events are published for this timeline.
func (s *Scheduler) Stop() {
	for _, f := range s.frames {
		f.Stop()
	}
	s.detach()
	s.log.Info("timeline stopped")
}

// PauseFrame mutes a single named frame.
func (s *Scheduler) PauseFrame(name string) error {
	f, err := s.Frame(name)
	if err != nil {
		return err
	}
	f.Pause()
	return nil
}

// ResumeFrame unmutes a single named frame.
func (s *Scheduler) ResumeFrame(name string) error {
	f, err := s.Frame(name)
	if err != nil {
		return err
	}
	f.Resume()
	return nil
}

// Frame looks a frame up by name.
func (s *Scheduler) Frame(name string) (*timeframe.Frame, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &MissingParameterError{Param: "name"}
	}
	f, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrFrameNotFound, name)
	}
	return f, nil
}

// Frames returns the frames in construction order.
func (s *Scheduler) Frames() []*timeframe.Frame {
	out := make([]*timeframe.Frame, len(s.frames))
	copy(out, s.frames)
	return out
}

func (s *Scheduler) Len() int { return len(s.frames) }

// Location is the zone dates without offset were read in.
func (s *Scheduler) Location() *time.Location { return s.loc }

func (s *Scheduler) Bus() *eventbus.Bus { return s.bus }

func (s *Scheduler) Subscribe(channel string, h eventbus.Handler) eventbus.Subscription {
	return s.bus.Subscribe(channel, h)
}

func (s *Scheduler) Unsubscribe(sub eventbus.Subscription) bool { return s.bus.Unsubscribe(sub) }

// Publish publishes on the scheduler's bus with the scheduler as scope.
func (s *Scheduler) Publish(channel string, args ...any) int {
	return s.bus.PublishScoped(channel, s, args...)
}
