package scheduler

import (
	"github.com/rodrigorodrigues/kairos/internal/eventbus"
	"github.com/rodrigorodrigues/kairos/internal/timeframe"
)

var genericChannels = map[string]string{
	timeframe.EventBegan:   ChannelBegan,
	timeframe.EventTicked:  ChannelTicked,
	timeframe.EventEnded:   ChannelEnded,
	timeframe.EventMuted:   ChannelMuted,
	timeframe.EventUnmuted: ChannelUnmuted,
}

// GenericChannel maps a frame event to the scheduler's generic channel.
func GenericChannel(event string) string {
	if ch, ok := genericChannels[event]; ok {
		return ch
	}
	return ""
}

// EventOf is the inverse of GenericChannel.
func EventOf(channel string) string {
	for ev, ch := range genericChannels {
		if ch == channel {
			return ev
		}
	}
	return ""
}

// GenericChannels lists every generic relay channel.
func GenericChannels() []string {
	return []string{ChannelBegan, ChannelTicked, ChannelMuted, ChannelUnmuted, ChannelEnded}
}

type relaySub struct {
	frame *timeframe.Frame
	sub   eventbus.Subscription
}

func (s *Scheduler) relay(f *timeframe.Frame) {
	subs := make([]relaySub, 0, len(timeframe.Events))
	for _, ev := range timeframe.Events {
		ev := ev
		sub := f.Subscribe(ev, func(e eventbus.Event) error {
			s.forward(f, ev, e)
			return nil
		})
		subs = append(subs, relaySub{frame: f, sub: sub})
	}
	s.mu.Lock()
	s.relays = append(s.relays, subs...)
	s.mu.Unlock()
}

func (s *Scheduler) forward(f *timeframe.Frame, event string, e eventbus.Event) {
	data, remaining := e.Arg(0), e.Arg(1)
	s.bus.PublishScoped(GenericChannel(event), s, f, data, remaining)
	if f.Name() != "" {
		s.bus.PublishScoped(f.Channel(event), s, f, data, remaining)
	}
}

func (s *Scheduler) detach() {
	s.mu.Lock()
	subs := s.relays
	s.relays = nil
	s.mu.Unlock()
	for _, r := range subs {
		r.frame.Unsubscribe(r.sub)
	}
}
