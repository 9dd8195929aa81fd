package app

import (
	"context"
	"slices"
	"strings"

	"github.com/rodrigorodrigues/kairos/internal/config"
	logx "github.com/rodrigorodrigues/kairos/pkg/logx"
)

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: only the newest config matters.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					break drain
				}
			}
			if next == nil {
				continue
			}
			a.apply(last, next)
			last = next
		}
	}
}

// apply moves the running process from prev to next. Logging and the timeline
// change live; the other sections need a restart.
func (a *App) apply(prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		a.metrics.Reloaded(true)
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	if slices.Contains(sections, config.SectionLogging) {
		a.logs.Apply(mapLogging(next))
	}
	if slices.Contains(sections, config.SectionTimeline) {
		if err := a.swapTimeline(next); err != nil {
			a.log.Warn("timeline reload failed; keeping previous", logx.Err(err))
			a.metrics.Reloaded(false)
			return
		}
	}
	for _, s := range []string{config.SectionJournal, config.SectionRelay, config.SectionNotify, config.SectionHTTP} {
		if slices.Contains(sections, s) {
			a.log.Warn("config section changed; restart required for changes to take effect", logx.String("section", s))
		}
	}

	a.metrics.Reloaded(true)
	a.log.Info("config reloaded", fields...)
}

// swapTimeline replaces the running scheduler. The old one is stopped before
// the new one starts so a frame never fires twice.
func (a *App) swapTimeline(cfg *config.Config) error {
	sc, autoStart := mapTimeline(cfg)
	root := a.logs.Logger()
	next, err := a.newScheduler(sc, root)
	if err != nil {
		return err
	}

	a.mu.Lock()
	prev := a.sched
	a.sched = next
	a.autoStart = autoStart
	a.mu.Unlock()

	if prev != nil {
		prev.Stop()
	}
	if autoStart {
		next.Start()
	}
	a.log.Info("timeline replaced", logx.Int("frames", next.Len()), logx.Bool("started", autoStart))
	return nil
}
