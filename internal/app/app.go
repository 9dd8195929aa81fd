// Package app wires the timeline scheduler to its consumers and keeps the
// running process in sync with the config file.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rodrigorodrigues/kairos/internal/config"
	"github.com/rodrigorodrigues/kairos/internal/eventbus"
	"github.com/rodrigorodrigues/kairos/internal/httpapi"
	"github.com/rodrigorodrigues/kairos/internal/journal"
	"github.com/rodrigorodrigues/kairos/internal/metrics"
	"github.com/rodrigorodrigues/kairos/internal/notify"
	"github.com/rodrigorodrigues/kairos/internal/relay"
	"github.com/rodrigorodrigues/kairos/internal/runtime/supervisor"
	"github.com/rodrigorodrigues/kairos/internal/scheduler"
	logx "github.com/rodrigorodrigues/kairos/pkg/logx"
)

const relayConnectTimeout = 10 * time.Second

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  *eventbus.Bus

	metrics  *metrics.Metrics
	store    journal.Store
	recorder *journal.Recorder
	relay    *relay.Relay
	notif    *notify.Notifier
	http     *httpapi.Server

	mu        sync.RWMutex
	sched     *scheduler.Scheduler
	autoStart bool
}

// New loads the config at cfgPath and builds every enabled component. Nothing
// runs until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, root := logx.New(mapLogging(cfg))
	log := root.With(logx.String("comp", "app"))
	cfgm.SetLogger(root.With(logx.String("comp", "config")))

	a := &App{cfgm: cfgm, log: log, logs: logSvc, metrics: metrics.New()}
	a.bus = eventbus.New(
		eventbus.WithLogger(root.With(logx.String("comp", "eventbus"))),
		eventbus.WithFailureHook(a.metrics.HandlerFailed),
	)
	a.metrics.Attach(a.bus)

	if err := a.build(cfg, root); err != nil {
		a.close()
		return nil, err
	}

	sc, autoStart := mapTimeline(cfg)
	sched, err := a.newScheduler(sc, root)
	if err != nil {
		a.close()
		return nil, err
	}
	a.sched = sched
	a.autoStart = autoStart
	return a, nil
}

func (a *App) build(cfg *config.Config, root logx.Logger) error {
	if jc, ok := mapJournal(cfg); ok {
		st, err := journal.Open(jc, root.With(logx.String("comp", "journal")))
		if err != nil {
			return fmt.Errorf("journal: %w", err)
		}
		a.store = st
		a.recorder = journal.NewRecorder(st, root.With(logx.String("comp", "journal")), 0)
		a.recorder.Attach(a.bus)
		a.log.Info("journal enabled", logx.String("driver", jc.Driver))
	}

	if rc, ok := mapRelay(cfg); ok {
		ctx, cancel := context.WithTimeout(context.Background(), relayConnectTimeout)
		r, err := relay.Open(ctx, rc, root.With(logx.String("comp", "relay")))
		cancel()
		if err != nil {
			return fmt.Errorf("relay: %w", err)
		}
		a.relay = r
		a.relay.Attach(a.bus)
	}

	if nc, ok := mapNotify(cfg); ok {
		n, err := notify.Open(nc, root)
		if err != nil {
			return fmt.Errorf("notify: %w", err)
		}
		a.notif = n
		a.notif.Attach(a.bus)
		a.log.Info("notifications enabled", logx.Int64("chat_id", nc.ChatID))
	}

	if hc, ok := mapHTTP(cfg); ok {
		a.http = httpapi.New(hc, httpapi.Deps{
			Timeline: a.Timeline,
			Journal:  a.store,
			Bus:      a.bus,
			Metrics:  a.metrics.Handler(),
			Workers:  a.Workers,
		}, root)
	}
	return nil
}

func (a *App) newScheduler(sc scheduler.Config, root logx.Logger) (*scheduler.Scheduler, error) {
	s, err := scheduler.New(sc,
		scheduler.WithBus(a.bus),
		scheduler.WithLogger(root.With(logx.String("comp", "scheduler"))),
	)
	if err != nil {
		return nil, err
	}
	a.metrics.Reset(s.Len())
	return s, nil
}

// Timeline returns the current scheduler, or nil before New finished.
func (a *App) Timeline() httpapi.Timeline {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.sched == nil {
		return nil
	}
	return a.sched
}

// Scheduler returns the current scheduler. A timeline reload replaces it.
func (a *App) Scheduler() *scheduler.Scheduler {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.sched
}

// Workers reports the supervised background workers.
func (a *App) Workers() []supervisor.WorkerStatus {
	if a.sup == nil {
		return nil
	}
	return a.sup.Status()
}

// Done is closed when the app context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal worker error.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start launches the workers, then the timeline.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.cfgm.SetValidator(a.validate)

	if a.recorder != nil {
		a.sup.Go("journal.recorder", a.recorder.Run)
	}
	if a.relay != nil {
		a.sup.Go("relay", a.relay.Run)
	}
	if a.notif != nil {
		a.sup.Go("notify", a.notif.Run)
	}
	if a.http != nil {
		a.sup.Go("http", a.http.Run)
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
		return nil
	})
	a.sup.GoRestart("config.watch", a.cfgm.Watch, supervisor.WithBackoff(time.Second, 30*time.Second))

	if sched := a.Scheduler(); sched != nil && a.autoStart {
		sched.Start()
	}
	a.log.Info("app started", logx.Int("frames", a.Scheduler().Len()))
	return nil
}

// validate runs on every reload before the config is committed. Building a
// throwaway scheduler catches unresolved references and bad timezones.
func (a *App) validate(_ context.Context, cfg *config.Config) error {
	sc, _ := mapTimeline(cfg)
	if _, err := scheduler.New(sc); err != nil {
		a.metrics.Reloaded(false)
		return fmt.Errorf("timeline: %w", err)
	}
	return nil
}

// Stop halts the timeline first so no event is produced while the workers
// drain.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		a.close()
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	if sched := a.Scheduler(); sched != nil {
		sched.Stop()
	}
	err := a.sup.Stop(ctx)
	if err != nil {
		a.log.Warn("workers did not stop cleanly", logx.Err(err))
	}

	a.log.Info("stopped")
	a.close()
	return err
}

func (a *App) close() {
	if a.recorder != nil {
		a.recorder.Detach()
	}
	if a.relay != nil {
		a.relay.Detach()
	}
	if a.notif != nil {
		a.notif.Detach()
	}
	a.metrics.Detach()
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("journal close failed", logx.Err(err))
		}
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
}
