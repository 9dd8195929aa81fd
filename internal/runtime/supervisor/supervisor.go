// Package supervisor runs the daemon's long-lived workers under one context.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	logx "github.com/rodrigorodrigues/kairos/pkg/logx"
)

// Supervisor starts named workers, recovers their panics and records the
// first failure. With cancel-on-error the first failure stops every worker.
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc

	log         logx.Logger
	cancelOnErr bool

	wg       sync.WaitGroup
	errOnce  sync.Once
	firstErr atomic.Value
	doneOnce sync.Once
	doneCh   chan struct{}

	mu      sync.Mutex
	workers map[string]*worker
}

type Option func(*Supervisor)

func WithLogger(log logx.Logger) Option { return func(s *Supervisor) { s.log = log } }

// WithCancelOnError cancels the shared context on the first worker error.
func WithCancelOnError(enabled bool) Option {
	return func(s *Supervisor) { s.cancelOnErr = enabled }
}

func New(parent context.Context, opts ...Option) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	s := &Supervisor{
		ctx:     ctx,
		cancel:  cancel,
		log:     logx.Nop(),
		doneCh:  make(chan struct{}),
		workers: map[string]*worker{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// Cancel stops the shared context without waiting.
func (s *Supervisor) Cancel() { s.cancel() }

// Err returns the first recorded worker failure.
func (s *Supervisor) Err() error {
	if err, ok := s.firstErr.Load().(error); ok {
		return err
	}
	return nil
}

func (s *Supervisor) fail(err error) {
	s.errOnce.Do(func() { s.firstErr.Store(err) })
	if s.cancelOnErr {
		s.cancel()
	}
}

// Go runs fn once. A returned context.Canceled counts as a clean stop.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		w := s.worker(name)
		w.begin(false)
		s.log.Debug("worker started", logx.String("worker", name))

		err := s.call(name, w, fn)
		if err != nil && !errors.Is(err, context.Canceled) {
			err = fmt.Errorf("%s: %w", name, err)
			w.end(err)
			s.log.Error("worker failed", logx.String("worker", name), logx.Err(err))
			s.fail(err)
			return
		}
		w.end(nil)
		s.log.Debug("worker stopped", logx.String("worker", name))
	}()
}

// call runs fn and converts a panic into an error.
func (s *Supervisor) call(name string, w *worker, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.panicked(r)
			s.log.Error("worker panicked", logx.String("worker", name), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(s.ctx)
}

type restartConfig struct {
	min, max    time.Duration
	maxRestarts int
}

type RestartOption func(*restartConfig)

// WithBackoff bounds the jittered exponential delay between restarts.
func WithBackoff(min, max time.Duration) RestartOption {
	return func(c *restartConfig) {
		if min > 0 {
			c.min = min
		}
		if max > 0 {
			c.max = max
		}
	}
}

// WithMaxRestarts gives up after n restarts; n <= 0 means never.
func WithMaxRestarts(n int) RestartOption { return func(c *restartConfig) { c.maxRestarts = n } }

// GoRestart runs fn and restarts it after an error or panic until the
// context ends. A nil return stops it for good. Giving up after the restart
// limit is reported like a Go failure.
func (s *Supervisor) GoRestart(name string, fn func(ctx context.Context) error, opts ...RestartOption) {
	if fn == nil {
		return
	}
	cfg := restartConfig{min: 250 * time.Millisecond, max: 30 * time.Second}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.max < cfg.min {
		cfg.max = cfg.min
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		w := s.worker(name)
		backoff := cfg.min
		for restarts := 0; ; restarts++ {
			if s.ctx.Err() != nil {
				return
			}
			started := w.begin(restarts > 0)
			err := s.call(name, w, fn)
			if s.ctx.Err() != nil || err == nil || errors.Is(err, context.Canceled) {
				w.end(nil)
				return
			}
			err = fmt.Errorf("%s: %w", name, err)
			w.end(err)

			if cfg.maxRestarts > 0 && restarts >= cfg.maxRestarts {
				s.log.Error("worker gave up", logx.String("worker", name), logx.Int("restarts", restarts), logx.Err(err))
				s.fail(err)
				return
			}
			// A long healthy run resets the delay.
			if time.Since(started) >= cfg.max {
				backoff = cfg.min
			}
			wait := backoff + time.Duration(rand.Int63n(int64(backoff/5+1)))
			s.log.Warn("worker restarting", logx.String("worker", name), logx.Duration("backoff", wait), logx.Err(err))

			t := time.NewTimer(wait)
			select {
			case <-s.ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
			backoff = min(backoff*2, cfg.max)
		}
	}()
}

// Stop cancels the shared context and waits for the workers.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.cancel()
	return s.Wait(ctx)
}

// Wait blocks until every worker returned or ctx ends.
func (s *Supervisor) Wait(ctx context.Context) error {
	s.doneOnce.Do(func() {
		go func() {
			s.wg.Wait()
			close(s.doneCh)
		}()
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.doneCh:
		return s.Err()
	}
}

// WorkerStatus describes one named worker.
type WorkerStatus struct {
	Name      string        `json:"name"`
	Running   bool          `json:"running"`
	Runs      uint64        `json:"runs"`
	Restarts  uint64        `json:"restarts"`
	Panics    uint64        `json:"panics"`
	StartedAt time.Time     `json:"started_at"`
	Uptime    time.Duration `json:"uptime"`
	LastErr   string        `json:"last_err,omitempty"`
}

// Status lists the workers, running ones first.
func (s *Supervisor) Status() []WorkerStatus {
	s.mu.Lock()
	out := make([]WorkerStatus, 0, len(s.workers))
	for _, w := range s.workers {
		out = append(out, w.status())
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Running != out[j].Running {
			return out[i].Running
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (s *Supervisor) worker(name string) *worker {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workers[name]
	if !ok {
		w = &worker{name: name}
		s.workers[name] = w
	}
	return w
}

type worker struct {
	name string

	mu        sync.Mutex
	running   int
	runs      uint64
	restarts  uint64
	panics    uint64
	startedAt time.Time
	lastErr   string
}

func (w *worker) begin(restart bool) time.Time {
	now := time.Now()
	w.mu.Lock()
	w.running++
	w.runs++
	if restart {
		w.restarts++
	}
	w.startedAt = now
	w.mu.Unlock()
	return now
}

func (w *worker) end(err error) {
	w.mu.Lock()
	if w.running > 0 {
		w.running--
	}
	if err != nil {
		w.lastErr = err.Error()
	}
	w.mu.Unlock()
}

func (w *worker) panicked(p any) {
	w.mu.Lock()
	w.panics++
	w.lastErr = fmt.Sprint("panic: ", p)
	w.mu.Unlock()
}

func (w *worker) status() WorkerStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	st := WorkerStatus{
		Name:      w.name,
		Running:   w.running > 0,
		Runs:      w.runs,
		Restarts:  w.restarts,
		Panics:    w.panics,
		StartedAt: w.startedAt,
		LastErr:   w.lastErr,
	}
	if st.Running {
		st.Uptime = time.Since(w.startedAt)
	}
	return st
}
