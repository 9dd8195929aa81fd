package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rodrigorodrigues/kairos/internal/eventbus"
	"github.com/rodrigorodrigues/kairos/internal/journal"
	"github.com/rodrigorodrigues/kairos/internal/runtime/supervisor"
	"github.com/rodrigorodrigues/kairos/internal/scheduler"
	"github.com/rodrigorodrigues/kairos/internal/timeframe"
	logx "github.com/rodrigorodrigues/kairos/pkg/logx"
)

const (
	DefaultAddr    = "127.0.0.1:8089"
	requestTimeout = 15 * time.Second
	shutdownGrace  = 5 * time.Second
)

// Timeline is the part of a scheduler the API drives.
type Timeline interface {
	Snapshot() scheduler.Snapshot
	Frame(name string) (*timeframe.Frame, error)
	Pause()
	Resume()
	PauseFrame(name string) error
	ResumeFrame(name string) error
}

// Config configures the listener.
type Config struct {
	Addr         string
	Token        string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Pprof mounts net/http/pprof under /debug, behind the token.
	Pprof bool
	// Origins are host patterns allowed to open the event stream from a
	// browser page on another origin. Same-host and non-browser clients
	// always pass.
	Origins []string
}

// Deps are the components the routes read from. Timeline is a function
// because a config reload swaps the scheduler underneath a running server.
type Deps struct {
	Timeline func() Timeline
	Journal  journal.Store
	Bus      *eventbus.Bus
	Metrics  http.Handler
	// Workers reports supervised background workers; optional.
	Workers  func() []supervisor.WorkerStatus
}

type Server struct {
	cfg    Config
	deps   Deps
	log    logx.Logger
	router chi.Router
}

func New(cfg Config, deps Deps, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = DefaultAddr
	}
	s := &Server{cfg: cfg, deps: deps, log: log.With(logx.String("component", "http"))}
	s.router = s.routes()
	return s
}

// Handler returns the root router.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)
	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.requireToken)
		// The event stream is long-lived and manages its own deadlines.
		r.Get("/events", s.handleEvents)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))
			r.Get("/timeline", s.handleTimeline)
			r.Get("/frames", s.handleFrames)
			r.Get("/frames/{name}", s.handleFrame)
			r.Post("/pause", s.handlePause)
			r.Post("/resume", s.handleResume)
			r.Post("/frames/{name}/pause", s.handlePauseFrame)
			r.Post("/frames/{name}/resume", s.handleResumeFrame)
			r.Get("/journal", s.handleJournal)
			r.Get("/workers", s.handleWorkers)
		})
	})
	if s.cfg.Pprof {
		r.Route("/debug", func(r chi.Router) {
			r.Use(s.requireToken)
			r.Mount("/", middleware.Profiler())
		})
	}
	return r
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info("http api listening", logx.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		_ = srv.Close()
		return err
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Int("status", ww.Status()),
			logx.Duration("took", time.Since(start)),
			logx.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// requireToken accepts "Authorization: Bearer <token>" or ?token= (browsers
// cannot set headers on WebSocket upgrades). An empty token disables the check.
func (s *Server) requireToken(next http.Handler) http.Handler {
	want := strings.TrimSpace(s.cfg.Token)
	if want == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if got == "" {
			got = r.URL.Query().Get("token")
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
