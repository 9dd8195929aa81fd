package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/rodrigorodrigues/kairos/internal/journal"
	"github.com/rodrigorodrigues/kairos/internal/scheduler"
	logx "github.com/rodrigorodrigues/kairos/pkg/logx"
)

func (s *Server) timeline(w http.ResponseWriter) (Timeline, bool) {
	if s.deps.Timeline != nil {
		if tl := s.deps.Timeline(); tl != nil {
			return tl, true
		}
	}
	writeError(w, http.StatusServiceUnavailable, "timeline_unavailable")
	return nil, false
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if s.deps.Timeline == nil || s.deps.Timeline() == nil {
		status = "starting"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	tl, ok := s.timeline(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, tl.Snapshot())
}

func (s *Server) handleFrames(w http.ResponseWriter, r *http.Request) {
	tl, ok := s.timeline(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, tl.Snapshot().Frames)
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	tl, ok := s.timeline(w)
	if !ok {
		return
	}
	f, err := tl.Frame(chi.URLParam(r, "name"))
	if err != nil {
		writeFrameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f.Snapshot())
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	tl, ok := s.timeline(w)
	if !ok {
		return
	}
	tl.Pause()
	s.log.Info("timeline paused via api")
	writeJSON(w, http.StatusOK, tl.Snapshot())
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	tl, ok := s.timeline(w)
	if !ok {
		return
	}
	tl.Resume()
	s.log.Info("timeline resumed via api")
	writeJSON(w, http.StatusOK, tl.Snapshot())
}

func (s *Server) handlePauseFrame(w http.ResponseWriter, r *http.Request) {
	s.toggleFrame(w, r, true)
}

func (s *Server) handleResumeFrame(w http.ResponseWriter, r *http.Request) {
	s.toggleFrame(w, r, false)
}

func (s *Server) toggleFrame(w http.ResponseWriter, r *http.Request, pause bool) {
	tl, ok := s.timeline(w)
	if !ok {
		return
	}
	name := chi.URLParam(r, "name")
	var err error
	if pause {
		err = tl.PauseFrame(name)
	} else {
		err = tl.ResumeFrame(name)
	}
	if err != nil {
		writeFrameError(w, err)
		return
	}
	f, err := tl.Frame(name)
	if err != nil {
		writeFrameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f.Snapshot())
}

func writeFrameError(w http.ResponseWriter, err error) {
	if errors.Is(err, scheduler.ErrFrameNotFound) {
		writeError(w, http.StatusNotFound, "frame_not_found")
		return
	}
	var missing *scheduler.MissingParameterError
	if errors.As(err, &missing) {
		writeError(w, http.StatusBadRequest, "missing_"+missing.Param)
		return
	}
	writeError(w, http.StatusInternalServerError, "internal_error")
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.deps.Journal == nil {
		writeError(w, http.StatusNotFound, "journal_disabled")
		return
	}
	q := journal.Query{
		Frame: r.URL.Query().Get("frame"),
		Event: r.URL.Query().Get("event"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit")
			return
		}
		q.Limit = n
	}
	entries, err := s.deps.Journal.Recent(r.Context(), q)
	if err != nil {
		s.log.Warn("journal query failed", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "journal_error")
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleWorkers(w http.ResponseWriter, r *http.Request) {
	if s.deps.Workers == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Workers())
}
