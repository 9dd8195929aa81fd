package app

import (
	"strings"
	"time"

	"github.com/rodrigorodrigues/kairos/internal/config"
	"github.com/rodrigorodrigues/kairos/internal/httpapi"
	"github.com/rodrigorodrigues/kairos/internal/journal"
	"github.com/rodrigorodrigues/kairos/internal/notify"
	"github.com/rodrigorodrigues/kairos/internal/relay"
	"github.com/rodrigorodrigues/kairos/internal/scheduler"
	logx "github.com/rodrigorodrigues/kairos/pkg/logx"
)

// The mappers below assume cfg already passed config.Validate.

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

// mapTimeline never auto-starts; the app starts the scheduler once the
// workers consuming its events are running.
func mapTimeline(cfg *config.Config) (scheduler.Config, bool) {
	t := cfg.Timeline
	off := false
	return scheduler.Config{
		Times:     t.Times,
		Frames:    t.Frames,
		AutoStart: &off,
		Timezone:  t.Timezone,
	}, t.AutoStart == nil || *t.AutoStart
}

func mapJournal(cfg *config.Config) (journal.Config, bool) {
	j := cfg.Journal
	if j == nil || !enabledDriver(j.Driver) {
		return journal.Config{}, false
	}
	return journal.Config{
		Driver:      strings.ToLower(strings.TrimSpace(j.Driver)),
		Path:        strings.TrimSpace(j.Path),
		BusyTimeout: config.DurationOr(j.BusyTimeout, time.Second),
	}, true
}

func mapRelay(cfg *config.Config) (relay.Config, bool) {
	r := cfg.Relay
	if r == nil || !enabledDriver(r.Driver) {
		return relay.Config{}, false
	}
	return relay.Config{
		Driver:  r.Driver,
		URL:     strings.TrimSpace(r.URL),
		Prefix:  r.Prefix,
		NodeID:  r.NodeID,
		Timeout: config.DurationOr(r.Timeout, relay.DefaultTimeout),
	}, true
}

func mapNotify(cfg *config.Config) (notify.Config, bool) {
	n := cfg.Notify
	if n == nil || !n.Enabled {
		return notify.Config{}, false
	}
	return notify.Config{
		Token:      n.Token,
		ChatID:     n.ChatID,
		ThreadID:   n.ThreadID,
		Frames:     n.Frames,
		Events:     n.Events,
		RatePerSec: n.RatePerSec,
		Timeout:    config.DurationOr(n.Timeout, 10*time.Second),
		RetryMax:   2,
	}, true
}

func mapHTTP(cfg *config.Config) (httpapi.Config, bool) {
	h := cfg.HTTP
	if h == nil || !h.Enabled {
		return httpapi.Config{}, false
	}
	return httpapi.Config{
		Addr:         h.Addr,
		Token:        h.Token,
		ReadTimeout:  config.DurationOr(h.ReadTimeout, 15*time.Second),
		WriteTimeout: config.DurationOr(h.WriteTimeout, 0),
		IdleTimeout:  config.DurationOr(h.IdleTimeout, 60*time.Second),
		Pprof:        h.Pprof,
		Origins:      h.Origins,
	}, true
}

func enabledDriver(d string) bool {
	d = strings.ToLower(strings.TrimSpace(d))
	return d != "" && d != "none"
}
