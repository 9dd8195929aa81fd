package config

import (
	"github.com/rodrigorodrigues/kairos/internal/timespec"
)

// Config is the whole kairos configuration file.
type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Timeline TimelineConfig `json:"timeline"`

	// Optional sections; nil means disabled.
	Journal *JournalConfig `json:"journal,omitempty"`
	Relay   *RelayConfig   `json:"relay,omitempty"`
	Notify  *NotifyConfig  `json:"notify,omitempty"`
	HTTP    *HTTPConfig    `json:"http,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// TimelineConfig describes the frames to schedule.
//
// Example (YAML):
//
//	timeline:
//	  timezone: Europe/Lisbon
//	  times:
//	    launch: "2026-11-01 09:00:00"
//	  frames:
//	    - name: countdown
//	      relatedTo: launch
//	      interval: T1M
//	      sync: 60000
//	      end: { at: launch }
type TimelineConfig struct {
	// Timezone is the IANA zone for dates without an offset. Empty means UTC.
	Timezone string `json:"timezone,omitempty"`
	// AutoStart defaults to true.
	AutoStart *bool                     `json:"auto_start,omitempty"`
	Times     map[string]timespec.Value `json:"times,omitempty"`
	Frames    []timespec.FrameSpec      `json:"frames"`
}

// JournalConfig controls the lifecycle event journal.
//
//	"journal": { "driver": "sqlite", "path": "./kairos.db", "busy_timeout": "5s" }
type JournalConfig struct {
	Driver      string `json:"driver"` // none | file | sqlite
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// RelayConfig forwards lifecycle events to a broker.
type RelayConfig struct {
	Driver string `json:"driver"` // none | redis | nats
	URL    string `json:"url"`
	// Prefix of the channel/subject; events go to "<prefix>.<event>". Default "kairos".
	Prefix string `json:"prefix,omitempty"`
	// NodeID identifies this process in envelopes. Generated when empty.
	NodeID string `json:"node_id,omitempty"`
	// Timeout bounds one publish (Go duration string). Default 2s.
	Timeout string `json:"timeout,omitempty"`
}

// NotifyConfig sends chat messages when frames begin or end.
type NotifyConfig struct {
	Enabled  bool   `json:"enabled"`
	Token    string `json:"token"` // never logged
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`
	// Frames restricts notifications to these frame names. Empty means all.
	Frames []string `json:"frames,omitempty"`
	// Events defaults to ["began", "ended"].
	Events     []string `json:"events,omitempty"`
	RatePerSec int      `json:"rate_per_sec,omitempty"` // default 1
	Timeout    string   `json:"timeout,omitempty"`      // send timeout, default 10s
}

// HTTPConfig controls the status/control API.
//
// Prefer binding to localhost. Control routes (pause/resume) require Token
// when one is set.
type HTTPConfig struct {
	Enabled      bool   `json:"enabled"`
	Addr         string `json:"addr,omitempty"` // default "127.0.0.1:8089"
	Token        string `json:"token,omitempty"`
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	// Pprof exposes /debug/pprof on the same listener (token protected).
	Pprof bool `json:"pprof,omitempty"`
	// Origins lists host patterns (path.Match syntax) allowed to open
	// /v1/events from another origin.
	Origins []string `json:"origins,omitempty"`
}
