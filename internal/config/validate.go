package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rodrigorodrigues/kairos/internal/timeframe"
	"github.com/rodrigorodrigues/kairos/internal/timespec"
)

var (
	journalDrivers = []string{"", "none", "file", "sqlite"}
	relayDrivers   = []string{"", "none", "redis", "nats"}
	logLevels      = []string{"", "trace", "debug", "info", "warn", "warning", "error"}
)

// Validate checks every section and reports all problems at once.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if !slices.Contains(logLevels, strings.ToLower(strings.TrimSpace(cfg.Logging.Level))) {
		add(fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level))
	}
	add(validateTimeline(cfg.Timeline))

	if j := cfg.Journal; j != nil {
		driver := strings.ToLower(strings.TrimSpace(j.Driver))
		switch {
		case !slices.Contains(journalDrivers, driver):
			add(fmt.Errorf("journal.driver: unknown driver %q", j.Driver))
		case driver == "file" || driver == "sqlite":
			if strings.TrimSpace(j.Path) == "" {
				add(fmt.Errorf("journal.path: required for driver %q", driver))
			}
		}
		_, err := ParseDurationField("journal.busy_timeout", j.BusyTimeout)
		add(err)
	}

	if r := cfg.Relay; r != nil {
		driver := strings.ToLower(strings.TrimSpace(r.Driver))
		switch {
		case !slices.Contains(relayDrivers, driver):
			add(fmt.Errorf("relay.driver: unknown driver %q", r.Driver))
		case driver == "redis" || driver == "nats":
			if strings.TrimSpace(r.URL) == "" {
				add(fmt.Errorf("relay.url: required for driver %q", driver))
			}
		}
		_, err := ParseDurationField("relay.timeout", r.Timeout)
		add(err)
	}

	if n := cfg.Notify; n != nil && n.Enabled {
		if strings.TrimSpace(n.Token) == "" {
			add(errors.New("notify.token: required when enabled"))
		}
		if n.ChatID == 0 {
			add(errors.New("notify.chat_id: required when enabled"))
		}
		for _, ev := range n.Events {
			if !slices.Contains(timeframe.Events, strings.TrimSpace(ev)) {
				add(fmt.Errorf("notify.events: unknown event %q", ev))
			}
		}
		if n.RatePerSec < 0 {
			add(errors.New("notify.rate_per_sec: must be >= 0"))
		}
		_, err := ParseDurationField("notify.timeout", n.Timeout)
		add(err)
	}

	if h := cfg.HTTP; h != nil {
		for path, raw := range map[string]string{
			"http.read_timeout":  h.ReadTimeout,
			"http.write_timeout": h.WriteTimeout,
			"http.idle_timeout":  h.IdleTimeout,
		} {
			_, err := ParseDurationField(path, raw)
			add(err)
		}
	}

	return errors.Join(errs...)
}

func validateTimeline(t TimelineConfig) error {
	loc := time.UTC
	if tz := strings.TrimSpace(t.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("timeline.timezone: %w", err)
		}
		loc = l
	}
	seen := map[string]int{}
	for i, f := range t.Frames {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			continue
		}
		if j, dup := seen[name]; dup {
			return fmt.Errorf("timeline.frames[%d]: name %q already used by frames[%d]", i, name, j)
		}
		seen[name] = i
	}
	if _, err := timespec.Normalize(t.Times, t.Frames, timespec.WithLocation(loc)); err != nil {
		return fmt.Errorf("timeline: %w", err)
	}
	return nil
}
