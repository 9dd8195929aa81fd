package config

import (
	"reflect"
	"sort"
	"strings"

	logx "github.com/rodrigorodrigues/kairos/pkg/logx"
)

// Section names reported by SummarizeConfigChange.
const (
	SectionLogging  = "logging"
	SectionTimeline = "timeline"
	SectionJournal  = "journal"
	SectionRelay    = "relay"
	SectionNotify   = "notify"
	SectionHTTP     = "http"
)

// SummarizeConfigChange returns the sorted list of changed sections and safe
// structured attrs for logging (tokens are never included).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, SectionLogging)
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// Values decode into unexported fields, so compare encodings.
	if hashJSON(oldCfg.Timeline) != hashJSON(newCfg.Timeline) {
		changed = append(changed, SectionTimeline)
		attrs = append(attrs,
			logx.Int("timeline.frames", len(newCfg.Timeline.Frames)),
			logx.Int("timeline.times", len(newCfg.Timeline.Times)),
			logx.String("timeline.timezone", strings.TrimSpace(newCfg.Timeline.Timezone)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Journal, newCfg.Journal) {
		changed = append(changed, SectionJournal)
		var driver string
		if newCfg.Journal != nil {
			driver = strings.TrimSpace(newCfg.Journal.Driver)
		}
		attrs = append(attrs, logx.String("journal.driver", driver))
	}

	if !reflect.DeepEqual(oldCfg.Relay, newCfg.Relay) {
		changed = append(changed, SectionRelay)
		var driver, prefix string
		if newCfg.Relay != nil {
			driver = strings.TrimSpace(newCfg.Relay.Driver)
			prefix = strings.TrimSpace(newCfg.Relay.Prefix)
		}
		attrs = append(attrs, logx.String("relay.driver", driver), logx.String("relay.prefix", prefix))
	}

	if !reflect.DeepEqual(oldCfg.Notify, newCfg.Notify) {
		changed = append(changed, SectionNotify)
		n := derefNotify(newCfg.Notify)
		attrs = append(attrs,
			logx.Bool("notify.enabled", n.Enabled),
			logx.Bool("notify.token_set", strings.TrimSpace(n.Token) != ""),
			logx.Int("notify.frames", len(n.Frames)),
			logx.Int("notify.rate_per_sec", n.RatePerSec),
		)
	}

	if !reflect.DeepEqual(oldCfg.HTTP, newCfg.HTTP) {
		changed = append(changed, SectionHTTP)
		h := derefHTTP(newCfg.HTTP)
		attrs = append(attrs,
			logx.Bool("http.enabled", h.Enabled),
			logx.String("http.addr", strings.TrimSpace(h.Addr)),
			logx.Bool("http.token_set", strings.TrimSpace(h.Token) != ""),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

func derefNotify(n *NotifyConfig) NotifyConfig {
	if n == nil {
		return NotifyConfig{}
	}
	return *n
}

func derefHTTP(h *HTTPConfig) HTTPConfig {
	if h == nil {
		return HTTPConfig{}
	}
	return *h
}
