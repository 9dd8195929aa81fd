package relay

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var ErrUnknownDriver = errors.New("unknown relay driver")

const (
	DefaultPrefix  = "kairos"
	DefaultTimeout = 2 * time.Second
)

// Config configures the relay. Driver "" or "none" disables it.
type Config struct {
	Driver  string
	URL     string
	Prefix  string
	NodeID  string
	Timeout time.Duration
}

// Envelope is the message body published for every lifecycle event.
type Envelope struct {
	Event       string          `json:"event"`
	Frame       string          `json:"frame"`
	RemainingMS int64           `json:"remaining_ms"`
	Data        json.RawMessage `json:"data,omitempty"`
	At          time.Time       `json:"at"`
	NodeID      string          `json:"node_id"`
	MessageID   string          `json:"message_id"`
}

// Publisher is a broker connection.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload []byte) error
	Close() error
}

// Subject joins prefix and event with a dot.
func Subject(prefix, event string) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return prefix + "." + event
}
