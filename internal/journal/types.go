package journal

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var ErrDisabled = errors.New("journal disabled")

// Config configures the journal. Driver "" or "none" disables it.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 keeps the driver default
}

// Entry is one recorded lifecycle event.
type Entry struct {
	ID          string          `json:"id"`
	At          time.Time       `json:"at"`
	Frame       string          `json:"frame"`
	Event       string          `json:"event"`
	RemainingMS int64           `json:"remaining_ms"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// Query filters Recent. Zero values mean no filter; Limit defaults to 100.
type Query struct {
	Frame string
	Event string
	Limit int
}

const (
	defaultLimit = 100
	maxLimit     = 10000
)

func (q Query) limit() int {
	switch {
	case q.Limit <= 0:
		return defaultLimit
	case q.Limit > maxLimit:
		return maxLimit
	default:
		return q.Limit
	}
}

func (q Query) match(e Entry) bool {
	return (q.Frame == "" || q.Frame == e.Frame) && (q.Event == "" || q.Event == e.Event)
}

// Store persists entries.
type Store interface {
	Append(ctx context.Context, e Entry) error
	// Recent returns the newest matching entries in chronological order.
	Recent(ctx context.Context, q Query) ([]Entry, error)
	Close() error
}
