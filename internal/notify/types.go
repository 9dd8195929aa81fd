package notify

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDisabled  = errors.New("notify disabled")
	ErrQueueFull = errors.New("notify queue full")
)

// Config configures notifications.
type Config struct {
	Token    string
	ChatID   int64
	ThreadID int
	// Frames limits notifications to these names; empty means every frame.
	Frames []string
	// Events defaults to began and ended.
	Events     []string
	RatePerSec int
	Timeout    time.Duration
	RetryMax   int

	// APIURL overrides the Bot API endpoint.
	APIURL string
}

// Sender delivers one text message.
type Sender interface {
	Send(ctx context.Context, chatID int64, threadID int, text string) error
}

// Message is a queued notification.
type Message struct {
	Frame string
	Event string
	Text  string
}
