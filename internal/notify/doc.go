// Package notify sends Telegram messages for selected frame lifecycle events.
//
// Messages are queued and sent by a single worker behind a rate limiter so
// that a burst of frames beginning together cannot trip the Bot API flood
// limits.
package notify
