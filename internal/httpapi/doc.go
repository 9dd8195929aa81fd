// Package httpapi serves a small control and inspection API for a running
// timeline: frame snapshots, pause and resume, the event journal, a live
// WebSocket event stream and Prometheus metrics.
package httpapi
