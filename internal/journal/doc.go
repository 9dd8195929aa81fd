// Package journal keeps an append-only audit trail of frame lifecycle events.
//
// Drivers:
//   - "file": JSON Lines, one entry per line
//   - "sqlite": a single table in a SQLite database (modernc.org/sqlite, no cgo)
//
// The journal is never read back to restore timeline state.
package journal
