// Package logx configures kairos' structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - A zero value that is a safe no-op, so components can take a Logger
//     by value without nil checks
package logx
