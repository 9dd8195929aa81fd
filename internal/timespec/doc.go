// Package timespec turns declarative frame descriptions into absolute
// millisecond timestamps.
//
// It provides:
//   - ParseDuration: the compact "P1Y2M3DT4H5M6S" duration grammar
//   - Normalize: resolution of begin/end/relatedTo/interval for a whole frame
//     set against a table of named moments, including cross-frame end defaulting
//
// Everything here is pure: no clocks, no timers, no shared state.
package timespec
