// Package timeframe drives one resolved frame through its lifecycle:
//
//	Pending --start/begin--> Started --end--> Ended
//
// with an orthogonal Paused flag that suspends recurring ticks only.
//
// All waiting is done with one-shot timers from an injected clock. Ticks are
// rescheduled one at a time at a computed deadline so that they stay aligned
// to the wall clock (see tickSchedule) instead of drifting from the start
// instant.
//
// Events are published on the frame's own bus, under the generic channel
// ("began") and, for named frames, under "<name>/<event>". Every event
// carries [data, remainingMs]. Events are delivered in transition order even
// when timers fire on other goroutines or a subscriber re-enters the frame.
package timeframe
