// Package scheduler owns a timeline: a fixed set of time frames resolved in
// one pass against shared named moments.
//
// Frame events are relayed onto the scheduler's bus twice: once on a generic
// channel (ChannelBegan, ChannelTicked, ...) and, for named frames, on
// "<frame>/<event>". Relayed events carry [frame, data, remainingMs] and the
// Scheduler as scope.
package scheduler
