package timeframe

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rodrigorodrigues/kairos/internal/timespec"
)

// tickSchedule computes the next tick deadline:
//
//	next = now + interval - ((now + interval) mod basis)
//
// With basis == interval ticks land on multiples of the interval; with
// basis == 60000 they land on the minute; basis == 0 free-runs.
type tickSchedule struct {
	interval int64
	basis    int64
}

var _ cron.Schedule = tickSchedule{}

func newTickSchedule(interval, basis int64) tickSchedule {
	if basis < 0 {
		basis = 0
	}
	return tickSchedule{interval: interval, basis: basis}
}

// Next implements cron.Schedule.
func (s tickSchedule) Next(t time.Time) time.Time {
	if s.interval <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(s.NextMillis(t.UnixMilli())).In(t.Location())
}

// NextMillis returns the next deadline strictly after now.
func (s tickSchedule) NextMillis(now int64) int64 {
	next := timespec.AddMillis(now, s.interval)
	if next == timespec.Forever {
		return next
	}
	if s.basis > 0 {
		next -= floorMod(next, s.basis)
		if next <= now {
			// basis > interval: the aligned point fell behind now; take the next boundary.
			next = timespec.AddMillis(next, s.basis)
		}
	}
	return next
}

func floorMod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

// preview lists the next n deadlines after t.
func preview(s cron.Schedule, t time.Time, n int) []int64 {
	out := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		t = s.Next(t)
		if t.IsZero() {
			break
		}
		out = append(out, t.UnixMilli())
	}
	return out
}
