package timeframe

import "time"

const previewTicks = 3

// Snapshot is the plain-data view of a frame.
type Snapshot struct {
	Name         string  `json:"name"`
	BeginsAt     int64   `json:"begins_at"`
	EndsAt       *int64  `json:"ends_at"`
	TickInterval int64   `json:"tick_interval"`
	SyncTicks    any     `json:"sync_ticks"`
	RelatedTime  *int64  `json:"related_time"`
	Data         any     `json:"data,omitempty"`
	State        string  `json:"state"`
	Started      bool    `json:"started"`
	Ended        bool    `json:"ended"`
	Paused       bool    `json:"paused"`
	Ticks        uint64  `json:"ticks"`
	LastTick     *int64  `json:"last_tick,omitempty"`
	NextTicks    []int64 `json:"next_ticks,omitempty"`
}

// Snapshot captures the frame's description and runtime flags. NextTicks
// previews upcoming deadlines only while the frame is ticking.
func (f *Frame) Snapshot() Snapshot {
	f.mu.Lock()
	s := Snapshot{
		Name:         f.spec.Name,
		BeginsAt:     f.spec.BeginsAt,
		TickInterval: f.spec.TickInterval,
		SyncTicks:    f.spec.Sync.Value(),
		Data:         f.spec.Data,
		State:        f.stateLocked().String(),
		Started:      f.started,
		Ended:        f.ended,
		Paused:       f.paused,
		Ticks:        f.ticks,
	}
	ticking := f.started && !f.ended && !f.paused && !f.stopped && f.spec.TickInterval > 0
	last := f.lastTick
	f.mu.Unlock()

	if f.spec.Bounded() {
		end := f.spec.EndsAt
		s.EndsAt = &end
	}
	if f.spec.HasRelated {
		rel := f.spec.RelatedTo
		s.RelatedTime = &rel
	}
	if s.Ticks > 0 {
		s.LastTick = &last
	}
	if ticking {
		for _, at := range preview(f.sched, time.UnixMilli(last), previewTicks) {
			if f.spec.Bounded() && at >= f.spec.EndsAt {
				break
			}
			s.NextTicks = append(s.NextTicks, at)
		}
	}
	return s
}
