package scheduler

import "github.com/rodrigorodrigues/kairos/internal/timeframe"

// Snapshot is the plain-data view of a timeline.
type Snapshot struct {
	Now      int64                `json:"now"`
	Timezone string               `json:"timezone"`
	Active   int                  `json:"active"`
	Frames   []timeframe.Snapshot `json:"frames"`
}

// Snapshot captures every frame in construction order. Active counts frames
// that began and have not ended.
func (s *Scheduler) Snapshot() Snapshot {
	out := Snapshot{
		Now:      s.clk.Now().UnixMilli(),
		Timezone: s.loc.String(),
		Frames:   make([]timeframe.Snapshot, 0, len(s.frames)),
	}
	for _, f := range s.frames {
		fs := f.Snapshot()
		if fs.Started && !fs.Ended {
			out.Active++
		}
		out.Frames = append(out.Frames, fs)
	}
	return out
}
