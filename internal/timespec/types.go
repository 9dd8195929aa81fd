package timespec

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Forever marks an unbounded end.
const Forever int64 = math.MaxInt64

// AddMillis returns a+b, saturating at Forever and math.MinInt64.
func AddMillis(a, b int64) int64 {
	sum := a + b
	switch {
	case b > 0 && sum < a:
		return Forever
	case b < 0 && sum > a:
		return math.MinInt64
	}
	return sum
}

// SubMillis returns a-b with the same saturation as AddMillis.
func SubMillis(a, b int64) int64 {
	if b == math.MinInt64 {
		if a >= 0 {
			return Forever
		}
		return a - b
	}
	return AddMillis(a, -b)
}

// Moments maps moment names to epoch milliseconds. It is read-only once
// Normalize has built it.
type Moments map[string]int64

type valueKind uint8

const (
	valueUnset valueKind = iota
	valueNumber
	valueText
)

// Value is a literal number or a piece of text. Depending on where it is used
// the text is a moment name, a date, a duration or a percentage.
type Value struct {
	kind valueKind
	num  float64
	text string
}

// Num is a literal numeric value (milliseconds, or a 0..1 ratio for interpolation).
func Num(v float64) Value { return Value{kind: valueNumber, num: v} }

// Millis is Num for integer milliseconds.
func Millis(ms int64) Value { return Value{kind: valueNumber, num: float64(ms)} }

// At is a literal instant.
func At(t time.Time) Value { return Millis(t.UnixMilli()) }

// Ref is text: a moment name, a date, a duration or a "NN%" ratio.
func Ref(s string) Value { return Value{kind: valueText, text: s} }

func (v Value) IsZero() bool { return v.kind == valueUnset }

// Number returns the literal numeric value, if any.
func (v Value) Number() (float64, bool) { return v.num, v.kind == valueNumber }

// Text returns the literal text, if any.
func (v Value) Text() (string, bool) { return v.text, v.kind == valueText }

func (v Value) String() string {
	switch v.kind {
	case valueNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case valueText:
		return v.text
	default:
		return ""
	}
}

// Boundary describes when a frame begins or ends.
//
// Either Abs is set (the boundary is a plain number) or the declarative keys
// are combined: At; Starting with After or Before; Interpolated with Between
// and And.
type Boundary struct {
	Abs *int64

	At           Value
	Starting     Value
	After        Value
	Before       Value
	Interpolated Value
	Between      Value
	And          Value
}

// Absolute is a boundary given as a plain timestamp.
func Absolute(ms int64) Boundary { return Boundary{Abs: &ms} }

func (b Boundary) IsZero() bool {
	return b.Abs == nil && b.At.IsZero() && b.Starting.IsZero() && b.After.IsZero() &&
		b.Before.IsZero() && b.Interpolated.IsZero() && b.Between.IsZero() && b.And.IsZero()
}

type syncMode uint8

const (
	syncDefault syncMode = iota
	syncOff
	syncInterval
	syncEvery
)

// Sync selects the wall-clock modulus ticks are aligned to.
// The zero value means "not specified" and resolves to SyncInterval.
type Sync struct {
	mode  syncMode
	every int64
}

// SyncOff lets ticks free-run from the moment the frame began.
func SyncOff() Sync { return Sync{mode: syncOff} }

// SyncInterval aligns ticks to multiples of the tick interval.
func SyncInterval() Sync { return Sync{mode: syncInterval} }

// SyncEvery aligns ticks to multiples of ms (e.g. 60000: on the minute).
// A non-positive ms behaves like SyncOff.
func SyncEvery(ms int64) Sync {
	if ms <= 0 {
		return SyncOff()
	}
	return Sync{mode: syncEvery, every: ms}
}

func (s Sync) resolved() Sync {
	if s.mode == syncDefault {
		return SyncInterval()
	}
	return s
}

// Basis returns the alignment modulus for the given interval; 0 means no alignment.
func (s Sync) Basis(interval int64) int64 {
	switch s.resolved().mode {
	case syncInterval:
		return interval
	case syncEvery:
		return s.every
	default:
		return 0
	}
}

// Value renders the setting the way it was declared: true, false or milliseconds.
func (s Sync) Value() any {
	switch s.resolved().mode {
	case syncEvery:
		return s.every
	case syncOff:
		return false
	default:
		return true
	}
}

// FrameSpec is a frame before normalization.
type FrameSpec struct {
	Name      string   `json:"name,omitempty"`
	RelatedTo Value    `json:"relatedTo"`
	Interval  Value    `json:"interval"`
	Sync      Sync     `json:"sync"`
	Begin     Boundary `json:"begin"`
	End       Boundary `json:"end"`
	Data      any      `json:"data,omitempty"`
}

// Resolved is a frame with absolute timestamps (epoch milliseconds).
type Resolved struct {
	Name         string
	BeginsAt     int64
	EndsAt       int64 // Forever when unbounded
	TickInterval int64 // 0: no recurring tick
	Sync         Sync
	RelatedTo    int64
	HasRelated   bool
	Data         any
}

// Bounded reports whether the frame has a finite end.
func (r Resolved) Bounded() bool { return r.EndsAt != Forever }

// parseRatio accepts 0.25 or "25%".
func parseRatio(v Value) (float64, bool) {
	if n, ok := v.Number(); ok {
		return n, true
	}
	s, ok := v.Text()
	if !ok {
		return 0, false
	}
	s = strings.TrimSpace(s)
	if pct, found := strings.CutSuffix(s, "%"); found {
		f, err := strconv.ParseFloat(strings.TrimSpace(pct), 64)
		if err != nil {
			return 0, false
		}
		return f / 100, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
