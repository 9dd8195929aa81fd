package timespec

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	logx "github.com/rodrigorodrigues/kairos/pkg/logx"
)

// Option configures Normalize.
type Option func(*resolver)

// WithLogger reports references that fell through to defaults.
func WithLogger(log logx.Logger) Option {
	return func(r *resolver) { r.log = log }
}

// WithLocation interprets dates without a zone offset in loc (UTC by default).
func WithLocation(loc *time.Location) Option {
	return func(r *resolver) {
		if loc != nil {
			r.loc = loc
		}
	}
}

type resolver struct {
	log     logx.Logger
	loc     *time.Location
	moments Moments
}

func newResolver(opts []Option) *resolver {
	r := &resolver{loc: time.UTC}
	for _, o := range opts {
		o(r)
	}
	if r.log.IsZero() {
		r.log = logx.Nop()
	}
	return r
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseMoment converts a moment value (epoch ms or a date-like string) to epoch ms.
// Dates without a zone offset are read as UTC.
func ParseMoment(v Value) (int64, error) {
	return parseMoment(v, time.UTC)
}

func parseMoment(v Value, loc *time.Location) (int64, error) {
	if n, ok := v.Number(); ok {
		return roundMillis(n), nil
	}
	s, ok := v.Text()
	if !ok {
		return 0, fmt.Errorf("moment value required")
	}
	if ms, ok := parseDate(s, loc); ok {
		return ms, nil
	}
	return 0, fmt.Errorf("invalid moment %q (use epoch milliseconds or an RFC 3339 date)", s)
}

func parseDate(raw string, loc *time.Location) (int64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UnixMilli(), true
		}
	}
	return 0, false
}

// NormalizeMoments builds the moment table.
func NormalizeMoments(times map[string]Value, opts ...Option) (Moments, error) {
	r := newResolver(opts)
	out := make(Moments, len(times))
	for name, v := range times {
		ms, err := parseMoment(v, r.loc)
		if err != nil {
			return nil, fmt.Errorf("times.%s: %w", name, err)
		}
		out[name] = ms
	}
	return out, nil
}

// Normalize resolves every frame against the named times, preserving order.
//
// Begins are resolved for the whole set first because a frame without a
// resolvable end runs until the next frame's begin (or forever when that
// would not be after its own begin, or for the last frame).
//
// Moment references that cannot be resolved fall through to the defaults.
// Duration text that fails the grammar is an error.
func Normalize(times map[string]Value, frames []FrameSpec, opts ...Option) ([]Resolved, error) {
	moments, err := NormalizeMoments(times, opts...)
	if err != nil {
		return nil, err
	}
	r := newResolver(opts)
	r.moments = moments

	out := make([]Resolved, len(frames))
	for i, f := range frames {
		path := framePath(i, f.Name)
		rf := Resolved{
			Name: strings.TrimSpace(f.Name),
			Sync: f.Sync.resolved(),
			Data: f.Data,
		}
		if !f.RelatedTo.IsZero() {
			rf.RelatedTo, rf.HasRelated = r.moment(path+".relatedTo", f.RelatedTo)
		}
		if rf.TickInterval, err = r.duration(path+".interval", f.Interval); err != nil {
			return nil, err
		}
		if rf.TickInterval < 0 {
			rf.TickInterval = 0
		}
		if rf.BeginsAt, err = r.boundary(path+".begin", f.Begin, 0); err != nil {
			return nil, err
		}
		out[i] = rf
	}

	for i, f := range frames {
		path := framePath(i, f.Name)
		def := Forever
		if i+1 < len(out) && out[i+1].BeginsAt > out[i].BeginsAt {
			def = out[i+1].BeginsAt
		}
		end, err := r.boundary(path+".end", f.End, def)
		if err != nil {
			return nil, err
		}
		if end < out[i].BeginsAt {
			r.log.Warn("frame end before begin; running unbounded",
				logx.String("frame", path), logx.Int64("begins_at", out[i].BeginsAt), logx.Int64("ends_at", end))
			end = Forever
		}
		out[i].EndsAt = end
	}
	return out, nil
}

func framePath(i int, name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return fmt.Sprintf("frames[%d](%s)", i, name)
	}
	return fmt.Sprintf("frames[%d]", i)
}

// boundary applies the resolution precedence; the first rule that yields a
// number wins, def otherwise.
func (r *resolver) boundary(path string, b Boundary, def int64) (int64, error) {
	if b.Abs != nil {
		return *b.Abs, nil
	}
	if at, ok := r.moment(path+".at", b.At); ok {
		return at, nil
	}
	starting, hasStarting, err := r.offset(path+".starting", b.Starting)
	if err != nil {
		return 0, err
	}
	if hasStarting {
		if before, ok := r.moment(path+".before", b.Before); ok {
			return SubMillis(before, starting), nil
		}
		if after, ok := r.moment(path+".after", b.After); ok {
			return AddMillis(after, starting), nil
		}
	}
	if ratio, ok := parseRatio(b.Interpolated); ok {
		between, okB := r.moment(path+".between", b.Between)
		and, okA := r.moment(path+".and", b.And)
		if okB && okA {
			return roundMillis(float64(between) + (float64(and)-float64(between))*ratio), nil
		}
	}
	return def, nil
}

func (r *resolver) moment(path string, v Value) (int64, bool) {
	if v.IsZero() {
		return 0, false
	}
	if n, ok := v.Number(); ok {
		return roundMillis(n), true
	}
	s, _ := v.Text()
	if ms, ok := r.moments[s]; ok {
		return ms, true
	}
	if ms, ok := parseDate(s, r.loc); ok {
		return ms, true
	}
	r.log.Debug("unresolved moment reference", logx.String("field", path), logx.String("ref", s))
	return 0, false
}

// offset resolves a "starting" value: milliseconds or duration text.
func (r *resolver) offset(path string, v Value) (int64, bool, error) {
	if v.IsZero() {
		return 0, false, nil
	}
	ms, err := r.duration(path, v)
	if err != nil {
		return 0, false, err
	}
	return ms, true, nil
}

func (r *resolver) duration(path string, v Value) (int64, error) {
	if n, ok := v.Number(); ok {
		return roundMillis(n), nil
	}
	s, ok := v.Text()
	if !ok {
		return 0, nil
	}
	ms, err := ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	return ms, nil
}

func roundMillis(f float64) int64 {
	if math.IsNaN(f) {
		return 0
	}
	if f >= math.MaxInt64 {
		return Forever
	}
	if f <= math.MinInt64 {
		return math.MinInt64
	}
	return int64(math.Round(f))
}
