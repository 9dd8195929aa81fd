package timespec

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
)

// Calendar-approximation multipliers in milliseconds.
const (
	Second int64 = 1000
	Minute       = 60 * Second
	Hour         = 60 * Minute
	Day          = 24 * Hour
	Month        = 30 * Day
	Year         = 365 * Day
)

// ParseError reports duration text that does not match the grammar.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid duration %q", e.Input)
	}
	return fmt.Sprintf("invalid duration %q: %s", e.Input, e.Reason)
}

// Groups are optional and fixed-order; "M" before the T separator is months,
// after it minutes. The whole string must match.
var reDuration = regexp.MustCompile(`(?i)^\s*P?\s*` +
	`(?:(\d+)\s*Y)?\s*` +
	`(?:(\d+)\s*M)?\s*` +
	`(?:(\d+)\s*D)?\s*` +
	`T?\s*` +
	`(?:(\d+)\s*H)?\s*` +
	`(?:(\d+)\s*M)?\s*` +
	`(?:(\d+)\s*S)?\s*$`)

var durationUnits = [...]int64{Year, Month, Day, Hour, Minute, Second}

// ParseDuration parses a compact duration string into milliseconds.
//
// Examples: "P1Y2M3D", "T5M", "1d 12h", "PT90S". Missing groups contribute 0,
// so "" and "P" yield 0 without error.
func ParseDuration(text string) (int64, error) {
	m := reDuration.FindStringSubmatch(text)
	if m == nil {
		return 0, &ParseError{Input: text}
	}
	var total int64
	for i, unit := range durationUnits {
		raw := m[i+1]
		if raw == "" {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n > math.MaxInt64/unit {
			return 0, &ParseError{Input: text, Reason: "value too large"}
		}
		part := n * unit
		if total > math.MaxInt64-part {
			return 0, &ParseError{Input: text, Reason: "value too large"}
		}
		total += part
	}
	return total, nil
}
