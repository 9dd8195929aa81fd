package timespec

import (
	"errors"
	"testing"
)

func TestParseDurationVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		raw  string
		want int64
	}{
		{name: "empty", raw: "", want: 0},
		{name: "bare P", raw: "P", want: 0},
		{name: "date part", raw: "P1Y2M3D", want: (365 + 60 + 3) * 86400000},
		{name: "minutes after T", raw: "T5M", want: 5 * 60000},
		{name: "months without T", raw: "5M", want: 5 * 30 * 86400000},
		{name: "full", raw: "P1DT2H3M4S", want: 86400000 + 2*3600000 + 3*60000 + 4000},
		{name: "lowercase with spaces", raw: " p 1d t 12h ", want: 86400000 + 12*3600000},
		{name: "seconds only", raw: "PT90S", want: 90000},
		{name: "hours without T", raw: "2h", want: 2 * 3600000},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDuration(tt.raw)
			if err != nil {
				t.Fatalf("ParseDuration(%q) error: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Fatalf("ParseDuration(%q) = %d, want %d", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseDurationInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"abc", "5X", "1D2Y", "T5M junk", "-5S", "99999999999999999999S"} {
		_, err := ParseDuration(raw)
		if err == nil {
			t.Fatalf("ParseDuration(%q): expected error", raw)
		}
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Fatalf("ParseDuration(%q): error %T is not *ParseError", raw, err)
		}
		if pe.Input != raw {
			t.Fatalf("ParseError.Input = %q, want %q", pe.Input, raw)
		}
	}
}

func TestParseDurationOverflow(t *testing.T) {
	t.Parallel()
	_, err := ParseDuration("999999999999Y")
	var pe *ParseError
	if !errors.As(err, &pe) || pe.Reason != "value too large" {
		t.Fatalf("expected overflow ParseError, got %v", err)
	}
}
