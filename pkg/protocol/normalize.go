package protocol

import (
	"math"
	"strconv"
	"time"
)

// DayFormat is the RFC3339 day-precision layout used at every boundary.
const DayFormat = "2006-01-02"

// FormatDay renders t at day precision.
func FormatDay(t time.Time) string {
	return t.UTC().Format(DayFormat)
}

// ParseDay parses an RFC3339 day. The full RFC3339 timestamp form is
// accepted and truncated, since some exports carry midnight timestamps.
func ParseDay(s string) (time.Time, error) {
	if t, err := time.Parse(DayFormat, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC().Truncate(24 * time.Hour), nil
}

// Finite returns a pointer to v, or nil when v is NaN or infinite.
// Ratio reductions use it so division by zero serializes as null.
func Finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Round2 rounds to two decimals, the precision of every SAR amount.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// FormatAmount renders a SAR amount with two decimals and no grouping,
// the canonical form used in indexed text and reduction tables.
func FormatAmount(v float64) string {
	return strconv.FormatFloat(Round2(v), 'f', 2, 64)
}
