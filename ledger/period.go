package ledger

import (
	"strings"
	"time"
)

// =============================================================================
// DATE RANGE PRESETS
// =============================================================================

// DateRange is a named lower bound on transaction Date.
type DateRange string

const (
	RangeToday   DateRange = "today"
	RangeWeek    DateRange = "week"
	RangeMonth   DateRange = "month"
	RangeQuarter DateRange = "quarter"
	RangeYear    DateRange = "year"
	RangeAll     DateRange = "all"
)

// ParseDateRange resolves unknown values to RangeAll.
func ParseDateRange(s string) DateRange {
	switch r := DateRange(strings.ToLower(strings.TrimSpace(s))); r {
	case RangeToday, RangeWeek, RangeMonth, RangeQuarter, RangeYear:
		return r
	}
	return RangeAll
}

// Since returns the inclusive lower bound for the preset relative to now,
// or nil for RangeAll. Windows other than today are rolling.
func (r DateRange) Since(now time.Time) *time.Time {
	now = now.UTC()
	var t time.Time
	switch r {
	case RangeToday:
		t = StartOfDay(now)
	case RangeWeek:
		t = now.AddDate(0, 0, -7)
	case RangeMonth:
		t = now.AddDate(0, -1, 0)
	case RangeQuarter:
		t = now.AddDate(0, -3, 0)
	case RangeYear:
		t = now.AddDate(-1, 0, 0)
	default:
		return nil
	}
	return &t
}

// =============================================================================
// TIME UTILITIES
// =============================================================================

func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// StartOfISOWeek returns Monday 00:00 UTC of the ISO week containing t.
func StartOfISOWeek(t time.Time) time.Time {
	day := StartOfDay(t)
	offset := (int(day.Weekday()) + 6) % 7 // Monday = 0 ... Sunday = 6
	return day.AddDate(0, 0, -offset)
}

// DayKey formats a date the way DailyTotal.Day is keyed.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
