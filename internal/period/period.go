package period

import (
	"fmt"
	"net/url"
	"time"
)

// Period granularities used to bucket time-series documents.
const (
	Daily   = "daily"
	Weekly  = "weekly"
	Monthly = "monthly"
)

// dateLayouts accepted for from/to query parameters.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
}

// DateRange is an inclusive [Low, High] interval in period-key space.
// Lexical comparison of keys within one period type matches chronological
// order, so the range is matched with $gte/$lte on the periodKey field.
type DateRange struct {
	Low  string
	High string
}

// FormatPeriodKey converts a calendar date into the canonical bucket key:
// daily 2006-01-02, monthly 2006-01, weekly 2025-W01. Weekly keys use the
// ISO week-numbering year from ISOWeek(), which differs from the calendar
// year near year boundaries (Dec 30 2024 belongs to 2025-W01).
func FormatPeriodKey(t time.Time, periodType string) string {
	switch periodType {
	case Weekly:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week)
	case Monthly:
		return t.Format("2006-01")
	default:
		return t.Format("2006-01-02")
	}
}

// StartOfISOWeek snaps a date back to the Monday of its ISO week.
func StartOfISOWeek(t time.Time) time.Time {
	wd := int(t.Weekday())
	if wd == 0 {
		wd = 7
	}
	return t.AddDate(0, 0, -(wd - 1))
}

// ParseDate parses a from/to query parameter. Returns false when the
// value matches none of the accepted layouts.
func ParseDate(value string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// BuildDateRange turns raw from/to parameters into an inclusive period-key
// range. Returns nil when either boundary is missing or unparseable; the
// caller responds 400 before touching storage. An inverted range (from
// after to) is passed through and simply matches nothing.
func BuildDateRange(from, to, periodType string) *DateRange {
	if from == "" || to == "" {
		return nil
	}

	fromDate, ok := ParseDate(from)
	if !ok {
		return nil
	}
	toDate, ok := ParseDate(to)
	if !ok {
		return nil
	}

	// Weekly buckets cover Mon-Sun, so both boundaries snap to the start
	// of their week and an arbitrary day range maps to whole-week keys.
	if periodType == Weekly {
		fromDate = StartOfISOWeek(fromDate)
		toDate = StartOfISOWeek(toDate)
	}

	return &DateRange{
		Low:  FormatPeriodKey(fromDate, periodType),
		High: FormatPeriodKey(toDate, periodType),
	}
}

// BuildFilters extracts whitelisted equality filters from query
// parameters. Keys outside allowedKeys are never forwarded, so callers
// cannot inject filters on arbitrary document fields. Values are taken
// verbatim; empty values are skipped.
func BuildFilters(params url.Values, allowedKeys []string) map[string]string {
	filters := make(map[string]string)
	for _, key := range allowedKeys {
		if value := params.Get(key); value != "" {
			filters[key] = value
		}
	}
	return filters
}
