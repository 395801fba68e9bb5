// Package availability computes bookable consultation slots per doctor,
// reconciling the patient's intended calendar day with each doctor's own
// time zone.
package availability

import (
	"strings"
	"time"

	"github.com/caredial/telehealth-platform/internal/apperror"
)

// DayWindow is a patient-intended calendar day resolved to canonical UTC
// boundaries. Intent keeps the authoritative zone: an explicit offset in
// the input wins over the patient's zone, which wins over UTC.
type DayWindow struct {
	Intent   time.Time
	StartUTC time.Time
	EndUTC   time.Time
}

// layouts without an explicit offset, tried in the fallback zone.
var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ResolveDayWindow parses a date-or-datetime string into the instant the
// patient meant and the UTC bounds of that calendar day. A string carrying
// an explicit offset is never reinterpreted; otherwise patientTZ applies,
// defaulting to UTC.
func ResolveDayWindow(input, patientTZ string) (DayWindow, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return DayWindow{}, apperror.Validation("date", "date is required")
	}

	loc := time.UTC
	if patientTZ != "" {
		parsed, err := time.LoadLocation(patientTZ)
		if err != nil {
			return DayWindow{}, apperror.Validation("timezone", "unknown time zone")
		}
		loc = parsed
	}

	intent, err := time.Parse(time.RFC3339, input)
	if err != nil {
		intent, err = parseNaive(input, loc)
		if err != nil {
			return DayWindow{}, apperror.Validation("date", "unparseable date or datetime")
		}
	}

	y, m, d := intent.Date()
	dayStart := time.Date(y, m, d, 0, 0, 0, 0, intent.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	return DayWindow{
		Intent:   intent,
		StartUTC: dayStart.UTC(),
		EndUTC:   dayEnd.UTC(),
	}, nil
}

func parseNaive(input string, loc *time.Location) (time.Time, error) {
	var lastErr error
	for _, layout := range naiveLayouts {
		t, err := time.ParseInLocation(layout, input, loc)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
