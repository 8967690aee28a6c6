// Package normalize converts raw simulation-engine timestamps into canonical
// time values. The engine emits `MM/DD  HH:MM:SS` (two spaces between date
// and time) without a year, and uses hour 24 to denote midnight at the end of
// a day, which rolls over to 00:00:00 of the following day.
package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"epingest/internal/domain/model"
	"epingest/internal/support/exception"
)

const stage = "normalize"

// Normalize combines a simulation year with a raw `MM/DD  HH:MM:SS`
// timestamp and returns the canonical time. Hour 24 is converted to 00:00:00
// of the next calendar day; the rollover handles month and year boundaries
// (e.g. 12/31 24:00:00 of year N becomes 01/01 00:00:00 of year N+1).
//
// The function is pure: no I/O, no side effects. It is called once per source
// row and is the main per-row cost of projection.
func Normalize(year int, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)

	datePart, timePart, ok := strings.Cut(raw, "  ")
	if !ok {
		return time.Time{}, malformed(raw, "missing two-space separator")
	}

	monthStr, dayStr, ok := strings.Cut(strings.TrimSpace(datePart), "/")
	if !ok {
		return time.Time{}, malformed(raw, "missing '/' in date")
	}
	month, err := parseField(monthStr, 1, 12)
	if err != nil {
		return time.Time{}, malformed(raw, "bad month")
	}
	day, err := parseField(dayStr, 1, 31)
	if err != nil {
		return time.Time{}, malformed(raw, "bad day")
	}

	fields := strings.Split(strings.TrimSpace(timePart), ":")
	if len(fields) != 3 {
		return time.Time{}, malformed(raw, "time is not HH:MM:SS")
	}
	hour, err := parseField(fields[0], 0, 24)
	if err != nil {
		return time.Time{}, malformed(raw, "bad hour")
	}
	minute, err := parseField(fields[1], 0, 59)
	if err != nil {
		return time.Time{}, malformed(raw, "bad minute")
	}
	second, err := parseField(fields[2], 0, 59)
	if err != nil {
		return time.Time{}, malformed(raw, "bad second")
	}

	if hour == 24 {
		// Hour 24 marks end-of-day midnight only; any other minute or
		// second on hour 24 has no calendar meaning.
		if minute != 0 || second != 0 {
			return time.Time{}, malformed(raw, "hour 24 with nonzero minutes or seconds")
		}
		// AddDate performs the calendar arithmetic for month and year
		// rollover.
		midnight, err := construct(year, month, day, 0, 0, 0)
		if err != nil {
			return time.Time{}, malformed(raw, "invalid calendar date")
		}
		return midnight.AddDate(0, 0, 1), nil
	}

	ts, err := construct(year, month, day, hour, minute, second)
	if err != nil {
		return time.Time{}, malformed(raw, "invalid calendar date")
	}
	return ts, nil
}

// construct builds the canonical timestamp via time.Parse so that impossible
// calendar dates (e.g. 02/30) are rejected rather than silently normalized.
func construct(year, month, day, hour, minute, second int) (time.Time, error) {
	text := fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d", year, month, day, hour, minute, second)
	return time.Parse(model.DatetimeLayout, text)
}

// parseField parses a zero-padded numeric field and checks its range.
func parseField(s string, min, max int) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > 2 {
		return 0, fmt.Errorf("field %q out of shape", s)
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if v < min || v > max {
		return 0, fmt.Errorf("field %d out of range [%d,%d]", v, min, max)
	}
	return v, nil
}

func malformed(raw, detail string) error {
	return exception.Newf(stage, exception.ErrMalformedTimestamp, "timestamp %q: %s", raw, detail)
}
