// Package timeconv converts between UTC instants and airport-local wall clock time.
package timeconv

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar date format used by the logbook and the feed
const DateLayout = "2006-01-02"

// ErrInvalidTimeZone is returned when a time zone name is not recognized
var ErrInvalidTimeZone = errors.New("invalid time zone")

// ErrInvalidTimeOfDay is returned when a local time string cannot be parsed
var ErrInvalidTimeOfDay = errors.New("invalid time of day")

// LoadZone resolves an IANA time zone name. An empty name is rejected rather
// than silently mapped to UTC.
func LoadZone(name string) (*time.Location, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: empty name", ErrInvalidTimeZone)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTimeZone, name)
	}
	return loc, nil
}

// ToLocal converts a UTC instant into wall clock time of the named zone
func ToLocal(utc time.Time, zone string) (time.Time, error) {
	loc, err := LoadZone(zone)
	if err != nil {
		return time.Time{}, err
	}
	return utc.In(loc), nil
}

// LocalDate returns the calendar date (YYYY-MM-DD) of the instant in the named zone
func LocalDate(utc time.Time, zone string) (string, error) {
	local, err := ToLocal(utc, zone)
	if err != nil {
		return "", err
	}
	return local.Format(DateLayout), nil
}

// SameLocalDate reports whether two instants fall on the same calendar day in the named zone
func SameLocalDate(a, b time.Time, zone string) (bool, error) {
	da, err := LocalDate(a, zone)
	if err != nil {
		return false, err
	}
	db, err := LocalDate(b, zone)
	if err != nil {
		return false, err
	}
	return da == db, nil
}

// LocalTimeStringToUTC composes the calendar date of reference (taken in the
// named zone) with a "HH:MM:SS" or "HH:MM" local time and returns the UTC instant.
func LocalTimeStringToUTC(timeOfDay string, reference time.Time, zone string) (time.Time, error) {
	loc, err := LoadZone(zone)
	if err != nil {
		return time.Time{}, err
	}

	h, m, s, err := parseTimeOfDay(timeOfDay)
	if err != nil {
		return time.Time{}, err
	}

	ref := reference.In(loc)
	local := time.Date(ref.Year(), ref.Month(), ref.Day(), h, m, s, 0, loc)
	return local.UTC(), nil
}

// parseTimeOfDay accepts "HH:MM", "HH:MM:SS" and a full "YYYY-MM-DD HH:MM[:SS]"
// in which case only the time part is used.
func parseTimeOfDay(value string) (int, int, int, error) {
	value = strings.TrimSpace(value)
	if i := strings.LastIndex(value, " "); i >= 0 {
		value = value[i+1:]
	}

	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Hour(), t.Minute(), t.Second(), nil
		}
	}
	return 0, 0, 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, value)
}
