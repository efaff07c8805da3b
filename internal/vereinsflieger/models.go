package vereinsflieger

import (
	"strings"
	"time"
)

// TimeLayout is the local date-time format the logbook accepts on writes
const TimeLayout = "2006-01-02 15:04"

// Session is an authenticated logbook session
type Session struct {
	AccessToken string
}

// FlightRecord is a flight as stored in the logbook. Times are local wall
// clock strings exactly as returned ("HH:MM[:SS]" or "YYYY-MM-DD HH:MM[:SS]").
type FlightRecord struct {
	ID                string
	Date              string // dateofflight, YYYY-MM-DD
	PilotName         string // "Surname, Firstname"
	DepartureTime     string
	ArrivalTime       string
	DepartureLocation string
	ArrivalLocation   string
	Callsign          string
	StartType         string
	TowCallsign       string
	FlightTypeID      string
	ChargeMode        string
}

// IsUnsetTime reports whether a logbook time value carries the "not yet set" sentinel
func IsUnsetTime(value string) bool {
	v := strings.TrimSpace(value)
	if i := strings.LastIndex(v, " "); i >= 0 {
		v = v[i+1:]
	}
	switch v {
	case "", "00:00", "00:00:00":
		return true
	}
	return false
}

// ArrivalSet reports whether the flight already has a landing time
func (f FlightRecord) ArrivalSet() bool {
	return !IsUnsetTime(f.ArrivalTime)
}

// DepartureDateTime returns the stored departure as "YYYY-MM-DD HH:MM",
// prefixing the flight date when the logbook only returned a time of day.
func (f FlightRecord) DepartureDateTime() string {
	v := strings.TrimSpace(f.DepartureTime)
	if !strings.Contains(v, " ") && f.Date != "" {
		v = f.Date + " " + v
	}
	// Drop seconds, writes take minutes only
	if len(v) == len("2006-01-02 15:04:05") {
		v = v[:len(TimeLayout)]
	}
	return v
}

// FlightDraft describes a new flight to be created at takeoff
type FlightDraft struct {
	Callsign          string
	PilotName         string
	PilotID           string
	StartType         string
	Departure         time.Time // already in the departure airport's zone
	DepartureLocation string
	TowCallsign       string
	FlightTypeID      string
	ChargeMode        string
}

// FlightUpdate carries the landing fields. The logbook requires the
// departure time to be sent along with the arrival time.
type FlightUpdate struct {
	DepartureTime   string    // as returned by FlightRecord.DepartureDateTime
	Arrival         time.Time // already in the arrival airport's zone
	ArrivalLocation string
}
