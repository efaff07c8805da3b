// Package matcher finds the open logbook flight that belongs to a takeoff.
package matcher

import (
	"context"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/yegors/spotlog/internal/timeconv"
	"github.com/yegors/spotlog/internal/vereinsflieger"
	"github.com/yegors/spotlog/pkg/logger"
)

// DefaultTolerance is the allowed difference between a logged departure and the observed takeoff
const DefaultTolerance = 1800 * time.Second

// Outcome is the kind of result a match attempt produced
type Outcome int

const (
	Found Outcome = iota
	NoFlightsThatDay
	NoMatch
	AuthError
	QueryError
)

func (o Outcome) String() string {
	switch o {
	case Found:
		return "found"
	case NoFlightsThatDay:
		return "no_flights_that_day"
	case NoMatch:
		return "no_match"
	case AuthError:
		return "auth_error"
	case QueryError:
		return "query_error"
	default:
		return "unknown"
	}
}

// Result of a match attempt. Err is set for AuthError and QueryError.
type Result struct {
	Outcome  Outcome
	FlightID string
	Record   *vereinsflieger.FlightRecord
	Session  *vereinsflieger.Session
	Date     string // local calendar date that was searched
	Closed   int    // records that matched pilot and time but already had an arrival
	Err      error
}

// Logbook is the part of the logbook the matcher reads
type Logbook interface {
	Authenticate(ctx context.Context) (*vereinsflieger.Session, error)
	ListFlights(ctx context.Context, s *vereinsflieger.Session, date string) ([]vereinsflieger.FlightRecord, error)
}

// Matcher looks up flights by pilot and departure time
type Matcher struct {
	logbook   Logbook
	tolerance time.Duration
	logger    *logger.Logger
}

// New creates a matcher. A non-positive tolerance selects DefaultTolerance.
func New(logbook Logbook, tolerance time.Duration, log *logger.Logger) *Matcher {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Matcher{
		logbook:   logbook,
		tolerance: tolerance,
		logger:    log.Named("matcher"),
	}
}

// Match searches the flights of the candidate's local calendar date (in zone)
// for the first open flight of pilotName departing within the tolerance window.
func (m *Matcher) Match(ctx context.Context, pilotName string, candidate time.Time, zone string) Result {
	date, err := timeconv.LocalDate(candidate, zone)
	if err != nil {
		return Result{Outcome: QueryError, Err: err}
	}

	session, err := m.logbook.Authenticate(ctx)
	if err != nil {
		return Result{Outcome: AuthError, Date: date, Err: err}
	}

	records, err := m.logbook.ListFlights(ctx, session, date)
	if err != nil {
		return Result{Outcome: QueryError, Date: date, Session: session, Err: err}
	}
	if len(records) == 0 {
		return Result{Outcome: NoFlightsThatDay, Date: date, Session: session}
	}

	want := normalizeName(pilotName)
	closed := 0

	for i := range records {
		rec := records[i]
		if PilotDisplayName(rec.PilotName) != want {
			continue
		}
		if vereinsflieger.IsUnsetTime(rec.DepartureTime) {
			continue
		}

		departure, err := timeconv.LocalTimeStringToUTC(rec.DepartureTime, candidate, zone)
		if err != nil {
			m.logger.Debug("Skipping flight with unreadable departure time",
				logger.String("flid", rec.ID),
				logger.String("departure", rec.DepartureTime),
				logger.Error(err))
			continue
		}

		if absDuration(departure.Sub(candidate)) > m.tolerance {
			continue
		}

		if rec.ArrivalSet() {
			closed++
			m.logger.Debug("Matching flight already closed",
				logger.String("flid", rec.ID),
				logger.String("arrival", rec.ArrivalTime))
			continue
		}

		return Result{Outcome: Found, FlightID: rec.ID, Record: &rec, Session: session, Date: date, Closed: closed}
	}

	return Result{Outcome: NoMatch, Date: date, Session: session, Closed: closed}
}

// PilotDisplayName turns the logbook's "Surname, Firstname" into "Firstname Surname"
func PilotDisplayName(stored string) string {
	name := normalizeName(stored)
	surname, firstname, ok := strings.Cut(name, ",")
	if !ok {
		return name
	}
	return normalizeName(firstname + " " + surname)
}

// LogbookName turns "Firstname Surname" into the logbook's "Surname, Firstname".
// The last word is taken as the surname.
func LogbookName(display string) string {
	name := normalizeName(display)
	if strings.Contains(name, ",") {
		return name
	}
	i := strings.LastIndex(name, " ")
	if i < 0 {
		return name
	}
	return name[i+1:] + ", " + name[:i]
}

// normalizeName composes Unicode (so "Müller" equals "Müller") and collapses whitespace
func normalizeName(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
