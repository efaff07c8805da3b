package matcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yegors/spotlog/internal/vereinsflieger"
	"github.com/yegors/spotlog/pkg/logger"
)

const zone = "Europe/Zurich"

type fakeLogbook struct {
	authErr  error
	listErr  error
	flights  map[string][]vereinsflieger.FlightRecord
	lastDate string
}

func (f *fakeLogbook) Authenticate(context.Context) (*vereinsflieger.Session, error) {
	if f.authErr != nil {
		return nil, f.authErr
	}
	return &vereinsflieger.Session{AccessToken: "t"}, nil
}

func (f *fakeLogbook) ListFlights(_ context.Context, _ *vereinsflieger.Session, date string) ([]vereinsflieger.FlightRecord, error) {
	f.lastDate = date
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.flights[date], nil
}

// local returns the UTC instant of a Zurich wall clock time on 2024-06-13 (UTC+2)
func local(hour, minute, second int) time.Time {
	loc, _ := time.LoadLocation(zone)
	return time.Date(2024, 6, 13, hour, minute, second, 0, loc).UTC()
}

func newMatcher(lb Logbook) *Matcher {
	return New(lb, 0, logger.NewNop())
}

func TestMatchWithinWindow(t *testing.T) {
	lb := &fakeLogbook{flights: map[string][]vereinsflieger.FlightRecord{
		"2024-06-13": {{ID: "1", PilotName: "Muster, Hans", DepartureTime: "09:00:00", ArrivalTime: "00:00:00"}},
	}}

	res := newMatcher(lb).Match(context.Background(), "Hans Muster", local(9, 25, 0), zone)
	require.Equal(t, Found, res.Outcome)
	assert.Equal(t, "1", res.FlightID)
	assert.Equal(t, "2024-06-13", res.Date)
}

func TestMatchOutsideWindow(t *testing.T) {
	lb := &fakeLogbook{flights: map[string][]vereinsflieger.FlightRecord{
		"2024-06-13": {{ID: "1", PilotName: "Muster, Hans", DepartureTime: "09:00:00", ArrivalTime: "00:00:00"}},
	}}

	res := newMatcher(lb).Match(context.Background(), "Hans Muster", local(9, 35, 0), zone)
	assert.Equal(t, NoMatch, res.Outcome)
}

func TestMatchWindowBoundaryIsInclusive(t *testing.T) {
	lb := &fakeLogbook{flights: map[string][]vereinsflieger.FlightRecord{
		"2024-06-13": {{ID: "1", PilotName: "Muster, Hans", DepartureTime: "09:00:00", ArrivalTime: "00:00:00"}},
	}}
	m := newMatcher(lb)

	assert.Equal(t, Found, m.Match(context.Background(), "Hans Muster", local(9, 30, 0), zone).Outcome)
	assert.Equal(t, Found, m.Match(context.Background(), "Hans Muster", local(8, 30, 0), zone).Outcome)
	assert.Equal(t, NoMatch, m.Match(context.Background(), "Hans Muster", local(9, 30, 1), zone).Outcome)
	assert.Equal(t, NoMatch, m.Match(context.Background(), "Hans Muster", local(8, 29, 59), zone).Outcome)
}

func TestMatchSkipsClosedFlights(t *testing.T) {
	lb := &fakeLogbook{flights: map[string][]vereinsflieger.FlightRecord{
		"2024-06-13": {
			{ID: "1", PilotName: "Muster, Hans", DepartureTime: "09:00:00", ArrivalTime: "09:40:00"},
		},
	}}

	res := newMatcher(lb).Match(context.Background(), "Hans Muster", local(9, 5, 0), zone)
	assert.Equal(t, NoMatch, res.Outcome)
	assert.Equal(t, 1, res.Closed)
}

func TestMatchPicksFirstOpenFlight(t *testing.T) {
	lb := &fakeLogbook{flights: map[string][]vereinsflieger.FlightRecord{
		"2024-06-13": {
			{ID: "1", PilotName: "Beispiel, Eva", DepartureTime: "09:00:00", ArrivalTime: "00:00:00"},
			{ID: "2", PilotName: "Muster, Hans", DepartureTime: "09:00:00", ArrivalTime: "09:20:00"},
			{ID: "3", PilotName: "Muster, Hans", DepartureTime: "09:10", ArrivalTime: ""},
			{ID: "4", PilotName: "Muster, Hans", DepartureTime: "09:12:00", ArrivalTime: "00:00:00"},
		},
	}}

	res := newMatcher(lb).Match(context.Background(), "Hans Muster", local(9, 5, 0), zone)
	require.Equal(t, Found, res.Outcome)
	assert.Equal(t, "3", res.FlightID)
	assert.Equal(t, 1, res.Closed)
}

func TestMatchNoFlightsThatDay(t *testing.T) {
	res := newMatcher(&fakeLogbook{}).Match(context.Background(), "Hans Muster", local(9, 0, 0), zone)
	assert.Equal(t, NoFlightsThatDay, res.Outcome)
}

func TestMatchUsesLocalDate(t *testing.T) {
	lb := &fakeLogbook{}
	// 23:30 UTC on the 12th is 01:30 on the 13th in Zurich
	newMatcher(lb).Match(context.Background(), "Hans Muster", time.Date(2024, 6, 12, 23, 30, 0, 0, time.UTC), zone)
	assert.Equal(t, "2024-06-13", lb.lastDate)
}

func TestMatchAuthError(t *testing.T) {
	res := newMatcher(&fakeLogbook{authErr: errors.New("denied")}).Match(context.Background(), "Hans Muster", local(9, 0, 0), zone)
	assert.Equal(t, AuthError, res.Outcome)
	assert.Error(t, res.Err)
}

func TestMatchQueryError(t *testing.T) {
	res := newMatcher(&fakeLogbook{listErr: errors.New("timeout")}).Match(context.Background(), "Hans Muster", local(9, 0, 0), zone)
	assert.Equal(t, QueryError, res.Outcome)
	assert.Error(t, res.Err)
}

func TestMatchInvalidZone(t *testing.T) {
	res := newMatcher(&fakeLogbook{}).Match(context.Background(), "Hans Muster", local(9, 0, 0), "Nowhere/Land")
	assert.Equal(t, QueryError, res.Outcome)
}

func TestPilotDisplayName(t *testing.T) {
	assert.Equal(t, "Hans Muster", PilotDisplayName("Muster, Hans"))
	assert.Equal(t, "Hans Peter Muster", PilotDisplayName(" Muster ,  Hans Peter "))
	assert.Equal(t, "Hans Muster", PilotDisplayName("Hans Muster"))
	assert.Equal(t, "Jörg Müller", PilotDisplayName("Müller, Jörg"))
}

func TestLogbookName(t *testing.T) {
	assert.Equal(t, "Muster, Hans", LogbookName("Hans Muster"))
	assert.Equal(t, "Muster, Hans Peter", LogbookName("Hans Peter Muster"))
	assert.Equal(t, "Muster, Hans", LogbookName("Muster, Hans"))
	assert.Equal(t, "Cher", LogbookName("Cher"))
}
