package vereinsflieger

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yegors/spotlog/pkg/logger"
)

type fakeLogbook struct {
	t       *testing.T
	flights map[string]map[string]interface{}
	edits   []map[string]string
	signins int
	failAll int
}

func (f *fakeLogbook) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/accesstoken", func(w http.ResponseWriter, r *http.Request) {
		if f.failAll != 0 {
			w.WriteHeader(f.failAll)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"accesstoken": "tok123"})
	})
	mux.HandleFunc("/auth/signin", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(f.t, r.ParseForm())
		sum := md5.Sum([]byte("secret"))
		if r.PostForm.Get("password") != hex.EncodeToString(sum[:]) || r.PostForm.Get("accesstoken") != "tok123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.signins++
		w.Write([]byte(`{"httpstatuscode":200}`))
	})
	mux.HandleFunc("/flight/add", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(f.t, r.ParseForm())
		if r.PostForm.Get("departurelocation") == "" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"departurelocation missing"}`))
			return
		}
		f.flights["4711"] = map[string]interface{}{
			"flid":              4711,
			"pilotname":         r.PostForm.Get("pilotname"),
			"departuretime":     r.PostForm.Get("departuretime"),
			"departurelocation": r.PostForm.Get("departurelocation"),
			"towcallsign":       r.PostForm.Get("towcallsign"),
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"flid": 4711, "httpstatuscode": 200})
	})
	mux.HandleFunc("/flight/edit/4711", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(f.t, http.MethodPut, r.Method)
		require.NoError(f.t, r.ParseForm())
		f.edits = append(f.edits, map[string]string{
			"departuretime":   r.PostForm.Get("departuretime"),
			"arrivaltime":     r.PostForm.Get("arrivaltime"),
			"arrivallocation": r.PostForm.Get("arrivallocation"),
		})
		w.Write([]byte(`{"httpstatuscode":200}`))
	})
	mux.HandleFunc("/flight/get/4711", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"flid":          "4711",
			"dateofflight":  "2024-06-13",
			"pilotname":     "Muster, Hans",
			"departuretime": "09:00:00",
			"arrivaltime":   "00:00:00",
		})
	})
	mux.HandleFunc("/flight/list/date", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(f.t, r.ParseForm())
		assert.Equal(f.t, "2024-06-13", r.PostForm.Get("dateparam"))
		w.Write([]byte(`{
			"1": {"flid": 2, "pilotname": "Muster, Hans", "departuretime": "11:00:00", "arrivaltime": "00:00:00"},
			"0": {"flid": 1, "pilotname": "Muster, Hans", "departuretime": "09:00:00", "arrivaltime": "10:00:00"},
			"10": {"flid": 11, "pilotname": "Beispiel, Eva", "departuretime": "12:00", "arrivaltime": ""},
			"httpstatuscode": 200
		}`))
	})
	return mux
}

func newFake(t *testing.T) (*fakeLogbook, *Client, func()) {
	f := &fakeLogbook{t: t, flights: map[string]map[string]interface{}{}}
	srv := httptest.NewServer(f.handler())
	c := NewClient(Config{
		BaseURL:        srv.URL,
		Credentials:    Credentials{Login: "pilot", Password: "secret", AppKey: "app"},
		RequestTimeout: 2 * time.Second,
	}, logger.NewNop())
	return f, c, srv.Close
}

func TestAuthenticate(t *testing.T) {
	f, c, done := newFake(t)
	defer done()

	s, err := c.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok123", s.AccessToken)
	assert.Equal(t, 1, f.signins)
}

func TestAuthenticateBadPassword(t *testing.T) {
	_, c, done := newFake(t)
	defer done()
	c.config.Credentials.Password = "wrong"

	_, err := c.Authenticate(context.Background())
	assert.ErrorIs(t, err, ErrAuth)
}

func TestAuthenticateServerDown(t *testing.T) {
	f, c, done := newFake(t)
	defer done()
	f.failAll = http.StatusBadGateway

	_, err := c.Authenticate(context.Background())
	assert.ErrorIs(t, err, ErrTransient)
}

func TestCreateFlight(t *testing.T) {
	f, c, done := newFake(t)
	defer done()

	zurich, err := time.LoadLocation("Europe/Zurich")
	require.NoError(t, err)

	s := &Session{AccessToken: "tok123"}
	id, err := c.CreateFlight(context.Background(), s, FlightDraft{
		Callsign:          "HB-1234",
		PilotName:         "Muster, Hans",
		StartType:         "F",
		Departure:         time.Date(2024, 6, 13, 9, 0, 0, 0, zurich),
		DepartureLocation: "Grenchen",
		TowCallsign:       "HB-EQM",
	})
	require.NoError(t, err)
	assert.Equal(t, "4711", id)
	assert.Equal(t, "2024-06-13 09:00", f.flights["4711"]["departuretime"])
	assert.Equal(t, "HB-EQM", f.flights["4711"]["towcallsign"])
}

func TestCreateFlightRejected(t *testing.T) {
	_, c, done := newFake(t)
	defer done()

	_, err := c.CreateFlight(context.Background(), &Session{AccessToken: "tok123"}, FlightDraft{Departure: time.Now()})
	assert.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "departurelocation missing")
}

func TestUpdateFlight(t *testing.T) {
	f, c, done := newFake(t)
	defer done()

	err := c.UpdateFlight(context.Background(), &Session{AccessToken: "tok123"}, "4711", FlightUpdate{
		DepartureTime:   "2024-06-13 09:00",
		Arrival:         time.Date(2024, 6, 13, 10, 30, 0, 0, time.UTC),
		ArrivalLocation: "Bern-Belp",
	})
	require.NoError(t, err)
	require.Len(t, f.edits, 1)
	assert.Equal(t, "2024-06-13 09:00", f.edits[0]["departuretime"])
	assert.Equal(t, "2024-06-13 10:30", f.edits[0]["arrivaltime"])
	assert.Equal(t, "Bern-Belp", f.edits[0]["arrivallocation"])
}

func TestGetFlight(t *testing.T) {
	_, c, done := newFake(t)
	defer done()

	rec, err := c.GetFlight(context.Background(), &Session{AccessToken: "tok123"}, "4711")
	require.NoError(t, err)
	assert.Equal(t, "Muster, Hans", rec.PilotName)
	assert.False(t, rec.ArrivalSet())
	assert.Equal(t, "2024-06-13 09:00", rec.DepartureDateTime())
}

func TestListFlightsKeepsLogbookOrder(t *testing.T) {
	_, c, done := newFake(t)
	defer done()

	recs, err := c.ListFlights(context.Background(), &Session{AccessToken: "tok123"}, "2024-06-13")
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "1", recs[0].ID)
	assert.Equal(t, "2", recs[1].ID)
	assert.Equal(t, "11", recs[2].ID)
	assert.True(t, recs[0].ArrivalSet())
	assert.False(t, recs[1].ArrivalSet())
	assert.False(t, recs[2].ArrivalSet())
}

func TestDecodeListArray(t *testing.T) {
	recs, err := decodeList(json.RawMessage(`[{"flid":"7","pilotname":"A, B"}]`))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "7", recs[0].ID)

	recs, err = decodeList(json.RawMessage(`{"httpstatuscode":200}`))
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestIsUnsetTime(t *testing.T) {
	assert.True(t, IsUnsetTime(""))
	assert.True(t, IsUnsetTime("00:00:00"))
	assert.True(t, IsUnsetTime("00:00"))
	assert.True(t, IsUnsetTime("2024-06-13 00:00:00"))
	assert.False(t, IsUnsetTime("10:15:00"))
}

func TestCreateFlightMaintenancePageIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body>Wartungsarbeiten</body></html>"))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, RequestTimeout: 2 * time.Second}, logger.NewNop())
	_, err := c.CreateFlight(context.Background(), &Session{AccessToken: "tok123"}, FlightDraft{
		Departure:         time.Date(2024, 6, 13, 9, 0, 0, 0, time.UTC),
		DepartureLocation: "Grenchen",
	})
	assert.ErrorIs(t, err, ErrTransient)
	assert.NotErrorIs(t, err, ErrRejected)
}
