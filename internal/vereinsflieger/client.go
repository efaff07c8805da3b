// Package vereinsflieger is a client for the club flight logbook REST interface.
package vereinsflieger

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/yegors/spotlog/pkg/logger"
)

const DefaultBaseURL = "https://www.vereinsflieger.de/interface/rest"

var (
	// ErrTransient marks network failures, timeouts and 5xx responses
	ErrTransient = errors.New("logbook unavailable")
	// ErrAuth marks rejected credentials
	ErrAuth = errors.New("logbook authentication failed")
	// ErrRejected marks requests the logbook refused (4xx)
	ErrRejected = errors.New("logbook rejected request")
)

// Credentials are the sign-in parameters
type Credentials struct {
	Login    string
	Password string // plain text, sent as MD5 hex as the interface requires
	AppKey   string
	ClubID   string // optional, for users in several clubs
}

// Config holds logbook client settings
type Config struct {
	BaseURL        string
	Credentials    Credentials
	RequestTimeout time.Duration
}

// Client talks to the logbook REST interface
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates a new logbook client
func NewClient(config Config, log *logger.Logger) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.RequestTimeout,
		},
		logger: log.Named("vf-client"),
	}
}

// Authenticate obtains an access token and signs in with the configured credentials
func (c *Client) Authenticate(ctx context.Context) (*Session, error) {
	var token struct {
		AccessToken string `json:"accesstoken"`
	}
	if err := c.do(ctx, http.MethodGet, "auth/accesstoken", nil, &token); err != nil {
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty access token", ErrAuth)
	}

	sum := md5.Sum([]byte(c.config.Credentials.Password))
	form := url.Values{}
	form.Set("accesstoken", token.AccessToken)
	form.Set("username", c.config.Credentials.Login)
	form.Set("password", hex.EncodeToString(sum[:]))
	form.Set("appkey", c.config.Credentials.AppKey)
	if c.config.Credentials.ClubID != "" {
		form.Set("cid", c.config.Credentials.ClubID)
	}

	if err := c.do(ctx, http.MethodPost, "auth/signin", form, nil); err != nil {
		if errors.Is(err, ErrRejected) {
			return nil, fmt.Errorf("%w: %v", ErrAuth, err)
		}
		return nil, fmt.Errorf("sign-in failed: %w", err)
	}

	c.logger.Debug("Signed in to logbook",
		logger.String("login", c.config.Credentials.Login))

	return &Session{AccessToken: token.AccessToken}, nil
}

// CreateFlight inserts a new flight and returns its id
func (c *Client) CreateFlight(ctx context.Context, s *Session, draft FlightDraft) (string, error) {
	form := c.sessionForm(s)
	form.Set("callsign", draft.Callsign)
	form.Set("pilotname", draft.PilotName)
	setIfNotEmpty(form, "uidpilot", draft.PilotID)
	form.Set("starttype", draft.StartType)
	form.Set("departuretime", draft.Departure.Format(TimeLayout))
	form.Set("departurelocation", draft.DepartureLocation)
	setIfNotEmpty(form, "towcallsign", draft.TowCallsign)
	setIfNotEmpty(form, "ftid", draft.FlightTypeID)
	setIfNotEmpty(form, "chargemode", draft.ChargeMode)

	var resp map[string]interface{}
	if err := c.do(ctx, http.MethodPost, "flight/add", form, &resp); err != nil {
		return "", fmt.Errorf("failed to add flight: %w", err)
	}

	id := stringValue(resp["flid"])
	if id == "" {
		return "", fmt.Errorf("%w: response carries no flight id", ErrRejected)
	}

	c.logger.Info("Flight created",
		logger.String("flid", id),
		logger.String("departure", draft.Departure.Format(TimeLayout)),
		logger.String("location", draft.DepartureLocation))

	return id, nil
}

// UpdateFlight writes landing data to an existing flight
func (c *Client) UpdateFlight(ctx context.Context, s *Session, id string, update FlightUpdate) error {
	form := c.sessionForm(s)
	form.Set("departuretime", update.DepartureTime)
	form.Set("arrivaltime", update.Arrival.Format(TimeLayout))
	form.Set("arrivallocation", update.ArrivalLocation)

	if err := c.do(ctx, http.MethodPut, "flight/edit/"+url.PathEscape(id), form, nil); err != nil {
		return fmt.Errorf("failed to update flight %s: %w", id, err)
	}

	c.logger.Info("Flight updated",
		logger.String("flid", id),
		logger.String("arrival", update.Arrival.Format(TimeLayout)),
		logger.String("location", update.ArrivalLocation))

	return nil
}

// GetFlight fetches a single flight
func (c *Client) GetFlight(ctx context.Context, s *Session, id string) (*FlightRecord, error) {
	var resp map[string]interface{}
	if err := c.do(ctx, http.MethodPost, "flight/get/"+url.PathEscape(id), c.sessionForm(s), &resp); err != nil {
		return nil, fmt.Errorf("failed to get flight %s: %w", id, err)
	}

	rec := recordFromMap(resp)
	if rec.ID == "" {
		rec.ID = id
	}
	return &rec, nil
}

// ListFlights returns the flights of one local calendar date in logbook order
func (c *Client) ListFlights(ctx context.Context, s *Session, date string) ([]FlightRecord, error) {
	form := c.sessionForm(s)
	form.Set("dateparam", date)

	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "flight/list/date", form, &raw); err != nil {
		return nil, fmt.Errorf("failed to list flights for %s: %w", date, err)
	}

	records, err := decodeList(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode flight list: %w", err)
	}

	c.logger.Debug("Listed flights",
		logger.String("date", date),
		logger.Int("count", len(records)))

	return records, nil
}

func (c *Client) sessionForm(s *Session) url.Values {
	form := url.Values{}
	if s != nil {
		form.Set("accesstoken", s.AccessToken)
	}
	return form
}

// do sends a form-encoded request and decodes a JSON response into target (if non-nil)
func (c *Client) do(ctx context.Context, method, path string, form url.Values, target interface{}) error {
	endpoint := strings.TrimRight(c.config.BaseURL, "/") + "/" + path

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrTransient, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response body: %v", ErrTransient, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s %s: status %d", ErrTransient, method, path, resp.StatusCode)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s %s: status %d", ErrAuth, method, path, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("%w: %s %s: status %d: %s", ErrRejected, method, path, resp.StatusCode, errorText(data))
	}

	if target == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, target); err != nil {
		// A 200 with an undecodable body is usually a maintenance page
		return fmt.Errorf("%w: failed to parse JSON from %s: %v", ErrTransient, path, err)
	}
	return nil
}

// decodeList accepts both a JSON array and the object form keyed "0","1",...
// (plus bookkeeping keys such as "httpstatuscode") that the logbook returns.
func decodeList(raw json.RawMessage) ([]FlightRecord, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}

	if strings.HasPrefix(trimmed, "[") {
		var items []map[string]interface{}
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, err
		}
		records := make([]FlightRecord, 0, len(items))
		for _, item := range items {
			records = append(records, recordFromMap(item))
		}
		return records, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}

	keys := make([]int, 0, len(obj))
	for k := range obj {
		if n, err := strconv.Atoi(k); err == nil {
			keys = append(keys, n)
		}
	}
	sort.Ints(keys)

	records := make([]FlightRecord, 0, len(keys))
	for _, k := range keys {
		var item map[string]interface{}
		if err := json.Unmarshal(obj[strconv.Itoa(k)], &item); err != nil {
			return nil, fmt.Errorf("entry %d: %w", k, err)
		}
		records = append(records, recordFromMap(item))
	}
	return records, nil
}

func recordFromMap(m map[string]interface{}) FlightRecord {
	return FlightRecord{
		ID:                stringValue(m["flid"]),
		Date:              stringValue(m["dateofflight"]),
		PilotName:         stringValue(m["pilotname"]),
		DepartureTime:     stringValue(m["departuretime"]),
		ArrivalTime:       stringValue(m["arrivaltime"]),
		DepartureLocation: stringValue(m["departurelocation"]),
		ArrivalLocation:   stringValue(m["arrivallocation"]),
		Callsign:          stringValue(m["callsign"]),
		StartType:         stringValue(m["starttype"]),
		TowCallsign:       stringValue(m["towcallsign"]),
		FlightTypeID:      stringValue(m["ftid"]),
		ChargeMode:        stringValue(m["chargemode"]),
	}
}

// stringValue flattens the mixed string/number JSON values the logbook emits
func stringValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

func setIfNotEmpty(form url.Values, key, value string) {
	if value != "" {
		form.Set(key, value)
	}
}

func errorText(data []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		return body.Error
	}
	text := strings.TrimSpace(string(data))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}
