// Package spot fetches tracker messages from the satellite messenger public XML feed.
package spot

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yegors/spotlog/pkg/logger"
)

const (
	DefaultBaseURL = "https://api.findmespot.com/spot-main-web/consumer/rest-api/2.0/public/feed"

	// Feed date parameters are UTC, sent with a literal "-0000" offset
	dateParamLayout = "2006-01-02T15:04:05"
	dateParamOffset = "-0000"

	defaultBackoff = 500 * time.Millisecond
)

// ErrTransient marks failures that may succeed on a later attempt
var ErrTransient = errors.New("transient feed error")

// Config holds feed client settings
type Config struct {
	BaseURL        string
	FeedID         string
	FeedPassword   string // only for password protected feeds
	RequestTimeout time.Duration
	MaxRetries     int
	Backoff        time.Duration // first retry delay, doubled per attempt
	TakeoffType    string        // messageType signalling a takeoff
	LandingType    string        // messageType signalling a landing
}

// Client talks to the feed API
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates a new feed client
func NewClient(config Config, log *logger.Logger) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Backoff <= 0 {
		config.Backoff = defaultBackoff
	}
	if config.TakeoffType == "" {
		config.TakeoffType = "CUSTOM"
	}
	if config.LandingType == "" {
		config.LandingType = "OK"
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.RequestTimeout,
		},
		logger: log.Named("spot-feed"),
	}
}

// DayWindow returns the UTC start and end of the calendar day containing t
func DayWindow(t time.Time) (time.Time, time.Time) {
	u := t.UTC()
	start := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.Add(24*time.Hour - time.Second)
}

// FetchMessages returns the messages between start and end, newest first as the feed delivers them
func (c *Client) FetchMessages(ctx context.Context, start, end time.Time) ([]Message, error) {
	feedURL, err := c.buildURL(start, end)
	if err != nil {
		return nil, err
	}

	body, err := c.fetchWithRetry(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	messages, err := c.parse(body)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Fetched feed messages",
		logger.Int("count", len(messages)),
		logger.Time("start", start),
		logger.Time("end", end))

	return messages, nil
}

func (c *Client) buildURL(start, end time.Time) (string, error) {
	base, err := url.Parse(strings.TrimRight(c.config.BaseURL, "/") + "/" + url.PathEscape(c.config.FeedID) + "/message.xml")
	if err != nil {
		return "", fmt.Errorf("invalid feed URL: %w", err)
	}

	q := base.Query()
	q.Set("startDate", start.UTC().Format(dateParamLayout)+dateParamOffset)
	q.Set("endDate", end.UTC().Format(dateParamLayout)+dateParamOffset)
	if c.config.FeedPassword != "" {
		q.Set("feedPassword", c.config.FeedPassword)
	}
	base.RawQuery = q.Encode()
	return base.String(), nil
}

// fetchWithRetry performs the GET with exponential backoff on network errors,
// 429 and 5xx responses
func (c *Client) fetchWithRetry(ctx context.Context, feedURL string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.config.Backoff * time.Duration(1<<uint(attempt-1))
			c.logger.Info("Retrying feed fetch",
				logger.Int("attempt", attempt),
				logger.Duration("backoff", backoff))

			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrTransient, ctx.Err())
			case <-time.After(backoff):
			}
		}

		body, retry, err := c.fetchOnce(ctx, feedURL)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retry {
			return nil, err
		}

		c.logger.Warn("Feed request failed, may retry",
			logger.Error(err),
			logger.Int("attempt", attempt+1),
			logger.Int("max_attempts", c.config.MaxRetries+1))
	}

	c.logger.Error("All attempts to fetch feed failed",
		logger.Error(lastErr),
		logger.Int("max_attempts", c.config.MaxRetries+1))
	return nil, lastErr
}

func (c *Client) fetchOnce(ctx context.Context, feedURL string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("%w: request failed: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("%w: failed to read response body: %v", ErrTransient, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, false, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("%w: unexpected status code: %d", ErrTransient, resp.StatusCode)
	default:
		return nil, false, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
}

func (c *Client) parse(body []byte) ([]Message, error) {
	var doc feedResponse
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse feed XML: %w", err)
	}

	if len(doc.Errors) > 0 {
		e := doc.Errors[0]
		if e.Code == codeNoMessages {
			return nil, nil
		}
		return nil, fmt.Errorf("feed error %s: %s", e.Code, e.Text)
	}

	if doc.FeedMessageResponse == nil {
		return nil, nil
	}

	messages := make([]Message, 0, len(doc.FeedMessageResponse.Messages))
	for _, m := range doc.FeedMessageResponse.Messages {
		if m.ID == "" {
			c.logger.Warn("Skipping feed message without id",
				logger.String("type", m.MessageType))
			continue
		}
		messages = append(messages, Message{
			ID:            m.ID,
			Type:          c.classify(m.MessageType),
			RawType:       m.MessageType,
			TimestampUTC:  time.Unix(m.UnixTime, 0).UTC(),
			Latitude:      m.Latitude,
			Longitude:     m.Longitude,
			BatteryLevel:  m.BatteryState,
			MessengerName: m.MessengerName,
		})
	}
	return messages, nil
}

func (c *Client) classify(messageType string) MessageType {
	switch {
	case strings.EqualFold(messageType, c.config.TakeoffType):
		return TypeTakeoff
	case strings.EqualFold(messageType, c.config.LandingType):
		return TypeLanding
	default:
		return TypeOther
	}
}
