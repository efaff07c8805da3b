package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yegors/spotlog/pkg/logger"
)

const DefaultPushoverURL = "https://api.pushover.net"

// PushoverConfig holds Pushover settings
type PushoverConfig struct {
	BaseURL        string
	AppToken       string
	RequestTimeout time.Duration
}

// Pushover sends notifications through the Pushover messages API
type Pushover struct {
	config     PushoverConfig
	httpClient *http.Client
	logger     *logger.Logger
}

// NewPushover creates a Pushover notifier
func NewPushover(config PushoverConfig, log *logger.Logger) *Pushover {
	if config.BaseURL == "" {
		config.BaseURL = DefaultPushoverURL
	}
	return &Pushover{
		config: config,
		httpClient: &http.Client{
			Timeout: config.RequestTimeout,
		},
		logger: log.Named("pushover"),
	}
}

// Send posts the message. Failures are logged only.
func (p *Pushover) Send(ctx context.Context, n Notification) {
	if err := p.post(ctx, n); err != nil {
		p.logger.Warn("Failed to send notification",
			logger.String("kind", string(n.Kind)),
			logger.Error(err))
		return
	}
	p.logger.Debug("Notification sent",
		logger.String("kind", string(n.Kind)))
}

func (p *Pushover) post(ctx context.Context, n Notification) error {
	if n.Recipient == "" {
		return fmt.Errorf("no recipient key")
	}

	form := url.Values{}
	form.Set("token", p.config.AppToken)
	form.Set("user", n.Recipient)
	form.Set("message", n.Message)
	if !n.At.IsZero() {
		form.Set("timestamp", fmt.Sprintf("%d", n.At.Unix()))
	}

	endpoint := strings.TrimRight(p.config.BaseURL, "/") + "/1/messages.json"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return nil
}
