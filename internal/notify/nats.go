package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/yegors/spotlog/pkg/logger"
)

type publisher interface {
	Publish(subject string, data []byte) error
}

// natsEvent is the JSON payload published for every notification
type natsEvent struct {
	Kind      Kind      `json:"kind"`
	Message   string    `json:"message"`
	Recipient string    `json:"recipient,omitempty"`
	At        time.Time `json:"at"`
}

// NATS publishes notifications as JSON events on a subject
type NATS struct {
	conn    *nats.Conn
	pub     publisher
	subject string
	logger  *logger.Logger
}

// ConnectNATS dials the server and returns a publisher for subject
func ConnectNATS(serverURL, subject string, timeout time.Duration, log *logger.Logger) (*NATS, error) {
	conn, err := nats.Connect(serverURL,
		nats.Name("spotlog"),
		nats.Timeout(timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", serverURL, err)
	}
	n := newNATS(conn, subject, log)
	n.conn = conn
	return n, nil
}

func newNATS(pub publisher, subject string, log *logger.Logger) *NATS {
	return &NATS{
		pub:     pub,
		subject: subject,
		logger:  log.Named("nats-notify"),
	}
}

// Send publishes the notification. Failures are logged only.
func (n *NATS) Send(_ context.Context, note Notification) {
	at := note.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	data, err := json.Marshal(natsEvent{
		Kind:      note.Kind,
		Message:   note.Message,
		Recipient: note.Recipient,
		At:        at,
	})
	if err != nil {
		n.logger.Warn("Failed to encode event", logger.Error(err))
		return
	}

	if err := n.pub.Publish(n.subject, data); err != nil {
		n.logger.Warn("Failed to publish event",
			logger.String("subject", n.subject),
			logger.Error(err))
	}
}

// Close flushes pending events and closes the connection
func (n *NATS) Close() {
	if n.conn == nil {
		return
	}
	if err := n.conn.FlushTimeout(2 * time.Second); err != nil {
		n.logger.Warn("Failed to flush NATS connection", logger.Error(err))
	}
	n.conn.Close()
}
