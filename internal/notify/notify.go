// Package notify delivers best-effort flight notifications.
package notify

import (
	"context"
	"time"
)

// Kind categorizes a notification
type Kind string

const (
	KindTakeoff Kind = "takeoff"
	KindLanding Kind = "landing"
	KindProblem Kind = "problem"
)

// Notification is one message to deliver
type Notification struct {
	Kind      Kind
	Message   string
	Recipient string // recipient key, e.g. a Pushover user key
	At        time.Time
}

// Notifier delivers notifications. Implementations log failures and never
// return them: a notification that cannot be delivered must not affect the pass.
type Notifier interface {
	Send(ctx context.Context, n Notification)
}

// Nop drops every notification
type Nop struct{}

func (Nop) Send(context.Context, Notification) {}

// Multi fans out to several notifiers in order
type Multi []Notifier

func (m Multi) Send(ctx context.Context, n Notification) {
	for _, notifier := range m {
		notifier.Send(ctx, n)
	}
}
