// Package state defines the durable local state a reconciliation pass relies
// on: the set of already handled feed messages, the pending takeoff slot and
// the pass lease.
package state

import (
	"context"
	"errors"
	"time"
)

// ErrLocked is returned by Locker.Acquire when another pass holds the lease
var ErrLocked = errors.New("another reconciliation pass is running")

// PendingTakeoff is the most recent takeoff that has not been paired with a landing
type PendingTakeoff struct {
	TakeoffUTC time.Time
	TimeZone   string // zone of the departure airport
	Airport    string // departure airport name
}

// MessageLog is the append-only set of feed message ids already acted upon
type MessageLog interface {
	IsKnown(ctx context.Context, id string) (bool, error)
	MarkKnown(ctx context.Context, id string, at time.Time) error
	// Prune forgets ids marked before the cutoff and returns how many were removed
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// SessionStore holds the single pending takeoff slot
type SessionStore interface {
	Pending(ctx context.Context) (*PendingTakeoff, error)
	SetPending(ctx context.Context, p PendingTakeoff) error
	ClearPending(ctx context.Context) error
}

// Locker provides exclusive access for one pass at a time.
// A lease older than staleAfter may be taken over.
type Locker interface {
	Acquire(ctx context.Context, owner string, staleAfter time.Duration) error
	Release(ctx context.Context, owner string) error
}

// Store bundles all state ports
type Store interface {
	MessageLog
	SessionStore
	Locker
}
