package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/yegors/spotlog/internal/spot"
	"github.com/yegors/spotlog/internal/vereinsflieger"
)

var (
	// ErrTransientIO aborts the pass; the message stays unknown and is retried next run
	ErrTransientIO = errors.New("transient I/O failure")
	// ErrAuthFailure aborts the pass
	ErrAuthFailure = errors.New("authentication failure")
	// ErrDataInconsistency is reported per message; the pass continues and the message is marked known
	ErrDataInconsistency = errors.New("data inconsistency")
	// ErrConfig is fatal at startup
	ErrConfig = errors.New("configuration error")
)

// classify wraps a collaborator error with the sentinel describing how the pass reacts to it
func classify(err error, what string) error {
	var kind error
	switch {
	case errors.Is(err, vereinsflieger.ErrAuth):
		kind = ErrAuthFailure
	case errors.Is(err, vereinsflieger.ErrTransient),
		errors.Is(err, spot.ErrTransient),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		kind = ErrTransientIO
	default:
		kind = ErrDataInconsistency
	}
	return fmt.Errorf("%w: %s: %w", kind, what, err)
}

func inconsistency(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrDataInconsistency, fmt.Sprintf(format, args...))
}

// aborts reports whether err ends the pass
func aborts(err error) bool {
	return err != nil && !errors.Is(err, ErrDataInconsistency)
}
