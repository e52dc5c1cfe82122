package eventbus

import "errors"

var (
	// ErrNilHandler is returned when Subscribe is called with a nil handler.
	ErrNilHandler = errors.New("eventbus: handler is nil")
	// ErrUnknownSubscription is defined for callers; Unsubscribe never returns
	// it (unsubscribing an unknown or already-removed handle is a no-op).
	ErrUnknownSubscription = errors.New("eventbus: unknown subscription")
)
