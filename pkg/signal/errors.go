package signal

import "errors"

var (
	// ErrInvalidArgument is returned when a nil or otherwise unusable callback
	// or option value is supplied.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrDuplicateListener is returned when the callback/receiver pair is
	// already registered.
	ErrDuplicateListener = errors.New("listener already registered")
	// ErrListenerNotFound is returned when removing a callback/receiver pair
	// that is not registered.
	ErrListenerNotFound = errors.New("listener not found")
	// ErrDispatchLimitExceeded is returned by Dispatch when the loop guard trips.
	ErrDispatchLimitExceeded = errors.New("dispatch limit exceeded")
)
