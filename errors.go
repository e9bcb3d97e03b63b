package rescache

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("rescache: client is closed")

	// ErrNoBackend is returned when no backend is reachable and fallback is
	// disabled, so no degraded answer exists.
	ErrNoBackend = errors.New("rescache: no backend available and fallback disabled")
)

// OpError wraps a backend transport failure that could not be absorbed by
// the fallback store (fallback disabled). Op is the public operation name.
type OpError struct {
	Op   string
	Mode Mode
	Err  error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("rescache: %s failed in %s mode: %v", e.Op, e.Mode, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// ConnectError reports that the configured backend could not be reached
// within the retry budget while fallback was disabled.
type ConnectError struct {
	Mode     Mode // the mode that was being established
	Attempts int
	Err      error // last ping error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("rescache: %s backend unreachable after %d attempts: %v", e.Mode, e.Attempts, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }
