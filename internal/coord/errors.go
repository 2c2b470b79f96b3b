package coord

import (
	"errors"
	"net"
	"syscall"
)

var (
	// ErrBackendUnavailable marks a connection-class failure of the shared backend.
	ErrBackendUnavailable = errors.New("coordination backend unavailable")
	// ErrSessionNotFound is returned when no record exists for a session.
	ErrSessionNotFound = errors.New("session not found")
)

// IsConnectionError reports whether err means the backend cannot be reached.
// Only these errors switch a Store to memory mode; everything else is
// returned to the caller.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrBackendUnavailable) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
