package engine

import (
	"errors"
	"fmt"
)

// ErrUnauthenticated means no valid acting user could be established.
var ErrUnauthenticated = errors.New("authentication required")

// UnavailableError wraps a store infrastructure failure encountered while
// resolving authorization facts. It is kept distinct from a policy denial
// so callers never report a broken store as forbidden.
type UnavailableError struct {
	Err error
}

func (e UnavailableError) Error() string {
	return fmt.Sprintf("store unavailable: %v", e.Err)
}

func (e UnavailableError) Unwrap() error {
	return e.Err
}
