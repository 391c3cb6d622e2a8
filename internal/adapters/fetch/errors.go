package fetch

import (
	"errors"
	"fmt"
)

// Sentinel kinds for fetch errors.
var (
	ErrUnsupportedTarget = errors.New("unsupported target")
	ErrUpstreamStatus    = errors.New("unexpected upstream status")
	ErrDecode            = errors.New("decode upstream response")
)

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %d", e.URL, e.StatusCode)
}

// Is matches ErrUpstreamStatus.
func (e *StatusError) Is(target error) bool {
	return target == ErrUpstreamStatus
}
