package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel kinds for rate limiter errors.
var (
	// ErrAccessDenied is returned when a caller exhausted its allowance for the window.
	ErrAccessDenied = errors.New("access denied: rate limit exceeded")
	ErrInvalidLimit = errors.New("invalid rate limit")
)

// DeniedError carries the details of a denial. It matches ErrAccessDenied.
type DeniedError struct {
	UserID        string
	ResourceClass string
	Limit         int
	RetryAfter    time.Duration
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("%s: user %q exhausted %d %q calls, retry in %s",
		ErrAccessDenied, e.UserID, e.Limit, e.ResourceClass, e.RetryAfter)
}

// Is reports ErrAccessDenied as the kind of this error.
func (e *DeniedError) Is(target error) bool {
	return target == ErrAccessDenied
}

// IsDenied reports whether err is a rate limit denial.
func IsDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}
