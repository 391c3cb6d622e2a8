package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound      = errors.New("not found")
	ErrRunPending    = errors.New("tracker already has a pending run")
	ErrRunNotPending = errors.New("run is not pending")
	ErrInvalidLimit  = errors.New("invalid limit")
	ErrRunAbandoned  = errors.New("run abandoned while pending")
	ErrInvalidSeed   = errors.New("invalid tracker seed")
)
