package service

import (
	"errors"

	"github.com/okian/watchtower/internal/domain/model"
)

var (
	// ErrTrackerNotActive is returned when a run is requested for a paused or
	// errored tracker.
	ErrTrackerNotActive = model.ErrTrackerNotActive
	// ErrFetch wraps target fetch failures recorded on a failed run.
	ErrFetch = errors.New("fetch failed")
	// ErrNotStarted is returned by operations that need the worker pool.
	ErrNotStarted = errors.New("service not started")
)
