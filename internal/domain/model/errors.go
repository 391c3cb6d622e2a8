package model

import "errors"

// Sentinel kinds for model errors.
var (
	ErrInvalidTransition = errors.New("invalid run status transition")
	ErrUnknownTarget     = errors.New("unknown target type")
	ErrUnknownAnalysis   = errors.New("unknown analysis type")
	ErrTrackerNotActive  = errors.New("tracker not active")
)
