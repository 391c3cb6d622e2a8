package worker

import (
	"github.com/okian/watchtower/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithExpectedErrors lists errors that are part of normal operation, such as
// a run already pending. They are logged at debug level and not counted as
// worker errors.
func WithExpectedErrors(errs ...error) Option {
	return func(w *InMemoryWorker) {
		w.expected = append(w.expected, errs...)
	}
}
