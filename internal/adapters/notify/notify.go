/*
Package notify delivers tracker analysis results to their owners.
*/
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/watchtower/internal/domain/model"
	"github.com/okian/watchtower/pkg/logger"
)

var (
	ErrUnknownChannel = errors.New("unknown notification channel")
	ErrNoRecipient    = errors.New("notification has no recipient")
)

// Message is one notification about a run.
type Message struct {
	TrackerID string
	RunID     string
	Recipient string
	Target    string
	Timestamp time.Time
	Result    model.AnalysisResult
	Events    []model.ChangeEvent
}

// Notifier sends a message on one channel.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Router picks a notifier by the tracker's channel name.
type Router struct {
	channels map[string]Notifier
	fallback string
}

// NewRouter creates a router; fallback names the channel used when a tracker
// does not set one.
func NewRouter(fallback string, channels map[string]Notifier) *Router {
	c := make(map[string]Notifier, len(channels))
	for name, n := range channels {
		if n != nil {
			c[name] = n
		}
	}
	return &Router{channels: c, fallback: fallback}
}

// Send routes msg to the notifier for channel.
func (r *Router) Send(ctx context.Context, channel string, msg Message) error {
	if channel == "" {
		channel = r.fallback
	}
	n, ok := r.channels[channel]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
	}
	return n.Notify(ctx, msg)
}

// LogNotifier writes notifications to the structured log.
type LogNotifier struct {
	log logger.Logger
}

// NewLogNotifier creates a notifier that logs at info level.
func NewLogNotifier(l logger.Logger) *LogNotifier {
	if l == nil {
		l = logger.Get().Named("notify")
	}
	return &LogNotifier{log: l}
}

func (n *LogNotifier) Notify(ctx context.Context, msg Message) error {
	n.log.Info(ctx, "tracker notification",
		logger.String("tracker_id", msg.TrackerID),
		logger.String("run_id", msg.RunID),
		logger.String("recipient", msg.Recipient),
		logger.Bool("triggered", msg.Result.Triggered),
		logger.String("summary", msg.Result.Summary),
		logger.Int("events", len(msg.Events)))
	return nil
}
