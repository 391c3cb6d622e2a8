package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/okian/watchtower/internal/domain/model"
	"github.com/okian/watchtower/internal/domain/ratelimit"
	"github.com/okian/watchtower/pkg/logger"
)

// Suppression reasons recorded on a run.
const (
	SuppressedDisabled     = "disabled"
	SuppressedNotTriggered = "not_triggered"
	SuppressedQuietHours   = "quiet_hours"
	SuppressedRateLimited  = "rate_limited"
)

// NotifyResource is the rate limiter resource class for notifications.
const NotifyResource = "notify"

// Gate decides whether a triggered result may be dispatched.
type Gate struct {
	limiter    ratelimit.Limiter
	quietHours *model.QuietHours
	logger     logger.Logger
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithDefaultQuietHours applies qh to trackers that do not set their own.
func WithDefaultQuietHours(qh *model.QuietHours) GateOption {
	return func(g *Gate) {
		if qh != nil && qh.Start != "" && qh.End != "" {
			g.quietHours = qh
		}
	}
}

// WithGateLogger sets the gate logger.
func WithGateLogger(l logger.Logger) GateOption {
	return func(g *Gate) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGate creates a gate. A nil limiter never rate limits.
func NewGate(limiter ratelimit.Limiter, opts ...GateOption) *Gate {
	g := &Gate{limiter: limiter, logger: logger.Get().Named("gate")}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Decide returns whether to dispatch, or the suppression reason. Checks run
// in order: disabled, not triggered, quiet hours, rate limit. The limiter is
// only consumed when every other check passes.
func (g *Gate) Decide(ctx context.Context, t model.Tracker, triggered bool, now time.Time) (bool, string) {
	if !t.Notification.Enabled {
		return false, SuppressedDisabled
	}
	if !triggered {
		return false, SuppressedNotTriggered
	}

	qh := t.Notification.QuietHours
	if qh == nil {
		qh = g.quietHours
	}
	if qh != nil {
		quiet, err := InQuietHours(*qh, now)
		if err != nil {
			g.logger.Warn(ctx, "ignoring invalid quiet hours",
				logger.String("tracker_id", t.ID), logger.Error(err))
		} else if quiet {
			return false, SuppressedQuietHours
		}
	}

	if g.limiter != nil {
		owner := model.UserClaims{UserID: t.OwnerID, Role: model.RoleUser}
		if err := g.limiter.Consume(ctx, owner, NotifyResource); err != nil {
			if !ratelimit.IsDenied(err) {
				g.logger.Error(ctx, "notify limiter failed", logger.String("tracker_id", t.ID), logger.Error(err))
			}
			return false, SuppressedRateLimited
		}
	}
	return true, ""
}

// InQuietHours reports whether now falls in [Start, End) in the window's
// location. A window whose end precedes its start wraps midnight; equal
// bounds describe an empty window.
func InQuietHours(qh model.QuietHours, now time.Time) (bool, error) {
	start, err := parseClock(qh.Start)
	if err != nil {
		return false, fmt.Errorf("quiet hours start: %w", err)
	}
	end, err := parseClock(qh.End)
	if err != nil {
		return false, fmt.Errorf("quiet hours end: %w", err)
	}
	loc := time.UTC
	if qh.Location != "" {
		if loc, err = time.LoadLocation(qh.Location); err != nil {
			return false, fmt.Errorf("quiet hours location: %w", err)
		}
	}

	local := now.In(loc)
	m := local.Hour()*60 + local.Minute()
	switch {
	case start == end:
		return false, nil
	case start < end:
		return m >= start && m < end, nil
	default:
		return m >= start || m < end, nil
	}
}

// parseClock parses "HH:MM" into minutes after midnight.
func parseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("%q is not HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%q has an invalid hour", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("%q has an invalid minute", s)
	}
	return h*60 + m, nil
}
