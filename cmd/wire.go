package main

import (
	"context"
	"time"

	"github.com/okian/watchtower/internal/adapters/ai"
	"github.com/okian/watchtower/internal/adapters/notify"
	"github.com/okian/watchtower/internal/adapters/repository"
	app "github.com/okian/watchtower/internal/app"
	"github.com/okian/watchtower/internal/config"
	"github.com/okian/watchtower/internal/domain/analysis"
	"github.com/okian/watchtower/internal/domain/model"
	"github.com/okian/watchtower/internal/domain/ratelimit"
	"github.com/okian/watchtower/pkg/logger"
)

// buildStore opens Postgres when configured, otherwise an in-memory store.
// The trackers file seeds either store.
func buildStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	log := logger.Get().Named("store")

	var store repository.Store
	if cfg.DatabaseURL != "" {
		pg, err := repository.NewPostgresStore(ctx, cfg.DatabaseURL, repository.WithPostgresLogger(log))
		if err != nil {
			return nil, err
		}
		store = pg
		log.Info(ctx, "using postgres store")
	} else {
		store = repository.NewMemoryStore()
		log.Info(ctx, "using memory store")
	}

	if cfg.TrackersFile == "" {
		return store, nil
	}
	trackers, err := repository.LoadTrackersFile(cfg.TrackersFile, time.Now())
	if err != nil {
		store.Close()
		return nil, err
	}
	if err := repository.Seed(ctx, store, trackers); err != nil {
		store.Close()
		return nil, err
	}
	log.Info(ctx, "seeded trackers", logger.String("file", cfg.TrackersFile), logger.Int("count", len(trackers)))
	return store, nil
}

// buildAnalyzer registers the computational analyzer and, when an API key is
// set, the Gemini analyzer.
func buildAnalyzer(ctx context.Context, cfg *config.Config) (*analysis.Dispatcher, error) {
	opts := []analysis.Option{analysis.WithComputational(analysis.NewComputational())}
	if cfg.GeminiAPIKey != "" {
		gemini, err := ai.NewGeminiAnalyzer(ctx, cfg.GeminiAPIKey, ai.WithDefaultModel(cfg.GeminiModel))
		if err != nil {
			return nil, err
		}
		opts = append(opts, analysis.WithAI(gemini))
	} else {
		logger.Get().Named("analysis").Info(ctx, "gemini_api_key not set; ai trackers will fail")
	}
	return analysis.NewDispatcher(opts...), nil
}

// buildLimiters returns the notification limiter and the API limiter.
func buildLimiters(cfg *config.Config) (*ratelimit.FixedWindow, *ratelimit.FixedWindow, error) {
	notifyLimiter, err := ratelimit.NewFixedWindow(cfg.NotifyLimit, cfg.NotifyWindow,
		ratelimit.WithLogger(logger.Get().Named("notify-limit")))
	if err != nil {
		return nil, nil, err
	}
	apiLimiter, err := ratelimit.NewFixedWindow(cfg.RateLimitLimit, cfg.RateLimitWindow,
		ratelimit.WithLogger(logger.Get().Named("api-limit")))
	if err != nil {
		return nil, nil, err
	}
	return notifyLimiter, apiLimiter, nil
}

// buildNotifier always offers the log channel; email is added when enabled
// and becomes the default channel.
func buildNotifier(cfg *config.Config) *notify.Router {
	channels := map[string]notify.Notifier{"log": notify.NewLogNotifier(nil)}
	fallback := "log"
	if cfg.EmailEnabled {
		channels["email"] = notify.NewEmailNotifier(notify.EmailConfig{
			SMTPServer: cfg.SMTPHost,
			SMTPPort:   cfg.SMTPPort,
			SMTPUser:   cfg.SMTPUsername,
			SMTPPass:   cfg.SMTPPassword,
			FromEmail:  cfg.EmailFrom,
			ToEmail:    cfg.EmailTo,
		})
		fallback = "email"
	}
	return notify.NewRouter(fallback, channels)
}

func buildGate(cfg *config.Config, limiter ratelimit.Limiter) *app.Gate {
	var qh *model.QuietHours
	if cfg.QuietHoursStart != "" && cfg.QuietHoursEnd != "" {
		qh = &model.QuietHours{Start: cfg.QuietHoursStart, End: cfg.QuietHoursEnd, Location: cfg.QuietHoursTZ}
	}
	return app.NewGate(limiter,
		app.WithDefaultQuietHours(qh),
		app.WithGateLogger(logger.Get().Named("gate")))
}
