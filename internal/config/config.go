// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() initializer to build a Config with defaults.
// - Load layers a YAML file and WATCHTOWER_ environment variables on top.
// - Validation errors wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"runtime"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the in-memory run request queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of run workers.
	WorkerCount int `koanf:"worker_count"`

	// SchedulerInterval is how often due trackers are enqueued.
	SchedulerInterval time.Duration `koanf:"scheduler_interval"`

	// RunTimeout bounds a single tracker run, fetch included.
	RunTimeout time.Duration `koanf:"run_timeout"`
	// StaleRunAfter is the age at which a pending run is failed by the
	// scheduler. Zero derives it from RunTimeout.
	StaleRunAfter time.Duration `koanf:"stale_run_after"`

	// FetchTimeout bounds each outbound HTTP request.
	FetchTimeout time.Duration `koanf:"fetch_timeout"`

	// ErrorThreshold moves a tracker to the error state after this many
	// consecutive failed runs. Zero disables escalation.
	ErrorThreshold int `koanf:"error_threshold"`

	// RateLimitLimit and RateLimitWindow configure the manual run and compare limiter.
	RateLimitLimit  int           `koanf:"ratelimit_limit"`
	RateLimitWindow time.Duration `koanf:"ratelimit_window"`

	// NotifyLimit and NotifyWindow configure the per-owner notification limiter.
	NotifyLimit  int           `koanf:"notify_limit"`
	NotifyWindow time.Duration `koanf:"notify_window"`

	// Default quiet hours, "HH:MM" in QuietHoursTZ. Empty disables.
	QuietHoursStart string `koanf:"quiet_hours_start"`
	QuietHoursEnd   string `koanf:"quiet_hours_end"`
	QuietHoursTZ    string `koanf:"quiet_hours_tz"`

	// DatabaseURL selects the Postgres store when set.
	DatabaseURL string `koanf:"database_url"`

	// TrackersFile seeds the memory store from YAML.
	TrackersFile string `koanf:"trackers_file"`

	// Gemini settings for ai analysis.
	GeminiAPIKey string `koanf:"gemini_api_key"`
	GeminiModel  string `koanf:"gemini_model"`

	// Email notification settings.
	EmailEnabled bool   `koanf:"email_enabled"`
	EmailFrom    string `koanf:"email_from"`
	EmailTo      string `koanf:"email_to"`
	SMTPHost     string `koanf:"smtp_host"`
	SMTPPort     int    `koanf:"smtp_port"`
	SMTPUsername string `koanf:"smtp_username"`
	SMTPPassword string `koanf:"smtp_password"`

	// Polymarket API base URLs.
	PolymarketGammaURL string `koanf:"polymarket_gamma_url"`
	PolymarketCLOBURL  string `koanf:"polymarket_clob_url"`

	// GoogleNewsURL is the RSS search endpoint.
	GoogleNewsURL string `koanf:"google_news_url"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		LogFormat:          "text",
		Addr:               ":9080",
		QueueSize:          1_024,
		WorkerCount:        runtime.NumCPU() * 2,
		SchedulerInterval:  30 * time.Second,
		RunTimeout:         2 * time.Minute,
		FetchTimeout:       20 * time.Second,
		ErrorThreshold:     5,
		RateLimitLimit:     10,
		RateLimitWindow:    time.Minute,
		NotifyLimit:        20,
		NotifyWindow:       time.Hour,
		QuietHoursTZ:       "UTC",
		GeminiModel:        "gemini-2.5-flash",
		SMTPPort:           587,
		PolymarketGammaURL: "https://gamma-api.polymarket.com",
		PolymarketCLOBURL:  "https://clob.polymarket.com",
		GoogleNewsURL:      "https://news.google.com/rss/search",
	}
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.QueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.WorkerCount <= 0:
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	case c.SchedulerInterval <= 0:
		return fmt.Errorf("%w: scheduler_interval must be positive", ErrInvalidConfig)
	case c.RunTimeout <= 0:
		return fmt.Errorf("%w: run_timeout must be positive", ErrInvalidConfig)
	case c.StaleRunAfter < 0:
		return fmt.Errorf("%w: stale_run_after must not be negative", ErrInvalidConfig)
	case c.RateLimitLimit <= 0 || c.RateLimitWindow <= 0:
		return fmt.Errorf("%w: ratelimit_limit and ratelimit_window must be positive", ErrInvalidConfig)
	case c.NotifyLimit <= 0 || c.NotifyWindow <= 0:
		return fmt.Errorf("%w: notify_limit and notify_window must be positive", ErrInvalidConfig)
	case c.ErrorThreshold < 0:
		return fmt.Errorf("%w: error_threshold must not be negative", ErrInvalidConfig)
	case (c.QuietHoursStart == "") != (c.QuietHoursEnd == ""):
		return fmt.Errorf("%w: quiet_hours_start and quiet_hours_end must be set together", ErrInvalidConfig)
	case c.EmailEnabled && (c.SMTPHost == "" || c.EmailFrom == "" || c.EmailTo == ""):
		return fmt.Errorf("%w: email_enabled requires smtp_host, email_from and email_to", ErrInvalidConfig)
	}
	if _, err := time.LoadLocation(c.QuietHoursTZ); err != nil {
		return fmt.Errorf("%w: quiet_hours_tz: %w", ErrInvalidConfig, err)
	}
	return nil
}
