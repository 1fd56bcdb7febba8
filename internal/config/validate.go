package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validate checks every duration field and enumerated value. It does not
// require a bot token; the app checks that at startup.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	durations := []struct{ path, raw string }{
		{"telegram.poll_timeout", cfg.Telegram.PollTimeout},
		{"storage.busy_timeout", cfg.Storage.BusyTimeout},
		{"dispatcher.min_interval", cfg.Dispatcher.MinInterval},
		{"dispatcher.retry_base", cfg.Dispatcher.RetryBase},
		{"dispatcher.send_timeout", cfg.Dispatcher.SendTimeout},
		{"poll.timeout", cfg.Poll.Timeout},
		{"sweeper.retention", cfg.Sweeper.Retention},
		{"sweeper.timeout", cfg.Sweeper.Timeout},
		{"conversation.idle_timeout", cfg.Conversation.IdleTimeout},
		{"conversation.turn_timeout", cfg.Conversation.TurnTimeout},
	}
	var errs []error
	for _, d := range durations {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			errs = append(errs, err)
		}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "sqlite", "sqlite3", "postgres", "postgresql":
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unsupported driver %q", cfg.Storage.Driver))
	}
	if cfg.Dispatcher.MaxConcurrent < 0 {
		errs = append(errs, errors.New("dispatcher.max_concurrent: must be >= 0"))
	}
	if cfg.Dispatcher.MaxRetries != nil && *cfg.Dispatcher.MaxRetries < 0 {
		errs = append(errs, errors.New("dispatcher.max_retries: must be >= 0"))
	}
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.timezone: %w", err))
		}
	}
	return errors.Join(errs...)
}
