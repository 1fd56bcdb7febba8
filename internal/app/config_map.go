package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"satsalert/internal/config"
	"satsalert/internal/dispatch"
	"satsalert/internal/storage"
	"satsalert/internal/sweeper"
	"satsalert/internal/task/scheduler"
	"satsalert/pkg/logx"
)

const (
	defaultPollInterval   = "60s"
	defaultPollTimeout    = 5 * time.Minute
	defaultSweepSchedule  = "0 17 * * *"
	defaultSweepTimeout   = 10 * time.Minute
	defaultCurrencyFile   = "./data/currency.json"
	defaultQuotesFile     = "./data/quotes.json"
	defaultTelegramPollTO = 10 * time.Second
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:    cfg.Logging.Chat.Enabled && cfg.Telegram.AdminChatID != 0,
			ChatID:     cfg.Telegram.AdminChatID,
			MinLevel:   cfg.Logging.Chat.MinLevel,
			RatePerSec: cfg.Logging.Chat.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	busy, err := config.ParseDurationField("storage.busy_timeout", sc.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if (driver == "postgres" || driver == "postgresql") && strings.TrimSpace(sc.DSN) == "" {
		return storage.Config{}, fmt.Errorf("storage.dsn is required when storage.driver=%s (or set %s)", driver, config.EnvStorageDSN)
	}
	return storage.Config{
		Driver:       driver,
		Path:         strings.TrimSpace(sc.Path),
		DSN:          strings.TrimSpace(sc.DSN),
		BusyTimeout:  busy,
		MaxOpenConns: sc.MaxOpenConns,
	}, nil
}

func mapDispatchConfig(cfg *config.Config) (dispatch.Config, error) {
	dc := cfg.Dispatcher
	var errs []error
	dur := func(path, raw string, def time.Duration) time.Duration {
		d, err := config.ParseDurationOrDefault(path, raw, def)
		errs = append(errs, err)
		return d
	}
	out := dispatch.Config{
		MaxConcurrent: dc.MaxConcurrent,
		MinInterval:   dur("dispatcher.min_interval", dc.MinInterval, dispatch.DefaultMinInterval),
		RetryBase:     dur("dispatcher.retry_base", dc.RetryBase, dispatch.DefaultRetryBase),
		MaxRetries:    dispatch.DefaultMaxRetries,
		SendTimeout:   dur("dispatcher.send_timeout", dc.SendTimeout, dispatch.DefaultSendTimeout),
	}
	if dc.MaxRetries != nil {
		out.MaxRetries = *dc.MaxRetries
	}
	return out, errors.Join(errs...)
}

func mapSweeperConfig(cfg *config.Config, sendTimeout time.Duration) (sweeper.Config, error) {
	ret, err := config.ParseDurationOrDefault("sweeper.retention", cfg.Sweeper.Retention, sweeper.DefaultRetention)
	if err != nil {
		return sweeper.Config{}, err
	}
	return sweeper.Config{Retention: ret, SendTimeout: sendTimeout}, nil
}

// jobSpec is one scheduled job as configured.
type jobSpec struct {
	schedule string
	timeout  time.Duration
}

func mapPollJob(cfg *config.Config) (jobSpec, error) {
	sched := strings.TrimSpace(cfg.Poll.Interval)
	if sched == "" {
		sched = defaultPollInterval
	}
	if _, err := scheduler.ParseSchedule(sched); err != nil {
		return jobSpec{}, fmt.Errorf("poll.interval: %w", err)
	}
	to, err := config.ParseDurationOrDefault("poll.timeout", cfg.Poll.Timeout, defaultPollTimeout)
	if err != nil {
		return jobSpec{}, err
	}
	return jobSpec{schedule: sched, timeout: to}, nil
}

func mapSweepJob(cfg *config.Config) (jobSpec, error) {
	sched := strings.TrimSpace(cfg.Sweeper.Schedule)
	if sched == "" {
		sched = defaultSweepSchedule
	}
	if _, err := scheduler.ParseSchedule(sched); err != nil {
		return jobSpec{}, fmt.Errorf("sweeper.schedule: %w", err)
	}
	to, err := config.ParseDurationOrDefault("sweeper.timeout", cfg.Sweeper.Timeout, defaultSweepTimeout)
	if err != nil {
		return jobSpec{}, err
	}
	return jobSpec{schedule: sched, timeout: to}, nil
}

type conversationSettings struct {
	idle         time.Duration
	turn         time.Duration
	currencyFile string
	quotesFile   string
}

func mapConversation(cfg *config.Config) (conversationSettings, error) {
	cc := cfg.Conversation
	idle, err := config.ParseDurationOrDefault("conversation.idle_timeout", cc.IdleTimeout, 10*time.Minute)
	if err != nil {
		return conversationSettings{}, err
	}
	turn, err := config.ParseDurationOrDefault("conversation.turn_timeout", cc.TurnTimeout, 15*time.Second)
	if err != nil {
		return conversationSettings{}, err
	}
	out := conversationSettings{
		idle:         idle,
		turn:         turn,
		currencyFile: strings.TrimSpace(cc.CurrencyFile),
		quotesFile:   strings.TrimSpace(cc.QuotesFile),
	}
	if out.currencyFile == "" {
		out.currencyFile = defaultCurrencyFile
	}
	if out.quotesFile == "" {
		out.quotesFile = defaultQuotesFile
	}
	return out, nil
}

// validate rejects configs the components could not apply. It runs on
// every hot reload before the new config is committed.
func validate(cfg *config.Config) error {
	_, e1 := mapStorageConfig(cfg)
	_, e2 := mapDispatchConfig(cfg)
	_, e3 := mapSweeperConfig(cfg, 0)
	_, e4 := mapPollJob(cfg)
	_, e5 := mapSweepJob(cfg)
	_, e6 := mapConversation(cfg)
	return errors.Join(e1, e2, e3, e4, e5, e6)
}
