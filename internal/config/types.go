package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings (e.g. "50ms", "10s", "24h").
// Omitted fields fall back to the defaults of the component that reads them.
type Config struct {
	Telegram     TelegramConfig     `json:"telegram"`
	Logging      LoggingConfig      `json:"logging"`
	Storage      StorageConfig      `json:"storage"`
	Dispatcher   DispatcherConfig   `json:"dispatcher"`
	Poll         PollConfig         `json:"poll"`
	Sweeper      SweeperConfig      `json:"sweeper"`
	Conversation ConversationConfig `json:"conversation"`
	Scheduler    SchedulerConfig    `json:"scheduler"`
}

type TelegramConfig struct {
	// Token may be left empty and supplied through SATSALERT_TELEGRAM_TOKEN.
	Token string `json:"token"`
	// PollTimeout is the long-poll timeout (default "10s").
	PollTimeout string `json:"poll_timeout"`
	// AdminChatID receives mirrored warnings when logging.chat is enabled.
	AdminChatID int64 `json:"admin_chat_id,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Chat    LoggingChat `json:"chat"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingChat struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig selects the alert database.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/alerts.db" }
//	"storage": { "driver": "postgres", "dsn": "postgres://bot@localhost/satsalert?sslmode=disable" }
type StorageConfig struct {
	Driver       string `json:"driver"`
	Path         string `json:"path,omitempty"`
	DSN          string `json:"dsn,omitempty"` // may hold credentials (do not log)
	BusyTimeout  string `json:"busy_timeout,omitempty"`
	MaxOpenConns int    `json:"max_open_conns,omitempty"`
}

// DispatcherConfig controls notification delivery.
//
// Defaults:
//   - max_concurrent: 1000
//   - min_interval: "50ms"
//   - retry_base: "200ms"
//   - max_retries: 3 (pointer so an explicit 0 disables retries)
//   - send_timeout: "10s"
type DispatcherConfig struct {
	MaxConcurrent int    `json:"max_concurrent,omitempty"`
	MinInterval   string `json:"min_interval,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	MaxRetries    *int   `json:"max_retries,omitempty"`
	SendTimeout   string `json:"send_timeout,omitempty"`
}

// PollConfig drives the pending-notification poll. Interval accepts anything
// the scheduler understands ("60s", "@every 1m", "*/30 * * * * *").
type PollConfig struct {
	Interval string `json:"interval,omitempty"`
	Timeout  string `json:"timeout,omitempty"`
}

type SweeperConfig struct {
	Schedule  string `json:"schedule,omitempty"`  // default "0 17 * * *"
	Retention string `json:"retention,omitempty"` // default "168h"
	Timeout   string `json:"timeout,omitempty"`
}

type ConversationConfig struct {
	IdleTimeout  string `json:"idle_timeout,omitempty"` // default "10m"
	TurnTimeout  string `json:"turn_timeout,omitempty"` // default "15s"
	CurrencyFile string `json:"currency_file,omitempty"`
	QuotesFile   string `json:"quotes_file,omitempty"`
}

type SchedulerConfig struct {
	Timezone string `json:"timezone,omitempty"`
}
