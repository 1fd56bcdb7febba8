package config

import (
	"reflect"
	"sort"
	"strings"

	logx "satsalert/pkg/logx"
)

// SummarizeConfigChange returns the changed section names and safe
// structured fields for logging. Secrets (token, DSN) are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 24)

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if strings.TrimSpace(ot.PollTimeout) != strings.TrimSpace(nt.PollTimeout) ||
		ot.AdminChatID != nt.AdminChatID ||
		(ot.Token == "") != (nt.Token == "") {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.String("telegram.poll_timeout", strings.TrimSpace(nt.PollTimeout)),
			logx.Bool("telegram.admin_chat_set", nt.AdminChatID != 0),
			logx.Bool("telegram.token_set", nt.Token != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.chat_enabled", newCfg.Logging.Chat.Enabled),
		)
	}

	ost, nst := oldCfg.Storage, newCfg.Storage
	if strings.TrimSpace(ost.Driver) != strings.TrimSpace(nst.Driver) ||
		strings.TrimSpace(ost.Path) != strings.TrimSpace(nst.Path) ||
		ost.DSN != nst.DSN ||
		strings.TrimSpace(ost.BusyTimeout) != strings.TrimSpace(nst.BusyTimeout) ||
		ost.MaxOpenConns != nst.MaxOpenConns {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nst.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(nst.Path) != ""),
			logx.Bool("storage.dsn_set", nst.DSN != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Dispatcher, newCfg.Dispatcher) {
		changed = append(changed, "dispatcher")
		nd := newCfg.Dispatcher
		retries := -1
		if nd.MaxRetries != nil {
			retries = *nd.MaxRetries
		}
		attrs = append(attrs,
			logx.Int("dispatcher.max_concurrent", nd.MaxConcurrent),
			logx.String("dispatcher.min_interval", nd.MinInterval),
			logx.String("dispatcher.retry_base", nd.RetryBase),
			logx.Int("dispatcher.max_retries", retries),
		)
	}

	if oldCfg.Poll != newCfg.Poll {
		changed = append(changed, "poll")
		attrs = append(attrs, logx.String("poll.interval", newCfg.Poll.Interval))
	}
	if oldCfg.Sweeper != newCfg.Sweeper {
		changed = append(changed, "sweeper")
		attrs = append(attrs,
			logx.String("sweeper.schedule", newCfg.Sweeper.Schedule),
			logx.String("sweeper.retention", newCfg.Sweeper.Retention),
		)
	}
	if oldCfg.Conversation != newCfg.Conversation {
		changed = append(changed, "conversation")
		attrs = append(attrs, logx.String("conversation.idle_timeout", newCfg.Conversation.IdleTimeout))
	}
	if strings.TrimSpace(oldCfg.Scheduler.Timezone) != strings.TrimSpace(newCfg.Scheduler.Timezone) {
		changed = append(changed, "scheduler")
		attrs = append(attrs, logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)))
	}

	sort.Strings(changed)
	return changed, attrs
}
