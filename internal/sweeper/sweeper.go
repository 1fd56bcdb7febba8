// Package sweeper disables alerts that outlived the retention window and
// tells their owners.
package sweeper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"satsalert/internal/eventbus"
	"satsalert/internal/storage"
	"satsalert/internal/transport"
	"satsalert/pkg/logx"
)

const (
	DefaultRetention = 7 * 24 * time.Hour
	DefaultTimeout   = 10 * time.Second

	EventExpired = "sweeper.expired"
)

// Gate admits one outbound send. The dispatcher's limiter satisfies it.
type Gate interface {
	Acquire(ctx context.Context) (release func(), err error)
}

type Config struct {
	Retention   time.Duration
	SendTimeout time.Duration
}

type Report struct {
	Candidates   int
	Expired      int
	Notified     int
	NoticeErrors int
	StoreErrors  int
}

// ExpiredEvent is the Data of EventExpired.
type ExpiredEvent struct {
	AlertID  int64 `json:"alert_id"`
	UserID   int64 `json:"user_id"`
	Notified bool  `json:"notified"`
}

type Sweeper struct {
	mu  sync.Mutex
	cfg Config

	store  storage.AlertStore
	sender transport.Sender
	gate   Gate
	bus    eventbus.Bus
	log    logx.Logger
}

func New(cfg Config, store storage.AlertStore, sender transport.Sender, gate Gate, log logx.Logger, bus eventbus.Bus) *Sweeper {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Sweeper{
		store:  store,
		sender: sender,
		gate:   gate,
		bus:    bus,
		log:    log.With(logx.String("comp", "sweeper")),
	}
	s.Apply(cfg)
	return s
}

func (s *Sweeper) Apply(cfg Config) {
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultTimeout
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

func (s *Sweeper) config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// ExpiryNotice is the message sent to the owner of an expired alert.
func ExpiryNotice(alertID int64) string {
	return fmt.Sprintf("🔔Your alert %d has expired🔕. You can re-enable it by sending \"/enable %d\" or extend its expiry by sending \"/extend %d <number of days>\". This is normal! By default, all alerts are disabled after 7 days.", alertID, alertID, alertID)
}

// Sweep disables every active alert created before now-retention and sends
// one notice per alert it actually disabled. Each alert is handled on its
// own; a failure never stops the rest.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (Report, error) {
	cfg := s.config()
	cutoff := now.Add(-cfg.Retention)

	alerts, err := s.store.GetExpiredActiveAlerts(ctx, cutoff)
	if err != nil {
		return Report{}, fmt.Errorf("load expired alerts: %w", err)
	}
	rep := Report{Candidates: len(alerts)}

	for _, a := range alerts {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		log := s.log.With(logx.Int64("alert_id", a.ID), logx.Int64("user_id", a.UserID))

		n, err := s.store.SetActive(ctx, a.UserID, a.ID, false)
		if err != nil {
			rep.StoreErrors++
			log.Error("disable expired alert failed", logx.Err(err))
			continue
		}
		if n == 0 {
			// Disabled (or deleted) between the select and the update.
			continue
		}
		rep.Expired++

		notified := true
		if err := s.notify(ctx, cfg, a); err != nil {
			notified = false
			rep.NoticeErrors++
			log.Warn("expiry notice failed", logx.Err(err))
		} else {
			rep.Notified++
		}
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{Type: EventExpired, Time: now, Data: ExpiredEvent{AlertID: a.ID, UserID: a.UserID, Notified: notified}})
		}
	}

	if rep.Candidates > 0 {
		s.log.Info("expiry sweep done",
			logx.Time("cutoff", cutoff),
			logx.Int("expired", rep.Expired),
			logx.Int("notified", rep.Notified),
			logx.Int("notice_errors", rep.NoticeErrors),
			logx.Int("store_errors", rep.StoreErrors),
		)
	}
	return rep, nil
}

func (s *Sweeper) notify(ctx context.Context, cfg Config, a storage.Alert) error {
	if s.sender == nil {
		return fmt.Errorf("no sender")
	}
	if s.gate != nil {
		release, err := s.gate.Acquire(ctx)
		if err != nil {
			return err
		}
		defer release()
	}
	sendCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
	defer cancel()
	_, err := s.sender.SendText(sendCtx, transport.ChatTarget{ChatID: a.UserID}, ExpiryNotice(a.ID), nil)
	return err
}
