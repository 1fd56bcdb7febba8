package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"satsalert/internal/eventbus"
	"satsalert/internal/storage"
	"satsalert/internal/transport"
	"satsalert/pkg/logx"
)

type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *Limiter

	store  storage.NotificationStore
	sender transport.Sender
	bus    eventbus.Bus
	log    logx.Logger

	inflight map[chainKey]string

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

func New(cfg Config, store storage.NotificationStore, sender transport.Sender, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		store:    store,
		sender:   sender,
		bus:      bus,
		log:      log.With(logx.String("comp", "dispatch")),
		inflight: map[chainKey]string{},
		sleep:    sleepCtx,
		now:      time.Now,
	}
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
	return s
}

// Apply swaps the configuration. Sends already holding a slot finish under
// the old limiter; new sends use the new one.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyLocked(cfg)
}

func (s *Service) applyLocked(cfg Config) {
	cfg = cfg.withDefaults()
	if s.limiter == nil || cfg.MaxConcurrent != s.cfg.MaxConcurrent || cfg.MinInterval != s.cfg.MinInterval {
		s.limiter = NewLimiter(cfg.MaxConcurrent, cfg.MinInterval)
	}
	s.cfg = cfg
}

func (s *Service) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *Service) snapshot() (Config, *Limiter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg, s.limiter
}

// Acquire takes a send slot from the current limiter. Other components that
// message users (the expiry sweeper) use it to share the rate budget.
func (s *Service) Acquire(ctx context.Context) (func(), error) {
	_, lim := s.snapshot()
	return lim.Acquire(ctx)
}

// CheckAndSend delivers every pending notification and waits for all chains
// to finish.
func (s *Service) CheckAndSend(ctx context.Context) (Report, error) {
	pending, err := s.store.GetPendingNotifications(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("load pending notifications: %w", err)
	}
	rep := Report{Pending: len(pending)}
	if len(pending) == 0 {
		return rep, nil
	}

	cfg, _ := s.snapshot()
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(cfg.MaxConcurrent)
	for _, n := range pending {
		n := n
		g.Go(func() error {
			out := s.Dispatch(ctx, n)
			mu.Lock()
			defer mu.Unlock()
			switch out {
			case OutcomeSent:
				rep.Sent++
			case OutcomeFailed:
				rep.Failed++
			case OutcomeSkipped:
				rep.Skipped++
			case OutcomeCanceled:
				rep.Canceled++
			}
			return nil
		})
	}
	_ = g.Wait()

	if rep.Sent+rep.Failed > 0 || rep.Canceled > 0 {
		s.log.Info("dispatch poll done",
			logx.Int("pending", rep.Pending),
			logx.Int("sent", rep.Sent),
			logx.Int("failed", rep.Failed),
			logx.Int("skipped", rep.Skipped),
			logx.Int("canceled", rep.Canceled),
		)
	}
	return rep, ctx.Err()
}

// Dispatch runs one delivery chain for n. A second call for the same
// notification while the first is still running returns OutcomeSkipped.
func (s *Service) Dispatch(ctx context.Context, n storage.Notification) Outcome {
	cfg, _ := s.snapshot()
	st := newRetryState(n.UserID, n.ID, cfg.MaxRetries, cfg.RetryBase)

	key := chainKey{userID: n.UserID, notificationID: n.ID}
	if !s.track(key, st.chainID) {
		return OutcomeSkipped
	}
	defer s.untrack(key)

	log := s.log.With(
		logx.String("chain_id", st.chainID),
		logx.Int64("notification_id", n.ID),
		logx.Int64("user_id", n.UserID),
	)

	for !st.terminal() {
		err := s.sendOnce(ctx, n)
		if err == nil {
			st.onSuccess()
			break
		}
		// Never sent: the chain stays pending for the next poll.
		if errors.Is(err, errAdmission) || ctx.Err() != nil {
			log.Debug("dispatch canceled", logx.Int("attempt", st.attempt), logx.Err(err))
			return OutcomeCanceled
		}

		delay, retry := st.onFailure(err, s.now())
		if !retry {
			break
		}
		log.Warn("send failed, retrying",
			logx.Int("attempt", st.attempt),
			logx.Duration("delay", delay),
			logx.Err(err),
		)
		s.publish(EventRetry, st, delay)
		if err := s.sleep(ctx, delay); err != nil {
			return OutcomeCanceled
		}
		st.resume()
	}

	// Marking uses a context detached from cancellation: a delivered message
	// must not be sent twice because shutdown raced the update.
	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.SendTimeout)
	defer cancel()

	if st.phase == phaseSent {
		// Delivery is at-least-once: if this mark is lost the row stays
		// pending and the next poll sends it again.
		if _, err := s.store.MarkNotificationSent(markCtx, n.ID); err != nil {
			log.Error("mark sent failed; notification may be delivered again", logx.Err(err))
		}
		log.Debug("notification sent", logx.Int("retries", st.attempt))
		s.publish(EventSent, st, 0)
		return OutcomeSent
	}

	if _, err := s.store.MarkNotificationFailed(markCtx, n.ID); err != nil {
		log.Error("mark failed failed", logx.Err(err))
	}
	log.Error("notification failed", logx.Int("retries", st.attempt), logx.Err(st.lastErr))
	s.publish(EventFailed, st, 0)
	return OutcomeFailed
}

func (s *Service) sendOnce(ctx context.Context, n storage.Notification) error {
	cfg, lim := s.snapshot()
	release, err := lim.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", errAdmission, err)
	}
	defer release()

	sendCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
	defer cancel()
	_, err = s.sender.SendText(sendCtx, transport.ChatTarget{ChatID: n.UserID}, n.Message, nil)
	return err
}

func (s *Service) track(key chainKey, chainID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[key]; busy {
		return false
	}
	s.inflight[key] = chainID
	return true
}

func (s *Service) untrack(key chainKey) {
	s.mu.Lock()
	delete(s.inflight, key)
	s.mu.Unlock()
}

// InFlight reports the number of running delivery chains.
func (s *Service) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}

func (s *Service) publish(typ string, st *retryState, delay time.Duration) {
	if s.bus == nil {
		return
	}
	ev := DeliveryEvent{
		ChainID:        st.chainID,
		NotificationID: st.notificationID,
		UserID:         st.userID,
		Attempt:        st.attempt,
		Delay:          delay,
	}
	if st.lastErr != nil {
		ev.Error = st.lastErr.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: s.now(), Data: ev})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
