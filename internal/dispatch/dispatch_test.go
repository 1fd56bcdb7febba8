package dispatch

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"satsalert/internal/eventbus"
	"satsalert/internal/storage"
	"satsalert/internal/transport"
	"satsalert/pkg/logx"
)

type scriptedSender struct {
	mu    sync.Mutex
	fail  int // number of leading sends that fail; <0 fails forever
	sends []transport.ChatTarget
	texts []string
}

func (s *scriptedSender) SendText(_ context.Context, to transport.ChatTarget, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends = append(s.sends, to)
	s.texts = append(s.texts, text)
	if s.fail < 0 || len(s.sends) <= s.fail {
		return transport.MessageRef{}, errors.New("telegram: bad gateway")
	}
	return transport.MessageRef{ChatID: to.ChatID, MessageID: len(s.sends)}, nil
}

func (s *scriptedSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sends)
}

func openStore(t *testing.T) storage.Store {
	t.Helper()
	st, err := storage.Open(context.Background(), storage.Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "alerts.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newTestService(t *testing.T, st storage.Store, sender transport.Sender, bus eventbus.Bus) (*Service, *[]time.Duration) {
	t.Helper()
	svc := New(Config{MinInterval: time.Nanosecond, MaxRetries: DefaultMaxRetries}, st, sender, logx.Nop(), bus)
	var delays []time.Duration
	svc.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return ctx.Err()
	}
	return svc, &delays
}

func TestRetryStateDelaysDouble(t *testing.T) {
	st := newRetryState(1, 1, 3, 200*time.Millisecond)
	now := time.Unix(0, 0)
	want := []time.Duration{200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond}
	for i, w := range want {
		d, retry := st.onFailure(errors.New("x"), now)
		if !retry || d != w {
			t.Fatalf("retry %d: got (%v, %v), want (%v, true)", i, d, retry, w)
		}
		if st.phase != phaseBackoff || !st.nextAt.Equal(now.Add(w)) {
			t.Fatalf("retry %d: phase=%v nextAt=%v", i, st.phase, st.nextAt)
		}
		st.resume()
	}
	if _, retry := st.onFailure(errors.New("x"), now); retry {
		t.Fatalf("expected chain to be exhausted")
	}
	if st.phase != phaseFailed {
		t.Fatalf("phase = %v, want failed", st.phase)
	}
}

func TestDispatchSuccessMarksSent(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	id, _, err := st.EnqueueNotification(ctx, 42, "order-1", "new order")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	sender := &scriptedSender{}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	svc, delays := newTestService(t, st, sender, bus)
	rep, err := svc.CheckAndSend(ctx)
	if err != nil {
		t.Fatalf("CheckAndSend: %v", err)
	}
	if rep.Pending != 1 || rep.Sent != 1 {
		t.Fatalf("report = %+v", rep)
	}
	if len(*delays) != 0 {
		t.Fatalf("unexpected backoff: %v", *delays)
	}
	if sender.sends[0].ChatID != 42 || sender.texts[0] != "new order" {
		t.Fatalf("sent %+v %q", sender.sends[0], sender.texts[0])
	}
	n, err := st.GetNotification(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if n.Status != storage.NotificationSent {
		t.Fatalf("status = %v, want sent", n.Status)
	}
	select {
	case ev := <-events:
		if ev.Type != EventSent {
			t.Fatalf("event = %s", ev.Type)
		}
	default:
		t.Fatalf("no event published")
	}
}

func TestDispatchRetriesThenFails(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	id, _, err := st.EnqueueNotification(ctx, 7, "order-9", "hello")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	sender := &scriptedSender{fail: -1}
	svc, delays := newTestService(t, st, sender, nil)

	n, err := st.GetNotification(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if out := svc.Dispatch(ctx, n); out != OutcomeFailed {
		t.Fatalf("outcome = %v, want failed", out)
	}
	if got := sender.count(); got != 4 {
		t.Fatalf("sends = %d, want 4", got)
	}
	want := []time.Duration{200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond}
	if len(*delays) != len(want) {
		t.Fatalf("delays = %v", *delays)
	}
	for i := range want {
		if (*delays)[i] != want[i] {
			t.Fatalf("delays = %v, want %v", *delays, want)
		}
	}
	n, _ = st.GetNotification(ctx, id)
	if n.Status != storage.NotificationFailed {
		t.Fatalf("status = %v, want failed", n.Status)
	}

	// A failed notification is no longer pending.
	rep, err := svc.CheckAndSend(ctx)
	if err != nil {
		t.Fatalf("CheckAndSend: %v", err)
	}
	if rep.Pending != 0 || sender.count() != 4 {
		t.Fatalf("resent after failure: report=%+v sends=%d", rep, sender.count())
	}
}

func TestDispatchRecoversAfterTransientFailure(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	id, _, _ := st.EnqueueNotification(ctx, 7, "o", "m")
	sender := &scriptedSender{fail: 2}
	svc, delays := newTestService(t, st, sender, nil)

	n, _ := st.GetNotification(ctx, id)
	if out := svc.Dispatch(ctx, n); out != OutcomeSent {
		t.Fatalf("outcome = %v", out)
	}
	if sender.count() != 3 || len(*delays) != 2 {
		t.Fatalf("sends=%d delays=%v", sender.count(), *delays)
	}
}

func TestDispatchZeroRetries(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	id, _, _ := st.EnqueueNotification(ctx, 7, "o", "m")
	sender := &scriptedSender{fail: -1}
	svc, _ := newTestService(t, st, sender, nil)
	svc.Apply(Config{MinInterval: time.Nanosecond, MaxRetries: 0})

	n, _ := st.GetNotification(ctx, id)
	if out := svc.Dispatch(ctx, n); out != OutcomeFailed {
		t.Fatalf("outcome = %v", out)
	}
	if sender.count() != 1 {
		t.Fatalf("sends = %d, want 1", sender.count())
	}
}

func TestDispatchSkipsChainInFlight(t *testing.T) {
	st := openStore(t)
	svc, _ := newTestService(t, st, &scriptedSender{}, nil)
	n := storage.Notification{ID: 3, UserID: 5, Message: "m"}

	if !svc.track(chainKey{userID: 5, notificationID: 3}, "busy") {
		t.Fatalf("track failed")
	}
	if out := svc.Dispatch(context.Background(), n); out != OutcomeSkipped {
		t.Fatalf("outcome = %v, want skipped", out)
	}
	svc.untrack(chainKey{userID: 5, notificationID: 3})
	if svc.InFlight() != 0 {
		t.Fatalf("in flight = %d", svc.InFlight())
	}
}

func TestDispatchCanceledLeavesPending(t *testing.T) {
	st := openStore(t)
	id, _, _ := st.EnqueueNotification(context.Background(), 7, "o", "m")
	svc, _ := newTestService(t, st, &scriptedSender{fail: -1}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n, _ := st.GetNotification(context.Background(), id)
	if out := svc.Dispatch(ctx, n); out != OutcomeCanceled {
		t.Fatalf("outcome = %v, want canceled", out)
	}
	n, _ = st.GetNotification(context.Background(), id)
	if n.Status != storage.NotificationPending {
		t.Fatalf("status = %v, want pending", n.Status)
	}
}

type lostMarkStore struct {
	storage.Store
}

func (lostMarkStore) MarkNotificationSent(context.Context, int64) (int64, error) {
	return 0, errors.New("database is locked")
}

func TestLostSentMarkRedeliversOnNextPoll(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	id, _, err := st.EnqueueNotification(ctx, 11, "order-3", "new order")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	sender := &scriptedSender{}
	svc, _ := newTestService(t, lostMarkStore{Store: st}, sender, nil)

	for i := 0; i < 2; i++ {
		rep, err := svc.CheckAndSend(ctx)
		if err != nil || rep.Sent != 1 {
			t.Fatalf("poll %d: report=%+v err=%v", i, rep, err)
		}
	}
	if sender.count() != 2 {
		t.Fatalf("sends = %d, want 2 (at-least-once)", sender.count())
	}
	n, err := st.GetNotification(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if n.Status != storage.NotificationPending {
		t.Fatalf("status = %v, want pending", n.Status)
	}
}

func TestLimiterBoundsConcurrency(t *testing.T) {
	lim := NewLimiter(2, 0)
	var cur, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := lim.Acquire(context.Background())
			if err != nil {
				t.Error(err)
				return
			}
			n := cur.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			cur.Add(-1)
			release()
		}()
	}
	wg.Wait()
	if p := peak.Load(); p > 2 {
		t.Fatalf("peak concurrency = %d, want <= 2", p)
	}
}

func TestLimiterSpacesStarts(t *testing.T) {
	lim := NewLimiter(10, 20*time.Millisecond)
	start := time.Now()
	for i := 0; i < 3; i++ {
		release, err := lim.Acquire(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		release()
	}
	if el := time.Since(start); el < 35*time.Millisecond {
		t.Fatalf("3 acquires took %v, want >= 40ms spacing", el)
	}
}

func TestLimiterWaitsForPaceUntilDeadline(t *testing.T) {
	lim := NewLimiter(10, time.Hour)
	release, err := lim.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	release()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	start := time.Now()
	if _, err := lim.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if el := time.Since(start); el < 25*time.Millisecond {
		t.Fatalf("gave up after %v, before the deadline", el)
	}
}

func TestCheckAndSendDeadlineLeavesQueuedPending(t *testing.T) {
	st := openStore(t)
	var ids []int64
	for i := 0; i < 5; i++ {
		id, _, err := st.EnqueueNotification(context.Background(), int64(100+i), "order", "new order")
		if err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		ids = append(ids, id)
	}
	sender := &scriptedSender{}
	svc := New(Config{MinInterval: 150 * time.Millisecond, MaxRetries: DefaultMaxRetries}, st, sender, logx.Nop(), nil)

	// Starts land at 0, 150, 300, 450 and 600ms; the last two miss the deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 400*time.Millisecond)
	defer cancel()
	rep, err := svc.CheckAndSend(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if rep.Failed != 0 || rep.Canceled == 0 || rep.Sent+rep.Canceled != 5 {
		t.Fatalf("report = %+v", rep)
	}
	if rep.Sent != sender.count() {
		t.Fatalf("report sent %d, transport saw %d", rep.Sent, sender.count())
	}

	var sent, pending int
	for _, id := range ids {
		n, err := st.GetNotification(context.Background(), id)
		if err != nil {
			t.Fatalf("get %d: %v", id, err)
		}
		switch n.Status {
		case storage.NotificationSent:
			sent++
		case storage.NotificationPending:
			pending++
		default:
			t.Fatalf("notification %d status = %v, never sent so it must not fail", id, n.Status)
		}
	}
	if sent != rep.Sent || pending != rep.Canceled {
		t.Fatalf("sent=%d pending=%d report=%+v", sent, pending, rep)
	}
}

func TestApplyKeepsLimiterWhenUnchanged(t *testing.T) {
	svc := New(Config{}, nil, nil, logx.Nop(), nil)
	_, before := svc.snapshot()
	svc.Apply(Config{RetryBase: time.Second})
	_, after := svc.snapshot()
	if before != after {
		t.Fatalf("limiter replaced on unrelated change")
	}
	if got := svc.Config(); got.RetryBase != time.Second || got.MaxConcurrent != DefaultMaxConcurrent {
		t.Fatalf("config = %+v", got)
	}
	svc.Apply(Config{MaxConcurrent: 5})
	_, swapped := svc.snapshot()
	if swapped == before {
		t.Fatalf("limiter not replaced")
	}
}
