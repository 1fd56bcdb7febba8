package sweeper

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"satsalert/internal/eventbus"
	"satsalert/internal/storage"
	"satsalert/internal/transport"
	"satsalert/pkg/logx"
)

type fakeSender struct {
	mu     sync.Mutex
	failTo map[int64]bool
	sent   map[int64][]string
}

func (f *fakeSender) SendText(_ context.Context, to transport.ChatTarget, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTo[to.ChatID] {
		return transport.MessageRef{}, transport.ErrContactNotReady
	}
	if f.sent == nil {
		f.sent = map[int64][]string{}
	}
	f.sent[to.ChatID] = append(f.sent[to.ChatID], text)
	return transport.MessageRef{ChatID: to.ChatID}, nil
}

type countingGate struct{ n int }

func (g *countingGate) Acquire(context.Context) (func(), error) {
	g.n++
	return func() {}, nil
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

func createAlert(t *testing.T, st storage.Store, userID int64, created time.Time) int64 {
	t.Helper()
	id, err := st.CreateAlert(context.Background(), storage.AlertDraft{
		UserID:        userID,
		Action:        storage.ActionBuy,
		Currency:      "USD",
		PaymentMethod: "Revolut",
		MinAmount:     10,
		MaxAmount:     100,
		CreatedAt:     created,
	})
	if err != nil {
		t.Fatalf("create alert: %v", err)
	}
	return id
}

func TestExpiryNotice(t *testing.T) {
	want := "🔔Your alert 5 has expired🔕. You can re-enable it by sending \"/enable 5\" or extend its expiry by sending \"/extend 5 <number of days>\". This is normal! By default, all alerts are disabled after 7 days."
	if got := ExpiryNotice(5); got != want {
		t.Fatalf("notice = %q", got)
	}
}

func TestSweepDisablesOldAlertAndNotifies(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 10, 17, 0, 0, 0, time.UTC)
	st := openStore(t)
	old := createAlert(t, st, 42, now.Add(-8*24*time.Hour))
	fresh := createAlert(t, st, 42, now.Add(-24*time.Hour))

	sender := &fakeSender{}
	gate := &countingGate{}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()

	sw := New(Config{}, st, sender, gate, logx.Nop(), bus)
	rep, err := sw.Sweep(ctx, now)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if rep.Candidates != 1 || rep.Expired != 1 || rep.Notified != 1 {
		t.Fatalf("report = %+v", rep)
	}
	if gate.n != 1 {
		t.Fatalf("gate acquired %d times", gate.n)
	}

	a, err := st.GetAlert(ctx, 42, old)
	if err != nil {
		t.Fatalf("get old: %v", err)
	}
	if a.Active {
		t.Fatalf("old alert still active")
	}
	b, _ := st.GetAlert(ctx, 42, fresh)
	if !b.Active {
		t.Fatalf("fresh alert disabled")
	}

	msgs := sender.sent[42]
	if len(msgs) != 1 || msgs[0] != ExpiryNotice(old) {
		t.Fatalf("messages = %q", msgs)
	}
	ev := <-events
	if ev.Type != EventExpired || ev.Data.(ExpiredEvent).AlertID != old {
		t.Fatalf("event = %+v", ev)
	}

	// A second sweep finds nothing.
	rep, err = sw.Sweep(ctx, now)
	if err != nil || rep.Candidates != 0 || len(sender.sent[42]) != 1 {
		t.Fatalf("second sweep: rep=%+v err=%v", rep, err)
	}
}

func TestSweepNoticeFailureDoesNotStopOthers(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 10, 17, 0, 0, 0, time.UTC)
	st := openStore(t)
	createAlert(t, st, 1, now.Add(-10*24*time.Hour))
	b := createAlert(t, st, 2, now.Add(-9*24*time.Hour))

	sender := &fakeSender{failTo: map[int64]bool{1: true}}
	sw := New(Config{}, st, sender, nil, logx.Nop(), nil)
	rep, err := sw.Sweep(ctx, now)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if rep.Expired != 2 || rep.Notified != 1 || rep.NoticeErrors != 1 {
		t.Fatalf("report = %+v", rep)
	}
	if got := sender.sent[2]; len(got) != 1 || got[0] != ExpiryNotice(b) {
		t.Fatalf("user 2 messages = %q", got)
	}

	active := true
	left, err := st.GetAlertsForUser(ctx, 1, &active)
	if err != nil || len(left) != 0 {
		t.Fatalf("user 1 still has active alerts: %v %v", left, err)
	}
}

type failingStore struct{ storage.AlertStore }

func (failingStore) GetExpiredActiveAlerts(context.Context, time.Time) ([]storage.Alert, error) {
	return nil, errors.New("db down")
}

func TestSweepStoreError(t *testing.T) {
	sw := New(Config{}, failingStore{}, &fakeSender{}, nil, logx.Nop(), nil)
	if _, err := sw.Sweep(context.Background(), time.Now()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRetentionIsConfigurable(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 10, 17, 0, 0, 0, time.UTC)
	st := openStore(t)
	createAlert(t, st, 9, now.Add(-2*24*time.Hour))

	sw := New(Config{Retention: 24 * time.Hour}, st, &fakeSender{}, nil, logx.Nop(), nil)
	rep, err := sw.Sweep(ctx, now)
	if err != nil || rep.Expired != 1 {
		t.Fatalf("rep=%+v err=%v", rep, err)
	}
}
