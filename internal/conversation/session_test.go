package conversation

import (
	"errors"
	"math"
	"testing"
	"time"

	"satsalert/internal/storage"
)

func TestRegistryIdleExpiry(t *testing.T) {
	r := NewRegistry(20 * time.Millisecond)
	defer r.Close()

	r.Start(1)
	select {
	case tok := <-r.Expired():
		if tok.UserID != 1 {
			t.Fatalf("expired user = %d", tok.UserID)
		}
		if !r.Expire(tok) {
			t.Fatalf("fresh token should remove the session")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("idle timer never fired")
	}
	if _, ok := r.Get(1); ok {
		t.Fatalf("session should be gone")
	}
}

func TestRegistryStaleTokenIgnored(t *testing.T) {
	r := NewRegistry(time.Hour)
	defer r.Close()

	r.Start(1)
	stale := Expiry{UserID: 1, Gen: r.sessions[1].gen}
	r.Touch(1)
	if r.Expire(stale) {
		t.Fatalf("token from a re-armed timer must be ignored")
	}
	if _, ok := r.Get(1); !ok {
		t.Fatalf("session should survive a stale token")
	}

	// Restarting also invalidates outstanding tokens.
	stale = Expiry{UserID: 1, Gen: r.sessions[1].gen}
	r.Start(1)
	if r.Expire(stale) {
		t.Fatalf("token from a replaced session must be ignored")
	}
}

func TestRegistryDeleteStopsTimer(t *testing.T) {
	r := NewRegistry(10 * time.Millisecond)
	defer r.Close()

	r.Start(5)
	r.Delete(5)
	select {
	case tok := <-r.Expired():
		t.Fatalf("deleted session produced expiry %+v", tok)
	case <-time.After(50 * time.Millisecond):
	}
	if r.Len() != 0 {
		t.Fatalf("len = %d", r.Len())
	}
}

func TestSessionSettersEnforceStep(t *testing.T) {
	s := newSession(1)
	if err := s.SetCurrency("USD"); !errors.Is(err, ErrWrongStep) {
		t.Fatalf("currency before action: %v", err)
	}
	if err := s.SetAction(storage.ActionBuy); err != nil {
		t.Fatal(err)
	}
	if err := s.SetAction(storage.ActionSell); !errors.Is(err, ErrWrongStep) {
		t.Fatalf("second action: %v", err)
	}
	_ = s.SetCurrency("USD")
	if err := s.SetPremium(math.NaN()); err == nil {
		t.Fatalf("NaN premium accepted")
	}
	_ = s.SetPremium(3)
	_ = s.SetPaymentMethod("cash")

	d, err := s.Finish(AmountRange{Min: 10, Max: math.Inf(1)})
	if err != nil {
		t.Fatal(err)
	}
	if s.Step() != StepAmount {
		t.Fatalf("Finish must not advance, step = %v", s.Step())
	}
	s.Complete()
	if s.Step() != StepCompleted {
		t.Fatalf("step = %v", s.Step())
	}
	if d.UserID != 1 || d.Action != storage.ActionBuy || d.Currency != "USD" || d.Premium != 3 || d.PaymentMethod != "cash" {
		t.Fatalf("draft = %+v", d)
	}
}

func TestParseAmountRange(t *testing.T) {
	inf := math.Inf(1)
	cases := []struct {
		in      string
		want    AmountRange
		wantErr bool
	}{
		{in: "100-500", want: AmountRange{100, 500}},
		{in: " 100 - 500 ", want: AmountRange{100, 500}},
		{in: "ANY-500", want: AmountRange{0, 500}},
		{in: "100-any", want: AmountRange{100, inf}},
		{in: "Any-ANY", want: AmountRange{0, inf}},
		{in: "0.5-1.25", want: AmountRange{0.5, 1.25}},
		{in: "100", wantErr: true},
		{in: "1-2-3", wantErr: true},
		{in: "-500", wantErr: true},
		{in: "abc-500", wantErr: true},
		{in: "500-100", wantErr: true},
		{in: "NaN-1", wantErr: true},
		{in: "1-Inf", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseAmountRange(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil || got != tc.want {
				t.Fatalf("got %+v, %v; want %+v", got, err, tc.want)
			}
		})
	}
}

func TestParsePremium(t *testing.T) {
	for in, want := range map[string]float64{"10": 10, "-3.5": -3.5, " 0 ": 0} {
		got, err := ParsePremium(in)
		if err != nil || got != want {
			t.Fatalf("ParsePremium(%q) = %v, %v", in, got, err)
		}
	}
	for _, bad := range []string{"", "ten", "NaN", "+Inf", "1e400"} {
		if _, err := ParsePremium(bad); err == nil {
			t.Fatalf("ParsePremium(%q) should fail", bad)
		}
	}
}
