package conversation

import (
	"errors"
	"fmt"
	"math"

	"satsalert/internal/storage"
)

// Step is the field a session is currently collecting.
type Step int

const (
	StepAction Step = iota
	StepCurrency
	StepPremium
	StepPaymentMethod
	StepAmount
	StepCompleted
)

func (s Step) String() string {
	switch s {
	case StepAction:
		return "action"
	case StepCurrency:
		return "currency"
	case StepPremium:
		return "premium"
	case StepPaymentMethod:
		return "payment_method"
	case StepAmount:
		return "amount"
	case StepCompleted:
		return "completed"
	}
	return fmt.Sprintf("step(%d)", int(s))
}

var ErrWrongStep = errors.New("conversation: value set on wrong step")

// Session is one user's in-progress alert. Each setter only works on the
// step that collects its field and advances to the next step.
type Session struct {
	UserID int64

	step  Step
	draft storage.AlertDraft
}

func newSession(userID int64) *Session {
	return &Session{UserID: userID, step: StepAction, draft: storage.AlertDraft{UserID: userID}}
}

func (s *Session) Step() Step { return s.step }

func (s *Session) expect(step Step) error {
	if s.step != step {
		return fmt.Errorf("%w: at %s, want %s", ErrWrongStep, s.step, step)
	}
	return nil
}

func (s *Session) SetAction(a storage.Action) error {
	if err := s.expect(StepAction); err != nil {
		return err
	}
	s.draft.Action = a
	s.step = StepCurrency
	return nil
}

func (s *Session) SetCurrency(code string) error {
	if err := s.expect(StepCurrency); err != nil {
		return err
	}
	s.draft.Currency = code
	s.step = StepPremium
	return nil
}

func (s *Session) SetPremium(p float64) error {
	if err := s.expect(StepPremium); err != nil {
		return err
	}
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return errors.New("conversation: premium must be finite")
	}
	s.draft.Premium = p
	s.step = StepPaymentMethod
	return nil
}

func (s *Session) SetPaymentMethod(m string) error {
	if err := s.expect(StepPaymentMethod); err != nil {
		return err
	}
	s.draft.PaymentMethod = m
	s.step = StepAmount
	return nil
}

// Finish fills the amount range and returns the complete draft. The step
// stays at amount until Complete, so a failed save can be retried.
func (s *Session) Finish(r AmountRange) (storage.AlertDraft, error) {
	if err := s.expect(StepAmount); err != nil {
		return storage.AlertDraft{}, err
	}
	d := s.draft
	d.MinAmount, d.MaxAmount = r.Min, r.Max
	if err := d.Validate(); err != nil {
		return storage.AlertDraft{}, err
	}
	s.draft = d
	return d, nil
}

func (s *Session) Complete() {
	if s.step == StepAmount {
		s.step = StepCompleted
	}
}
