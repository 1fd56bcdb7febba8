// Package conversation turns chat text into alert operations: global
// commands plus the step-by-step /new dialog.
package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"satsalert/internal/eventbus"
	"satsalert/internal/refdata"
	"satsalert/internal/storage"
	"satsalert/internal/transport"
	logx "satsalert/pkg/logx"
)

const EventAlertCreated = "conversation.alert_created"

// QuoteSource returns a random quote for /satoshi.
type QuoteSource interface {
	Random() (refdata.Quote, error)
}

type Deps struct {
	Store      storage.AlertStore
	Sender     transport.Sender
	Sessions   *Registry
	Currencies refdata.CurrencyTable
	Quotes     QuoteSource
	Bus        eventbus.Bus // optional
	Log        logx.Logger
	Now        func() time.Time
}

// Result tells the caller whether the text meant anything to the engine.
// Command is set when a global command matched.
type Result struct {
	Recognized bool
	Command    string
}

// Engine runs one turn at a time; callers must not invoke Handle
// concurrently (the session registry is not locked).
type Engine struct {
	store      storage.AlertStore
	sender     transport.Sender
	sessions   *Registry
	currencies refdata.CurrencyTable
	quotes     QuoteSource
	bus        eventbus.Bus
	log        logx.Logger
	now        func() time.Time
}

func New(d Deps) *Engine {
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	sessions := d.Sessions
	if sessions == nil {
		sessions = NewRegistry(DefaultIdleTimeout)
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		store:      d.Store,
		sender:     d.Sender,
		sessions:   sessions,
		currencies: d.Currencies,
		quotes:     d.Quotes,
		bus:        d.Bus,
		log:        log.With(logx.String("comp", "conversation")),
		now:        now,
	}
}

func (e *Engine) Sessions() *Registry { return e.sessions }

// Handle processes one message from userID. Commands win over an open
// session; with neither, the result is unrecognized and nothing is sent.
func (e *Engine) Handle(ctx context.Context, userID int64, text string) (Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		// blank messages are ignored, not answered
		return Result{Recognized: true}, nil
	}

	e.sessions.Touch(userID)

	if cmd, args, ok := matchCommand(text); ok {
		return Result{Recognized: true, Command: cmd.name}, cmd.run(e, ctx, userID, args)
	}

	s, ok := e.sessions.Get(userID)
	if !ok {
		return Result{}, nil
	}
	return Result{Recognized: true}, e.advance(ctx, s, text)
}

// Welcome greets a newly connected contact.
func (e *Engine) Welcome(ctx context.Context, userID int64) error {
	return e.reply(ctx, userID, msgWelcome)
}

// Unrecognized sends the fallback reply for text Handle did not recognise.
func (e *Engine) Unrecognized(ctx context.Context, userID int64) error {
	return e.reply(ctx, userID, msgUnrecognized)
}

func (e *Engine) advance(ctx context.Context, s *Session, text string) error {
	switch s.Step() {
	case StepAction:
		a, ok := storage.ParseAction(text)
		if !ok {
			return e.reply(ctx, s.UserID, msgBadAction)
		}
		_ = s.SetAction(a)
		return e.reply(ctx, s.UserID, msgAskCurrency)

	case StepCurrency:
		code, ok := e.currencies.Lookup(text)
		if !ok {
			return e.reply(ctx, s.UserID, msgBadCurrency)
		}
		_ = s.SetCurrency(code)
		return e.reply(ctx, s.UserID, msgAskPremium)

	case StepPremium:
		p, err := ParsePremium(text)
		if err != nil {
			return e.reply(ctx, s.UserID, msgBadPremium)
		}
		_ = s.SetPremium(p)
		return e.reply(ctx, s.UserID, msgAskPayment)

	case StepPaymentMethod:
		_ = s.SetPaymentMethod(text)
		return e.reply(ctx, s.UserID, msgAskAmount)

	case StepAmount:
		r, err := ParseAmountRange(text)
		if err != nil {
			return e.reply(ctx, s.UserID, msgAmountHint)
		}
		draft, err := s.Finish(r)
		if err != nil {
			return e.reply(ctx, s.UserID, msgAmountHint)
		}
		return e.complete(ctx, s, draft)
	}

	// A completed session is deleted right away; nothing to advance.
	e.sessions.Delete(s.UserID)
	return e.Unrecognized(ctx, s.UserID)
}

func (e *Engine) complete(ctx context.Context, s *Session, draft storage.AlertDraft) error {
	draft.CreatedAt = e.now()
	id, err := e.store.CreateAlert(ctx, draft)
	if err != nil {
		e.log.Error("create alert failed", logx.Int64("user_id", s.UserID), logx.Err(err))
		return e.reply(ctx, s.UserID, msgCreateFailed)
	}

	s.Complete()
	e.sessions.Delete(s.UserID)
	e.log.Info("alert created",
		logx.Int64("user_id", s.UserID),
		logx.Int64("alert_id", id),
		logx.String("action", string(draft.Action)),
		logx.String("currency", draft.Currency),
	)
	if e.bus != nil {
		e.bus.Publish(eventbus.Event{Type: EventAlertCreated, Data: map[string]any{"user_id": s.UserID, "alert_id": id}})
	}
	return e.reply(ctx, s.UserID, formatConfirmation(draft))
}

func (e *Engine) reply(ctx context.Context, userID int64, text string) error {
	if _, err := e.sender.SendText(ctx, transport.ChatTarget{ChatID: userID}, text, nil); err != nil {
		return fmt.Errorf("reply to %d: %w", userID, err)
	}
	return nil
}
