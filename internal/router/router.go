// Package router feeds transport updates to the conversation engine.
//
// Loop is the only goroutine that touches the session registry: it handles
// one update at a time and also drains the registry's expiry tokens, so an
// idle timeout can never interleave with a turn.
package router

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"satsalert/internal/conversation"
	kit "satsalert/internal/transport"
	"satsalert/pkg/logx"
)

const DefaultTurnTimeout = 15 * time.Second

// Engine is the conversation surface the router drives.
type Engine interface {
	Handle(ctx context.Context, userID int64, text string) (conversation.Result, error)
	Welcome(ctx context.Context, userID int64) error
	Unrecognized(ctx context.Context, userID int64) error
	Sessions() *conversation.Registry
}

// Request is one inbound update being served.
type Request struct {
	Update  kit.Update
	UserID  int64
	Text    string
	Command string // set once the engine matched a command
	ReqID   string
	Logger  logx.Logger
}

type Router struct {
	engine      Engine
	log         logx.Logger
	turnTimeout atomic.Int64
}

func New(engine Engine, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Router{engine: engine, log: log.With(logx.String("comp", "router"))}
	r.SetTurnTimeout(DefaultTurnTimeout)
	return r
}

// SetTurnTimeout bounds each turn; <=0 restores the default. Safe to call
// while Loop runs.
func (r *Router) SetTurnTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultTurnTimeout
	}
	r.turnTimeout.Store(int64(d))
}

// Loop serves updates until ctx ends or updates is closed.
func (r *Router) Loop(ctx context.Context, updates <-chan kit.Update) error {
	sessions := r.engine.Sessions()
	r.log.Info("update loop started")
	defer r.log.Info("update loop stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			r.Serve(ctx, up)
		case tok := <-sessions.Expired():
			if sessions.Expire(tok) {
				r.log.Debug("session expired", logx.Int64("user_id", tok.UserID))
			}
		}
	}
}

// Serve handles a single update. Errors are logged, never returned: one
// failed turn must not stop the loop.
func (r *Router) Serve(ctx context.Context, up kit.Update) {
	req, ok := newRequest(up)
	if !ok {
		return
	}
	req.ReqID = uuid.NewString()
	req.Logger = r.log.With(
		logx.String("rid", req.ReqID),
		logx.Int64("user_id", req.UserID),
	)
	req.Logger.Trace("update received", logx.String("kind", string(up.Kind)))

	h := Chain(r.serve,
		MWPanicRecover(),
		MWRequestLog(),
		MWTimeout(time.Duration(r.turnTimeout.Load())),
	)
	_ = h(ctx, req)
}

func newRequest(up kit.Update) (*Request, bool) {
	switch up.Kind {
	case kit.UpdateContactConnected:
		if up.Contact == nil {
			return nil, false
		}
		return &Request{Update: up, UserID: up.Contact.ID}, true
	case kit.UpdateMessage:
		if up.Message == nil || up.Message.IsGroup {
			return nil, false
		}
		text := strings.TrimSpace(up.Message.Text)
		if text == "" {
			return nil, false
		}
		return &Request{Update: up, UserID: up.Message.ChatID, Text: text}, true
	}
	return nil, false
}

func (r *Router) serve(ctx context.Context, req *Request) error {
	if req.Update.Kind == kit.UpdateContactConnected {
		req.Command = "welcome"
		return r.engine.Welcome(ctx, req.UserID)
	}

	res, err := r.engine.Handle(ctx, req.UserID, req.Text)
	req.Command = res.Command
	if err != nil {
		return err
	}
	if !res.Recognized {
		req.Command = "unrecognized"
		return r.engine.Unrecognized(ctx, req.UserID)
	}
	return nil
}
