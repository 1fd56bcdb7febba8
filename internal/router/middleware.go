package router

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	kit "satsalert/internal/transport"
	"satsalert/pkg/logx"
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

func MWTimeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			if d <= 0 {
				return next(ctx, req)
			}
			cctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(cctx, req)
		}
	}
}

func MWPanicRecover() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				if r := recover(); r != nil {
					req.Logger.Error("panic recovered",
						logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())),
					)
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return next(ctx, req)
		}
	}
}

// MWRequestLog logs every turn once. A reply that could not reach the user
// (ErrContactNotReady) is a warning; anything else failing is an error.
func MWRequestLog() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			err := next(ctx, req)
			d := time.Since(start)

			fields := []logx.Field{
				logx.String("kind", string(req.Update.Kind)),
				logx.String("cmd", req.Command),
				logx.Duration("dur", d),
			}
			switch {
			case err == nil:
				// Slow turns are worth seeing at INFO.
				if d >= 750*time.Millisecond {
					req.Logger.Info("request ok", fields...)
				} else {
					req.Logger.Debug("request ok", fields...)
				}
			case errors.Is(err, kit.ErrContactNotReady):
				req.Logger.Warn("reply dropped; contact not ready", append(fields, logx.Err(err))...)
			default:
				req.Logger.Error("request failed", append(fields, logx.Err(err))...)
			}
			return err
		}
	}
}
