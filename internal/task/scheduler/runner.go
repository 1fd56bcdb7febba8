package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"satsalert/pkg/logx"
)

// runState guards a schedule against overlapping runs.
type runState struct {
	running atomic.Bool
}

func (r *runState) tryAcquire() bool { return r.running.CompareAndSwap(false, true) }
func (r *runState) release()         { r.running.Store(false) }

func (s *Service) runner(base context.Context, name string, timeout time.Duration, job Job, state *runState) func() {
	return func() {
		if base == nil {
			base = context.Background()
		}
		if base.Err() != nil {
			return
		}
		if !state.tryAcquire() {
			s.log.Debug("run skipped; previous run still active", logx.String("name", name))
			s.publish(EventSkipped, RunEvent{Name: name})
			return
		}
		defer state.release()

		ctx := base
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(base, timeout)
			defer cancel()
		}

		start := time.Now()
		err := safeRun(ctx, job)
		took := time.Since(start)

		ev := RunEvent{Name: name, Took: took}
		if err != nil {
			ev.Error = err.Error()
			s.log.Warn("job failed", logx.String("name", name), logx.Duration("took", took), logx.Err(err))
		} else {
			s.log.Debug("job done", logx.String("name", name), logx.Duration("took", took))
		}
		s.publish(EventRun, ev)
	}
}

func safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return job(ctx)
}
