package conversation

import (
	"sync"
	"sync/atomic"
	"time"
)

// Expiry is posted by an idle timer. Gen ties it to the timer that fired so
// a token from a timer that was reset in the meantime is ignored.
type Expiry struct {
	UserID int64
	Gen    uint64
}

type sessionEntry struct {
	session *Session
	timer   *time.Timer
	gen     uint64
}

// Registry maps users to their session and owns one idle timer per user.
//
// Registry is not safe for concurrent use: it belongs to the update loop.
// Timers never touch the map; they post an Expiry on Expired() which the
// loop hands back to Expire.
type Registry struct {
	idle     atomic.Int64 // time.Duration
	sessions map[int64]*sessionEntry
	gen      uint64

	expired   chan Expiry
	done      chan struct{}
	closeOnce sync.Once
}

const DefaultIdleTimeout = 10 * time.Minute

func NewRegistry(idle time.Duration) *Registry {
	r := &Registry{
		sessions: make(map[int64]*sessionEntry),
		expired:  make(chan Expiry, 64),
		done:     make(chan struct{}),
	}
	r.SetIdle(idle)
	return r
}

// SetIdle changes the idle timeout for timers armed from now on. It is the
// one method safe to call from any goroutine.
func (r *Registry) SetIdle(d time.Duration) {
	if d <= 0 {
		d = DefaultIdleTimeout
	}
	r.idle.Store(int64(d))
}

func (r *Registry) Idle() time.Duration { return time.Duration(r.idle.Load()) }

// Start replaces any session of userID with a fresh one at StepAction.
func (r *Registry) Start(userID int64) *Session {
	r.stop(userID)
	e := &sessionEntry{session: newSession(userID)}
	r.sessions[userID] = e
	r.arm(userID, e)
	return e.session
}

func (r *Registry) Get(userID int64) (*Session, bool) {
	e, ok := r.sessions[userID]
	if !ok {
		return nil, false
	}
	return e.session, true
}

// Touch restarts the idle timer of an existing session.
func (r *Registry) Touch(userID int64) bool {
	e, ok := r.sessions[userID]
	if !ok {
		return false
	}
	e.timer.Stop()
	r.arm(userID, e)
	return true
}

func (r *Registry) Delete(userID int64) {
	r.stop(userID)
}

func (r *Registry) Expired() <-chan Expiry { return r.expired }

// Expire deletes the session named by tok unless its timer was re-armed
// after tok was issued. It reports whether a session was removed.
func (r *Registry) Expire(tok Expiry) bool {
	e, ok := r.sessions[tok.UserID]
	if !ok || e.gen != tok.Gen {
		return false
	}
	delete(r.sessions, tok.UserID)
	return true
}

func (r *Registry) Len() int { return len(r.sessions) }

// Close stops every timer. Pending expiries are dropped.
func (r *Registry) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
		for id := range r.sessions {
			r.stop(id)
		}
	})
}

func (r *Registry) arm(userID int64, e *sessionEntry) {
	r.gen++
	gen := r.gen
	e.gen = gen
	e.timer = time.AfterFunc(r.Idle(), func() {
		select {
		case r.expired <- Expiry{UserID: userID, Gen: gen}:
		case <-r.done:
		}
	})
}

func (r *Registry) stop(userID int64) {
	e, ok := r.sessions[userID]
	if !ok {
		return
	}
	e.timer.Stop()
	delete(r.sessions, userID)
}
