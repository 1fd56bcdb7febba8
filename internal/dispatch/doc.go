// Package dispatch delivers queued notifications.
//
// Every send passes a Limiter: at most MaxConcurrent sends in flight
// (admitted in FIFO order) and at least MinInterval between send starts.
// A failed send enters a retry chain keyed by (user, notification): the
// n-th retry waits RetryBase * 2^n, and once MaxRetries retries have failed
// the notification is marked failed and never sent again.
//
// CheckAndSend is the poll entry point: it loads all pending notifications
// and dispatches them concurrently.
package dispatch
