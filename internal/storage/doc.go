// Package storage persists alerts and queued notifications.
//
// Two SQL backends share one implementation on top of sqlx:
//   - "sqlite" (default): modernc.org/sqlite, single connection, WAL
//   - "postgres": github.com/lib/pq
//
// Queries are written with '?' placeholders and rebound per driver; values
// are always passed as bind parameters.
package storage
