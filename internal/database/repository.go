package database

import (
	"context"
	"time"
)

// TransactionStore is the payment ledger behind the dashboard.
type TransactionStore interface {
	// Record stores a completed, pending or failed payment.
	Record(ctx context.Context, tx *Transaction) error
	// List returns a session's payments, newest first. An empty session ID lists all.
	List(ctx context.Context, sessionID string, limit, offset int) ([]Transaction, error)
	// Stats summarizes a session's payments with per-day spending for the last days.
	Stats(ctx context.Context, sessionID string, days int, now time.Time) (*Stats, error)
}

// SessionStore persists anonymous sessions.
type SessionStore interface {
	Save(ctx context.Context, s StoredSession) error
	// Get returns nil when the session does not exist or has expired.
	Get(ctx context.Context, id string) (*StoredSession, error)
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// Store bundles both repositories of a backend.
type Store interface {
	TransactionStore
	SessionStore
	Close() error
}
