package database

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemoryStore keeps transactions and sessions in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	txs      []Transaction
	sessions map[string]StoredSession
	now      func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]StoredSession), now: time.Now}
}

func (m *MemoryStore) Record(_ context.Context, tx *Transaction) error {
	if tx == nil {
		return fmt.Errorf("record transaction: nil transaction")
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = m.now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs = append(m.txs, *tx)
	return nil
}

func (m *MemoryStore) List(_ context.Context, sessionID string, limit, offset int) ([]Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Transaction
	for _, tx := range m.txs {
		if sessionID == "" || tx.SessionID == sessionID {
			out = append(out, tx)
		}
	}
	slices.SortStableFunc(out, func(a, b Transaction) int { return b.CreatedAt.Compare(a.CreatedAt) })

	if offset >= len(out) {
		return []Transaction{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Stats(_ context.Context, sessionID string, days int, now time.Time) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &Stats{TotalSent: decimal.Zero, Daily: dailyBuckets(now, days)}
	for _, tx := range m.txs {
		if sessionID != "" && tx.SessionID != sessionID {
			continue
		}
		switch tx.Status {
		case TxCompleted:
			stats.Completed++
			stats.TotalSent = stats.TotalSent.Add(tx.Amount)
			day := tx.CreatedAt.UTC().Truncate(24 * time.Hour)
			for i := range stats.Daily {
				if stats.Daily[i].Day.Equal(day) {
					stats.Daily[i].Amount = stats.Daily[i].Amount.Add(tx.Amount)
				}
			}
		case TxPending:
			stats.Pending++
		case TxFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

func (m *MemoryStore) Save(_ context.Context, s StoredSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*StoredSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok || !s.ExpiresAt.After(m.now()) {
		return nil, nil
	}
	return &s, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *MemoryStore) DeleteExpired(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	var n int64
	for id, s := range m.sessions {
		if !s.ExpiresAt.After(now) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) Close() error { return nil }
