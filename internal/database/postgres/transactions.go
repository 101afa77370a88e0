package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kozaktomas/blinkpay/internal/database"
)

// TransactionRepository stores the payment ledger in PostgreSQL.
type TransactionRepository struct {
	pool *Pool
}

// NewTransactionRepository creates a new PostgreSQL transaction repository.
func NewTransactionRepository(pool *Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

// Record inserts a payment. ID and CreatedAt are filled in when empty.
func (r *TransactionRepository) Record(ctx context.Context, tx *database.Transaction) error {
	if tx == nil {
		return fmt.Errorf("record transaction: nil transaction")
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO transactions (id, session_id, recipient_name, recipient_address, amount,
			symbol, network, hash, status, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.pool.Exec(ctx, query,
		tx.ID, tx.SessionID, tx.RecipientName, tx.RecipientAddress, tx.Amount,
		tx.Symbol, tx.Network, tx.Hash, string(tx.Status), tx.Error, tx.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record transaction: %w", err)
	}
	return nil
}

// List returns payments newest first. An empty session ID lists all sessions.
func (r *TransactionRepository) List(ctx context.Context, sessionID string, limit, offset int) ([]database.Transaction, error) {
	query := `
		SELECT id, session_id, recipient_name, recipient_address, amount,
			symbol, network, hash, status, error, created_at
		FROM transactions
		WHERE ($1 = '' OR session_id = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	var limitArg any
	if limit > 0 {
		limitArg = limit
	}

	rows, err := r.pool.Query(ctx, query, sessionID, limitArg, offset)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	txs := []database.Transaction{}
	for rows.Next() {
		var tx database.Transaction
		var status string
		if err := rows.Scan(
			&tx.ID, &tx.SessionID, &tx.RecipientName, &tx.RecipientAddress, &tx.Amount,
			&tx.Symbol, &tx.Network, &tx.Hash, &status, &tx.Error, &tx.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		tx.Status = database.TxStatus(status)
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return txs, nil
}

// Stats summarizes payments with per-day completed spending for the last days.
func (r *TransactionRepository) Stats(ctx context.Context, sessionID string, days int, now time.Time) (*database.Stats, error) {
	stats := &database.Stats{TotalSent: decimal.Zero}

	totals := `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE status = 'completed'), 0),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM transactions
		WHERE ($1 = '' OR session_id = $1)
	`
	if err := r.pool.QueryRow(ctx, totals, sessionID).Scan(
		&stats.TotalSent, &stats.Completed, &stats.Pending, &stats.Failed,
	); err != nil {
		return nil, fmt.Errorf("transaction totals: %w", err)
	}

	end := now.UTC().Truncate(24 * time.Hour)
	start := end.AddDate(0, 0, -days+1)
	daily := `
		SELECT date_trunc('day', created_at AT TIME ZONE 'UTC') AS day, SUM(amount)
		FROM transactions
		WHERE ($1 = '' OR session_id = $1)
			AND status = 'completed'
			AND created_at >= $2 AND created_at < $3
		GROUP BY day
	`
	rows, err := r.pool.Query(ctx, daily, sessionID, start, end.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("daily spending: %w", err)
	}
	defer rows.Close()

	byDay := make(map[time.Time]decimal.Decimal)
	for rows.Next() {
		var day time.Time
		var amount decimal.Decimal
		if err := rows.Scan(&day, &amount); err != nil {
			return nil, fmt.Errorf("scan daily spending: %w", err)
		}
		byDay[time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)] = amount
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily spending: %w", err)
	}

	for i := range days {
		day := start.AddDate(0, 0, i)
		amount, ok := byDay[day]
		if !ok {
			amount = decimal.Zero
		}
		stats.Daily = append(stats.Daily, database.DailySpend{Day: day, Amount: amount})
	}
	return stats, nil
}
