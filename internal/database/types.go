package database

import (
	"time"

	"github.com/shopspring/decimal"
)

// TxStatus is the outcome of a broadcast payment.
type TxStatus string

const (
	TxCompleted TxStatus = "completed"
	TxPending   TxStatus = "pending"
	TxFailed    TxStatus = "failed"
)

// Transaction is a payment that reached the wallet. Drafts are never stored.
type Transaction struct {
	ID               string          `json:"id"`
	SessionID        string          `json:"-"`
	RecipientName    string          `json:"recipient_name"`
	RecipientAddress string          `json:"recipient_address"`
	Amount           decimal.Decimal `json:"amount"`
	Symbol           string          `json:"symbol"`
	Network          string          `json:"network"`
	Hash             string          `json:"hash,omitempty"`
	Status           TxStatus        `json:"status"`
	Error            string          `json:"error,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// DailySpend is the completed amount sent on one day.
type DailySpend struct {
	Day    time.Time       `json:"day"`
	Amount decimal.Decimal `json:"amount"`
}

// Stats summarizes a session's payments.
type Stats struct {
	TotalSent decimal.Decimal `json:"total_sent"`
	Completed int             `json:"completed"`
	Pending   int             `json:"pending"`
	Failed    int             `json:"failed"`
	Daily     []DailySpend    `json:"daily"`
}

// StoredSession is an anonymous browser session.
type StoredSession struct {
	ID        string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// dailyBuckets returns one zero bucket per day, oldest first, ending on now's day (UTC).
func dailyBuckets(now time.Time, days int) []DailySpend {
	end := now.UTC().Truncate(24 * time.Hour)
	out := make([]DailySpend, days)
	for i := range days {
		out[i] = DailySpend{Day: end.AddDate(0, 0, i-days+1), Amount: decimal.Zero}
	}
	return out
}
