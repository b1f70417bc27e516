package ports

import (
	"context"
	"time"

	"cryptoSignalBot/internal/domain"
)

// IntentRecord is a journaled trade intent together with its outcome.
type IntentRecord struct {
	ID        int64
	Intent    domain.TradeIntent
	Status    domain.IntentStatus
	OrderID   int64
	Error     string
	CreatedAt time.Time
}

// IntentJournal keeps an audit trail of dispatched trade intents.
type IntentJournal interface {
	// Record saves a dispatched intent and returns its assigned ID.
	Record(ctx context.Context, record *IntentRecord) (int64, error)
	// Recent retrieves the most recent records for a symbol, newest first.
	Recent(ctx context.Context, symbol string, limit int) ([]*IntentRecord, error)
}
