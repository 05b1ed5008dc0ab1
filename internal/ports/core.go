package ports

import (
	"context"

	"quickTrade/internal/domain"
)

// InstrumentStore is the authoritative registry of instruments and their
// latest prices.
type InstrumentStore interface {
	// Get retrieves the instrument for symbol. Returns ErrNotFound when the
	// symbol is unknown.
	Get(symbol string) (*domain.Instrument, error)
	// List returns all instruments.
	List() []*domain.Instrument
	// SetPrice applies a new price, recomputing the change columns and
	// emitting a price_changed event. Non-positive prices are clamped.
	SetPrice(ctx context.Context, symbol string, newPrice float64) (*domain.Instrument, error)
}

// BalanceLedger serializes balance adjustments per user.
type BalanceLedger interface {
	// GetBalance returns the user's balance, creating the account lazily.
	GetBalance(ctx context.Context, userID string) (int64, error)
	// Adjust applies delta atomically for the user. Debits that would drive
	// the balance negative fail with ErrInsufficientFunds.
	Adjust(ctx context.Context, userID string, delta int64) (int64, error)
}

// SettlementScheduler arms the expiry timer that resolves a trade.
type SettlementScheduler interface {
	// Schedule registers an active trade for settlement at its expiry.
	Schedule(trade *domain.Trade)
}
