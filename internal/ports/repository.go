package ports

import (
	"context"
	"time"

	"quickTrade/internal/domain"
)

// TradeRepository defines the interface for storing and retrieving trades.
type TradeRepository interface {
	// Create saves a new trade record.
	Create(ctx context.Context, trade *domain.Trade) error
	// FindByID retrieves a trade by its unique ID.
	// Returns nil, nil if not found.
	FindByID(ctx context.Context, id string) (*domain.Trade, error)
	// FindByUser retrieves the most recent trades for a user, up to a limit.
	FindByUser(ctx context.Context, userID string, limit int) ([]*domain.Trade, error)
	// FindActive retrieves all trades still in the active state, ordered by expiry.
	FindActive(ctx context.Context) ([]*domain.Trade, error)
	// Settle moves an active trade to a terminal state in a single conditional
	// update. Returns ErrAlreadySettled if the trade is no longer active, so a
	// racing timer and admin path commit at most once.
	Settle(ctx context.Context, id string, status domain.TradeStatus, exitPrice float64, payout int64, settledAt time.Time) error
	// SetForcedOutcome records (or clears, with an empty status) an admin
	// override on an active trade. Returns ErrAlreadySettled if the trade is
	// already terminal and ErrNotFound if it does not exist.
	SetForcedOutcome(ctx context.Context, id string, outcome domain.TradeStatus, adminID string) error
}

// AccountRepository defines the interface for account balance persistence.
// Callers are responsible for serializing access per user; the repository
// itself performs plain reads and writes.
type AccountRepository interface {
	// Find retrieves an account by user ID. Returns nil, nil if not found.
	Find(ctx context.Context, userID string) (*domain.Account, error)
	// Upsert creates or replaces an account record.
	Upsert(ctx context.Context, account *domain.Account) error
}

// CandleRepository defines the interface for the OHLC time-series store.
type CandleRepository interface {
	// Append stores one candle sample.
	Append(ctx context.Context, candle *domain.Candle) error
	// FindBySymbol retrieves the most recent candles for a symbol, oldest first.
	FindBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.Candle, error)
}
