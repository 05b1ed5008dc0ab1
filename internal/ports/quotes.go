package ports

import (
	"context"

	"quickTrade/internal/domain"
)

// QuoteSource defines the interface for fetching external market prices.
// Implementations must be time-bounded via the supplied context; the price
// feed degrades to simulated pricing when a source fails or is absent.
type QuoteSource interface {
	// GetQuote retrieves the latest traded price for a symbol.
	// Wraps failures with ErrQuoteUnavailable.
	GetQuote(ctx context.Context, symbol string) (float64, error)
	// GetKlines retrieves historical candles for backfilling the chart store.
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]*domain.Candle, error)
	// Ping checks connectivity to the quote source.
	Ping(ctx context.Context) error
}
