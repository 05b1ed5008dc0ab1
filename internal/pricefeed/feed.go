package pricefeed

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"quickTrade/internal/domain"
	"quickTrade/internal/ports"
)

// Feed keeps every instrument's price moving. Each tick it tries the external
// quote source per instrument and falls back to a bounded random walk when
// the source fails, returns garbage, or is absent. Every applied price also
// appends one OHLC sample for chart rendering; settlement never reads those,
// it always consults the instrument store directly.
type Feed struct {
	logger      ports.Logger
	instruments ports.InstrumentStore
	quotes      ports.QuoteSource // May be nil: pure simulation mode
	candles     ports.CandleRepository
	interval    time.Duration
	maxDrift    float64
	minPrice    float64
	rng         *rand.Rand
	rngMu       sync.Mutex
}

// Config holds dependencies and tuning for the price feed.
type Config struct {
	Logger      ports.Logger
	Instruments ports.InstrumentStore
	Quotes      ports.QuoteSource // Optional; nil disables external quotes
	Candles     ports.CandleRepository
	Interval    time.Duration // Tick period for the whole instrument set
	MaxDrift    float64       // Max simulated move as a fraction of price
	MinPrice    float64       // Floor for simulated prices
	Seed        int64         // Random source seed; 0 means time-based
}

// New creates a price feed.
func New(cfg Config) (*Feed, error) {
	if cfg.Logger == nil || cfg.Instruments == nil || cfg.Candles == nil {
		return nil, fmt.Errorf("missing required dependencies for price feed")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("feed interval must be positive")
	}
	if cfg.MaxDrift <= 0 || cfg.MaxDrift >= 1 {
		return nil, fmt.Errorf("max drift ratio must be between 0 and 1")
	}
	if cfg.MinPrice <= 0 {
		return nil, fmt.Errorf("min price must be positive")
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Feed{
		logger:      cfg.Logger,
		instruments: cfg.Instruments,
		quotes:      cfg.Quotes,
		candles:     cfg.Candles,
		interval:    cfg.Interval,
		maxDrift:    cfg.MaxDrift,
		minPrice:    cfg.MinPrice,
		rng:         rand.New(rand.NewSource(seed)),
	}, nil
}

// Run drives the feed loop until ctx is cancelled.
func (f *Feed) Run(ctx context.Context) {
	f.logger.Info(ctx, "Price feed started", map[string]interface{}{
		"interval":    f.interval.String(),
		"external":    f.quotes != nil,
		"instruments": len(f.instruments.List()),
	})
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.logger.Info(ctx, "Price feed stopped")
			return
		case <-ticker.C:
			f.Tick(ctx)
		}
	}
}

// Tick applies one price update to every instrument. A failure on one
// instrument never blocks the others.
func (f *Feed) Tick(ctx context.Context) {
	for _, inst := range f.instruments.List() {
		f.tickInstrument(ctx, inst)
	}
}

func (f *Feed) tickInstrument(ctx context.Context, inst *domain.Instrument) {
	previous := inst.CurrentPrice
	newPrice, source := f.nextPrice(ctx, inst)

	updated, err := f.instruments.SetPrice(ctx, inst.Symbol, newPrice)
	if err != nil {
		f.logger.Error(ctx, err, "Failed to apply price update", map[string]interface{}{"symbol": inst.Symbol})
		return
	}

	candle := &domain.Candle{
		Symbol:   inst.Symbol,
		Interval: f.interval.String(),
		Open:     previous,
		High:     maxFloat(previous, updated.CurrentPrice),
		Low:      minFloat(previous, updated.CurrentPrice),
		Close:    updated.CurrentPrice,
		Volume:   f.randomVolume(),
		OpenTime: updated.UpdatedAt,
	}
	if err := f.candles.Append(ctx, candle); err != nil {
		// Chart data only; losing a sample is not worth interrupting the feed.
		f.logger.Warn(ctx, "Failed to append candle", map[string]interface{}{"symbol": inst.Symbol, "error": err.Error()})
	}

	f.logger.Debug(ctx, "Price applied", map[string]interface{}{
		"symbol": inst.Symbol,
		"price":  updated.CurrentPrice,
		"source": source,
	})
}

// nextPrice resolves the next price for the instrument: external quote when
// available, bounded random walk otherwise.
func (f *Feed) nextPrice(ctx context.Context, inst *domain.Instrument) (float64, string) {
	if f.quotes != nil {
		price, err := f.quotes.GetQuote(ctx, inst.Symbol)
		if err == nil && price > 0 {
			return price, "external"
		}
		if err != nil && !errors.Is(err, ports.ErrQuoteUnavailable) {
			f.logger.Warn(ctx, "Unexpected quote source error, simulating", map[string]interface{}{
				"symbol": inst.Symbol,
				"error":  err.Error(),
			})
		}
	}
	return f.simulate(inst.CurrentPrice), "simulated"
}

// simulate perturbs the price by a symmetric random amount bounded by
// maxDrift, floor-clamped at minPrice.
func (f *Feed) simulate(current float64) float64 {
	f.rngMu.Lock()
	drift := (f.rng.Float64()*2 - 1) * f.maxDrift
	f.rngMu.Unlock()

	next := current * (1 + drift)
	if next < f.minPrice {
		next = f.minPrice
	}
	return next
}

func (f *Feed) randomVolume() float64 {
	f.rngMu.Lock()
	defer f.rngMu.Unlock()
	return 100 + f.rng.Float64()*900
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
