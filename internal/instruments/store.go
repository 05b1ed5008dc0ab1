package instruments

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"quickTrade/internal/domain"
	"quickTrade/internal/ports"
)

// priceEpsilon is the smallest price the store will ever hold. Non-positive
// updates are clamped here instead of rejected so a broken feed sample can
// never zero out an instrument.
const priceEpsilon = 0.0001

// Store is the authoritative in-memory registry of tradable instruments.
// Reads are concurrent; writes for a symbol are serialized by the store lock.
type Store struct {
	logger ports.Logger
	bus    ports.EventPublisher

	mu          sync.RWMutex
	instruments map[string]*domain.Instrument
}

// Config holds dependencies and the seed set for the instrument store.
type Config struct {
	Logger ports.Logger
	Bus    ports.EventPublisher
	Seeds  []Seed
}

// Seed describes one instrument registered at startup.
type Seed struct {
	Symbol       string
	Name         string
	Category     domain.InstrumentCategory
	InitialPrice float64
}

// NewStore creates a store populated with the given seeds.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Logger == nil || cfg.Bus == nil {
		return nil, fmt.Errorf("missing required dependencies for instrument store")
	}
	if len(cfg.Seeds) == 0 {
		return nil, fmt.Errorf("instrument store requires at least one instrument")
	}

	s := &Store{
		logger:      cfg.Logger,
		bus:         cfg.Bus,
		instruments: make(map[string]*domain.Instrument, len(cfg.Seeds)),
	}
	now := time.Now().UTC()
	for _, seed := range cfg.Seeds {
		if seed.InitialPrice <= 0 {
			return nil, fmt.Errorf("initial price for %s must be positive", seed.Symbol)
		}
		if _, exists := s.instruments[seed.Symbol]; exists {
			return nil, fmt.Errorf("duplicate instrument symbol %s", seed.Symbol)
		}
		s.instruments[seed.Symbol] = &domain.Instrument{
			Symbol:        seed.Symbol,
			Name:          seed.Name,
			Category:      seed.Category,
			CurrentPrice:  seed.InitialPrice,
			PreviousClose: seed.InitialPrice,
			UpdatedAt:     now,
		}
	}
	return s, nil
}

// Get returns a copy of the instrument for symbol.
// Returns ports.ErrNotFound for unknown symbols.
func (s *Store) Get(symbol string) (*domain.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.instruments[symbol]
	if !ok {
		return nil, fmt.Errorf("instrument %s: %w", symbol, ports.ErrNotFound)
	}
	cp := *inst
	return &cp, nil
}

// List returns copies of all instruments sorted by symbol.
func (s *Store) List() []*domain.Instrument {
	s.mu.RLock()
	out := make([]*domain.Instrument, 0, len(s.instruments))
	for _, inst := range s.instruments {
		cp := *inst
		out = append(out, &cp)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// SetPrice applies a new price to symbol, recomputes the change columns and
// publishes a price_changed event carrying the full updated instrument.
// Non-positive prices are clamped to a small positive epsilon.
func (s *Store) SetPrice(ctx context.Context, symbol string, newPrice float64) (*domain.Instrument, error) {
	if newPrice <= 0 {
		s.logger.Warn(ctx, "Clamping non-positive price update", map[string]interface{}{
			"symbol":   symbol,
			"rejected": newPrice,
			"clamped":  priceEpsilon,
		})
		newPrice = priceEpsilon
	}

	s.mu.Lock()
	inst, ok := s.instruments[symbol]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("instrument %s: %w", symbol, ports.ErrNotFound)
	}
	inst.CurrentPrice = newPrice
	inst.Change = newPrice - inst.PreviousClose
	inst.ChangePercent = inst.Change / inst.PreviousClose * 100
	inst.UpdatedAt = time.Now().UTC()
	cp := *inst
	s.mu.Unlock()

	s.bus.Publish(ports.Event{Type: ports.EventPriceChanged, Data: &cp})
	return &cp, nil
}
