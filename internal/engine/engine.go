package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"quickTrade/internal/domain"
	"quickTrade/internal/ports"
)

// Engine validates and creates trades, computes payout terms and hands the
// settlement timing to the scheduler. It is the only writer of new trade
// records; settlement mutation belongs to the scheduler.
type Engine struct {
	logger      ports.Logger
	instruments ports.InstrumentStore
	ledger      ports.BalanceLedger
	trades      ports.TradeRepository
	scheduler   ports.SettlementScheduler
	bus         ports.EventPublisher
	notifier    ports.Notifier

	minStake    int64
	maxStake    int64
	multipliers map[int]float64
	now         func() time.Time
	newID       func() string
}

// Config holds dependencies and trading parameters for the engine.
type Config struct {
	Logger      ports.Logger
	Instruments ports.InstrumentStore
	Ledger      ports.BalanceLedger
	Trades      ports.TradeRepository
	Scheduler   ports.SettlementScheduler
	Bus         ports.EventPublisher
	Notifier    ports.Notifier

	MinStake    int64
	MaxStake    int64
	Multipliers map[int]float64 // durationSeconds -> payout multiplier

	Now   func() time.Time // Override for tests; defaults to time.Now UTC
	NewID func() string    // Override for tests; defaults to uuid.NewString
}

// New creates an engine instance.
func New(cfg Config) (*Engine, error) {
	if cfg.Logger == nil || cfg.Instruments == nil || cfg.Ledger == nil ||
		cfg.Trades == nil || cfg.Scheduler == nil || cfg.Bus == nil || cfg.Notifier == nil {
		return nil, fmt.Errorf("missing required dependencies for trade engine")
	}
	if cfg.MinStake <= 0 || cfg.MaxStake < cfg.MinStake {
		return nil, fmt.Errorf("invalid stake bounds [%d, %d]", cfg.MinStake, cfg.MaxStake)
	}
	if len(cfg.Multipliers) == 0 {
		return nil, fmt.Errorf("multiplier table must not be empty")
	}
	for d, m := range cfg.Multipliers {
		if d <= 0 || m <= 1.0 {
			return nil, fmt.Errorf("invalid multiplier entry %d -> %f", d, m)
		}
	}

	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	newID := cfg.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	return &Engine{
		logger:      cfg.Logger,
		instruments: cfg.Instruments,
		ledger:      cfg.Ledger,
		trades:      cfg.Trades,
		scheduler:   cfg.Scheduler,
		bus:         cfg.Bus,
		notifier:    cfg.Notifier,
		minStake:    cfg.MinStake,
		maxStake:    cfg.MaxStake,
		multipliers: cfg.Multipliers,
		now:         now,
		newID:       newID,
	}, nil
}

// CreateTradeRequest carries the caller-supplied trade parameters.
type CreateTradeRequest struct {
	Symbol          string
	Direction       domain.Direction
	Stake           int64
	DurationSeconds int
}

// CreateTrade validates the request, debits the stake, persists the trade and
// arms its settlement timer. If persistence fails after the debit the stake
// is credited back before the error is returned.
func (e *Engine) CreateTrade(ctx context.Context, userID string, req CreateTradeRequest) (*domain.Trade, error) {
	op := "CreateTrade"

	multiplier, err := e.validate(userID, req)
	if err != nil {
		return nil, err
	}

	// Symbol must exist; the lookup also snapshots the entry price.
	inst, err := e.instruments.Get(req.Symbol)
	if err != nil {
		return nil, err
	}

	// Debit the stake before anything is persisted. The per-user serialization
	// in the ledger makes concurrent creations race safely.
	if _, err := e.ledger.Adjust(ctx, userID, -req.Stake); err != nil {
		if errors.Is(err, ports.ErrInsufficientFunds) {
			e.logger.Info(ctx, op+": stake rejected", map[string]interface{}{"userID": userID, "stake": req.Stake})
			return nil, err
		}
		return nil, fmt.Errorf("failed to debit stake: %w", err)
	}

	startedAt := e.now()
	trade := &domain.Trade{
		ID:              e.newID(),
		UserID:          userID,
		Symbol:          req.Symbol,
		Direction:       req.Direction,
		Stake:           req.Stake,
		DurationSeconds: req.DurationSeconds,
		Multiplier:      multiplier,
		EntryPrice:      inst.CurrentPrice,
		StartedAt:       startedAt,
		ExpiresAt:       startedAt.Add(time.Duration(req.DurationSeconds) * time.Second),
		Status:          domain.StatusActive,
		PotentialPayout: int64(math.Floor(float64(req.Stake) * multiplier)),
	}

	if err := e.trades.Create(ctx, trade); err != nil {
		// The stake is already gone; refund before surfacing the failure so
		// funds are never stuck in limbo.
		e.logger.Error(ctx, err, op+": persistence failed after debit, refunding stake", map[string]interface{}{
			"userID": userID,
			"stake":  req.Stake,
		})
		if _, refundErr := e.ledger.Adjust(ctx, userID, req.Stake); refundErr != nil {
			e.logger.Error(ctx, refundErr, op+": REFUND FAILED, manual reconciliation required", map[string]interface{}{
				"userID": userID,
				"stake":  req.Stake,
			})
		}
		return nil, fmt.Errorf("failed to persist trade: %w", err)
	}

	e.scheduler.Schedule(trade)

	e.logger.Info(ctx, op+": trade created", map[string]interface{}{
		"tradeID":    trade.ID,
		"userID":     userID,
		"symbol":     trade.Symbol,
		"direction":  trade.Direction,
		"stake":      trade.Stake,
		"entryPrice": trade.EntryPrice,
		"expiresAt":  trade.ExpiresAt,
	})
	e.bus.Publish(ports.Event{Type: ports.EventTradeCreated, UserID: userID, Data: trade})
	go e.notifier.Notify(context.WithoutCancel(ctx), userID, "Trade opened",
		fmt.Sprintf("%s %s stake %d, expires %s", trade.Symbol, trade.Direction, trade.Stake, trade.ExpiresAt.Format(time.RFC3339)),
		"trade", trade.ID)

	return trade, nil
}

// validate checks the request against the allow-list and stake bounds.
// All failures wrap ports.ErrInvalidRequest and have no side effects.
func (e *Engine) validate(userID string, req CreateTradeRequest) (float64, error) {
	if userID == "" {
		return 0, fmt.Errorf("user id is required: %w", ports.ErrInvalidRequest)
	}
	if !req.Direction.IsValid() {
		return 0, fmt.Errorf("direction must be 'up' or 'down': %w", ports.ErrInvalidRequest)
	}
	if req.Stake < e.minStake || req.Stake > e.maxStake {
		return 0, fmt.Errorf("stake %d outside bounds [%d, %d]: %w", req.Stake, e.minStake, e.maxStake, ports.ErrInvalidRequest)
	}
	multiplier, ok := e.multipliers[req.DurationSeconds]
	if !ok {
		return 0, fmt.Errorf("duration %ds is not allowed: %w", req.DurationSeconds, ports.ErrInvalidRequest)
	}
	return multiplier, nil
}

// GetTrade retrieves a trade visible to the principal: owners see their own
// trades, admins see everything. Anything else reads as not found.
func (e *Engine) GetTrade(ctx context.Context, principal ports.Principal, id string) (*domain.Trade, error) {
	trade, err := e.trades.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if trade == nil || (!principal.IsAdmin && trade.UserID != principal.UserID) {
		return nil, fmt.Errorf("trade %s: %w", id, ports.ErrNotFound)
	}
	return trade, nil
}

// ListUserTrades returns the caller's most recent trades.
func (e *Engine) ListUserTrades(ctx context.Context, userID string, limit int) ([]*domain.Trade, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return e.trades.FindByUser(ctx, userID, limit)
}

// ForceOutcome records an admin override on an active trade. The override is
// an annotation consulted at expiry, not an immediate settlement trigger.
// An empty outcome clears a previously set override. Overrides on terminal
// trades fail with ports.ErrAlreadySettled.
func (e *Engine) ForceOutcome(ctx context.Context, adminID, tradeID string, outcome domain.TradeStatus) (*domain.Trade, error) {
	op := "ForceOutcome"
	if outcome != "" && !outcome.IsTerminal() {
		return nil, fmt.Errorf("forced outcome must be 'won', 'lost' or empty: %w", ports.ErrInvalidRequest)
	}

	if err := e.trades.SetForcedOutcome(ctx, tradeID, outcome, adminID); err != nil {
		return nil, err
	}

	e.logger.Info(ctx, op+": override recorded", map[string]interface{}{
		"tradeID": tradeID,
		"outcome": outcome,
		"adminID": adminID,
	})
	return e.trades.FindByID(ctx, tradeID)
}
