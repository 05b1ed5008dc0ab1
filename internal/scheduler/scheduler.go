package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"quickTrade/internal/domain"
	"quickTrade/internal/ports"
)

// Scheduler owns one pending-expiry timer per active trade and resolves each
// trade's outcome exactly once. The exactly-once guarantee does not rest on
// the timers themselves but on the conditional status transition in the trade
// repository: whichever caller commits the active->terminal update first wins
// and every later attempt is a benign no-op.
type Scheduler struct {
	logger      ports.Logger
	trades      ports.TradeRepository
	instruments ports.InstrumentStore
	ledger      ports.BalanceLedger
	bus         ports.EventPublisher
	notifier    ports.Notifier
	quotes      ports.QuoteSource // Optional best-effort refresh at expiry
	now         func() time.Time

	mu      sync.Mutex
	timers  map[string]*time.Timer
	baseCtx context.Context
	stopped bool
}

// Config holds dependencies for the scheduler.
type Config struct {
	Logger      ports.Logger
	Trades      ports.TradeRepository
	Instruments ports.InstrumentStore
	Ledger      ports.BalanceLedger
	Bus         ports.EventPublisher
	Notifier    ports.Notifier
	Quotes      ports.QuoteSource // Optional
	Now         func() time.Time  // Override for tests
}

// New creates a scheduler instance. Call Start before scheduling trades.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Logger == nil || cfg.Trades == nil || cfg.Instruments == nil ||
		cfg.Ledger == nil || cfg.Bus == nil || cfg.Notifier == nil {
		return nil, fmt.Errorf("missing required dependencies for settlement scheduler")
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Scheduler{
		logger:      cfg.Logger,
		trades:      cfg.Trades,
		instruments: cfg.Instruments,
		ledger:      cfg.Ledger,
		bus:         cfg.Bus,
		notifier:    cfg.Notifier,
		quotes:      cfg.Quotes,
		now:         now,
		timers:      make(map[string]*time.Timer),
		baseCtx:     context.Background(),
	}, nil
}

// Start binds the scheduler to ctx and runs the recovery sweep: every trade
// still marked active is re-armed, and trades whose expiry already passed
// while the process was down settle immediately at the last-known price.
func (s *Scheduler) Start(ctx context.Context) error {
	op := "Start"
	s.mu.Lock()
	s.baseCtx = ctx
	s.stopped = false
	s.mu.Unlock()

	active, err := s.trades.FindActive(ctx)
	if err != nil {
		return fmt.Errorf("recovery sweep failed to load active trades: %w", err)
	}

	pastDue := 0
	for _, trade := range active {
		if !trade.ExpiresAt.After(s.now()) {
			pastDue++
		}
		s.Schedule(trade)
	}
	s.logger.Info(ctx, op+": recovery sweep complete", map[string]interface{}{
		"active":  len(active),
		"pastDue": pastDue,
	})
	return nil
}

// Schedule arms the expiry timer for an active trade. A trade already past
// its expiry resolves immediately. Scheduling a terminal trade is ignored.
func (s *Scheduler) Schedule(trade *domain.Trade) {
	if trade == nil || !trade.IsActive() {
		return
	}

	delay := trade.ExpiresAt.Sub(s.now())
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if _, exists := s.timers[trade.ID]; exists {
		s.mu.Unlock()
		return // Timer already armed for this trade
	}
	tradeID := trade.ID
	s.timers[tradeID] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, tradeID)
		ctx := s.baseCtx
		s.mu.Unlock()
		s.resolve(ctx, tradeID)
	})
	s.mu.Unlock()
}

// Stop cancels all pending timers. Trades stay active in the repository and
// are picked up by the recovery sweep on the next Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
}

// PendingCount returns the number of armed timers.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// resolve settles one trade. Safe to call multiple times and safe to race
// with the recovery sweep; only the first committed transition has effects.
func (s *Scheduler) resolve(ctx context.Context, tradeID string) {
	op := "resolve"

	trade, err := s.trades.FindByID(ctx, tradeID)
	if err != nil {
		s.logger.Error(ctx, err, op+": failed to load trade for settlement", map[string]interface{}{"tradeID": tradeID})
		return
	}
	if trade == nil {
		s.logger.Warn(ctx, op+": trade vanished before settlement", map[string]interface{}{"tradeID": tradeID})
		return
	}
	if !trade.IsActive() {
		// Timer fired twice or raced the recovery sweep. Benign.
		s.logger.Debug(ctx, op+": trade already terminal", map[string]interface{}{"tradeID": tradeID, "status": trade.Status})
		return
	}

	exitPrice := s.exitPrice(ctx, trade)
	outcome := trade.Outcome(exitPrice)
	var payout int64
	if outcome == domain.StatusWon {
		payout = trade.PotentialPayout
	}
	settledAt := s.now()

	if err := s.trades.Settle(ctx, trade.ID, outcome, exitPrice, payout, settledAt); err != nil {
		if errors.Is(err, ports.ErrAlreadySettled) {
			s.logger.Debug(ctx, op+": lost the settlement race", map[string]interface{}{"tradeID": trade.ID})
			return
		}
		s.logger.Error(ctx, err, op+": failed to persist settlement", map[string]interface{}{"tradeID": trade.ID})
		return
	}

	trade.Status = outcome
	trade.ExitPrice = exitPrice
	trade.PayoutAmount = payout
	trade.SettledAt = settledAt

	if outcome == domain.StatusWon {
		if _, err := s.ledger.Adjust(ctx, trade.UserID, payout); err != nil {
			// The trade is terminal but the payout is missing. Nothing here can
			// roll the settlement back; flag loudly for reconciliation.
			s.logger.Error(ctx, err, op+": PAYOUT CREDIT FAILED, manual reconciliation required", map[string]interface{}{
				"tradeID": trade.ID,
				"userID":  trade.UserID,
				"payout":  payout,
			})
		}
	}

	s.logger.Info(ctx, op+": trade settled", map[string]interface{}{
		"tradeID":    trade.ID,
		"userID":     trade.UserID,
		"outcome":    outcome,
		"entryPrice": trade.EntryPrice,
		"exitPrice":  exitPrice,
		"forced":     trade.ForcedOutcome != "",
		"payout":     payout,
	})
	s.bus.Publish(ports.Event{Type: ports.EventTradeCompleted, UserID: trade.UserID, Data: trade})

	title := "Trade lost"
	body := fmt.Sprintf("%s %s closed at %.4f", trade.Symbol, trade.Direction, exitPrice)
	if outcome == domain.StatusWon {
		title = "Trade won"
		body = fmt.Sprintf("%s %s closed at %.4f, payout %d", trade.Symbol, trade.Direction, exitPrice, payout)
	}
	go s.notifier.Notify(context.WithoutCancel(ctx), trade.UserID, title, body, "trade", trade.ID)
}

// exitPrice determines the settlement price: best-effort external refresh
// pushed through the instrument store, else whatever the store currently
// holds, else the entry price as a last resort.
func (s *Scheduler) exitPrice(ctx context.Context, trade *domain.Trade) float64 {
	if s.quotes != nil {
		if quote, err := s.quotes.GetQuote(ctx, trade.Symbol); err == nil && quote > 0 {
			if inst, err := s.instruments.SetPrice(ctx, trade.Symbol, quote); err == nil {
				return inst.CurrentPrice
			}
		}
	}
	inst, err := s.instruments.Get(trade.Symbol)
	if err != nil {
		s.logger.Warn(ctx, "Instrument missing at settlement, falling back to entry price", map[string]interface{}{
			"tradeID": trade.ID,
			"symbol":  trade.Symbol,
		})
		return trade.EntryPrice
	}
	return inst.CurrentPrice
}
