package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"quickTrade/internal/domain"
	"quickTrade/internal/ports"
)

// Ledger owns per-user balances. All adjustments for one user are serialized
// by a per-user mutex so concurrent debits can never race a balance below
// zero; different users proceed independently.
type Ledger struct {
	logger          ports.Logger
	accounts        ports.AccountRepository
	bus             ports.EventPublisher
	startingBalance int64

	mu    sync.Mutex // Guards the locks map only
	locks map[string]*sync.Mutex
}

// Config holds dependencies for the ledger.
type Config struct {
	Logger          ports.Logger
	Accounts        ports.AccountRepository
	Bus             ports.EventPublisher
	StartingBalance int64 // Granted to accounts created on first reference
}

// New creates a ledger instance.
func New(cfg Config) (*Ledger, error) {
	if cfg.Logger == nil || cfg.Accounts == nil || cfg.Bus == nil {
		return nil, fmt.Errorf("missing required dependencies for ledger")
	}
	if cfg.StartingBalance < 0 {
		return nil, fmt.Errorf("starting balance cannot be negative")
	}
	return &Ledger{
		logger:          cfg.Logger,
		accounts:        cfg.Accounts,
		bus:             cfg.Bus,
		startingBalance: cfg.StartingBalance,
		locks:           make(map[string]*sync.Mutex),
	}, nil
}

// GetBalance returns the user's current balance, creating the account lazily.
func (l *Ledger) GetBalance(ctx context.Context, userID string) (int64, error) {
	userLock := l.userLock(userID)
	userLock.Lock()
	defer userLock.Unlock()

	account, err := l.loadOrCreate(ctx, userID)
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

// Adjust applies delta to the user's balance and returns the new balance.
// A debit that would drive the balance negative fails with
// ports.ErrInsufficientFunds and applies no change. Credits always succeed.
func (l *Ledger) Adjust(ctx context.Context, userID string, delta int64) (int64, error) {
	userLock := l.userLock(userID)
	userLock.Lock()
	defer userLock.Unlock()

	account, err := l.loadOrCreate(ctx, userID)
	if err != nil {
		return 0, err
	}

	newBalance := account.Balance + delta
	if newBalance < 0 {
		return account.Balance, fmt.Errorf("balance %d cannot cover %d: %w", account.Balance, -delta, ports.ErrInsufficientFunds)
	}

	account.Balance = newBalance
	account.UpdatedAt = time.Now().UTC()
	if err := l.accounts.Upsert(ctx, account); err != nil {
		return 0, fmt.Errorf("failed to persist balance for user %s: %w", userID, err)
	}

	l.logger.Debug(ctx, "Balance adjusted", map[string]interface{}{
		"userID":     userID,
		"delta":      delta,
		"newBalance": newBalance,
	})
	l.bus.Publish(ports.Event{
		Type:   ports.EventBalanceChanged,
		UserID: userID,
		Data: map[string]interface{}{
			"userId":  userID,
			"balance": newBalance,
		},
	})
	return newBalance, nil
}

// loadOrCreate fetches the account record, creating it with the starting
// balance on first reference. Caller must hold the user lock.
func (l *Ledger) loadOrCreate(ctx context.Context, userID string) (*domain.Account, error) {
	account, err := l.accounts.Find(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account for user %s: %w", userID, err)
	}
	if account != nil {
		return account, nil
	}

	account = &domain.Account{
		UserID:    userID,
		Balance:   l.startingBalance,
		UpdatedAt: time.Now().UTC(),
	}
	if err := l.accounts.Upsert(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to create account for user %s: %w", userID, err)
	}
	l.logger.Info(ctx, "Account created on first reference", map[string]interface{}{
		"userID":  userID,
		"balance": account.Balance,
	})
	return account, nil
}

// userLock returns the mutex dedicated to userID, creating it on demand.
func (l *Ledger) userLock(userID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[userID] = lock
	}
	return lock
}
