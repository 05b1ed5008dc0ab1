package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"quickTrade/internal/domain"
	"quickTrade/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements ports.TradeRepository, ports.AccountRepository and
// ports.CandleRepository using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/quicktrade.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Open database connection
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000") // WAL mode for better concurrency
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Set connection pool settings (important for SQLite)
	db.SetMaxOpenConns(1) // SQLite handles concurrency internally, but Go driver benefits from limiting connections
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Database schema initialized/verified")

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
// NOTE: This is a basic approach. A proper migration tool is recommended for production.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		direction TEXT NOT NULL,
		stake INTEGER NOT NULL,
		duration_seconds INTEGER NOT NULL,
		multiplier REAL NOT NULL,
		entry_price REAL NOT NULL,
		exit_price REAL DEFAULT NULL,
		started_at TIMESTAMP NOT NULL,
		expires_at TIMESTAMP NOT NULL,
		settled_at TIMESTAMP DEFAULT NULL,
		status TEXT NOT NULL,
		potential_payout INTEGER NOT NULL,
		payout_amount INTEGER DEFAULT NULL,
		forced_outcome TEXT DEFAULT NULL,
		forced_by_admin_id TEXT DEFAULT NULL
	);

	CREATE TABLE IF NOT EXISTS accounts (
		user_id TEXT PRIMARY KEY,
		balance INTEGER NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS candles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		interval TEXT NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume REAL NOT NULL,
		open_time TIMESTAMP NOT NULL
	);
	-- Add indexes for common lookups
	CREATE INDEX IF NOT EXISTS idx_trades_user_started ON trades (user_id, started_at);
	CREATE INDEX IF NOT EXISTS idx_trades_status_expires ON trades (status, expires_at);
	CREATE INDEX IF NOT EXISTS idx_candles_symbol_time ON candles (symbol, open_time);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// --- TradeRepository Implementation ---

// Create saves a new trade record.
func (r *Repository) Create(ctx context.Context, trade *domain.Trade) error {
	const query = `
	INSERT INTO trades (id, user_id, symbol, direction, stake, duration_seconds, multiplier,
	                    entry_price, started_at, expires_at, status, potential_payout)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		trade.ID, trade.UserID, trade.Symbol, trade.Direction, trade.Stake, trade.DurationSeconds,
		trade.Multiplier, trade.EntryPrice, trade.StartedAt, trade.ExpiresAt, trade.Status, trade.PotentialPayout)
	if err != nil {
		return fmt.Errorf("failed to insert trade %s: %w", trade.ID, err)
	}
	r.logger.Debug(ctx, "Trade created", map[string]interface{}{"tradeID": trade.ID, "symbol": trade.Symbol, "userID": trade.UserID})
	return nil
}

// FindByID retrieves a trade by its unique ID.
func (r *Repository) FindByID(ctx context.Context, id string) (*domain.Trade, error) {
	row := r.db.QueryRowContext(ctx, selectTrade+` WHERE id = ?`, id)
	trade, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.logger.Debug(ctx, "Trade not found by ID", map[string]interface{}{"tradeID": id})
			return nil, nil // Not an error, just not found
		}
		return nil, fmt.Errorf("failed to query trade by ID %s: %w", id, err)
	}
	return trade, nil
}

// FindByUser retrieves the most recent trades for a user, up to a limit.
func (r *Repository) FindByUser(ctx context.Context, userID string, limit int) ([]*domain.Trade, error) {
	rows, err := r.db.QueryContext(ctx, selectTrade+` WHERE user_id = ? ORDER BY started_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades for user %s: %w", userID, err)
	}
	defer rows.Close()

	return collectTrades(rows)
}

// FindActive retrieves all trades still in the active state, ordered by expiry.
func (r *Repository) FindActive(ctx context.Context) ([]*domain.Trade, error) {
	rows, err := r.db.QueryContext(ctx, selectTrade+` WHERE status = ? ORDER BY expires_at ASC`, domain.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to query active trades: %w", err)
	}
	defer rows.Close()

	return collectTrades(rows)
}

// Settle moves an active trade to a terminal state. The WHERE clause on the
// current status makes the transition conditional, so the racing paths
// (expiry timer, recovery sweep) commit at most once.
func (r *Repository) Settle(ctx context.Context, id string, status domain.TradeStatus, exitPrice float64, payout int64, settledAt time.Time) error {
	const query = `
	UPDATE trades
	SET status = ?, exit_price = ?, payout_amount = ?, settled_at = ?
	WHERE id = ? AND status = ?`

	var payoutCol sql.NullInt64
	if status == domain.StatusWon {
		payoutCol = sql.NullInt64{Int64: payout, Valid: true}
	}

	result, err := r.db.ExecContext(ctx, query, status, exitPrice, payoutCol, settledAt, id, domain.StatusActive)
	if err != nil {
		return fmt.Errorf("failed to settle trade %s: %w", id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected settling trade %s: %w", id, err)
	}
	if rowsAffected == 0 {
		// Either the trade does not exist or it already left the active state.
		existing, findErr := r.FindByID(ctx, id)
		if findErr != nil {
			return findErr
		}
		if existing == nil {
			return fmt.Errorf("trade %s: %w", id, ports.ErrNotFound)
		}
		return fmt.Errorf("trade %s: %w", id, ports.ErrAlreadySettled)
	}
	r.logger.Debug(ctx, "Trade settled", map[string]interface{}{"tradeID": id, "status": status, "exitPrice": exitPrice})
	return nil
}

// SetForcedOutcome records or clears an admin override on an active trade.
func (r *Repository) SetForcedOutcome(ctx context.Context, id string, outcome domain.TradeStatus, adminID string) error {
	const query = `
	UPDATE trades
	SET forced_outcome = ?, forced_by_admin_id = ?
	WHERE id = ? AND status = ?`

	var outcomeCol, adminCol sql.NullString
	if outcome != "" {
		outcomeCol = sql.NullString{String: string(outcome), Valid: true}
		adminCol = sql.NullString{String: adminID, Valid: true}
	}

	result, err := r.db.ExecContext(ctx, query, outcomeCol, adminCol, id, domain.StatusActive)
	if err != nil {
		return fmt.Errorf("failed to set forced outcome on trade %s: %w", id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected forcing outcome on trade %s: %w", id, err)
	}
	if rowsAffected == 0 {
		existing, findErr := r.FindByID(ctx, id)
		if findErr != nil {
			return findErr
		}
		if existing == nil {
			return fmt.Errorf("trade %s: %w", id, ports.ErrNotFound)
		}
		return fmt.Errorf("trade %s: %w", id, ports.ErrAlreadySettled)
	}
	r.logger.Debug(ctx, "Forced outcome updated", map[string]interface{}{"tradeID": id, "outcome": outcome, "adminID": adminID})
	return nil
}

// --- AccountRepository Implementation ---

// Find retrieves an account by user ID.
func (r *Repository) Find(ctx context.Context, userID string) (*domain.Account, error) {
	const query = `SELECT user_id, balance, updated_at FROM accounts WHERE user_id = ?`

	account := &domain.Account{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&account.UserID, &account.Balance, &account.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not an error, just not found
		}
		return nil, fmt.Errorf("failed to query account for user %s: %w", userID, err)
	}
	return account, nil
}

// Upsert creates or replaces an account record.
func (r *Repository) Upsert(ctx context.Context, account *domain.Account) error {
	const query = `
	INSERT INTO accounts (user_id, balance, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET balance = excluded.balance, updated_at = excluded.updated_at`

	_, err := r.db.ExecContext(ctx, query, account.UserID, account.Balance, account.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert account for user %s: %w", account.UserID, err)
	}
	return nil
}

// --- CandleRepository Implementation ---

// Append stores one candle sample.
func (r *Repository) Append(ctx context.Context, candle *domain.Candle) error {
	const query = `
	INSERT INTO candles (symbol, interval, open, high, low, close, volume, open_time)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		candle.Symbol, candle.Interval, candle.Open, candle.High, candle.Low, candle.Close, candle.Volume, candle.OpenTime)
	if err != nil {
		return fmt.Errorf("failed to insert candle for symbol %s: %w", candle.Symbol, err)
	}
	return nil
}

// FindBySymbol retrieves the most recent candles for a symbol, oldest first.
func (r *Repository) FindBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.Candle, error) {
	const query = `
	SELECT symbol, interval, open, high, low, close, volume, open_time
	FROM (
		SELECT symbol, interval, open, high, low, close, volume, open_time
		FROM candles WHERE symbol = ? ORDER BY open_time DESC LIMIT ?
	) ORDER BY open_time ASC`

	rows, err := r.db.QueryContext(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query candles for symbol %s: %w", symbol, err)
	}
	defer rows.Close()

	candles := make([]*domain.Candle, 0)
	for rows.Next() {
		c := &domain.Candle{}
		if err := rows.Scan(&c.Symbol, &c.Interval, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &c.OpenTime); err != nil {
			return nil, fmt.Errorf("failed to scan candle during FindBySymbol: %w", err)
		}
		candles = append(candles, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating candle rows: %w", err)
	}
	return candles, nil
}

// --- Helper Scan Functions ---

const selectTrade = `
	SELECT id, user_id, symbol, direction, stake, duration_seconds, multiplier,
	       entry_price, COALESCE(exit_price, 0), started_at, expires_at, settled_at,
	       status, potential_payout, COALESCE(payout_amount, 0),
	       forced_outcome, forced_by_admin_id
	FROM trades`

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanTrade scans a row into a domain.Trade struct.
func scanTrade(s scanner) (*domain.Trade, error) {
	t := &domain.Trade{}
	var settledAt sql.NullTime
	var status, direction string
	var forcedOutcome, forcedBy sql.NullString
	err := s.Scan(
		&t.ID, &t.UserID, &t.Symbol, &direction, &t.Stake, &t.DurationSeconds, &t.Multiplier,
		&t.EntryPrice, &t.ExitPrice, &t.StartedAt, &t.ExpiresAt, &settledAt,
		&status, &t.PotentialPayout, &t.PayoutAmount,
		&forcedOutcome, &forcedBy)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	t.Direction = domain.Direction(direction)
	t.Status = domain.TradeStatus(status)
	if settledAt.Valid {
		t.SettledAt = settledAt.Time
	}
	if forcedOutcome.Valid {
		t.ForcedOutcome = domain.TradeStatus(forcedOutcome.String)
	}
	if forcedBy.Valid {
		t.ForcedByAdminID = forcedBy.String
	}
	return t, nil
}

func collectTrades(rows *sql.Rows) ([]*domain.Trade, error) {
	trades := make([]*domain.Trade, 0)
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade row: %w", err)
		}
		trades = append(trades, trade)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w", err)
	}
	return trades, nil
}
