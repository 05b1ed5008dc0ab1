package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quickTrade/internal/domain"
	"quickTrade/internal/ports"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func setupTestRepo(t *testing.T) *Repository {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	repo, err := NewRepository(Config{DBPath: dbPath, Logger: &mockLogger{}})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func sampleTrade(id string) *domain.Trade {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	return &domain.Trade{
		ID:              id,
		UserID:          "alice",
		Symbol:          "BTCUSDT",
		Direction:       domain.DirectionUp,
		Stake:           1000,
		DurationSeconds: 300,
		Multiplier:      2.6,
		EntryPrice:      65000,
		StartedAt:       now,
		ExpiresAt:       now.Add(300 * time.Second),
		Status:          domain.StatusActive,
		PotentialPayout: 2600,
	}
}

func TestTrade_CreateAndFindByID(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, sampleTrade("t1")))

	found, err := repo.FindByID(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "alice", found.UserID)
	assert.Equal(t, domain.DirectionUp, found.Direction)
	assert.Equal(t, int64(1000), found.Stake)
	assert.Equal(t, 2.6, found.Multiplier)
	assert.Equal(t, 65000.0, found.EntryPrice)
	assert.Equal(t, domain.StatusActive, found.Status)
	assert.Equal(t, int64(2600), found.PotentialPayout)
	assert.Zero(t, found.ExitPrice)
	assert.Empty(t, found.ForcedOutcome)
}

func TestTrade_FindByIDMissingReturnsNil(t *testing.T) {
	repo := setupTestRepo(t)

	found, err := repo.FindByID(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestTrade_FindByUserOrderAndLimit(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		trade := sampleTrade(fmt.Sprintf("t%d", i))
		trade.StartedAt = trade.StartedAt.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.Create(ctx, trade))
	}
	other := sampleTrade("other")
	other.UserID = "bob"
	require.NoError(t, repo.Create(ctx, other))

	trades, err := repo.FindByUser(ctx, "alice", 3)
	require.NoError(t, err)
	require.Len(t, trades, 3)
	assert.Equal(t, "t4", trades[0].ID, "most recent first")
	assert.Equal(t, "t3", trades[1].ID)
	assert.Equal(t, "t2", trades[2].ID)
}

func TestTrade_FindActive(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	early := sampleTrade("early")
	late := sampleTrade("late")
	late.ExpiresAt = late.ExpiresAt.Add(time.Hour)
	settled := sampleTrade("settled")
	require.NoError(t, repo.Create(ctx, late))
	require.NoError(t, repo.Create(ctx, early))
	require.NoError(t, repo.Create(ctx, settled))
	require.NoError(t, repo.Settle(ctx, "settled", domain.StatusLost, 64000, 0, time.Now().UTC()))

	active, err := repo.FindActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "early", active[0].ID, "ordered by expiry")
	assert.Equal(t, "late", active[1].ID)
}

func TestTrade_SettleTransitionsOnce(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, sampleTrade("t1")))

	settledAt := time.Date(2024, 6, 1, 12, 5, 0, 0, time.UTC)
	require.NoError(t, repo.Settle(ctx, "t1", domain.StatusWon, 66000, 2600, settledAt))

	found, err := repo.FindByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusWon, found.Status)
	assert.Equal(t, 66000.0, found.ExitPrice)
	assert.Equal(t, int64(2600), found.PayoutAmount)
	assert.True(t, found.SettledAt.Equal(settledAt))

	// Second settlement attempt must be rejected, regardless of outcome.
	err = repo.Settle(ctx, "t1", domain.StatusLost, 60000, 0, time.Now().UTC())
	assert.True(t, errors.Is(err, ports.ErrAlreadySettled))

	// The record keeps the first transition.
	found, err = repo.FindByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusWon, found.Status)
	assert.Equal(t, 66000.0, found.ExitPrice)
}

func TestTrade_SettleLostStoresNoPayout(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, sampleTrade("t1")))

	require.NoError(t, repo.Settle(ctx, "t1", domain.StatusLost, 64000, 0, time.Now().UTC()))

	found, err := repo.FindByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusLost, found.Status)
	assert.Equal(t, int64(0), found.PayoutAmount)
}

func TestTrade_SettleUnknownTrade(t *testing.T) {
	repo := setupTestRepo(t)

	err := repo.Settle(context.Background(), "ghost", domain.StatusWon, 1, 1, time.Now().UTC())
	assert.True(t, errors.Is(err, ports.ErrNotFound))
}

func TestTrade_SetForcedOutcome(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, sampleTrade("t1")))

	require.NoError(t, repo.SetForcedOutcome(ctx, "t1", domain.StatusWon, "ops"))

	found, err := repo.FindByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusWon, found.ForcedOutcome)
	assert.Equal(t, "ops", found.ForcedByAdminID)

	// Clearing the override nulls both columns.
	require.NoError(t, repo.SetForcedOutcome(ctx, "t1", "", "ops"))
	found, err = repo.FindByID(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, found.ForcedOutcome)
	assert.Empty(t, found.ForcedByAdminID)
}

func TestTrade_SetForcedOutcomeOnTerminalConflicts(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, sampleTrade("t1")))
	require.NoError(t, repo.Settle(ctx, "t1", domain.StatusLost, 64000, 0, time.Now().UTC()))

	err := repo.SetForcedOutcome(ctx, "t1", domain.StatusWon, "ops")
	assert.True(t, errors.Is(err, ports.ErrAlreadySettled))
}

func TestTrade_SetForcedOutcomeUnknownTrade(t *testing.T) {
	repo := setupTestRepo(t)

	err := repo.SetForcedOutcome(context.Background(), "ghost", domain.StatusWon, "ops")
	assert.True(t, errors.Is(err, ports.ErrNotFound))
}

func TestAccount_FindMissingReturnsNil(t *testing.T) {
	repo := setupTestRepo(t)

	account, err := repo.Find(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, account)
}

func TestAccount_UpsertCreatesAndUpdates(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Upsert(ctx, &domain.Account{UserID: "alice", Balance: 1000, UpdatedAt: now}))

	account, err := repo.Find(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, account)
	assert.Equal(t, int64(1000), account.Balance)

	require.NoError(t, repo.Upsert(ctx, &domain.Account{UserID: "alice", Balance: 750, UpdatedAt: now.Add(time.Minute)}))

	account, err = repo.Find(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(750), account.Balance)
}

func TestCandle_AppendAndFindBySymbol(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Append(ctx, &domain.Candle{
			Symbol:   "BTCUSDT",
			Interval: "1s",
			Open:     65000 + float64(i),
			High:     65010 + float64(i),
			Low:      64990 + float64(i),
			Close:    65005 + float64(i),
			Volume:   100,
			OpenTime: base.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, repo.Append(ctx, &domain.Candle{
		Symbol: "ETHUSDT", Interval: "1s", Open: 1, High: 1, Low: 1, Close: 1, Volume: 1, OpenTime: base,
	}))

	// The latest 3 for the symbol, returned oldest first.
	candles, err := repo.FindBySymbol(ctx, "BTCUSDT", 3)
	require.NoError(t, err)
	require.Len(t, candles, 3)
	assert.Equal(t, 65002.0, candles[0].Open)
	assert.Equal(t, 65004.0, candles[2].Open)
	assert.True(t, candles[0].OpenTime.Before(candles[1].OpenTime))
}

func TestCandle_FindBySymbolEmpty(t *testing.T) {
	repo := setupTestRepo(t)

	candles, err := repo.FindBySymbol(context.Background(), "NOPE", 10)
	require.NoError(t, err)
	assert.Empty(t, candles)
}
