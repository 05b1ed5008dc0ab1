package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quickTrade/internal/domain"
	"quickTrade/internal/engine"
	"quickTrade/internal/events"
	"quickTrade/internal/instruments"
	"quickTrade/internal/ledger"
	"quickTrade/internal/ports"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// stubIdentity authenticates from X-User-ID and grants admin when the
// X-Admin header is set, standing in for the token-based adapter.
type stubIdentity struct{}

func (s *stubIdentity) Authenticate(r *http.Request) (ports.Principal, error) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		return ports.Principal{}, fmt.Errorf("missing user: %w", ports.ErrPermissionDenied)
	}
	return ports.Principal{UserID: userID, IsAdmin: r.Header.Get("X-Admin") == "1"}, nil
}

type memTrades struct {
	mu     sync.Mutex
	trades map[string]*domain.Trade
}

func newMemTrades() *memTrades {
	return &memTrades{trades: make(map[string]*domain.Trade)}
}

func (m *memTrades) Create(ctx context.Context, trade *domain.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *trade
	m.trades[trade.ID] = &cp
	return nil
}

func (m *memTrades) FindByID(ctx context.Context, id string) (*domain.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	trade, ok := m.trades[id]
	if !ok {
		return nil, nil
	}
	cp := *trade
	return &cp, nil
}

func (m *memTrades) FindByUser(ctx context.Context, userID string, limit int) ([]*domain.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Trade, 0)
	for _, trade := range m.trades {
		if trade.UserID == userID {
			cp := *trade
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memTrades) FindActive(ctx context.Context) ([]*domain.Trade, error) { return nil, nil }

func (m *memTrades) Settle(ctx context.Context, id string, status domain.TradeStatus, exitPrice float64, payout int64, settledAt time.Time) error {
	return nil
}

func (m *memTrades) SetForcedOutcome(ctx context.Context, id string, outcome domain.TradeStatus, adminID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	trade, ok := m.trades[id]
	if !ok {
		return fmt.Errorf("trade %s: %w", id, ports.ErrNotFound)
	}
	if !trade.IsActive() {
		return fmt.Errorf("trade %s: %w", id, ports.ErrAlreadySettled)
	}
	trade.ForcedOutcome = outcome
	trade.ForcedByAdminID = adminID
	return nil
}

type memAccounts struct {
	mu       sync.Mutex
	accounts map[string]*domain.Account
}

func newMemAccounts() *memAccounts {
	return &memAccounts{accounts: make(map[string]*domain.Account)}
}

func (m *memAccounts) Find(ctx context.Context, userID string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[userID]
	if !ok {
		return nil, nil
	}
	cp := *account
	return &cp, nil
}

func (m *memAccounts) Upsert(ctx context.Context, account *domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *account
	m.accounts[account.UserID] = &cp
	return nil
}

type memCandles struct{}

func (m *memCandles) Append(ctx context.Context, candle *domain.Candle) error { return nil }

func (m *memCandles) FindBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.Candle, error) {
	return []*domain.Candle{}, nil
}

type noopScheduler struct{}

func (n *noopScheduler) Schedule(trade *domain.Trade) {}

type noopNotifier struct{}

func (n *noopNotifier) Notify(ctx context.Context, userID, title, body, category, relatedID string) {}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := &mockLogger{}
	bus := events.NewBus()

	store, err := instruments.NewStore(instruments.Config{
		Logger: logger,
		Bus:    bus,
		Seeds: []instruments.Seed{
			{Symbol: "BTCUSDT", Name: "Bitcoin", Category: domain.CategoryCrypto, InitialPrice: 65000},
		},
	})
	require.NoError(t, err)

	bl, err := ledger.New(ledger.Config{
		Logger:          logger,
		Accounts:        newMemAccounts(),
		Bus:             bus,
		StartingBalance: 10_000,
	})
	require.NoError(t, err)

	eng, err := engine.New(engine.Config{
		Logger:      logger,
		Instruments: store,
		Ledger:      bl,
		Trades:      newMemTrades(),
		Scheduler:   &noopScheduler{},
		Bus:         bus,
		Notifier:    &noopNotifier{},
		MinStake:    100,
		MaxStake:    1_000_000,
		Multipliers: map[int]float64{90: 1.8, 120: 1.8, 300: 2.6},
	})
	require.NoError(t, err)

	srv, err := New(Config{
		Logger:      logger,
		Engine:      eng,
		Instruments: store,
		Ledger:      bl,
		Candles:     &memCandles{},
		Bus:         bus,
		Identity:    &stubIdentity{},
		CORSOrigins: []string{"*"},
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func doRequest(t *testing.T, ts *httptest.Server, method, path, userID string, admin bool, body interface{}) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	require.NoError(t, err)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	if admin {
		req.Header.Set("X-Admin", "1")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out bytes.Buffer
	_, err = out.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, out.Bytes()
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var parsed struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(body, &parsed))
	return parsed.Error.Code
}

func TestServer_Health(t *testing.T) {
	ts := newTestServer(t)

	resp, body := doRequest(t, ts, "GET", "/health", "", false, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestServer_RequiresAuthentication(t *testing.T) {
	ts := newTestServer(t)

	resp, body := doRequest(t, ts, "GET", "/api/v1/instruments", "", false, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthorized", errorCode(t, body))
}

func TestServer_ListInstruments(t *testing.T) {
	ts := newTestServer(t)

	resp, body := doRequest(t, ts, "GET", "/api/v1/instruments", "alice", false, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list []domain.Instrument
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "BTCUSDT", list[0].Symbol)
	assert.Equal(t, 65000.0, list[0].CurrentPrice)
}

func TestServer_GetUnknownInstrument(t *testing.T) {
	ts := newTestServer(t)

	resp, body := doRequest(t, ts, "GET", "/api/v1/instruments/NOPE", "alice", false, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", errorCode(t, body))
}

func TestServer_CandleLimitValidation(t *testing.T) {
	ts := newTestServer(t)

	resp, body := doRequest(t, ts, "GET", "/api/v1/instruments/BTCUSDT/candles?limit=5000", "alice", false, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation_error", errorCode(t, body))
}

func TestServer_CreateTradeLifecycle(t *testing.T) {
	ts := newTestServer(t)

	resp, body := doRequest(t, ts, "POST", "/api/v1/trades", "alice", false, map[string]interface{}{
		"symbol":          "BTCUSDT",
		"direction":       "up",
		"stake":           1000,
		"durationSeconds": 300,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var trade domain.Trade
	require.NoError(t, json.Unmarshal(body, &trade))
	assert.NotEmpty(t, trade.ID)
	assert.Equal(t, "alice", trade.UserID)
	assert.Equal(t, int64(2600), trade.PotentialPayout)
	assert.Equal(t, domain.StatusActive, trade.Status)

	// Stake is debited.
	resp, body = doRequest(t, ts, "GET", "/api/v1/balance", "alice", false, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var balance struct {
		UserID  string `json:"userId"`
		Balance int64  `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(body, &balance))
	assert.Equal(t, int64(9000), balance.Balance)

	// Owner can read the trade back.
	resp, body = doRequest(t, ts, "GET", "/api/v1/trades/"+trade.ID, "alice", false, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Another user cannot.
	resp, body = doRequest(t, ts, "GET", "/api/v1/trades/"+trade.ID, "bob", false, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", errorCode(t, body))

	// It shows up in the owner's listing.
	resp, body = doRequest(t, ts, "GET", "/api/v1/trades", "alice", false, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var trades []domain.Trade
	require.NoError(t, json.Unmarshal(body, &trades))
	require.Len(t, trades, 1)
}

func TestServer_CreateTradeValidation(t *testing.T) {
	ts := newTestServer(t)

	resp, body := doRequest(t, ts, "POST", "/api/v1/trades", "alice", false, map[string]interface{}{
		"symbol":          "BTCUSDT",
		"direction":       "sideways",
		"stake":           1000,
		"durationSeconds": 300,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation_error", errorCode(t, body))
}

func TestServer_CreateTradeInsufficientFunds(t *testing.T) {
	ts := newTestServer(t)

	resp, body := doRequest(t, ts, "POST", "/api/v1/trades", "alice", false, map[string]interface{}{
		"symbol":          "BTCUSDT",
		"direction":       "up",
		"stake":           20_000,
		"durationSeconds": 90,
	})
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	assert.Equal(t, "insufficient_funds", errorCode(t, body))
}

func TestServer_CreateTradeUnknownSymbol(t *testing.T) {
	ts := newTestServer(t)

	resp, body := doRequest(t, ts, "POST", "/api/v1/trades", "alice", false, map[string]interface{}{
		"symbol":          "NOPE",
		"direction":       "up",
		"stake":           1000,
		"durationSeconds": 90,
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", errorCode(t, body))
}

func TestServer_AdminOverride(t *testing.T) {
	ts := newTestServer(t)

	_, body := doRequest(t, ts, "POST", "/api/v1/trades", "alice", false, map[string]interface{}{
		"symbol":          "BTCUSDT",
		"direction":       "up",
		"stake":           1000,
		"durationSeconds": 90,
	})
	var trade domain.Trade
	require.NoError(t, json.Unmarshal(body, &trade))

	// Non-admin callers are rejected before any handler logic.
	resp, body := doRequest(t, ts, "PATCH", "/api/v1/admin/trades/"+trade.ID, "alice", false, map[string]interface{}{
		"forcedOutcome": "won",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "forbidden", errorCode(t, body))

	// Admin sets the override.
	resp, body = doRequest(t, ts, "PATCH", "/api/v1/admin/trades/"+trade.ID, "ops", true, map[string]interface{}{
		"forcedOutcome": "won",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updated domain.Trade
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Equal(t, domain.StatusWon, updated.ForcedOutcome)
	assert.Equal(t, "ops", updated.ForcedByAdminID)
	assert.Equal(t, domain.StatusActive, updated.Status, "override annotates, it does not settle")

	// Null clears the override.
	resp, body = doRequest(t, ts, "PATCH", "/api/v1/admin/trades/"+trade.ID, "ops", true, map[string]interface{}{
		"forcedOutcome": nil,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Empty(t, updated.ForcedOutcome)

	// Unknown trade maps to 404.
	resp, body = doRequest(t, ts, "PATCH", "/api/v1/admin/trades/ghost", "ops", true, map[string]interface{}{
		"forcedOutcome": "lost",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", errorCode(t, body))
}

func TestServer_BalanceStartsAtConfiguredValue(t *testing.T) {
	ts := newTestServer(t)

	resp, body := doRequest(t, ts, "GET", "/api/v1/balance", "fresh-user", false, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var balance struct {
		Balance int64 `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(body, &balance))
	assert.Equal(t, int64(10_000), balance.Balance)
}
