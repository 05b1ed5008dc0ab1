package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"quickTrade/internal/engine"
	"quickTrade/internal/events"
	"quickTrade/internal/ports"
)

// Server exposes the REST surface and the WebSocket event channel.
type Server struct {
	logger      ports.Logger
	engine      *engine.Engine
	instruments ports.InstrumentStore
	ledger      ports.BalanceLedger
	candles     ports.CandleRepository
	bus         *events.Bus
	identity    ports.Identity
	router      *mux.Router
	corsOrigins []string
}

const httpShutdownTimeout = 5 * time.Second

// Config holds dependencies for the HTTP server.
type Config struct {
	Logger      ports.Logger
	Engine      *engine.Engine
	Instruments ports.InstrumentStore
	Ledger      ports.BalanceLedger
	Candles     ports.CandleRepository
	Bus         *events.Bus
	Identity    ports.Identity
	CORSOrigins []string
}

// New creates the server and wires its routes.
func New(cfg Config) (*Server, error) {
	if cfg.Logger == nil || cfg.Engine == nil || cfg.Instruments == nil ||
		cfg.Ledger == nil || cfg.Candles == nil || cfg.Bus == nil || cfg.Identity == nil {
		return nil, fmt.Errorf("missing required dependencies for server")
	}

	s := &Server{
		logger:      cfg.Logger,
		engine:      cfg.Engine,
		instruments: cfg.Instruments,
		ledger:      cfg.Ledger,
		candles:     cfg.Candles,
		bus:         cfg.Bus,
		identity:    cfg.Identity,
		router:      mux.NewRouter(),
		corsOrigins: cfg.CORSOrigins,
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Instrument endpoints (authenticated, non-admin)
	api.Handle("/instruments", s.withAuth(s.handleListInstruments)).Methods("GET")
	api.Handle("/instruments/{symbol}", s.withAuth(s.handleGetInstrument)).Methods("GET")
	api.Handle("/instruments/{symbol}/candles", s.withAuth(s.handleGetCandles)).Methods("GET")

	// Trade endpoints
	api.Handle("/trades", s.withAuth(s.handleCreateTrade)).Methods("POST")
	api.Handle("/trades", s.withAuth(s.handleListTrades)).Methods("GET")
	api.Handle("/trades/{id}", s.withAuth(s.handleGetTrade)).Methods("GET")

	// Balance
	api.Handle("/balance", s.withAuth(s.handleGetBalance)).Methods("GET")

	// Admin endpoints: capability checked up front, never inferred from the
	// request shape inside a handler.
	api.Handle("/admin/trades/{id}", s.withAdmin(s.handleForceOutcome)).Methods("PATCH")

	// Event channel
	s.router.Handle("/ws", s.withAuth(s.handleWebSocket))

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-User-ID"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{Addr: addr, Handler: s.Handler()}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "HTTP server listening", map[string]interface{}{"addr": addr})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
		s.logger.Info(ctx, "Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}

// --- Middleware ---

type authedHandler func(w http.ResponseWriter, r *http.Request, principal ports.Principal)

// withAuth resolves the principal via the identity collaborator before any
// handler logic runs.
func (s *Server) withAuth(next authedHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := s.identity.Authenticate(r)
		if err != nil {
			s.respondError(w, r, http.StatusUnauthorized, codeUnauthorized, "authentication required")
			return
		}
		next(w, r, principal)
	})
}

// withAdmin additionally requires the admin capability.
func (s *Server) withAdmin(next authedHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := s.identity.Authenticate(r)
		if err != nil {
			s.respondError(w, r, http.StatusUnauthorized, codeUnauthorized, "authentication required")
			return
		}
		if !principal.IsAdmin {
			s.respondError(w, r, http.StatusForbidden, codeForbidden, "admin capability required")
			return
		}
		next(w, r, principal)
	})
}

// --- Response helpers ---

// Stable error codes surfaced to clients alongside a human-readable message.
const (
	codeValidation        = "validation_error"
	codeInsufficientFunds = "insufficient_funds"
	codeNotFound          = "not_found"
	codeConflict          = "conflict"
	codeUnauthorized      = "unauthorized"
	codeForbidden         = "forbidden"
	codeInternal          = "internal_error"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	s.respondJSON(w, status, errorResponse{Error: errorBody{Code: code, Message: message}})
}

// respondDomainError maps the ports error taxonomy onto HTTP statuses.
func (s *Server) respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ports.ErrInvalidRequest):
		s.respondError(w, r, http.StatusBadRequest, codeValidation, err.Error())
	case errors.Is(err, ports.ErrInsufficientFunds):
		s.respondError(w, r, http.StatusPaymentRequired, codeInsufficientFunds, "balance cannot cover the stake")
	case errors.Is(err, ports.ErrNotFound):
		s.respondError(w, r, http.StatusNotFound, codeNotFound, "resource not found")
	case errors.Is(err, ports.ErrAlreadySettled):
		s.respondError(w, r, http.StatusConflict, codeConflict, "trade is already settled")
	case errors.Is(err, ports.ErrPermissionDenied):
		s.respondError(w, r, http.StatusForbidden, codeForbidden, "permission denied")
	default:
		s.logger.Error(r.Context(), err, "Unhandled error in request", map[string]interface{}{
			"method": r.Method,
			"path":   r.URL.Path,
		})
		s.respondError(w, r, http.StatusInternalServerError, codeInternal, "internal error")
	}
}
