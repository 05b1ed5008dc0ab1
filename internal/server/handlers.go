package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"quickTrade/internal/domain"
	"quickTrade/internal/engine"
	"quickTrade/internal/ports"
)

const (
	defaultCandleLimit = 120
	maxCandleLimit     = 1000
)

// --- Instruments ---

func (s *Server) handleListInstruments(w http.ResponseWriter, r *http.Request, _ ports.Principal) {
	s.respondJSON(w, http.StatusOK, s.instruments.List())
}

func (s *Server) handleGetInstrument(w http.ResponseWriter, r *http.Request, _ ports.Principal) {
	symbol := mux.Vars(r)["symbol"]
	inst, err := s.instruments.Get(symbol)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, inst)
}

func (s *Server) handleGetCandles(w http.ResponseWriter, r *http.Request, _ ports.Principal) {
	symbol := mux.Vars(r)["symbol"]
	if _, err := s.instruments.Get(symbol); err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	limit := defaultCandleLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxCandleLimit {
			s.respondError(w, r, http.StatusBadRequest, codeValidation, "limit must be a positive integer up to 1000")
			return
		}
		limit = parsed
	}

	candles, err := s.candles.FindBySymbol(r.Context(), symbol, limit)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, candles)
}

// --- Trades ---

type createTradeRequest struct {
	Symbol          string `json:"symbol"`
	Direction       string `json:"direction"`
	Stake           int64  `json:"stake"`
	DurationSeconds int    `json:"durationSeconds"`
}

func (s *Server) handleCreateTrade(w http.ResponseWriter, r *http.Request, principal ports.Principal) {
	var req createTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, http.StatusBadRequest, codeValidation, "invalid request payload")
		return
	}

	trade, err := s.engine.CreateTrade(r.Context(), principal.UserID, engine.CreateTradeRequest{
		Symbol:          req.Symbol,
		Direction:       domain.Direction(req.Direction),
		Stake:           req.Stake,
		DurationSeconds: req.DurationSeconds,
	})
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, trade)
}

func (s *Server) handleListTrades(w http.ResponseWriter, r *http.Request, principal ports.Principal) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}
	trades, err := s.engine.ListUserTrades(r.Context(), principal.UserID, limit)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, trades)
}

func (s *Server) handleGetTrade(w http.ResponseWriter, r *http.Request, principal ports.Principal) {
	trade, err := s.engine.GetTrade(r.Context(), principal, mux.Vars(r)["id"])
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, trade)
}

// --- Admin ---

type forceOutcomeRequest struct {
	// ForcedOutcome is "won", "lost", or null to clear a previous override.
	ForcedOutcome *string `json:"forcedOutcome"`
}

func (s *Server) handleForceOutcome(w http.ResponseWriter, r *http.Request, principal ports.Principal) {
	var req forceOutcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, http.StatusBadRequest, codeValidation, "invalid request payload")
		return
	}

	var outcome domain.TradeStatus
	if req.ForcedOutcome != nil {
		outcome = domain.TradeStatus(*req.ForcedOutcome)
	}

	trade, err := s.engine.ForceOutcome(r.Context(), principal.UserID, mux.Vars(r)["id"], outcome)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, trade)
}

// --- Balance ---

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request, principal ports.Principal) {
	balance, err := s.ledger.GetBalance(r.Context(), principal.UserID)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"userId":  principal.UserID,
		"balance": balance,
	})
}

// --- Health ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
