package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/0xmhha/duelwatch/internal/logger"
	"github.com/0xmhha/duelwatch/pkg/duel"
	"github.com/0xmhha/duelwatch/pkg/service"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ErrorResponse is the body of every non-2xx answer
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status           string         `json:"status"`
	Timestamp        string         `json:"timestamp"`
	Bus              *BusHealthInfo `json:"bus,omitempty"`
	WebSocketClients *int           `json:"websocketClients,omitempty"`
}

// BusHealthInfo contains notification bus counters
type BusHealthInfo struct {
	Subscribers int    `json:"subscribers"`
	Published   uint64 `json:"published"`
	Delivered   uint64 `json:"delivered"`
	Dropped     uint64 `json:"dropped"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, ErrorResponse{Error: msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if bus := s.opts.Bus; bus != nil {
		published, delivered, dropped := bus.Stats()
		response.Bus = &BusHealthInfo{
			Subscribers: bus.SubscriberCount(),
			Published:   published,
			Delivered:   delivered,
			Dropped:     dropped,
		}
	}
	if s.wsServer != nil {
		n := s.wsServer.Hub().ClientCount()
		response.WebSocketClients = &n
	}

	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"name":    "duelwatch",
		"version": s.config.Version,
	})
}

// addressParam reads and validates the {address} path parameter
func addressParam(r *http.Request) (common.Address, bool) {
	raw := chi.URLParam(r, "address")
	if !common.IsHexAddress(raw) {
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

// intQuery reads a non-negative integer query parameter; absent means 0
func intQuery(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return v, nil
}

func (s *Server) handleWalletStats(w http.ResponseWriter, r *http.Request) {
	address, ok := addressParam(r)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "invalid address")
		return
	}

	stats, err := s.queries.WalletStats(r.Context(), address)
	if err != nil {
		s.queryFailed(w, r, "wallet stats", err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleDuelHistory(w http.ResponseWriter, r *http.Request) {
	address, ok := addressParam(r)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "invalid address")
		return
	}
	limit, err := intQuery(r, "limit")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, err := intQuery(r, "page")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	history, err := s.queries.DuelHistory(r.Context(), address, limit, page)
	if err != nil {
		s.queryFailed(w, r, "duel history", err)
		return
	}
	if history.Duels == nil {
		history.Duels = []duel.Duel{}
	}
	s.writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleLiveFeed(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	duels, err := s.queries.LiveFeed(r.Context(), limit)
	if err != nil {
		s.queryFailed(w, r, "live feed", err)
		return
	}
	if duels == nil {
		duels = []duel.Duel{}
	}
	s.writeJSON(w, http.StatusOK, duels)
}

func (s *Server) handleDuelTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := s.queries.DuelTransactions(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, service.ErrInvalidDuelID) {
		s.writeError(w, http.StatusBadRequest, "invalid duel id")
		return
	}
	if err != nil {
		s.queryFailed(w, r, "duel transactions", err)
		return
	}
	if txs == nil {
		txs = []duel.Transaction{}
	}
	s.writeJSON(w, http.StatusOK, txs)
}

func (s *Server) handleEcosystem(w http.ResponseWriter, r *http.Request) {
	stats, err := s.queries.Ecosystem(r.Context())
	if errors.Is(err, service.ErrNoEscrow) {
		s.writeError(w, http.StatusNotFound, "no escrow contract configured")
		return
	}
	if err != nil {
		s.queryFailed(w, r, "ecosystem", err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) queryFailed(w http.ResponseWriter, r *http.Request, what string, err error) {
	logger.FromContext(r.Context()).Error("query failed", zap.String("query", what), zap.Error(err))
	s.writeError(w, http.StatusInternalServerError, what+" unavailable")
}
