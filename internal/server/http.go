// Package server exposes the read side over HTTP/JSON. Writes enter
// through the command stream, never through HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"perpcore/internal/errs"
	"perpcore/internal/query"
)

type Server struct {
	queries *query.Service
	log     zerolog.Logger
	http    *http.Server
}

func New(addr string, queries *query.Service, log zerolog.Logger) *Server {
	s := &Server{queries: queries, log: log}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/users/{id}", s.handleUser)
		r.Get("/users/{id}/liquidations", s.handleLiquidations)
		r.Get("/pools/{id}", s.handlePool)
		r.Get("/markets/{symbol}", s.handleMarket)
		r.Get("/markets/{symbol}/funding", s.handleFundingRates)
	})

	return r
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// ListenAndServe blocks until the listener fails or Shutdown runs.
func (s *Server) ListenAndServe() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server listening")
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "bad user id")
		return
	}
	sum, err := s.queries.UserSummary(id)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleLiquidations(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "bad user id")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := s.queries.LiquidationHistory(r.Context(), id, limit)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, records)
}

func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	sum, err := s.queries.PoolSummary(chi.URLParam(r, "id"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	sum, err := s.queries.MarketSummary(chi.URLParam(r, "symbol"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleFundingRates(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	s.writeJSON(w, http.StatusOK, s.queries.FundingRates(chi.URLParam(r, "symbol"), limit))
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Debug().Err(err).Msg("response encode failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

// writeEngineError maps stable engine error codes onto HTTP statuses.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errs.ErrUserNotFound),
		errors.Is(err, errs.ErrPoolNotFound),
		errors.Is(err, errs.ErrMarketNotFound),
		errors.Is(err, errs.ErrTradeTokenNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errs.ErrInvalidParam):
		status = http.StatusBadRequest
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error(), Code: errs.CodeOf(err).String()})
}
