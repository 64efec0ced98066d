// Package handlers provides HTTP handlers for the position book.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/swingsentinel/internal/domain"
	"github.com/aristath/swingsentinel/internal/modules/portfolio"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// SecurityLookup resolves security metadata for new positions.
type SecurityLookup interface {
	GetByTicker(ctx context.Context, ticker string) (*domain.Security, error)
}

// ExpectancyRebuilder is notified when the closed book changes.
type ExpectancyRebuilder interface {
	Rebuild(ctx context.Context) ([]domain.ExpectancySlice, error)
}

// Handler handles position HTTP requests
type Handler struct {
	positions  *portfolio.PositionRepository
	securities SecurityLookup
	expectancy ExpectancyRebuilder
	log        zerolog.Logger
}

// NewHandler creates a new position handler. expectancy may be nil.
func NewHandler(
	positions *portfolio.PositionRepository,
	securities SecurityLookup,
	expectancy ExpectancyRebuilder,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		positions:  positions,
		securities: securities,
		expectancy: expectancy,
		log:        log.With().Str("handler", "portfolio").Logger(),
	}
}

// OpenRequest is the body of POST /api/positions. Sleeve, sector, cluster and
// currency default to the security's metadata.
type OpenRequest struct {
	Ticker        string              `json:"ticker"`
	Sleeve        domain.Sleeve       `json:"sleeve"`
	Sector        string              `json:"sector"`
	Cluster       string              `json:"cluster"`
	Currency      string              `json:"currency"`
	EntryPrice    float64             `json:"entry_price"`
	Shares        float64             `json:"shares"`
	Stop          float64             `json:"stop"`
	EntryDate     *time.Time          `json:"entry_date"`
	ATRPctAtEntry float64             `json:"atr_pct_at_entry"`
	RegimeAtEntry domain.MarketRegime `json:"regime_at_entry"`
}

// CloseRequest is the body of POST /api/positions/{id}/close.
type CloseRequest struct {
	ExitPrice float64 `json:"exit_price"`
}

// HandleList handles GET /api/positions?status=open|closed|all
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	var (
		positions []domain.Position
		err       error
	)
	switch strings.ToLower(r.URL.Query().Get("status")) {
	case "", "open":
		positions, err = h.positions.GetOpen(r.Context())
	case "closed":
		positions, err = h.positions.GetClosed(r.Context())
	case "all":
		positions, err = h.positions.GetAll(r.Context())
	default:
		h.writeError(w, http.StatusBadRequest, "status must be open, closed or all")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list positions")
		h.writeError(w, http.StatusInternalServerError, "failed to list positions")
		return
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	h.writeJSON(w, http.StatusOK, positions)
}

// HandleGet handles GET /api/positions/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.positionID(w, r)
	if !ok {
		return
	}
	p, err := h.positions.GetByID(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"position":     p,
		"r_multiple":   p.RMultiple(p.LastPrice),
		"market_value": p.MarketValue(),
		"open_risk":    p.OpenRisk(),
	})
}

// HandleOpen handles POST /api/positions
func (h *Handler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	var req OpenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Ticker = strings.ToUpper(strings.TrimSpace(req.Ticker))
	if req.Ticker == "" {
		h.writeError(w, http.StatusBadRequest, "ticker is required")
		return
	}
	if req.Stop <= 0 || req.Stop >= req.EntryPrice {
		h.writeError(w, http.StatusBadRequest, "stop must be positive and below the entry price")
		return
	}

	if err := h.fillFromSecurity(r.Context(), &req); err != nil {
		h.log.Error().Err(err).Str("ticker", req.Ticker).Msg("Failed to read security")
		h.writeError(w, http.StatusInternalServerError, "failed to read security")
		return
	}

	p := domain.Position{
		Ticker:        req.Ticker,
		Sleeve:        req.Sleeve,
		Sector:        req.Sector,
		Cluster:       req.Cluster,
		Currency:      req.Currency,
		EntryPrice:    req.EntryPrice,
		Shares:        req.Shares,
		EntryRisk:     req.EntryPrice - req.Stop,
		Protection:    domain.ProtectionState{Level: domain.LevelInitial, Stop: req.Stop},
		LastPrice:     req.EntryPrice,
		ATRPctAtEntry: req.ATRPctAtEntry,
		RegimeAtEntry: req.RegimeAtEntry,
	}
	if req.EntryDate != nil {
		p.EntryDate = *req.EntryDate
	}

	id, err := h.positions.Create(r.Context(), p)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	created, err := h.positions.GetByID(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, created)
}

// HandleClose handles POST /api/positions/{id}/close. The expectancy table is
// rebuilt afterwards; a failed rebuild does not undo the close.
func (h *Handler) HandleClose(w http.ResponseWriter, r *http.Request) {
	id, ok := h.positionID(w, r)
	if !ok {
		return
	}
	var req CloseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.positions.Close(r.Context(), id, req.ExitPrice); err != nil {
		h.writeStoreError(w, err)
		return
	}
	if h.expectancy != nil {
		if _, err := h.expectancy.Rebuild(r.Context()); err != nil {
			h.log.Warn().Err(err).Int64("position_id", id).Msg("Expectancy rebuild after close failed")
		}
	}

	closed, err := h.positions.GetByID(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, closed)
}

// RegisterRoutes registers all position routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/positions", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleOpen)
		r.Get("/{id}", h.HandleGet)
		r.Post("/{id}/close", h.HandleClose)
	})
}

func (h *Handler) fillFromSecurity(ctx context.Context, req *OpenRequest) error {
	if h.securities == nil {
		return nil
	}
	sec, err := h.securities.GetByTicker(ctx, req.Ticker)
	if err != nil || sec == nil {
		return err
	}
	if req.Sleeve == "" {
		req.Sleeve = sec.Sleeve
	}
	if req.Sector == "" {
		req.Sector = sec.Sector
	}
	if req.Cluster == "" {
		req.Cluster = sec.Cluster
	}
	if req.Currency == "" {
		req.Currency = sec.Currency
	}
	return nil
}

func (h *Handler) positionID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, http.StatusBadRequest, "invalid position id")
		return 0, false
	}
	return id, true
}

func (h *Handler) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrPositionNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case domain.IsInvariantViolation(err):
		h.writeError(w, http.StatusConflict, err.Error())
	case domain.IsValidationError(err):
		h.writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error().Err(err).Msg("Position operation failed")
		h.writeError(w, http.StatusInternalServerError, "position operation failed")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
