// Package handlers provides HTTP handlers for the security universe, bar history
// and market regime.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/aristath/swingsentinel/internal/domain"
	"github.com/aristath/swingsentinel/internal/market_regime"
	"github.com/aristath/swingsentinel/internal/modules/universe"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// RegimeReader exposes the cached and freshly computed market regime.
type RegimeReader interface {
	Current(ctx context.Context) (market_regime.State, error)
	Refresh(ctx context.Context) (market_regime.State, error)
}

// Handler handles universe HTTP requests
type Handler struct {
	securities *universe.SecurityRepository
	history    *universe.HistoryDB
	regime     RegimeReader
	log        zerolog.Logger
}

// NewHandler creates a new universe handler
func NewHandler(
	securities *universe.SecurityRepository,
	history *universe.HistoryDB,
	regime RegimeReader,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		securities: securities,
		history:    history,
		regime:     regime,
		log:        log.With().Str("handler", "universe").Logger(),
	}
}

// HandleGetSecurities handles GET /api/securities?active=true
func (h *Handler) HandleGetSecurities(w http.ResponseWriter, r *http.Request) {
	var (
		securities []domain.Security
		err        error
	)
	if active, _ := strconv.ParseBool(r.URL.Query().Get("active")); active {
		securities, err = h.securities.GetActive(r.Context())
	} else {
		securities, err = h.securities.GetAll(r.Context())
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list securities")
		h.writeError(w, http.StatusInternalServerError, "failed to list securities")
		return
	}
	if securities == nil {
		securities = []domain.Security{}
	}
	h.writeJSON(w, http.StatusOK, securities)
}

// HandleGetSecurity handles GET /api/securities/{ticker}
func (h *Handler) HandleGetSecurity(w http.ResponseWriter, r *http.Request) {
	ticker := universe.NormalizeTicker(chi.URLParam(r, "ticker"))
	sec, err := h.securities.GetByTicker(r.Context(), ticker)
	if err != nil {
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to get security")
		h.writeError(w, http.StatusInternalServerError, "failed to get security")
		return
	}
	if sec == nil {
		h.writeError(w, http.StatusNotFound, "security not found")
		return
	}
	h.writeJSON(w, http.StatusOK, sec)
}

// HandleUpsertSecurity handles PUT /api/securities/{ticker}. The path ticker wins
// over any ticker in the body.
func (h *Handler) HandleUpsertSecurity(w http.ResponseWriter, r *http.Request) {
	var sec domain.Security
	if err := json.NewDecoder(r.Body).Decode(&sec); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sec.Ticker = universe.NormalizeTicker(chi.URLParam(r, "ticker"))

	if err := h.securities.Upsert(r.Context(), sec); err != nil {
		if domain.IsValidationError(err) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error().Err(err).Str("ticker", sec.Ticker).Msg("Failed to upsert security")
		h.writeError(w, http.StatusInternalServerError, "failed to save security")
		return
	}

	saved, err := h.securities.GetByTicker(r.Context(), sec.Ticker)
	if err != nil || saved == nil {
		h.writeError(w, http.StatusInternalServerError, "failed to read saved security")
		return
	}
	h.writeJSON(w, http.StatusOK, saved)
}

// HandleSetActive handles PUT /api/securities/{ticker}/active
func (h *Handler) HandleSetActive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Active *bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Active == nil {
		h.writeError(w, http.StatusBadRequest, "active flag is required")
		return
	}

	ticker := universe.NormalizeTicker(chi.URLParam(r, "ticker"))
	if err := h.securities.SetActive(r.Context(), ticker, *req.Active); err != nil {
		if errors.Is(err, domain.ErrSecurityNotFound) {
			h.writeError(w, http.StatusNotFound, "security not found")
			return
		}
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to toggle security")
		h.writeError(w, http.StatusInternalServerError, "failed to update security")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"ticker": ticker, "active": *req.Active})
}

// HandleGetBars handles GET /api/securities/{ticker}/bars?limit=
func (h *Handler) HandleGetBars(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = v
	}

	ticker := universe.NormalizeTicker(chi.URLParam(r, "ticker"))
	bars, err := h.history.GetDailyBars(r.Context(), ticker, limit)
	if err != nil {
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to read bars")
		h.writeError(w, http.StatusInternalServerError, "failed to read bars")
		return
	}
	if bars == nil {
		bars = domain.Bars{}
	}
	h.writeJSON(w, http.StatusOK, bars)
}

// HandleImportBars handles POST /api/securities/{ticker}/bars. Malformed bars are
// skipped and counted, not rejected.
func (h *Handler) HandleImportBars(w http.ResponseWriter, r *http.Request) {
	var bars []domain.Bar
	if err := json.NewDecoder(r.Body).Decode(&bars); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ticker := universe.NormalizeTicker(chi.URLParam(r, "ticker"))
	written, skipped, err := h.history.UpsertBars(r.Context(), ticker, bars)
	if err != nil {
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to import bars")
		h.writeError(w, http.StatusInternalServerError, "failed to import bars")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ticker":  ticker,
		"written": written,
		"skipped": skipped,
	})
}

// HandleGetRegime handles GET /api/market/regime?refresh=true
func (h *Handler) HandleGetRegime(w http.ResponseWriter, r *http.Request) {
	read := h.regime.Current
	if refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh")); refresh {
		read = h.regime.Refresh
	}

	state, err := read(r.Context())
	if err != nil {
		h.log.Warn().Err(err).Msg("Market regime unavailable")
		h.writeError(w, http.StatusServiceUnavailable, "market regime unavailable")
		return
	}
	h.writeJSON(w, http.StatusOK, state)
}

// RegisterRoutes registers universe and market routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/securities", func(r chi.Router) {
		r.Get("/", h.HandleGetSecurities)
		r.Route("/{ticker}", func(r chi.Router) {
			r.Get("/", h.HandleGetSecurity)
			r.Put("/", h.HandleUpsertSecurity)
			r.Put("/active", h.HandleSetActive)
			r.Get("/bars", h.HandleGetBars)
			r.Post("/bars", h.HandleImportBars)
		})
	})
	r.Get("/market/regime", h.HandleGetRegime)
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
