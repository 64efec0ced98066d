// Package handlers provides HTTP handlers for the expectancy table.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/swingsentinel/internal/domain"
	"github.com/aristath/swingsentinel/internal/modules/expectancy"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler handles expectancy HTTP requests
type Handler struct {
	service *expectancy.Service
	repo    *expectancy.Repository
	log     zerolog.Logger
}

// NewHandler creates a new expectancy handler
func NewHandler(service *expectancy.Service, repo *expectancy.Repository, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		repo:    repo,
		log:     log.With().Str("handler", "expectancy").Logger(),
	}
}

// HandleGetSlices handles GET /api/expectancy
func (h *Handler) HandleGetSlices(w http.ResponseWriter, r *http.Request) {
	slices, err := h.repo.GetAll(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read expectancy slices")
		h.writeError(w, http.StatusInternalServerError, "failed to read expectancy slices")
		return
	}
	if slices == nil {
		slices = []domain.ExpectancySlice{}
	}
	h.writeData(w, http.StatusOK, slices)
}

// HandleRebuild handles POST /api/expectancy/rebuild
func (h *Handler) HandleRebuild(w http.ResponseWriter, r *http.Request) {
	slices, err := h.service.Rebuild(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Expectancy rebuild failed")
		h.writeError(w, http.StatusInternalServerError, "expectancy rebuild failed")
		return
	}
	if slices == nil {
		slices = []domain.ExpectancySlice{}
	}
	h.writeData(w, http.StatusOK, slices)
}

// HandleLookup handles GET /api/expectancy/lookup?sleeve=&regime=&atr_pct= (or &bucket=)
func (h *Handler) HandleLookup(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key := domain.ExpectancyKey{
		Sleeve: domain.Sleeve(strings.ToUpper(q.Get("sleeve"))),
		Regime: domain.MarketRegime(strings.ToUpper(q.Get("regime"))),
	}
	if !key.Sleeve.Valid() {
		h.writeError(w, http.StatusBadRequest, "unknown sleeve")
		return
	}
	switch key.Regime {
	case domain.RegimeBullish, domain.RegimeSideways, domain.RegimeBearish:
	default:
		h.writeError(w, http.StatusBadRequest, "regime must be BULLISH, SIDEWAYS or BEARISH")
		return
	}

	if raw := q.Get("atr_pct"); raw != "" {
		atrPct, err := strconv.ParseFloat(raw, 64)
		if err != nil || atrPct < 0 {
			h.writeError(w, http.StatusBadRequest, "atr_pct must be a non-negative number")
			return
		}
		key.ATRBucket = domain.BucketForATRPct(atrPct)
	} else {
		key.ATRBucket = domain.ATRBucket(strings.ToUpper(q.Get("bucket")))
		switch key.ATRBucket {
		case domain.ATRBucketLow, domain.ATRBucketMid, domain.ATRBucketHigh, domain.ATRBucketExtreme:
		default:
			h.writeError(w, http.StatusBadRequest, "atr_pct or bucket is required")
			return
		}
	}

	h.writeData(w, http.StatusOK, h.service.Lookup(r.Context(), key))
}

// RegisterRoutes registers all expectancy routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/expectancy", func(r chi.Router) {
		r.Get("/", h.HandleGetSlices)
		r.Post("/rebuild", h.HandleRebuild)
		r.Get("/lookup", h.HandleLookup)
	})
}

func (h *Handler) writeData(w http.ResponseWriter, status int, data interface{}) {
	h.writeJSON(w, status, map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
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
