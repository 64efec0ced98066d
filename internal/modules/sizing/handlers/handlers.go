// Package handlers provides HTTP handlers for position sizing.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/aristath/swingsentinel/internal/domain"
	"github.com/aristath/swingsentinel/internal/modules/risk"
	"github.com/aristath/swingsentinel/internal/modules/sizing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler handles sizing HTTP requests
type Handler struct {
	sizer          *sizing.Sizer
	validator      *risk.Validator
	profiles       *risk.ProfileSet
	defaultProfile string
	defaultEquity  float64
	log            zerolog.Logger
}

// NewHandler creates a new sizing handler
func NewHandler(
	sizer *sizing.Sizer,
	validator *risk.Validator,
	profiles *risk.ProfileSet,
	defaultProfile string,
	defaultEquity float64,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		sizer:          sizer,
		validator:      validator,
		profiles:       profiles,
		defaultProfile: defaultProfile,
		defaultEquity:  defaultEquity,
		log:            log.With().Str("handler", "sizing").Logger(),
	}
}

// CalculateRequest is the body of POST /api/sizing/calculate.
type CalculateRequest struct {
	Ticker   string        `json:"ticker"`
	Sleeve   domain.Sleeve `json:"sleeve"`
	Sector   string        `json:"sector"`
	Cluster  string        `json:"cluster"`
	Currency string        `json:"currency"`
	Entry    float64       `json:"entry"`
	Stop     float64       `json:"stop"`
	Profile  string        `json:"profile"`
	Equity   *float64      `json:"equity"`
}

// HandleCalculate handles POST /api/sizing/calculate. The sized position is also run
// through the risk gates against the current book.
func (h *Handler) HandleCalculate(w http.ResponseWriter, r *http.Request) {
	var req CalculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.Sleeve.Valid() {
		h.writeError(w, http.StatusBadRequest, "unknown sleeve")
		return
	}

	name := req.Profile
	if name == "" {
		name = h.defaultProfile
	}
	profile, err := h.profiles.Get(name)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	equity := h.defaultEquity
	if req.Equity != nil {
		equity = *req.Equity
	}

	result, err := h.sizer.Size(r.Context(), profile, req.Currency, sizing.Request{
		Ticker: req.Ticker,
		Sleeve: req.Sleeve,
		Entry:  req.Entry,
		Stop:   req.Stop,
		Equity: equity,
	})
	if err != nil {
		if domain.IsValidationError(err) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error().Err(err).Str("ticker", req.Ticker).Msg("Failed to size position")
		h.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	gate, err := h.validator.Validate(r.Context(), profile, risk.GateCandidate{
		Ticker:        req.Ticker,
		Sleeve:        req.Sleeve,
		Sector:        req.Sector,
		Cluster:       req.Cluster,
		PositionValue: result.PositionValue,
		RiskDollars:   result.RiskDollars,
	}, equity)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to gate sized position")
		h.writeError(w, http.StatusInternalServerError, "failed to load exposure")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"profile": profile.Name,
			"sizing":  result,
			"gate":    gate,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// RegisterRoutes registers all sizing routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/sizing", func(r chi.Router) {
		r.Post("/calculate", h.HandleCalculate)
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
