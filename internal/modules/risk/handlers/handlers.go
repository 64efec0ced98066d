// Package handlers provides HTTP handlers for risk gate operations.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/swingsentinel/internal/modules/risk"
	"github.com/rs/zerolog"
)

// Handler handles risk gate HTTP requests
type Handler struct {
	validator      *risk.Validator
	profiles       *risk.ProfileSet
	defaultProfile string
	defaultEquity  float64
	log            zerolog.Logger
}

// NewHandler creates a new risk handler. Requests that omit profile or equity fall
// back to the given defaults.
func NewHandler(
	validator *risk.Validator,
	profiles *risk.ProfileSet,
	defaultProfile string,
	defaultEquity float64,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		validator:      validator,
		profiles:       profiles,
		defaultProfile: defaultProfile,
		defaultEquity:  defaultEquity,
		log:            log.With().Str("handler", "risk").Logger(),
	}
}

// ValidateRequest is the body of POST /api/risk/validate.
type ValidateRequest struct {
	risk.GateCandidate
	Profile string   `json:"profile"`
	Equity  *float64 `json:"equity"`
}

// HandleValidate handles POST /api/risk/validate
func (h *Handler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	profile, err := h.profile(req.Profile)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	equity := h.defaultEquity
	if req.Equity != nil {
		equity = *req.Equity
	}
	if !(equity > 0) {
		h.writeError(w, http.StatusBadRequest, "equity must be positive")
		return
	}
	if !req.Sleeve.Valid() {
		h.writeError(w, http.StatusBadRequest, "unknown sleeve")
		return
	}
	if req.PositionValue < 0 || req.RiskDollars < 0 {
		h.writeError(w, http.StatusBadRequest, "position value and risk must not be negative")
		return
	}

	result, err := h.validator.Validate(r.Context(), profile, req.GateCandidate, equity)
	if err != nil {
		h.log.Error().Err(err).Str("ticker", req.Ticker).Msg("Failed to validate candidate")
		h.writeError(w, http.StatusInternalServerError, "failed to load exposure")
		return
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{
		"profile": profile.Name,
		"equity":  equity,
		"ticker":  req.Ticker,
		"result":  result,
	})
}

// HandleGetProfiles handles GET /api/risk/profiles
func (h *Handler) HandleGetProfiles(w http.ResponseWriter, r *http.Request) {
	names := h.profiles.Names()
	profiles := make([]risk.Profile, 0, len(names))
	for _, name := range names {
		p, err := h.profiles.Get(name)
		if err != nil {
			continue
		}
		profiles = append(profiles, p)
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{
		"default":  h.defaultProfile,
		"profiles": profiles,
	})
}

// HandleGetExposure handles GET /api/risk/exposure?equity=
func (h *Handler) HandleGetExposure(w http.ResponseWriter, r *http.Request) {
	equity := h.defaultEquity
	if raw := r.URL.Query().Get("equity"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || !(v > 0) {
			h.writeError(w, http.StatusBadRequest, "equity must be a positive number")
			return
		}
		equity = v
	}

	exposure, err := h.validator.LoadExposure(r.Context(), equity)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load exposure")
		h.writeError(w, http.StatusInternalServerError, "failed to load exposure")
		return
	}
	h.writeData(w, http.StatusOK, exposure)
}

func (h *Handler) profile(name string) (risk.Profile, error) {
	if name == "" {
		name = h.defaultProfile
	}
	return h.profiles.Get(name)
}

// writeData wraps data in the data/metadata envelope.
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
