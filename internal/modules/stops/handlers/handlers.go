// Package handlers provides HTTP handlers for stop-loss protection.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/swingsentinel/internal/domain"
	"github.com/aristath/swingsentinel/internal/modules/stops"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler handles stop HTTP requests
type Handler struct {
	manager   *stops.Manager
	positions domain.PositionStore
	log       zerolog.Logger
}

// NewHandler creates a new stops handler
func NewHandler(manager *stops.Manager, positions domain.PositionStore, log zerolog.Logger) *Handler {
	return &Handler{
		manager:   manager,
		positions: positions,
		log:       log.With().Str("handler", "stops").Logger(),
	}
}

// EvaluateRequest is the body of POST /api/stops/{id}/evaluate.
type EvaluateRequest struct {
	Price float64 `json:"price"`
	ATR   float64 `json:"atr"`
}

// ApplyRequest is the body of PUT /api/stops/{id}.
type ApplyRequest struct {
	Level  domain.ProtectionLevel `json:"level"`
	Stop   float64                `json:"stop"`
	Reason string                 `json:"reason"`
}

// HandleGetRecommendation handles GET /api/stops/{id}/recommendation?price=&atr=
// It never changes the position.
func (h *Handler) HandleGetRecommendation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.positionID(w, r)
	if !ok {
		return
	}
	price, err := strconv.ParseFloat(r.URL.Query().Get("price"), 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "price is required")
		return
	}
	atr := 0.0
	if raw := r.URL.Query().Get("atr"); raw != "" {
		if atr, err = strconv.ParseFloat(raw, 64); err != nil {
			h.writeError(w, http.StatusBadRequest, "atr must be a number")
			return
		}
	}

	pos, err := h.positions.GetByID(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeData(w, http.StatusOK, stops.Recommend(*pos, price, atr))
}

// HandleEvaluate handles POST /api/stops/{id}/evaluate. A qualifying recommendation
// is applied.
func (h *Handler) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.positionID(w, r)
	if !ok {
		return
	}
	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, entry, err := h.manager.Evaluate(r.Context(), id, req.Price, req.ATR)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeData(w, http.StatusOK, map[string]interface{}{
		"recommendation": rec,
		"applied":        entry,
	})
}

// HandleApply handles PUT /api/stops/{id}
func (h *Handler) HandleApply(w http.ResponseWriter, r *http.Request) {
	id, ok := h.positionID(w, r)
	if !ok {
		return
	}
	var req ApplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	entry, err := h.manager.Apply(r.Context(), id, domain.ProtectionState{Level: req.Level, Stop: req.Stop}, req.Reason)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeData(w, http.StatusOK, map[string]interface{}{
		"applied": entry,
		"changed": entry != nil,
	})
}

// HandleGetHistory handles GET /api/stops/{id}/history
func (h *Handler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := h.positionID(w, r)
	if !ok {
		return
	}
	if _, err := h.positions.GetByID(r.Context(), id); err != nil {
		h.writeStoreError(w, err)
		return
	}
	history, err := h.manager.History(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	if history == nil {
		history = []domain.StopHistoryEntry{}
	}
	h.writeData(w, http.StatusOK, history)
}

// HandleRunPass handles POST /api/stops/pass
func (h *Handler) HandleRunPass(w http.ResponseWriter, r *http.Request) {
	report, err := h.manager.RunPass(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Stop pass failed")
		h.writeError(w, http.StatusInternalServerError, "stop pass failed")
		return
	}
	h.writeData(w, http.StatusOK, report)
}

// RegisterRoutes registers all stop routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/stops", func(r chi.Router) {
		r.Post("/pass", h.HandleRunPass)
		r.Route("/{id}", func(r chi.Router) {
			r.Put("/", h.HandleApply)
			r.Get("/recommendation", h.HandleGetRecommendation)
			r.Post("/evaluate", h.HandleEvaluate)
			r.Get("/history", h.HandleGetHistory)
		})
	})
}

func (h *Handler) positionID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, http.StatusBadRequest, "invalid position id")
		return 0, false
	}
	return id, true
}

// writeStoreError maps domain errors onto status codes.
func (h *Handler) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrPositionNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case domain.IsInvariantViolation(err):
		h.writeError(w, http.StatusConflict, err.Error())
	case domain.IsValidationError(err):
		h.writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error().Err(err).Msg("Stop operation failed")
		h.writeError(w, http.StatusInternalServerError, "stop operation failed")
	}
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
