// Package handlers provides HTTP handlers for scan runs and results.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/aristath/swingsentinel/internal/domain"
	"github.com/aristath/swingsentinel/internal/modules/risk"
	"github.com/aristath/swingsentinel/internal/modules/scanning"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Runner runs a scan.
type Runner interface {
	Run(ctx context.Context, opts scanning.Options) (*scanning.Result, error)
}

// ResultStore reads stored scans.
type ResultStore interface {
	Latest() (*scanning.Result, error)
	Get(id string) (*scanning.Result, error)
}

// Handler handles scan HTTP requests
type Handler struct {
	runner         Runner
	results        ResultStore
	profiles       *risk.ProfileSet
	defaultProfile string
	defaultEquity  float64
	log            zerolog.Logger
}

// NewHandler creates a new scan handler
func NewHandler(
	runner Runner,
	results ResultStore,
	profiles *risk.ProfileSet,
	defaultProfile string,
	defaultEquity float64,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		runner:         runner,
		results:        results,
		profiles:       profiles,
		defaultProfile: defaultProfile,
		defaultEquity:  defaultEquity,
		log:            log.With().Str("handler", "scanning").Logger(),
	}
}

// RunRequest is the optional body of POST /api/scans.
type RunRequest struct {
	Profile string   `json:"profile"`
	Equity  *float64 `json:"equity"`
}

// HandleRun handles POST /api/scans. The scan runs synchronously; a second request
// while one is running gets 409.
func (h *Handler) HandleRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			h.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
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

	res, err := h.runner.Run(r.Context(), scanning.Options{Profile: profile, Equity: equity})
	switch {
	case errors.Is(err, scanning.ErrScanInProgress):
		h.writeError(w, http.StatusConflict, err.Error())
		return
	case domain.IsValidationError(err):
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.log.Error().Err(err).Msg("Scan failed")
		h.writeError(w, http.StatusInternalServerError, "scan failed")
		return
	}

	h.writeData(w, http.StatusOK, res)
}

// HandleGetLatest handles GET /api/scans/latest
func (h *Handler) HandleGetLatest(w http.ResponseWriter, r *http.Request) {
	res, err := h.results.Latest()
	h.writeResult(w, res, err)
}

// HandleGetByID handles GET /api/scans/{id}
func (h *Handler) HandleGetByID(w http.ResponseWriter, r *http.Request) {
	res, err := h.results.Get(chi.URLParam(r, "id"))
	h.writeResult(w, res, err)
}

func (h *Handler) writeResult(w http.ResponseWriter, res *scanning.Result, err error) {
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read scan result")
		h.writeError(w, http.StatusInternalServerError, "failed to read scan result")
		return
	}
	if res == nil {
		h.writeError(w, http.StatusNotFound, "scan not found")
		return
	}
	h.writeData(w, http.StatusOK, res)
}

// RegisterRoutes registers all scan routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/scans", func(r chi.Router) {
		r.Post("/", h.HandleRun)
		r.Get("/latest", h.HandleGetLatest)
		r.Get("/{id}", h.HandleGetByID)
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
