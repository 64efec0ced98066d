// Package handlers provides HTTP handlers for breakout scoring.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/aristath/swingsentinel/internal/domain"
	"github.com/aristath/swingsentinel/internal/modules/scoring"
	"github.com/aristath/swingsentinel/internal/modules/technical"
	"github.com/aristath/swingsentinel/pkg/formulas"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// SecurityLookup resolves universe metadata.
type SecurityLookup interface {
	GetByTicker(ctx context.Context, ticker string) (*domain.Security, error)
}

// MarketSource serves bars and the volatility regime.
type MarketSource interface {
	GetDailyBars(ctx context.Context, ticker string) (domain.Bars, error)
	GetVolatilityRegime(ctx context.Context) (domain.VolatilityRegime, error)
}

// Handlers provides HTTP handlers for the scoring module
type Handlers struct {
	securities SecurityLookup
	market     MarketSource
	scorer     *scoring.Scorer
	benchmark  string
	log        zerolog.Logger
}

// NewHandlers creates scoring handlers. Relative strength is measured against benchmark.
func NewHandlers(securities SecurityLookup, market MarketSource, scorer *scoring.Scorer, benchmark string, log zerolog.Logger) *Handlers {
	return &Handlers{
		securities: securities,
		market:     market,
		scorer:     scorer,
		benchmark:  benchmark,
		log:        log.With().Str("handler", "scoring").Logger(),
	}
}

// AnalysisResponse is the single-ticker view of the scan pipeline's analysis stage.
type AnalysisResponse struct {
	Ticker          string                   `json:"ticker"`
	Sleeve          domain.Sleeve            `json:"sleeve"`
	Sector          string                   `json:"sector"`
	VolRegime       domain.VolatilityRegime  `json:"vol_regime"`
	Snapshot        domain.TechnicalSnapshot `json:"snapshot"`
	Classification  technical.Classification `json:"classification"`
	BPS             scoring.BPSResult        `json:"bps"`
	MaxBPS          int                      `json:"max_bps"`
	Hurst           float64                  `json:"hurst"`
	HurstDetermined bool                     `json:"hurst_determined"`
	DataIssues      []string                 `json:"data_issues,omitempty"`
}

// HandleAnalyze handles GET /api/scoring/{ticker}
// Without a cross-sectional universe the RS factor falls back to the benchmark spread.
func (h *Handlers) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ticker := strings.ToUpper(chi.URLParam(r, "ticker"))

	sec, err := h.securities.GetByTicker(ctx, ticker)
	if err != nil {
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to load security")
		h.writeError(w, http.StatusInternalServerError, "failed to load security")
		return
	}
	if sec == nil {
		h.writeError(w, http.StatusNotFound, "security not found")
		return
	}

	bars, err := h.market.GetDailyBars(ctx, ticker)
	if err != nil {
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	var benchmark domain.Bars
	if h.benchmark != "" && h.benchmark != ticker {
		if benchmark, err = h.market.GetDailyBars(ctx, h.benchmark); err != nil {
			h.log.Debug().Err(err).Str("benchmark", h.benchmark).Msg("Benchmark bars unavailable")
			benchmark = nil
		}
	}

	vol, err := h.market.GetVolatilityRegime(ctx)
	if err != nil {
		h.log.Warn().Err(err).Msg("Volatility regime unavailable, assuming NORMAL")
		vol = domain.VolNormal
	}

	snap := technical.BuildSnapshot(ticker, bars, benchmark)
	hurst, determined := formulas.HurstExponent(bars.Closes())

	h.writeJSON(w, http.StatusOK, AnalysisResponse{
		Ticker:          ticker,
		Sleeve:          sec.Sleeve,
		Sector:          sec.Sector,
		VolRegime:       vol,
		Snapshot:        snap,
		Classification:  technical.Classify(snap, sec.Sleeve, vol),
		BPS:             h.scorer.Score(snap, sec.Sector, nil),
		MaxBPS:          scoring.MaxBPS,
		Hurst:           hurst,
		HurstDetermined: determined,
		DataIssues:      technical.CheckDataQuality(bars),
	})
}

// HandleCalculateBPS handles POST /api/scoring/bps
// Scores raw factor inputs; absent factors score low or neutral.
func (h *Handlers) HandleCalculateBPS(w http.ResponseWriter, r *http.Request) {
	var in scoring.BPSInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if in.ATR < 0 || in.ATR20Ago < 0 {
		h.writeError(w, http.StatusBadRequest, "atr must not be negative")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"bps":     scoring.CalculateBPS(in),
		"max_bps": scoring.MaxBPS,
	})
}

// RegisterRoutes registers scoring routes
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Route("/scoring", func(r chi.Router) {
		r.Post("/bps", h.HandleCalculateBPS)
		r.Get("/{ticker}", h.HandleAnalyze)
	})
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// writeJSON writes a JSON response
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
