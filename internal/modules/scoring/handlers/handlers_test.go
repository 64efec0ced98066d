package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aristath/swingsentinel/internal/domain"
	"github.com/aristath/swingsentinel/internal/modules/scoring"
	testingpkg "github.com/aristath/swingsentinel/internal/testing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type securityStub map[string]domain.Security

func (s securityStub) GetByTicker(ctx context.Context, ticker string) (*domain.Security, error) {
	if ticker == "FAIL" {
		return nil, assert.AnError
	}
	sec, ok := s[ticker]
	if !ok {
		return nil, nil
	}
	return &sec, nil
}

func setupRouter(t *testing.T) (*chi.Mux, *testingpkg.MockMarketDataProvider) {
	t.Helper()
	logger := zerolog.New(nil).Level(zerolog.Disabled)

	securities := securityStub{}
	for _, s := range testingpkg.NewSecurityFixtures() {
		securities[s.Ticker] = s
	}
	market := testingpkg.NewMockMarketDataProvider()
	market.SetBars("AAPL", testingpkg.UptrendBars())
	market.SetBars("SPY", testingpkg.NewBars(testingpkg.BarSpec{Count: 260, Start: 100, Step: 0.1}))

	sectors := testingpkg.NewMockSectorMomentumCache()
	require.NoError(t, sectors.Set("Technology", 4))

	handler := NewHandlers(securities, market, scoring.NewScorer(sectors, logger), "SPY", logger)
	router := chi.NewRouter()
	router.Route("/api", handler.RegisterRoutes)
	return router, market
}

func TestHandleAnalyze(t *testing.T) {
	router, market := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/scoring/aapl", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp AnalysisResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "AAPL", resp.Ticker)
	assert.Equal(t, domain.SleeveCore, resp.Sleeve)
	assert.Equal(t, domain.VolNormal, resp.VolRegime)
	assert.Equal(t, scoring.MaxBPS, resp.MaxBPS)
	assert.Greater(t, resp.Snapshot.Price, 0.0)
	assert.NotNil(t, resp.Snapshot.RelativeStrength, "benchmark bars feed relative strength")
	assert.Empty(t, resp.DataIssues)
	assert.Equal(t, 2, resp.BPS.SectorMomentum, "sector momentum comes from the cache")
	assert.GreaterOrEqual(t, resp.BPS.Total, 0)
	assert.LessOrEqual(t, resp.BPS.Total, scoring.MaxBPS)
	assert.NotEmpty(t, resp.Classification.Status)
	assert.Equal(t, 1, market.Calls("SPY"))
}

func TestHandleAnalyze_Errors(t *testing.T) {
	router, market := setupRouter(t)
	market.SetError("SPY", assert.AnError)

	cases := []struct {
		path   string
		status int
	}{
		{"/api/scoring/MSFT", http.StatusNotFound},
		{"/api/scoring/FAIL", http.StatusInternalServerError},
		{"/api/scoring/PLTR", http.StatusUnprocessableEntity},
		{"/api/scoring/AAPL", http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, tc.status, w.Code, tc.path)
	}
}

func TestHandleCalculateBPS(t *testing.T) {
	router, _ := setupRouter(t)

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/scoring/bps", strings.NewReader(body))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	w := post(`{}`)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		BPS    scoring.BPSResult `json:"bps"`
		MaxBPS int               `json:"max_bps"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, scoring.CalculateBPS(scoring.BPSInput{}), resp.BPS)
	assert.Equal(t, 19, resp.MaxBPS)

	w = post(`{"atr":1.5,"atr_20_ago":3,"sector_return_20d":4,"consolidation_days":20}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Greater(t, resp.BPS.Total, scoring.CalculateBPS(scoring.BPSInput{}).Total)

	assert.Equal(t, http.StatusBadRequest, post(`{`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`{"atr":-1}`).Code)
}
