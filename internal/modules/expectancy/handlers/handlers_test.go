package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aristath/swingsentinel/internal/domain"
	"github.com/aristath/swingsentinel/internal/modules/expectancy"
	"github.com/aristath/swingsentinel/internal/modules/portfolio"
	testingpkg "github.com/aristath/swingsentinel/internal/testing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(t *testing.T, closedWins int) *chi.Mux {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, "portfolio")
	t.Cleanup(cleanup)

	ctx := context.Background()
	positions := portfolio.NewPositionRepository(db.Conn(), zerolog.Nop())
	for i := 0; i < closedWins; i++ {
		id, err := positions.Create(ctx, domain.Position{
			Ticker: "AAPL", Sleeve: domain.SleeveCore, Cluster: "MEGA_TECH",
			EntryPrice: 100, Shares: 10, EntryRisk: 5,
			ATRPctAtEntry: 2.5, RegimeAtEntry: domain.RegimeBullish,
		})
		require.NoError(t, err)
		require.NoError(t, positions.Close(ctx, id, 105))
	}

	repo := expectancy.NewRepository(db.Conn(), zerolog.Nop())
	service := expectancy.NewService(positions, repo, zerolog.Nop())
	handler := NewHandler(service, repo, zerolog.Nop())

	router := chi.NewRouter()
	router.Route("/api", handler.RegisterRoutes)
	return router
}

func get(t *testing.T, router http.Handler, method, path string, out interface{}) int {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if out != nil && w.Code == http.StatusOK {
		var env struct {
			Data json.RawMessage `json:"data"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&env))
		require.NoError(t, json.Unmarshal(env.Data, out))
	}
	return w.Code
}

func TestRebuildAndLookup(t *testing.T) {
	router := setupRouter(t, 12)

	var slices []domain.ExpectancySlice
	require.Equal(t, http.StatusOK, get(t, router, http.MethodGet, "/api/expectancy", &slices))
	assert.Empty(t, slices, "nothing stored before the first rebuild")

	require.Equal(t, http.StatusOK, get(t, router, http.MethodPost, "/api/expectancy/rebuild", &slices))
	require.Len(t, slices, 1)
	assert.Equal(t, domain.ExpectancyKey{Sleeve: domain.SleeveCore, ATRBucket: domain.ATRBucketMid, Regime: domain.RegimeBullish}, slices[0].Key)
	assert.Equal(t, 12, slices[0].TradeCount)
	assert.InDelta(t, 1.0, slices[0].ExpectancyR, 1e-9)

	slices = nil
	require.Equal(t, http.StatusOK, get(t, router, http.MethodGet, "/api/expectancy", &slices))
	assert.Len(t, slices, 1)

	var res expectancy.Result
	require.Equal(t, http.StatusOK, get(t, router, http.MethodGet, "/api/expectancy/lookup?sleeve=core&regime=bullish&atr_pct=3.1", &res))
	assert.Equal(t, expectancy.Sufficient, res.DataQuality)
	assert.Equal(t, 5, res.Modifier)

	res = expectancy.Result{}
	require.Equal(t, http.StatusOK, get(t, router, http.MethodGet, "/api/expectancy/lookup?sleeve=ETF&regime=BEARISH&bucket=low", &res))
	assert.Equal(t, expectancy.NoData, res.DataQuality)
	assert.Equal(t, 0, res.Modifier)
}

func TestLookup_SmallSample(t *testing.T) {
	router := setupRouter(t, 3)
	require.Equal(t, http.StatusOK, get(t, router, http.MethodPost, "/api/expectancy/rebuild", nil))

	var res expectancy.Result
	require.Equal(t, http.StatusOK, get(t, router, http.MethodGet, "/api/expectancy/lookup?sleeve=CORE&regime=BULLISH&bucket=MID", &res))
	assert.Equal(t, expectancy.Insufficient, res.DataQuality)
	assert.Equal(t, 0, res.Modifier)
	require.NotNil(t, res.ExpectancyR)
	assert.InDelta(t, 1.0, *res.ExpectancyR, 1e-9)
}

func TestLookup_BadInput(t *testing.T) {
	router := setupRouter(t, 0)
	for _, q := range []string{
		"sleeve=CRYPTO&regime=BULLISH&bucket=MID",
		"sleeve=CORE&regime=EUPHORIC&bucket=MID",
		"sleeve=CORE&regime=BULLISH",
		"sleeve=CORE&regime=BULLISH&atr_pct=-1",
		"sleeve=CORE&regime=BULLISH&bucket=HUGE",
	} {
		assert.Equal(t, http.StatusBadRequest, get(t, router, http.MethodGet, "/api/expectancy/lookup?"+q, nil), q)
	}
}
