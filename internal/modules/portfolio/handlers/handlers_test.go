package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/aristath/swingsentinel/internal/domain"
	"github.com/aristath/swingsentinel/internal/modules/portfolio"
	testingpkg "github.com/aristath/swingsentinel/internal/testing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type securityStub map[string]*domain.Security

func (s securityStub) GetByTicker(ctx context.Context, ticker string) (*domain.Security, error) {
	if ticker == "FAIL" {
		return nil, errors.New("history db offline")
	}
	return s[ticker], nil
}

type rebuildCounter struct {
	calls int
	err   error
}

func (r *rebuildCounter) Rebuild(ctx context.Context) ([]domain.ExpectancySlice, error) {
	r.calls++
	return nil, r.err
}

func setupRouter(t *testing.T) (*chi.Mux, *portfolio.PositionRepository, *rebuildCounter) {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, "portfolio")
	t.Cleanup(cleanup)

	repo := portfolio.NewPositionRepository(db.Conn(), zerolog.Nop())
	securities := securityStub{
		"NVDA": {Ticker: "NVDA", Sleeve: domain.SleeveCore, Sector: "Semiconductors", Cluster: "MEGA_TECH", Currency: "USD", Active: true},
	}
	rebuild := &rebuildCounter{}
	handler := NewHandler(repo, securities, rebuild, zerolog.Nop())

	router := chi.NewRouter()
	router.Route("/api", handler.RegisterRoutes)
	return router, repo, rebuild
}

func do(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleOpen(t *testing.T) {
	router, _, _ := setupRouter(t)

	t.Run("fills metadata from the security", func(t *testing.T) {
		w := do(t, router, http.MethodPost, "/api/positions",
			`{"ticker":"nvda","entry_price":120,"shares":10,"stop":114,"atr_pct_at_entry":2.5,"regime_at_entry":"BULLISH"}`)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		var p domain.Position
		require.NoError(t, json.NewDecoder(w.Body).Decode(&p))
		assert.Equal(t, "NVDA", p.Ticker)
		assert.Equal(t, domain.SleeveCore, p.Sleeve)
		assert.Equal(t, "MEGA_TECH", p.Cluster)
		assert.Equal(t, "Semiconductors", p.Sector)
		assert.InDelta(t, 6.0, p.EntryRisk, 1e-9)
		assert.Equal(t, domain.LevelInitial, p.Protection.Level)
		assert.InDelta(t, 114.0, p.Protection.Stop, 1e-9)
		assert.Equal(t, domain.PositionOpen, p.Status)
		assert.Equal(t, domain.RegimeBullish, p.RegimeAtEntry)
	})

	t.Run("explicit fields win", func(t *testing.T) {
		w := do(t, router, http.MethodPost, "/api/positions",
			`{"ticker":"NVDA","sleeve":"HIGH_RISK","cluster":"AI","entry_price":120,"shares":5,"stop":110}`)
		require.Equal(t, http.StatusCreated, w.Code)
		var p domain.Position
		require.NoError(t, json.NewDecoder(w.Body).Decode(&p))
		assert.Equal(t, domain.SleeveHighRisk, p.Sleeve)
		assert.Equal(t, "AI", p.Cluster)
		assert.Equal(t, "Semiconductors", p.Sector)
	})

	t.Run("rejects bad input", func(t *testing.T) {
		cases := map[string]string{
			"body":           `{`,
			"ticker":         `{"entry_price":10,"shares":1,"stop":9}`,
			"stop above":     `{"ticker":"NVDA","entry_price":10,"shares":1,"stop":11}`,
			"no stop":        `{"ticker":"NVDA","entry_price":10,"shares":1}`,
			"unknown sleeve": `{"ticker":"ZZZ","entry_price":10,"shares":1,"stop":9}`,
			"no shares":      `{"ticker":"NVDA","entry_price":10,"stop":9}`,
		}
		for name, body := range cases {
			w := do(t, router, http.MethodPost, "/api/positions", body)
			assert.Equal(t, http.StatusBadRequest, w.Code, name)
		}
	})

	t.Run("security lookup failure", func(t *testing.T) {
		w := do(t, router, http.MethodPost, "/api/positions", `{"ticker":"FAIL","entry_price":10,"shares":1,"stop":9}`)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestHandleListAndGet(t *testing.T) {
	router, repo, _ := setupRouter(t)
	ctx := context.Background()

	var ids []int64
	for _, p := range testingpkg.NewPositionFixtures() {
		id, err := repo.Create(ctx, p)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	require.NoError(t, repo.Close(ctx, ids[0], 110))

	count := func(status string) int {
		w := do(t, router, http.MethodGet, "/api/positions?status="+status, "")
		require.Equal(t, http.StatusOK, w.Code)
		var positions []domain.Position
		require.NoError(t, json.NewDecoder(w.Body).Decode(&positions))
		return len(positions)
	}
	total := len(ids)
	assert.Equal(t, total-1, count("open"))
	assert.Equal(t, total-1, count(""))
	assert.Equal(t, 1, count("closed"))
	assert.Equal(t, total, count("ALL"))

	w := do(t, router, http.MethodGet, "/api/positions?status=pending", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodGet, "/api/positions/"+itoa(ids[1]), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"r_multiple"`)
	assert.Contains(t, w.Body.String(), `"open_risk"`)

	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/api/positions/9999", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/api/positions/abc", "").Code)
}

func TestHandleList_Empty(t *testing.T) {
	router, _, _ := setupRouter(t)
	w := do(t, router, http.MethodGet, "/api/positions", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestHandleClose(t *testing.T) {
	router, repo, rebuild := setupRouter(t)
	id, err := repo.Create(context.Background(), testingpkg.NewPositionFixtures()[0])
	require.NoError(t, err)

	w := do(t, router, http.MethodPost, "/api/positions/"+itoa(id)+"/close", `{"exit_price":111}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var p domain.Position
	require.NoError(t, json.NewDecoder(w.Body).Decode(&p))
	assert.Equal(t, domain.PositionClosed, p.Status)
	require.NotNil(t, p.ExitPrice)
	assert.Equal(t, 111.0, *p.ExitPrice)
	assert.Equal(t, 1, rebuild.calls)

	w = do(t, router, http.MethodPost, "/api/positions/"+itoa(id)+"/close", `{"exit_price":112}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 1, rebuild.calls)

	assert.Equal(t, http.StatusBadRequest,
		do(t, router, http.MethodPost, "/api/positions/"+itoa(id)+"/close", `{"exit_price":0}`).Code)
	assert.Equal(t, http.StatusNotFound,
		do(t, router, http.MethodPost, "/api/positions/9999/close", `{"exit_price":5}`).Code)
}

func TestHandleClose_RebuildFailureKeepsClose(t *testing.T) {
	router, repo, rebuild := setupRouter(t)
	rebuild.err = errors.New("locked")
	id, err := repo.Create(context.Background(), testingpkg.NewPositionFixtures()[0])
	require.NoError(t, err)

	w := do(t, router, http.MethodPost, "/api/positions/"+itoa(id)+"/close", `{"exit_price":90}`)
	require.Equal(t, http.StatusOK, w.Code)

	p, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.PositionClosed, p.Status)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
