package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aristath/swingsentinel/internal/domain"
	"github.com/aristath/swingsentinel/internal/modules/risk"
	"github.com/aristath/swingsentinel/internal/modules/scanning"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runnerStub struct {
	opts scanning.Options
	err  error
}

func (r *runnerStub) Run(ctx context.Context, opts scanning.Options) (*scanning.Result, error) {
	r.opts = opts
	if r.err != nil {
		return nil, r.err
	}
	return &scanning.Result{
		ID:      "scan-9",
		Profile: opts.Profile.Name,
		Equity:  opts.Equity,
		Candidates: []scanning.Candidate{
			{Ticker: "AAPL", Status: domain.StatusReady, Score: 81.5},
		},
	}, nil
}

type storeStub struct {
	results map[string]*scanning.Result
	err     error
}

func (s storeStub) Latest() (*scanning.Result, error) { return s.Get("latest") }

func (s storeStub) Get(id string) (*scanning.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.results[id], nil
}

func setupRouter(runner Runner, store ResultStore) *chi.Mux {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	handler := NewHandler(runner, store, risk.NewProfileSet(), risk.Balanced, 10000, logger)
	router := chi.NewRouter()
	router.Route("/api", handler.RegisterRoutes)
	return router
}

func serve(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleRun(t *testing.T) {
	runner := &runnerStub{}
	router := setupRouter(runner, storeStub{})

	t.Run("defaults", func(t *testing.T) {
		w := serve(router, http.MethodPost, "/api/scans/", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, risk.Balanced, runner.opts.Profile.Name)
		assert.Equal(t, 10000.0, runner.opts.Equity)

		var resp struct {
			Data scanning.Result `json:"data"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, "scan-9", resp.Data.ID)
		require.Len(t, resp.Data.Candidates, 1)
		assert.Equal(t, 81.5, resp.Data.Candidates[0].Score)
	})

	t.Run("overrides", func(t *testing.T) {
		w := serve(router, http.MethodPost, "/api/scans/", `{"profile":"aggressive","equity":50000}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, risk.Aggressive, runner.opts.Profile.Name)
		assert.Equal(t, 50000.0, runner.opts.Equity)
	})

	t.Run("bad requests", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, serve(router, http.MethodPost, "/api/scans/", `{`).Code)
		assert.Equal(t, http.StatusBadRequest, serve(router, http.MethodPost, "/api/scans/", `{"profile":"YOLO"}`).Code)
	})
}

func TestHandleRun_Errors(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{scanning.ErrScanInProgress, http.StatusConflict},
		{domain.NewValidationError("equity", "equity must be positive"), http.StatusBadRequest},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		router := setupRouter(&runnerStub{err: tc.err}, storeStub{})
		w := serve(router, http.MethodPost, "/api/scans/", "")
		assert.Equal(t, tc.status, w.Code, tc.err.Error())
	}
}

func TestHandleGetResults(t *testing.T) {
	stored := &scanning.Result{ID: "scan-1"}
	router := setupRouter(&runnerStub{}, storeStub{results: map[string]*scanning.Result{
		"latest": stored,
		"scan-1": stored,
	}})

	w := serve(router, http.MethodGet, "/api/scans/latest", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"scan-1"`)

	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/api/scans/scan-1", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(router, http.MethodGet, "/api/scans/scan-2", "").Code)

	empty := setupRouter(&runnerStub{}, storeStub{})
	assert.Equal(t, http.StatusNotFound, serve(empty, http.MethodGet, "/api/scans/latest", "").Code)

	broken := setupRouter(&runnerStub{}, storeStub{err: errors.New("db gone")})
	assert.Equal(t, http.StatusInternalServerError, serve(broken, http.MethodGet, "/api/scans/latest", "").Code)
}
