package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aristath/swingsentinel/internal/modules/risk"
	testingpkg "github.com/aristath/swingsentinel/internal/testing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(t *testing.T) (*chi.Mux, *testingpkg.MockPositionStore) {
	t.Helper()
	logger := zerolog.New(nil).Level(zerolog.Disabled)

	store := testingpkg.NewMockPositionStore()
	for _, p := range testingpkg.NewPositionFixtures() {
		store.Add(p)
	}
	validator := risk.NewValidator(store, testingpkg.NewMockMarketDataProvider(), "USD", logger)
	handler := NewHandler(validator, risk.NewProfileSet(), risk.Balanced, 10000, logger)

	router := chi.NewRouter()
	router.Route("/api", handler.RegisterRoutes)
	return router, store
}

type envelope struct {
	Data     json.RawMessage        `json:"data"`
	Metadata map[string]interface{} `json:"metadata"`
	Error    string                 `json:"error"`
}

func do(t *testing.T, router http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&env))
	return w, env
}

func TestHandleGetProfiles(t *testing.T) {
	router, _ := setupRouter(t)

	w, env := do(t, router, http.MethodGet, "/api/risk/profiles", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, env.Metadata, "timestamp")

	var data struct {
		Default  string         `json:"default"`
		Profiles []risk.Profile `json:"profiles"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, risk.Balanced, data.Default)
	require.Len(t, data.Profiles, 3)
	assert.Equal(t, risk.Aggressive, data.Profiles[0].Name)
}

func TestHandleValidate(t *testing.T) {
	router, _ := setupRouter(t)

	t.Run("passes within caps", func(t *testing.T) {
		body := `{"ticker":"MSFT","sleeve":"CORE","sector":"Software","cluster":"CLOUD","position_value":1000,"risk_dollars":50}`
		w, env := do(t, router, http.MethodPost, "/api/risk/validate", body)
		require.Equal(t, http.StatusOK, w.Code)

		var data struct {
			Profile string `json:"profile"`
			Result  struct {
				Passed bool `json:"passed"`
				Gates  []struct {
					Name   string `json:"name"`
					Passed bool   `json:"passed"`
				} `json:"gates"`
			} `json:"result"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &data))
		assert.Equal(t, risk.Balanced, data.Profile)
		assert.True(t, data.Result.Passed)
		assert.Len(t, data.Result.Gates, 5)
	})

	t.Run("cluster cap fails on top of the book", func(t *testing.T) {
		// MEGA_TECH already holds 20 × 104 = 2080 of 10000.
		body := `{"ticker":"MSFT","sleeve":"CORE","sector":"Software","cluster":"MEGA_TECH","position_value":500,"risk_dollars":20}`
		w, env := do(t, router, http.MethodPost, "/api/risk/validate", body)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, string(env.Data), `"passed":false`)
		assert.Contains(t, string(env.Data), `"CLUSTER_CAP"`)
	})

	t.Run("bad input", func(t *testing.T) {
		cases := map[string]string{
			"body":    `{`,
			"profile": `{"sleeve":"CORE","profile":"YOLO"}`,
			"equity":  `{"sleeve":"CORE","equity":0}`,
			"sleeve":  `{"sleeve":"CRYPTO"}`,
			"value":   `{"sleeve":"CORE","position_value":-1}`,
		}
		for name, body := range cases {
			w, env := do(t, router, http.MethodPost, "/api/risk/validate", body)
			assert.Equal(t, http.StatusBadRequest, w.Code, name)
			assert.NotEmpty(t, env.Error, name)
		}
	})
}

func TestHandleGetExposure(t *testing.T) {
	router, store := setupRouter(t)

	w, env := do(t, router, http.MethodGet, "/api/risk/exposure?equity=20000", "")
	require.Equal(t, http.StatusOK, w.Code)
	var exposure risk.Exposure
	require.NoError(t, json.Unmarshal(env.Data, &exposure))
	assert.Equal(t, 20000.0, exposure.Equity)
	assert.Equal(t, 3, exposure.PositionCount)

	w, _ = do(t, router, http.MethodGet, "/api/risk/exposure?equity=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	store.SetError(assert.AnError)
	w, _ = do(t, router, http.MethodGet, "/api/risk/exposure", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
