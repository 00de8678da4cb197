package server

import (
	"database/sql/driver"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compliance-backend/internal/contracts"
	"compliance-backend/internal/shared/auth"
	"compliance-backend/internal/shared/config"
	"compliance-backend/internal/shared/server/middleware"
	localstore "compliance-backend/internal/shared/storage/object/local"
)

func newTestRouter(t *testing.T, rules map[string]middleware.RateLimitRule) http.Handler {
	t.Helper()
	tokens, err := auth.NewTokens("test-secret", "dev")
	require.NoError(t, err)
	svc := &contracts.Service{Store: localstore.New(t.TempDir()), Repo: contracts.NewMemoryRepo()}
	return NewRouter(RouterDeps{
		Config:           config.Config{CORSAllowOrigin: []string{"http://localhost:5173"}},
		Tokens:           tokens,
		ContractsHandler: contracts.NewHandler(svc),
		RateRules:        rules,
	})
}

func TestRouterHealthIsPublic(t *testing.T) {
	r := newTestRouter(t, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["ok"])
}

func TestRouterHealthReportsDatabase(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer sqlDB.Close()
	mock.ExpectPing()
	mock.ExpectPing().WillReturnError(driver.ErrBadConn)

	r := NewRouter(RouterDeps{DB: sqlDB})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"db":"ok"`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"db":"unavailable"`)
}

func TestRouterServesMetrics(t *testing.T) {
	r := newTestRouter(t, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "runs_started_total")
}

func TestRouterRequiresIdentity(t *testing.T) {
	r := newTestRouter(t, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/contracts", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/contracts", nil)
	req.Header.Set("X-Guest-Id", "g1")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestRouterRateLimitsWrites(t *testing.T) {
	r := newTestRouter(t, map[string]middleware.RateLimitRule{
		groupDefault: {Rate: 100, Burst: 100},
		groupWrite:   {Rate: 0.001, Burst: 1},
	})

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/contracts", strings.NewReader(""))
		req.Header.Set("X-Guest-Id", "g1")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	// The first upload is rejected for its empty body; the second never
	// reaches the handler.
	assert.Equal(t, http.StatusBadRequest, codes[0])
	assert.Equal(t, http.StatusTooManyRequests, codes[1])

	req := httptest.NewRequest(http.MethodGet, "/api/v1/contracts", nil)
	req.Header.Set("X-Guest-Id", "g1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, "reads use a separate bucket")
}

func TestAddr(t *testing.T) {
	assert.Equal(t, ":8080", Addr(""))
	assert.Equal(t, ":9000", Addr("9000"))
	assert.Equal(t, ":9000", Addr(":9000"))
}
