package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/commitfi/internal/bus/memory"
	"github.com/alanyoungcy/commitfi/internal/config"
	"github.com/alanyoungcy/commitfi/internal/server/handler"
)

func newTestRouter(cfg config.ServerConfig) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRouter(cfg, Handlers{
		Health:    handler.NewHealthHandler(map[string]handler.HealthCheck{"rpc": func(context.Context) error { return nil }}, logger),
		Status:    &handler.StatusHandler{Mode: "server", ChainID: 5042002},
		Groups:    handler.NewGroupHandler(nil, nil, logger),
		Workflows: handler.NewWorkflowHandler(nil, logger),
	}, nil, memory.NewRateLimiter(), logger)
}

func TestRouterProtectsWrites(t *testing.T) {
	h := newTestRouter(config.ServerConfig{APIKey: "k"})

	for _, path := range []string{"/api/groups", "/api/faucet", "/api/groups/0x0000000000000000000000000000000000000001/join"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"mode":"server"`)
}

func TestRouterServesMetrics(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(config.ServerConfig{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRouterRateLimits(t *testing.T) {
	h := newTestRouter(config.ServerConfig{RateLimitPerMin: 2})
	codes := make([]int, 0, 3)
	for range 3 {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRouterAppliesServerConfig(t *testing.T) {
	h := newTestRouter(config.ServerConfig{
		CORSOrigins: []string{"https://app.commitfi.xyz"},
		APIKey:      "k",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/faucet", nil)
	req.Header.Set("Origin", "https://app.commitfi.xyz")
	req.Header.Set("X-API-Key", "wrong")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "https://app.commitfi.xyz", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
