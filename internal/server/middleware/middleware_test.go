package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/commitfi/internal/config"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusTeapot)
})

func TestAuth(t *testing.T) {
	h := Auth(config.ServerConfig{APIKey: "secret"}, discard())(ok)

	cases := []struct {
		name   string
		header string
		value  string
		code   int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"bearer", "Authorization", "Bearer secret", http.StatusTeapot},
		{"bearer lowercase scheme", "Authorization", "bearer secret", http.StatusTeapot},
		{"api key", "X-API-Key", "secret", http.StatusTeapot},
		{"wrong", "X-API-Key", "nope", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tc.header != "" {
				req.Header.Set(tc.header, tc.value)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.code, rec.Code)
		})
	}

	rec := httptest.NewRecorder()
	Auth(config.ServerConfig{}, discard())(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestCORS(t *testing.T) {
	h := CORS(config.ServerConfig{CORSOrigins: []string{"https://app.commitfi.xyz/"}})(ok)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://app.commitfi.xyz")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "https://app.commitfi.xyz", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "Location")

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://app.commitfi.xyz")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

type countingLimiter struct {
	seen  []string
	allow int
	err   error
}

func (l *countingLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	l.seen = append(l.seen, key)
	if l.err != nil {
		return false, l.err
	}
	return len(l.seen) <= l.allow, nil
}

func (l *countingLimiter) Wait(context.Context, string) error { return nil }

func TestRateLimit(t *testing.T) {
	lim := &countingLimiter{allow: 1}
	h := RateLimit(lim, config.ServerConfig{RateLimitPerMin: 1}, discard())(ok)

	serve := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}
	assert.Equal(t, http.StatusTeapot, serve().Code)
	rec := serve()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	require.Len(t, lim.seen, 2)
	assert.Equal(t, "ratelimit:api:203.0.113.7", lim.seen[0])
}

func TestRateLimitFailsOpen(t *testing.T) {
	lim := &countingLimiter{err: assert.AnError}
	rec := httptest.NewRecorder()
	RateLimit(lim, config.ServerConfig{RateLimitPerMin: 1}, discard())(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestLoggingCapturesStatus(t *testing.T) {
	var logged bool
	h := Logging(discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw, isWrapped := w.(*responseWriter)
		logged = isWrapped
		w.WriteHeader(http.StatusCreated)
		if isWrapped {
			assert.Equal(t, http.StatusCreated, rw.statusCode)
		}
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, logged)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestRateLimitDisabledWithoutLimit(t *testing.T) {
	lim := &countingLimiter{}
	rec := httptest.NewRecorder()
	RateLimit(lim, config.ServerConfig{}, discard())(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Empty(t, lim.seen)
}

func TestLoggingRecordsRequestSubjects(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	var seenID string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/groups/{id}/join", func(w http.ResponseWriter, r *http.Request) {
		seenID = RequestID(r.Context())
		w.Header().Set("Location", "/api/operations/op-7")
		w.WriteHeader(http.StatusAccepted)
	})
	h := Logging(logger)(mux)

	req := httptest.NewRequest(http.MethodPost, "/api/groups/0xabc/join", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "req-42", seenID)
	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "http", line["component"])
	assert.Equal(t, "req-42", line["request_id"])
	assert.Equal(t, "POST /api/groups/{id}/join", line["route"])
	assert.Equal(t, "0xabc", line["group"])
	assert.Equal(t, "op-7", line["operation"])
	assert.EqualValues(t, http.StatusAccepted, line["status"])
}

func TestLoggingGeneratesRequestID(t *testing.T) {
	rec := httptest.NewRecorder()
	Logging(discard())(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, rec.Header().Get(RequestIDHeader), 36)
}
