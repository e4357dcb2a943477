package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/commitfi/internal/config"
)

// Auth guards the write endpoints with server.api_key. The key is accepted as
// a Bearer token or in X-API-Key. An empty key leaves writes open, which is
// how a local single-user deployment runs.
func Auth(cfg config.ServerConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	key := []byte(strings.TrimSpace(cfg.APIKey))
	logger = logger.With(slog.String("component", "auth"))
	return func(next http.Handler) http.Handler {
		if len(key) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := apiToken(r)
			switch {
			case token == "":
				reject(w, r, logger, "missing api key")
			case subtle.ConstantTimeCompare([]byte(token), key) != 1:
				reject(w, r, logger, "invalid api key")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// apiToken reads Authorization: Bearer first, then X-API-Key.
func apiToken(r *http.Request) string {
	if scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

func reject(w http.ResponseWriter, r *http.Request, logger *slog.Logger, msg string) {
	logger.WarnContext(r.Context(), "middleware: write rejected",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("request_id", RequestID(r.Context())),
		slog.String("reason", msg),
	)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("WWW-Authenticate", `Bearer realm="commitfi"`)
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
