package middleware

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RequestIDHeader carries the per-request id in both directions.
const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// RequestID returns the id Logging assigned to the request, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Logging assigns each request an id (reusing a sane inbound X-Request-ID)
// and logs one line per request once it completes. Routed requests also log
// the matched pattern and the group, operation or account they address; an
// accepted workflow logs the operation it started.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	logger = logger.With(slog.String("component", "http"))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
			if id == "" || len(id) > 64 {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)
			r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id))

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)

			attrs := []slog.Attr{
				slog.String("request_id", id),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rw.statusCode),
				slog.Duration("duration", time.Since(start)),
				slog.String("remote_addr", r.RemoteAddr),
			}
			if r.Pattern != "" {
				attrs = append(attrs, slog.String("route", r.Pattern))
			}
			attrs = append(attrs, subjectAttrs(r, rw)...)

			level := slog.LevelInfo
			if rw.statusCode >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			logger.LogAttrs(r.Context(), level, "http: request", attrs...)
		})
	}
}

// subjectAttrs names what the request touched, read from the routed path
// values and, for accepted workflows, the Location header.
func subjectAttrs(r *http.Request, rw *responseWriter) []slog.Attr {
	var attrs []slog.Attr
	if id := r.PathValue("id"); id != "" {
		key := "group"
		if strings.HasPrefix(r.Pattern, "GET /api/operations/") {
			key = "operation"
		}
		attrs = append(attrs, slog.String(key, id))
	}
	if addr := r.PathValue("address"); addr != "" {
		attrs = append(attrs, slog.String("account", addr))
	}
	if op, ok := strings.CutPrefix(rw.Header().Get("Location"), "/api/operations/"); ok && op != "" {
		attrs = append(attrs, slog.String("operation", op))
	}
	return attrs
}

// responseWriter records the status code written by the handler.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

// Hijack lets /ws and /ws/auction/{id} upgrade through the logger.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("middleware: hijack: %T does not support hijacking", rw.ResponseWriter)
	}
	return h.Hijack()
}
