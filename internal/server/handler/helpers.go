package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/commitfi/internal/domain"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 16

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps the domain error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrWalletNotConnected), errors.Is(err, domain.ErrNotAuction):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrReadFailed), errors.Is(err, domain.ErrReverted):
		return http.StatusBadGateway
	}
	var rpcErr *domain.RPCError
	if errors.As(err, &rpcErr) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeServiceError logs err and responds with its mapped status and short
// message. Server-side failures are logged at error level.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "handler: "+op+" failed", slog.String("error", err.Error()))
	} else {
		logger.DebugContext(r.Context(), "handler: "+op+" rejected", slog.String("error", err.Error()))
	}
	writeError(w, status, domain.ShortMessage(err))
}

// decodeBody decodes a JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// pathAddress reads a hex address path parameter, writing a 400 when it is
// malformed.
func pathAddress(w http.ResponseWriter, r *http.Request, name string) (common.Address, bool) {
	v := r.PathValue(name)
	if !common.IsHexAddress(v) {
		writeError(w, http.StatusBadRequest, "invalid "+name+": "+strconv.Quote(v))
		return common.Address{}, false
	}
	return common.HexToAddress(v), true
}

// parseLimit reads ?limit= with a default and an upper bound.
func parseLimit(r *http.Request, def, max int) int {
	limit := def
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > max {
		limit = max
	}
	return limit
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}
