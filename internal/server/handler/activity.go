package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/commitfi/internal/domain"
)

// ActivityHandler serves the finished-operation feed kept on the activity
// stream.
type ActivityHandler struct {
	bus    domain.SignalBus
	logger *slog.Logger
}

func NewActivityHandler(bus domain.SignalBus, logger *slog.Logger) *ActivityHandler {
	return &ActivityHandler{bus: bus, logger: logHandler(logger, "activity")}
}

type activityEntry struct {
	ID    string          `json:"id"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ListActivity returns the newest entries first.
// GET /api/activity?limit=20
func (h *ActivityHandler) ListActivity(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 20, 200)
	msgs, err := h.bus.StreamTail(r.Context(), domain.StreamActivity, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: read activity failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to read activity")
		return
	}

	entries := make([]activityEntry, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		var env domain.Event
		if err := json.Unmarshal(msgs[i].Payload, &env); err != nil {
			h.logger.WarnContext(r.Context(), "handler: skipping malformed activity entry",
				slog.String("id", msgs[i].ID),
			)
			continue
		}
		entries = append(entries, activityEntry{ID: msgs[i].ID, Event: env.Type, Data: env.Payload})
	}
	writeJSON(w, http.StatusOK, map[string]any{"activity": entries})
}
