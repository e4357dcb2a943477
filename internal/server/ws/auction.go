package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/commitfi/internal/domain"
	"github.com/alanyoungcy/commitfi/internal/service"
)

// GroupGetter resolves a group so the stream knows whether it is an auction.
type GroupGetter interface {
	GetGroup(ctx context.Context, id common.Address) (domain.Group, error)
}

// AuctionWatcher starts live auction views.
type AuctionWatcher interface {
	Watch(ctx context.Context, group common.Address, isAuction bool) (*service.AuctionWatch, error)
}

// AuctionStream serves one live auction view per socket. The watch lives
// exactly as long as the connection.
type AuctionStream struct {
	groups   GroupGetter
	watcher  AuctionWatcher
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewAuctionStream(groups GroupGetter, watcher AuctionWatcher, allowedOrigins []string, logger *slog.Logger) *AuctionStream {
	return &AuctionStream{
		groups:   groups,
		watcher:  watcher,
		upgrader: newUpgrader(allowedOrigins),
		logger:   logger.With(slog.String("component", "ws_auction")),
	}
}

// HandleAuction validates the group before upgrading so HTTP clients get a
// plain status code for unknown or non-auction groups.
// GET /ws/auction/{id}
func (s *AuctionStream) HandleAuction(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("id")
	if !common.IsHexAddress(raw) {
		http.Error(w, `{"error":"invalid group id"}`, http.StatusBadRequest)
		return
	}
	id := common.HexToAddress(raw)

	g, err := s.groups.GetGroup(r.Context(), id)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, `{"error":"group not found"}`, http.StatusNotFound)
		return
	case err != nil:
		s.logger.ErrorContext(r.Context(), "ws: get group failed", slog.String("error", err.Error()))
		http.Error(w, `{"error":"failed to read group"}`, http.StatusBadGateway)
		return
	case g.Type != domain.GroupAuction:
		http.Error(w, `{"error":"`+domain.ErrNotAuction.Error()+`"}`, http.StatusConflict)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	// The request context ends with the handler, not the socket, so the
	// watch gets its own and the read loop cancels it on disconnect.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watch, err := s.watcher.Watch(ctx, id, true)
	if err != nil {
		s.logger.Warn("ws: auction watch failed",
			slog.String("group", id.Hex()),
			slog.String("error", err.Error()),
		)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, domain.ShortMessage(err)),
			time.Now().Add(writeWait))
		return
	}
	defer watch.Close()

	go func() {
		defer cancel()
		conn.SetReadLimit(maxMessageSize)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-watch.Updates():
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(st); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
