package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/commitfi/internal/config"
	"github.com/alanyoungcy/commitfi/internal/domain"
	"github.com/alanyoungcy/commitfi/internal/server/handler"
	"github.com/alanyoungcy/commitfi/internal/server/middleware"
	"github.com/alanyoungcy/commitfi/internal/server/ws"
)

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health    *handler.HealthHandler
	Status    *handler.StatusHandler
	Groups    *handler.GroupHandler
	Workflows *handler.WorkflowHandler
	Activity  *handler.ActivityHandler
	Auction   *ws.AuctionStream
}

// Server is the HTTP + WebSocket API over the savings-group protocol.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered. Write routes
// sit behind Auth; the whole API sits behind logging, CORS and, when a
// limiter is given, per-client rate limiting.
func NewServer(cfg config.ServerConfig, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      NewRouter(cfg, handlers, wsHub, limiter, logger),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// NewRouter builds the middleware-wrapped mux.
func NewRouter(cfg config.ServerConfig, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	auth := middleware.Auth(cfg, logger)
	write := func(f http.HandlerFunc) http.Handler { return auth(f) }

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	// Reads.
	mux.HandleFunc("GET /api/groups", handlers.Groups.ListGroups)
	mux.HandleFunc("GET /api/groups/{id}", handlers.Groups.GetGroup)
	mux.HandleFunc("GET /api/groups/{id}/auction", handlers.Groups.GetAuction)
	mux.HandleFunc("GET /api/accounts/{address}/groups", handlers.Groups.ListForMember)
	mux.HandleFunc("GET /api/accounts/{address}/stats", handlers.Groups.Stats)
	mux.HandleFunc("GET /api/operations", handlers.Workflows.ListOperations)
	mux.HandleFunc("GET /api/operations/{id}", handlers.Workflows.GetOperation)
	if handlers.Activity != nil {
		mux.HandleFunc("GET /api/activity", handlers.Activity.ListActivity)
	}

	// Workflows.
	mux.Handle("POST /api/groups", write(handlers.Workflows.CreateGroup))
	mux.Handle("POST /api/groups/{id}/join", write(handlers.Workflows.JoinGroup))
	mux.Handle("POST /api/groups/{id}/lock", write(handlers.Workflows.LockGroup))
	mux.Handle("POST /api/groups/{id}/bid", write(handlers.Workflows.PlaceBid))
	mux.Handle("POST /api/groups/{id}/resolve", write(handlers.Workflows.ResolveRound))
	mux.Handle("POST /api/faucet", write(handlers.Workflows.Faucet))

	mux.Handle("GET /metrics", promhttp.Handler())

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}
	if handlers.Auction != nil {
		mux.HandleFunc("GET /ws/auction/{id}", handlers.Auction.HandleAuction)
	}

	var h http.Handler = mux
	h = middleware.RateLimit(limiter, cfg, logger)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg)(h)
	return h
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
