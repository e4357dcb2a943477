package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/commitfi/internal/server"
	"github.com/alanyoungcy/commitfi/internal/server/handler"
	"github.com/alanyoungcy/commitfi/internal/server/ws"
	"github.com/alanyoungcy/commitfi/internal/service"
)

// ServerMode serves the HTTP API, the WebSocket hub and the live auction
// streams.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// MonitorMode runs the group lifecycle monitor. The HTTP server is started
// too when server.enabled is set.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startGroupMonitor(ctx, g, deps)
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}
	return g.Wait()
}

// FullMode runs the monitor and the HTTP server together.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startGroupMonitor(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

func (a *App) startGroupMonitor(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	monitor := service.NewGroupMonitor(deps.Groups, deps.SignalBus, deps.Notifier,
		a.cfg.Monitor.PollInterval.Duration, a.logger)
	g.Go(func() error {
		return monitor.Run(ctx)
	})
}

// startHTTPServer registers the API and the hub on g. Both stop when ctx
// ends.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	startedAt := time.Now().UTC()

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:           a.cfg.Mode,
		ChainID:        a.cfg.Chain.ChainID,
		Wallet:         deps.Chain,
		StartedAt:      startedAt,
		AllowedOrigins: a.cfg.Server.CORSOrigins,
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(deps.HealthChecks, a.logger),
		Status: &handler.StatusHandler{
			Mode:      a.cfg.Mode,
			ChainID:   a.cfg.Chain.ChainID,
			Factory:   a.cfg.Contracts.FactoryAddress(),
			Token:     a.cfg.Contracts.TokenAddress(),
			Wallet:    deps.Chain,
			StartedAt: startedAt,
		},
		Groups:    handler.NewGroupHandler(deps.Groups, deps.Auctions, a.logger),
		Workflows: handler.NewWorkflowHandler(service.NewWorkflowAPI(deps.Workflows), a.logger),
		Activity:  handler.NewActivityHandler(deps.SignalBus, a.logger),
		Auction:   ws.NewAuctionStream(deps.Groups, deps.Auctions, a.cfg.Server.CORSOrigins, a.logger),
	}

	srv := server.NewServer(a.cfg.Server, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.logger.InfoContext(ctx, "HTTP server shutting down", slog.Int("port", a.cfg.Server.Port))
		return srv.Shutdown(shutCtx)
	})
}
