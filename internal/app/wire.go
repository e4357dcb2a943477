package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/commitfi/internal/bus/memory"
	"github.com/alanyoungcy/commitfi/internal/bus/redis"
	"github.com/alanyoungcy/commitfi/internal/chain"
	"github.com/alanyoungcy/commitfi/internal/config"
	"github.com/alanyoungcy/commitfi/internal/crypto"
	"github.com/alanyoungcy/commitfi/internal/domain"
	"github.com/alanyoungcy/commitfi/internal/notify"
	"github.com/alanyoungcy/commitfi/internal/server/handler"
	"github.com/alanyoungcy/commitfi/internal/service"
)

// Dependencies bundles everything the run modes need. It is constructed by
// Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Chain *chain.Client

	// Bus
	SignalBus   domain.SignalBus
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager

	// Services
	Groups    *service.GroupService
	Workflows *service.WorkflowEngine
	Auctions  *service.AuctionPoller

	// Notifications
	Notifier *notify.Notifier

	// HealthChecks are probed by GET /api/health.
	HealthChecks map[string]handler.HealthCheck
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{HealthChecks: make(map[string]handler.HealthCheck)}

	// --- Bus: Redis when enabled, otherwise in process ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.SignalBus = redis.NewSignalBus(redisClient, cfg.Redis.StreamMaxLen)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.HealthChecks["redis"] = redisClient.Ping
	} else {
		deps.SignalBus = memory.NewSignalBus(int(cfg.Redis.StreamMaxLen))
		deps.RateLimiter = memory.NewRateLimiter()
		deps.LockManager = memory.NewLockManager()
	}

	// --- Wallet ---
	signer, err := crypto.LoadSigner(crypto.KeySource{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	}, cfg.Chain.ChainID)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: wallet: %w", err)
	}
	var txSigner chain.TxSigner
	if signer != nil {
		txSigner = signer
		logger.InfoContext(ctx, "wire: wallet loaded", slog.String("account", signer.Address().Hex()))
	} else {
		logger.WarnContext(ctx, "wire: no wallet configured, running read-only")
	}

	// --- Chain adapter ---
	client, err := chain.Dial(ctx, chain.Config{
		RPCURL:              cfg.Chain.RPCURL,
		WSURL:               cfg.Chain.WSURL,
		ChainID:             cfg.Chain.ChainID,
		RateLimitPerSec:     cfg.Chain.RateLimitPerSec,
		MaxBatchSize:        cfg.Chain.MaxBatchSize,
		ReceiptPollInterval: cfg.Chain.ReceiptPollInterval.Duration,
		ReceiptTimeout:      cfg.Chain.ReceiptTimeout.Duration,
		LogPollInterval:     cfg.Chain.LogPollInterval.Duration,
		GasBufferPercent:    cfg.Chain.GasBufferPercent,
		NonceLockTTL:        cfg.Chain.NonceLockTTL.Duration,
	}, txSigner, deps.LockManager, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: chain: %w", err)
	}
	closers = append(closers, client.Close)
	deps.Chain = client
	deps.HealthChecks["rpc"] = client.Ping

	// --- Notifications ---
	httpClient := &http.Client{Timeout: 10 * time.Second}
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender("", cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID, httpClient))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL, cfg.Notify.DiscordUsername, httpClient))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, cfg.Notify.MaxPerMinute, logger)

	// --- Services ---
	factory := cfg.Contracts.FactoryAddress()
	token := cfg.Contracts.TokenAddress()

	deps.Groups = service.NewGroupService(client, factory, token, cfg.Classification.ProbeFallback, logger)

	allowance := service.NewAllowanceWaiter(client, token,
		cfg.Workflow.AllowanceAttempts, cfg.Workflow.AllowanceDelay.Duration, logger)

	deps.Workflows, err = service.NewWorkflowEngine(client, allowance, deps.SignalBus, deps.Notifier,
		service.WorkflowConfig{
			Factory:      factory,
			Token:        token,
			MaxTracked:   cfg.Workflow.MaxTracked,
			FaucetAmount: cfg.Workflow.FaucetAmount,
		}, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: workflow engine: %w", err)
	}
	closers = append(closers, deps.Workflows.Close)

	deps.Auctions = service.NewAuctionPoller(client, client, client, deps.SignalBus, service.AuctionConfig{
		PollInterval: cfg.Auction.PollInterval.Duration,
		TickInterval: cfg.Auction.TickInterval.Duration,
		Window:       cfg.Auction.Window.Duration,
		ReadTimeout:  cfg.Auction.ReadTimeout.Duration,
	}, logger)

	return deps, cleanup, nil
}
