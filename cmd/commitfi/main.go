// Command commitfi is the backend entry point for the savings-group service.
// It loads configuration, validates it, wires dependencies, sets up signal
// handling, and starts the application in the configured mode.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/alanyoungcy/commitfi/internal/app"
	"github.com/alanyoungcy/commitfi/internal/config"
	"github.com/alanyoungcy/commitfi/internal/crypto"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	encryptOut := flag.String("encrypt-key-out", "", "encrypt wallet.private_key with wallet.key_password into this file and exit")
	flag.Parse()

	logger := newLogger(os.Stdout, "json", "info")
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	logger = newLogger(os.Stdout, cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	if *encryptOut != "" {
		if err := writeKeyFile(cfg, *encryptOut); err != nil {
			logger.Error("failed to encrypt key", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("encrypted key written", slog.String("path", *encryptOut))
		return
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("commitfi starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
	)

	application := app.New(cfg, logger)
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		// context.Canceled is expected on clean shutdown.
		if errors.Is(err, context.Canceled) {
			logger.Info("application shut down gracefully")
		} else {
			logger.Error("application exited with error",
				slog.String("error", err.Error()),
			)
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
	}

	logger.Info("commitfi stopped")
}

// newLogger builds the process logger. "text" gets the colourised tint
// handler for terminals; anything else is JSON.
func newLogger(w io.Writer, format, levelName string) *slog.Logger {
	var level slog.Level
	switch levelName {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	if format == "text" {
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		}))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

func writeKeyFile(cfg *config.Config, path string) error {
	if cfg.Wallet.PrivateKey == "" || cfg.Wallet.KeyPassword == "" {
		return errors.New("wallet.private_key and wallet.key_password are required")
	}
	data, err := crypto.EncryptKey(cfg.Wallet.PrivateKey, cfg.Wallet.KeyPassword)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
