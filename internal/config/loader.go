package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies COMMITFI_* environment variable overrides, and
// returns the final Config. A missing file is not an error, so a deployment
// can be configured from the environment alone. The returned Config has NOT
// been validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known COMMITFI_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty).
func applyEnvOverrides(cfg *Config) {
	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "COMMITFI_CHAIN_RPC_URL")
	setStr(&cfg.Chain.WSURL, "COMMITFI_CHAIN_WS_URL")
	setInt64(&cfg.Chain.ChainID, "COMMITFI_CHAIN_ID")
	setFloat64(&cfg.Chain.RateLimitPerSec, "COMMITFI_CHAIN_RATE_LIMIT_PER_SEC")
	setInt(&cfg.Chain.MaxBatchSize, "COMMITFI_CHAIN_MAX_BATCH_SIZE")
	setDuration(&cfg.Chain.ReceiptPollInterval, "COMMITFI_CHAIN_RECEIPT_POLL_INTERVAL")
	setDuration(&cfg.Chain.ReceiptTimeout, "COMMITFI_CHAIN_RECEIPT_TIMEOUT")
	setInt(&cfg.Chain.GasBufferPercent, "COMMITFI_CHAIN_GAS_BUFFER_PERCENT")

	// ── Contracts ──
	setStr(&cfg.Contracts.Factory, "COMMITFI_CONTRACTS_FACTORY")
	setStr(&cfg.Contracts.Token, "COMMITFI_CONTRACTS_TOKEN")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "COMMITFI_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "COMMITFI_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "COMMITFI_WALLET_KEY_PASSWORD")

	// ── Auction ──
	setDuration(&cfg.Auction.PollInterval, "COMMITFI_AUCTION_POLL_INTERVAL")
	setDuration(&cfg.Auction.TickInterval, "COMMITFI_AUCTION_TICK_INTERVAL")
	setDuration(&cfg.Auction.Window, "COMMITFI_AUCTION_WINDOW")
	setDuration(&cfg.Auction.ReadTimeout, "COMMITFI_AUCTION_READ_TIMEOUT")

	// ── Workflow ──
	setInt(&cfg.Workflow.AllowanceAttempts, "COMMITFI_WORKFLOW_ALLOWANCE_ATTEMPTS")
	setDuration(&cfg.Workflow.AllowanceDelay, "COMMITFI_WORKFLOW_ALLOWANCE_DELAY")
	setInt(&cfg.Workflow.MaxTracked, "COMMITFI_WORKFLOW_MAX_TRACKED")
	setStr(&cfg.Workflow.FaucetAmount, "COMMITFI_WORKFLOW_FAUCET_AMOUNT")

	// ── Monitor / classification ──
	setDuration(&cfg.Monitor.PollInterval, "COMMITFI_MONITOR_POLL_INTERVAL")
	setBool(&cfg.Classification.ProbeFallback, "COMMITFI_CLASSIFICATION_PROBE_FALLBACK")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "COMMITFI_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "COMMITFI_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "COMMITFI_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "COMMITFI_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "COMMITFI_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "COMMITFI_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "COMMITFI_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "COMMITFI_REDIS_KEY_PREFIX")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "COMMITFI_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "COMMITFI_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "COMMITFI_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "COMMITFI_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimitPerMin, "COMMITFI_SERVER_RATE_LIMIT_PER_MIN")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "COMMITFI_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "COMMITFI_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "COMMITFI_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "COMMITFI_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "COMMITFI_MODE")
	setStr(&cfg.LogLevel, "COMMITFI_LOG_LEVEL")
	setStr(&cfg.LogFormat, "COMMITFI_LOG_FORMAT")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
