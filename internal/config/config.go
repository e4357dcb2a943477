// Package config defines the top-level configuration for the commitfi service
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by COMMITFI_* environment variables.
type Config struct {
	Chain          ChainConfig          `toml:"chain"`
	Contracts      ContractsConfig      `toml:"contracts"`
	Wallet         WalletConfig         `toml:"wallet"`
	Auction        AuctionConfig        `toml:"auction"`
	Workflow       WorkflowConfig       `toml:"workflow"`
	Monitor        MonitorConfig        `toml:"monitor"`
	Classification ClassificationConfig `toml:"classification"`
	Redis          RedisConfig          `toml:"redis"`
	Server         ServerConfig         `toml:"server"`
	Notify         NotifyConfig         `toml:"notify"`
	Mode           string               `toml:"mode"`
	LogLevel       string               `toml:"log_level"`
	LogFormat      string               `toml:"log_format"`
}

// ChainConfig holds the JSON-RPC endpoint and transport tuning.
type ChainConfig struct {
	RPCURL              string   `toml:"rpc_url"`
	WSURL               string   `toml:"ws_url"`
	ChainID             int64    `toml:"chain_id"`
	RateLimitPerSec     float64  `toml:"rate_limit_per_sec"`
	MaxBatchSize        int      `toml:"max_batch_size"`
	ReceiptPollInterval duration `toml:"receipt_poll_interval"`
	ReceiptTimeout      duration `toml:"receipt_timeout"`
	LogPollInterval     duration `toml:"log_poll_interval"`
	GasBufferPercent    int      `toml:"gas_buffer_percent"`
	NonceLockTTL        duration `toml:"nonce_lock_ttl"`
}

// ContractsConfig holds the deployed contract addresses.
type ContractsConfig struct {
	Factory string `toml:"factory"`
	Token   string `toml:"token"`
}

// FactoryAddress parses Factory. Call after Validate.
func (c ContractsConfig) FactoryAddress() common.Address { return common.HexToAddress(c.Factory) }

// TokenAddress parses Token. Call after Validate.
func (c ContractsConfig) TokenAddress() common.Address { return common.HexToAddress(c.Token) }

// WalletConfig holds the signing key source. Leaving both private_key and
// encrypted_key_path empty runs the service read-only.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// Configured reports whether a key source is set.
func (w WalletConfig) Configured() bool {
	return w.PrivateKey != "" || w.EncryptedKeyPath != ""
}

// AuctionConfig holds the live auction view cadence. Window overrides the
// frequency-derived round length when positive.
type AuctionConfig struct {
	PollInterval duration `toml:"poll_interval"`
	TickInterval duration `toml:"tick_interval"`
	Window       duration `toml:"window"`
	ReadTimeout  duration `toml:"read_timeout"`
}

// WorkflowConfig holds the transaction workflow parameters.
type WorkflowConfig struct {
	AllowanceAttempts int      `toml:"allowance_attempts"`
	AllowanceDelay    duration `toml:"allowance_delay"`
	MaxTracked        int      `toml:"max_tracked"`
	FaucetAmount      string   `toml:"faucet_amount"`
}

// MonitorConfig holds the group lifecycle monitor cadence.
type MonitorConfig struct {
	PollInterval duration `toml:"poll_interval"`
}

// ClassificationConfig controls how groups without groupKind() are typed.
type ClassificationConfig struct {
	ProbeFallback bool `toml:"probe_fallback"`
}

// RedisConfig holds Redis connection parameters. With Enabled false the bus,
// rate limiter and nonce lock run in process.
type RedisConfig struct {
	Enabled      bool   `toml:"enabled"`
	Addr         string `toml:"addr"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"pool_size"`
	MaxRetries   int    `toml:"max_retries"`
	TLSEnabled   bool   `toml:"tls_enabled"`
	KeyPrefix    string `toml:"key_prefix"`
	StreamMaxLen int64  `toml:"stream_max_len"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters. An empty APIKey leaves the
// write endpoints open.
type ServerConfig struct {
	Enabled         bool     `toml:"enabled"`
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	APIKey          string   `toml:"api_key"`
	RateLimitPerMin int      `toml:"rate_limit_per_min"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	DiscordUsername   string   `toml:"discord_username"`
	Events            []string `toml:"events"`
	MaxPerMinute      int      `toml:"max_per_minute"`
}

// Defaults returns a Config populated with reasonable default values for the
// Arc testnet deployment.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			RPCURL:              "https://rpc.testnet.arc.network",
			ChainID:             5042002,
			RateLimitPerSec:     10,
			MaxBatchSize:        100,
			ReceiptPollInterval: duration{time.Second},
			ReceiptTimeout:      duration{2 * time.Minute},
			LogPollInterval:     duration{3 * time.Second},
			GasBufferPercent:    20,
			NonceLockTTL:        duration{30 * time.Second},
		},
		Auction: AuctionConfig{
			PollInterval: duration{5 * time.Second},
			TickInterval: duration{time.Second},
			ReadTimeout:  duration{15 * time.Second},
		},
		Workflow: WorkflowConfig{
			AllowanceAttempts: 15,
			AllowanceDelay:    duration{2 * time.Second},
			MaxTracked:        256,
			FaucetAmount:      "1000",
		},
		Monitor: MonitorConfig{
			PollInterval: duration{30 * time.Second},
		},
		Classification: ClassificationConfig{
			ProbeFallback: true,
		},
		Redis: RedisConfig{
			Enabled:      false,
			Addr:         "localhost:6379",
			PoolSize:     20,
			MaxRetries:   3,
			KeyPrefix:    "commitfi:",
			StreamMaxLen: 1000,
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimitPerMin: 120,
		},
		Notify: NotifyConfig{
			DiscordUsername: "commitfi",
			Events:          []string{"operation_failed", "group_discovered", "group_status_changed", "round_advanced"},
			MaxPerMinute:    20,
		},
		Mode:      "full",
		LogLevel:  "info",
		LogFormat: "json",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server":  true,
	"monitor": true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"json": true,
	"text": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, monitor, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}
	if !validLogFormats[strings.ToLower(c.LogFormat)] {
		errs = append(errs, fmt.Sprintf("unknown log_format %q (valid: json, text)", c.LogFormat))
	}

	// Chain
	if c.Chain.RPCURL == "" {
		errs = append(errs, "chain: rpc_url must not be empty")
	}
	if c.Chain.ChainID <= 0 {
		errs = append(errs, "chain: chain_id must be positive")
	}
	if c.Chain.RateLimitPerSec < 0 {
		errs = append(errs, "chain: rate_limit_per_sec must be >= 0")
	}
	if c.Chain.MaxBatchSize < 1 {
		errs = append(errs, "chain: max_batch_size must be >= 1")
	}
	if c.Chain.GasBufferPercent < 0 {
		errs = append(errs, "chain: gas_buffer_percent must be >= 0")
	}

	// Contracts
	if !common.IsHexAddress(c.Contracts.Factory) {
		errs = append(errs, fmt.Sprintf("contracts: factory %q is not an address", c.Contracts.Factory))
	}
	if !common.IsHexAddress(c.Contracts.Token) {
		errs = append(errs, fmt.Sprintf("contracts: token %q is not an address", c.Contracts.Token))
	}

	// Wallet
	if c.Wallet.PrivateKey != "" && c.Wallet.EncryptedKeyPath != "" {
		errs = append(errs, "wallet: set only one of private_key and encrypted_key_path")
	}
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
	}

	// Auction
	if c.Auction.PollInterval.Duration <= 0 {
		errs = append(errs, "auction: poll_interval must be > 0")
	}
	if c.Auction.TickInterval.Duration <= 0 {
		errs = append(errs, "auction: tick_interval must be > 0")
	}
	if c.Auction.Window.Duration < 0 {
		errs = append(errs, "auction: window must be >= 0")
	}

	// Workflow
	if c.Workflow.AllowanceAttempts < 1 {
		errs = append(errs, "workflow: allowance_attempts must be >= 1")
	}
	if c.Workflow.AllowanceDelay.Duration < 0 {
		errs = append(errs, "workflow: allowance_delay must be >= 0")
	}
	if c.Workflow.MaxTracked < 1 {
		errs = append(errs, "workflow: max_tracked must be >= 1")
	}

	// Monitor
	if c.Monitor.PollInterval.Duration <= 0 {
		errs = append(errs, "monitor: poll_interval must be > 0")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimitPerMin < 0 {
			errs = append(errs, "server: rate_limit_per_min must be >= 0")
		}
	}
	if strings.EqualFold(c.Mode, "server") && !c.Server.Enabled {
		errs = append(errs, "server: must be enabled for mode server")
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
