// Package config defines the top-level configuration for the easybet engine
// and provides validation helpers.
package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by EASYBET_* environment variables.
type Config struct {
	Chain    ChainConfig    `toml:"chain"`
	Token    TokenConfig    `toml:"token"`
	Genesis  GenesisConfig  `toml:"genesis"`
	Operator OperatorConfig `toml:"operator"`
	Postgres PostgresConfig `toml:"postgres"`
	SQLite   SQLiteConfig   `toml:"sqlite"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Snapshot SnapshotConfig `toml:"snapshot"`
	Archive  ArchiveConfig  `toml:"archive"`
	Lock     LockConfig     `toml:"lock"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// ChainConfig fixes the chain id permits are signed for.
type ChainConfig struct {
	ChainID uint64 `toml:"chain_id"`
}

// TokenConfig describes the fungible token. Amounts are decimal strings in
// base units.
type TokenConfig struct {
	Name     string `toml:"name"`
	Symbol   string `toml:"symbol"`
	Decimals uint8  `toml:"decimals"`
	Faucet   string `toml:"faucet"`
	Owner    string `toml:"owner"`
}

// GenesisConfig lists opening balances keyed by hex address.
type GenesisConfig struct {
	Native map[string]string `toml:"native"`
	Token  map[string]string `toml:"token"`
}

// OperatorConfig holds the key that seals journal entries. Both fields empty
// leaves the journal unsigned.
type OperatorConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// SQLiteConfig points standalone mode at a database file.
type SQLiteConfig struct {
	Path string `toml:"path"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr         string `toml:"addr"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"pool_size"`
	MaxRetries   int    `toml:"max_retries"`
	TLSEnabled   bool   `toml:"tls_enabled"`
	StreamMaxLen int64  `toml:"stream_max_len"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
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

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey guards /api/admin. Empty leaves admin routes open.
	APIKey string `toml:"api_key"`
	// RequireSignatures makes callers sign each mutating request. When false
	// the X-Account header is trusted.
	RequireSignatures bool     `toml:"require_signatures"`
	SignatureMaxSkew  duration `toml:"signature_max_skew"`
	// RateLimit caps requests per client IP within RateWindow.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
	// CallRateLimit caps mutating calls per account within RateWindow.
	CallRateLimit int `toml:"call_rate_limit"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	// LargeClaim is the payout, in base units, at or above which a claim is
	// announced.
	LargeClaim string `toml:"large_claim"`
}

// SnapshotConfig controls how often the engine state is written to S3.
type SnapshotConfig struct {
	EveryCalls int      `toml:"every_calls"`
	Interval   duration `toml:"interval"`
}

// ArchiveConfig controls copying old journal data to S3.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
}

// LockConfig sets the single-writer lock lease.
type LockConfig struct {
	Key string   `toml:"key"`
	TTL duration `toml:"ttl"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{ChainID: 31337},
		Token: TokenConfig{
			Name:     "Lottery Token",
			Symbol:   "LTK",
			Decimals: 18,
			Faucet:   "1000000000000000000000",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "easybet",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		SQLite: SQLiteConfig{Path: "easybet.db"},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     20,
			MaxRetries:   3,
			StreamMaxLen: 100_000,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "easybet-data",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:          true,
			Port:             8000,
			CORSOrigins:      []string{"http://localhost:3000", "http://localhost:5173"},
			SignatureMaxSkew: duration{30 * time.Second},
			RateLimit:        120,
			RateWindow:       duration{time.Minute},
			CallRateLimit:    30,
		},
		Notify: NotifyConfig{
			Events:     []string{"project_finished", "large_claim", "journal_failure"},
			LargeClaim: "10000000000000000000000",
		},
		Snapshot: SnapshotConfig{
			EveryCalls: 1000,
			Interval:   duration{10 * time.Minute},
		},
		Archive: ArchiveConfig{
			RetentionDays: 90,
			Interval:      duration{24 * time.Hour},
		},
		Lock: LockConfig{
			Key: "engine:writer",
			TTL: duration{15 * time.Second},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"full":       true,
	"standalone": true,
	"verify":     true,
	"archive":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: full, standalone, verify, archive)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Chain.ChainID == 0 {
		errs = append(errs, "chain: chain_id must be positive")
	}

	// Token
	if c.Token.Name == "" || c.Token.Symbol == "" {
		errs = append(errs, "token: name and symbol must not be empty")
	}
	if c.Token.Faucet != "" {
		if _, err := uint256.FromDecimal(c.Token.Faucet); err != nil {
			errs = append(errs, fmt.Sprintf("token: faucet %q is not a decimal amount", c.Token.Faucet))
		}
	}
	if c.Token.Owner != "" && !common.IsHexAddress(c.Token.Owner) {
		errs = append(errs, fmt.Sprintf("token: owner %q is not an address", c.Token.Owner))
	}

	// Genesis
	for _, g := range []struct {
		name string
		m    map[string]string
	}{{"native", c.Genesis.Native}, {"token", c.Genesis.Token}} {
		for _, addr := range sortedKeys(g.m) {
			if !common.IsHexAddress(addr) {
				errs = append(errs, fmt.Sprintf("genesis.%s: %q is not an address", g.name, addr))
			}
			if _, err := uint256.FromDecimal(g.m[addr]); err != nil {
				errs = append(errs, fmt.Sprintf("genesis.%s: balance of %s is not a decimal amount", g.name, addr))
			}
		}
	}

	// Operator
	if c.Operator.EncryptedKeyPath != "" && c.Operator.KeyPassword == "" {
		errs = append(errs, "operator: key_password is required when encrypted_key_path is set")
	}

	// Storage
	switch mode {
	case "full", "verify", "archive":
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
		if c.S3.Endpoint == "" || c.S3.Bucket == "" {
			errs = append(errs, "s3: endpoint and bucket must not be empty")
		}
	case "standalone":
		if c.SQLite.Path == "" {
			errs = append(errs, "sqlite: path must not be empty in standalone mode")
		}
	}
	if mode == "full" {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Lock.Key == "" || c.Lock.TTL.Duration <= 0 {
			errs = append(errs, "lock: key and a positive ttl are required")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RequireSignatures && c.Server.SignatureMaxSkew.Duration <= 0 {
			errs = append(errs, "server: signature_max_skew must be > 0 when require_signatures is set")
		}
		if c.Server.RateLimit < 0 || c.Server.CallRateLimit < 0 {
			errs = append(errs, "server: rate limits must be >= 0")
		}
		if (c.Server.RateLimit > 0 || c.Server.CallRateLimit > 0) && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0 when a rate limit is set")
		}
	}

	if c.Notify.LargeClaim != "" {
		if _, err := uint256.FromDecimal(c.Notify.LargeClaim); err != nil {
			errs = append(errs, fmt.Sprintf("notify: large_claim %q is not a decimal amount", c.Notify.LargeClaim))
		}
	}
	if c.Snapshot.EveryCalls < 0 {
		errs = append(errs, "snapshot: every_calls must be >= 0")
	}
	if c.Archive.Enabled && c.Archive.RetentionDays < 1 {
		errs = append(errs, "archive: retention_days must be >= 1 when enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
