// Package config loads potions configuration from environment / .env file.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ── Defaults ─────────────────────────────────────────────────────────────
const (
	DefaultRPCURL    = "http://127.0.0.1:8545"
	DefaultQuoteHost = "https://api.coingecko.com"

	// SentinelExpiry is the expiration timestamp the mint flow has always
	// submitted regardless of the requested expiry date.
	SentinelExpiry = "1590969600"

	// ExpiryOverrideOff disables the expiry override.
	ExpiryOverrideOff = "off"
)

// Contracts holds the fixed deployment addresses. Values are not validated;
// an unset address is passed through as the zero address.
type Contracts struct {
	Factory      string
	DAI          string // collateral token
	Finder       string
	TokenFactory string
	Timer        string
	PoolLP       string
}

// Retry configures the read-path backoff policy.
type Retry struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier int
}

// Config is the full process configuration.
type Config struct {
	// Wallet / chain
	RPCURL              string
	ChainID             int64 // 0 = ask the node
	PrivateKey          string
	WalletRPCURL        string
	WalletWSURL         string
	WalletAutoAuthorize bool

	// Read-only data sources
	QuoteHost           string
	HoldingsSubgraphURL string
	HoldingsDSN         string

	Contracts Contracts

	// Mint
	ExpiryOverride string

	Retry        Retry
	LoginTimeout time.Duration

	MetricsAddr string
	LogLevel    string
}

// Debug reports whether verbose diagnostic logging is enabled.
func (c *Config) Debug() bool {
	return strings.EqualFold(c.LogLevel, "DEBUG")
}

// WalletConfigured reports whether any wallet provider can be built.
func (c *Config) WalletConfigured() bool {
	return c.WalletRPCURL != "" || c.PrivateKey != ""
}

// Load reads .env (if present) then overrides from OS env vars.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, using OS environment")
	}
	return FromEnv()
}

// FromEnv builds a Config from the current process environment only.
func FromEnv() *Config {
	tokenFactory := getEnv("TOKEN_FACTORY_ADDRESS", "")

	return &Config{
		RPCURL:              getEnv("RPC_URL", DefaultRPCURL),
		ChainID:             int64(getEnvInt("CHAIN_ID", 0)),
		PrivateKey:          getEnv("PRIVATE_KEY", ""),
		WalletRPCURL:        getEnv("WALLET_RPC_URL", ""),
		WalletWSURL:         getEnv("WALLET_WS_URL", ""),
		WalletAutoAuthorize: getEnvBool("WALLET_AUTO_AUTHORIZE", false),

		QuoteHost:           getEnv("QUOTE_HOST", DefaultQuoteHost),
		HoldingsSubgraphURL: getEnv("HOLDINGS_SUBGRAPH_URL", ""),
		HoldingsDSN:         getEnv("HOLDINGS_DSN", ""),

		Contracts: Contracts{
			Factory:      getEnv("FACTORY_ADDRESS", ""),
			DAI:          getEnv("DAI_ADDRESS", ""),
			Finder:       getEnv("FINDER_ADDRESS", ""),
			TokenFactory: tokenFactory,
			// Older deployments reuse the token factory slot for the timer.
			Timer:  getEnv("TIMER_ADDRESS", tokenFactory),
			PoolLP: getEnv("POOL_LP_ADDRESS", ""),
		},

		ExpiryOverride: getEnv("EXPIRY_OVERRIDE", SentinelExpiry),

		Retry: Retry{
			MaxAttempts:       getEnvInt("RETRY_MAX_ATTEMPTS", 3),
			InitialBackoff:    time.Duration(getEnvInt("RETRY_INITIAL_BACKOFF_MS", 250)) * time.Millisecond,
			MaxBackoff:        time.Duration(getEnvInt("RETRY_MAX_BACKOFF_MS", 2000)) * time.Millisecond,
			BackoffMultiplier: getEnvInt("RETRY_BACKOFF_MULTIPLIER", 2),
		},
		LoginTimeout: getEnvSeconds("LOGIN_TIMEOUT_SEC", 30),

		MetricsAddr: getEnv("METRICS_ADDR", ""),
		LogLevel:    getEnv("LOG_LEVEL", "INFO"),
	}
}

// ── Helpers ──────────────────────────────────────────────────────────────

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// getEnvSeconds reads a duration in (fractional) seconds. Zero or negative
// values fall back, so a timeout can never be already expired.
func getEnvSeconds(key string, fallback float64) time.Duration {
	secs := getEnvFloat(key, fallback)
	if secs <= 0 {
		secs = fallback
	}
	return time.Duration(secs * float64(time.Second))
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		return strings.ToLower(v) == "true"
	}
	return fallback
}
