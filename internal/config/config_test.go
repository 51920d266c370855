package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()

	assert.Equal(t, DefaultRPCURL, cfg.RPCURL)
	assert.Equal(t, DefaultQuoteHost, cfg.QuoteHost)
	assert.Equal(t, SentinelExpiry, cfg.ExpiryOverride)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.InitialBackoff)
	assert.Equal(t, 30*time.Second, cfg.LoginTimeout)
	assert.False(t, cfg.WalletConfigured())
	assert.False(t, cfg.Debug())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("RPC_URL", "http://node:8545")
	t.Setenv("PRIVATE_KEY", "0xabc")
	t.Setenv("FACTORY_ADDRESS", "0x1111111111111111111111111111111111111111")
	t.Setenv("TOKEN_FACTORY_ADDRESS", "0x2222222222222222222222222222222222222222")
	t.Setenv("RETRY_MAX_ATTEMPTS", "5")
	t.Setenv("LOGIN_TIMEOUT_SEC", "1.5")
	t.Setenv("WALLET_AUTO_AUTHORIZE", "TRUE")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := FromEnv()

	require.True(t, cfg.WalletConfigured())
	assert.Equal(t, "http://node:8545", cfg.RPCURL)
	assert.Equal(t, "0x1111111111111111111111111111111111111111", cfg.Contracts.Factory)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 1500*time.Millisecond, cfg.LoginTimeout)
	assert.True(t, cfg.WalletAutoAuthorize)
	assert.True(t, cfg.Debug())
}

func TestTimerFallsBackToTokenFactory(t *testing.T) {
	t.Setenv("TOKEN_FACTORY_ADDRESS", "0x2222222222222222222222222222222222222222")

	cfg := FromEnv()
	assert.Equal(t, cfg.Contracts.TokenFactory, cfg.Contracts.Timer)

	t.Setenv("TIMER_ADDRESS", "0x3333333333333333333333333333333333333333")
	cfg = FromEnv()
	assert.Equal(t, "0x3333333333333333333333333333333333333333", cfg.Contracts.Timer)
}

func TestInvalidNumbersFallBack(t *testing.T) {
	t.Setenv("CHAIN_ID", "not-a-number")
	t.Setenv("RETRY_MAX_ATTEMPTS", "")

	cfg := FromEnv()
	assert.Equal(t, int64(0), cfg.ChainID)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
}

func TestNonPositiveLoginTimeoutFallsBack(t *testing.T) {
	for _, v := range []string{"0", "-5"} {
		t.Setenv("LOGIN_TIMEOUT_SEC", v)
		assert.Equal(t, 30*time.Second, FromEnv().LoginTimeout, "LOGIN_TIMEOUT_SEC=%s", v)
	}
}
