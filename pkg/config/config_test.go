package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"smallbiznis-tokenomics/pkg/hashistack/secretmanager"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "0.05", cfg.Tokens.BurnRates.CourseSale)
	require.Equal(t, "0.03", cfg.Tokens.BurnRates.EarningsWithdrawal)
	require.Equal(t, "0.02", cfg.Tokens.BurnRates.TokenRedemption)
	require.NotNil(t, cfg.Tokens.Blockchain.Retry.MaxRetries)
	require.Equal(t, 3, *cfg.Tokens.Blockchain.Retry.MaxRetries)
	require.Equal(t, time.Second, cfg.Tokens.Blockchain.Retry.InitialDelay)
	require.Equal(t, 30*time.Second, cfg.Tokens.Blockchain.Retry.MaxDelay)
	require.Equal(t, 2.0, cfg.Tokens.Blockchain.Retry.BackoffMultiplier)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte(`
APP_ENV: staging
TOKENS:
  BURN_RATES:
    COURSE_SALE: "0.07"
  BLOCKCHAIN:
    RETRY:
      MAX_RETRIES: 5
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))
	t.Chdir(dir)
	t.Setenv("TOKENS_BUY_ORDER_MIN_BUY_AMOUNT", "250")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "staging", cfg.AppEnv)
	require.Equal(t, "0.07", cfg.Tokens.BurnRates.CourseSale)
	require.Equal(t, 5, *cfg.Tokens.Blockchain.Retry.MaxRetries)
	require.Equal(t, "250", cfg.Tokens.BuyOrder.MinBuyAmount)
}

func TestLoadZeroRetries(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("TOKENS_BLOCKCHAIN_RETRY_MAX_RETRIES", "0")

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg.Tokens.Blockchain.Retry.MaxRetries)
	require.Equal(t, 0, *cfg.Tokens.Blockchain.Retry.MaxRetries)
}

func TestApplySecrets(t *testing.T) {
	cfg := &Config{}
	cfg.Database.User = "keep"
	cfg.ApplySecrets(secretmanager.Secrets{
		"postgres_password":      "pw",
		"blockchain_signing_key": "k",
	})
	require.Equal(t, "keep", cfg.Database.User)
	require.Equal(t, "pw", cfg.Database.Password)
	require.Equal(t, "k", cfg.Tokens.Blockchain.SigningKey)
}
