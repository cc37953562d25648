package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("WORK_DIR", dir)
	t.Setenv("BUDGETGUARD_CONFIG", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, filepath.Join(dir, "budgetguard.db"), cfg.DBPath)
	assert.Equal(t, int64(256<<10), cfg.MaxBodyBytes)
	assert.Equal(t, 10*time.Second, cfg.ImportTimeout)
	assert.Equal(t, int64(100_000), cfg.ImportMaxBytes)
	assert.Equal(t, 30*time.Minute, cfg.CheckoutTTL)
	assert.Equal(t, "19.00", cfg.PackPriceUSD)
	assert.Equal(t, 90, cfg.EventRetentionDays)
	assert.Empty(t, cfg.ConfigFile)
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("WORK_DIR", dir)
	t.Setenv("BUDGETGUARD_CONFIG", "")

	toml := `
port = "9090"
rate_limit_per_minute = 5
webhook_urls = ["https://hooks.example.com/a"]

[import]
timeout_seconds = 3
allowed_hosts = ["github.com", "raw.githubusercontent.com"]

[checkout]
price_usd = "29.00"
ttl_minutes = 5

[telegram]
chat_id = 42
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "budgetguard.toml"), []byte(toml), 0o644))
	t.Setenv("PORT", "7070")
	t.Setenv("IMPORT_ALLOWED_HOSTS", " gitlab.com , ,github.com")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Port)
	assert.Equal(t, 5, cfg.RateLimitPerMinute)
	assert.Equal(t, 3*time.Second, cfg.ImportTimeout)
	assert.Equal(t, []string{"gitlab.com", "github.com"}, cfg.ImportAllowedHosts)
	assert.Equal(t, "29.00", cfg.PackPriceUSD)
	assert.Equal(t, 5*time.Minute, cfg.CheckoutTTL)
	assert.Equal(t, int64(42), cfg.TelegramChatID)
	assert.Equal(t, []string{"https://hooks.example.com/a"}, cfg.WebhookURLs)
	assert.Equal(t, filepath.Join(dir, "budgetguard.toml"), cfg.ConfigFile)
}

func TestLoad_ExplicitFileMustExist(t *testing.T) {
	t.Setenv("WORK_DIR", t.TempDir())
	t.Setenv("BUDGETGUARD_CONFIG", filepath.Join(t.TempDir(), "missing.toml"))

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("WORK_DIR", dir)
	t.Setenv("BUDGETGUARD_CONFIG", "")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "budgetguard.toml"), []byte("port = "), 0o644))

	_, err := Load()
	assert.Error(t, err)
}
