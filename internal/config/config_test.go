package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GITHUB_TOKENS", "")

	cfg := Load()
	assert.Equal(t, "file", cfg.Backend)
	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, "wall-of-shame-baseline", cfg.OrphanBranch)
	assert.Equal(t, 30*time.Second, cfg.PollInterval)
	assert.Equal(t, 10*time.Minute, cfg.PollTimeout)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 32, cfg.ToxicityBatchSize)
	assert.Empty(t, cfg.Tokens)
}

func TestLoadParsesTokenList(t *testing.T) {
	t.Setenv("GITHUB_TOKENS", "tok-a, tok-b , ,tok-c")

	cfg := Load()
	assert.Equal(t, []string{"tok-a", "tok-b", "tok-c"}, cfg.Tokens)
	assert.NoError(t, cfg.RequireTokens())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("POLL_INTERVAL", "5s")
	t.Setenv("POLL_TIMEOUT", "1m")
	t.Setenv("STORAGE_BACKEND", "sqlite")
	t.Setenv("TOXICITY_BATCH_SIZE", "8")
	t.Setenv("CACHE_TTL", "90s")

	cfg := Load()
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, time.Minute, cfg.PollTimeout)
	assert.Equal(t, "sqlite", cfg.Backend)
	assert.Equal(t, 8, cfg.ToxicityBatchSize)
	assert.Equal(t, 90*time.Second, cfg.CacheTTL)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("POLL_INTERVAL", "soon")
	t.Setenv("TOXICITY_BATCH_SIZE", "many")

	cfg := Load()
	assert.Equal(t, 30*time.Second, cfg.PollInterval)
	assert.Equal(t, 32, cfg.ToxicityBatchSize)
}

func TestRequireChecks(t *testing.T) {
	t.Setenv("GITHUB_TOKENS", "")
	t.Setenv("ADMIN_TOKEN", "")

	cfg := Load()
	require.Error(t, cfg.RequireTokens())
	require.Error(t, cfg.RequireAdminToken())

	t.Setenv("ADMIN_TOKEN", "ghp_admin")
	cfg = Load()
	assert.NoError(t, cfg.RequireAdminToken())
}
