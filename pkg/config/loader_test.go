package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestConfigDir(t *testing.T) string {
	t.Helper()
	configDir := t.TempDir()

	tidelineYAML := `
ingest:
  handles: [reuters, apnews, ft]
  keywords: [earnings, acquisition]
  blocked_accounts: [spambot9000]
cluster:
  similarity_threshold: 0.94
`
	err := os.WriteFile(filepath.Join(configDir, "tideline.yaml"), []byte(tidelineYAML), 0644)
	require.NoError(t, err)

	providersYAML := `
providers:
  custom-chat:
    kind: chat
    type: openrouter
    model: openai/gpt-4o
    api_key_env: OPENROUTER_API_KEY
`
	err = os.WriteFile(filepath.Join(configDir, "llm-providers.yaml"), []byte(providersYAML), 0644)
	require.NoError(t, err)

	return configDir
}

func TestInitialize(t *testing.T) {
	configDir := setupTestConfigDir(t)

	ctx := context.Background()
	cfg, err := Initialize(ctx, configDir)

	require.NoError(t, err)
	require.NotNil(t, cfg)

	// User values applied
	assert.Equal(t, []string{"reuters", "apnews", "ft"}, cfg.Ingest.Handles)
	assert.Equal(t, []string{"spambot9000"}, cfg.Ingest.BlockedAccounts)

	// Unset fields keep built-in defaults
	assert.Equal(t, 8, cfg.Ingest.HandleBatchSize)
	assert.Equal(t, 5500*time.Millisecond, cfg.Ingest.InterBatchDelay)
	assert.Equal(t, 2, cfg.Ingest.KeywordPages)
	assert.Equal(t, 50, cfg.Ingest.UpsertBatchSize)
	assert.Equal(t, 0.94, cfg.Cluster.SimilarityThreshold)
	assert.Equal(t, 0.25, cfg.Cluster.MatchJaccardThreshold)
	assert.Equal(t, 1536, cfg.Embed.Dimensions)
	assert.Equal(t, "CLUSTERING", cfg.Embed.TaskType)
	assert.Equal(t, 45*time.Second, cfg.Normalize.Timeout)

	// Built-in and user providers both present
	assert.True(t, cfg.ProviderRegistry.Has("openrouter"))
	assert.True(t, cfg.ProviderRegistry.Has("portkey"))
	assert.True(t, cfg.ProviderRegistry.Has("google-embedding"))
	assert.True(t, cfg.ProviderRegistry.Has("custom-chat"))

	// Default schedules installed
	require.Len(t, cfg.Schedules, 5)
	names := make([]string, 0, len(cfg.Schedules))
	for _, s := range cfg.Schedules {
		names = append(names, s.Name)
	}
	assert.Contains(t, names, "ingest-accounts")
	assert.Contains(t, names, "cluster-sync")

	stats := cfg.Stats()
	assert.Equal(t, 3, stats.Handles)
	assert.Greater(t, stats.Providers, 3)
}

func TestInitializeConfigNotFound(t *testing.T) {
	ctx := context.Background()
	_, err := Initialize(ctx, "/nonexistent/directory")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load configuration")
}

func TestInitializeInvalidYAML(t *testing.T) {
	configDir := t.TempDir()

	err := os.WriteFile(filepath.Join(configDir, "tideline.yaml"), []byte("{{{"), 0644)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = Initialize(ctx, configDir)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidYAML)
}

func TestInitializeMissingProvidersFileUsesBuiltins(t *testing.T) {
	configDir := t.TempDir()
	err := os.WriteFile(filepath.Join(configDir, "tideline.yaml"), []byte("ingest:\n  handles: [reuters]\n"), 0644)
	require.NoError(t, err)

	ctx := context.Background()
	cfg, err := Initialize(ctx, configDir)

	require.NoError(t, err)
	assert.True(t, cfg.ProviderRegistry.Has("openrouter"))
	assert.True(t, cfg.ProviderRegistry.Has("google-embedding"))
}

func TestInitializeEnvExpansion(t *testing.T) {
	configDir := t.TempDir()
	t.Setenv("TEST_SCRAPING_KEY_ENV", "MY_PROXY_KEY")

	tidelineYAML := `
enrich:
  scraping_proxy_key_env: "{{.TEST_SCRAPING_KEY_ENV}}"
`
	err := os.WriteFile(filepath.Join(configDir, "tideline.yaml"), []byte(tidelineYAML), 0644)
	require.NoError(t, err)

	ctx := context.Background()
	cfg, err := Initialize(ctx, configDir)

	require.NoError(t, err)
	assert.Equal(t, "MY_PROXY_KEY", cfg.Enrich.ScrapingProxyKeyEnv)
}

func TestInitializeUnknownProviderReference(t *testing.T) {
	configDir := t.TempDir()

	tidelineYAML := `
normalize:
  provider: does-not-exist
`
	err := os.WriteFile(filepath.Join(configDir, "tideline.yaml"), []byte(tidelineYAML), 0644)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = Initialize(ctx, configDir)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderNotFound)
}
