package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validTestConfig builds a fully defaulted config the way load() would.
func validTestConfig() *Config {
	builtin := GetBuiltinConfig()
	providers := make(map[string]*ProviderConfig, len(builtin.Providers))
	for name, p := range builtin.Providers {
		pCopy := p
		providers[name] = &pCopy
	}
	return &Config{
		Source:           DefaultSourceConfig(),
		Ingest:           DefaultIngestConfig(),
		Enrich:           DefaultEnrichConfig(),
		Normalize:        DefaultNormalizeConfig(),
		Embed:            DefaultEmbedConfig(),
		Cluster:          DefaultClusterConfig(),
		Story:            DefaultStoryConfig(),
		Queue:            DefaultQueueConfig(),
		API:              DefaultAPIConfig(),
		Schedules:        DefaultSchedules(),
		ProviderRegistry: NewProviderRegistry(providers),
	}
}

func TestValidateAllDefaults(t *testing.T) {
	cfg := validTestConfig()
	require.NoError(t, NewValidator(cfg).ValidateAll())
}

func TestValidateProviderErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name: "unknown normalize provider",
			mutate: func(c *Config) {
				c.Normalize.Provider = "nope"
			},
			want: "provider not found",
		},
		{
			name: "embedding entry used as chat provider",
			mutate: func(c *Config) {
				c.Cluster.CurateProvider = "google-embedding"
			},
			want: "not a chat provider",
		},
		{
			name: "chat entry used as embedding provider",
			mutate: func(c *Config) {
				c.Embed.Provider = "openrouter"
			},
			want: "not an embedding provider",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			tt.mutate(cfg)
			err := NewValidator(cfg).ValidateAll()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidatePipelineBounds(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero similarity threshold", func(c *Config) { c.Cluster.SimilarityThreshold = 0 }},
		{"similarity threshold above one", func(c *Config) { c.Cluster.SimilarityThreshold = 1.5 }},
		{"min cluster size below two", func(c *Config) { c.Cluster.MinClusterSize = 1 }},
		{"zero max days window", func(c *Config) { c.Cluster.MaxDaysWindow = 0 }},
		{"zero embed dimensions", func(c *Config) { c.Embed.Dimensions = 0 }},
		{"zero handle batch size", func(c *Config) { c.Ingest.HandleBatchSize = 0 }},
		{"default limit above max", func(c *Config) { c.Story.DefaultLimit = c.Story.MaxLimit + 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			tt.mutate(cfg)
			assert.Error(t, NewValidator(cfg).ValidateAll())
		})
	}
}

func TestValidateQueueBounds(t *testing.T) {
	cfg := validTestConfig()
	cfg.Queue.OrphanThreshold = cfg.Queue.HeartbeatInterval
	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "orphan_threshold")
}

func TestValidateScheduleDuplicates(t *testing.T) {
	cfg := validTestConfig()
	cfg.Schedules = append(cfg.Schedules, ScheduleConfig{Name: "cluster-sync", Kind: "cluster.sync", Interval: DefaultSchedules()[2].Interval, Enabled: true})
	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate schedule name")
}

func TestQueueConfigAccessors(t *testing.T) {
	q := DefaultQueueConfig()

	assert.Equal(t, 1, q.CapFor("cluster.sync"))
	assert.Equal(t, 4, q.CapFor("post.preprocess"))
	assert.Equal(t, 0, q.CapFor("unknown.kind"))

	assert.Equal(t, q.KindTimeouts["cluster.review"], q.TimeoutFor("cluster.review"))
	assert.Equal(t, q.DefaultJobTimeout, q.TimeoutFor("unknown.kind"))

	assert.Equal(t, 2, q.MaxAttemptsFor("ingest.accounts"))
	assert.Equal(t, 3, q.MaxAttemptsFor("cluster.sync"))
}
