package config

// Config is the umbrella configuration object returned by Initialize()
// and threaded through the application.
type Config struct {
	configDir string

	Source    *SourceConfig
	Ingest    *IngestConfig
	Enrich    *EnrichConfig
	Normalize *NormalizeConfig
	Embed     *EmbedConfig
	Cluster   *ClusterConfig
	Story     *StoryConfig
	Queue     *QueueConfig
	API       *APIConfig
	Schedules []ScheduleConfig

	ProviderRegistry *ProviderRegistry
}

// Stats contains statistics about loaded configuration
type Stats struct {
	Providers int
	Handles   int
	Keywords  int
	Schedules int
}

// Stats returns configuration statistics for logging/monitoring
func (c *Config) Stats() Stats {
	s := Stats{Schedules: len(c.Schedules)}
	if c.ProviderRegistry != nil {
		s.Providers = c.ProviderRegistry.Len()
	}
	if c.Ingest != nil {
		s.Handles = len(c.Ingest.Handles)
		s.Keywords = len(c.Ingest.Keywords)
	}
	return s
}

// ConfigDir returns the configuration directory path
func (c *Config) ConfigDir() string {
	return c.configDir
}

// GetProvider retrieves a provider configuration by name.
// This is a convenience method that wraps ProviderRegistry.Get().
func (c *Config) GetProvider(name string) (*ProviderConfig, error) {
	return c.ProviderRegistry.Get(name)
}
