package config

import "fmt"

// ConfigValidator validates configuration comprehensively with clear error messages
type ConfigValidator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration
func NewValidator(cfg *Config) *ConfigValidator {
	return &ConfigValidator{cfg: cfg}
}

// ValidateAll performs comprehensive validation (fail-fast - stops at first error)
func (v *ConfigValidator) ValidateAll() error {
	// Providers first: pipeline sections reference them by name.

	if err := v.validateProviders(); err != nil {
		return fmt.Errorf("provider validation failed: %w", err)
	}

	if err := v.validatePipeline(); err != nil {
		return fmt.Errorf("pipeline validation failed: %w", err)
	}

	if err := v.validateQueue(); err != nil {
		return fmt.Errorf("queue validation failed: %w", err)
	}

	if err := v.validateSchedules(); err != nil {
		return fmt.Errorf("schedule validation failed: %w", err)
	}

	return nil
}

func (v *ConfigValidator) validateProviders() error {
	for name, p := range v.cfg.ProviderRegistry.providers {
		if !p.Kind.IsValid() {
			return NewValidationError("provider", name, "kind", fmt.Errorf("invalid kind: %s", p.Kind))
		}
		switch p.Kind {
		case ProviderKindChat:
			if !p.ChatType().IsValid() {
				return NewValidationError("provider", name, "type", fmt.Errorf("invalid chat provider type: %s", p.Type))
			}
		case ProviderKindEmbedding:
			if !p.EmbeddingType().IsValid() {
				return NewValidationError("provider", name, "type", fmt.Errorf("invalid embedding provider type: %s", p.Type))
			}
		}
		if p.Model == "" {
			return NewValidationError("provider", name, "model", ErrMissingRequiredField)
		}
	}
	return nil
}

func (v *ConfigValidator) validatePipeline() error {
	c := v.cfg

	if _, err := c.ProviderRegistry.GetChat(c.Normalize.Provider); err != nil {
		return NewValidationError("normalize", "", "provider", err)
	}
	if _, err := c.ProviderRegistry.GetChat(c.Enrich.ImageProvider); err != nil {
		return NewValidationError("enrich", "", "image_provider", err)
	}
	if _, err := c.ProviderRegistry.GetChat(c.Cluster.CurateProvider); err != nil {
		return NewValidationError("cluster", "", "curate_provider", err)
	}
	if _, err := c.ProviderRegistry.GetChat(c.Cluster.ReviewProvider); err != nil {
		return NewValidationError("cluster", "", "review_provider", err)
	}
	if _, err := c.ProviderRegistry.GetEmbedding(c.Embed.Provider); err != nil {
		return NewValidationError("embed", "", "provider", err)
	}

	if c.Embed.Dimensions < 1 {
		return NewValidationError("embed", "", "dimensions", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if c.Cluster.SimilarityThreshold <= 0 || c.Cluster.SimilarityThreshold > 1 {
		return NewValidationError("cluster", "", "similarity_threshold", fmt.Errorf("%w: must be in (0, 1]", ErrInvalidValue))
	}
	if c.Cluster.MatchJaccardThreshold <= 0 || c.Cluster.MatchJaccardThreshold > 1 {
		return NewValidationError("cluster", "", "match_jaccard_threshold", fmt.Errorf("%w: must be in (0, 1]", ErrInvalidValue))
	}
	if c.Cluster.MinClusterSize < 2 {
		return NewValidationError("cluster", "", "min_cluster_size", fmt.Errorf("%w: must be at least 2", ErrInvalidValue))
	}
	if c.Cluster.MaxDaysWindow < 1 {
		return NewValidationError("cluster", "", "max_days_window", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if c.Ingest.HandleBatchSize < 1 {
		return NewValidationError("ingest", "", "handle_batch_size", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if c.Ingest.UpsertBatchSize < 1 {
		return NewValidationError("ingest", "", "upsert_batch_size", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if c.Story.DefaultLimit < 1 || c.Story.DefaultLimit > c.Story.MaxLimit {
		return NewValidationError("story", "", "default_limit", fmt.Errorf("%w: must be in [1, max_limit]", ErrInvalidValue))
	}

	return nil
}

func (v *ConfigValidator) validateQueue() error {
	q := v.cfg.Queue

	if q.WorkerCount < 1 {
		return NewValidationError("queue", "", "worker_count", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if q.MaxAttempts < 1 {
		return NewValidationError("queue", "", "max_attempts", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if q.PollInterval <= 0 {
		return NewValidationError("queue", "", "poll_interval", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if q.OrphanThreshold <= q.HeartbeatInterval {
		return NewValidationError("queue", "", "orphan_threshold", fmt.Errorf("%w: must exceed heartbeat_interval", ErrInvalidValue))
	}
	for kind, limit := range q.KindCaps {
		if limit < 0 {
			return NewValidationError("queue", kind, "kind_caps", fmt.Errorf("%w: must be non-negative", ErrInvalidValue))
		}
	}

	return nil
}

func (v *ConfigValidator) validateSchedules() error {
	seen := make(map[string]bool, len(v.cfg.Schedules))
	for _, s := range v.cfg.Schedules {
		if s.Name == "" {
			return NewValidationError("schedule", "", "name", ErrMissingRequiredField)
		}
		if seen[s.Name] {
			return NewValidationError("schedule", s.Name, "name", fmt.Errorf("%w: duplicate schedule name", ErrInvalidValue))
		}
		seen[s.Name] = true
		if s.Kind == "" {
			return NewValidationError("schedule", s.Name, "kind", ErrMissingRequiredField)
		}
		if s.Enabled && s.Interval <= 0 {
			return NewValidationError("schedule", s.Name, "interval", fmt.Errorf("%w: must be positive", ErrInvalidValue))
		}
	}
	return nil
}
