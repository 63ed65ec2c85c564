package config

import "time"

// SourceConfig configures the post search provider client.
type SourceConfig struct {
	// BaseURL is the search API endpoint
	BaseURL string `yaml:"base_url"`

	// APIKeyEnv is the environment variable holding the bearer token
	APIKeyEnv string `yaml:"api_key_env"`

	// RequestTimeout bounds a single search page fetch
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// MaxRetries is the attempt cap for rate-limited or transient failures
	MaxRetries int `yaml:"max_retries"`

	// RetryBaseDelay is doubled per attempt: base * 2^(attempt-1)
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`

	// PageSize is the requested result count per search page
	PageSize int `yaml:"page_size"`
}

// DefaultSourceConfig returns the built-in source client defaults.
func DefaultSourceConfig() *SourceConfig {
	return &SourceConfig{
		BaseURL:        "https://api.twitterapi.io",
		APIKeyEnv:      "TWITTER_API_KEY",
		RequestTimeout: 15 * time.Second,
		MaxRetries:     5,
		RetryBaseDelay: 1 * time.Second,
		PageSize:       20,
	}
}

// IngestConfig configures the two ingest workers.
type IngestConfig struct {
	// Handles is the author watch list polled by the account worker
	Handles []string `yaml:"handles"`

	// Keywords joined into the hourly keyword search query
	Keywords []string `yaml:"keywords"`

	// BlockedAccounts are excluded from unique-user stats and candidacy
	BlockedAccounts []string `yaml:"blocked_accounts"`

	// HandleBatchSize is how many handles share one union query
	HandleBatchSize int `yaml:"handle_batch_size"`

	// InterBatchDelay spaces consecutive union queries to respect
	// provider rate limits
	InterBatchDelay time.Duration `yaml:"inter_batch_delay"`

	// KeywordPages is the page count fetched by the keyword worker
	KeywordPages int `yaml:"keyword_pages"`

	// UpsertBatchSize is the post upsert chunk size
	UpsertBatchSize int `yaml:"upsert_batch_size"`
}

// DefaultIngestConfig returns the built-in ingest defaults.
func DefaultIngestConfig() *IngestConfig {
	return &IngestConfig{
		HandleBatchSize: 8,
		InterBatchDelay: 5500 * time.Millisecond,
		KeywordPages:    2,
		UpsertBatchSize: 50,
	}
}

// EnrichConfig configures URL content extraction and the image pipeline.
type EnrichConfig struct {
	// FetchTimeout bounds one URL fetch including redirects
	FetchTimeout time.Duration `yaml:"fetch_timeout"`

	// UserAgent sent on direct fetches
	UserAgent string `yaml:"user_agent"`

	// MaxBodyBytes caps how much of a response body is read
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// SkipHosts are never fetched or stored
	SkipHosts []string `yaml:"skip_hosts"`

	// ScrapingProxyEndpoint is the fallback fetch service; empty disables it
	ScrapingProxyEndpoint string `yaml:"scraping_proxy_endpoint,omitempty"`

	// ScrapingProxyKeyEnv holds the proxy credential variable name
	ScrapingProxyKeyEnv string `yaml:"scraping_proxy_key_env,omitempty"`

	// ImageProvider names the chat provider entry used for vision calls
	ImageProvider string `yaml:"image_provider"`

	// ImageTimeout bounds one vision call
	ImageTimeout time.Duration `yaml:"image_timeout"`
}

// DefaultEnrichConfig returns the built-in enrichment defaults.
func DefaultEnrichConfig() *EnrichConfig {
	return &EnrichConfig{
		FetchTimeout: 30 * time.Second,
		UserAgent:    "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		MaxBodyBytes: 2 << 20,
		SkipHosts: []string{
			"x.com",
			"twitter.com",
			"t.co",
			"youtube.com",
			"youtu.be",
			"vimeo.com",
			"twitch.tv",
		},
		ScrapingProxyKeyEnv: "SCRAPING_PROXY_API_KEY",
		ImageProvider:       "openrouter",
		ImageTimeout:        30 * time.Second,
	}
}

// NormalizeConfig configures the headline/facts normalizer.
type NormalizeConfig struct {
	// Provider names the chat provider entry used for normalization
	Provider string `yaml:"provider"`

	// Timeout bounds one normalization call
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultNormalizeConfig returns the built-in normalizer defaults.
func DefaultNormalizeConfig() *NormalizeConfig {
	return &NormalizeConfig{
		Provider: "openrouter",
		Timeout:  45 * time.Second,
	}
}

// EmbedConfig configures headline embedding.
type EmbedConfig struct {
	// Provider names the embedding provider entry
	Provider string `yaml:"provider"`

	// Dimensions is the stored vector width; must match the schema
	Dimensions int `yaml:"dimensions"`

	// TaskType is passed to providers that accept one
	TaskType string `yaml:"task_type"`

	// MaxRetries is the transient-failure attempt cap
	MaxRetries int `yaml:"max_retries"`

	// RetryBaseDelay is doubled per attempt
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
}

// DefaultEmbedConfig returns the built-in embedding defaults.
func DefaultEmbedConfig() *EmbedConfig {
	return &EmbedConfig{
		Provider:       "google-embedding",
		Dimensions:     1536,
		TaskType:       "CLUSTERING",
		MaxRetries:     3,
		RetryBaseDelay: 750 * time.Millisecond,
	}
}

// ClusterConfig configures sync, curate, and review.
type ClusterConfig struct {
	// SimilarityThreshold is the cosine floor for the pairwise graph
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	// MatchJaccardThreshold is the floor for matching a component to an
	// existing cluster
	MatchJaccardThreshold float64 `yaml:"match_jaccard_threshold"`

	// MinIntersection is the minimum overlap for an update match
	MinIntersection int `yaml:"min_intersection"`

	// MinClusterSize filters components below this size
	MinClusterSize int `yaml:"min_cluster_size"`

	// MaxDaysWindow filters components spanning more days than this
	MaxDaysWindow int `yaml:"max_days_window"`

	// MinTweets and MinUsers gate story candidacy
	MinTweets int `yaml:"min_tweets"`
	MinUsers  int `yaml:"min_users"`

	// ReviewMinNewMembers triggers a review when an update adds this many
	ReviewMinNewMembers int `yaml:"review_min_new_members"`

	// StaleAfter deactivates clusters not synced for this long
	StaleAfter time.Duration `yaml:"stale_after"`

	// SyncLookback is the clustering window fed to the stored procedure
	SyncLookback time.Duration `yaml:"sync_lookback"`

	// CurateLookback bounds the duplicate-consolidation window
	CurateLookback time.Duration `yaml:"curate_lookback"`

	// CurateMaxClusters caps how many clusters one curate run considers
	CurateMaxClusters int `yaml:"curate_max_clusters"`

	// CurateDirectGroupLimit sends all clusters as one group at or below it
	CurateDirectGroupLimit int `yaml:"curate_direct_group_limit"`

	// CurateBatchChars targets this much content per curation LLM call
	CurateBatchChars int `yaml:"curate_batch_chars"`

	// CurateProvider and CurateTimeout configure the curation LLM call
	CurateProvider string        `yaml:"curate_provider"`
	CurateTimeout  time.Duration `yaml:"curate_timeout"`

	// ReviewProvider and ReviewTimeout configure the review LLM call
	ReviewProvider string        `yaml:"review_provider"`
	ReviewTimeout  time.Duration `yaml:"review_timeout"`

	// ReviewCooldown skips clusters reviewed within this window
	ReviewCooldown time.Duration `yaml:"review_cooldown"`

	// ReviewMinMembers skips clusters smaller than this
	ReviewMinMembers int `yaml:"review_min_members"`

	// ReviewMaxMembers caps how many members one review presents
	ReviewMaxMembers int `yaml:"review_max_members"`

	// BackfillLimit and BackfillLookbackHours are the backfill job defaults
	BackfillLimit         int `yaml:"backfill_limit"`
	BackfillLookbackHours int `yaml:"backfill_lookback_hours"`
}

// DefaultClusterConfig returns the built-in clustering defaults.
func DefaultClusterConfig() *ClusterConfig {
	return &ClusterConfig{
		SimilarityThreshold:    0.94,
		MatchJaccardThreshold:  0.25,
		MinIntersection:        2,
		MinClusterSize:         2,
		MaxDaysWindow:          3,
		MinTweets:              3,
		MinUsers:               2,
		ReviewMinNewMembers:    5,
		StaleAfter:             2 * time.Hour,
		SyncLookback:           24 * time.Hour,
		CurateLookback:         48 * time.Hour,
		CurateMaxClusters:      500,
		CurateDirectGroupLimit: 100,
		CurateBatchChars:       12000,
		CurateProvider:         "openrouter",
		CurateTimeout:          60 * time.Second,
		ReviewProvider:         "openrouter",
		ReviewTimeout:          45 * time.Second,
		ReviewCooldown:         30 * time.Minute,
		ReviewMinMembers:       3,
		ReviewMaxMembers:       30,
		BackfillLimit:          500,
		BackfillLookbackHours:  24,
	}
}

// StoryConfig configures the story read model defaults.
type StoryConfig struct {
	// DefaultLookbackHours bounds the feed window when unspecified
	DefaultLookbackHours int `yaml:"default_lookback_hours"`

	// DefaultLimit and MaxLimit bound the feed size
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
}

// DefaultStoryConfig returns the built-in story feed defaults.
func DefaultStoryConfig() *StoryConfig {
	return &StoryConfig{
		DefaultLookbackHours: 24,
		DefaultLimit:         50,
		MaxLimit:             200,
	}
}
