package config

import "time"

// QueueConfig contains queue and worker pool configuration.
// These values control how jobs are polled, claimed, and processed.
type QueueConfig struct {
	// WorkerCount is the number of worker goroutines per replica/pod.
	// Each worker independently polls and claims jobs.
	WorkerCount int `yaml:"worker_count"`

	// KindCaps limits concurrent running jobs per kind across ALL
	// replicas/pods. Enforced by a database COUNT(*) check at claim time.
	// Kinds absent from the map are uncapped.
	KindCaps map[string]int `yaml:"kind_caps"`

	// KindTimeouts bounds one job execution per kind. Kinds absent from
	// the map use DefaultJobTimeout.
	KindTimeouts map[string]time.Duration `yaml:"kind_timeouts"`

	// DefaultJobTimeout applies to kinds without an entry in KindTimeouts.
	DefaultJobTimeout time.Duration `yaml:"default_job_timeout"`

	// MaxAttempts is the delivery cap before a job is marked failed.
	// Kinds in KindMaxAttempts override it.
	MaxAttempts     int            `yaml:"max_attempts"`
	KindMaxAttempts map[string]int `yaml:"kind_max_attempts"`

	// PollInterval is the base interval for checking pending jobs.
	PollInterval time.Duration `yaml:"poll_interval"`

	// PollIntervalJitter is the random jitter added to PollInterval.
	// Actual interval: PollInterval ± PollIntervalJitter.
	PollIntervalJitter time.Duration `yaml:"poll_interval_jitter"`

	// HeartbeatInterval is how often a running job refreshes its heartbeat.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// GracefulShutdownTimeout is the max time to wait for active jobs
	// to complete during shutdown.
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`

	// OrphanDetectionInterval is how often to scan for orphaned jobs.
	OrphanDetectionInterval time.Duration `yaml:"orphan_detection_interval"`

	// OrphanThreshold is how long a job can go without a heartbeat
	// before it is considered orphaned.
	OrphanThreshold time.Duration `yaml:"orphan_threshold"`
}

// DefaultQueueConfig returns the built-in queue defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		WorkerCount: 8,
		KindCaps: map[string]int{
			"ingest.accounts":  1,
			"ingest.keywords":  1,
			"post.preprocess":  4,
			"cluster.sync":     1,
			"cluster.curate":   1,
			"cluster.review":   3,
			"cluster.backfill": 1,
		},
		KindTimeouts: map[string]time.Duration{
			"ingest.accounts":  10 * time.Minute,
			"ingest.keywords":  10 * time.Minute,
			"post.preprocess":  5 * time.Minute,
			"cluster.sync":     10 * time.Minute,
			"cluster.curate":   10 * time.Minute,
			"cluster.review":   2 * time.Minute,
			"cluster.backfill": 10 * time.Minute,
		},
		DefaultJobTimeout: 5 * time.Minute,
		MaxAttempts:       3,
		KindMaxAttempts: map[string]int{
			"ingest.accounts": 2,
			"ingest.keywords": 2,
		},
		PollInterval:            1 * time.Second,
		PollIntervalJitter:      500 * time.Millisecond,
		HeartbeatInterval:       15 * time.Second,
		GracefulShutdownTimeout: 10 * time.Minute,
		OrphanDetectionInterval: 1 * time.Minute,
		OrphanThreshold:         2 * time.Minute,
	}
}

// TimeoutFor returns the execution timeout for a job kind.
func (c *QueueConfig) TimeoutFor(kind string) time.Duration {
	if d, ok := c.KindTimeouts[kind]; ok {
		return d
	}
	return c.DefaultJobTimeout
}

// MaxAttemptsFor returns the delivery cap for a job kind.
func (c *QueueConfig) MaxAttemptsFor(kind string) int {
	if n, ok := c.KindMaxAttempts[kind]; ok {
		return n
	}
	return c.MaxAttempts
}

// CapFor returns the concurrency cap for a job kind; 0 means uncapped.
func (c *QueueConfig) CapFor(kind string) int {
	return c.KindCaps[kind]
}
