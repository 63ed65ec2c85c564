package config

import "time"

// ScheduleConfig is one scheduler entry: every Interval, enqueue a job of
// Kind with an empty payload. Dedupe at enqueue keeps multiple replicas
// from double-enqueuing the same tick.
type ScheduleConfig struct {
	Name     string        `yaml:"name"`
	Kind     string        `yaml:"kind"`
	Interval time.Duration `yaml:"interval"`
	Enabled  bool          `yaml:"enabled"`
}

// DefaultSchedules returns the built-in schedule table.
//
// The analytics-backfill slot ships disabled: the worker that would consume
// it lives outside this service, but operators expect the slot to exist so
// enabling it is a config change rather than a deploy.
func DefaultSchedules() []ScheduleConfig {
	return []ScheduleConfig{
		{Name: "ingest-accounts", Kind: "ingest.accounts", Interval: 15 * time.Minute, Enabled: true},
		{Name: "ingest-keywords", Kind: "ingest.keywords", Interval: 1 * time.Hour, Enabled: true},
		{Name: "cluster-sync", Kind: "cluster.sync", Interval: 10 * time.Minute, Enabled: true},
		{Name: "cluster-curate", Kind: "cluster.curate", Interval: 20 * time.Minute, Enabled: true},
		{Name: "analytics-backfill", Kind: "analytics.backfill", Interval: 4 * time.Hour, Enabled: false},
	}
}
