package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/tideline/tideline/pkg/config"
)

// Scheduler enqueues recurring jobs on fixed intervals. Every replica runs
// one; the dedupe key (kind + interval-truncated tick time) collapses the
// replicas' concurrent enqueues into a single job per tick.
type Scheduler struct {
	queue     *Queue
	schedules []config.ScheduleConfig

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewScheduler creates a scheduler over the enabled schedule entries.
func NewScheduler(queue *Queue, schedules []config.ScheduleConfig) *Scheduler {
	return &Scheduler{
		queue:     queue,
		schedules: schedules,
		stopCh:    make(chan struct{}),
	}
}

// Start launches one ticker goroutine per enabled schedule. Each fires once
// immediately so a fresh deployment does not wait a full interval for its
// first ingest.
func (s *Scheduler) Start(ctx context.Context) {
	enabled := 0
	for _, sched := range s.schedules {
		if !sched.Enabled {
			continue
		}
		enabled++
		s.wg.Add(1)
		go s.run(ctx, sched)
	}
	slog.Info("Scheduler started", "enabled_schedules", enabled)
}

// Stop halts all schedule goroutines.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context, sched config.ScheduleConfig) {
	defer s.wg.Done()

	log := slog.With("schedule", sched.Name, "kind", sched.Kind, "interval", sched.Interval)

	// Small startup jitter so replicas booting together don't all hit the
	// dedupe conflict at the same instant.
	select {
	case <-time.After(time.Duration(rand.Int64N(int64(2 * time.Second)))):
	case <-s.stopCh:
		return
	case <-ctx.Done():
		return
	}

	s.tick(ctx, sched, log)

	ticker := time.NewTicker(sched.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, sched, log)
		}
	}
}

// tick enqueues one job for the current interval bucket.
func (s *Scheduler) tick(ctx context.Context, sched config.ScheduleConfig, log *slog.Logger) {
	bucket := time.Now().UTC().Truncate(sched.Interval)
	dedupeKey := fmt.Sprintf("%s:%s", sched.Kind, bucket.Format(time.RFC3339))

	id, inserted, err := s.queue.Enqueue(ctx, EnqueueRequest{
		Kind:      sched.Kind,
		DedupeKey: dedupeKey,
	})
	if err != nil {
		log.Error("Scheduled enqueue failed", "error", err)
		return
	}
	if inserted {
		log.Info("Scheduled job enqueued", "job_id", id, "dedupe_key", dedupeKey)
	} else {
		log.Debug("Scheduled job already enqueued for this tick", "dedupe_key", dedupeKey)
	}
}
