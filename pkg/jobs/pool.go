package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tideline/tideline/pkg/config"
)

// WorkerPool manages a set of queue workers plus the background orphan
// scan. One pool runs per replica/pod; per-kind concurrency caps are
// enforced globally at claim time, so pools need no coordination beyond
// the database.
type WorkerPool struct {
	podID    string
	db       *pgxpool.Pool
	queue    *Queue
	cfg      *config.QueueConfig
	registry *Registry
	workers  []*Worker

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu               sync.RWMutex
	lastOrphanScan   time.Time
	orphansRecovered int
}

// NewWorkerPool creates a worker pool. podID identifies this replica in
// claim ownership stamps; it must be stable for the process lifetime.
func NewWorkerPool(podID string, db *pgxpool.Pool, queue *Queue, cfg *config.QueueConfig, registry *Registry) *WorkerPool {
	return &WorkerPool{
		podID:    podID,
		db:       db,
		queue:    queue,
		cfg:      cfg,
		registry: registry,
		stopCh:   make(chan struct{}),
	}
}

// Start releases claims stranded by a previous run of this pod, then starts
// the workers and the orphan scan loop.
func (p *WorkerPool) Start(ctx context.Context) error {
	released, err := p.queue.releaseClaimsFor(ctx, p.podID)
	if err != nil {
		return fmt.Errorf("startup claim release: %w", err)
	}
	if released > 0 {
		slog.Info("Released stale claims from previous run", "pod_id", p.podID, "count", released)
	}

	p.workers = make([]*Worker, p.cfg.WorkerCount)
	for i := range p.workers {
		w := NewWorker(fmt.Sprintf("%s-worker-%d", p.podID, i), p.podID, p.queue, p.cfg, p.registry)
		p.workers[i] = w
		w.Start(ctx)
	}

	p.wg.Add(1)
	go p.runOrphanScan(ctx)

	slog.Info("Worker pool started", "pod_id", p.podID, "workers", len(p.workers))
	return nil
}

// Stop shuts the pool down, waiting up to the graceful shutdown timeout for
// in-flight jobs to finish.
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })

	done := make(chan struct{})
	go func() {
		for _, w := range p.workers {
			w.Stop()
		}
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Worker pool stopped", "pod_id", p.podID)
	case <-time.After(p.cfg.GracefulShutdownTimeout):
		slog.Warn("Worker pool shutdown timed out; jobs will be recovered as orphans",
			"pod_id", p.podID, "timeout", p.cfg.GracefulShutdownTimeout)
	}
}

// runOrphanScan periodically recovers jobs with stale heartbeats.
func (p *WorkerPool) runOrphanScan(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.OrphanDetectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.queue.recoverOrphans(ctx)
			p.mu.Lock()
			p.lastOrphanScan = time.Now()
			p.orphansRecovered += n
			p.mu.Unlock()
			if err != nil {
				slog.Error("Orphan scan failed", "error", err)
			}
		}
	}
}

// Health returns the pool's health snapshot, including queue depth and
// per-worker stats.
func (p *WorkerPool) Health(ctx context.Context) PoolHealth {
	h := PoolHealth{
		PodID:        p.podID,
		TotalWorkers: len(p.workers),
	}

	for _, w := range p.workers {
		wh := w.Health()
		h.WorkerStats = append(h.WorkerStats, wh)
		if wh.Status == string(WorkerStatusWorking) {
			h.ActiveWorkers++
		}
	}

	pending, running, err := p.queue.Depth(ctx)
	if err == nil {
		h.DBReachable = true
		h.QueueDepth = pending
		h.RunningJobs = running
	}

	p.mu.RLock()
	h.LastOrphanScan = p.lastOrphanScan
	h.OrphansRecovered = p.orphansRecovered
	p.mu.RUnlock()

	h.IsHealthy = h.DBReachable && h.TotalWorkers > 0
	return h
}
