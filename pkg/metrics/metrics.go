// Package metrics exposes the pipeline's prometheus instrumentation on a
// private registry served at /metrics.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var registry = prometheus.NewRegistry()

func init() {
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

var (
	jobsProcessed = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "tideline_jobs_processed_total",
		Help: "Jobs finished by the worker pool, by kind and outcome.",
	}, []string{"kind", "outcome"})

	jobDuration = promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tideline_job_duration_seconds",
		Help:    "Job handler duration by kind.",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 120, 300, 600},
	}, []string{"kind"})

	postsIngested = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Name: "tideline_posts_ingested_total",
		Help: "Posts newly inserted by ingest runs.",
	})

	llmCalls = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "tideline_llm_calls_total",
		Help: "Chat completion calls by provider and outcome.",
	}, []string{"provider", "outcome"})

	embeddingCalls = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "tideline_embedding_calls_total",
		Help: "Embedding calls by provider and outcome.",
	}, []string{"provider", "outcome"})

	syncActions = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "tideline_cluster_sync_actions_total",
		Help: "Cluster sync reconciliation actions (created, updated, deactivated).",
	}, []string{"action"})

	clusterMerges = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "tideline_cluster_merges_total",
		Help: "Clusters folded into another, by originating function.",
	}, []string{"source"})

	httpDuration = promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tideline_http_request_duration_seconds",
		Help:    "API request duration by method, route, and status.",
		Buckets: []float64{0.005, 0.025, 0.1, 0.25, 1, 5},
	}, []string{"method", "route", "status"})

	queuePending = promauto.With(registry).NewGauge(prometheus.GaugeOpts{
		Name: "tideline_queue_pending_jobs",
		Help: "Jobs currently pending in the queue.",
	})

	queueRunning = promauto.With(registry).NewGauge(prometheus.GaugeOpts{
		Name: "tideline_queue_running_jobs",
		Help: "Jobs currently claimed by a worker.",
	})
)

// ObserveJob records one finished job.
func ObserveJob(kind, outcome string, duration time.Duration) {
	jobsProcessed.WithLabelValues(kind, outcome).Inc()
	jobDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// AddPostsIngested records newly inserted posts.
func AddPostsIngested(n int) {
	postsIngested.Add(float64(n))
}

// ObserveLLMCall records one chat completion attempt outcome.
func ObserveLLMCall(provider, outcome string) {
	llmCalls.WithLabelValues(provider, outcome).Inc()
}

// ObserveEmbeddingCall records one embedding attempt outcome.
func ObserveEmbeddingCall(provider, outcome string) {
	embeddingCalls.WithLabelValues(provider, outcome).Inc()
}

// AddSyncActions records one sync run's reconciliation counts.
func AddSyncActions(created, updated, deactivated int) {
	syncActions.WithLabelValues("created").Add(float64(created))
	syncActions.WithLabelValues("updated").Add(float64(updated))
	syncActions.WithLabelValues("deactivated").Add(float64(deactivated))
}

// ObserveMerge records one cluster merge by originating function.
func ObserveMerge(source string) {
	clusterMerges.WithLabelValues(source).Inc()
}

// ObserveHTTPRequest records one served API request.
func ObserveHTTPRequest(method, route, status string, duration time.Duration) {
	httpDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}

// SetQueueDepth publishes the current queue depth gauges.
func SetQueueDepth(pending, running int) {
	queuePending.Set(float64(pending))
	queueRunning.Set(float64(running))
}

// DepthSource reports queue depth; satisfied by the job queue.
type DepthSource interface {
	Depth(ctx context.Context) (pending, running int, err error)
}

// PollQueueDepth refreshes the depth gauges every interval until ctx ends.
func PollQueueDepth(ctx context.Context, src DepthSource, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if pending, running, err := src.Depth(ctx); err == nil {
				SetQueueDepth(pending, running)
			}
		}
	}
}

// Handler serves the registry for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
