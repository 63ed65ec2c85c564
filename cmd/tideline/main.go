// Tideline server: ingests posts, runs the preprocess and clustering
// workers over the job queue, and serves the story API.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tideline/tideline/pkg/api"
	"github.com/tideline/tideline/pkg/cluster"
	"github.com/tideline/tideline/pkg/config"
	"github.com/tideline/tideline/pkg/database"
	"github.com/tideline/tideline/pkg/embed"
	"github.com/tideline/tideline/pkg/enrich"
	"github.com/tideline/tideline/pkg/events"
	"github.com/tideline/tideline/pkg/ingest"
	"github.com/tideline/tideline/pkg/jobs"
	"github.com/tideline/tideline/pkg/llm"
	"github.com/tideline/tideline/pkg/metrics"
	"github.com/tideline/tideline/pkg/normalize"
	"github.com/tideline/tideline/pkg/pipeline"
	"github.com/tideline/tideline/pkg/services"
	"github.com/tideline/tideline/pkg/source"
	"github.com/tideline/tideline/pkg/store"
	"github.com/tideline/tideline/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// resolvePodID determines the pod identifier for multi-replica coordination.
// Priority: POD_ID env > HOSTNAME env > "local"
func resolvePodID() string {
	if id := os.Getenv("POD_ID"); id != "" {
		return id
	}
	if hostname := os.Getenv("HOSTNAME"); hostname != "" {
		return hostname
	}
	return "local"
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	}

	podID := resolvePodID()
	slog.Info("Starting tideline", "version", version.Full(), "pod_id", podID, "config_dir", *configDir)

	ctx := context.Background()

	// 1. Configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}
	stats := cfg.Stats()
	slog.Info("Configuration loaded",
		"providers", stats.Providers, "handles", stats.Handles,
		"keywords", stats.Keywords, "schedules", stats.Schedules)

	// 2. Database (runs migrations)
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}
	db, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("Connected to PostgreSQL database")

	// 3. Queue, stores, event emitter
	queue := jobs.NewQueue(db.Pool(), cfg.Queue)
	posts := store.NewPostStore(db.Pool())
	clusters := store.NewClusterStore(db.Pool())
	feedback := store.NewFeedbackStore(db.Pool())
	runs := store.NewRunStore(db.Pool())
	emitter := events.NewEmitter(queue)

	// 4. Provider clients
	normalizeProvider, err := cfg.ProviderRegistry.GetChat(cfg.Normalize.Provider)
	if err != nil {
		slog.Error("Normalize provider missing", "error", err)
		os.Exit(1)
	}
	normalizeClient, err := llm.NewClient(normalizeProvider)
	if err != nil {
		slog.Error("Failed to build normalize client", "error", err)
		os.Exit(1)
	}
	imageProvider, err := cfg.ProviderRegistry.GetChat(cfg.Enrich.ImageProvider)
	if err != nil {
		slog.Error("Image provider missing", "error", err)
		os.Exit(1)
	}
	imageClient, err := llm.NewClient(imageProvider)
	if err != nil {
		slog.Error("Failed to build image client", "error", err)
		os.Exit(1)
	}
	curateProvider, err := cfg.ProviderRegistry.GetChat(cfg.Cluster.CurateProvider)
	if err != nil {
		slog.Error("Curate provider missing", "error", err)
		os.Exit(1)
	}
	curateClient, err := llm.NewClient(curateProvider)
	if err != nil {
		slog.Error("Failed to build curate client", "error", err)
		os.Exit(1)
	}
	reviewProvider, err := cfg.ProviderRegistry.GetChat(cfg.Cluster.ReviewProvider)
	if err != nil {
		slog.Error("Review provider missing", "error", err)
		os.Exit(1)
	}
	reviewClient, err := llm.NewClient(reviewProvider)
	if err != nil {
		slog.Error("Failed to build review client", "error", err)
		os.Exit(1)
	}

	embedProviderCfg, err := cfg.ProviderRegistry.GetEmbedding(cfg.Embed.Provider)
	if err != nil {
		slog.Error("Embedding provider missing", "error", err)
		os.Exit(1)
	}
	embedProvider, err := embed.NewProvider(ctx, embedProviderCfg, cfg.Embed)
	if err != nil {
		slog.Error("Failed to build embedding provider", "error", err)
		os.Exit(1)
	}
	embedder := embed.NewService(embedProvider, posts, cfg.Embed)

	sourceClient, err := source.NewClient(cfg.Source)
	if err != nil {
		slog.Error("Failed to build source client", "error", err)
		os.Exit(1)
	}

	// 5. Pipeline components
	ingester := ingest.NewIngester(sourceClient, posts, runs, emitter, cfg.Ingest, cfg.Enrich.SkipHosts)
	fetcher := enrich.NewFetcher(cfg.Enrich)
	urlEnricher := enrich.NewURLEnricher(fetcher, posts)
	imageEnricher := enrich.NewImageEnricher(imageClient, posts, cfg.Enrich)
	normalizer := normalize.NewNormalizer(normalizeClient, posts, cfg.Normalize)
	preprocessor := pipeline.NewPreprocessor(queue, posts, runs, urlEnricher, imageEnricher, normalizer, embedder)
	backfiller := pipeline.NewBackfiller(posts, runs, emitter, cfg.Cluster)

	filter := cluster.NewHeuristicFilter()
	recomputer := cluster.NewRecomputer(posts, clusters, filter, cfg.Cluster, cfg.Ingest.BlockedAccounts)
	syncer := cluster.NewSyncer(clusters, runs, recomputer, emitter, cfg.Cluster)
	curator := cluster.NewCurator(clusters, runs, recomputer, curateClient, cfg.Cluster)
	reviewer := cluster.NewReviewer(clusters, runs, recomputer, reviewClient, cfg.Cluster)

	// 6. Job handlers
	registry := jobs.NewRegistry()
	registry.Register(events.KindIngestAccounts, ingester.HandleAccounts)
	registry.Register(events.KindIngestKeywords, ingester.HandleKeywords)
	registry.Register(events.KindPostPreprocess, preprocessor.HandlePreprocess)
	registry.Register(events.KindClusterSync, syncer.HandleSync)
	registry.Register(events.KindClusterCurate, curator.HandleCurate)
	registry.Register(events.KindClusterReview, reviewer.HandleReview)
	registry.Register(events.KindClusterBackfill, backfiller.HandleBackfill)

	// 7. Worker pool and scheduler
	pool := jobs.NewWorkerPool(podID, db.Pool(), queue, cfg.Queue, registry)
	if err := pool.Start(ctx); err != nil {
		slog.Error("Failed to start worker pool", "error", err)
		os.Exit(1)
	}
	scheduler := jobs.NewScheduler(queue, cfg.Schedules)
	scheduler.Start(ctx)

	metricsCtx, stopMetrics := context.WithCancel(ctx)
	go metrics.PollQueueDepth(metricsCtx, queue, 15*time.Second)

	// 8. HTTP API
	storyService := services.NewStoryService(cluster.NewStoryReader(clusters, cfg.Story))
	clusterService := services.NewClusterService(clusters, feedback)
	runService := services.NewRunService(runs, emitter)
	server := api.NewServer(cfg.API, db, pool, storyService, clusterService, runService)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errCh <- err
		}
	}()

	slog.Info("Tideline started", "pod_id", podID, "workers", cfg.Queue.WorkerCount)

	// 9. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 10. Graceful shutdown: stop producing, drain workers, then the API.
	scheduler.Stop()
	stopMetrics()
	pool.Stop()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	slog.Info("Shutdown complete")
}
