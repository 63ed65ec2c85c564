// Package api exposes the HTTP surface: the story feed, cluster detail,
// feedback submission, the backfill trigger, the function-run health view,
// healthz, and prometheus metrics.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tideline/tideline/pkg/config"
	"github.com/tideline/tideline/pkg/database"
	"github.com/tideline/tideline/pkg/jobs"
	"github.com/tideline/tideline/pkg/metrics"
	"github.com/tideline/tideline/pkg/services"
)

// Server hosts the HTTP API.
type Server struct {
	cfg      *config.APIConfig
	db       *database.Client
	pool     *jobs.WorkerPool
	stories  *services.StoryService
	clusters *services.ClusterService
	runs     *services.RunService

	http *http.Server
}

// NewServer wires the router. pool may be nil when the API runs without an
// in-process worker pool.
func NewServer(cfg *config.APIConfig, db *database.Client, pool *jobs.WorkerPool, stories *services.StoryService, clusters *services.ClusterService, runs *services.RunService) *Server {
	s := &Server{
		cfg:      cfg,
		db:       db,
		pool:     pool,
		stories:  stories,
		clusters: clusters,
		runs:     runs,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", s.handleHealth)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/stories", s.handleStories)
		v1.GET("/clusters/:id", s.handleClusterDetail)
		v1.POST("/clusters/:id/feedback", s.handleFeedback)
		v1.POST("/backfill", s.handleBackfill)
		v1.GET("/runs", s.handleRuns)
	}

	s.http = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
	return s
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	slog.Info("API server listening", "addr", s.cfg.ListenAddr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}
