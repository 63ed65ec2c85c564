package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tideline/tideline/pkg/database"
	"github.com/tideline/tideline/pkg/events"
	"github.com/tideline/tideline/pkg/models"
	"github.com/tideline/tideline/pkg/services"
	"github.com/tideline/tideline/pkg/version"
)

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	httpStatus := http.StatusOK
	checks := gin.H{}
	checks["version"] = version.Full()

	dbHealth, err := database.Health(ctx, s.db.Pool())
	checks["database"] = dbHealth
	if err != nil {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	if s.pool != nil {
		poolHealth := s.pool.Health(ctx)
		checks["worker_pool"] = poolHealth
		if !poolHealth.IsHealthy && status == "healthy" {
			status = "degraded"
		}
	}

	c.JSON(httpStatus, gin.H{"status": status, "checks": checks})
}

func (s *Server) handleStories(c *gin.Context) {
	hours, ok := intQuery(c, "hours", 0)
	if !ok {
		return
	}
	limit, ok := intQuery(c, "limit", 0)
	if !ok {
		return
	}
	onlyCandidates := c.DefaultQuery("only_story_candidates", "true") != "false"

	stories, err := s.stories.List(c.Request.Context(), hours, limit, onlyCandidates)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stories": stories, "count": len(stories)})
}

func (s *Server) handleClusterDetail(c *gin.Context) {
	clusterID, ok := clusterIDParam(c)
	if !ok {
		return
	}

	detail, err := s.clusters.Detail(c.Request.Context(), clusterID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

type feedbackRequest struct {
	Feedback    string  `json:"feedback" binding:"required"`
	SubmittedBy *string `json:"submitted_by"`
}

func (s *Server) handleFeedback(c *gin.Context) {
	clusterID, ok := clusterIDParam(c)
	if !ok {
		return
	}

	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	feedback, err := s.clusters.SubmitFeedback(c.Request.Context(), clusterID,
		models.FeedbackKind(req.Feedback), req.SubmittedBy)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, feedback)
}

func (s *Server) handleBackfill(c *gin.Context) {
	var payload events.BackfillPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	jobID, inserted, err := s.runs.TriggerBackfill(c.Request.Context(), payload)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID, "inserted": inserted})
}

func (s *Server) handleRuns(c *gin.Context) {
	limit, ok := intQuery(c, "limit", 0)
	if !ok {
		return
	}

	runs, err := s.runs.Recent(c.Request.Context(), c.Query("function_id"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}

// clusterIDParam parses the :id path segment, writing a 400 on failure.
func clusterIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cluster id"})
		return 0, false
	}
	return id, true
}

// intQuery parses an optional integer query parameter, writing a 400 on
// failure.
func intQuery(c *gin.Context, name string, fallback int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name + " parameter"})
		return 0, false
	}
	return v, true
}

// writeError maps service errors onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, services.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
