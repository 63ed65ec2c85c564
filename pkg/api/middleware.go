package api

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tideline/tideline/pkg/metrics"
)

// requestLogger logs one line per request with method, path, status, and
// latency, and feeds the request-duration histogram. /healthz and /metrics
// are skipped to keep scrape noise out of the logs.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if path == "/healthz" || path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		// The route template keeps metric cardinality bounded; unmatched
		// requests (404s) fall back to a constant label.
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveHTTPRequest(c.Request.Method, route,
			strconv.Itoa(c.Writer.Status()), elapsed)

		slog.Info("HTTP request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"duration", elapsed,
			"client_ip", c.ClientIP())
	}
}
