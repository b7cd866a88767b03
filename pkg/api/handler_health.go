package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/streamgank/videogen/pkg/database"
	"github.com/streamgank/videogen/pkg/queue"
	"github.com/streamgank/videogen/pkg/version"
)

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status     string                 `json:"status"`
	Version    string                 `json:"version"`
	Database   *database.HealthStatus `json:"database,omitempty"`
	WorkerPool *queue.PoolHealth      `json:"worker_pool,omitempty"`
}

// healthHandler handles GET /health. Unreachable database means 503.
func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	resp := &HealthResponse{
		Status:  "healthy",
		Version: version.Full(),
	}
	status := http.StatusOK

	if s.db != nil {
		dbHealth, err := database.Health(ctx, s.db.DB())
		resp.Database = dbHealth
		if err != nil {
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
		}
	}

	if s.pool != nil {
		resp.WorkerPool = s.pool.Health()
		if !resp.WorkerPool.IsHealthy && status == http.StatusOK {
			resp.Status = "degraded"
		}
	}

	c.JSON(status, resp)
}
