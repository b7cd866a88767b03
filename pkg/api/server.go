// Package api exposes the HTTP surface: job submission, job status,
// cancellation, the progress webhook receiver, health, and metrics.
package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/streamgank/videogen/pkg/database"
	"github.com/streamgank/videogen/pkg/metrics"
	"github.com/streamgank/videogen/pkg/queue"
)

// Server carries the handlers' collaborators.
type Server struct {
	store    *queue.Store
	pool     *queue.WorkerPool
	db       *database.Client
	metrics  *metrics.Metrics
	progress *progressLog
	logger   *slog.Logger
}

// NewServer creates the API server. pool and metrics may be nil (worker
// pool running elsewhere, metrics disabled).
func NewServer(store *queue.Store, pool *queue.WorkerPool, db *database.Client, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:    store,
		pool:     pool,
		db:       db,
		metrics:  m,
		progress: newProgressLog(),
		logger:   logger,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(s.logger), securityHeaders())

	router.GET("/health", s.healthHandler)
	if s.metrics != nil {
		router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	jobs := router.Group("/api/jobs")
	{
		jobs.POST("", s.createJobHandler)
		jobs.GET("/:id", s.getJobHandler)
		jobs.POST("/:id/cancel", s.cancelJobHandler)
		jobs.GET("/:id/progress", s.jobProgressHandler)
	}

	router.POST("/api/webhooks/step-update", s.stepUpdateHandler)

	return router
}

// requestLogger logs one line per request at Info.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		logger.Info("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"client_ip", c.ClientIP())
	}
}

// securityHeaders sets standard security response headers.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}

func errorResponse(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}
