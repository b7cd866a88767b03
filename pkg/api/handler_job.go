package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/streamgank/videogen/pkg/config"
	"github.com/streamgank/videogen/pkg/models"
	"github.com/streamgank/videogen/pkg/queue"
	"github.com/streamgank/videogen/pkg/workflow"
)

// CreateJobRequest is the body of POST /api/jobs.
type CreateJobRequest struct {
	Country     string `json:"country" binding:"required"`
	Platform    string `json:"platform" binding:"required"`
	Genre       string `json:"genre" binding:"required"`
	ContentType string `json:"content_type" binding:"required"`
	NumMovies   int    `json:"num_movies"`
}

// CreateJobResponse is returned by POST /api/jobs.
type CreateJobResponse struct {
	JobID      string        `json:"job_id"`
	WorkflowID string        `json:"workflow_id"`
	Status     string        `json:"status"`
	Filter     models.Filter `json:"filter"`
}

// createJobHandler handles POST /api/jobs. The filter is validated and
// normalized before the job is enqueued; workers pick it up from there.
func (s *Server) createJobHandler(c *gin.Context) {
	var req CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	if req.NumMovies == 0 {
		req.NumMovies = 3
	}

	filter := models.Filter{
		Country:     req.Country,
		Platform:    req.Platform,
		Genre:       req.Genre,
		ContentType: req.ContentType,
		NumMovies:   req.NumMovies,
	}
	if err := config.ValidateFilter(&filter); err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	jobID := uuid.NewString()
	workflowID := workflow.NewWorkflowID(time.Now())
	if err := s.store.Enqueue(c.Request.Context(), jobID, workflowID, filter); err != nil {
		s.logger.Error("Failed to enqueue job", "error", err)
		errorResponse(c, http.StatusInternalServerError, "failed to enqueue job")
		return
	}

	s.logger.Info("Job enqueued", "job_id", jobID, "workflow_id", workflowID,
		"genre", filter.Genre, "platform", filter.Platform)

	c.JSON(http.StatusAccepted, &CreateJobResponse{
		JobID:      jobID,
		WorkflowID: workflowID,
		Status:     "queued",
		Filter:     filter,
	})
}

// getJobHandler handles GET /api/jobs/:id.
func (s *Server) getJobHandler(c *gin.Context) {
	state, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			errorResponse(c, http.StatusNotFound, "job not found")
			return
		}
		s.logger.Error("Failed to load job", "error", err)
		errorResponse(c, http.StatusInternalServerError, "failed to load job")
		return
	}
	c.JSON(http.StatusOK, state)
}

// CancelResponse is returned by POST /api/jobs/:id/cancel.
type CancelResponse struct {
	JobID   string `json:"job_id"`
	Message string `json:"message"`
}

// cancelJobHandler handles POST /api/jobs/:id/cancel. Pending jobs are
// cancelled directly in the database; running jobs are cancelled through
// the worker pool's context registry on this pod.
func (s *Server) cancelJobHandler(c *gin.Context) {
	jobID := c.Param("id")

	cancelled, err := s.store.CancelPending(c.Request.Context(), jobID)
	if err != nil {
		s.logger.Error("Failed to cancel job", "job_id", jobID, "error", err)
		errorResponse(c, http.StatusInternalServerError, "failed to cancel job")
		return
	}
	if cancelled {
		c.JSON(http.StatusOK, &CancelResponse{JobID: jobID, Message: "job cancelled"})
		return
	}

	if s.pool != nil && s.pool.CancelJob(jobID) {
		c.JSON(http.StatusAccepted, &CancelResponse{JobID: jobID, Message: "cancellation requested"})
		return
	}

	state, err := s.store.Get(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			errorResponse(c, http.StatusNotFound, "job not found")
			return
		}
		s.logger.Error("Failed to load job", "job_id", jobID, "error", err)
		errorResponse(c, http.StatusInternalServerError, "failed to load job")
		return
	}
	errorResponse(c, http.StatusConflict, "job is not in a cancellable state: "+string(state.Status))
}
