package api

import (
	"net/http"
	"sort"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/streamgank/videogen/pkg/models"
)

// maxEventsPerJob bounds the in-memory progress buffer. The pipeline
// emits well under this; the cap protects against a misbehaving sender.
const maxEventsPerJob = 256

// progressLog is the in-memory store behind the step-update webhook.
// Events arrive fire-and-forget and possibly out of order; reads return
// them sorted by their per-job sequence.
type progressLog struct {
	mu     sync.RWMutex
	events map[string][]models.ProgressEvent
}

func newProgressLog() *progressLog {
	return &progressLog{events: make(map[string][]models.ProgressEvent)}
}

func (p *progressLog) add(event models.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	list := p.events[event.JobID]
	if len(list) >= maxEventsPerJob {
		return
	}
	p.events[event.JobID] = append(list, event)
}

func (p *progressLog) forJob(jobID string) []models.ProgressEvent {
	p.mu.RLock()
	list := p.events[jobID]
	out := make([]models.ProgressEvent, len(list))
	copy(out, list)
	p.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}

// stepUpdateHandler handles POST /api/webhooks/step-update, the receiving
// end of the progress emitter.
func (s *Server) stepUpdateHandler(c *gin.Context) {
	var event models.ProgressEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	if event.JobID == "" {
		errorResponse(c, http.StatusBadRequest, "job_id is required")
		return
	}

	s.progress.add(event)
	c.JSON(http.StatusOK, gin.H{"status": "received"})
}

// jobProgressHandler handles GET /api/jobs/:id/progress, returning the
// received events in sequence order.
func (s *Server) jobProgressHandler(c *gin.Context) {
	events := s.progress.forJob(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{
		"job_id": c.Param("id"),
		"events": events,
	})
}
