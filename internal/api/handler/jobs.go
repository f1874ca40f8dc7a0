package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vtanathip/test-case-generator/internal/domain"
	"github.com/vtanathip/test-case-generator/internal/repository"
)

// JobsHandler serves processing job status queries.
type JobsHandler struct {
	registry repository.JobRegistry
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(registry repository.JobRegistry) *JobsHandler {
	return &JobsHandler{registry: registry}
}

// jobResponse is the JSON shape of one job snapshot.
type jobResponse struct {
	JobID          string  `json:"job_id"`
	CorrelationID  string  `json:"correlation_id"`
	WebhookEventID string  `json:"webhook_event_id"`
	Status         string  `json:"status"`
	CurrentStage   string  `json:"current_stage"`
	ErrorMessage   string  `json:"error_message,omitempty"`
	ErrorCode      string  `json:"error_code,omitempty"`
	RetryCount     int     `json:"retry_count"`
	StartedAt      string  `json:"started_at"`
	CompletedAt    *string `json:"completed_at"`
	LastRetryAt    *string `json:"last_retry_at"`
}

func toJobResponse(job domain.ProcessingJob) jobResponse {
	return jobResponse{
		JobID:          job.JobID,
		CorrelationID:  job.CorrelationID,
		WebhookEventID: job.WebhookEventID,
		Status:         string(job.Status),
		CurrentStage:   string(job.CurrentStage),
		ErrorMessage:   job.ErrorMessage,
		ErrorCode:      job.ErrorCode,
		RetryCount:     job.RetryCount,
		StartedAt:      job.StartedAt.Format(time.RFC3339),
		CompletedAt:    formatTime(job.CompletedAt),
		LastRetryAt:    formatTime(job.LastRetryAt),
	}
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

// GetJob handles GET /api/v1/jobs/:id
func (h *JobsHandler) GetJob(c *gin.Context) {
	jobID := c.Param("id")

	job, ok, err := h.registry.Get(c.Request.Context(), jobID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to load job: " + err.Error(),
		})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Job " + jobID + " not found",
		})
		return
	}

	c.JSON(http.StatusOK, toJobResponse(job))
}

// ListJobs handles GET /api/v1/jobs
func (h *JobsHandler) ListJobs(c *gin.Context) {
	jobs, err := h.registry.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to list jobs: " + err.Error(),
		})
		return
	}

	out := make([]jobResponse, len(jobs))
	for i, job := range jobs {
		out[i] = toJobResponse(job)
	}

	c.JSON(http.StatusOK, gin.H{
		"count": len(out),
		"jobs":  out,
	})
}
