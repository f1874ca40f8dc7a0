package domain

import (
	"fmt"
	"regexp"
	"time"
)

// JobStatus represents the status of a processing job.
// Values include JobStatusPending, JobStatusProcessing, JobStatusCompleted,
// JobStatusFailed, and JobStatusSkipped.
type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
	JobStatusSkipped    JobStatus = "SKIPPED"
)

// WorkflowStage represents one step of the fixed six-stage pipeline.
type WorkflowStage string

const (
	StageReceive  WorkflowStage = "RECEIVE"
	StageRetrieve WorkflowStage = "RETRIEVE"
	StageGenerate WorkflowStage = "GENERATE"
	StageCommit   WorkflowStage = "COMMIT"
	StageCreatePR WorkflowStage = "CREATE_PR"
	StageFinalize WorkflowStage = "FINALIZE"
)

// StageOrder is the fixed execution order of the workflow stages.
var StageOrder = []WorkflowStage{
	StageReceive,
	StageRetrieve,
	StageGenerate,
	StageCommit,
	StageCreatePR,
	StageFinalize,
}

// StageIndex returns the position of a stage in StageOrder, or -1 if the
// stage is unknown.
func StageIndex(stage WorkflowStage) int {
	for i, s := range StageOrder {
		if s == stage {
			return i
		}
	}
	return -1
}

const (
	// MaxRetries is the maximum number of generation attempts per job.
	MaxRetries = 3

	idempotencyKeyLength = 64
)

// DefaultRetryDelays is the default backoff schedule between generation
// attempts, in seconds.
var DefaultRetryDelays = []int{5, 15, 45}

var idempotencyKeyPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// ProcessingJob tracks the status of one test case generation workflow.
// A job is an immutable snapshot: every state transition produces a new
// value via the With* methods, the previous snapshot is never mutated.
type ProcessingJob struct {
	JobID          string        `json:"job_id"`
	WebhookEventID string        `json:"webhook_event_id"`
	Status         JobStatus     `json:"status"`
	CurrentStage   WorkflowStage `json:"current_stage"`
	StartedAt      time.Time     `json:"started_at"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
	ErrorMessage   string        `json:"error_message,omitempty"`
	ErrorCode      string        `json:"error_code,omitempty"`
	RetryCount     int           `json:"retry_count"`
	RetryDelays    []int         `json:"retry_delays"`
	LastRetryAt    *time.Time    `json:"last_retry_at,omitempty"`
	IdempotencyKey string        `json:"idempotency_key"`
	CorrelationID  string        `json:"correlation_id"`
}

// NewProcessingJob builds the initial PENDING/RECEIVE snapshot for a
// validated webhook event.
func NewProcessingJob(jobID, eventID, correlationID, idempotencyKey string, startedAt time.Time) ProcessingJob {
	return ProcessingJob{
		JobID:          jobID,
		WebhookEventID: eventID,
		Status:         JobStatusPending,
		CurrentStage:   StageReceive,
		StartedAt:      startedAt,
		RetryCount:     0,
		RetryDelays:    append([]int(nil), DefaultRetryDelays...),
		IdempotencyKey: idempotencyKey,
		CorrelationID:  correlationID,
	}
}

// WithStage returns a copy of the job advanced to the given stage.
func (j ProcessingJob) WithStage(stage WorkflowStage) ProcessingJob {
	j.CurrentStage = stage
	return j
}

// WithProcessing returns a copy of the job flipped to PROCESSING and
// advanced to the given stage. Used by the RECEIVE transition.
func (j ProcessingJob) WithProcessing(stage WorkflowStage) ProcessingJob {
	j.Status = JobStatusProcessing
	j.CurrentStage = stage
	return j
}

// WithRetry returns a copy of the job recording one failed generation
// attempt: retry_count is incremented and last_retry_at is set.
func (j ProcessingJob) WithRetry(at time.Time) ProcessingJob {
	j.RetryCount++
	t := at
	j.LastRetryAt = &t
	return j
}

// Completed returns the terminal COMPLETED snapshot.
func (j ProcessingJob) Completed(at time.Time) ProcessingJob {
	j.Status = JobStatusCompleted
	j.CurrentStage = StageFinalize
	t := at
	j.CompletedAt = &t
	j.ErrorMessage = ""
	j.ErrorCode = ""
	return j
}

// Failed returns the terminal FAILED snapshot. The current stage is left
// where the failure occurred, never advanced.
func (j ProcessingJob) Failed(at time.Time, code, message string) ProcessingJob {
	j.Status = JobStatusFailed
	t := at
	j.CompletedAt = &t
	j.ErrorCode = code
	j.ErrorMessage = message
	return j
}

// IsTerminal reports whether no further stage execution occurs for the job.
func (j ProcessingJob) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// RetryDelay returns the backoff duration to sleep after failed attempt i,
// clamped to the last configured delay when i runs past the schedule.
func (j ProcessingJob) RetryDelay(attempt int) time.Duration {
	delays := j.RetryDelays
	if len(delays) == 0 {
		delays = DefaultRetryDelays
	}
	if attempt >= len(delays) {
		attempt = len(delays) - 1
	}
	if attempt < 0 {
		attempt = 0
	}
	return time.Duration(delays[attempt]) * time.Second
}

// Validate checks the job snapshot invariants.
func (j ProcessingJob) Validate() error {
	if j.JobID == "" {
		return fmt.Errorf("job_id is required")
	}
	if j.WebhookEventID == "" {
		return fmt.Errorf("webhook_event_id is required")
	}
	if j.CorrelationID == "" {
		return fmt.Errorf("correlation_id is required")
	}
	switch j.Status {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed, JobStatusSkipped:
	default:
		return fmt.Errorf("invalid status: %q", j.Status)
	}
	if StageIndex(j.CurrentStage) < 0 {
		return fmt.Errorf("invalid stage: %q", j.CurrentStage)
	}
	if j.RetryCount < 0 || j.RetryCount > MaxRetries {
		return fmt.Errorf("retry_count must be in [0,%d], got %d", MaxRetries, j.RetryCount)
	}
	if len(j.IdempotencyKey) != idempotencyKeyLength || !idempotencyKeyPattern.MatchString(j.IdempotencyKey) {
		return fmt.Errorf("idempotency_key must be a 64-character hex digest")
	}
	if j.CompletedAt != nil {
		if !j.IsTerminal() {
			return fmt.Errorf("completed_at is only set on terminal jobs")
		}
		if !j.CompletedAt.After(j.StartedAt) {
			return fmt.Errorf("completed_at must be after started_at")
		}
	} else if j.IsTerminal() {
		return fmt.Errorf("terminal jobs must set completed_at")
	}
	if j.Status == JobStatusFailed {
		if j.ErrorMessage == "" || j.ErrorCode == "" {
			return fmt.Errorf("error_message and error_code are required when status is FAILED")
		}
	} else if j.ErrorMessage != "" || j.ErrorCode != "" {
		return fmt.Errorf("error_message and error_code are only set when status is FAILED")
	}
	return nil
}
