package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vtanathip/test-case-generator/internal/domain"
)

// JobRecord is the database row backing one job snapshot. Retry delays are
// stored as a JSON array.
type JobRecord struct {
	JobID          string     `gorm:"primaryKey;column:job_id"`
	WebhookEventID string     `gorm:"column:webhook_event_id;index"`
	Status         string     `gorm:"column:status;index"`
	CurrentStage   string     `gorm:"column:current_stage"`
	StartedAt      time.Time  `gorm:"column:started_at;index"`
	CompletedAt    *time.Time `gorm:"column:completed_at"`
	ErrorMessage   string     `gorm:"column:error_message"`
	ErrorCode      string     `gorm:"column:error_code"`
	RetryCount     int        `gorm:"column:retry_count"`
	RetryDelays    string     `gorm:"column:retry_delays"`
	LastRetryAt    *time.Time `gorm:"column:last_retry_at"`
	IdempotencyKey string     `gorm:"column:idempotency_key;index"`
	CorrelationID  string     `gorm:"column:correlation_id;index"`
}

// TableName overrides the default table name.
func (JobRecord) TableName() string {
	return "processing_jobs"
}

func recordFromJob(job domain.ProcessingJob) (JobRecord, error) {
	delays, err := json.Marshal(job.RetryDelays)
	if err != nil {
		return JobRecord{}, fmt.Errorf("failed to encode retry delays: %w", err)
	}
	return JobRecord{
		JobID:          job.JobID,
		WebhookEventID: job.WebhookEventID,
		Status:         string(job.Status),
		CurrentStage:   string(job.CurrentStage),
		StartedAt:      job.StartedAt,
		CompletedAt:    job.CompletedAt,
		ErrorMessage:   job.ErrorMessage,
		ErrorCode:      job.ErrorCode,
		RetryCount:     job.RetryCount,
		RetryDelays:    string(delays),
		LastRetryAt:    job.LastRetryAt,
		IdempotencyKey: job.IdempotencyKey,
		CorrelationID:  job.CorrelationID,
	}, nil
}

func (r JobRecord) toJob() domain.ProcessingJob {
	var delays []int
	_ = json.Unmarshal([]byte(r.RetryDelays), &delays)
	return domain.ProcessingJob{
		JobID:          r.JobID,
		WebhookEventID: r.WebhookEventID,
		Status:         domain.JobStatus(r.Status),
		CurrentStage:   domain.WorkflowStage(r.CurrentStage),
		StartedAt:      r.StartedAt,
		CompletedAt:    r.CompletedAt,
		ErrorMessage:   r.ErrorMessage,
		ErrorCode:      r.ErrorCode,
		RetryCount:     r.RetryCount,
		RetryDelays:    delays,
		LastRetryAt:    r.LastRetryAt,
		IdempotencyKey: r.IdempotencyKey,
		CorrelationID:  r.CorrelationID,
	}
}

// GormJobRegistry persists job snapshots through GORM, surviving process
// restarts. It satisfies the same snapshot-replacement contract as the
// in-memory registry.
type GormJobRegistry struct {
	db *gorm.DB
}

// NewGormJobRegistry creates a registry backed by an initialized database.
func NewGormJobRegistry(db *gorm.DB) *GormJobRegistry {
	return &GormJobRegistry{db: db}
}

// Put stores or replaces a job snapshot.
func (r *GormJobRegistry) Put(ctx context.Context, job domain.ProcessingJob) error {
	rec, err := recordFromJob(job)
	if err != nil {
		return err
	}
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "job_id"}},
		UpdateAll: true,
	}).Create(&rec)
	if result.Error != nil {
		return fmt.Errorf("failed to store job %s: %w", job.JobID, result.Error)
	}
	return nil
}

// Get returns a job snapshot by ID.
func (r *GormJobRegistry) Get(ctx context.Context, jobID string) (domain.ProcessingJob, bool, error) {
	var rec JobRecord
	err := r.db.WithContext(ctx).First(&rec, "job_id = ?", jobID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ProcessingJob{}, false, nil
		}
		return domain.ProcessingJob{}, false, fmt.Errorf("failed to load job %s: %w", jobID, err)
	}
	return rec.toJob(), true, nil
}

// List returns all snapshots, most recently started first.
func (r *GormJobRegistry) List(ctx context.Context) ([]domain.ProcessingJob, error) {
	var recs []JobRecord
	if err := r.db.WithContext(ctx).Order("started_at DESC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	jobs := make([]domain.ProcessingJob, len(recs))
	for i, rec := range recs {
		jobs[i] = rec.toJob()
	}
	return jobs, nil
}
