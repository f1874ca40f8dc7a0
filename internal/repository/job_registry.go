package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/vtanathip/test-case-generator/internal/domain"
)

// JobRegistry stores processing job snapshots keyed by job ID. Put replaces
// the whole snapshot, there are no partial updates.
type JobRegistry interface {
	// Put stores or replaces the snapshot for job.JobID.
	Put(ctx context.Context, job domain.ProcessingJob) error

	// Get returns the snapshot for jobID. The second return value is false
	// when the job is unknown.
	Get(ctx context.Context, jobID string) (domain.ProcessingJob, bool, error)

	// List returns all known snapshots ordered by started_at descending.
	List(ctx context.Context) ([]domain.ProcessingJob, error)
}

// MemoryJobRegistry is the default, process-local JobRegistry. Safe for
// concurrent use.
type MemoryJobRegistry struct {
	mu   sync.RWMutex
	jobs map[string]domain.ProcessingJob
}

// NewMemoryJobRegistry creates an empty in-memory registry.
func NewMemoryJobRegistry() *MemoryJobRegistry {
	return &MemoryJobRegistry{
		jobs: make(map[string]domain.ProcessingJob),
	}
}

// Put stores or replaces a job snapshot.
func (r *MemoryJobRegistry) Put(_ context.Context, job domain.ProcessingJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Copy retry delays so later snapshot mutations cannot leak in
	job.RetryDelays = append([]int(nil), job.RetryDelays...)
	r.jobs[job.JobID] = job
	return nil
}

// Get returns a job snapshot by ID.
func (r *MemoryJobRegistry) Get(_ context.Context, jobID string) (domain.ProcessingJob, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[jobID]
	return job, ok, nil
}

// List returns all snapshots, most recently started first.
func (r *MemoryJobRegistry) List(_ context.Context) ([]domain.ProcessingJob, error) {
	r.mu.RLock()
	jobs := make([]domain.ProcessingJob, 0, len(r.jobs))
	for _, j := range r.jobs {
		jobs = append(jobs, j)
	}
	r.mu.RUnlock()

	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].StartedAt.After(jobs[k].StartedAt)
	})
	return jobs, nil
}
