package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vtanathip/test-case-generator/internal/domain"
)

const testIdempotencyKey = "a3f5b8c2d1e4f6a7b8c9d0e1f2a3b4c5d6e7f8a9b0c1d2e3f4a5b6c7d8e9f0a1"

func newRegistryJob(id string, startedAt time.Time) domain.ProcessingJob {
	return domain.NewProcessingJob(id, "event-"+id, "corr-"+id, testIdempotencyKey, startedAt)
}

func TestMemoryJobRegistry_PutAndGet(t *testing.T) {
	reg := NewMemoryJobRegistry()
	ctx := context.Background()

	job := newRegistryJob("job-1", time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC))
	if err := reg.Put(ctx, job); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, ok, err := reg.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok {
		t.Fatal("job not found after Put")
	}
	if got.JobID != "job-1" || got.Status != domain.JobStatusPending {
		t.Errorf("unexpected job: %+v", got)
	}

	_, ok, err = reg.Get(ctx, "missing")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ok {
		t.Error("unknown ID must report not found")
	}
}

func TestMemoryJobRegistry_PutReplacesSnapshot(t *testing.T) {
	reg := NewMemoryJobRegistry()
	ctx := context.Background()

	job := newRegistryJob("job-1", time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC))
	if err := reg.Put(ctx, job); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	advanced := job.WithProcessing(domain.StageGenerate).WithRetry(time.Date(2026, 5, 1, 10, 0, 10, 0, time.UTC))
	if err := reg.Put(ctx, advanced); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, _, _ := reg.Get(ctx, "job-1")
	if got.Status != domain.JobStatusProcessing {
		t.Errorf("status = %s, want PROCESSING", got.Status)
	}
	if got.CurrentStage != domain.StageGenerate {
		t.Errorf("stage = %s, want GENERATE", got.CurrentStage)
	}
	if got.RetryCount != 1 {
		t.Errorf("retry_count = %d, want 1", got.RetryCount)
	}
}

func TestMemoryJobRegistry_SnapshotIsolation(t *testing.T) {
	reg := NewMemoryJobRegistry()
	ctx := context.Background()

	job := newRegistryJob("job-1", time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC))
	if err := reg.Put(ctx, job); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// Mutating the caller's slice must not leak into the stored snapshot
	job.RetryDelays[0] = 999

	got, _, _ := reg.Get(ctx, "job-1")
	if got.RetryDelays[0] != domain.DefaultRetryDelays[0] {
		t.Errorf("stored snapshot shares retry_delays with the caller: %v", got.RetryDelays)
	}
}

func TestMemoryJobRegistry_ListOrdering(t *testing.T) {
	reg := NewMemoryJobRegistry()
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		job := newRegistryJob(fmt.Sprintf("job-%d", i), base.Add(time.Duration(i)*time.Minute))
		if err := reg.Put(ctx, job); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	jobs, err := reg.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(jobs) != 5 {
		t.Fatalf("expected 5 jobs, got %d", len(jobs))
	}
	for i := 1; i < len(jobs); i++ {
		if jobs[i].StartedAt.After(jobs[i-1].StartedAt) {
			t.Errorf("jobs not ordered by started_at descending at index %d", i)
		}
	}
	if jobs[0].JobID != "job-4" {
		t.Errorf("most recent job first, got %s", jobs[0].JobID)
	}
}

func TestMemoryJobRegistry_ConcurrentAccess(t *testing.T) {
	reg := NewMemoryJobRegistry()
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("job-%d", n)
			job := newRegistryJob(id, base.Add(time.Duration(n)*time.Second))
			if err := reg.Put(ctx, job); err != nil {
				t.Errorf("Put failed: %v", err)
				return
			}
			if _, ok, err := reg.Get(ctx, id); err != nil || !ok {
				t.Errorf("Get(%s) = %v, %v", id, ok, err)
			}
			if _, err := reg.List(ctx); err != nil {
				t.Errorf("List failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	jobs, err := reg.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(jobs) != 50 {
		t.Errorf("expected 50 jobs, got %d", len(jobs))
	}
}
