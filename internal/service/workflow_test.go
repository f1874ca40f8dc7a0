package service

import (
	"context"
	"testing"
	"time"

	"github.com/vtanathip/test-case-generator/internal/config"
	"github.com/vtanathip/test-case-generator/internal/domain"
	"github.com/vtanathip/test-case-generator/internal/errs"
	"github.com/vtanathip/test-case-generator/internal/repository"
)

// recordingRegistry captures every snapshot the workflow stores.
type recordingRegistry struct {
	*repository.MemoryJobRegistry
	snapshots []domain.ProcessingJob
}

func newRecordingRegistry() *recordingRegistry {
	return &recordingRegistry{MemoryJobRegistry: repository.NewMemoryJobRegistry()}
}

func (r *recordingRegistry) Put(ctx context.Context, job domain.ProcessingJob) error {
	r.snapshots = append(r.snapshots, job)
	return r.MemoryJobRegistry.Put(ctx, job)
}

type fakeRetriever struct {
	docs []ContextDocument
	err  error
}

func (f *fakeRetriever) Retrieve(context.Context, string, string) ([]ContextDocument, error) {
	return f.docs, f.err
}

// fakeGenerator fails the first `failures` calls with failErr, then
// succeeds.
type fakeGenerator struct {
	failures int
	failErr  error
	calls    int
	panics   bool
}

func (f *fakeGenerator) GetModel() string { return "fake-model" }

func (f *fakeGenerator) GenerateDocument(_ context.Context, event domain.WebhookEvent, docs []ContextDocument) (domain.TestCaseDocument, error) {
	f.calls++
	if f.panics {
		panic("generator blew up")
	}
	if f.calls <= f.failures {
		return domain.TestCaseDocument{}, f.failErr
	}

	sources := make([]int, len(docs))
	for i, d := range docs {
		sources[i] = d.IssueNumber
	}
	now := time.Date(2026, 5, 1, 10, 2, 0, 0, time.UTC)
	return domain.TestCaseDocument{
		DocumentID:  "11111111-2222-3333-4444-555555555555",
		IssueNumber: event.IssueNumber,
		Title:       "Test Cases: " + event.IssueTitle,
		Content:     "# Test Cases: " + event.IssueTitle + "\n\n## Overview\nGenerated.",
		Metadata: domain.DocumentMetadata{
			Issue:          event.IssueNumber,
			GeneratedAt:    now,
			AIModel:        "fake-model",
			ContextSources: sources,
		},
		BranchName:     domain.BranchNameForIssue(event.IssueNumber),
		GeneratedAt:    now,
		AIModel:        "fake-model",
		ContextSources: sources,
		CorrelationID:  event.CorrelationID,
	}, nil
}

type fakePublisher struct {
	branchErr   error
	commitErr   error
	prErr       error
	commentErr  error
	branches    []string
	commits     []string
	comments    []string
	createdPRs  int
	branchCalls int
}

func (f *fakePublisher) CreateBranch(_ context.Context, _ domain.WebhookEvent, branch string) error {
	f.branchCalls++
	if f.branchErr != nil {
		return f.branchErr
	}
	f.branches = append(f.branches, branch)
	return nil
}

func (f *fakePublisher) CommitFile(_ context.Context, _ domain.WebhookEvent, _, path, _, _ string) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	f.commits = append(f.commits, path)
	return nil
}

func (f *fakePublisher) CreatePullRequest(_ context.Context, _ domain.WebhookEvent, _, _ string) (PullRequest, error) {
	if f.prErr != nil {
		return PullRequest{}, f.prErr
	}
	f.createdPRs++
	return PullRequest{Number: 7, URL: "https://github.com/octocat/hello-world/pull/7"}, nil
}

func (f *fakePublisher) AddIssueComment(_ context.Context, _ domain.WebhookEvent, prURL string) error {
	if f.commentErr != nil {
		return f.commentErr
	}
	f.comments = append(f.comments, prURL)
	return nil
}

// fakeClock advances one second per reading so snapshot timestamps stay
// strictly ordered.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func workflowEvent() domain.WebhookEvent {
	return domain.WebhookEvent{
		EventID:       "event-1",
		EventType:     domain.EventIssuesLabeled,
		IssueNumber:   42,
		IssueTitle:    "Add OAuth2 authentication",
		IssueBody:     "Implement OAuth2 with Google provider",
		Labels:        []string{domain.TriggerLabel},
		Repository:    "octocat/hello-world",
		Signature:     "sha256=deadbeef",
		ReceivedAt:    time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
		CorrelationID: "corr-1",
	}
}

func newTestWorkflow(reg repository.JobRegistry, retriever ContextRetriever, gen TestCaseGenerator, pub Publisher) (*Workflow, *fakeClock, *[]time.Duration) {
	w := NewWorkflow(reg, retriever, gen, pub, nil, nil, &config.WorkflowConfig{
		MaxRetries:        3,
		RetryDelays:       []int{5, 15, 45},
		GenerationTimeout: 120 * time.Second,
	})

	clock := &fakeClock{t: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	w.now = clock.now

	var slept []time.Duration
	w.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return w, clock, &slept
}

func startJob(t *testing.T, w *Workflow, event domain.WebhookEvent) domain.ProcessingJob {
	t.Helper()
	job, err := w.NewJob(context.Background(), event)
	if err != nil {
		t.Fatalf("NewJob failed: %v", err)
	}
	return job
}

func TestWorkflow_HappyPath(t *testing.T) {
	reg := newRecordingRegistry()
	retriever := &fakeRetriever{docs: []ContextDocument{{Content: "# prior", IssueNumber: 38, Score: 0.9}}}
	gen := &fakeGenerator{}
	pub := &fakePublisher{}
	w, _, slept := newTestWorkflow(reg, retriever, gen, pub)

	event := workflowEvent()
	job := startJob(t, w, event)

	final, err := w.Execute(context.Background(), job, event)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if final.Status != domain.JobStatusCompleted {
		t.Errorf("expected COMPLETED, got %s", final.Status)
	}
	if final.CurrentStage != domain.StageFinalize {
		t.Errorf("expected FINALIZE, got %s", final.CurrentStage)
	}
	if final.RetryCount != 0 {
		t.Errorf("expected no retries, got %d", final.RetryCount)
	}
	if len(*slept) != 0 {
		t.Errorf("no backoff expected, slept %v", *slept)
	}
	if err := final.Validate(); err != nil {
		t.Errorf("final snapshot should validate: %v", err)
	}

	// GitHub side effects
	if len(pub.branches) != 1 || pub.branches[0] != "test-cases/issue-42" {
		t.Errorf("unexpected branches: %v", pub.branches)
	}
	if len(pub.commits) != 1 || pub.commits[0] != "test-cases/issue-42.md" {
		t.Errorf("unexpected commits: %v", pub.commits)
	}
	if pub.createdPRs != 1 {
		t.Errorf("expected 1 PR, got %d", pub.createdPRs)
	}
	if len(pub.comments) != 1 || pub.comments[0] != "https://github.com/octocat/hello-world/pull/7" {
		t.Errorf("unexpected comments: %v", pub.comments)
	}
}

func TestWorkflow_StageProgressionSnapshots(t *testing.T) {
	reg := newRecordingRegistry()
	w, _, _ := newTestWorkflow(reg, &fakeRetriever{}, &fakeGenerator{}, &fakePublisher{})

	event := workflowEvent()
	job := startJob(t, w, event)
	if _, err := w.Execute(context.Background(), job, event); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	wantStages := []domain.WorkflowStage{
		domain.StageReceive,  // initial PENDING snapshot
		domain.StageRetrieve, // RECEIVE transition
		domain.StageGenerate,
		domain.StageCommit,
		domain.StageCreatePR,
		domain.StageFinalize,
		domain.StageFinalize, // terminal COMPLETED snapshot
	}
	if len(reg.snapshots) != len(wantStages) {
		t.Fatalf("expected %d snapshots, got %d", len(wantStages), len(reg.snapshots))
	}
	for i, want := range wantStages {
		if reg.snapshots[i].CurrentStage != want {
			t.Errorf("snapshot %d: stage = %s, want %s", i, reg.snapshots[i].CurrentStage, want)
		}
	}

	// Stages only ever move forward
	prev := -1
	for i, snap := range reg.snapshots {
		idx := domain.StageIndex(snap.CurrentStage)
		if idx < prev {
			t.Errorf("snapshot %d moved backwards: %s", i, snap.CurrentStage)
		}
		prev = idx
	}
}

func TestWorkflow_EmptyContextStillCompletes(t *testing.T) {
	reg := newRecordingRegistry()
	w, _, _ := newTestWorkflow(reg, &fakeRetriever{docs: nil}, &fakeGenerator{}, &fakePublisher{})

	event := workflowEvent()
	job := startJob(t, w, event)
	final, err := w.Execute(context.Background(), job, event)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if final.Status != domain.JobStatusCompleted {
		t.Errorf("expected COMPLETED with empty context, got %s", final.Status)
	}
}

func TestWorkflow_RetrieveFailureIsTerminal(t *testing.T) {
	reg := newRecordingRegistry()
	retriever := &fakeRetriever{err: errs.New(errs.CodeVectorQuery, "vector search failed")}
	gen := &fakeGenerator{}
	w, _, _ := newTestWorkflow(reg, retriever, gen, &fakePublisher{})

	event := workflowEvent()
	job := startJob(t, w, event)
	final, err := w.Execute(context.Background(), job, event)
	if err == nil {
		t.Fatal("expected error")
	}

	if final.Status != domain.JobStatusFailed {
		t.Errorf("expected FAILED, got %s", final.Status)
	}
	if final.CurrentStage != domain.StageRetrieve {
		t.Errorf("failure must stay at RETRIEVE, got %s", final.CurrentStage)
	}
	if final.ErrorCode != errs.CodeVectorQuery {
		t.Errorf("expected %s, got %s", errs.CodeVectorQuery, final.ErrorCode)
	}
	if gen.calls != 0 {
		t.Errorf("generation must not run after retrieval failure, ran %d times", gen.calls)
	}
}

func TestWorkflow_GenerateRetriesThenSucceeds(t *testing.T) {
	reg := newRecordingRegistry()
	gen := &fakeGenerator{failures: 2, failErr: errs.New(errs.CodeGenerationFailed, "model error")}
	w, _, slept := newTestWorkflow(reg, &fakeRetriever{}, gen, &fakePublisher{})

	event := workflowEvent()
	job := startJob(t, w, event)
	final, err := w.Execute(context.Background(), job, event)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if final.Status != domain.JobStatusCompleted {
		t.Errorf("expected COMPLETED, got %s", final.Status)
	}
	if final.RetryCount != 2 {
		t.Errorf("expected retry_count 2, got %d", final.RetryCount)
	}
	if final.LastRetryAt == nil {
		t.Error("last_retry_at should be set after retries")
	}
	if gen.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", gen.calls)
	}

	want := []time.Duration{5 * time.Second, 15 * time.Second}
	if len(*slept) != len(want) {
		t.Fatalf("expected %d sleeps, got %v", len(want), *slept)
	}
	for i, d := range want {
		if (*slept)[i] != d {
			t.Errorf("sleep %d = %v, want %v", i, (*slept)[i], d)
		}
	}
}

func TestWorkflow_GenerateExhaustsRetries(t *testing.T) {
	reg := newRecordingRegistry()
	gen := &fakeGenerator{failures: 99, failErr: errs.New(errs.CodeGenerationTimeout, "generation timed out")}
	pub := &fakePublisher{}
	w, _, slept := newTestWorkflow(reg, &fakeRetriever{}, gen, pub)

	event := workflowEvent()
	job := startJob(t, w, event)
	final, err := w.Execute(context.Background(), job, event)
	if err == nil {
		t.Fatal("expected error")
	}

	if final.Status != domain.JobStatusFailed {
		t.Errorf("expected FAILED, got %s", final.Status)
	}
	if final.CurrentStage != domain.StageGenerate {
		t.Errorf("failure must stay at GENERATE, got %s", final.CurrentStage)
	}
	if final.RetryCount != 3 {
		t.Errorf("expected retry_count 3 at exhaustion, got %d", final.RetryCount)
	}
	if final.ErrorCode != errs.CodeGenerationTimeout {
		t.Errorf("expected %s, got %s", errs.CodeGenerationTimeout, final.ErrorCode)
	}
	if gen.calls != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", gen.calls)
	}
	// No sleep follows the final failed attempt
	if len(*slept) != 2 {
		t.Errorf("expected 2 sleeps, got %v", *slept)
	}
	if pub.branchCalls != 0 {
		t.Error("COMMIT must not run after generation exhaustion")
	}
}

func TestWorkflow_BranchExistsIsTerminal(t *testing.T) {
	reg := newRecordingRegistry()
	gen := &fakeGenerator{}
	pub := &fakePublisher{branchErr: errs.New(errs.CodeBranchExists, "branch already exists")}
	w, _, slept := newTestWorkflow(reg, &fakeRetriever{}, gen, pub)

	event := workflowEvent()
	job := startJob(t, w, event)
	final, err := w.Execute(context.Background(), job, event)
	if err == nil {
		t.Fatal("expected error")
	}

	if final.Status != domain.JobStatusFailed {
		t.Errorf("expected FAILED, got %s", final.Status)
	}
	if final.CurrentStage != domain.StageCommit {
		t.Errorf("failure must stay at COMMIT, got %s", final.CurrentStage)
	}
	if final.ErrorCode != errs.CodeBranchExists {
		t.Errorf("expected %s, got %s", errs.CodeBranchExists, final.ErrorCode)
	}
	if final.RetryCount != 0 {
		t.Errorf("branch conflicts never retry, got retry_count %d", final.RetryCount)
	}
	if len(*slept) != 0 {
		t.Errorf("no backoff expected, slept %v", *slept)
	}
	if pub.createdPRs != 0 {
		t.Error("CREATE_PR must not run after COMMIT failure")
	}
}

func TestWorkflow_PanicRecovery(t *testing.T) {
	reg := newRecordingRegistry()
	gen := &fakeGenerator{panics: true}
	w, _, _ := newTestWorkflow(reg, &fakeRetriever{}, gen, &fakePublisher{})

	event := workflowEvent()
	job := startJob(t, w, event)
	final, err := w.Execute(context.Background(), job, event)
	if err == nil {
		t.Fatal("expected error from recovered panic")
	}

	if final.Status != domain.JobStatusFailed {
		t.Errorf("expected FAILED, got %s", final.Status)
	}
	if final.ErrorCode != errs.CodeInternal {
		t.Errorf("expected %s, got %s", errs.CodeInternal, final.ErrorCode)
	}

	// Registry must hold the terminal snapshot
	stored, ok, _ := reg.Get(context.Background(), job.JobID)
	if !ok {
		t.Fatal("job missing from registry")
	}
	if !stored.IsTerminal() {
		t.Error("stored job should be terminal after panic")
	}
}

func TestWorkflow_FinalizeCommentFailureFailsJob(t *testing.T) {
	reg := newRecordingRegistry()
	pub := &fakePublisher{commentErr: errs.New(errs.CodeGitHubAPI, "comment failed").WithStatus(502)}
	w, _, _ := newTestWorkflow(reg, &fakeRetriever{}, &fakeGenerator{}, pub)

	event := workflowEvent()
	job := startJob(t, w, event)
	final, err := w.Execute(context.Background(), job, event)
	if err == nil {
		t.Fatal("expected error")
	}
	if final.Status != domain.JobStatusFailed {
		t.Errorf("expected FAILED, got %s", final.Status)
	}
	if final.CurrentStage != domain.StageFinalize {
		t.Errorf("failure must stay at FINALIZE, got %s", final.CurrentStage)
	}
}

// failingIndexer always errors; indexing is best effort so the job still
// completes.
type failingIndexer struct{ calls int }

func (f *failingIndexer) Index(context.Context, string, string, string, int, time.Time) error {
	f.calls++
	return errs.New(errs.CodeVectorQuery, "index down")
}

func TestWorkflow_IndexingFailureDoesNotFailJob(t *testing.T) {
	reg := newRecordingRegistry()
	idx := &failingIndexer{}
	w, _, _ := newTestWorkflow(reg, &fakeRetriever{}, &fakeGenerator{}, &fakePublisher{})
	w.indexer = idx

	event := workflowEvent()
	job := startJob(t, w, event)
	final, err := w.Execute(context.Background(), job, event)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if final.Status != domain.JobStatusCompleted {
		t.Errorf("expected COMPLETED despite index failure, got %s", final.Status)
	}
	if idx.calls != 1 {
		t.Errorf("expected 1 index attempt, got %d", idx.calls)
	}
}
