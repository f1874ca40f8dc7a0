package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vtanathip/test-case-generator/internal/config"
	"github.com/vtanathip/test-case-generator/internal/domain"
	"github.com/vtanathip/test-case-generator/internal/errs"
	"github.com/vtanathip/test-case-generator/internal/logger"
	"github.com/vtanathip/test-case-generator/internal/repository"
)

// ContextRetriever finds reference documents for an issue.
type ContextRetriever interface {
	Retrieve(ctx context.Context, repo, issueBody string) ([]ContextDocument, error)
}

// TestCaseGenerator produces a test case document from an issue and its
// retrieved context.
type TestCaseGenerator interface {
	GenerateDocument(ctx context.Context, event domain.WebhookEvent, contextDocs []ContextDocument) (domain.TestCaseDocument, error)
	GetModel() string
}

// Publisher pushes generated documents to GitHub.
type Publisher interface {
	CreateBranch(ctx context.Context, event domain.WebhookEvent, branchName string) error
	CommitFile(ctx context.Context, event domain.WebhookEvent, branchName, path, message, content string) error
	CreatePullRequest(ctx context.Context, event domain.WebhookEvent, branchName, title string) (PullRequest, error)
	AddIssueComment(ctx context.Context, event domain.WebhookEvent, prURL string) error
}

// DocumentIndexer stores finished documents for future retrieval. Indexing
// is best effort and never fails a job.
type DocumentIndexer interface {
	Index(ctx context.Context, pointID, content, repo string, issueNumber int, generatedAt time.Time) error
}

// DocumentArchiver persists a copy of finished documents to object
// storage. Archiving is best effort and never fails a job.
type DocumentArchiver interface {
	Archive(ctx context.Context, doc domain.TestCaseDocument) error
}

// Workflow runs the six-stage test case generation pipeline:
// RECEIVE, RETRIEVE, GENERATE, COMMIT, CREATE_PR, FINALIZE.
//
// Each transition replaces the job snapshot in the registry. A stage
// failure marks the job FAILED at that stage and stops; later stages never
// run. Only generation failures retry.
type Workflow struct {
	registry  repository.JobRegistry
	retriever ContextRetriever
	generator TestCaseGenerator
	publisher Publisher
	indexer   DocumentIndexer
	archiver  DocumentArchiver

	maxRetries        int
	retryDelays       []int
	generationTimeout time.Duration

	// Injected clock and sleep for deterministic tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewWorkflow wires the pipeline. indexer and archiver may be nil, which
// disables the corresponding best-effort finalize steps.
func NewWorkflow(
	registry repository.JobRegistry,
	retriever ContextRetriever,
	generator TestCaseGenerator,
	publisher Publisher,
	indexer DocumentIndexer,
	archiver DocumentArchiver,
	cfg *config.WorkflowConfig,
) *Workflow {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = domain.MaxRetries
	}
	delays := cfg.RetryDelays
	if len(delays) == 0 {
		delays = domain.DefaultRetryDelays
	}
	timeout := cfg.GenerationTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &Workflow{
		registry:          registry,
		retriever:         retriever,
		generator:         generator,
		publisher:         publisher,
		indexer:           indexer,
		archiver:          archiver,
		maxRetries:        maxRetries,
		retryDelays:       append([]int(nil), delays...),
		generationTimeout: timeout,
		now:               time.Now,
		sleep:             sleepContext,
	}
}

// NewJob builds the initial PENDING snapshot for an event and records it.
func (w *Workflow) NewJob(ctx context.Context, event domain.WebhookEvent) (domain.ProcessingJob, error) {
	key := IdempotencyKey(event.Repository, event.IssueNumber)
	job := domain.NewProcessingJob(uuid.New().String(), event.EventID, event.CorrelationID, key, w.now())
	job.RetryDelays = append([]int(nil), w.retryDelays...)

	if err := w.registry.Put(ctx, job); err != nil {
		return domain.ProcessingJob{}, fmt.Errorf("failed to register job: %w", err)
	}
	return job, nil
}

// Execute runs the full pipeline for a previously registered job. It
// always returns the final snapshot; the error mirrors the failure that
// terminated the run, if any.
func (w *Workflow) Execute(ctx context.Context, job domain.ProcessingJob, event domain.WebhookEvent) (final domain.ProcessingJob, err error) {
	ctx = logger.SetJobID(ctx, job.JobID)
	ctx = logger.SetCorrelationID(ctx, job.CorrelationID)
	ctx = logger.SetRepository(ctx, event.Repository)
	ctx = logger.SetIssueNumber(ctx, event.IssueNumber)

	// A panic in any stage must still land the job in a terminal state
	defer func() {
		if r := recover(); r != nil {
			err = errs.Newf(errs.CodeInternal, "workflow panic: %v", r)
			final = w.fail(ctx, job, err)
		}
	}()

	// Stage 1: RECEIVE
	job = job.WithProcessing(domain.StageRetrieve)
	if perr := w.put(ctx, job); perr != nil {
		return w.fail(ctx, job, perr), perr
	}
	w.stageLog(ctx, domain.StageReceive).Info("webhook received and validated")

	// Stage 2: RETRIEVE
	contextDocs, rerr := w.retriever.Retrieve(ctx, event.Repository, event.IssueBody)
	if rerr != nil {
		w.stageLog(ctx, domain.StageRetrieve).WithError(rerr).Error("context retrieval failed")
		return w.fail(ctx, job, rerr), rerr
	}
	w.stageLog(ctx, domain.StageRetrieve).WithCount(len(contextDocs)).Info("context retrieved")

	// Stage 3: GENERATE (with retries)
	job = job.WithStage(domain.StageGenerate)
	if perr := w.put(ctx, job); perr != nil {
		return w.fail(ctx, job, perr), perr
	}
	doc, job, gerr := w.generate(ctx, job, event, contextDocs)
	if gerr != nil {
		return w.fail(ctx, job, gerr), gerr
	}

	// Stage 4: COMMIT
	job = job.WithStage(domain.StageCommit)
	if perr := w.put(ctx, job); perr != nil {
		return w.fail(ctx, job, perr), perr
	}
	if cerr := w.commit(ctx, event, doc); cerr != nil {
		w.stageLog(ctx, domain.StageCommit).WithError(cerr).Error("commit failed")
		return w.fail(ctx, job, cerr), cerr
	}
	w.stageLog(ctx, domain.StageCommit).WithField("branch", doc.BranchName).Info("test cases committed")

	// Stage 5: CREATE_PR
	job = job.WithStage(domain.StageCreatePR)
	if perr := w.put(ctx, job); perr != nil {
		return w.fail(ctx, job, perr), perr
	}
	pr, perr := w.publisher.CreatePullRequest(ctx, event, doc.BranchName, doc.Title)
	if perr != nil {
		w.stageLog(ctx, domain.StageCreatePR).WithError(perr).Error("pull request creation failed")
		return w.fail(ctx, job, perr), perr
	}
	doc = doc.WithPullRequest(pr.Number, pr.URL)
	w.stageLog(ctx, domain.StageCreatePR).WithField("pr_number", pr.Number).Info("pull request created")

	// Stage 6: FINALIZE
	job = job.WithStage(domain.StageFinalize)
	if perr := w.put(ctx, job); perr != nil {
		return w.fail(ctx, job, perr), perr
	}
	if cerr := w.publisher.AddIssueComment(ctx, event, pr.URL); cerr != nil {
		w.stageLog(ctx, domain.StageFinalize).WithError(cerr).Error("issue comment failed")
		return w.fail(ctx, job, cerr), cerr
	}
	w.finalizeBestEffort(ctx, event, doc)

	job = job.Completed(w.now())
	if perr := w.put(ctx, job); perr != nil {
		return job, perr
	}
	w.stageLog(ctx, domain.StageFinalize).Info("workflow completed")
	return job, nil
}

// generate runs the model with the configured timeout, retrying on
// retryable errors with the configured backoff schedule. Each failed
// attempt records a retry snapshot before sleeping.
func (w *Workflow) generate(ctx context.Context, job domain.ProcessingJob, event domain.WebhookEvent, contextDocs []ContextDocument) (domain.TestCaseDocument, domain.ProcessingJob, error) {
	var lastErr error

	for attempt := 0; attempt < w.maxRetries; attempt++ {
		genCtx, cancel := context.WithTimeout(ctx, w.generationTimeout)
		doc, err := w.generator.GenerateDocument(genCtx, event, contextDocs)
		cancel()

		if err == nil {
			return doc, job, nil
		}
		lastErr = err

		if !errs.Retryable(err) {
			return domain.TestCaseDocument{}, job, err
		}

		job = job.WithRetry(w.now())
		if perr := w.put(ctx, job); perr != nil {
			return domain.TestCaseDocument{}, job, perr
		}
		w.stageLog(ctx, domain.StageGenerate).
			WithError(err).
			WithField("retry_count", job.RetryCount).
			Warn("generation attempt failed")

		if attempt < w.maxRetries-1 {
			if serr := w.sleep(ctx, job.RetryDelay(attempt)); serr != nil {
				return domain.TestCaseDocument{}, job, errs.Wrap(serr, errs.CodeInternal, "workflow cancelled during backoff")
			}
		}
	}

	return domain.TestCaseDocument{}, job, lastErr
}

// commit creates the branch and commits the document file. A pre-existing
// branch is terminal, it is never retried.
func (w *Workflow) commit(ctx context.Context, event domain.WebhookEvent, doc domain.TestCaseDocument) error {
	if err := w.publisher.CreateBranch(ctx, event, doc.BranchName); err != nil {
		return err
	}

	path := domain.FilePathForIssue(doc.IssueNumber)
	message := fmt.Sprintf("Add test cases for issue #%d", doc.IssueNumber)
	return w.publisher.CommitFile(ctx, event, doc.BranchName, path, message, doc.Content)
}

// finalizeBestEffort indexes and archives the finished document. Failures
// here are logged and swallowed, the job still completes.
func (w *Workflow) finalizeBestEffort(ctx context.Context, event domain.WebhookEvent, doc domain.TestCaseDocument) {
	if w.indexer != nil {
		if err := w.indexer.Index(ctx, doc.DocumentID, doc.Content, event.Repository, doc.IssueNumber, doc.GeneratedAt); err != nil {
			w.stageLog(ctx, domain.StageFinalize).WithError(err).Warn("document indexing failed")
		}
	}
	if w.archiver != nil {
		if err := w.archiver.Archive(ctx, doc); err != nil {
			w.stageLog(ctx, domain.StageFinalize).WithError(err).Warn("document archiving failed")
		}
	}
}

// fail records the terminal FAILED snapshot at the current stage.
func (w *Workflow) fail(ctx context.Context, job domain.ProcessingJob, cause error) domain.ProcessingJob {
	failed := job.Failed(w.now(), errs.Code(cause), cause.Error())
	if perr := w.registry.Put(ctx, failed); perr != nil {
		logger.FromContext(ctx).WithError(perr).Error("failed to record terminal job state")
	}
	return failed
}

func (w *Workflow) put(ctx context.Context, job domain.ProcessingJob) error {
	if err := w.registry.Put(ctx, job); err != nil {
		return errs.Wrap(err, errs.CodeInternal, "failed to store job snapshot")
	}
	return nil
}

func (w *Workflow) stageLog(ctx context.Context, stage domain.WorkflowStage) *logger.Logger {
	return logger.FromContext(ctx).WithField(logger.FieldStage, string(stage))
}
