package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/github"
	"golang.org/x/oauth2"

	"github.com/vtanathip/test-case-generator/internal/config"
	"github.com/vtanathip/test-case-generator/internal/domain"
	"github.com/vtanathip/test-case-generator/internal/errs"
	"github.com/vtanathip/test-case-generator/internal/logger"
)

// serverErrorRetries is how many times a 5xx GitHub response is retried
// before giving up.
const serverErrorRetries = 2

// PullRequest holds the identifying fields of a created pull request.
type PullRequest struct {
	Number int
	URL    string
}

// GitHubService publishes generated documents back to GitHub: branch
// creation, file commit, pull request, and issue comment.
type GitHubService struct {
	client     *github.Client
	baseBranch string
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewGitHubService creates an authenticated GitHub client.
// Parameters:
//   - cfg: GitHub configuration including token and base branch.
//
// Returns:
//   - *GitHubService: initialized GitHub API wrapper.
func NewGitHubService(cfg *config.GitHubConfig) *GitHubService {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
	tc := oauth2.NewClient(context.Background(), ts)
	client := github.NewClient(tc)

	if cfg.BaseURL != "" {
		if u, err := client.BaseURL.Parse(cfg.BaseURL); err == nil {
			client.BaseURL = u
		}
	}

	baseBranch := cfg.BaseBranch
	if baseBranch == "" {
		baseBranch = "main"
	}

	return &GitHubService{
		client:     client,
		baseBranch: baseBranch,
		sleep:      sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// classifyGitHubError maps go-github errors onto application error codes.
func classifyGitHubError(err error, operation string) error {
	if err == nil {
		return nil
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return errs.Wrap(err, errs.CodeRateLimit, "github rate limit exceeded").
			WithStatus(http.StatusForbidden)
	}

	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		status := respErr.Response.StatusCode
		if status == http.StatusUnprocessableEntity &&
			strings.Contains(strings.ToLower(respErr.Message), "already exists") {
			return errs.Wrap(err, errs.CodeBranchExists, "branch already exists").
				WithStatus(status)
		}
		return errs.Wrap(err, errs.CodeGitHubAPI, fmt.Sprintf("github %s failed", operation)).
			WithStatus(status)
	}

	return errs.Wrap(err, errs.CodeGitHubAPI, fmt.Sprintf("github %s failed", operation))
}

// retryable reports whether a GitHub call should be retried. Only server
// errors qualify; 4xx responses are deterministic.
func retryableGitHubError(err error) bool {
	status := errs.Status(err)
	return status >= 500 && status <= 599
}

// withRetries runs op, retrying transient server errors with exponential
// backoff (2^attempt seconds).
func (s *GitHubService) withRetries(ctx context.Context, operation string, op func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = classifyGitHubError(op(), operation)
		if err == nil || !retryableGitHubError(err) || attempt >= serverErrorRetries {
			return err
		}

		delay := time.Duration(1<<uint(attempt)) * time.Second
		logger.FromContext(ctx).
			WithError(err).
			WithField("attempt", attempt+1).
			Warnf("github %s failed with server error, retrying in %s", operation, delay)
		if serr := s.sleep(ctx, delay); serr != nil {
			return err
		}
	}
}

// CreateBranch creates branchName from the head of the base branch.
// Returns a branch-exists error when the ref is already present, which the
// workflow treats as terminal.
func (s *GitHubService) CreateBranch(ctx context.Context, event domain.WebhookEvent, branchName string) error {
	owner, repo, err := event.RepoOwnerName()
	if err != nil {
		return errs.Wrap(err, errs.CodeGitHubAPI, "invalid repository")
	}

	var baseRef *github.Reference
	err = s.withRetries(ctx, "get ref", func() error {
		var gerr error
		baseRef, _, gerr = s.client.Git.GetRef(ctx, owner, repo, "heads/"+s.baseBranch)
		return gerr
	})
	if err != nil {
		return err
	}

	newRef := &github.Reference{
		Ref:    github.String("refs/heads/" + branchName),
		Object: &github.GitObject{SHA: baseRef.Object.SHA},
	}
	return s.withRetries(ctx, "create ref", func() error {
		_, _, gerr := s.client.Git.CreateRef(ctx, owner, repo, newRef)
		return gerr
	})
}

// CommitFile creates or updates path on branchName with the given content.
func (s *GitHubService) CommitFile(ctx context.Context, event domain.WebhookEvent, branchName, path, message, content string) error {
	owner, repo, err := event.RepoOwnerName()
	if err != nil {
		return errs.Wrap(err, errs.CodeGitHubAPI, "invalid repository")
	}

	opts := &github.RepositoryContentFileOptions{
		Message: github.String(message),
		Content: []byte(content),
		Branch:  github.String(branchName),
	}

	// Look up an existing file so re-runs update instead of failing
	existing, _, resp, gerr := s.client.Repositories.GetContents(ctx, owner, repo, path,
		&github.RepositoryContentGetOptions{Ref: branchName})
	if gerr == nil && existing != nil {
		opts.SHA = existing.SHA
		return s.withRetries(ctx, "update file", func() error {
			_, _, uerr := s.client.Repositories.UpdateFile(ctx, owner, repo, path, opts)
			return uerr
		})
	}
	if resp != nil && resp.StatusCode != http.StatusNotFound && gerr != nil {
		return classifyGitHubError(gerr, "get contents")
	}

	return s.withRetries(ctx, "create file", func() error {
		_, _, cerr := s.client.Repositories.CreateFile(ctx, owner, repo, path, opts)
		return cerr
	})
}

// CreatePullRequest opens a PR from branchName into the base branch. The
// body references the issue so merging the PR closes it.
func (s *GitHubService) CreatePullRequest(ctx context.Context, event domain.WebhookEvent, branchName, title string) (PullRequest, error) {
	owner, repo, err := event.RepoOwnerName()
	if err != nil {
		return PullRequest{}, errs.Wrap(err, errs.CodeGitHubAPI, "invalid repository")
	}

	body := fmt.Sprintf("Automated test case generation for issue #%d.\n\nCloses #%d",
		event.IssueNumber, event.IssueNumber)

	var created *github.PullRequest
	err = s.withRetries(ctx, "create pull request", func() error {
		var gerr error
		created, _, gerr = s.client.PullRequests.Create(ctx, owner, repo, &github.NewPullRequest{
			Title: github.String(title),
			Head:  github.String(branchName),
			Base:  github.String(s.baseBranch),
			Body:  github.String(body),
		})
		return gerr
	})
	if err != nil {
		return PullRequest{}, err
	}

	return PullRequest{
		Number: created.GetNumber(),
		URL:    created.GetHTMLURL(),
	}, nil
}

// AddIssueComment posts the PR link back onto the originating issue.
func (s *GitHubService) AddIssueComment(ctx context.Context, event domain.WebhookEvent, prURL string) error {
	owner, repo, err := event.RepoOwnerName()
	if err != nil {
		return errs.Wrap(err, errs.CodeGitHubAPI, "invalid repository")
	}

	comment := fmt.Sprintf("Test cases have been generated and are ready for review!\n\nPull Request: %s", prURL)
	return s.withRetries(ctx, "create comment", func() error {
		_, _, gerr := s.client.Issues.CreateComment(ctx, owner, repo, event.IssueNumber, &github.IssueComment{
			Body: github.String(comment),
		})
		return gerr
	})
}
