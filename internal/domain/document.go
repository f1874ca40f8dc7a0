package domain

import (
	"fmt"
	"regexp"
	"time"
)

var (
	branchNamePattern  = regexp.MustCompile(`^test-cases/issue-\d+$`)
	markdownHeading    = regexp.MustCompile(`(?m)^#{1,6}\s+.+`)
	githubPRURLPattern = regexp.MustCompile(`^https://github\.com/[\w-]+/[\w.-]+/pull/\d+$`)
)

// BranchNameForIssue returns the deterministic branch name for an issue.
func BranchNameForIssue(issueNumber int) string {
	return fmt.Sprintf("test-cases/issue-%d", issueNumber)
}

// FilePathForIssue returns the repository path of the generated document.
func FilePathForIssue(issueNumber int) string {
	return fmt.Sprintf("test-cases/issue-%d.md", issueNumber)
}

// DocumentMetadata carries the required generation metadata attached to a
// test case document.
type DocumentMetadata struct {
	Issue          int       `json:"issue"`
	GeneratedAt    time.Time `json:"generated_at"`
	AIModel        string    `json:"ai_model"`
	ContextSources []int     `json:"context_sources"`
}

// TestCaseDocument represents a generated test case document ready for PR
// creation. Documents are immutable; attaching PR details produces a new
// value via WithPullRequest.
type TestCaseDocument struct {
	DocumentID     string           `json:"document_id"`
	IssueNumber    int              `json:"issue_number"`
	Title          string           `json:"title"`
	Content        string           `json:"content"`
	Metadata       DocumentMetadata `json:"metadata"`
	BranchName     string           `json:"branch_name"`
	PRNumber       *int             `json:"pr_number,omitempty"`
	PRURL          *string          `json:"pr_url,omitempty"`
	GeneratedAt    time.Time        `json:"generated_at"`
	AIModel        string           `json:"ai_model"`
	ContextSources []int            `json:"context_sources"`
	CorrelationID  string           `json:"correlation_id"`
}

// WithPullRequest returns a copy of the document carrying the PR number and
// URL. Both fields are always set together, preserving the both-nil or
// both-set invariant.
func (d TestCaseDocument) WithPullRequest(number int, url string) TestCaseDocument {
	n := number
	u := url
	d.PRNumber = &n
	d.PRURL = &u
	return d
}

// HasPullRequest reports whether the document carries PR details.
func (d TestCaseDocument) HasPullRequest() bool {
	return d.PRNumber != nil && d.PRURL != nil
}

// Validate checks the document invariants.
func (d TestCaseDocument) Validate() error {
	if d.DocumentID == "" {
		return fmt.Errorf("document_id is required")
	}
	if d.IssueNumber <= 0 {
		return fmt.Errorf("issue_number must be positive, got %d", d.IssueNumber)
	}
	if d.Title == "" {
		return fmt.Errorf("title is required")
	}
	if d.Content == "" {
		return fmt.Errorf("content cannot be empty")
	}
	if !markdownHeading.MatchString(d.Content) {
		return fmt.Errorf("content must contain at least one Markdown heading")
	}
	if d.Metadata.Issue == 0 || d.Metadata.GeneratedAt.IsZero() || d.Metadata.AIModel == "" || d.Metadata.ContextSources == nil {
		return fmt.Errorf("metadata must carry issue, generated_at, ai_model, and context_sources")
	}
	if !branchNamePattern.MatchString(d.BranchName) {
		return fmt.Errorf("branch_name must match test-cases/issue-{N}, got %q", d.BranchName)
	}
	if (d.PRNumber == nil) != (d.PRURL == nil) {
		return fmt.Errorf("pr_number and pr_url must be both nil or both set")
	}
	if d.PRURL != nil {
		if !githubPRURLPattern.MatchString(*d.PRURL) {
			return fmt.Errorf("pr_url must be a GitHub pull request URL, got %q", *d.PRURL)
		}
		if d.PRNumber != nil && *d.PRNumber <= 0 {
			return fmt.Errorf("pr_number must be positive, got %d", *d.PRNumber)
		}
	}
	if d.CorrelationID == "" {
		return fmt.Errorf("correlation_id is required")
	}
	return nil
}
