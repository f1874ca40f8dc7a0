package domain

import (
	"strings"
	"testing"
	"time"
)

func newTestDocument() TestCaseDocument {
	generated := time.Date(2026, 5, 1, 10, 2, 0, 0, time.UTC)
	return TestCaseDocument{
		DocumentID:  "31e7a7c0-4f4a-4e94-9f5a-1d2b3c4d5e6f",
		IssueNumber: 42,
		Title:       "Test Cases: Add OAuth2 authentication",
		Content:     "# Test Cases: Add OAuth2 authentication\n\n## Overview\nCovers login flows.",
		Metadata: DocumentMetadata{
			Issue:          42,
			GeneratedAt:    generated,
			AIModel:        "llama3.2",
			ContextSources: []int{38},
		},
		BranchName:     "test-cases/issue-42",
		GeneratedAt:    generated,
		AIModel:        "llama3.2",
		ContextSources: []int{38},
		CorrelationID:  "corr-1",
	}
}

func TestBranchAndFileNaming(t *testing.T) {
	if got := BranchNameForIssue(42); got != "test-cases/issue-42" {
		t.Errorf("unexpected branch name: %q", got)
	}
	if got := FilePathForIssue(42); got != "test-cases/issue-42.md" {
		t.Errorf("unexpected file path: %q", got)
	}
}

func TestTestCaseDocument_Validate(t *testing.T) {
	prNumber := 7
	prURL := "https://github.com/octocat/hello-world/pull/7"
	badURL := "http://example.com/pull/7"

	tests := []struct {
		name    string
		mutate  func(d TestCaseDocument) TestCaseDocument
		wantErr string
	}{
		{
			name:    "valid without PR",
			mutate:  func(d TestCaseDocument) TestCaseDocument { return d },
			wantErr: "",
		},
		{
			name: "valid with PR",
			mutate: func(d TestCaseDocument) TestCaseDocument {
				return d.WithPullRequest(prNumber, prURL)
			},
			wantErr: "",
		},
		{
			name: "empty content",
			mutate: func(d TestCaseDocument) TestCaseDocument {
				d.Content = ""
				return d
			},
			wantErr: "content cannot be empty",
		},
		{
			name: "content without heading",
			mutate: func(d TestCaseDocument) TestCaseDocument {
				d.Content = "just plain text with no structure"
				return d
			},
			wantErr: "Markdown heading",
		},
		{
			name: "bad branch name",
			mutate: func(d TestCaseDocument) TestCaseDocument {
				d.BranchName = "feature/issue-42"
				return d
			},
			wantErr: "branch_name",
		},
		{
			name: "pr number without url",
			mutate: func(d TestCaseDocument) TestCaseDocument {
				d.PRNumber = &prNumber
				return d
			},
			wantErr: "both nil or both set",
		},
		{
			name: "pr url without number",
			mutate: func(d TestCaseDocument) TestCaseDocument {
				d.PRURL = &prURL
				return d
			},
			wantErr: "both nil or both set",
		},
		{
			name: "non-github pr url",
			mutate: func(d TestCaseDocument) TestCaseDocument {
				d.PRNumber = &prNumber
				d.PRURL = &badURL
				return d
			},
			wantErr: "pr_url",
		},
		{
			name: "incomplete metadata",
			mutate: func(d TestCaseDocument) TestCaseDocument {
				d.Metadata.AIModel = ""
				return d
			},
			wantErr: "metadata",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := tt.mutate(newTestDocument())
			err := doc.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestTestCaseDocument_WithPullRequest(t *testing.T) {
	doc := newTestDocument()
	updated := doc.WithPullRequest(7, "https://github.com/octocat/hello-world/pull/7")

	if doc.HasPullRequest() {
		t.Error("original document must not carry PR details")
	}
	if !updated.HasPullRequest() {
		t.Fatal("updated document should carry PR details")
	}
	if *updated.PRNumber != 7 {
		t.Errorf("unexpected pr_number: %d", *updated.PRNumber)
	}
}
