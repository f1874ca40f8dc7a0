package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// TriggerLabel is the issue label that triggers test case generation.
	TriggerLabel = "generate-tests"

	// MaxIssueTitleLength bounds the accepted issue title.
	MaxIssueTitleLength = 256

	// MaxIssueBodyLength is the truncation limit applied to issue bodies
	// before they enter the pipeline.
	MaxIssueBodyLength = 5000
)

// EventType identifies the GitHub event that produced a webhook.
type EventType string

const (
	EventIssuesOpened  EventType = "issues.opened"
	EventIssuesLabeled EventType = "issues.labeled"
)

// WebhookEvent represents a validated GitHub issue webhook. Events are
// immutable once constructed.
type WebhookEvent struct {
	EventID       string    `json:"event_id"`
	EventType     EventType `json:"event_type"`
	IssueNumber   int       `json:"issue_number"`
	IssueTitle    string    `json:"issue_title"`
	IssueBody     string    `json:"issue_body"`
	Labels        []string  `json:"labels"`
	Repository    string    `json:"repository"`
	Signature     string    `json:"signature"`
	ReceivedAt    time.Time `json:"received_at"`
	CorrelationID string    `json:"correlation_id"`
}

// TruncateIssueBody bounds an issue body to MaxIssueBodyLength characters.
// The limit counts runes, not bytes, so multibyte text is never split
// mid-character.
func TruncateIssueBody(body string) string {
	if utf8.RuneCountInString(body) <= MaxIssueBodyLength {
		return body
	}
	return string([]rune(body)[:MaxIssueBodyLength])
}

// HasTriggerLabel reports whether the event carries the trigger label.
func (e WebhookEvent) HasTriggerLabel() bool {
	for _, l := range e.Labels {
		if l == TriggerLabel {
			return true
		}
	}
	return false
}

// RepoOwnerName splits the repository into its owner and name parts.
func (e WebhookEvent) RepoOwnerName() (owner, name string, err error) {
	parts := strings.Split(e.Repository, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repository must be in owner/name form, got %q", e.Repository)
	}
	return parts[0], parts[1], nil
}

// Validate checks the event invariants.
func (e WebhookEvent) Validate() error {
	if e.EventID == "" {
		return fmt.Errorf("event_id is required")
	}
	switch e.EventType {
	case EventIssuesOpened, EventIssuesLabeled:
	default:
		return fmt.Errorf("unsupported event type: %q", e.EventType)
	}
	if e.IssueNumber <= 0 {
		return fmt.Errorf("issue_number must be positive, got %d", e.IssueNumber)
	}
	if e.IssueTitle == "" {
		return fmt.Errorf("issue_title is required")
	}
	if utf8.RuneCountInString(e.IssueTitle) > MaxIssueTitleLength {
		return fmt.Errorf("issue_title exceeds %d characters", MaxIssueTitleLength)
	}
	if utf8.RuneCountInString(e.IssueBody) > MaxIssueBodyLength {
		return fmt.Errorf("issue_body exceeds %d characters", MaxIssueBodyLength)
	}
	if len(e.Labels) == 0 {
		return fmt.Errorf("labels are required")
	}
	if !e.HasTriggerLabel() {
		return fmt.Errorf("labels must contain %q", TriggerLabel)
	}
	if _, _, err := e.RepoOwnerName(); err != nil {
		return err
	}
	if !strings.HasPrefix(e.Signature, "sha256=") {
		return fmt.Errorf("signature must have sha256= prefix")
	}
	if e.CorrelationID == "" {
		return fmt.Errorf("correlation_id is required")
	}
	return nil
}
