package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vtanathip/test-case-generator/internal/config"
	"github.com/vtanathip/test-case-generator/internal/domain"
	"github.com/vtanathip/test-case-generator/internal/errs"
	"github.com/vtanathip/test-case-generator/internal/repository"
)

// WebhookService validates incoming GitHub webhook deliveries and turns
// them into domain events.
type WebhookService struct {
	secret []byte
	guard  repository.IdempotencyGuard
	now    func() time.Time
}

// NewWebhookService creates a webhook intake service.
func NewWebhookService(cfg *config.GitHubConfig, guard repository.IdempotencyGuard) *WebhookService {
	return &WebhookService{
		secret: []byte(cfg.WebhookSecret),
		guard:  guard,
		now:    time.Now,
	}
}

// githubIssuePayload is the subset of the GitHub issues webhook payload the
// service consumes.
type githubIssuePayload struct {
	Action string `json:"action"`
	Issue  *struct {
		Number int    `json:"number"`
		Title  string `json:"title"`
		Body   string `json:"body"`
		Labels []struct {
			Name string `json:"name"`
		} `json:"labels"`
	} `json:"issue"`
	Repository *struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

// VerifySignature checks the X-Hub-Signature-256 header against the raw
// payload using constant-time comparison.
func (s *WebhookService) VerifySignature(payload []byte, signature string) error {
	if signature == "" {
		return errs.New(errs.CodeInvalidSignature, "missing signature header")
	}
	if !strings.HasPrefix(signature, "sha256=") {
		return errs.New(errs.CodeInvalidSignature, "signature must have sha256= prefix")
	}

	mac := hmac.New(sha256.New, s.secret)
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	received := strings.TrimPrefix(signature, "sha256=")

	if !hmac.Equal([]byte(expected), []byte(received)) {
		return errs.New(errs.CodeInvalidSignature, "signature mismatch")
	}
	return nil
}

// IdempotencyKey derives the deduplication key for an issue: the SHA-256
// hex digest of "{repository}-{issue_number}".
func IdempotencyKey(repo string, issueNumber int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s-%d", repo, issueNumber)))
	return hex.EncodeToString(sum[:])
}

// ReleaseReservation frees the idempotency reservation held for an event.
// Called when the job cannot be registered after a successful intake, so a
// GitHub redelivery is processed instead of rejected as a duplicate.
func (s *WebhookService) ReleaseReservation(ctx context.Context, event domain.WebhookEvent) error {
	return s.guard.Release(ctx, IdempotencyKey(event.Repository, event.IssueNumber))
}

// ProcessWebhook validates a delivery end to end and returns the domain
// event. ghEvent is the X-GitHub-Event header; the full event type is
// derived from it and the payload action. The sequence is: signature, JSON
// payload, event type, required fields, trigger label, then the duplicate
// check.
func (s *WebhookService) ProcessWebhook(ctx context.Context, payload []byte, signature, ghEvent string) (domain.WebhookEvent, error) {
	if err := s.VerifySignature(payload, signature); err != nil {
		return domain.WebhookEvent{}, err
	}

	var parsed githubIssuePayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return domain.WebhookEvent{}, errs.Wrap(err, errs.CodeInvalidPayload, "invalid JSON payload")
	}

	if ghEvent != "issues" {
		return domain.WebhookEvent{}, errs.Newf(errs.CodeInvalidPayload, "unsupported event: %q", ghEvent)
	}

	var typed domain.EventType
	switch t := domain.EventType(ghEvent + "." + parsed.Action); t {
	case domain.EventIssuesOpened, domain.EventIssuesLabeled:
		typed = t
	default:
		return domain.WebhookEvent{}, errs.Newf(errs.CodeInvalidPayload, "unsupported event type: %q", t)
	}

	if parsed.Issue == nil || parsed.Repository == nil || parsed.Repository.FullName == "" {
		return domain.WebhookEvent{}, errs.New(errs.CodeInvalidPayload, "payload missing issue or repository")
	}
	if parsed.Issue.Number <= 0 || parsed.Issue.Title == "" {
		return domain.WebhookEvent{}, errs.New(errs.CodeInvalidPayload, "payload missing issue number or title")
	}

	labels := make([]string, len(parsed.Issue.Labels))
	hasTrigger := false
	for i, l := range parsed.Issue.Labels {
		labels[i] = l.Name
		if l.Name == domain.TriggerLabel {
			hasTrigger = true
		}
	}
	if !hasTrigger {
		return domain.WebhookEvent{}, errs.Newf(errs.CodeMissingLabel, "missing required label %q", domain.TriggerLabel)
	}

	key := IdempotencyKey(parsed.Repository.FullName, parsed.Issue.Number)
	reserved, err := s.guard.Reserve(ctx, key)
	if err != nil {
		return domain.WebhookEvent{}, err
	}
	if !reserved {
		return domain.WebhookEvent{}, errs.Newf(errs.CodeDuplicateWebhook, "duplicate webhook for key %s", key)
	}

	event := domain.WebhookEvent{
		EventID:       uuid.New().String(),
		EventType:     typed,
		IssueNumber:   parsed.Issue.Number,
		IssueTitle:    parsed.Issue.Title,
		IssueBody:     domain.TruncateIssueBody(parsed.Issue.Body),
		Labels:        labels,
		Repository:    parsed.Repository.FullName,
		Signature:     signature,
		ReceivedAt:    s.now(),
		CorrelationID: uuid.New().String(),
	}

	if err := event.Validate(); err != nil {
		// Free the reservation so a corrected delivery can retry
		_ = s.guard.Release(ctx, key)
		return domain.WebhookEvent{}, errs.Wrap(err, errs.CodeInvalidPayload, "invalid webhook event")
	}

	return event, nil
}
