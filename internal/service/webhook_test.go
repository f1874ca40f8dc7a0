package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/vtanathip/test-case-generator/internal/config"
	"github.com/vtanathip/test-case-generator/internal/domain"
	"github.com/vtanathip/test-case-generator/internal/errs"
)

const testWebhookSecret = "test-webhook-secret"

// fakeGuard records reservations and can simulate duplicates or a broken
// backend.
type fakeGuard struct {
	duplicate bool
	err       error
	reserved  []string
	released  []string
}

func (g *fakeGuard) Reserve(_ context.Context, key string) (bool, error) {
	if g.err != nil {
		return false, g.err
	}
	if g.duplicate {
		return false, nil
	}
	g.reserved = append(g.reserved, key)
	return true, nil
}

func (g *fakeGuard) Release(_ context.Context, key string) error {
	g.released = append(g.released, key)
	return nil
}

func newTestWebhookService(guard *fakeGuard) *WebhookService {
	s := NewWebhookService(&config.GitHubConfig{WebhookSecret: testWebhookSecret}, guard)
	s.now = func() time.Time { return time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC) }
	return s
}

func sign(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func issuePayload(action string, labels ...string) []byte {
	quoted := make([]string, len(labels))
	for i, l := range labels {
		quoted[i] = fmt.Sprintf(`{"name":%q}`, l)
	}
	return []byte(fmt.Sprintf(`{
		"action": %q,
		"issue": {
			"number": 42,
			"title": "Add OAuth2 authentication",
			"body": "Implement OAuth2 with Google provider",
			"labels": [%s]
		},
		"repository": {"full_name": "octocat/hello-world"}
	}`, action, strings.Join(quoted, ",")))
}

func TestVerifySignature(t *testing.T) {
	s := newTestWebhookService(&fakeGuard{})
	payload := []byte(`{"action":"labeled"}`)

	tests := []struct {
		name      string
		signature string
		wantCode  string
	}{
		{"valid", sign(payload), ""},
		{"missing", "", errs.CodeInvalidSignature},
		{"no prefix", strings.TrimPrefix(sign(payload), "sha256="), errs.CodeInvalidSignature},
		{"wrong digest", "sha256=" + strings.Repeat("ab", 32), errs.CodeInvalidSignature},
		{"wrong secret", func() string {
			mac := hmac.New(sha256.New, []byte("other-secret"))
			mac.Write(payload)
			return "sha256=" + hex.EncodeToString(mac.Sum(nil))
		}(), errs.CodeInvalidSignature},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.VerifySignature(payload, tt.signature)
			if tt.wantCode == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			if errs.Code(err) != tt.wantCode {
				t.Errorf("code = %s, want %s", errs.Code(err), tt.wantCode)
			}
		})
	}
}

func TestIdempotencyKey(t *testing.T) {
	key := IdempotencyKey("octocat/hello-world", 42)
	if len(key) != 64 {
		t.Errorf("key should be a 64-char hex digest, got %d chars", len(key))
	}

	sum := sha256.Sum256([]byte("octocat/hello-world-42"))
	if key != hex.EncodeToString(sum[:]) {
		t.Errorf("key mismatch: %s", key)
	}

	if IdempotencyKey("octocat/hello-world", 43) == key {
		t.Error("different issues must produce different keys")
	}
	if IdempotencyKey("other/repo", 42) == key {
		t.Error("different repositories must produce different keys")
	}
}

func TestProcessWebhook_Success(t *testing.T) {
	guard := &fakeGuard{}
	s := newTestWebhookService(guard)
	payload := issuePayload("labeled", "bug", domain.TriggerLabel)

	event, err := s.ProcessWebhook(context.Background(), payload, sign(payload), "issues")
	if err != nil {
		t.Fatalf("ProcessWebhook failed: %v", err)
	}

	if event.EventType != domain.EventIssuesLabeled {
		t.Errorf("event_type = %s, want %s", event.EventType, domain.EventIssuesLabeled)
	}
	if event.IssueNumber != 42 {
		t.Errorf("issue_number = %d, want 42", event.IssueNumber)
	}
	if event.Repository != "octocat/hello-world" {
		t.Errorf("repository = %s", event.Repository)
	}
	if event.EventID == "" || event.CorrelationID == "" {
		t.Error("event_id and correlation_id must be generated")
	}
	if event.EventID == event.CorrelationID {
		t.Error("event_id and correlation_id must be distinct")
	}
	if !event.HasTriggerLabel() {
		t.Error("trigger label should be carried on the event")
	}
	if len(guard.reserved) != 1 {
		t.Fatalf("expected 1 reservation, got %d", len(guard.reserved))
	}
	if guard.reserved[0] != IdempotencyKey("octocat/hello-world", 42) {
		t.Errorf("reserved wrong key: %s", guard.reserved[0])
	}
	if len(guard.released) != 0 {
		t.Errorf("valid event must keep its reservation, released %v", guard.released)
	}
}

func TestProcessWebhook_OpenedAction(t *testing.T) {
	s := newTestWebhookService(&fakeGuard{})
	payload := issuePayload("opened", domain.TriggerLabel)

	event, err := s.ProcessWebhook(context.Background(), payload, sign(payload), "issues")
	if err != nil {
		t.Fatalf("ProcessWebhook failed: %v", err)
	}
	if event.EventType != domain.EventIssuesOpened {
		t.Errorf("event_type = %s, want %s", event.EventType, domain.EventIssuesOpened)
	}
}

func TestProcessWebhook_BodyTruncation(t *testing.T) {
	s := newTestWebhookService(&fakeGuard{})
	long := strings.Repeat("x", domain.MaxIssueBodyLength+500)
	payload := []byte(fmt.Sprintf(`{
		"action": "labeled",
		"issue": {"number": 42, "title": "Big issue", "body": %q, "labels": [{"name": %q}]},
		"repository": {"full_name": "octocat/hello-world"}
	}`, long, domain.TriggerLabel))

	event, err := s.ProcessWebhook(context.Background(), payload, sign(payload), "issues")
	if err != nil {
		t.Fatalf("ProcessWebhook failed: %v", err)
	}
	if len(event.IssueBody) != domain.MaxIssueBodyLength {
		t.Errorf("body length = %d, want %d", len(event.IssueBody), domain.MaxIssueBodyLength)
	}
}

func TestProcessWebhook_Rejections(t *testing.T) {
	tests := []struct {
		name      string
		payload   []byte
		signature func([]byte) string
		ghEvent   string
		wantCode  string
	}{
		{
			name:      "bad signature",
			payload:   issuePayload("labeled", domain.TriggerLabel),
			signature: func([]byte) string { return "sha256=" + strings.Repeat("00", 32) },
			ghEvent:   "issues",
			wantCode:  errs.CodeInvalidSignature,
		},
		{
			name:      "malformed JSON",
			payload:   []byte(`{"action": "labeled"`),
			signature: sign,
			ghEvent:   "issues",
			wantCode:  errs.CodeInvalidPayload,
		},
		{
			name:      "wrong event header",
			payload:   issuePayload("labeled", domain.TriggerLabel),
			signature: sign,
			ghEvent:   "pull_request",
			wantCode:  errs.CodeInvalidPayload,
		},
		{
			name:      "unsupported action",
			payload:   issuePayload("closed", domain.TriggerLabel),
			signature: sign,
			ghEvent:   "issues",
			wantCode:  errs.CodeInvalidPayload,
		},
		{
			name:      "missing repository",
			payload:   []byte(`{"action":"labeled","issue":{"number":42,"title":"t","labels":[{"name":"generate-tests"}]}}`),
			signature: sign,
			ghEvent:   "issues",
			wantCode:  errs.CodeInvalidPayload,
		},
		{
			name:      "missing issue number",
			payload:   []byte(`{"action":"labeled","issue":{"title":"t","labels":[{"name":"generate-tests"}]},"repository":{"full_name":"o/r"}}`),
			signature: sign,
			ghEvent:   "issues",
			wantCode:  errs.CodeInvalidPayload,
		},
		{
			name:      "missing trigger label",
			payload:   issuePayload("labeled", "bug", "enhancement"),
			signature: sign,
			ghEvent:   "issues",
			wantCode:  errs.CodeMissingLabel,
		},
		{
			name:      "no labels at all",
			payload:   issuePayload("opened"),
			signature: sign,
			ghEvent:   "issues",
			wantCode:  errs.CodeMissingLabel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			guard := &fakeGuard{}
			s := newTestWebhookService(guard)

			_, err := s.ProcessWebhook(context.Background(), tt.payload, tt.signature(tt.payload), tt.ghEvent)
			if err == nil {
				t.Fatal("expected error")
			}
			if errs.Code(err) != tt.wantCode {
				t.Errorf("code = %s, want %s", errs.Code(err), tt.wantCode)
			}
			// Nothing may be reserved when validation rejects the delivery
			if len(guard.reserved) != 0 {
				t.Errorf("rejected delivery must not hold a reservation, got %v", guard.reserved)
			}
		})
	}
}

func TestProcessWebhook_Duplicate(t *testing.T) {
	guard := &fakeGuard{duplicate: true}
	s := newTestWebhookService(guard)
	payload := issuePayload("labeled", domain.TriggerLabel)

	_, err := s.ProcessWebhook(context.Background(), payload, sign(payload), "issues")
	if err == nil {
		t.Fatal("expected error")
	}
	if errs.Code(err) != errs.CodeDuplicateWebhook {
		t.Errorf("code = %s, want %s", errs.Code(err), errs.CodeDuplicateWebhook)
	}
}

func TestProcessWebhook_GuardError(t *testing.T) {
	guard := &fakeGuard{err: errs.New(errs.CodeConnection, "redis unreachable")}
	s := newTestWebhookService(guard)
	payload := issuePayload("labeled", domain.TriggerLabel)

	_, err := s.ProcessWebhook(context.Background(), payload, sign(payload), "issues")
	if err == nil {
		t.Fatal("expected error")
	}
	if errs.Code(err) != errs.CodeConnection {
		t.Errorf("code = %s, want %s", errs.Code(err), errs.CodeConnection)
	}
}
