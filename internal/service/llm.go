package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/vtanathip/test-case-generator/internal/config"
	"github.com/vtanathip/test-case-generator/internal/domain"
	"github.com/vtanathip/test-case-generator/internal/errs"
	"github.com/vtanathip/test-case-generator/internal/logger"
	"github.com/vtanathip/test-case-generator/internal/prompts"
)

// LLMService generates test case documents through an Ollama-compatible
// completion API.
type LLMService struct {
	client      *resty.Client
	baseURL     string
	model       string
	temperature float64
	now         func() time.Time
}

// NewLLMService creates a new LLM service.
// Parameters:
//   - cfg: LLM configuration including base URL, model, and temperature.
//
// Returns:
//   - *LLMService: initialized Ollama client wrapper.
func NewLLMService(cfg *config.LLMConfig) *LLMService {
	client := resty.New()
	client.SetHeader("Content-Type", "application/json")
	// HTTP-level timeout; the workflow applies its own per-attempt
	// generation timeout through ctx
	if cfg.RequestTimeout > 0 {
		client.SetTimeout(cfg.RequestTimeout)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	return &LLMService{
		client:      client,
		baseURL:     baseURL,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		now:         time.Now,
	}
}

// GetModel returns the model name being used.
func (s *LLMService) GetModel() string {
	return s.model
}

// Ollama generate API request/response structures
type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// Ping verifies the model server is reachable.
func (s *LLMService) Ping(ctx context.Context) error {
	resp, err := s.client.R().SetContext(ctx).Get(s.baseURL + "/api/tags")
	if err != nil {
		return errs.Wrap(err, errs.CodeConnection, "model server unreachable")
	}
	if resp.StatusCode() != 200 {
		return errs.Newf(errs.CodeConnection, "model server returned status %d", resp.StatusCode())
	}
	return nil
}

// complete calls the generation endpoint and returns the raw completion.
func (s *LLMService) complete(ctx context.Context, prompt string) (string, error) {
	req := ollamaRequest{
		Model:   s.model,
		Prompt:  prompt,
		Stream:  false,
		Options: ollamaOptions{Temperature: s.temperature},
	}

	var resp ollamaResponse
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post(s.baseURL + "/api/generate")

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			return "", errs.Wrap(err, errs.CodeGenerationTimeout, "generation timed out")
		}
		return "", errs.Wrap(err, errs.CodeGenerationFailed, "failed to call model API")
	}

	if httpResp.StatusCode() != 200 {
		if resp.Error != "" {
			return "", errs.Newf(errs.CodeGenerationFailed, "model API error: %s", resp.Error)
		}
		return "", errs.Newf(errs.CodeGenerationFailed, "model API error: status %d", httpResp.StatusCode())
	}

	if resp.Response == "" {
		return "", errs.New(errs.CodeGenerationFailed, "model returned empty completion")
	}

	return resp.Response, nil
}

// GenerateDocument renders the generation prompt for the issue, runs one
// model completion, and assembles the test case document. The caller owns
// the timeout via ctx.
func (s *LLMService) GenerateDocument(ctx context.Context, event domain.WebhookEvent, contextDocs []ContextDocument) (domain.TestCaseDocument, error) {
	promptContext := make([]prompts.ContextInput, len(contextDocs))
	for i, doc := range contextDocs {
		promptContext[i] = prompts.ContextInput{
			IssueNumber: doc.IssueNumber,
			Content:     doc.Content,
		}
	}

	prompt, err := prompts.RenderTestCasePrompt(prompts.IssueInput{
		Number: event.IssueNumber,
		Title:  event.IssueTitle,
		Body:   event.IssueBody,
	}, promptContext)
	if err != nil {
		return domain.TestCaseDocument{}, errs.Wrap(err, errs.CodeGenerationFailed, "failed to render prompt")
	}

	start := s.now()
	content, err := s.complete(ctx, prompt)
	if err != nil {
		return domain.TestCaseDocument{}, err
	}

	logger.FromContext(ctx).
		WithDuration(time.Since(start)).
		WithField("content_length", len(content)).
		Info("generation completed")

	generatedAt := s.now()
	sources := prompts.ContextSources(promptContext)

	doc := domain.TestCaseDocument{
		DocumentID:  uuid.New().String(),
		IssueNumber: event.IssueNumber,
		Title:       fmt.Sprintf("Test Cases: %s", event.IssueTitle),
		Content:     content,
		Metadata: domain.DocumentMetadata{
			Issue:          event.IssueNumber,
			GeneratedAt:    generatedAt,
			AIModel:        s.model,
			ContextSources: sources,
		},
		BranchName:     domain.BranchNameForIssue(event.IssueNumber),
		GeneratedAt:    generatedAt,
		AIModel:        s.model,
		ContextSources: sources,
		CorrelationID:  event.CorrelationID,
	}

	if err := doc.Validate(); err != nil {
		return domain.TestCaseDocument{}, errs.Wrap(err, errs.CodeGenerationFailed, "generated document failed validation")
	}

	return doc, nil
}
