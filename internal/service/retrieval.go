package service

import (
	"context"
	"time"

	"github.com/vtanathip/test-case-generator/internal/config"
	"github.com/vtanathip/test-case-generator/internal/errs"
	"github.com/vtanathip/test-case-generator/internal/logger"
	"github.com/vtanathip/test-case-generator/internal/repository"
)

// ContextDocument is one retrieved reference document used to seed the
// generation prompt.
type ContextDocument struct {
	Content     string  `json:"content"`
	IssueNumber int     `json:"issue_number"`
	Score       float32 `json:"score"`
}

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	GetModel() string
}

// VectorStore is the subset of the Qdrant repository used by retrieval and
// indexing.
type VectorStore interface {
	Search(ctx context.Context, vector []float32, topK int, scoreThreshold float32, repository string) ([]repository.SearchResult, error)
	Upsert(ctx context.Context, pointID string, vector []float32, payload *repository.DocumentPayload) error
}

// RetrievalService finds previously generated test case documents that are
// semantically similar to an incoming issue.
type RetrievalService struct {
	embedder       Embedder
	store          VectorStore
	limit          int
	scoreThreshold float32
}

// NewRetrievalService creates a retrieval service.
func NewRetrievalService(embedder Embedder, store VectorStore, cfg *config.QdrantConfig) *RetrievalService {
	limit := cfg.Limit
	if limit <= 0 {
		limit = 5
	}
	return &RetrievalService{
		embedder:       embedder,
		store:          store,
		limit:          limit,
		scoreThreshold: cfg.ScoreThreshold,
	}
}

// Retrieve embeds the issue body and searches the vector store for similar
// documents within the same repository. An empty result is not an error.
func (s *RetrievalService) Retrieve(ctx context.Context, repo, issueBody string) ([]ContextDocument, error) {
	start := time.Now()

	vector, err := s.embedder.Embed(ctx, issueBody)
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeVectorQuery, "failed to embed issue body")
	}

	results, err := s.store.Search(ctx, vector, s.limit, s.scoreThreshold, repo)
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeVectorQuery, "vector search failed")
	}

	docs := make([]ContextDocument, 0, len(results))
	for _, r := range results {
		if r.Payload == nil {
			continue
		}
		docs = append(docs, ContextDocument{
			Content:     r.Payload.Content,
			IssueNumber: r.Payload.IssueNumber,
			Score:       r.Score,
		})
	}

	logger.FromContext(ctx).
		WithDuration(time.Since(start)).
		WithCount(len(docs)).
		Debug("context retrieval completed")

	return docs, nil
}

// Index stores a generated document back into the vector store so future
// issues can retrieve it as context.
func (s *RetrievalService) Index(ctx context.Context, pointID, content, repo string, issueNumber int, generatedAt time.Time) error {
	vector, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return errs.Wrap(err, errs.CodeVectorQuery, "failed to embed document")
	}

	payload := &repository.DocumentPayload{
		Content:     content,
		Source:      "generated",
		Repository:  repo,
		IssueNumber: issueNumber,
		GeneratedAt: generatedAt.UTC().Format(time.RFC3339),
	}
	return s.store.Upsert(ctx, pointID, vector, payload)
}
