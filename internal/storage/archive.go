package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/vtanathip/test-case-generator/internal/config"
	"github.com/vtanathip/test-case-generator/internal/domain"
)

// DocumentArchive keeps a durable copy of every finished test case
// document in object storage, alongside its metadata. The workflow treats
// archiving as best effort.
type DocumentArchive struct {
	store ObjectStorage
}

// NewDocumentArchive builds an archive from configuration. Returns nil
// when archiving is disabled.
func NewDocumentArchive(cfg *config.ArchiveConfig) (*DocumentArchive, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	store, err := NewS3Storage(&S3Config{
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		Bucket:    cfg.Bucket,
		Region:    cfg.Region,
		UsePath:   cfg.UsePath,
	})
	if err != nil {
		return nil, err
	}
	return &DocumentArchive{store: store}, nil
}

// NewDocumentArchiveWith wraps an existing object store. Used by tests.
func NewDocumentArchiveWith(store ObjectStorage) *DocumentArchive {
	return &DocumentArchive{store: store}
}

// archiveRecord is the JSON shape stored per document.
type archiveRecord struct {
	DocumentID     string `json:"document_id"`
	IssueNumber    int    `json:"issue_number"`
	Title          string `json:"title"`
	Content        string `json:"content"`
	BranchName     string `json:"branch_name"`
	PRNumber       *int   `json:"pr_number,omitempty"`
	PRURL          *string `json:"pr_url,omitempty"`
	GeneratedAt    string `json:"generated_at"`
	AIModel        string `json:"ai_model"`
	ContextSources []int  `json:"context_sources"`
	CorrelationID  string `json:"correlation_id"`
}

// ArchiveKey is the object key for a document.
func ArchiveKey(doc domain.TestCaseDocument) string {
	return fmt.Sprintf("documents/issue-%d/%s.json", doc.IssueNumber, doc.DocumentID)
}

// Archive uploads the document and its metadata as one JSON object.
func (a *DocumentArchive) Archive(ctx context.Context, doc domain.TestCaseDocument) error {
	rec := archiveRecord{
		DocumentID:     doc.DocumentID,
		IssueNumber:    doc.IssueNumber,
		Title:          doc.Title,
		Content:        doc.Content,
		BranchName:     doc.BranchName,
		PRNumber:       doc.PRNumber,
		PRURL:          doc.PRURL,
		GeneratedAt:    doc.GeneratedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		AIModel:        doc.AIModel,
		ContextSources: doc.ContextSources,
		CorrelationID:  doc.CorrelationID,
	}

	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode archive record: %w", err)
	}

	key := ArchiveKey(doc)
	return a.store.Upload(ctx, key, bytes.NewReader(body), int64(len(body)), "application/json")
}
