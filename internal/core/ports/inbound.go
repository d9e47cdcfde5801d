package ports

import (
	"context"
	"io"

	"github.com/vatsight/pipeline/internal/core/domain"
)

type SubmitStatus string

const (
	SubmitQueued SubmitStatus = "queued"
	SubmitCached SubmitStatus = "cached"
)

// SubmitReceipt is the pipeline entry point's answer: either the job was
// queued or an identical fingerprint was already extracted and cached.
type SubmitReceipt struct {
	Status       SubmitStatus             `json:"status"`
	Document     *domain.Document         `json:"document"`
	JobID        string                   `json:"job_id,omitempty"`
	CachedResult *domain.ExtractionResult `json:"cached_result,omitempty"`
}

// ExtractionSubmitter is the inbound contract for the upload/API layer.
type ExtractionSubmitter interface {
	Submit(ctx context.Context, filename, mediaType string, category domain.DocumentCategory, priority int, body io.Reader) (*SubmitReceipt, error)
	ForceReextract(ctx context.Context, documentID string) (*SubmitReceipt, error)
}

// DocumentReader is the inbound read model for document state.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	GetResult(ctx context.Context, documentID string) (*domain.ExtractionResult, error)
}

type FeedbackRequest struct {
	DocumentID       string                  `json:"documentId"`
	Original         domain.ExtractionResult `json:"originalExtraction"`
	Corrected        domain.ExtractionResult `json:"correctedExtraction"`
	Kind             domain.FeedbackKind     `json:"feedback"`
	Notes            string                  `json:"notes,omitempty"`
	ConfidenceRating float64                 `json:"confidenceRating,omitempty"`
}

// FeedbackIngestor accepts user corrections and returns insights.
type FeedbackIngestor interface {
	Ingest(ctx context.Context, req FeedbackRequest) (*domain.InsightReport, error)
}

// MonitorReader exposes rolling extraction statistics read-only.
type MonitorReader interface {
	Snapshot() domain.ConfidenceSnapshot
}

// JobProcessor runs the full extraction pipeline for one queued job.
type JobProcessor interface {
	ProcessJob(ctx context.Context, job domain.QueueJob) error
}
