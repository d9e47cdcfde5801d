package ports

import (
	"context"
	"io"
	"time"

	"github.com/vatsight/pipeline/internal/core/domain"
)

// DocumentStore persists document state. The storage engine itself is an
// external collaborator; the pipeline only depends on this contract.
type DocumentStore interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	SaveResult(ctx context.Context, documentID string, result domain.ExtractionResult) error
	GetResult(ctx context.Context, documentID string) (*domain.ExtractionResult, error)
}

// FeedbackStore persists immutable feedback records.
type FeedbackStore interface {
	Create(ctx context.Context, record *domain.FeedbackRecord) error
	MarkImprovement(ctx context.Context, recordIDs []string) error
}

// ObjectStorage stores source document bytes.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// Identity supplies the acting user for feedback attribution.
type Identity interface {
	CurrentUser(ctx context.Context) (string, error)
}

// ModelRequest is one call to the external document-understanding model.
type ModelRequest struct {
	Template domain.PromptTemplate
	Pages    []domain.NormalizedPage
	Category domain.DocumentCategory
}

// ModelResponse is the raw model output plus resource usage for the monitor.
// The vision client never interprets Text; that is the response parser's job.
type ModelResponse struct {
	Text       string
	TemplateID string
	TokensUsed int
	Duration   time.Duration
}

// VisionModel is the contract to the external generative model.
type VisionModel interface {
	Extract(ctx context.Context, req ModelRequest) (ModelResponse, error)
}

// JobQueue moves extraction jobs from the submission path to the workers.
type JobQueue interface {
	PublishExtractionJob(ctx context.Context, job domain.QueueJob) error
	SubscribeExtractionJobs(ctx context.Context, handler func(context.Context, domain.QueueJob) error) error
}

type CacheStats struct {
	Entries   int
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Expired   uint64
}

func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// ResultCache deduplicates extraction work by document fingerprint.
// GetOrCompute guarantees at most one in-flight compute per fingerprint;
// concurrent callers for the same fingerprint share the first caller's result.
type ResultCache interface {
	Get(fingerprint string) (domain.ExtractionResult, bool)
	GetOrCompute(ctx context.Context, fingerprint string, compute func(context.Context) (domain.ExtractionResult, error)) (domain.ExtractionResult, bool, error)
	Invalidate(fingerprint string)
	Stats() CacheStats
}

// Normalizer turns raw bytes plus a declared media type into the canonical
// extraction-ready form.
type Normalizer interface {
	Normalize(ctx context.Context, payload []byte, mediaType string) (domain.NormalizedDocument, error)
}

// TabularParser extracts candidate tax amounts from delimited text.
type TabularParser interface {
	Parse(text string) domain.StructuredOutcome
}

// ResponseParser interprets raw model output. It lives behind a port so the
// free-text matching stays isolated from the validator and the cache.
type ResponseParser interface {
	Parse(raw string) domain.VisionOutcome
}

// TemplateSelector picks the prompt variant for the next model call. The
// learning loop owns the weights behind it.
type TemplateSelector interface {
	Select() domain.PromptTemplate
}

// FeedbackLearner consumes feedback records asynchronously; Submit must never
// block the extraction or feedback request path.
type FeedbackLearner interface {
	Submit(record domain.FeedbackRecord)
}

// ModelUsageRecorder absorbs resource usage reported by the external model.
// A nil sink is allowed; usage reporting never gates the pipeline.
type ModelUsageRecorder interface {
	AddModelTokens(n int)
}

// OutcomeRecorder is the monitor's write side.
type OutcomeRecorder interface {
	RecordSuccess(confidence float64, latency time.Duration, diagnostic domain.Diagnostic)
	RecordFailure(category string, latency time.Duration)
}
