package domain

import "time"

type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobSucceeded  JobStatus = "succeeded"
	JobFailed     JobStatus = "failed"
)

// QueueJob is the unit of work flowing from submission to the worker pool.
// Terminal status is set exactly once.
type QueueJob struct {
	ID          string           `json:"id"`
	DocumentID  string           `json:"document_id"`
	Fingerprint string           `json:"fingerprint"`
	StoragePath string           `json:"storage_path"`
	MediaType   string           `json:"media_type"`
	Category    DocumentCategory `json:"category"`
	Priority    int              `json:"priority"`
	Force       bool             `json:"force,omitempty"`
	EnqueuedAt  time.Time        `json:"enqueued_at"`
	Status      JobStatus        `json:"status"`
}

// NormalizedKind tells the pipeline which extraction engine a normalized
// document is suited for.
type NormalizedKind string

const (
	NormalizedTabular NormalizedKind = "tabular"
	NormalizedVisual  NormalizedKind = "visual"
)

// NormalizedPage is one extraction-ready unit, one per page for multi-page
// documents. Visual pages carry bytes; textual pages carry extracted text.
type NormalizedPage struct {
	MediaType string
	Data      []byte
	Text      string
}

type NormalizedDocument struct {
	Kind  NormalizedKind
	Text  string
	Pages []NormalizedPage
}

// PromptTemplate is one request strategy for the external model. Selection
// weight is adjusted by the learning loop.
type PromptTemplate struct {
	ID   string
	Name string
	Text string
}
