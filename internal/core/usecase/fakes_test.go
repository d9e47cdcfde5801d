package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vatsight/pipeline/internal/core/domain"
	"github.com/vatsight/pipeline/internal/core/ports"
)

type fakeStorage struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{blobs: make(map[string][]byte)}
}

func (s *fakeStorage) Save(_ context.Context, key string, data io.Reader) error {
	payload, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = payload
	return nil
}

func (s *fakeStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	payload, ok := s.blobs[key]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "open blob", errors.New(key))
	}
	return io.NopCloser(bytes.NewReader(payload)), nil
}

type fakeNormalizer struct {
	doc domain.NormalizedDocument
	err error
}

func (f *fakeNormalizer) Normalize(context.Context, []byte, string) (domain.NormalizedDocument, error) {
	return f.doc, f.err
}

type fakeTabular struct {
	outcome domain.StructuredOutcome
}

func (f *fakeTabular) Parse(string) domain.StructuredOutcome {
	return f.outcome
}

type fakeSelector struct{}

func (fakeSelector) Select() domain.PromptTemplate {
	return domain.PromptTemplate{ID: "structured-json", Name: "structured json"}
}

type fakeModel struct {
	calls    atomic.Int32
	response ports.ModelResponse
	err      error
}

func (f *fakeModel) Extract(context.Context, ports.ModelRequest) (ports.ModelResponse, error) {
	f.calls.Add(1)
	if f.err != nil {
		return ports.ModelResponse{}, f.err
	}
	return f.response, nil
}

type fakeResponseParser struct {
	outcome domain.VisionOutcome
}

func (f *fakeResponseParser) Parse(raw string) domain.VisionOutcome {
	out := f.outcome
	out.RawResponse = raw
	return out
}

type fakeQueue struct {
	mu        sync.Mutex
	published []domain.QueueJob
}

func (q *fakeQueue) PublishExtractionJob(_ context.Context, job domain.QueueJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.published = append(q.published, job)
	return nil
}

func (q *fakeQueue) SubscribeExtractionJobs(context.Context, func(context.Context, domain.QueueJob) error) error {
	return nil
}

func (q *fakeQueue) jobs() []domain.QueueJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]domain.QueueJob, len(q.published))
	copy(out, q.published)
	return out
}

type fakeUsage struct {
	tokens atomic.Int64
}

func (u *fakeUsage) AddModelTokens(n int) {
	u.tokens.Add(int64(n))
}

type fakeRecorder struct {
	mu        sync.Mutex
	successes []domain.Diagnostic
	failures  []string
}

func (r *fakeRecorder) RecordSuccess(_ float64, _ time.Duration, diagnostic domain.Diagnostic) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.successes = append(r.successes, diagnostic)
}

func (r *fakeRecorder) RecordFailure(category string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, category)
}

type fakeLearner struct {
	mu      sync.Mutex
	records []domain.FeedbackRecord
}

func (l *fakeLearner) Submit(record domain.FeedbackRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, record)
}

type fakeIdentity struct{ user string }

func (f fakeIdentity) CurrentUser(context.Context) (string, error) {
	return f.user, nil
}
