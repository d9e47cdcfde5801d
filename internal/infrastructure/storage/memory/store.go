package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/vatsight/pipeline/internal/core/domain"
)

// DocumentStore is an in-memory implementation of the document store
// contract, used in tests as a stand-in for the shared database.
type DocumentStore struct {
	mu      sync.RWMutex
	docs    map[string]domain.Document
	results map[string]domain.ExtractionResult
}

func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		docs:    make(map[string]domain.Document),
		results: make(map[string]domain.ExtractionResult),
	}
}

func (s *DocumentStore) Create(_ context.Context, doc *domain.Document) error {
	if doc == nil || doc.ID == "" {
		return domain.WrapError(domain.ErrInput, "create document", errors.New("missing document id"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = *doc
	return nil
}

func (s *DocumentStore) GetByID(_ context.Context, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get document", errors.New(id))
	}
	copied := doc
	return &copied, nil
}

func (s *DocumentStore) UpdateStatus(_ context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return domain.WrapError(domain.ErrNotFound, "update status", errors.New(id))
	}
	doc.Status = status
	doc.Error = errMessage
	s.docs[id] = doc
	return nil
}

func (s *DocumentStore) SaveResult(_ context.Context, documentID string, result domain.ExtractionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[documentID]; !ok {
		return domain.WrapError(domain.ErrNotFound, "save result", errors.New(documentID))
	}
	s.results[documentID] = result
	return nil
}

func (s *DocumentStore) GetResult(_ context.Context, documentID string) (*domain.ExtractionResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.results[documentID]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get result", errors.New(documentID))
	}
	copied := result
	return &copied, nil
}

// FeedbackStore keeps immutable feedback records in memory.
type FeedbackStore struct {
	mu      sync.RWMutex
	records map[string]domain.FeedbackRecord
}

func NewFeedbackStore() *FeedbackStore {
	return &FeedbackStore{records: make(map[string]domain.FeedbackRecord)}
}

func (s *FeedbackStore) Create(_ context.Context, record *domain.FeedbackRecord) error {
	if record == nil || record.ID == "" {
		return domain.WrapError(domain.ErrInput, "create feedback", errors.New("missing record id"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.ID]; exists {
		return domain.WrapError(domain.ErrInput, "create feedback", errors.New("duplicate record id"))
	}
	s.records[record.ID] = *record
	return nil
}

func (s *FeedbackStore) MarkImprovement(_ context.Context, recordIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range recordIDs {
		if record, ok := s.records[id]; ok {
			record.ImprovementMade = true
			s.records[id] = record
		}
	}
	return nil
}

func (s *FeedbackStore) Get(id string) (domain.FeedbackRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[id]
	return record, ok
}

// StaticIdentity attributes all actions to one configured user. The real
// identity provider is an external collaborator.
type StaticIdentity struct {
	UserID string
}

func (s StaticIdentity) CurrentUser(context.Context) (string, error) {
	if s.UserID == "" {
		return "anonymous", nil
	}
	return s.UserID, nil
}
