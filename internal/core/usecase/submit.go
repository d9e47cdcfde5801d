package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vatsight/pipeline/internal/core/domain"
	"github.com/vatsight/pipeline/internal/core/ports"
)

const maxUploadBytes = 32 << 20

// SubmitUseCase is the pipeline entry point. Identical documents are
// deduplicated by fingerprint: a cache hit answers immediately with no job,
// anything else is queued for the workers.
type SubmitUseCase struct {
	docs    ports.DocumentStore
	storage ports.ObjectStorage
	cache   ports.ResultCache
	queue   ports.JobQueue
	logger  *slog.Logger
}

func NewSubmitUseCase(
	docs ports.DocumentStore,
	storage ports.ObjectStorage,
	cache ports.ResultCache,
	queue ports.JobQueue,
	logger *slog.Logger,
) *SubmitUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubmitUseCase{
		docs:    docs,
		storage: storage,
		cache:   cache,
		queue:   queue,
		logger:  logger,
	}
}

func (uc *SubmitUseCase) Submit(
	ctx context.Context,
	filename, mediaType string,
	category domain.DocumentCategory,
	priority int,
	body io.Reader,
) (*ports.SubmitReceipt, error) {
	payload, err := io.ReadAll(io.LimitReader(body, maxUploadBytes+1))
	if err != nil {
		return nil, domain.WrapError(domain.ErrInput, "read upload", err)
	}
	if len(payload) == 0 {
		return nil, domain.WrapError(domain.ErrInput, "read upload", errors.New("empty upload"))
	}
	if len(payload) > maxUploadBytes {
		return nil, domain.WrapError(domain.ErrInput, "read upload", errors.New("upload exceeds size limit"))
	}
	if !validCategory(category) {
		return nil, domain.WrapError(domain.ErrInput, "submit", fmt.Errorf("unknown category: %s", category))
	}

	fingerprint := domain.Fingerprint(payload, mediaType, category)
	id := uuid.NewString()
	now := time.Now().UTC()

	doc := &domain.Document{
		ID:          id,
		Fingerprint: fingerprint,
		Filename:    filename,
		MediaType:   mediaType,
		Category:    category,
		StoragePath: fmt.Sprintf("%s_%s", id, sanitizeFilename(filename)),
		Status:      domain.StatusUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	// Read-before-compute: an unexpired identical fingerprint never triggers
	// a second extraction.
	if cached, ok := uc.cache.Get(fingerprint); ok {
		doc.Status = domain.StatusSucceeded
		if err := uc.docs.Create(ctx, doc); err != nil {
			return nil, fmt.Errorf("create document metadata: %w", err)
		}
		if err := uc.docs.SaveResult(ctx, doc.ID, cached); err != nil {
			return nil, fmt.Errorf("save cached result: %w", err)
		}
		uc.logger.Info("submit served from cache", "document_id", doc.ID, "fingerprint", fingerprint)
		return &ports.SubmitReceipt{
			Status:       ports.SubmitCached,
			Document:     doc,
			CachedResult: &cached,
		}, nil
	}

	if err := uc.storage.Save(ctx, doc.StoragePath, bytes.NewReader(payload)); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}
	if err := uc.docs.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document metadata: %w", err)
	}

	receipt, err := uc.enqueue(ctx, doc, priority, false)
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// ForceReextract bypasses the cache for one document and queues it again.
func (uc *SubmitUseCase) ForceReextract(ctx context.Context, documentID string) (*ports.SubmitReceipt, error) {
	doc, err := uc.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document: %w", err)
	}
	if !domain.CanTransition(doc.Status, domain.StatusQueued) {
		return nil, domain.WrapError(domain.ErrValidation, "force re-extract",
			fmt.Errorf("document in status %s cannot be re-queued", doc.Status))
	}

	uc.cache.Invalidate(doc.Fingerprint)
	return uc.enqueue(ctx, doc, 0, true)
}

func (uc *SubmitUseCase) enqueue(ctx context.Context, doc *domain.Document, priority int, force bool) (*ports.SubmitReceipt, error) {
	job := domain.QueueJob{
		ID:          uuid.NewString(),
		DocumentID:  doc.ID,
		Fingerprint: doc.Fingerprint,
		StoragePath: doc.StoragePath,
		MediaType:   doc.MediaType,
		Category:    doc.Category,
		Priority:    priority,
		Force:       force,
		EnqueuedAt:  time.Now().UTC(),
		Status:      domain.JobQueued,
	}

	if err := uc.queue.PublishExtractionJob(ctx, job); err != nil {
		return nil, fmt.Errorf("publish extraction job: %w", err)
	}
	if err := uc.docs.UpdateStatus(ctx, doc.ID, domain.StatusQueued, ""); err != nil {
		return nil, fmt.Errorf("set status=queued: %w", err)
	}
	doc.Status = domain.StatusQueued

	uc.logger.Info("extraction job queued",
		"job_id", job.ID,
		"document_id", doc.ID,
		"priority", priority,
		"force", force,
	)
	return &ports.SubmitReceipt{
		Status:   ports.SubmitQueued,
		Document: doc,
		JobID:    job.ID,
	}, nil
}

func validCategory(category domain.DocumentCategory) bool {
	switch category {
	case domain.CategorySales, domain.CategoryPurchases, domain.CategoryOther:
		return true
	default:
		return false
	}
}

func sanitizeFilename(filename string) string {
	base := filepath.Base(strings.TrimSpace(filename))
	if base == "." || base == string(filepath.Separator) || base == "" {
		return "upload"
	}
	replacer := strings.NewReplacer(" ", "_", "..", "_")
	return replacer.Replace(base)
}
