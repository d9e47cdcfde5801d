package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vatsight/pipeline/internal/core/domain"
)

// FeedbackRepository persists immutable feedback records. Records are written
// by the API process and read back during learning evaluation in the worker.
type FeedbackRepository struct {
	db *sql.DB
}

func NewFeedbackRepository(db *sql.DB) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

func (r *FeedbackRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082502)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS feedback_records (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	original JSONB NOT NULL,
	corrected JSONB NOT NULL,
	kind TEXT NOT NULL,
	notes TEXT NOT NULL DEFAULT '',
	confidence_rating DOUBLE PRECISION NOT NULL DEFAULT 0,
	improvement_made BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_feedback_document_id ON feedback_records(document_id);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *FeedbackRepository) Create(ctx context.Context, record *domain.FeedbackRecord) error {
	if record == nil || record.ID == "" {
		return domain.WrapError(domain.ErrInput, "create feedback", errors.New("missing record id"))
	}

	original, err := json.Marshal(record.Original)
	if err != nil {
		return fmt.Errorf("marshal original result: %w", err)
	}
	corrected, err := json.Marshal(record.Corrected)
	if err != nil {
		return fmt.Errorf("marshal corrected result: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO feedback_records (
	id, document_id, user_id, original, corrected, kind, notes, confidence_rating, improvement_made, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`,
		record.ID, record.DocumentID, record.UserID, original, corrected,
		string(record.Kind), record.Notes, record.ConfidenceRating, record.ImprovementMade, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert feedback record: %w", err)
	}
	return nil
}

func (r *FeedbackRepository) MarkImprovement(ctx context.Context, recordIDs []string) error {
	if len(recordIDs) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin mark tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, id := range recordIDs {
		if _, err := tx.ExecContext(ctx, `
UPDATE feedback_records SET improvement_made = TRUE WHERE id = $1
`, id); err != nil {
			return fmt.Errorf("mark improvement %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit mark tx: %w", err)
	}
	return nil
}
