package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/vatsight/pipeline/internal/core/domain"
)

// DocumentRepository persists document state and extraction results in
// Postgres. Both binaries point at the same database, so a document created
// by the API is visible to the worker that processes its job.
type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *DocumentRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082501)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	fingerprint TEXT NOT NULL,
	filename TEXT NOT NULL,
	media_type TEXT NOT NULL,
	category TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	status TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_fingerprint ON documents(fingerprint);
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);

CREATE TABLE IF NOT EXISTS extraction_results (
	document_id TEXT PRIMARY KEY,
	fingerprint TEXT NOT NULL,
	sales_amounts JSONB NOT NULL DEFAULT '[]'::jsonb,
	purchase_amounts JSONB NOT NULL DEFAULT '[]'::jsonb,
	confidence DOUBLE PRECISION NOT NULL,
	engine TEXT NOT NULL,
	compliant BOOLEAN NOT NULL,
	template_id TEXT NOT NULL DEFAULT '',
	raw_response TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	if doc == nil || doc.ID == "" {
		return domain.WrapError(domain.ErrInput, "create document", errors.New("missing document id"))
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO documents (
	id, fingerprint, filename, media_type, category, storage_path, status, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`,
		doc.ID, doc.Fingerprint, doc.Filename, doc.MediaType, string(doc.Category), doc.StoragePath,
		string(doc.Status), doc.Error, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, fingerprint, filename, media_type, category, storage_path, status, error_message, created_at, updated_at
FROM documents
WHERE id = $1
`, id)

	var doc domain.Document
	var category, status string

	err := row.Scan(
		&doc.ID, &doc.Fingerprint, &doc.Filename, &doc.MediaType, &category, &doc.StoragePath,
		&status, &doc.Error, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get document", errors.New(id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}

	doc.Category = domain.DocumentCategory(category)
	doc.Status = domain.DocumentStatus(status)
	return &doc, nil
}

func (r *DocumentRepository) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document status rows: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrNotFound, "update status", errors.New(id))
	}
	return nil
}

func (r *DocumentRepository) SaveResult(ctx context.Context, documentID string, result domain.ExtractionResult) error {
	sales, err := json.Marshal(result.SalesAmounts)
	if err != nil {
		return fmt.Errorf("marshal sales amounts: %w", err)
	}
	purchases, err := json.Marshal(result.PurchaseAmounts)
	if err != nil {
		return fmt.Errorf("marshal purchase amounts: %w", err)
	}

	// Upsert: a forced re-extraction replaces the previous result in place.
	res, err := r.db.ExecContext(ctx, `
INSERT INTO extraction_results (
	document_id, fingerprint, sales_amounts, purchase_amounts, confidence, engine, compliant, template_id, raw_response, created_at
)
SELECT $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
WHERE EXISTS (SELECT 1 FROM documents WHERE id = $1)
ON CONFLICT (document_id) DO UPDATE
SET fingerprint = EXCLUDED.fingerprint,
	sales_amounts = EXCLUDED.sales_amounts,
	purchase_amounts = EXCLUDED.purchase_amounts,
	confidence = EXCLUDED.confidence,
	engine = EXCLUDED.engine,
	compliant = EXCLUDED.compliant,
	template_id = EXCLUDED.template_id,
	raw_response = EXCLUDED.raw_response,
	created_at = EXCLUDED.created_at
`,
		documentID, result.Fingerprint, sales, purchases, result.Confidence,
		string(result.Engine), result.Compliant, result.TemplateID, result.RawResponse, result.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save extraction result: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save extraction result rows: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrNotFound, "save result", errors.New(documentID))
	}
	return nil
}

func (r *DocumentRepository) GetResult(ctx context.Context, documentID string) (*domain.ExtractionResult, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT fingerprint, sales_amounts, purchase_amounts, confidence, engine, compliant, template_id, raw_response, created_at
FROM extraction_results
WHERE document_id = $1
`, documentID)

	var result domain.ExtractionResult
	var salesRaw, purchasesRaw []byte
	var engine string

	err := row.Scan(
		&result.Fingerprint, &salesRaw, &purchasesRaw, &result.Confidence,
		&engine, &result.Compliant, &result.TemplateID, &result.RawResponse, &result.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get result", errors.New(documentID))
		}
		return nil, fmt.Errorf("scan extraction result: %w", err)
	}

	if err := json.Unmarshal(salesRaw, &result.SalesAmounts); err != nil {
		return nil, fmt.Errorf("unmarshal sales amounts: %w", err)
	}
	if err := json.Unmarshal(purchasesRaw, &result.PurchaseAmounts); err != nil {
		return nil, fmt.Errorf("unmarshal purchase amounts: %w", err)
	}
	result.Engine = domain.Engine(engine)
	return &result, nil
}
