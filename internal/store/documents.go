package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dgallion1/ragassist/internal/apperr"
)

// Document status values. They mirror the ingestion job states that end a job.
const (
	DocProcessing = "processing"
	DocCompleted  = "completed"
	DocFailed     = "failed"
)

// Document is the record of one uploaded file.
type Document struct {
	ID          string    `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"user_id"`
	Name        string    `db:"name" json:"name"`
	Format      string    `db:"format" json:"format"`
	ContentHash string    `db:"content_hash" json:"content_hash"`
	SizeBytes   int64     `db:"size_bytes" json:"size_bytes"`
	Pages       int       `db:"pages" json:"pages"`
	ChunkCount  int       `db:"chunk_count" json:"chunk_count"`
	Status      string    `db:"status" json:"status"`
	Error       string    `db:"error" json:"error,omitempty"`
	IngestedAt  time.Time `db:"ingested_at" json:"ingested_at"`
}

const documentColumns = `id, user_id, name, format, content_hash, size_bytes, pages, chunk_count, status, error, ingested_at`

func (s *Store) CreateDocument(ctx context.Context, d *Document) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.IngestedAt.IsZero() {
		d.IngestedAt = now()
	}
	if d.Status == "" {
		d.Status = DocProcessing
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES (:id, :user_id, :name, :format, :content_hash, :size_bytes, :pages, :chunk_count, :status, :error, :ingested_at)`, d)
	if isUniqueViolation(err) {
		return apperr.Wrap(ErrDuplicateContent, apperr.Conflict, "document %q has the same content as an existing document", d.Name)
	}
	if err != nil {
		return dbError("create document", err)
	}
	return nil
}

// GetDocument returns the document only when it belongs to userID.
func (s *Store) GetDocument(ctx context.Context, userID, id string) (*Document, error) {
	var d Document
	err := s.db.GetContext(ctx, &d, `SELECT `+documentColumns+` FROM documents WHERE id = ? AND user_id = ?`, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("document")
	}
	if err != nil {
		return nil, dbError("get document", err)
	}
	return &d, nil
}

// ListDocuments returns the user's documents, newest first.
func (s *Store) ListDocuments(ctx context.Context, userID string) ([]Document, error) {
	docs := []Document{}
	err := s.db.SelectContext(ctx, &docs,
		`SELECT `+documentColumns+` FROM documents WHERE user_id = ? ORDER BY ingested_at DESC, name`, userID)
	if err != nil {
		return nil, dbError("list documents", err)
	}
	return docs, nil
}

// DocumentByHash finds a processing or completed document with the same
// content for the same user. Failed uploads do not count.
func (s *Store) DocumentByHash(ctx context.Context, userID, hash string) (*Document, error) {
	var d Document
	err := s.db.GetContext(ctx, &d, `
		SELECT `+documentColumns+` FROM documents
		WHERE user_id = ? AND content_hash = ? AND status != ?
		ORDER BY ingested_at LIMIT 1`, userID, hash, DocFailed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("document")
	}
	if err != nil {
		return nil, dbError("find document by hash", err)
	}
	return &d, nil
}

// FinishDocument sets the final status and counts.
func (s *Store) FinishDocument(ctx context.Context, id, status string, pages, chunks int, errMsg string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents SET status = ?, pages = ?, chunk_count = ?, error = ? WHERE id = ?`,
		status, pages, chunks, errMsg, id)
	if err != nil {
		return dbError("update document", err)
	}
	return expectRow(res, "document")
}

func (s *Store) DeleteDocument(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return dbError("delete document", err)
	}
	return expectRow(res, "document")
}

// DeleteAllDocuments removes every document row and returns how many went.
func (s *Store) DeleteAllDocuments(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents`)
	if err != nil {
		return 0, dbError("purge documents", err)
	}
	return res.RowsAffected()
}
