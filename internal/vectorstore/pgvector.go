package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

var identRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PGVector stores points in a Postgres table with a pgvector column.
type PGVector struct {
	pool  *pgxpool.Pool
	table string
}

// NewPGVector connects to Postgres; EnsureCollection creates the table.
func NewPGVector(ctx context.Context, dsn, table string) (*PGVector, error) {
	if table == "" {
		table = "document_chunks"
	}
	if !identRe.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PGVector{pool: pool, table: table}, nil
}

func (s *PGVector) Name() string { return "pgvector" }

func (s *PGVector) EnsureCollection(ctx context.Context, dim int) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			metadata JSONB NOT NULL
		)`, s.table, dim),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_document_idx ON %s (document_id)`, s.table, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_user_idx ON %s (user_id)`, s.table, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s
			USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`, s.table, s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *PGVector) Upsert(ctx context.Context, points []Point) error {
	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, document_id, user_id, content, embedding, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata`, s.table)

	batch := &pgx.Batch{}
	for _, p := range points {
		meta, err := json.Marshal(p.Payload.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		batch.Queue(stmt,
			p.ID,
			p.Payload.Metadata.DocumentID,
			p.Payload.Metadata.UserID,
			sanitizeUTF8(p.Payload.Text),
			pgvector.NewVector(p.Vector),
			meta,
		)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert points: %w", err)
	}
	return nil
}

func (s *PGVector) Search(ctx context.Context, vector []float32, opts SearchOptions) ([]Hit, error) {
	if opts.Limit <= 0 {
		opts.Limit = 10
	}
	query := fmt.Sprintf(`
		SELECT id, content, metadata, embedding, 1 - (embedding <=> $1) AS score
		FROM %s
		WHERE ($2 = '' OR user_id = $2) AND ($3 = '' OR document_id = $3)
		ORDER BY embedding <=> $1
		LIMIT $4`, s.table)

	rows, err := s.pool.Query(ctx, query, pgvector.NewVector(vector), opts.UserID, opts.DocumentID, opts.Limit)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var (
			h    Hit
			meta []byte
			emb  pgvector.Vector
		)
		if err := rows.Scan(&h.ID, &h.Payload.Text, &meta, &emb, &h.Score); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if err := json.Unmarshal(meta, &h.Payload.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
		if h.Score < opts.ScoreThreshold {
			continue
		}
		if opts.WithVectors {
			h.Vector = emb.Slice()
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (s *PGVector) DeleteDocument(ctx context.Context, documentID string) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE document_id = $1`, s.table), documentID)
	if err != nil {
		return fmt.Errorf("delete document %s: %w", documentID, err)
	}
	return nil
}

func (s *PGVector) Count(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, s.table)).Scan(&n)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "42P01" { // undefined_table
			return 0, nil
		}
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

func (s *PGVector) Purge(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(`TRUNCATE %s`, s.table)); err != nil {
		return fmt.Errorf("truncate: %w", err)
	}
	return nil
}

func (s *PGVector) Close() error {
	s.pool.Close()
	return nil
}

// sanitizeUTF8 drops invalid byte sequences, which Postgres rejects in TEXT.
func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "")
}
