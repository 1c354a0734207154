// Package vectorstore persists chunk vectors and answers nearest-neighbour
// queries against them.
package vectorstore

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/dgallion1/ragassist/internal/config"
	"github.com/dgallion1/ragassist/internal/doctree"
)

// Store is a vector collection holding chunk points.
type Store interface {
	Name() string
	EnsureCollection(ctx context.Context, dim int) error
	Upsert(ctx context.Context, points []Point) error
	Search(ctx context.Context, vector []float32, opts SearchOptions) ([]Hit, error)
	DeleteDocument(ctx context.Context, documentID string) error
	Count(ctx context.Context) (int, error)
	Purge(ctx context.Context) error
	Close() error
}

// Point is one stored chunk.
type Point struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// Payload is stored alongside each vector.
type Payload struct {
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
}

type Metadata struct {
	DocumentID  string   `json:"document_id"`
	UserID      string   `json:"user_id"`
	Source      string   `json:"source"`
	Page        int      `json:"page"`
	PageEnd     int      `json:"page_end,omitempty"`
	ChunkIndex  int      `json:"chunk_index"`
	ContentType string   `json:"content_type"`
	Tokens      int      `json:"tokens"`
	Breadcrumb  []string `json:"breadcrumb,omitempty"`
}

// Hit is a search result.
type Hit struct {
	ID      string
	Score   float64
	Vector  []float32 // set only when SearchOptions.WithVectors
	Payload Payload
}

type SearchOptions struct {
	Limit          int
	ScoreThreshold float64
	WithVectors    bool
	DocumentID     string // restrict to one document when set
	UserID         string // restrict to one owner when set
}

// PointID derives a stable point id from a document id and chunk index so
// re-ingesting a document overwrites its points.
func PointID(documentID string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, fmt.Appendf(nil, "%s:%d", documentID, index)).String()
}

// PointFromChunk builds the point for an embedded chunk.
func PointFromChunk(c doctree.Chunk, userID string) Point {
	id := c.ID
	if id == "" {
		id = PointID(c.DocumentID, c.Index)
	}
	kind := c.ContentType
	if kind == "" {
		kind = doctree.ContentText
	}
	return Point{
		ID:     id,
		Vector: c.Vector,
		Payload: Payload{
			Text: c.Text,
			Metadata: Metadata{
				DocumentID:  c.DocumentID,
				UserID:      userID,
				Source:      c.Source,
				Page:        c.PageStart,
				PageEnd:     c.PageEnd,
				ChunkIndex:  c.Index,
				ContentType: string(kind),
				Tokens:      c.Tokens,
				Breadcrumb:  c.Breadcrumb,
			},
		},
	}
}

// New opens the backend selected in cfg.VectorStore.Backend.
func New(ctx context.Context, cfg config.Config) (Store, error) {
	switch strings.ToLower(cfg.VectorStore.Backend) {
	case "qdrant", "":
		return NewQdrant(QdrantConfig{
			URL:        cfg.Qdrant.BaseURL(),
			APIKey:     cfg.Qdrant.APIKey,
			Collection: cfg.Qdrant.Collection,
			Timeout:    cfg.Qdrant.Timeout,
			BatchSize:  cfg.Qdrant.BatchSize,
		}), nil
	case "chromem":
		return NewChromem(cfg.VectorStore.ChromemPath, cfg.Qdrant.Collection)
	case "pgvector":
		return NewPGVector(ctx, cfg.VectorStore.PostgresDSN, cfg.VectorStore.PGTable)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown vector store backend %q", cfg.VectorStore.Backend)
	}
}

// Cosine returns the cosine similarity of a and b, 0 when either is zero or
// their lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func matches(m Metadata, opts SearchOptions) bool {
	if opts.UserID != "" && m.UserID != opts.UserID {
		return false
	}
	if opts.DocumentID != "" && m.DocumentID != opts.DocumentID {
		return false
	}
	return true
}
