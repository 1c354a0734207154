package vectorstore

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"
)

const breadcrumbSep = " > "

// Chromem is an embedded store backed by chromem-go. With a non-empty path
// the collection is persisted to disk.
type Chromem struct {
	mu         sync.RWMutex
	db         *chromem.DB
	name       string
	collection *chromem.Collection
}

// NewChromem opens a chromem-go collection, persisted at path when set.
func NewChromem(path, collection string) (*Chromem, error) {
	var (
		db  *chromem.DB
		err error
	)
	if path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("open chromem db: %w", err)
		}
	}
	c := &Chromem{db: db, name: collection}
	if err := c.open(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Chromem) open() error {
	col, err := c.db.GetOrCreateCollection(c.name, nil, nil)
	if err != nil {
		return fmt.Errorf("get or create collection: %w", err)
	}
	c.collection = col
	return nil
}

func (c *Chromem) Name() string { return "chromem" }

// EnsureCollection is a no-op: chromem collections take their dimension from
// the first document.
func (c *Chromem) EnsureCollection(context.Context, int) error { return nil }

func (c *Chromem) Upsert(ctx context.Context, points []Point) error {
	docs := make([]chromem.Document, 0, len(points))
	for _, p := range points {
		docs = append(docs, chromem.Document{
			ID:        p.ID,
			Content:   p.Payload.Text,
			Metadata:  flattenMetadata(p.Payload.Metadata),
			Embedding: p.Vector,
		})
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("add documents: %w", err)
	}
	return nil
}

func (c *Chromem) Search(ctx context.Context, vector []float32, opts SearchOptions) ([]Hit, error) {
	if opts.Limit <= 0 {
		opts.Limit = 10
	}
	where := map[string]string{}
	if opts.UserID != "" {
		where["user_id"] = opts.UserID
	}
	if opts.DocumentID != "" {
		where["document_id"] = opts.DocumentID
	}
	if len(where) == 0 {
		where = nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	n := min(opts.Limit, c.collection.Count())
	if n == 0 {
		return nil, nil
	}
	results, err := c.collection.QueryEmbedding(ctx, vector, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		score := float64(r.Similarity)
		if score < opts.ScoreThreshold {
			continue
		}
		h := Hit{
			ID:      r.ID,
			Score:   score,
			Payload: Payload{Text: r.Content, Metadata: unflattenMetadata(r.Metadata)},
		}
		if opts.WithVectors {
			h.Vector = r.Embedding
		}
		hits = append(hits, h)
	}
	return hits, nil
}

func (c *Chromem) DeleteDocument(ctx context.Context, documentID string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.collection.Delete(ctx, map[string]string{"document_id": documentID}, nil); err != nil {
		return fmt.Errorf("delete document %s: %w", documentID, err)
	}
	return nil
}

func (c *Chromem) Count(context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.collection.Count(), nil
}

func (c *Chromem) Purge(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.db.DeleteCollection(c.name); err != nil {
		return fmt.Errorf("drop collection: %w", err)
	}
	return c.open()
}

func (c *Chromem) Close() error { return nil }

func flattenMetadata(m Metadata) map[string]string {
	return map[string]string{
		"document_id":  m.DocumentID,
		"user_id":      m.UserID,
		"source":       m.Source,
		"page":         strconv.Itoa(m.Page),
		"page_end":     strconv.Itoa(m.PageEnd),
		"chunk_index":  strconv.Itoa(m.ChunkIndex),
		"content_type": m.ContentType,
		"tokens":       strconv.Itoa(m.Tokens),
		"breadcrumb":   strings.Join(m.Breadcrumb, breadcrumbSep),
	}
}

func unflattenMetadata(m map[string]string) Metadata {
	atoi := func(k string) int {
		n, _ := strconv.Atoi(m[k])
		return n
	}
	md := Metadata{
		DocumentID:  m["document_id"],
		UserID:      m["user_id"],
		Source:      m["source"],
		Page:        atoi("page"),
		PageEnd:     atoi("page_end"),
		ChunkIndex:  atoi("chunk_index"),
		ContentType: m["content_type"],
		Tokens:      atoi("tokens"),
	}
	if b := m["breadcrumb"]; b != "" {
		md.Breadcrumb = strings.Split(b, breadcrumbSep)
	}
	return md
}
