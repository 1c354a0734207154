package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dgallion1/ragassist/internal/apperr"
	"github.com/dgallion1/ragassist/internal/config"
	"github.com/dgallion1/ragassist/internal/embedding"
	"github.com/dgallion1/ragassist/internal/textnorm"
	"github.com/dgallion1/ragassist/internal/vectorstore"
)

const (
	maxHighlights   = 3
	highlightRadius = 60
)

// Query is a search request.
type Query struct {
	Text         string
	UserID       string
	DocumentID   string
	Limit        int
	Offset       int
	MinRelevance float64
}

// SearchResponse is one page of search results. TotalResults counts the
// hits fetched to fill this page, at most Offset+Limit, not every chunk
// that would match.
type SearchResponse struct {
	Query          string   `json:"query"`
	Results        []Result `json:"results"`
	TotalResults   int      `json:"total_results"`
	ProcessingTime float64  `json:"processing_time"`
	Offset         int      `json:"offset"`
	Limit          int      `json:"limit"`
}

// Retriever embeds questions and queries the vector store.
type Retriever struct {
	embedder  embedding.Embedder
	store     vectorstore.Store
	assembler *Assembler
	cfg       config.ContextConfig
	log       *slog.Logger
}

// NewRetriever creates a retriever over store.
func NewRetriever(emb embedding.Embedder, store vectorstore.Store, cfg config.ContextConfig, log *slog.Logger) *Retriever {
	if log == nil {
		log = slog.Default()
	}
	return &Retriever{
		embedder:  emb,
		store:     store,
		assembler: NewAssembler(cfg, log),
		cfg:       cfg,
		log:       log.With("component", "retriever"),
	}
}

// Search returns one page of results for q, each with query-term highlights.
func (r *Retriever) Search(ctx context.Context, q Query) (*SearchResponse, error) {
	start := time.Now()
	if strings.TrimSpace(q.Text) == "" {
		return nil, apperr.New(apperr.Validation, "query must not be empty")
	}
	if q.Limit <= 0 {
		q.Limit = 10
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	vec, err := r.embedder.EmbedQuery(ctx, q.Text)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ExternalService, "embed query")
	}
	hits, err := r.store.Search(ctx, vec, vectorstore.SearchOptions{
		Limit:          q.Limit + q.Offset,
		ScoreThreshold: q.MinRelevance,
		UserID:         q.UserID,
		DocumentID:     q.DocumentID,
	})
	if err != nil {
		return nil, fmt.Errorf("search vector store: %w", err)
	}

	resp := &SearchResponse{
		Query:        q.Text,
		Results:      []Result{},
		TotalResults: len(hits),
		Offset:       q.Offset,
		Limit:        q.Limit,
	}
	terms := textnorm.Terms(q.Text)
	for i := q.Offset; i < len(hits) && i < q.Offset+q.Limit; i++ {
		res := FromHit(hits[i])
		res.Highlights = Highlights(res.Text, terms)
		resp.Results = append(resp.Results, res)
	}
	resp.ProcessingTime = time.Since(start).Seconds()

	r.log.Info("search completed",
		"user_id", q.UserID,
		"results", len(resp.Results),
		"duration_ms", time.Since(start).Milliseconds())
	return resp, nil
}

// Context retrieves MaxChunks*2 candidates with vectors for the user's
// documents and assembles them.
func (r *Retriever) Context(ctx context.Context, question, userID string) (Context, error) {
	vec, err := r.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return Context{}, apperr.Wrap(err, apperr.ExternalService, "embed question")
	}
	hits, err := r.store.Search(ctx, vec, vectorstore.SearchOptions{
		Limit:       max(r.cfg.MaxChunks, 1) * 2,
		WithVectors: true,
		UserID:      userID,
	})
	if err != nil {
		return Context{}, fmt.Errorf("search vector store: %w", err)
	}

	results := make([]Result, len(hits))
	for i, h := range hits {
		results[i] = FromHit(h)
	}
	c := r.assembler.Build(vec, results)
	r.log.Debug("context assembled", "user_id", userID, "candidates", len(hits), "selected", len(c.Results))
	return c, nil
}

// Highlights returns up to three snippets of text around the first
// occurrence of each term.
func Highlights(text string, terms []string) []string {
	lower := strings.ToLower(text)
	if len(lower) != len(text) {
		// offsets into lower must index text
		lower = text
	}
	var out []string
	for _, term := range terms {
		idx := strings.Index(lower, term)
		if idx < 0 {
			continue
		}
		from := idx - highlightRadius
		if from < 0 {
			from = 0
		}
		to := min(idx+len(term)+highlightRadius, len(text))
		for from > 0 && !utf8.RuneStart(text[from]) {
			from--
		}
		for to < len(text) && !utf8.RuneStart(text[to]) {
			to++
		}
		snippet := strings.Join(strings.Fields(text[from:to]), " ")
		if from > 0 {
			snippet = "..." + snippet
		}
		if to < len(text) {
			snippet += "..."
		}
		out = append(out, snippet)
		if len(out) == maxHighlights {
			break
		}
	}
	return out
}
