package embedding

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
)

// LangChain embeds through any langchaingo embedding client (ollama, openai).
type LangChain struct {
	name string
	dim  int
	impl *embeddings.EmbedderImpl
}

// NewLangChain wraps a langchaingo embedder client.
func NewLangChain(name string, client embeddings.EmbedderClient, dim, batchSize int) (*LangChain, error) {
	if batchSize <= 0 {
		batchSize = 32
	}
	impl, err := embeddings.NewEmbedder(client,
		embeddings.WithBatchSize(batchSize),
		embeddings.WithStripNewLines(true),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return &LangChain{name: name, dim: dim, impl: impl}, nil
}

func (l *LangChain) Name() string   { return l.name }
func (l *LangChain) Dimension() int { return l.dim }

func (l *LangChain) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := l.impl.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%s embed documents: %w", l.name, err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%s: got %d vectors for %d texts", l.name, len(vecs), len(texts))
	}
	if err := checkDimension(l.name, l.dim, vecs); err != nil {
		return nil, err
	}
	return vecs, nil
}

func (l *LangChain) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vec, err := l.impl.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%s embed query: %w", l.name, err)
	}
	if err := checkDimension(l.name, l.dim, [][]float32{vec}); err != nil {
		return nil, err
	}
	return vec, nil
}
