package embedding

import (
	"context"
	"fmt"
)

// Batched splits EmbedDocuments calls into groups of at most Size texts.
type Batched struct {
	Embedder
	Size int
}

// NewBatched splits document embedding into batches of size.
func NewBatched(inner Embedder, size int) *Batched {
	if size <= 0 {
		size = 32
	}
	return &Batched{Embedder: inner, Size: size}
}

func (b *Batched) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += b.Size {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+b.Size, len(texts))
		vecs, err := b.Embedder.EmbedDocuments(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", start, end, err)
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("batch %d-%d: got %d vectors", start, end, len(vecs))
		}
		out = append(out, vecs...)
	}
	return out, nil
}
