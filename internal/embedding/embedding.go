// Package embedding maps text to fixed-size vectors.
package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/dgallion1/ragassist/internal/config"
)

// Embedder turns text into vectors of a fixed dimension.
type Embedder interface {
	Name() string
	Dimension() int
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// New builds the embedder named by cfg.Provider, wrapped so no single call
// carries more than batchSize texts.
func New(cfg config.EmbeddingConfig, batchSize int) (Embedder, error) {
	var (
		emb Embedder
		err error
	)
	switch cfg.Provider {
	case "tfidf":
		emb = NewTFIDF(cfg.Dimension)
	case "ollama":
		llm, lerr := ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.Model),
		)
		if lerr != nil {
			return nil, fmt.Errorf("init ollama embedder: %w", lerr)
		}
		emb, err = NewLangChain("ollama/"+cfg.Model, llm, cfg.Dimension, batchSize)
	case "openai":
		token := strings.TrimPrefix(cfg.APIKey, "Bearer ")
		if token == "" {
			// Local OpenAI-compatible servers ignore the key but the client requires one.
			token = "not-needed"
		}
		llm, lerr := openai.New(
			openai.WithBaseURL(cfg.BaseURL),
			openai.WithToken(token),
			openai.WithModel(cfg.Model),
			openai.WithEmbeddingModel(cfg.Model),
		)
		if lerr != nil {
			return nil, fmt.Errorf("init openai embedder: %w", lerr)
		}
		emb, err = NewLangChain("openai/"+cfg.Model, llm, cfg.Dimension, batchSize)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return NewBatched(emb, batchSize), nil
}

func checkDimension(name string, want int, vecs [][]float32) error {
	for i, v := range vecs {
		if len(v) != want {
			return fmt.Errorf("%s: vector %d has dimension %d, want %d", name, i, len(v), want)
		}
	}
	return nil
}
