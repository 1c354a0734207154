package embedding

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/ragassist/internal/config"
)

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestTFIDFSimilarTextsScoreHigher(t *testing.T) {
	e := NewTFIDF(256)
	ctx := context.Background()

	docs := []string{
		"Install the Linux package with apt and configure the service.",
		"Quarterly revenue grew by twelve percent in the fourth quarter.",
		"Our cafeteria serves lunch between noon and two.",
	}
	vecs, err := e.EmbedDocuments(ctx, docs)
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	q, err := e.EmbedQuery(ctx, "how to install the linux package")
	require.NoError(t, err)

	install := cosine(q, vecs[0])
	assert.Greater(t, install, cosine(q, vecs[1]))
	assert.Greater(t, install, cosine(q, vecs[2]))
}

func TestTFIDFVectorsAreNormalized(t *testing.T) {
	e := NewTFIDF(64)
	vecs, err := e.EmbedDocuments(context.Background(), []string{"alpha beta gamma alpha"})
	require.NoError(t, err)

	var sum float64
	for _, v := range vecs[0] {
		assert.GreaterOrEqual(t, v, float32(0))
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, sum, 1e-5)
	assert.Equal(t, 64, e.Dimension())
}

func TestTFIDFEmptyText(t *testing.T) {
	e := NewTFIDF(32)
	q, err := e.EmbedQuery(context.Background(), "the and of")
	require.NoError(t, err)
	assert.Len(t, q, 32)
	for _, v := range q {
		assert.Zero(t, v)
	}
}

func TestTFIDFCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewTFIDF(32).EmbedQuery(ctx, "hello")
	assert.ErrorIs(t, err, context.Canceled)
}

type countingEmbedder struct {
	*TFIDF
	calls []int
}

func (c *countingEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls = append(c.calls, len(texts))
	return c.TFIDF.EmbedDocuments(ctx, texts)
}

func TestBatchedSplitsCalls(t *testing.T) {
	inner := &countingEmbedder{TFIDF: NewTFIDF(16)}
	b := NewBatched(inner, 4)

	texts := make([]string, 10)
	for i := range texts {
		texts[i] = "text number"
	}
	vecs, err := b.EmbedDocuments(context.Background(), texts)
	require.NoError(t, err)
	assert.Len(t, vecs, 10)
	assert.Equal(t, []int{4, 4, 2}, inner.calls)
	assert.Equal(t, "tfidf", b.Name())
}

type fakeClient struct {
	dim int
	err error
}

func (f *fakeClient) CreateEmbedding(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, f.dim)
		v[0] = float32(len(t))
		out[i] = v
	}
	return out, nil
}

func TestLangChainEmbedder(t *testing.T) {
	e, err := NewLangChain("fake", &fakeClient{dim: 8}, 8, 2)
	require.NoError(t, err)

	vecs, err := e.EmbedDocuments(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, float32(3), vecs[2][0])

	q, err := e.EmbedQuery(context.Background(), "four")
	require.NoError(t, err)
	assert.Len(t, q, 8)
}

func TestLangChainDimensionMismatch(t *testing.T) {
	e, err := NewLangChain("fake", &fakeClient{dim: 4}, 8, 2)
	require.NoError(t, err)

	_, err = e.EmbedQuery(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension 4")
}

func TestLangChainClientError(t *testing.T) {
	boom := errors.New("connection refused")
	e, err := NewLangChain("fake", &fakeClient{dim: 4, err: boom}, 4, 2)
	require.NoError(t, err)

	_, err = e.EmbedDocuments(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, boom)
}

func TestNewUnknownProvider(t *testing.T) {
	_, err := New(config.EmbeddingConfig{Provider: "cohere", Dimension: 8}, 4)
	assert.Error(t, err)
}

func TestNewTFIDF(t *testing.T) {
	e, err := New(config.EmbeddingConfig{Provider: "tfidf", Dimension: 8}, 4)
	require.NoError(t, err)
	assert.Equal(t, 8, e.Dimension())
}
