package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/ragassist/internal/doctree"
)

func testPoints() []Point {
	mk := func(id, doc, user, text string, vec ...float32) Point {
		return Point{
			ID:     id,
			Vector: vec,
			Payload: Payload{
				Text:     text,
				Metadata: Metadata{DocumentID: doc, UserID: user, Source: doc + ".md", Page: 1, Breadcrumb: []string{"A", "B"}},
			},
		}
	}
	return []Point{
		mk("p1", "d1", "u1", "alpha", 1, 0, 0),
		mk("p2", "d1", "u1", "alpha-ish", 0.9, 0.1, 0),
		mk("p3", "d2", "u1", "beta", 0, 1, 0),
		mk("p4", "d3", "u2", "other user", 1, 0, 0),
	}
}

// exerciseStore runs the behaviour every backend must share.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.EnsureCollection(ctx, 3))
	require.NoError(t, s.Upsert(ctx, testPoints()))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	hits, err := s.Search(ctx, []float32{1, 0, 0}, SearchOptions{Limit: 10, UserID: "u1", WithVectors: true})
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "p1", hits[0].ID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-5)
	assert.Equal(t, "alpha", hits[0].Payload.Text)
	assert.Equal(t, "d1", hits[0].Payload.Metadata.DocumentID)
	assert.Equal(t, []string{"A", "B"}, hits[0].Payload.Metadata.Breadcrumb)
	assert.Len(t, hits[0].Vector, 3)

	hits, err = s.Search(ctx, []float32{1, 0, 0}, SearchOptions{Limit: 10, UserID: "u1", ScoreThreshold: 0.5})
	require.NoError(t, err)
	assert.Len(t, hits, 2, "beta is orthogonal and falls under the threshold")
	assert.Nil(t, hits[0].Vector)

	hits, err = s.Search(ctx, []float32{1, 0, 0}, SearchOptions{Limit: 10, DocumentID: "d2"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "p3", hits[0].ID)

	hits, err = s.Search(ctx, []float32{1, 0, 0}, SearchOptions{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	require.NoError(t, s.DeleteDocument(ctx, "d1"))
	n, err = s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, s.Purge(ctx))
	n, err = s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, s.Close())
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestChromemStore(t *testing.T) {
	s, err := NewChromem("", "test_chunks")
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestChromemPersistent(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := NewChromem(dir, "persisted")
	require.NoError(t, err)
	require.NoError(t, s.Upsert(ctx, testPoints()))

	reopened, err := NewChromem(dir, "persisted")
	require.NoError(t, err)
	n, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestPointFromChunk(t *testing.T) {
	c := doctree.Chunk{
		DocumentID: "doc-1",
		Source:     "guide.pdf",
		Text:       "hello",
		Index:      3,
		Tokens:     2,
		PageStart:  4,
		PageEnd:    5,
		Breadcrumb: []string{"Intro"},
		Vector:     []float32{1, 2},
	}
	p := PointFromChunk(c, "user-1")

	assert.Equal(t, PointID("doc-1", 3), p.ID)
	assert.Equal(t, PointID("doc-1", 3), PointID("doc-1", 3), "ids are stable")
	assert.NotEqual(t, PointID("doc-1", 3), PointID("doc-1", 4))
	assert.Equal(t, "user-1", p.Payload.Metadata.UserID)
	assert.Equal(t, 4, p.Payload.Metadata.Page)
	assert.Equal(t, 5, p.Payload.Metadata.PageEnd)
	assert.Equal(t, "text", p.Payload.Metadata.ContentType)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 1}, []float32{2, 2}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Zero(t, Cosine([]float32{1}, []float32{1, 2}))
	assert.Zero(t, Cosine([]float32{0, 0}, []float32{1, 2}))
}

func TestMetadataFlattenRoundTrip(t *testing.T) {
	m := Metadata{DocumentID: "d", UserID: "u", Source: "s", Page: 2, PageEnd: 3, ChunkIndex: 7, ContentType: "table", Tokens: 9, Breadcrumb: []string{"x", "y"}}
	assert.Equal(t, m, unflattenMetadata(flattenMetadata(m)))
}
