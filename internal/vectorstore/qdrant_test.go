package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/ragassist/internal/apperr"
)

type recorded struct {
	method string
	path   string
	query  string
	apiKey string
	body   map[string]any
}

type fakeQdrant struct {
	mu       sync.Mutex
	requests []recorded
	handle   func(w http.ResponseWriter, r recorded)
}

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec := recorded{method: r.Method, path: r.URL.Path, query: r.URL.RawQuery, apiKey: r.Header.Get("api-key")}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&rec.body)
	}
	f.mu.Lock()
	f.requests = append(f.requests, rec)
	f.mu.Unlock()
	f.handle(w, rec)
}

func newFakeQdrant(t *testing.T, handle func(w http.ResponseWriter, r recorded)) (*fakeQdrant, *Qdrant) {
	t.Helper()
	f := &fakeQdrant{handle: handle}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	q := NewQdrant(QdrantConfig{URL: srv.URL + "/", APIKey: "secret", Collection: "chunks", BatchSize: 4})
	return f, q
}

func TestQdrantEnsureCollectionCreatesWhenMissing(t *testing.T) {
	f, q := newFakeQdrant(t, func(w http.ResponseWriter, r recorded) {
		if r.method == http.MethodGet {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, `{"result":true,"status":"ok"}`)
	})

	require.NoError(t, q.EnsureCollection(context.Background(), 768))

	require.Len(t, f.requests, 4)
	create := f.requests[1]
	assert.Equal(t, http.MethodPut, create.method)
	assert.Equal(t, "/collections/chunks", create.path)
	assert.Equal(t, "secret", create.apiKey)
	vectors := create.body["vectors"].(map[string]any)
	assert.Equal(t, float64(768), vectors["size"])
	assert.Equal(t, "Cosine", vectors["distance"])
	assert.Equal(t, "metadata.document_id", f.requests[2].body["field_name"])
	assert.Equal(t, "metadata.user_id", f.requests[3].body["field_name"])
}

func TestQdrantEnsureCollectionDimensionMismatch(t *testing.T) {
	_, q := newFakeQdrant(t, func(w http.ResponseWriter, r recorded) {
		fmt.Fprint(w, `{"result":{"config":{"params":{"vectors":{"size":384,"distance":"Cosine"}}}}}`)
	})

	err := q.EnsureCollection(context.Background(), 768)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Configuration))
}

func TestQdrantUpsertHalvesBatchOnFailure(t *testing.T) {
	var sizes []int
	f, q := newFakeQdrant(t, func(w http.ResponseWriter, r recorded) {
		n := len(r.body["points"].([]any))
		sizes = append(sizes, n)
		if n > 2 {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"status":{"error":"payload too large"}}`)
			return
		}
		fmt.Fprint(w, `{"result":{"status":"completed"}}`)
	})

	points := make([]Point, 5)
	for i := range points {
		points[i] = Point{ID: PointID("d", i), Vector: []float32{1, 0}}
	}
	require.NoError(t, q.Upsert(context.Background(), points))

	assert.Equal(t, []int{4, 2, 2, 1}, sizes)
	for _, r := range f.requests {
		assert.Equal(t, "/collections/chunks/points", r.path)
		assert.Equal(t, "wait=true", r.query)
	}
}

func TestQdrantUpsertGivesUpAtSinglePoint(t *testing.T) {
	_, q := newFakeQdrant(t, func(w http.ResponseWriter, r recorded) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	err := q.Upsert(context.Background(), []Point{{ID: "a"}, {ID: "b"}})
	require.Error(t, err)
	assert.True(t, apperr.IsRetryable(err))
}

func TestQdrantSearch(t *testing.T) {
	f, q := newFakeQdrant(t, func(w http.ResponseWriter, r recorded) {
		fmt.Fprint(w, `{"result":[
			{"id":"7f1c","score":0.91,"payload":{"text":"hello","metadata":{"document_id":"d1","user_id":"u1","source":"a.md","page":2,"chunk_index":1}},"vector":[0.1,0.2]},
			{"id":42,"score":0.70,"payload":{"text":"world","metadata":{"document_id":"d1","user_id":"u1"}}}
		]}`)
	})

	hits, err := q.Search(context.Background(), []float32{0.1, 0.2}, SearchOptions{
		Limit: 5, ScoreThreshold: 0.6, WithVectors: true, UserID: "u1", DocumentID: "d1",
	})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "7f1c", hits[0].ID)
	assert.Equal(t, "42", hits[1].ID)
	assert.InDelta(t, 0.91, hits[0].Score, 1e-9)
	assert.Equal(t, "a.md", hits[0].Payload.Metadata.Source)
	assert.Equal(t, 2, hits[0].Payload.Metadata.Page)
	assert.Equal(t, []float32{0.1, 0.2}, hits[0].Vector)

	req := f.requests[0]
	assert.Equal(t, "/collections/chunks/points/search", req.path)
	assert.Equal(t, float64(5), req.body["limit"])
	assert.Equal(t, 0.6, req.body["score_threshold"])
	assert.Equal(t, true, req.body["with_vector"])
	must := req.body["filter"].(map[string]any)["must"].([]any)
	require.Len(t, must, 2)
	assert.Equal(t, "metadata.user_id", must[0].(map[string]any)["key"])
	assert.Equal(t, "metadata.document_id", must[1].(map[string]any)["key"])
}

func TestQdrantSearchWithoutFilter(t *testing.T) {
	f, q := newFakeQdrant(t, func(w http.ResponseWriter, r recorded) {
		fmt.Fprint(w, `{"result":[]}`)
	})
	_, err := q.Search(context.Background(), []float32{1}, SearchOptions{})
	require.NoError(t, err)
	_, hasFilter := f.requests[0].body["filter"]
	assert.False(t, hasFilter)
	assert.Equal(t, float64(10), f.requests[0].body["limit"])
}

func TestQdrantCountAndDelete(t *testing.T) {
	f, q := newFakeQdrant(t, func(w http.ResponseWriter, r recorded) {
		switch r.path {
		case "/collections/chunks/points/count":
			fmt.Fprint(w, `{"result":{"count":17}}`)
		default:
			fmt.Fprint(w, `{"result":{"status":"completed"}}`)
		}
	})
	ctx := context.Background()

	n, err := q.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 17, n)
	assert.Equal(t, true, f.requests[0].body["exact"])

	require.NoError(t, q.DeleteDocument(ctx, "doc-9"))
	del := f.requests[1]
	assert.Equal(t, "/collections/chunks/points/delete", del.path)
	must := del.body["filter"].(map[string]any)["must"].([]any)
	cond := must[0].(map[string]any)
	assert.Equal(t, "metadata.document_id", cond["key"])
	assert.Equal(t, "doc-9", cond["match"].(map[string]any)["value"])
}

func TestQdrantCountMissingCollection(t *testing.T) {
	_, q := newFakeQdrant(t, func(w http.ResponseWriter, r recorded) {
		w.WriteHeader(http.StatusNotFound)
	})
	n, err := q.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, q.Purge(context.Background()))
}

func TestQdrantUnreachable(t *testing.T) {
	q := NewQdrant(QdrantConfig{URL: "http://127.0.0.1:1", Collection: "c"})
	_, err := q.Count(context.Background())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.ExternalService))
}
