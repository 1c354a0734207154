package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"sync"

	"github.com/dgallion1/ragassist/internal/textnorm"
)

// TFIDF is a local embedder: terms are hashed into dim buckets, weighted by
// sublinear term frequency and a smoothed inverse document frequency learned
// from every batch passed to EmbedDocuments, then L2 normalized.
//
// Vectors are non-negative, so cosine similarity between them lies in [0, 1].
type TFIDF struct {
	dim int

	mu      sync.RWMutex
	docs    int
	docFreq map[uint32]int
}

// NewTFIDF returns a hashing embedder producing dim-sized vectors.
func NewTFIDF(dim int) *TFIDF {
	if dim <= 0 {
		dim = 768
	}
	return &TFIDF{dim: dim, docFreq: make(map[uint32]int)}
}

func (t *TFIDF) Name() string   { return "tfidf" }
func (t *TFIDF) Dimension() int { return t.dim }

func (t *TFIDF) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	counts := make([]map[uint32]int, len(texts))
	for i, text := range texts {
		counts[i] = t.termCounts(text)
	}

	t.mu.Lock()
	for _, c := range counts {
		t.docs++
		for bucket := range c {
			t.docFreq[bucket]++
		}
	}
	t.mu.Unlock()

	out := make([][]float32, len(texts))
	for i, c := range counts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = t.vector(c)
	}
	return out, nil
}

func (t *TFIDF) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.vector(t.termCounts(text)), nil
}

func (t *TFIDF) termCounts(text string) map[uint32]int {
	counts := make(map[uint32]int)
	for _, tok := range textnorm.Tokenize(text) {
		if textnorm.IsStopword(tok) {
			continue
		}
		counts[t.bucket(tok)]++
	}
	return counts
}

func (t *TFIDF) bucket(term string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(term))
	return h.Sum32() % uint32(t.dim)
}

func (t *TFIDF) vector(counts map[uint32]int) []float32 {
	vec := make([]float32, t.dim)

	t.mu.RLock()
	n := float64(t.docs)
	var norm float64
	for bucket, tf := range counts {
		idf := math.Log((1+n)/(1+float64(t.docFreq[bucket]))) + 1
		w := (1 + math.Log(float64(tf))) * idf
		vec[bucket] = float32(w)
		norm += w * w
	}
	t.mu.RUnlock()

	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}
