package vectorstore

import (
	"context"
	"slices"
	"sort"
	"sync"
)

// Memory is an in-process store with brute-force cosine search.
type Memory struct {
	mu     sync.RWMutex
	dim    int
	points map[string]Point
}

// NewMemory returns an empty in-process store.
func NewMemory() *Memory {
	return &Memory{points: make(map[string]Point)}
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) EnsureCollection(_ context.Context, dim int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dim = dim
	return nil
}

func (m *Memory) Upsert(_ context.Context, points []Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range points {
		p.Vector = slices.Clone(p.Vector)
		m.points[p.ID] = p
	}
	return nil
}

func (m *Memory) Search(_ context.Context, vector []float32, opts SearchOptions) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var hits []Hit
	for _, p := range m.points {
		if !matches(p.Payload.Metadata, opts) {
			continue
		}
		score := Cosine(vector, p.Vector)
		if score < opts.ScoreThreshold {
			continue
		}
		h := Hit{ID: p.ID, Score: score, Payload: p.Payload}
		if opts.WithVectors {
			h.Vector = slices.Clone(p.Vector)
		}
		hits = append(hits, h)
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if opts.Limit > 0 && len(hits) > opts.Limit {
		hits = hits[:opts.Limit]
	}
	return hits, nil
}

func (m *Memory) DeleteDocument(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.points {
		if p.Payload.Metadata.DocumentID == documentID {
			delete(m.points, id)
		}
	}
	return nil
}

func (m *Memory) Count(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.points), nil
}

func (m *Memory) Purge(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points = make(map[string]Point)
	return nil
}

func (m *Memory) Close() error { return nil }
