package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dgallion1/ragassist/internal/apperr"
)

// QdrantConfig configures the Qdrant REST client.
type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
	BatchSize  int
	Logger     *slog.Logger
}

// Qdrant talks to the Qdrant HTTP API.
type Qdrant struct {
	baseURL    string
	apiKey     string
	collection string
	batchSize  int
	log        *slog.Logger
	httpClient *http.Client
}

// NewQdrant creates a Qdrant REST client.
func NewQdrant(cfg QdrantConfig) *Qdrant {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Qdrant{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		batchSize:  cfg.BatchSize,
		log:        cfg.Logger.With("component", "qdrant"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

func (q *Qdrant) Name() string { return "qdrant" }

var errNotFound = errors.New("not found")

type qdrantFilter struct {
	Must []qdrantCondition `json:"must"`
}

type qdrantCondition struct {
	Key   string `json:"key"`
	Match struct {
		Value string `json:"value"`
	} `json:"match"`
}

func fieldMatch(key, value string) qdrantCondition {
	c := qdrantCondition{Key: key}
	c.Match.Value = value
	return c
}

type qdrantPoint struct {
	ID      string    `json:"id"`
	Vector  []float32 `json:"vector"`
	Payload Payload   `json:"payload"`
}

type searchRequest struct {
	Vector         []float32     `json:"vector"`
	Limit          int           `json:"limit"`
	WithPayload    bool          `json:"with_payload"`
	WithVector     bool          `json:"with_vector"`
	ScoreThreshold *float64      `json:"score_threshold,omitempty"`
	Filter         *qdrantFilter `json:"filter,omitempty"`
}

type scoredPoint struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload Payload         `json:"payload"`
	Vector  []float32       `json:"vector"`
}

// EnsureCollection creates the collection with cosine distance if missing,
// and fails when an existing collection has a different vector size.
func (q *Qdrant) EnsureCollection(ctx context.Context, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("invalid dimension %d", dim)
	}

	var info struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	err := q.do(ctx, http.MethodGet, "/collections/"+q.collection, nil, &info)
	switch {
	case err == nil:
		if size := info.Result.Config.Params.Vectors.Size; size != 0 && size != dim {
			return apperr.New(apperr.Configuration,
				"collection %s has vector size %d, embedder produces %d", q.collection, size, dim)
		}
		return nil
	case !errors.Is(err, errNotFound):
		return fmt.Errorf("get collection: %w", err)
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dim,
			"distance": "Cosine",
		},
	}
	if err := q.do(ctx, http.MethodPut, "/collections/"+q.collection, body, nil); err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	for _, field := range []string{"metadata.document_id", "metadata.user_id"} {
		idx := map[string]any{"field_name": field, "field_schema": "keyword"}
		if err := q.do(ctx, http.MethodPut, "/collections/"+q.collection+"/index?wait=true", idx, nil); err != nil {
			return fmt.Errorf("create payload index %s: %w", field, err)
		}
	}
	q.log.Info("collection created", "collection", q.collection, "dimension", dim)
	return nil
}

// Upsert writes points in batches. A failed batch is retried at half the
// size until single points fail.
func (q *Qdrant) Upsert(ctx context.Context, points []Point) error {
	size := q.batchSize
	for start := 0; start < len(points); {
		end := min(start+size, len(points))
		batch := make([]qdrantPoint, 0, end-start)
		for _, p := range points[start:end] {
			batch = append(batch, qdrantPoint{ID: p.ID, Vector: p.Vector, Payload: p.Payload})
		}
		err := q.do(ctx, http.MethodPut, "/collections/"+q.collection+"/points?wait=true",
			map[string]any{"points": batch}, nil)
		if err != nil {
			if size == 1 || ctx.Err() != nil {
				return fmt.Errorf("upsert points %d-%d: %w", start, end, err)
			}
			size = max(size/2, 1)
			q.log.Warn("upsert batch failed, halving batch size", "batch_size", size, "error", err)
			continue
		}
		start = end
	}
	return nil
}

func (q *Qdrant) Search(ctx context.Context, vector []float32, opts SearchOptions) ([]Hit, error) {
	if opts.Limit <= 0 {
		opts.Limit = 10
	}
	req := searchRequest{
		Vector:      vector,
		Limit:       opts.Limit,
		WithPayload: true,
		WithVector:  opts.WithVectors,
		Filter:      buildFilter(opts.UserID, opts.DocumentID),
	}
	if opts.ScoreThreshold > 0 {
		t := opts.ScoreThreshold
		req.ScoreThreshold = &t
	}

	var resp struct {
		Result []scoredPoint `json:"result"`
	}
	if err := q.do(ctx, http.MethodPost, "/collections/"+q.collection+"/points/search", req, &resp); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	hits := make([]Hit, 0, len(resp.Result))
	for _, r := range resp.Result {
		h := Hit{ID: pointIDString(r.ID), Score: r.Score, Payload: r.Payload}
		if opts.WithVectors {
			h.Vector = r.Vector
		}
		hits = append(hits, h)
	}
	return hits, nil
}

func (q *Qdrant) DeleteDocument(ctx context.Context, documentID string) error {
	body := map[string]any{"filter": buildFilter("", documentID)}
	if err := q.do(ctx, http.MethodPost, "/collections/"+q.collection+"/points/delete?wait=true", body, nil); err != nil {
		return fmt.Errorf("delete document %s: %w", documentID, err)
	}
	return nil
}

func (q *Qdrant) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if err := q.do(ctx, http.MethodPost, "/collections/"+q.collection+"/points/count", map[string]any{"exact": true}, &resp); err != nil {
		if errors.Is(err, errNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("count: %w", err)
	}
	return resp.Result.Count, nil
}

// Purge drops the collection. EnsureCollection must be called before the
// store is written again.
func (q *Qdrant) Purge(ctx context.Context) error {
	err := q.do(ctx, http.MethodDelete, "/collections/"+q.collection, nil, nil)
	if err != nil && !errors.Is(err, errNotFound) {
		return fmt.Errorf("drop collection: %w", err)
	}
	return nil
}

func (q *Qdrant) Close() error {
	q.httpClient.CloseIdleConnections()
	return nil
}

func buildFilter(userID, documentID string) *qdrantFilter {
	var f qdrantFilter
	if userID != "" {
		f.Must = append(f.Must, fieldMatch("metadata.user_id", userID))
	}
	if documentID != "" {
		f.Must = append(f.Must, fieldMatch("metadata.document_id", documentID))
	}
	if len(f.Must) == 0 {
		return nil
	}
	return &f
}

// pointIDString renders a Qdrant point id, which is either a UUID string or
// an unsigned integer.
func pointIDString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func (q *Qdrant) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if q.apiKey != "" {
		httpReq.Header.Set("api-key", q.apiKey)
	}

	resp, err := q.httpClient.Do(httpReq)
	if err != nil {
		return apperr.Wrap(err, apperr.ExternalService, "vector store unavailable")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errNotFound
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &apperr.RetryableError{StatusCode: resp.StatusCode, Message: string(respBody)}
	case resp.StatusCode >= 300:
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return apperr.New(apperr.ExternalService, "qdrant %s %s: status %d: %s", method, path, resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
