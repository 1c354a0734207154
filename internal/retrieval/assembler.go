// Package retrieval turns a question into ranked chunks and assembles the
// context window handed to the LLM.
package retrieval

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/dgallion1/ragassist/internal/config"
	"github.com/dgallion1/ragassist/internal/textnorm"
	"github.com/dgallion1/ragassist/internal/vectorstore"
)

const fingerprintLen = 100

// Result is one retrieved chunk.
type Result struct {
	ChunkID    string               `json:"chunk_id"`
	Text       string               `json:"text"`
	Score      float64              `json:"relevance_score"`
	DocumentID string               `json:"document_id"`
	Metadata   vectorstore.Metadata `json:"metadata"`
	Highlights []string             `json:"highlights"`
	Vector     []float32            `json:"-"`
}

// FromHit converts a vector store hit.
func FromHit(h vectorstore.Hit) Result {
	return Result{
		ChunkID:    h.ID,
		Text:       h.Payload.Text,
		Score:      h.Score,
		DocumentID: h.Payload.Metadata.DocumentID,
		Metadata:   h.Payload.Metadata,
		Vector:     h.Vector,
	}
}

// Context is the assembled context window.
type Context struct {
	Results  []Result
	Text     string
	ChunkIDs []string
}

func (c Context) Empty() bool { return len(c.Results) == 0 }

// Assembler selects and formats the chunks that go into a prompt.
type Assembler struct {
	cfg config.ContextConfig
	log *slog.Logger
}

// NewAssembler creates an assembler using the context limits in cfg.
func NewAssembler(cfg config.ContextConfig, log *slog.Logger) *Assembler {
	if cfg.MaxChunks <= 0 {
		cfg.MaxChunks = 5
	}
	if log == nil {
		log = slog.Default()
	}
	return &Assembler{cfg: cfg, log: log.With("component", "assembler")}
}

// Build filters results by relevance, drops near duplicates, picks at most
// MaxChunks of them with maximal marginal relevance and formats the window.
// When any result lacks a vector, selection falls back to score order.
func (a *Assembler) Build(queryVec []float32, results []Result) Context {
	var filtered []Result
	for _, r := range results {
		if r.Score >= a.cfg.MinRelevance {
			filtered = append(filtered, r)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].Score > filtered[j].Score })
	if len(filtered) == 0 {
		a.log.Debug("no results above relevance threshold", "candidates", len(results), "min_relevance", a.cfg.MinRelevance)
		return Context{}
	}

	withVectors := true
	for _, r := range filtered {
		if len(r.Vector) == 0 {
			withVectors = false
			break
		}
	}

	unique := a.dedupe(filtered, withVectors)

	var selected []Result
	if withVectors {
		selected = a.mmr(queryVec, unique)
	} else {
		a.log.Debug("results without vectors, selecting by score")
		selected = unique[:min(len(unique), a.cfg.MaxChunks)]
	}

	ctx := Context{Results: selected, Text: a.format(selected)}
	for _, r := range selected {
		ctx.ChunkIDs = append(ctx.ChunkIDs, r.ChunkID)
	}
	return ctx
}

// dedupe keeps the first of any results sharing a text fingerprint or, when
// vectors are available, lying closer than MaxDuplicateDistance in cosine
// distance to an already kept result.
func (a *Assembler) dedupe(results []Result, withVectors bool) []Result {
	seen := make(map[string]bool)
	var kept []Result
	for _, r := range results {
		fp := textnorm.Fingerprint(a.clean(r.Text), fingerprintLen)
		if seen[fp] {
			continue
		}
		if withVectors && a.cfg.MaxDuplicateDistance > 0 {
			dup := false
			for _, k := range kept {
				if 1-vectorstore.Cosine(r.Vector, k.Vector) < a.cfg.MaxDuplicateDistance {
					dup = true
					break
				}
			}
			if dup {
				continue
			}
		}
		seen[fp] = true
		kept = append(kept, r)
	}
	return kept
}

// mmr picks the result most similar to the query, then repeatedly the one
// maximising λ·sim(query) − (1−λ)·max sim(selected), with λ the diversity
// factor.
func (a *Assembler) mmr(queryVec []float32, results []Result) []Result {
	if len(results) <= 1 {
		return results
	}
	lambda := a.cfg.DiversityFactor

	querySim := make([]float64, len(results))
	for i, r := range results {
		if len(queryVec) > 0 {
			querySim[i] = vectorstore.Cosine(queryVec, r.Vector)
		} else {
			querySim[i] = r.Score
		}
	}

	first := 0
	for i := range querySim {
		if querySim[i] > querySim[first] {
			first = i
		}
	}
	selected := []int{first}
	remaining := make(map[int]bool, len(results))
	for i := range results {
		if i != first {
			remaining[i] = true
		}
	}

	for len(remaining) > 0 && len(selected) < a.cfg.MaxChunks {
		best, bestScore := -1, 0.0
		for i := range results {
			if !remaining[i] {
				continue
			}
			maxSim := 0.0
			for j, s := range selected {
				sim := vectorstore.Cosine(results[i].Vector, results[s].Vector)
				if j == 0 || sim > maxSim {
					maxSim = sim
				}
			}
			score := lambda*querySim[i] - (1-lambda)*maxSim
			if best == -1 || score > bestScore {
				best, bestScore = i, score
			}
		}
		selected = append(selected, best)
		delete(remaining, best)
	}

	out := make([]Result, len(selected))
	for i, idx := range selected {
		out[i] = results[idx]
	}
	return out
}

func (a *Assembler) clean(text string) string {
	return textnorm.Clean(text, a.cfg.CleanStopwords)
}

func (a *Assembler) format(results []Result) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		source := r.Metadata.Source
		if source == "" {
			source = "Document"
		}
		page := "N/A"
		if r.Metadata.Page > 0 {
			page = fmt.Sprint(r.Metadata.Page)
		}
		parts = append(parts, fmt.Sprintf("### %s\nPage: %s\nRelevance: %.2f\n%s\n%s\n",
			source, page, r.Score, a.clean(r.Text), strings.Repeat("-", 40)))
	}
	return strings.Join(parts, "\n")
}
