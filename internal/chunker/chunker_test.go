package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/dgallion1/ragassist/internal/doctree"
)

func plainConfig(size, overlap, minChunk int) Config {
	return Config{ChunkSize: size, ChunkOverlap: overlap, MinChunk: minChunk, Smart: true}
}

func TestChunkTree_SmallTreeFitsOneChunk(t *testing.T) {
	tree := &doctree.DocTree{
		Title: "Small",
		Children: []*doctree.DocNode{
			{
				Title: "Section",
				Text:  strings.Repeat("word ", 200),
			},
		},
	}

	chunks := ChunkTree(tree, plainConfig(1500, 200, 50))

	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Index != 0 {
		t.Errorf("expected index 0, got %d", chunks[0].Index)
	}
	if chunks[0].ContentType != doctree.ContentText {
		t.Errorf("expected content type text, got %q", chunks[0].ContentType)
	}
	if chunks[0].Tokens != EstimateTokens(chunks[0].Text) {
		t.Errorf("tokens %d do not match estimate %d", chunks[0].Tokens, EstimateTokens(chunks[0].Text))
	}
}

func TestChunkTree_LargeTreeRespectsChunkSize(t *testing.T) {
	largeText := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 300)

	tree := &doctree.DocTree{
		Title: "Large",
		Children: []*doctree.DocNode{
			{Title: "Big Section", Text: largeText},
		},
	}

	cfg := plainConfig(500, 50, 10)
	chunks := ChunkTree(tree, cfg)

	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks for large text, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d: expected index %d, got %d", i, i, c.Index)
		}
		if c.Tokens > cfg.ChunkSize {
			t.Errorf("chunk %d: %d tokens exceeds chunk size %d", i, c.Tokens, cfg.ChunkSize)
		}
	}
}

func TestChunkTree_OverlapBetweenConsecutiveChunks(t *testing.T) {
	var paras []string
	for i := 0; i < 40; i++ {
		paras = append(paras, fmt.Sprintf("Paragraph %d talks about topic%d in some detail with several words.", i, i))
	}
	tree := &doctree.DocTree{
		Children: []*doctree.DocNode{{Title: "S", Text: strings.Join(paras, "\n\n")}},
	}

	chunks := ChunkTree(tree, plainConfig(100, 20, 10))
	if len(chunks) < 3 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}

	for i := 1; i < len(chunks); i++ {
		prevWords := strings.Fields(chunks[i-1].Text)
		tail := strings.Join(prevWords[len(prevWords)-3:], " ")
		if !strings.Contains(chunks[i].Text, tail) {
			t.Errorf("chunk %d does not start with overlap %q from chunk %d", i, tail, i-1)
		}
	}
}

func TestChunkTree_ZeroOverlap(t *testing.T) {
	tree := &doctree.DocTree{
		Children: []*doctree.DocNode{{Text: strings.Repeat("alpha beta gamma delta. ", 200)}},
	}
	chunks := ChunkTree(tree, plainConfig(100, 0, 10))

	total := 0
	for _, c := range chunks {
		total += len(strings.Fields(c.Text))
	}
	if total != 800 {
		t.Errorf("expected words to be partitioned exactly (800), got %d", total)
	}
}

func TestChunkTree_BreadcrumbPropagation(t *testing.T) {
	tree := &doctree.DocTree{
		Title: "Doc",
		Children: []*doctree.DocNode{
			{
				Title: "Chapter 1",
				Children: []*doctree.DocNode{
					{Title: "Section 1.1", Text: strings.Repeat("content ", 200)},
				},
			},
		},
	}

	chunks := ChunkTree(tree, plainConfig(2000, 100, 10))

	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}

	bc := chunks[0].Breadcrumb
	want := []string{"Chapter 1", "Section 1.1"}
	if len(bc) != len(want) {
		t.Fatalf("expected breadcrumb %v, got %v", want, bc)
	}
	for i := range want {
		if bc[i] != want[i] {
			t.Errorf("breadcrumb[%d]: expected %q, got %q", i, want[i], bc[i])
		}
	}
}

func TestChunkTree_BreadcrumbIsolation(t *testing.T) {
	tree := &doctree.DocTree{
		Title: "Doc",
		Children: []*doctree.DocNode{
			{Title: "A", Text: strings.Repeat("alpha ", 200)},
			{Title: "B", Text: strings.Repeat("beta ", 200)},
		},
	}

	chunks := ChunkTree(tree, plainConfig(2000, 100, 10))

	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if len(chunks[0].Breadcrumb) != 1 || chunks[0].Breadcrumb[0] != "A" {
		t.Errorf("chunk 0 breadcrumb: expected [A], got %v", chunks[0].Breadcrumb)
	}
	if len(chunks[1].Breadcrumb) != 1 || chunks[1].Breadcrumb[0] != "B" {
		t.Errorf("chunk 1 breadcrumb: expected [B], got %v", chunks[1].Breadcrumb)
	}
	if strings.Contains(chunks[0].Text, "beta") || strings.Contains(chunks[1].Text, "alpha") {
		t.Error("sections must not share chunks")
	}
}

func TestChunkTree_UndersizedSectionKept(t *testing.T) {
	tree := &doctree.DocTree{
		Title:    "Tiny",
		Children: []*doctree.DocNode{{Title: "Short", Text: "Hi"}},
	}

	chunks := ChunkTree(tree, plainConfig(1500, 200, 100))

	if len(chunks) != 1 {
		t.Fatalf("expected the short section to survive as one chunk, got %d", len(chunks))
	}
	if chunks[0].Text != "Hi" {
		t.Errorf("expected %q, got %q", "Hi", chunks[0].Text)
	}
}

func TestChunkTree_TrailingChunkMerged(t *testing.T) {
	// 160 words at budget 100 tokens (75 words) -> 75 + 75 + 10; the
	// trailing 10 words are below MinChunk and must be folded back.
	text := strings.TrimSpace(strings.Repeat("lorem ", 160))
	tree := &doctree.DocTree{Children: []*doctree.DocNode{{Text: text}}}

	cfg := Config{ChunkSize: 100, ChunkOverlap: 0, MinChunk: 40}
	chunks := ChunkTree(tree, cfg)

	for i, c := range chunks {
		if c.Tokens < cfg.MinChunk {
			t.Errorf("chunk %d has %d tokens, below MinChunk %d", i, c.Tokens, cfg.MinChunk)
		}
	}
	total := 0
	for _, c := range chunks {
		total += len(strings.Fields(c.Text))
	}
	if total != 160 {
		t.Errorf("expected all 160 words preserved, got %d", total)
	}
}

func TestChunkTree_FixedWindow(t *testing.T) {
	var words []string
	for i := 0; i < 300; i++ {
		words = append(words, fmt.Sprintf("w%d", i))
	}
	tree := &doctree.DocTree{Children: []*doctree.DocNode{{Text: strings.Join(words, " ")}}}

	// 134 tokens -> 100 words per window, 26 tokens -> 19 words overlap.
	chunks := ChunkTree(tree, Config{ChunkSize: 134, ChunkOverlap: 26, MinChunk: 1})

	if len(chunks) < 3 {
		t.Fatalf("expected at least 3 windows, got %d", len(chunks))
	}
	first := strings.Fields(chunks[0].Text)
	second := strings.Fields(chunks[1].Text)
	if len(first) != 100 {
		t.Errorf("expected 100 words in first window, got %d", len(first))
	}
	if second[0] != "w81" {
		t.Errorf("expected second window to start at w81, got %s", second[0])
	}
}

func TestChunkTree_HeadingPrefix(t *testing.T) {
	tree := &doctree.DocTree{
		Children: []*doctree.DocNode{
			{
				Title: "Installation",
				Children: []*doctree.DocNode{
					{Title: "Linux", Text: "Run the installer script."},
				},
			},
		},
	}

	cfg := plainConfig(500, 50, 1)
	cfg.HeadingPrefix = true
	chunks := ChunkTree(tree, cfg)

	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	want := "Section: Installation. Subsection: Linux. Run the installer script."
	if chunks[0].Text != want {
		t.Errorf("expected %q, got %q", want, chunks[0].Text)
	}
}

func TestChunkTree_TableChunks(t *testing.T) {
	tree := &doctree.DocTree{
		Children: []*doctree.DocNode{
			{Title: "Prices", Text: "Prices follow.", Children: []*doctree.DocNode{
				{Kind: doctree.ContentTable, Text: "item: apple, price: 1\nitem: pear, price: 2", Page: 3},
			}},
		},
	}

	chunks := ChunkTree(tree, plainConfig(500, 50, 1))

	if len(chunks) != 2 {
		t.Fatalf("expected text and table chunks, got %d", len(chunks))
	}
	table := chunks[1]
	if table.ContentType != doctree.ContentTable {
		t.Errorf("expected table content type, got %q", table.ContentType)
	}
	if table.PageStart != 3 || table.PageEnd != 3 {
		t.Errorf("expected page 3, got %d-%d", table.PageStart, table.PageEnd)
	}
}

func TestChunkTree_PageRangeAcrossUntitledPages(t *testing.T) {
	tree := &doctree.DocTree{
		Children: []*doctree.DocNode{
			{Text: strings.Repeat("one ", 30), Page: 1},
			{Text: strings.Repeat("two ", 30), Page: 2},
		},
	}

	chunks := ChunkTree(tree, plainConfig(500, 0, 1))

	if len(chunks) != 1 {
		t.Fatalf("expected pages to flow into one chunk, got %d", len(chunks))
	}
	if chunks[0].PageStart != 1 || chunks[0].PageEnd != 2 {
		t.Errorf("expected pages 1-2, got %d-%d", chunks[0].PageStart, chunks[0].PageEnd)
	}
}

func TestChunkTree_EmptyTree(t *testing.T) {
	tree := &doctree.DocTree{Title: "Empty"}
	chunks := ChunkTree(tree, DefaultConfig())
	if len(chunks) != 0 {
		t.Errorf("expected 0 chunks, got %d", len(chunks))
	}
}

func TestChunkTree_ZeroConfigFallback(t *testing.T) {
	tree := &doctree.DocTree{
		Title:    "Doc",
		Children: []*doctree.DocNode{{Text: strings.Repeat("word ", 200)}},
	}
	chunks := ChunkTree(tree, Config{})
	if len(chunks) < 1 {
		t.Errorf("expected at least 1 chunk with zero config, got %d", len(chunks))
	}
}

func TestChunkTree_NodeWithNoText(t *testing.T) {
	tree := &doctree.DocTree{
		Title: "Doc",
		Children: []*doctree.DocNode{
			{
				Title: "Container",
				Children: []*doctree.DocNode{
					{Title: "Leaf", Text: strings.Repeat("leaf content ", 100)},
				},
			},
		},
	}

	chunks := ChunkTree(tree, plainConfig(2000, 100, 10))

	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	want := []string{"Container", "Leaf"}
	bc := chunks[0].Breadcrumb
	if len(bc) != len(want) {
		t.Fatalf("expected breadcrumb %v, got %v", want, bc)
	}
	for i := range want {
		if bc[i] != want[i] {
			t.Errorf("breadcrumb[%d]: expected %q, got %q", i, want[i], bc[i])
		}
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"   ", 0},
		{"one", 1},
		{"one two three", 3},
		{strings.Repeat("w ", 100), 133},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.text); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}
