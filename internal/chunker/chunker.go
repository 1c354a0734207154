package chunker

import (
	"strings"

	"github.com/dgallion1/ragassist/internal/doctree"
)

// Config controls chunking behavior.
type Config struct {
	ChunkSize     int  // Upper bound on chunk size in tokens.
	ChunkOverlap  int  // Overlap between consecutive chunks of a section in tokens.
	MinChunk      int  // Chunks below this size are merged into their predecessor.
	Smart         bool // Split on paragraph and sentence boundaries instead of a fixed word window.
	HeadingPrefix bool // Prefix each chunk with its section headings.
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ChunkSize:     768,
		ChunkOverlap:  200,
		MinChunk:      300,
		Smart:         true,
		HeadingPrefix: true,
	}
}

// Clamp forces a user-supplied config into the accepted ranges: size
// 100-2048, overlap 0-500 and below size, min chunk 50-1000.
func Clamp(c Config) Config {
	c.ChunkSize = min(max(c.ChunkSize, 100), 2048)
	c.ChunkOverlap = min(max(c.ChunkOverlap, 0), 500)
	if c.ChunkOverlap >= c.ChunkSize {
		c.ChunkOverlap = c.ChunkSize / 4
	}
	c.MinChunk = min(max(c.MinChunk, 50), 1000)
	return c
}

func (c Config) normalize() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = 768
	}
	if c.ChunkOverlap < 0 {
		c.ChunkOverlap = 0
	}
	if c.ChunkOverlap >= c.ChunkSize {
		c.ChunkOverlap = c.ChunkSize / 4
	}
	if c.MinChunk < 0 {
		c.MinChunk = 0
	}
	if c.MinChunk > c.ChunkSize/2 {
		c.MinChunk = c.ChunkSize / 2
	}
	return c
}

// piece is an emitted span of a section before it becomes a Chunk.
type piece struct {
	text      string
	fresh     string // text minus the overlap carried from the previous piece
	pageStart int
	pageEnd   int
}

// unit is the smallest span the packer moves around: a paragraph, a sentence
// or a word run, depending on how much splitting was needed.
type unit struct {
	text string
	sep  string
	page int
}

type walker struct {
	cfg    Config
	chunks []doctree.Chunk
}

// ChunkTree walks a DocTree and produces structure-aware chunks.
func ChunkTree(tree *doctree.DocTree, cfg Config) []doctree.Chunk {
	w := &walker{cfg: cfg.normalize()}
	w.walkNode(&doctree.DocNode{Children: tree.Children}, nil)
	return w.chunks
}

// walkNode visits a node, grouping its text with untitled leaf children into
// one section and recursing into titled children and tables.
func (w *walker) walkNode(node *doctree.DocNode, breadcrumb []string) {
	bc := copyBreadcrumb(breadcrumb)
	if node.Title != "" {
		bc = append(bc, node.Title)
	}

	if node.IsTable() {
		w.emitTable(node, bc)
		return
	}

	var section []unit
	if node.Text != "" {
		section = append(section, unit{text: node.Text, page: node.Page})
	}

	flush := func() {
		if len(section) > 0 {
			w.emitSection(section, bc)
			section = nil
		}
	}

	for _, child := range node.Children {
		if child.Title == "" && len(child.Children) == 0 && !child.IsTable() {
			if strings.TrimSpace(child.Text) != "" {
				section = append(section, unit{text: child.Text, page: child.Page})
			}
			continue
		}
		flush()
		w.walkNode(child, bc)
	}
	flush()
}

func (w *walker) emitSection(segments []unit, bc []string) {
	prefix := headingPrefix(bc, w.cfg.HeadingPrefix)
	budget := w.cfg.ChunkSize
	if prefix != "" {
		budget -= EstimateTokens(prefix) + 1
	}
	if budget < w.cfg.ChunkSize/2 {
		budget = w.cfg.ChunkSize / 2
	}

	var pieces []piece
	if w.cfg.Smart {
		pieces = packUnits(smartUnits(segments, budget), budget, w.cfg.ChunkOverlap)
	} else {
		pieces = windowPieces(segments, budget, w.cfg.ChunkOverlap)
	}
	pieces = mergeTail(pieces, budget, w.cfg.MinChunk, w.cfg.ChunkOverlap)

	for _, p := range pieces {
		w.append(prefix+p.text, bc, p.pageStart, p.pageEnd, doctree.ContentText)
	}
}

// emitTable keeps table text together, falling back to row-wise packing when
// the table is larger than a chunk.
func (w *walker) emitTable(node *doctree.DocNode, bc []string) {
	text := strings.TrimSpace(node.Text)
	if text == "" {
		return
	}
	prefix := headingPrefix(bc, w.cfg.HeadingPrefix)
	if EstimateTokens(text) <= w.cfg.ChunkSize {
		w.append(prefix+text, bc, node.Page, node.Page, doctree.ContentTable)
		return
	}
	var rows []unit
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			rows = append(rows, unit{text: line, sep: "\n", page: node.Page})
		}
	}
	for _, p := range packUnits(hardSplit(rows, w.cfg.ChunkSize), w.cfg.ChunkSize, 0) {
		w.append(prefix+p.text, bc, node.Page, node.Page, doctree.ContentTable)
	}
}

func (w *walker) append(text string, bc []string, pageStart, pageEnd int, kind doctree.ContentType) {
	w.chunks = append(w.chunks, doctree.Chunk{
		Text:        text,
		Index:       len(w.chunks),
		Tokens:      EstimateTokens(text),
		Breadcrumb:  copyBreadcrumb(bc),
		PageStart:   pageStart,
		PageEnd:     pageEnd,
		ContentType: kind,
	})
}

// smartUnits breaks section text into paragraphs, splitting any paragraph
// over budget into sentences and any sentence over budget into word runs.
func smartUnits(segments []unit, budget int) []unit {
	var units []unit
	for _, seg := range segments {
		for _, para := range splitByParagraphs(seg.text) {
			if EstimateTokens(para) <= budget {
				units = append(units, unit{text: para, sep: "\n\n", page: seg.page})
				continue
			}
			var sents []unit
			for _, s := range splitSentences(para) {
				sents = append(sents, unit{text: s, sep: " ", page: seg.page})
			}
			units = append(units, hardSplit(sents, budget)...)
		}
	}
	return units
}

// hardSplit cuts units that are still over budget into word runs.
func hardSplit(units []unit, budget int) []unit {
	maxWords := wordsForTokens(budget)
	if maxWords < 1 {
		maxWords = 1
	}
	var out []unit
	for _, u := range units {
		if EstimateTokens(u.text) <= budget {
			out = append(out, u)
			continue
		}
		words := strings.Fields(u.text)
		for i := 0; i < len(words); i += maxWords {
			end := min(i+maxWords, len(words))
			out = append(out, unit{text: strings.Join(words[i:end], " "), sep: " ", page: u.page})
		}
	}
	return out
}

// packUnits greedily fills chunks up to budget, seeding each new chunk with
// an overlap tail from the previous one.
func packUnits(units []unit, budget, overlapTokens int) []piece {
	var (
		result    []piece
		current   strings.Builder
		fresh     strings.Builder
		curWords  int
		pageStart int
		pageEnd   int
		hasFresh  bool
	)

	emit := func() {
		result = append(result, piece{
			text:      current.String(),
			fresh:     fresh.String(),
			pageStart: pageStart,
			pageEnd:   pageEnd,
		})
	}

	for _, u := range units {
		uWords := len(strings.Fields(u.text))

		if hasFresh && wordTokens(curWords+uWords) > budget {
			emit()
			overlap := getOverlapText(current.String(), min(overlapTokens, budget-wordTokens(uWords)))
			current.Reset()
			fresh.Reset()
			curWords = 0
			hasFresh = false
			pageStart = pageEnd
			if overlap != "" {
				current.WriteString(overlap)
				curWords = len(strings.Fields(overlap))
			}
		}

		if current.Len() > 0 {
			current.WriteString(u.sep)
		} else {
			pageStart = u.page
		}
		if fresh.Len() > 0 {
			fresh.WriteString(u.sep)
		}
		current.WriteString(u.text)
		fresh.WriteString(u.text)
		curWords += uWords
		pageEnd = u.page
		hasFresh = true
	}

	if hasFresh {
		emit()
	}
	return result
}

// windowPieces emits a fixed sliding word window over the section.
func windowPieces(segments []unit, budget, overlapTokens int) []piece {
	var words []string
	var pages []int
	for _, seg := range segments {
		for _, wd := range strings.Fields(seg.text) {
			words = append(words, wd)
			pages = append(pages, seg.page)
		}
	}
	if len(words) == 0 {
		return nil
	}

	size := max(wordsForTokens(budget), 1)
	overlap := wordsForTokens(overlapTokens)
	step := size - overlap
	if step < 1 {
		step = 1
	}

	var result []piece
	for start := 0; start < len(words); start += step {
		end := min(start+size, len(words))
		freshStart := start
		if start > 0 {
			freshStart = min(start+overlap, end)
		}
		result = append(result, piece{
			text:      strings.Join(words[start:end], " "),
			fresh:     strings.Join(words[freshStart:end], " "),
			pageStart: pages[start],
			pageEnd:   pages[end-1],
		})
		if end == len(words) {
			break
		}
	}
	return result
}

// mergeTail folds an undersized final piece into its predecessor, or splits
// the pair into two halves when the merge would not fit.
func mergeTail(pieces []piece, budget, minTokens, overlapTokens int) []piece {
	n := len(pieces)
	if n < 2 || EstimateTokens(pieces[n-1].text) >= minTokens {
		return pieces
	}
	prev, last := pieces[n-2], pieces[n-1]
	merged := strings.TrimSpace(prev.text + " " + last.fresh)
	if last.fresh == "" {
		return pieces[:n-1]
	}
	if EstimateTokens(merged) <= budget {
		prev.text = merged
		prev.pageEnd = last.pageEnd
		return append(pieces[:n-2], prev)
	}

	words := strings.Fields(merged)
	mid := len(words) / 2
	ow := min(wordsForTokens(overlapTokens), mid/2)
	first := piece{
		text:      strings.Join(words[:mid], " "),
		pageStart: prev.pageStart,
		pageEnd:   prev.pageEnd,
	}
	second := piece{
		text:      strings.Join(words[mid-ow:], " "),
		fresh:     strings.Join(words[mid:], " "),
		pageStart: prev.pageEnd,
		pageEnd:   last.pageEnd,
	}
	return append(pieces[:n-2], first, second)
}

// splitByParagraphs splits on double-newlines.
func splitByParagraphs(text string) []string {
	parts := strings.Split(text, "\n\n")
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// splitSentences does basic sentence splitting.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for i, r := range text {
		current.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') && i+1 < len(text) && (text[i+1] == ' ' || text[i+1] == '\n') {
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}

	return sentences
}

// getOverlapText extracts the last N tokens worth of text for overlap.
func getOverlapText(text string, targetTokens int) string {
	words := strings.Fields(text)
	targetWords := wordsForTokens(targetTokens)
	if targetWords <= 0 || len(words) <= targetWords {
		return ""
	}
	return strings.Join(words[len(words)-targetWords:], " ")
}

// headingPrefix renders the breadcrumb as "Section: A. Subsection: B. ".
func headingPrefix(bc []string, enabled bool) string {
	if !enabled || len(bc) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Section: " + strings.TrimSuffix(bc[0], ".") + ". ")
	if len(bc) > 1 {
		b.WriteString("Subsection: " + strings.TrimSuffix(bc[len(bc)-1], ".") + ". ")
	}
	return b.String()
}

func copyBreadcrumb(bc []string) []string {
	if len(bc) == 0 {
		return nil
	}
	out := make([]string, len(bc))
	copy(out, bc)
	return out
}
