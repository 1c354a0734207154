package parser

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fumiama/go-docx"

	"github.com/dgallion1/ragassist/internal/doctree"
)

// DOCXParser reads Word documents. Heading styles open sections, the Title
// style names the document, list paragraphs become "- " items and tables
// become table nodes.
type DOCXParser struct{}

func (p *DOCXParser) Parse(r io.Reader, filename string) (*doctree.DocTree, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read docx: %w", err)
	}
	doc, err := docx.Parse(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("parse docx: %w", err)
	}

	tree := &doctree.DocTree{
		Title: strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename)),
	}
	titled := false

	b := newSectionBuilder()
	for _, item := range doc.Document.Body.Items {
		switch it := item.(type) {
		case *docx.Paragraph:
			text := docxParagraphText(it)
			if text == "" {
				continue
			}
			style := docxStyle(it)
			switch {
			case style == "title" && !titled:
				tree.Title, titled = text, true
			case docxHeadingLevel(style) > 0:
				b.heading(docxHeadingLevel(style), text)
			case strings.HasPrefix(style, "list"):
				b.listItem(text)
			default:
				b.paragraph(text)
			}
		case *docx.Table:
			b.table(docxTableText(it))
		}
	}
	tree.Children = b.finish()
	return tree, nil
}

// docxTableText renders each table row as one "cell | cell" line, skipping
// rows with no text.
func docxTableText(t *docx.Table) string {
	var buf strings.Builder
	for _, row := range t.TableRows {
		cells := make([]string, 0, len(row.TableCells))
		empty := true
		for _, cell := range row.TableCells {
			var parts []string
			for _, para := range cell.Paragraphs {
				if s := docxParagraphText(para); s != "" {
					parts = append(parts, s)
				}
			}
			if len(parts) > 0 {
				empty = false
			}
			cells = append(cells, strings.Join(parts, " "))
		}
		if empty {
			continue
		}
		buf.WriteString(strings.Join(cells, " | "))
		buf.WriteByte('\n')
	}
	return buf.String()
}

// docxStyle is the paragraph style id, lowercased without spaces.
func docxStyle(para *docx.Paragraph) string {
	if para.Properties == nil || para.Properties.Style == nil {
		return ""
	}
	return strings.ToLower(strings.ReplaceAll(para.Properties.Style.Val, " ", ""))
}

func docxHeadingLevel(style string) int {
	rest, ok := strings.CutPrefix(style, "heading")
	if !ok {
		return 0
	}
	level, err := strconv.Atoi(rest)
	if err != nil || level < 1 || level > 9 {
		return 0
	}
	return level
}

func docxParagraphText(para *docx.Paragraph) string {
	var buf strings.Builder
	for _, child := range para.Children {
		run, ok := child.(*docx.Run)
		if !ok {
			continue
		}
		for _, rc := range run.Children {
			if t, ok := rc.(*docx.Text); ok {
				buf.WriteString(t.Text)
			}
		}
	}
	return strings.TrimSpace(buf.String())
}
