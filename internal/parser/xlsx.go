package parser

import (
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/ragassist/internal/doctree"
	"github.com/xuri/excelize/v2"
)

// XLSXParser handles Excel workbooks. Each sheet becomes a section whose rows
// are grouped into table nodes, with the first row treated as the header.
type XLSXParser struct{}

func (p *XLSXParser) Parse(r io.Reader, filename string) (*doctree.DocTree, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	tree := &doctree.DocTree{
		Title: strings.TrimSuffix(filename, ".xlsx"),
	}

	sheets := f.GetSheetList()
	for i, name := range sheets {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", name, err)
		}
		tables := rowsToTables(rows, csvBatchRows, i+1)
		if len(tables) == 0 {
			continue
		}
		tree.Children = append(tree.Children, &doctree.DocNode{
			Title:    "Sheet: " + name,
			Page:     i + 1,
			Children: tables,
		})
	}
	tree.Pages = len(sheets)

	return tree, nil
}
