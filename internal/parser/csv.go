package parser

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dgallion1/ragassist/internal/doctree"
)

// csvBatchRows is how many data rows go into one table node.
const csvBatchRows = 20

// CSVParser reads delimited text. The delimiter is sniffed from the header
// line among comma, semicolon, tab and pipe.
type CSVParser struct{}

func (p *CSVParser) Parse(r io.Reader, filename string) (*doctree.DocTree, error) {
	br := bufio.NewReader(skipBOM(r))
	header, _ := br.Peek(4096)

	reader := csv.NewReader(br)
	reader.Comma = sniffDelimiter(header)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	tree := &doctree.DocTree{
		Title: strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename)),
	}

	tree.Children = rowsToTables(records, csvBatchRows, 0)
	return tree, nil
}

// sniffDelimiter picks the candidate that occurs most often on the first
// line, outside quotes. Comma wins ties.
func sniffDelimiter(head []byte) rune {
	if i := bytes.IndexByte(head, '\n'); i >= 0 {
		head = head[:i]
	}
	counts := map[rune]int{}
	quoted := false
	for _, c := range string(head) {
		switch c {
		case '"':
			quoted = !quoted
		case ',', ';', '\t', '|':
			if !quoted {
				counts[c]++
			}
		}
	}
	best := ','
	for _, c := range []rune{';', '\t', '|'} {
		if counts[c] > counts[best] {
			best = c
		}
	}
	return best
}

// rowsToTables turns a header row plus data rows into table nodes of at most
// batch rows each, rendering every cell as "header: value".
func rowsToTables(records [][]string, batch, page int) []*doctree.DocNode {
	if len(records) == 0 {
		return nil
	}
	headers := records[0]
	dataRows := records[1:]

	var nodes []*doctree.DocNode
	for i := 0; i < len(dataRows); i += batch {
		end := min(i+batch, len(dataRows))

		var text strings.Builder
		for _, row := range dataRows[i:end] {
			var cells []string
			for j, cell := range row {
				cell = strings.TrimSpace(cell)
				if cell == "" {
					continue
				}
				if j < len(headers) && headers[j] != "" {
					cells = append(cells, headers[j]+": "+cell)
				} else {
					cells = append(cells, cell)
				}
			}
			if len(cells) > 0 {
				text.WriteString(strings.Join(cells, ", "))
				text.WriteString("\n")
			}
		}
		if text.Len() == 0 {
			continue
		}

		nodes = append(nodes, &doctree.DocNode{
			Title: fmt.Sprintf("Rows %d-%d", i+2, end+1), // 1-indexed, skip header
			Text:  text.String(),
			Page:  page,
			Kind:  doctree.ContentTable,
		})
	}
	return nodes
}
