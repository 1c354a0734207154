package parser

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/dgallion1/ragassist/internal/doctree"
)

// HTMLParser keeps the readable body of a page: headings become sections,
// block elements become paragraphs and tables become "cell | cell" rows.
// Page chrome and non-text elements are skipped.
type HTMLParser struct{}

var skippedElements = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Noscript: true, atom.Template: true,
	atom.Nav: true, atom.Header: true, atom.Footer: true, atom.Aside: true,
	atom.Form: true, atom.Svg: true, atom.Iframe: true,
}

var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Blockquote: true, atom.Pre: true,
	atom.Dd: true, atom.Dt: true, atom.Figcaption: true, atom.Caption: true,
}

var headingLevels = map[atom.Atom]int{
	atom.H1: 1, atom.H2: 2, atom.H3: 3, atom.H4: 4, atom.H5: 5, atom.H6: 6,
}

func (p *HTMLParser) Parse(r io.Reader, filename string) (*doctree.DocTree, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	tree := &doctree.DocTree{Title: strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))}
	if title := textContent(find(doc, atom.Title)); title != "" {
		tree.Title = title
	}

	b := newSectionBuilder()
	// loose collects text that sits directly inside containers such as
	// <div> until the next block boundary.
	var loose strings.Builder
	flushLoose := func() {
		b.paragraph(collapseSpace(loose.String()))
		loose.Reset()
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			loose.WriteString(n.Data)
			loose.WriteByte(' ')
			return
		case html.ElementNode:
			if skippedElements[n.DataAtom] {
				return
			}
			if level, ok := headingLevels[n.DataAtom]; ok {
				flushLoose()
				b.heading(level, textContent(n))
				return
			}
			switch {
			case n.DataAtom == atom.Table:
				flushLoose()
				b.table(htmlTableText(n))
				return
			case n.DataAtom == atom.Li:
				flushLoose()
				b.listItem(textContent(n))
				return
			case n.DataAtom == atom.Br:
				loose.WriteByte('\n')
				return
			case blockElements[n.DataAtom]:
				flushLoose()
				b.paragraph(textContent(n))
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.Div {
			flushLoose()
		}
	}

	root := find(doc, atom.Body)
	if root == nil {
		root = doc
	}
	walk(root)
	flushLoose()
	tree.Children = b.finish()
	return tree, nil
}

// htmlTableText renders each <tr> as one "cell | cell" line.
func htmlTableText(table *html.Node) string {
	var buf strings.Builder
	var rows func(*html.Node)
	rows = func(n *html.Node) {
		if n.DataAtom == atom.Tr {
			var cells []string
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.DataAtom == atom.Td || c.DataAtom == atom.Th {
					cells = append(cells, textContent(c))
				}
			}
			if len(cells) > 0 {
				buf.WriteString(strings.Join(cells, " | "))
				buf.WriteByte('\n')
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			rows(c)
		}
	}
	rows(table)
	return buf.String()
}

// textContent is the whitespace-collapsed text under n, empty for nil.
func textContent(n *html.Node) string {
	if n == nil {
		return ""
	}
	var buf strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.ElementNode && skippedElements[n.DataAtom] {
			return
		}
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
			buf.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return collapseSpace(buf.String())
}

// find returns the first element with the given tag in document order.
func find(n *html.Node, tag atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if f := find(c, tag); f != nil {
			return f
		}
	}
	return nil
}

// collapseSpace joins runs of spaces and tabs but keeps line breaks.
func collapseSpace(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = strings.Join(strings.Fields(l), " "); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
