package parser

import (
	"strings"

	"github.com/dgallion1/ragassist/internal/doctree"
)

// sectionBuilder nests headings by level and attaches body text to the most
// recent heading. Text seen before the first heading stays on the root.
type sectionBuilder struct {
	root  *doctree.DocNode
	stack []stackEntry
	text  strings.Builder

	inList bool
}

type stackEntry struct {
	node  *doctree.DocNode
	level int
}

func newSectionBuilder() *sectionBuilder {
	root := &doctree.DocNode{}
	return &sectionBuilder{root: root, stack: []stackEntry{{node: root}}}
}

func (b *sectionBuilder) heading(level int, title string) {
	b.flush()
	n := &doctree.DocNode{Title: title}
	for len(b.stack) > 1 && b.stack[len(b.stack)-1].level >= level {
		b.stack = b.stack[:len(b.stack)-1]
	}
	parent := b.stack[len(b.stack)-1].node
	parent.Children = append(parent.Children, n)
	b.stack = append(b.stack, stackEntry{node: n, level: level})
}

func (b *sectionBuilder) paragraph(t string) {
	t = strings.TrimSpace(t)
	if t == "" {
		return
	}
	b.inList = false
	if b.text.Len() > 0 {
		b.text.WriteString("\n\n")
	}
	b.text.WriteString(t)
}

// listItem adds a bullet line. Consecutive items stay in one paragraph.
func (b *sectionBuilder) listItem(t string) {
	t = strings.TrimSpace(t)
	if t == "" {
		return
	}
	if b.text.Len() > 0 {
		if b.inList {
			b.text.WriteString("\n")
		} else {
			b.text.WriteString("\n\n")
		}
	}
	b.text.WriteString("- " + t)
	b.inList = true
}

// table attaches a table node under the current heading.
func (b *sectionBuilder) table(t string) {
	t = strings.TrimSpace(t)
	if t == "" {
		return
	}
	b.flush()
	top := b.stack[len(b.stack)-1].node
	top.Children = append(top.Children, &doctree.DocNode{Text: t, Kind: doctree.ContentTable})
}

func (b *sectionBuilder) flush() {
	b.inList = false
	t := strings.TrimSpace(b.text.String())
	b.text.Reset()
	if t == "" {
		return
	}
	top := b.stack[len(b.stack)-1].node
	if top.Text != "" {
		top.Text += "\n\n" + t
	} else {
		top.Text = t
	}
}

// finish returns the top-level sections, keeping any preamble text as an
// untitled leading node.
func (b *sectionBuilder) finish() []*doctree.DocNode {
	b.flush()
	children := b.root.Children
	if b.root.Text != "" {
		children = append([]*doctree.DocNode{{Text: b.root.Text}}, children...)
	}
	return children
}
