package doctree

// ContentType classifies the text held by a node or chunk.
type ContentType string

const (
	ContentText  ContentType = "text"
	ContentTable ContentType = "table"
)

// DocTree is the root of a parsed document.
type DocTree struct {
	Title    string     // Document title (from metadata or filename)
	Pages    int        // Page count when the format has pages, 0 otherwise
	Children []*DocNode // Top-level sections
}

// DocNode is a recursive section in the document tree.
type DocNode struct {
	Title    string      // Section heading (empty for leaf text)
	Text     string      // Text content of this node (may be empty for container nodes)
	Page     int         // Source page (0 if N/A)
	Kind     ContentType // Empty means text
	Children []*DocNode  // Subsections
}

// IsTable reports whether the node holds tabular content.
func (n *DocNode) IsTable() bool {
	return n.Kind == ContentTable
}

// PlainText concatenates all text in the tree, depth first.
func (t *DocTree) PlainText() string {
	var out []byte
	var walk func(n *DocNode)
	walk = func(n *DocNode) {
		if n.Text != "" {
			if len(out) > 0 {
				out = append(out, '\n', '\n')
			}
			out = append(out, n.Text...)
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	for _, c := range t.Children {
		walk(c)
	}
	return string(out)
}

// Chunk is a sized text segment with structural context, ready for embedding.
type Chunk struct {
	ID          string      `json:"id"`
	DocumentID  string      `json:"document_id"`
	Source      string      `json:"source"`
	Text        string      `json:"text"`
	Index       int         `json:"chunk_index"`
	Tokens      int         `json:"tokens"`
	Breadcrumb  []string    `json:"breadcrumb,omitempty"` // e.g. ["Financial Results", "Revenue", "Q4"]
	PageStart   int         `json:"page_start"`
	PageEnd     int         `json:"page_end"`
	ContentType ContentType `json:"content_type"`
	Vector      []float32   `json:"-"`
}
