package llm

import "strings"

// Prompt is one generation request.
type Prompt struct {
	System   string // overrides the configured system prompt when set
	Context  string
	Question string
}

// NoContextReply is returned instead of calling the model when retrieval
// found nothing relevant.
const NoContextReply = "I could not find relevant information in your documents to answer this question. " +
	"Try rephrasing it or upload documents that cover the topic."

// UserMessage joins context and question the way the model sees them.
func (p Prompt) UserMessage() string {
	ctx := strings.TrimSpace(p.Context)
	if ctx == "" {
		return p.Question
	}
	return ctx + "\n\n" + p.Question
}
