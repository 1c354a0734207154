package chat

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/ragassist/internal/apperr"
	"github.com/dgallion1/ragassist/internal/store"
)

const (
	MaxMessageLen = 10000
	maxTitleLen   = 200
	autoTitleLen  = 50
	// DefaultTitle names sessions created without a title until their first
	// question renames them.
	DefaultTitle = "New Chat"
)

var injectionPattern = regexp.MustCompile(
	`(?i)(ignore\s+(all\s+)?(previous|prior|above)\s+(instructions|prompts?|rules)|` +
		`disregard\s+(all\s+)?(previous|prior|above)|system\s*prompt|you\s+are\s+now\s+|` +
		`forget\s+(everything|all)\s|new\s+instructions\s*:)`,
)

// ValidateMessage checks role and content and returns the trimmed content.
func ValidateMessage(role, content string) (string, error) {
	if role != store.RoleUser && role != store.RoleAssistant {
		return "", apperr.New(apperr.Validation, `role must be either "user" or "assistant"`)
	}
	content = strings.TrimSpace(strings.ReplaceAll(content, "\x00", ""))
	if content == "" {
		return "", apperr.New(apperr.Validation, "message content cannot be empty")
	}
	if n := utf8.RuneCountInString(content); n > MaxMessageLen {
		return "", apperr.New(apperr.Validation, "message is too long (%d characters, max %d)", n, MaxMessageLen).
			WithDetail("max_length", MaxMessageLen)
	}
	if role == store.RoleUser && injectionPattern.MatchString(content) {
		return "", apperr.New(apperr.Validation, "message contains disallowed instructions")
	}
	return content, nil
}

// ValidateTitle trims a session title; empty falls back to DefaultTitle.
func ValidateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return DefaultTitle, nil
	}
	if utf8.RuneCountInString(title) > maxTitleLen {
		return "", apperr.New(apperr.Validation, "title must be at most %d characters", maxTitleLen)
	}
	return title, nil
}

// autoTitle derives a session title from the first question.
func autoTitle(question string) string {
	question = strings.Join(strings.Fields(question), " ")
	return truncate(question, autoTitleLen)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n])) + "..."
}
