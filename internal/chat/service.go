// Package chat runs question answering sessions over the user's documents.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/ragassist/internal/llm"
	"github.com/dgallion1/ragassist/internal/retrieval"
	"github.com/dgallion1/ragassist/internal/store"
)

const (
	maxSources = 3
	excerptLen = 200
)

// Sessions is the persistence chat needs.
type Sessions interface {
	CreateSession(ctx context.Context, s *store.ChatSession) error
	GetSession(ctx context.Context, userID, id string) (*store.ChatSession, error)
	ListSessions(ctx context.Context, userID string, limit, offset int) ([]store.ChatSession, error)
	RenameSession(ctx context.Context, userID, id, title string) error
	DeactivateSession(ctx context.Context, userID, id string) error
	AddExchange(ctx context.Context, question, reply *store.ChatMessage) error
	SetTitleIfDefault(ctx context.Context, id, def, title string) error
}

// ContextRetriever assembles a context window for a question.
type ContextRetriever interface {
	Context(ctx context.Context, question, userID string) (retrieval.Context, error)
}

// Source is a chunk cited with an answer.
type Source struct {
	ChunkID string  `json:"chunk_id"`
	Source  string  `json:"source"`
	Page    int     `json:"page,omitempty"`
	Score   float64 `json:"score"`
	Excerpt string  `json:"excerpt"`
}

// Answer is the result of Ask.
type Answer struct {
	Message     store.ChatMessage `json:"message"`
	Sources     []Source          `json:"sources"`
	ContextUsed bool              `json:"context_used"`
	Title       string            `json:"session_title"`
}

type Service struct {
	sessions  Sessions
	retriever ContextRetriever
	gen       llm.Generator
	log       *slog.Logger
}

// NewService creates the chat service.
func NewService(sessions Sessions, retriever ContextRetriever, gen llm.Generator, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		sessions:  sessions,
		retriever: retriever,
		gen:       gen,
		log:       log.With("component", "chat"),
	}
}

func (s *Service) CreateSession(ctx context.Context, userID, title string) (*store.ChatSession, error) {
	title, err := ValidateTitle(title)
	if err != nil {
		return nil, err
	}
	sess := &store.ChatSession{UserID: userID, Title: title}
	if err := s.sessions.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	sess.Messages = []store.ChatMessage{}
	s.log.Info("chat session created", "session_id", sess.ID, "user_id", userID)
	return sess, nil
}

// ListSessions pages through active sessions, most recent first.
func (s *Service) ListSessions(ctx context.Context, userID string, limit, offset int) ([]store.ChatSession, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.sessions.ListSessions(ctx, userID, limit, offset)
}

func (s *Service) GetSession(ctx context.Context, userID, id string) (*store.ChatSession, error) {
	return s.sessions.GetSession(ctx, userID, id)
}

func (s *Service) RenameSession(ctx context.Context, userID, id, title string) (*store.ChatSession, error) {
	title, err := ValidateTitle(title)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.RenameSession(ctx, userID, id, title); err != nil {
		return nil, err
	}
	return s.sessions.GetSession(ctx, userID, id)
}

// DeleteSession deactivates the session. Its history stays in the store.
func (s *Service) DeleteSession(ctx context.Context, userID, id string) error {
	if err := s.sessions.DeactivateSession(ctx, userID, id); err != nil {
		return err
	}
	s.log.Info("chat session deleted", "session_id", id, "user_id", userID)
	return nil
}

// Ask answers a question from the user's documents and records the
// question with its answer. Nothing is recorded when retrieval or
// generation fails.
func (s *Service) Ask(ctx context.Context, userID, sessionID, question string) (*Answer, error) {
	start := time.Now()
	question, err := ValidateMessage(store.RoleUser, question)
	if err != nil {
		return nil, err
	}
	sess, err := s.sessions.GetSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	asked := &store.ChatMessage{
		SessionID: sessionID,
		Role:      store.RoleUser,
		Content:   question,
		CreatedAt: start.UTC(),
	}

	window, err := s.retriever.Context(ctx, question, userID)
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}

	answer := llm.NoContextReply
	if !window.Empty() {
		answer, err = s.gen.Generate(ctx, llm.Prompt{Context: window.Text, Question: question})
		if err != nil {
			return nil, err
		}
	}

	reply := &store.ChatMessage{
		SessionID:   sessionID,
		Role:        store.RoleAssistant,
		Content:     answer,
		ContextUsed: store.StringList(window.ChunkIDs),
	}
	if err := s.sessions.AddExchange(ctx, asked, reply); err != nil {
		return nil, err
	}

	title := sess.Title
	if len(sess.Messages) == 0 && sess.Title == DefaultTitle {
		title = autoTitle(question)
		if err := s.sessions.SetTitleIfDefault(ctx, sessionID, DefaultTitle, title); err != nil {
			s.log.Warn("auto title failed", "session_id", sessionID, "error", err)
			title = sess.Title
		}
	}

	s.log.Info("question answered",
		"session_id", sessionID,
		"user_id", userID,
		"context_chunks", len(window.Results),
		"duration_ms", time.Since(start).Milliseconds())

	return &Answer{
		Message:     *reply,
		Sources:     sources(window.Results),
		ContextUsed: !window.Empty(),
		Title:       title,
	}, nil
}

func sources(results []retrieval.Result) []Source {
	out := []Source{}
	for _, r := range results {
		if len(out) == maxSources {
			break
		}
		name := r.Metadata.Source
		if name == "" {
			name = "Unknown"
		}
		out = append(out, Source{
			ChunkID: r.ChunkID,
			Source:  name,
			Page:    r.Metadata.Page,
			Score:   r.Score,
			Excerpt: truncate(r.Text, excerptLen),
		})
	}
	return out
}
