package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Chat roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatSession is a conversation owned by one user.
type ChatSession struct {
	ID           string        `db:"id" json:"id"`
	UserID       string        `db:"user_id" json:"user_id"`
	Title        string        `db:"title" json:"title"`
	IsActive     bool          `db:"is_active" json:"is_active"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updated_at"`
	MessageCount int           `db:"message_count" json:"message_count"`
	Messages     []ChatMessage `db:"-" json:"messages,omitempty"`
}

// ChatMessage is one turn. ContextUsed lists the chunk ids an assistant
// answer was grounded on.
type ChatMessage struct {
	ID          string     `db:"id" json:"id"`
	SessionID   string     `db:"session_id" json:"session_id"`
	Role        string     `db:"role" json:"role"`
	Content     string     `db:"content" json:"content"`
	ContextUsed StringList `db:"context_used" json:"context_used,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

const sessionSelect = `
	SELECT s.id, s.user_id, s.title, s.is_active, s.created_at, s.updated_at,
		(SELECT COUNT(*) FROM chat_messages m WHERE m.session_id = s.id) AS message_count
	FROM chat_sessions s`

func (s *Store) CreateSession(ctx context.Context, sess *ChatSession) error {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	t := now()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = t
	}
	if sess.UpdatedAt.IsZero() {
		sess.UpdatedAt = sess.CreatedAt
	}
	sess.IsActive = true
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO chat_sessions (id, user_id, title, is_active, created_at, updated_at)
		VALUES (:id, :user_id, :title, :is_active, :created_at, :updated_at)`, sess)
	if err != nil {
		return dbError("create session", err)
	}
	return nil
}

// GetSession returns an active session of userID with its messages in order.
func (s *Store) GetSession(ctx context.Context, userID, id string) (*ChatSession, error) {
	var sess ChatSession
	err := s.db.GetContext(ctx, &sess, sessionSelect+` WHERE s.id = ? AND s.user_id = ? AND s.is_active = 1`, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("chat session")
	}
	if err != nil {
		return nil, dbError("get session", err)
	}
	msgs, err := s.ListMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.Messages = msgs
	return &sess, nil
}

// ListSessions returns active sessions, most recently updated first.
func (s *Store) ListSessions(ctx context.Context, userID string, limit, offset int) ([]ChatSession, error) {
	if limit <= 0 {
		limit = -1
	}
	sessions := []ChatSession{}
	err := s.db.SelectContext(ctx, &sessions,
		sessionSelect+` WHERE s.user_id = ? AND s.is_active = 1 ORDER BY s.updated_at DESC, s.id LIMIT ? OFFSET ?`,
		userID, limit, offset)
	if err != nil {
		return nil, dbError("list sessions", err)
	}
	return sessions, nil
}

func (s *Store) RenameSession(ctx context.Context, userID, id, title string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE chat_sessions SET title = ?, updated_at = ?
		WHERE id = ? AND user_id = ? AND is_active = 1`, title, now(), id, userID)
	if err != nil {
		return dbError("rename session", err)
	}
	return expectRow(res, "chat session")
}

// DeactivateSession hides a session; its messages are kept.
func (s *Store) DeactivateSession(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE chat_sessions SET is_active = 0, updated_at = ?
		WHERE id = ? AND user_id = ? AND is_active = 1`, now(), id, userID)
	if err != nil {
		return dbError("delete session", err)
	}
	return expectRow(res, "chat session")
}

// AddMessage appends msg and bumps the session's updated_at in one
// transaction.
func (s *Store) AddMessage(ctx context.Context, msg *ChatMessage) error {
	return s.addMessages(ctx, msg)
}

// AddExchange stores a question and its reply together, so a session never
// holds a question whose answer failed.
func (s *Store) AddExchange(ctx context.Context, question, reply *ChatMessage) error {
	return s.addMessages(ctx, question, reply)
}

func (s *Store) addMessages(ctx context.Context, msgs ...*ChatMessage) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return dbError("begin transaction", err)
	}
	defer tx.Rollback()

	var last time.Time
	for _, msg := range msgs {
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = now()
		}
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO chat_messages (id, session_id, role, content, context_used, created_at)
			VALUES (:id, :session_id, :role, :content, :context_used, :created_at)`, msg); err != nil {
			return dbError("add message", err)
		}
		last = msg.CreatedAt
	}
	res, err := tx.ExecContext(ctx, `UPDATE chat_sessions SET updated_at = ? WHERE id = ?`, last, msgs[0].SessionID)
	if err != nil {
		return dbError("touch session", err)
	}
	if err := expectRow(res, "chat session"); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit messages: %w", err)
	}
	return nil
}

// SetTitleIfDefault replaces the title only while it still equals def.
func (s *Store) SetTitleIfDefault(ctx context.Context, id, def, title string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE chat_sessions SET title = ? WHERE id = ? AND title = ?`, title, id, def)
	if err != nil {
		return dbError("set session title", err)
	}
	return nil
}

func (s *Store) ListMessages(ctx context.Context, sessionID string) ([]ChatMessage, error) {
	msgs := []ChatMessage{}
	err := s.db.SelectContext(ctx, &msgs, `
		SELECT id, session_id, role, content, context_used, created_at
		FROM chat_messages WHERE session_id = ? ORDER BY created_at, rowid`, sessionID)
	if err != nil {
		return nil, dbError("list messages", err)
	}
	return msgs, nil
}
