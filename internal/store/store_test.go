package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/ragassist/internal/apperr"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func createUser(t *testing.T, s *Store, name string) *User {
	t.Helper()
	u := &User{Username: name, PasswordHash: "hash", IsActive: true}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func TestOpenFileCreatesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "app.db")
	s, err := Open(path)
	require.NoError(t, err)
	createUser(t, s, "alice")
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	u, err := s.UserByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, u.IsActive)
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	u := createUser(t, s, "alice")
	assert.NotEmpty(t, u.ID)

	err := s.CreateUser(ctx, &User{Username: "alice", PasswordHash: "x"})
	assert.True(t, apperr.Is(err, apperr.Conflict))

	got, err := s.UserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Nil(t, got.LastLogin)
	assert.False(t, got.IsAdmin)

	login := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, s.TouchLogin(ctx, u.ID, login))
	got, err = s.UserByUsername(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, got.LastLogin)
	assert.True(t, login.Equal(*got.LastLogin))

	require.NoError(t, s.SetUserActive(ctx, u.ID, false))
	got, err = s.UserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	_, err = s.UserByUsername(ctx, "bob")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, apperr.Is(err, apperr.NotFound))
	assert.ErrorIs(t, s.SetUserActive(ctx, "missing", true), ErrNotFound)

	createUser(t, s, "bob")
	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestDocuments(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	alice := createUser(t, s, "alice")
	bob := createUser(t, s, "bob")

	d := &Document{UserID: alice.ID, Name: "a.pdf", Format: "pdf", ContentHash: "h1", SizeBytes: 2 << 20}
	require.NoError(t, s.CreateDocument(ctx, d))
	assert.Equal(t, DocProcessing, d.Status)

	// A document still processing already claims its content.
	dup, err := s.DocumentByHash(ctx, alice.ID, "h1")
	require.NoError(t, err)
	assert.Equal(t, d.ID, dup.ID)

	require.NoError(t, s.FinishDocument(ctx, d.ID, DocCompleted, 3, 12, ""))
	dup, err = s.DocumentByHash(ctx, alice.ID, "h1")
	require.NoError(t, err)
	assert.Equal(t, d.ID, dup.ID)
	_, err = s.DocumentByHash(ctx, bob.ID, "h1")
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := s.GetDocument(ctx, alice.ID, d.ID)
	require.NoError(t, err)
	assert.Equal(t, 12, got.ChunkCount)
	assert.Equal(t, 3, got.Pages)

	_, err = s.GetDocument(ctx, bob.ID, d.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	docs, err := s.ListDocuments(ctx, alice.ID)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
	docs, err = s.ListDocuments(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, docs)

	assert.ErrorIs(t, s.DeleteDocument(ctx, bob.ID, d.ID), ErrNotFound)
	require.NoError(t, s.DeleteDocument(ctx, alice.ID, d.ID))
	_, err = s.GetDocument(ctx, alice.ID, d.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDocumentContentIsUniquePerUser(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	alice := createUser(t, s, "alice")
	bob := createUser(t, s, "bob")

	first := &Document{UserID: alice.ID, Name: "a.txt", Format: "txt", ContentHash: "h1"}
	require.NoError(t, s.CreateDocument(ctx, first))

	err := s.CreateDocument(ctx, &Document{UserID: alice.ID, Name: "copy.txt", Format: "txt", ContentHash: "h1"})
	assert.ErrorIs(t, err, ErrDuplicateContent)
	assert.True(t, apperr.Is(err, apperr.Conflict))

	// Other users may hold the same content.
	require.NoError(t, s.CreateDocument(ctx, &Document{UserID: bob.ID, Name: "a.txt", Format: "txt", ContentHash: "h1"}))

	// A failed document releases its content for a retry.
	require.NoError(t, s.FinishDocument(ctx, first.ID, DocFailed, 0, 0, "boom"))
	_, err = s.DocumentByHash(ctx, alice.ID, "h1")
	assert.ErrorIs(t, err, ErrNotFound)
	retry := &Document{UserID: alice.ID, Name: "a.txt", Format: "txt", ContentHash: "h1"}
	require.NoError(t, s.CreateDocument(ctx, retry))
	dup, err := s.DocumentByHash(ctx, alice.ID, "h1")
	require.NoError(t, err)
	assert.Equal(t, retry.ID, dup.ID)
}

func TestAddExchange(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	alice := createUser(t, s, "alice")
	sess := &ChatSession{UserID: alice.ID, Title: "t"}
	require.NoError(t, s.CreateSession(ctx, sess))

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	q := &ChatMessage{SessionID: sess.ID, Role: RoleUser, Content: "q", CreatedAt: at}
	a := &ChatMessage{SessionID: sess.ID, Role: RoleAssistant, Content: "a", ContextUsed: StringList{"c1"}, CreatedAt: at}
	require.NoError(t, s.AddExchange(ctx, q, a))

	msgs, err := s.ListMessages(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, RoleAssistant, msgs[1].Role)
	assert.Equal(t, StringList{"c1"}, msgs[1].ContextUsed)

	// Nothing is stored when the session is gone.
	err = s.AddExchange(ctx,
		&ChatMessage{SessionID: "missing", Role: RoleUser, Content: "q"},
		&ChatMessage{SessionID: "missing", Role: RoleAssistant, Content: "a"})
	require.Error(t, err)
	msgs, err = s.ListMessages(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestChatSessions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	alice := createUser(t, s, "alice")

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	first := &ChatSession{UserID: alice.ID, Title: "first", CreatedAt: base}
	second := &ChatSession{UserID: alice.ID, Title: "second", CreatedAt: base.Add(time.Minute)}
	require.NoError(t, s.CreateSession(ctx, first))
	require.NoError(t, s.CreateSession(ctx, second))

	list, err := s.ListSessions(ctx, alice.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "second", list[0].Title)

	require.NoError(t, s.AddMessage(ctx, &ChatMessage{SessionID: first.ID, Role: RoleUser, Content: "hi", CreatedAt: base.Add(time.Hour)}))
	require.NoError(t, s.AddMessage(ctx, &ChatMessage{
		SessionID: first.ID, Role: RoleAssistant, Content: "hello",
		ContextUsed: StringList{"c1", "c2"}, CreatedAt: base.Add(time.Hour + time.Second),
	}))

	list, err = s.ListSessions(ctx, alice.ID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, "first", list[0].Title)
	assert.Equal(t, 2, list[0].MessageCount)

	list, err = s.ListSessions(ctx, alice.ID, 1, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "second", list[0].Title)

	got, err := s.GetSession(ctx, alice.ID, first.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, RoleUser, got.Messages[0].Role)
	assert.Empty(t, got.Messages[0].ContextUsed)
	assert.Equal(t, StringList{"c1", "c2"}, got.Messages[1].ContextUsed)

	require.NoError(t, s.RenameSession(ctx, alice.ID, first.ID, "renamed"))
	require.NoError(t, s.SetTitleIfDefault(ctx, first.ID, "New Chat", "ignored"))
	got, err = s.GetSession(ctx, alice.ID, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Title)

	require.NoError(t, s.DeactivateSession(ctx, alice.ID, first.ID))
	_, err = s.GetSession(ctx, alice.ID, first.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeactivateSession(ctx, alice.ID, first.ID), ErrNotFound)

	list, err = s.ListSessions(ctx, alice.ID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	err = s.AddMessage(ctx, &ChatMessage{SessionID: "missing", Role: RoleUser, Content: "x"})
	assert.Error(t, err)
}

func TestUserStats(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	alice := createUser(t, s, "alice")

	st, err := s.UserStats(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, UserStats{}, st)

	require.NoError(t, s.CreateDocument(ctx, &Document{UserID: alice.ID, Name: "a", Format: "txt", ContentHash: "1", SizeBytes: 1 << 20, ChunkCount: 4}))
	require.NoError(t, s.CreateDocument(ctx, &Document{UserID: alice.ID, Name: "b", Format: "txt", ContentHash: "2", SizeBytes: 1 << 19, ChunkCount: 6}))
	require.NoError(t, s.CreateSession(ctx, &ChatSession{UserID: alice.ID, Title: "t"}))
	require.NoError(t, s.RecordSearch(ctx, alice.ID))
	require.NoError(t, s.RecordSearch(ctx, alice.ID))

	st, err = s.UserStats(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, st.DocumentsUploaded)
	assert.Equal(t, 10, st.TotalChunks)
	assert.Equal(t, 1, st.ChatSessions)
	assert.Equal(t, 2, st.SearchQueries)
	assert.InDelta(t, 1.5, st.StorageUsedMB, 1e-9)
}
