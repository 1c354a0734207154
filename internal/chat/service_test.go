package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/ragassist/internal/apperr"
	"github.com/dgallion1/ragassist/internal/llm"
	"github.com/dgallion1/ragassist/internal/retrieval"
	"github.com/dgallion1/ragassist/internal/store"
	"github.com/dgallion1/ragassist/internal/vectorstore"
)

type fakeRetriever struct {
	window retrieval.Context
	err    error
	asked  []string
}

func (f *fakeRetriever) Context(_ context.Context, question, _ string) (retrieval.Context, error) {
	f.asked = append(f.asked, question)
	return f.window, f.err
}

type fakeGenerator struct {
	answer  string
	err     error
	prompts []llm.Prompt
}

func (f *fakeGenerator) Generate(_ context.Context, p llm.Prompt) (string, error) {
	f.prompts = append(f.prompts, p)
	return f.answer, f.err
}

type fixture struct {
	svc   *Service
	store *store.Store
	ret   *fakeRetriever
	gen   *fakeGenerator
	user  *store.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	u := &store.User{Username: "alice", PasswordHash: "x", IsActive: true}
	require.NoError(t, st.CreateUser(context.Background(), u))

	ret := &fakeRetriever{}
	gen := &fakeGenerator{answer: "Paris."}
	return &fixture{svc: NewService(st, ret, gen, nil), store: st, ret: ret, gen: gen, user: u}
}

func sampleWindow() retrieval.Context {
	long := strings.Repeat("x", 250)
	results := []retrieval.Result{
		{ChunkID: "c1", Text: "The capital of France is Paris.", Score: 0.9, Metadata: vectorstore.Metadata{Source: "geo.pdf", Page: 2}},
		{ChunkID: "c2", Text: long, Score: 0.8, Metadata: vectorstore.Metadata{Source: "geo.pdf", Page: 3}},
		{ChunkID: "c3", Text: "third", Score: 0.75},
		{ChunkID: "c4", Text: "fourth", Score: 0.7},
	}
	return retrieval.Context{Results: results, Text: "### geo.pdf\n...", ChunkIDs: []string{"c1", "c2", "c3", "c4"}}
}

func TestAskWithContext(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.ret.window = sampleWindow()

	sess, err := f.svc.CreateSession(ctx, f.user.ID, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultTitle, sess.Title)

	ans, err := f.svc.Ask(ctx, f.user.ID, sess.ID, "  What is the capital of France?  ")
	require.NoError(t, err)
	assert.Equal(t, "Paris.", ans.Message.Content)
	assert.True(t, ans.ContextUsed)
	assert.Equal(t, "What is the capital of France?", ans.Title)

	require.Len(t, f.gen.prompts, 1)
	assert.Equal(t, "### geo.pdf\n...", f.gen.prompts[0].Context)
	assert.Equal(t, "What is the capital of France?", f.gen.prompts[0].Question)

	require.Len(t, ans.Sources, 3)
	assert.Equal(t, "geo.pdf", ans.Sources[0].Source)
	assert.Equal(t, 2, ans.Sources[0].Page)
	assert.Equal(t, strings.Repeat("x", 200)+"...", ans.Sources[1].Excerpt)
	assert.Equal(t, "Unknown", ans.Sources[2].Source)

	got, err := f.svc.GetSession(ctx, f.user.ID, sess.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, store.RoleUser, got.Messages[0].Role)
	assert.Equal(t, store.RoleAssistant, got.Messages[1].Role)
	assert.Equal(t, store.StringList{"c1", "c2", "c3", "c4"}, got.Messages[1].ContextUsed)
	assert.Equal(t, "What is the capital of France?", got.Title)

	// Only the first question names the session.
	_, err = f.svc.Ask(ctx, f.user.ID, sess.ID, "And of Spain?")
	require.NoError(t, err)
	got, err = f.svc.GetSession(ctx, f.user.ID, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "What is the capital of France?", got.Title)
	assert.Len(t, got.Messages, 4)
}

func TestAskWithoutContextSkipsModel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sess, err := f.svc.CreateSession(ctx, f.user.ID, "Research")
	require.NoError(t, err)

	ans, err := f.svc.Ask(ctx, f.user.ID, sess.ID, "anything?")
	require.NoError(t, err)
	assert.Equal(t, llm.NoContextReply, ans.Message.Content)
	assert.False(t, ans.ContextUsed)
	assert.Empty(t, ans.Sources)
	assert.Empty(t, f.gen.prompts)
	assert.Equal(t, "Research", ans.Title)
}

func TestAskErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sess, err := f.svc.CreateSession(ctx, f.user.ID, "")
	require.NoError(t, err)

	_, err = f.svc.Ask(ctx, f.user.ID, sess.ID, "   ")
	assert.True(t, apperr.Is(err, apperr.Validation))

	_, err = f.svc.Ask(ctx, f.user.ID, "missing", "hello")
	assert.True(t, apperr.Is(err, apperr.NotFound))

	_, err = f.svc.Ask(ctx, "someone-else", sess.ID, "hello")
	assert.True(t, apperr.Is(err, apperr.NotFound))

	f.ret.window = sampleWindow()
	f.gen.err = apperr.New(apperr.LLM, "language model request failed")
	_, err = f.svc.Ask(ctx, f.user.ID, sess.ID, "hello")
	assert.True(t, apperr.Is(err, apperr.LLM))

	f.ret.err = errors.New("qdrant down")
	_, err = f.svc.Ask(ctx, f.user.ID, sess.ID, "hello")
	assert.ErrorContains(t, err, "qdrant down")

	// Failed turns leave no unanswered question and keep the title free.
	got, err := f.svc.GetSession(ctx, f.user.ID, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Messages)
	assert.Equal(t, DefaultTitle, got.Title)

	f.ret.err, f.gen.err = nil, nil
	ans, err := f.svc.Ask(ctx, f.user.ID, sess.ID, "What is the capital?")
	require.NoError(t, err)
	assert.Equal(t, "What is the capital?", ans.Title)
	got, err = f.svc.GetSession(ctx, f.user.ID, sess.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, store.RoleUser, got.Messages[0].Role)
	assert.Equal(t, "Paris.", got.Messages[1].Content)
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	a, err := f.svc.CreateSession(ctx, f.user.ID, "A")
	require.NoError(t, err)
	_, err = f.svc.CreateSession(ctx, f.user.ID, "B")
	require.NoError(t, err)

	renamed, err := f.svc.RenameSession(ctx, f.user.ID, a.ID, "  Alpha ")
	require.NoError(t, err)
	assert.Equal(t, "Alpha", renamed.Title)

	list, err := f.svc.ListSessions(ctx, f.user.ID, 0, -5)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Alpha", list[0].Title)

	require.NoError(t, f.svc.DeleteSession(ctx, f.user.ID, a.ID))
	list, err = f.svc.ListSessions(ctx, f.user.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "B", list[0].Title)

	assert.True(t, apperr.Is(f.svc.DeleteSession(ctx, f.user.ID, a.ID), apperr.NotFound))
	_, err = f.svc.RenameSession(ctx, f.user.ID, a.ID, "x")
	assert.True(t, apperr.Is(err, apperr.NotFound))
}
