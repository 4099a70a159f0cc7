package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-go-golems/vizthinker/pkg/cache"
	"github.com/go-go-golems/vizthinker/pkg/events"
	"github.com/go-go-golems/vizthinker/pkg/export"
	"github.com/go-go-golems/vizthinker/pkg/responder"
	"github.com/go-go-golems/vizthinker/pkg/store"
	"github.com/go-go-golems/vizthinker/pkg/tree"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*events.TreeEvent
}

func (r *recordingPublisher) Publish(_ context.Context, e *events.TreeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingPublisher) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	ret := []events.EventType{}
	for _, e := range r.events {
		ret = append(ret, e.Type)
	}
	return ret
}

type fixture struct {
	svc     *ChatService
	store   *store.Store
	cache   *cache.RedisCache
	pub     *recordingPublisher
	redis   *miniredis.Miniredis
	session *tree.Session
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	cfg := store.DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "service.db")
	s, err := store.Open(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(ctx))

	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCache(ctx, cache.RedisConfig{Enabled: true, Address: mr.Addr(), Prefix: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	pub := &recordingPublisher{}
	svc := NewChatService(s,
		WithCache(c),
		WithPublisher(pub),
		WithRegistry(responder.NewRegistry(responder.DefaultConfig(), nil)),
	)

	_, session, err := svc.Signup(ctx, "alice", "pw")
	require.NoError(t, err)
	return &fixture{svc: svc, store: s, cache: c, pub: pub, redis: mr, session: session}
}

func (f *fixture) messagesKey() string {
	return fmt.Sprintf("test:session:%d:messages", f.session.ID)
}

func ptr(id tree.MessageID) *tree.MessageID { return &id }

func TestSignupAndLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Login(ctx, "alice", "pw")
	require.NoError(t, err)
	assert.Equal(t, "alice", res.User.Username)
	assert.Equal(t, []tree.SessionID{f.session.ID}, res.Sessions)
	assert.Equal(t, DefaultSessionTitle, f.session.Title)

	_, err = f.svc.Login(ctx, "alice", "wrong")
	assert.True(t, errors.Is(err, store.ErrInvalidCredentials))

	_, _, err = f.svc.Signup(ctx, "alice", "again")
	assert.True(t, errors.Is(err, tree.ErrConflict))
}

func TestChatBuildsOnPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	root, err := f.svc.Chat(ctx, ChatRequest{SessionID: f.session.ID, Prompt: " hello "})
	require.NoError(t, err)
	assert.Equal(t, "echo: hello", root.Response)

	child, err := f.svc.Chat(ctx, ChatRequest{SessionID: f.session.ID, Prompt: "more", ParentID: ptr(root.RecordID)})
	require.NoError(t, err)
	assert.Equal(t, "echo: more (after 1 exchanges)", child.Response)

	branch, err := f.svc.Chat(ctx, ChatRequest{
		SessionID: f.session.ID,
		Prompt:    "other",
		ParentID:  ptr(root.RecordID),
		IsBranch:  true,
		Position:  json.RawMessage(`{"x":10,"y":20}`),
	})
	require.NoError(t, err)

	msgs, err := f.svc.GetMessages(ctx, f.session.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	last := msgs[2]
	assert.Equal(t, branch.RecordID, last.ID)
	assert.True(t, last.IsBranch)
	require.NotNil(t, last.Position)
	assert.Equal(t, tree.Position{X: 10, Y: 20}, *last.Position)

	path, err := f.svc.ResolvePath(ctx, child.RecordID)
	require.NoError(t, err)
	assert.Equal(t, []tree.Exchange{
		{Prompt: "hello", Response: "echo: hello"},
		{Prompt: "more", Response: "echo: more (after 1 exchanges)"},
	}, path)

	assert.Equal(t, []events.EventType{
		events.EventMessageCreated, events.EventMessageCreated, events.EventMessageCreated,
	}, f.pub.types())
}

func TestChatValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Chat(ctx, ChatRequest{SessionID: f.session.ID, Prompt: "   "})
	assert.True(t, errors.Is(err, tree.ErrValidation))

	_, err = f.svc.Chat(ctx, ChatRequest{SessionID: f.session.ID, Prompt: "x", ParentID: ptr(999)})
	assert.True(t, errors.Is(err, tree.ErrReferential))

	_, err = f.svc.Chat(ctx, ChatRequest{SessionID: f.session.ID, Prompt: "x", Provider: "openai"})
	assert.True(t, errors.Is(err, responder.ErrMissingAPIKey))

	// an unknown session is rejected before a responder is built
	_, err = f.svc.Chat(ctx, ChatRequest{SessionID: 4242, Prompt: "x", Provider: "openai"})
	assert.True(t, errors.Is(err, tree.ErrReferential))
	assert.False(t, errors.Is(err, responder.ErrMissingAPIKey))

	msgs, err := f.svc.GetMessages(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestCacheInvalidatedOnMutation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.CreateMessage(ctx, f.session.ID, "a", "ra", nil, nil, false)
	require.NoError(t, err)

	msgs, err := f.svc.GetMessages(ctx, f.session.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.True(t, f.redis.Exists(f.messagesKey()))

	b, err := f.svc.CreateMessage(ctx, f.session.ID, "b", "rb", ptr(a), nil, false)
	require.NoError(t, err)
	assert.False(t, f.redis.Exists(f.messagesKey()))

	msgs, err = f.svc.GetMessages(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)

	n, err := f.svc.ApplyPositions(ctx, f.session.ID, []json.RawMessage{
		json.RawMessage(`{"x":1,"y":1}`), json.RawMessage(`{"x":2,"y":2}`),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	msgs, err = f.svc.GetMessages(ctx, f.session.ID)
	require.NoError(t, err)
	require.NotNil(t, msgs[1].Position)
	assert.Equal(t, float64(2), msgs[1].Position.X)

	ok, err := f.svc.DeleteMessage(ctx, a)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.svc.DeleteMessage(ctx, b)
	require.NoError(t, err)
	assert.False(t, ok)

	msgs, err = f.svc.GetMessages(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	assert.Equal(t, []events.EventType{
		events.EventMessageCreated,
		events.EventMessageCreated,
		events.EventPositionsApplied,
		events.EventSubtreeDeleted,
	}, f.pub.types())
}

func TestDeleteAllAndSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.svc.CreateMessage(ctx, f.session.ID, "p", "r", nil, nil, false)
		require.NoError(t, err)
	}
	n, err := f.svc.DeleteAllMessages(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	ok, err := f.svc.DeleteSession(ctx, f.session.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.svc.DeleteSession(ctx, f.session.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.svc.CreateMessage(ctx, f.session.ID, "p", "r", nil, nil, false)
	assert.True(t, errors.Is(err, tree.ErrReferential))
}

func TestExport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.CreateMessage(ctx, f.session.ID, "root prompt", "root answer", nil, nil, false)
	require.NoError(t, err)
	_, err = f.svc.CreateMessage(ctx, f.session.ID, "side", "side answer", ptr(a), nil, true)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, f.svc.Export(ctx, f.session.ID, export.FormatMarkdown, &buf, export.DefaultOptions()))
	assert.Contains(t, buf.String(), "## 1 root prompt")
	assert.Contains(t, buf.String(), "### 1.1 side (branch)")

	err = f.svc.Export(ctx, 4242, export.FormatJSON, &buf, export.DefaultOptions())
	assert.True(t, errors.Is(err, tree.ErrReferential))
}

// pausingRepo holds the first ListMessages call after it has read from the
// database, until release is closed.
type pausingRepo struct {
	*store.Store
	once    sync.Once
	loaded  chan struct{}
	release chan struct{}
}

func (r *pausingRepo) ListMessages(ctx context.Context, sessionID tree.SessionID) ([]*tree.Message, error) {
	msgs, err := r.Store.ListMessages(ctx, sessionID)
	r.once.Do(func() {
		close(r.loaded)
		<-r.release
	})
	return msgs, err
}

func TestConcurrentMutationDuringCacheFill(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.CreateMessage(ctx, f.session.ID, "a", "ra", nil, nil, false)
	require.NoError(t, err)
	b, err := f.svc.CreateMessage(ctx, f.session.ID, "b", "rb", ptr(a), nil, false)
	require.NoError(t, err)

	repo := &pausingRepo{Store: f.store, loaded: make(chan struct{}), release: make(chan struct{})}
	svc := NewChatService(repo, WithCache(f.cache), WithPublisher(f.pub))

	type result struct {
		msgs []*tree.Message
		err  error
	}
	done := make(chan result, 1)
	go func() {
		msgs, err := svc.GetMessages(ctx, f.session.ID)
		done <- result{msgs: msgs, err: err}
	}()

	<-repo.loaded
	ok, err := svc.DeleteMessage(ctx, b)
	require.NoError(t, err)
	require.True(t, ok)
	close(repo.release)

	stale := <-done
	require.NoError(t, stale.err)
	assert.Len(t, stale.msgs, 2)
	assert.False(t, f.redis.Exists(f.messagesKey()))

	msgs, err := svc.GetMessages(ctx, f.session.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, a, msgs[0].ID)

	msgs, err = svc.GetMessages(ctx, f.session.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.True(t, f.redis.Exists(f.messagesKey()))
}

func TestSignupRetryAfterConflictKeepsOneSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.Signup(ctx, "alice", "pw")
	require.ErrorIs(t, err, tree.ErrConflict)

	res, err := f.svc.Login(ctx, "alice", "pw")
	require.NoError(t, err)
	assert.Equal(t, []tree.SessionID{f.session.ID}, res.Sessions)
}
