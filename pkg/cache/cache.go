package cache

import (
	"context"
	"errors"

	"github.com/go-go-golems/vizthinker/pkg/tree"
)

var (
	ErrCacheMiss = errors.New("cache miss")
	// ErrStaleFill is returned by SetMessages when the session was invalidated
	// after the caller read its generation. Nothing is stored.
	ErrStaleFill = errors.New("cache fill is stale")
)

// MessageCache holds the message list of a session. Any mutation of a session's
// tree must Invalidate it.
//
// A fill reads Generation before loading the list from the database and passes
// it to SetMessages, so a list loaded before a concurrent Invalidate is never
// written back.
type MessageCache interface {
	GetMessages(ctx context.Context, sessionID tree.SessionID) ([]*tree.Message, error)
	Generation(ctx context.Context, sessionID tree.SessionID) (int64, error)
	SetMessages(ctx context.Context, sessionID tree.SessionID, generation int64, msgs []*tree.Message) error
	Invalidate(ctx context.Context, sessionIDs ...tree.SessionID) error
	Close() error
}

// NopCache never holds anything.
type NopCache struct{}

var _ MessageCache = NopCache{}

func (NopCache) GetMessages(context.Context, tree.SessionID) ([]*tree.Message, error) {
	return nil, ErrCacheMiss
}

func (NopCache) Generation(context.Context, tree.SessionID) (int64, error) { return 0, nil }

func (NopCache) SetMessages(context.Context, tree.SessionID, int64, []*tree.Message) error {
	return nil
}

func (NopCache) Invalidate(context.Context, ...tree.SessionID) error { return nil }

func (NopCache) Close() error { return nil }
