// Package service exposes the message tree operations used by the HTTP API and
// the CLI. It keeps the read cache coherent and publishes an event after every
// committed mutation.
package service

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/go-go-golems/vizthinker/pkg/cache"
	"github.com/go-go-golems/vizthinker/pkg/events"
	"github.com/go-go-golems/vizthinker/pkg/export"
	"github.com/go-go-golems/vizthinker/pkg/responder"
	"github.com/go-go-golems/vizthinker/pkg/tree"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Repository is the persistence the service needs. *store.Store implements it.
type Repository interface {
	CreateMessage(ctx context.Context, n tree.NewMessage) (tree.MessageID, error)
	GetMessage(ctx context.Context, id tree.MessageID) (*tree.Message, bool, error)
	ListMessages(ctx context.Context, sessionID tree.SessionID) ([]*tree.Message, error)
	ResolvePath(ctx context.Context, id tree.MessageID) ([]tree.Exchange, error)
	ApplyPositions(ctx context.Context, sessionID tree.SessionID, positions []json.RawMessage) (int, error)
	DeleteSubtree(ctx context.Context, id tree.MessageID) (int, error)
	DeleteAllMessages(ctx context.Context, sessionID tree.SessionID) (int, error)

	CreateUserWithSession(ctx context.Context, username, password, title string) (*tree.User, *tree.Session, error)
	Authenticate(ctx context.Context, username string, password string) (*tree.User, error)
	CreateSession(ctx context.Context, userID tree.UserID, title string) (*tree.Session, error)
	GetSession(ctx context.Context, id tree.SessionID) (*tree.Session, bool, error)
	ListSessions(ctx context.Context, userID tree.UserID) ([]*tree.Session, error)
	DeleteSession(ctx context.Context, id tree.SessionID) (bool, error)
}

type ChatService struct {
	repo      Repository
	cache     cache.MessageCache
	publisher events.Publisher
	registry  *responder.Registry
}

type Option func(*ChatService)

func WithCache(c cache.MessageCache) Option {
	return func(s *ChatService) {
		s.cache = c
	}
}

func WithPublisher(p events.Publisher) Option {
	return func(s *ChatService) {
		s.publisher = p
	}
}

func WithRegistry(r *responder.Registry) Option {
	return func(s *ChatService) {
		s.registry = r
	}
}

func NewChatService(repo Repository, options ...Option) *ChatService {
	ret := &ChatService{
		repo:      repo,
		cache:     cache.NopCache{},
		publisher: events.NopPublisher{},
		registry:  responder.NewRegistry(responder.DefaultConfig(), nil),
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

func (s *ChatService) Registry() *responder.Registry {
	return s.registry
}

// CreateMessage attaches a new node to a session, under parentID when set.
func (s *ChatService) CreateMessage(
	ctx context.Context,
	sessionID tree.SessionID,
	prompt, response string,
	parentID *tree.MessageID,
	position json.RawMessage,
	isBranch bool,
) (tree.MessageID, error) {
	id, err := s.repo.CreateMessage(ctx, tree.NewMessage{
		SessionID: sessionID,
		Prompt:    prompt,
		Response:  response,
		ParentID:  parentID,
		Position:  position,
		IsBranch:  isBranch,
	})
	if err != nil {
		return 0, err
	}

	s.invalidate(ctx, sessionID)
	s.publish(ctx, &events.TreeEvent{
		Type:      events.EventMessageCreated,
		SessionID: sessionID,
		MessageID: id,
		ParentID:  parentID,
		IsBranch:  isBranch,
	})
	return id, nil
}

// GetMessages returns every message of a session in ID order, served from the
// cache when possible.
func (s *ChatService) GetMessages(ctx context.Context, sessionID tree.SessionID) ([]*tree.Message, error) {
	msgs, err := s.cache.GetMessages(ctx, sessionID)
	if err == nil {
		log.Trace().Int64("session_id", int64(sessionID)).Msg("Message cache hit")
		return msgs, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		log.Warn().Err(err).Int64("session_id", int64(sessionID)).Msg("Message cache read failed")
	}

	generation, genErr := s.cache.Generation(ctx, sessionID)
	if genErr != nil {
		log.Warn().Err(genErr).Int64("session_id", int64(sessionID)).Msg("Message cache generation read failed")
	}

	msgs, err = s.repo.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if genErr != nil {
		return msgs, nil
	}

	err = s.cache.SetMessages(ctx, sessionID, generation, msgs)
	switch {
	case errors.Is(err, cache.ErrStaleFill):
		log.Debug().Int64("session_id", int64(sessionID)).Msg("Session changed while loading, not caching")
	case err != nil:
		log.Warn().Err(err).Int64("session_id", int64(sessionID)).Msg("Message cache write failed")
	}
	return msgs, nil
}

// ResolvePath returns the exchanges from the root down to messageID. A missing
// messageID yields an empty path.
func (s *ChatService) ResolvePath(ctx context.Context, messageID tree.MessageID) ([]tree.Exchange, error) {
	return s.repo.ResolvePath(ctx, messageID)
}

// ApplyPositions assigns positions to the session's messages in canonical
// order and returns how many were updated.
func (s *ChatService) ApplyPositions(ctx context.Context, sessionID tree.SessionID, positions []json.RawMessage) (int, error) {
	n, err := s.repo.ApplyPositions(ctx, sessionID, positions)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.invalidate(ctx, sessionID)
		s.publish(ctx, &events.TreeEvent{
			Type:      events.EventPositionsApplied,
			SessionID: sessionID,
			Count:     n,
		})
	}
	return n, nil
}

// DeleteMessage removes messageID and everything below it. It reports false
// when messageID does not exist.
func (s *ChatService) DeleteMessage(ctx context.Context, messageID tree.MessageID) (bool, error) {
	msg, ok, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	n, err := s.repo.DeleteSubtree(ctx, messageID)
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	s.invalidate(ctx, msg.SessionID)
	s.publish(ctx, &events.TreeEvent{
		Type:      events.EventSubtreeDeleted,
		SessionID: msg.SessionID,
		MessageID: messageID,
		Count:     n,
	})
	return true, nil
}

// DeleteAllMessages empties a session and returns the number of messages
// removed.
func (s *ChatService) DeleteAllMessages(ctx context.Context, sessionID tree.SessionID) (int, error) {
	n, err := s.repo.DeleteAllMessages(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	s.invalidate(ctx, sessionID)
	s.publish(ctx, &events.TreeEvent{
		Type:      events.EventSessionCleared,
		SessionID: sessionID,
		Count:     n,
	})
	return n, nil
}

// Export writes the session tree to w in the given format.
func (s *ChatService) Export(ctx context.Context, sessionID tree.SessionID, format export.Format, w io.Writer, opts export.Options) error {
	session, ok, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if !ok {
		return &tree.ReferentialError{Resource: "session", ID: int64(sessionID)}
	}
	msgs, err := s.GetMessages(ctx, sessionID)
	if err != nil {
		return err
	}
	doc := export.NewDocument(sessionID, session.Title, tree.NewIndex(msgs...))
	return export.Write(w, format, doc, opts)
}

func (s *ChatService) invalidate(ctx context.Context, sessionIDs ...tree.SessionID) {
	if err := s.cache.Invalidate(ctx, sessionIDs...); err != nil {
		log.Warn().Err(err).Msg("Message cache invalidation failed")
	}
}

func (s *ChatService) publish(ctx context.Context, e *events.TreeEvent) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	if err := s.publisher.Publish(ctx, e); err != nil {
		log.Warn().Err(err).Str("event_type", string(e.Type)).Msg("Tree event not published")
	}
}
