package service

import (
	"context"

	"github.com/go-go-golems/vizthinker/pkg/events"
	"github.com/go-go-golems/vizthinker/pkg/tree"
)

const DefaultSessionTitle = "New chat"

// Signup creates a user and a first, empty session for them, atomically.
func (s *ChatService) Signup(ctx context.Context, username, password string) (*tree.User, *tree.Session, error) {
	return s.repo.CreateUserWithSession(ctx, username, password, DefaultSessionTitle)
}

type LoginResult struct {
	User     *tree.User       `json:"user"`
	Sessions []tree.SessionID `json:"sessions"`
}

// Login checks the credentials and returns the user with their session IDs.
func (s *ChatService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	user, err := s.repo.Authenticate(ctx, username, password)
	if err != nil {
		return nil, err
	}
	sessions, err := s.repo.ListSessions(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	ids := make([]tree.SessionID, 0, len(sessions))
	for _, session := range sessions {
		ids = append(ids, session.ID)
	}
	return &LoginResult{User: user, Sessions: ids}, nil
}

func (s *ChatService) CreateSession(ctx context.Context, userID tree.UserID, title string) (*tree.Session, error) {
	if title == "" {
		title = DefaultSessionTitle
	}
	return s.repo.CreateSession(ctx, userID, title)
}

func (s *ChatService) GetSession(ctx context.Context, id tree.SessionID) (*tree.Session, bool, error) {
	return s.repo.GetSession(ctx, id)
}

func (s *ChatService) ListSessions(ctx context.Context, userID tree.UserID) ([]*tree.Session, error) {
	return s.repo.ListSessions(ctx, userID)
}

// DeleteSession removes a session and all of its messages.
func (s *ChatService) DeleteSession(ctx context.Context, id tree.SessionID) (bool, error) {
	ok, err := s.repo.DeleteSession(ctx, id)
	if err != nil {
		return false, err
	}
	if ok {
		s.invalidate(ctx, id)
		s.publish(ctx, &events.TreeEvent{Type: events.EventSessionDeleted, SessionID: id})
	}
	return ok, nil
}
