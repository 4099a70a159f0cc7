package store

import (
	"context"
	"strings"

	"github.com/go-go-golems/vizthinker/pkg/tree"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// ErrInvalidCredentials is returned by Authenticate for an unknown user or a
// wrong password alike.
var ErrInvalidCredentials = errors.New("invalid username or password")

// CreateUser stores a user with a bcrypt hash of password.
func (s *Store) CreateUser(ctx context.Context, username string, password string) (*tree.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	var user *tree.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		user, err = insertUser(tx, username, password)
		return err
	})
	if err != nil {
		return nil, translateUserError(err, username)
	}
	log.Info().Int64("user_id", int64(user.ID)).Str("username", user.Username).Msg("User created")
	return user, nil
}

// CreateUserWithSession stores a user and their first session together. If
// either insert fails neither is kept.
func (s *Store) CreateUserWithSession(ctx context.Context, username, password, title string) (*tree.User, *tree.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, nil, err
	}

	var (
		user    *tree.User
		session *tree.Session
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		user, err = insertUser(tx, username, password)
		if err != nil {
			return err
		}
		session, err = insertSession(tx, user.ID, title)
		return err
	})
	if err != nil {
		return nil, nil, translateUserError(err, username)
	}
	log.Info().
		Int64("user_id", int64(user.ID)).
		Int64("session_id", int64(session.ID)).
		Str("username", user.Username).
		Msg("User created")
	return user, session, nil
}

func insertUser(tx *gorm.DB, username, password string) (*tree.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, &tree.ValidationError{Field: "username", Index: -1, Reason: "required"}
	}
	if password == "" {
		return nil, &tree.ValidationError{Field: "password", Index: -1, Reason: "required"}
	}

	var existing int64
	if err := tx.Model(&userRecord{}).Where("username = ?", username).Count(&existing).Error; err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, errors.Wrapf(tree.ErrConflict, "username %q already exists", username)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.Wrap(err, "hashing password")
	}
	rec := &userRecord{Username: username, PasswordHash: string(hash)}
	if err := tx.Create(rec).Error; err != nil {
		return nil, err
	}
	return &tree.User{ID: tree.UserID(rec.ID), Username: rec.Username, CreatedAt: rec.CreatedAt}, nil
}

func translateUserError(err error, username string) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return errors.Wrapf(tree.ErrConflict, "username %q already exists", strings.TrimSpace(username))
	}
	return err
}

func insertSession(tx *gorm.DB, userID tree.UserID, title string) (*tree.Session, error) {
	var user userRecord
	err := tx.Select("id").Take(&user, int64(userID)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &tree.ReferentialError{Resource: "user", ID: int64(userID)}
	}
	if err != nil {
		return nil, err
	}
	rec := &sessionRecord{UserID: int64(userID), Title: title}
	if err := tx.Create(rec).Error; err != nil {
		return nil, err
	}
	return &tree.Session{
		ID:         tree.SessionID(rec.ID),
		UserID:     tree.UserID(rec.UserID),
		Title:      rec.Title,
		MessageIDs: []tree.MessageID{},
		CreatedAt:  rec.CreatedAt,
	}, nil
}

// Authenticate checks a username/password pair.
func (s *Store) Authenticate(ctx context.Context, username string, password string) (*tree.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	var rec userRecord
	err := s.db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, errors.Wrap(err, "looking up user")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &tree.User{ID: tree.UserID(rec.ID), Username: rec.Username, CreatedAt: rec.CreatedAt}, nil
}

// CreateSession opens a new conversation for an existing user.
func (s *Store) CreateSession(ctx context.Context, userID tree.UserID, title string) (*tree.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	var session *tree.Session
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		session, err = insertSession(tx, userID, title)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info().Int64("session_id", int64(session.ID)).Int64("user_id", int64(userID)).Msg("Session created")
	return session, nil
}

// GetSession returns a session with its message index.
func (s *Store) GetSession(ctx context.Context, id tree.SessionID) (*tree.Session, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, false, err
	}

	var rec sessionRecord
	err := s.db.WithContext(ctx).Take(&rec, int64(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var ids []int64
	err = s.db.WithContext(ctx).
		Model(&sessionMessageRecord{}).
		Where("session_id = ?", rec.ID).
		Order("message_id ASC").
		Pluck("message_id", &ids).Error
	if err != nil {
		return nil, false, errors.Wrap(err, "reading session index")
	}

	return &tree.Session{
		ID:         tree.SessionID(rec.ID),
		UserID:     tree.UserID(rec.UserID),
		Title:      rec.Title,
		MessageIDs: toMessageIDs(ids),
		CreatedAt:  rec.CreatedAt,
	}, true, nil
}

// ListSessions returns a user's sessions, oldest first, without their indexes.
func (s *Store) ListSessions(ctx context.Context, userID tree.UserID) ([]*tree.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	var recs []sessionRecord
	err := s.db.WithContext(ctx).Where("user_id = ?", int64(userID)).Order("id ASC").Find(&recs).Error
	if err != nil {
		return nil, errors.Wrap(err, "listing sessions")
	}
	ret := make([]*tree.Session, 0, len(recs))
	for _, rec := range recs {
		ret = append(ret, &tree.Session{
			ID:        tree.SessionID(rec.ID),
			UserID:    tree.UserID(rec.UserID),
			Title:     rec.Title,
			CreatedAt: rec.CreatedAt,
		})
	}
	return ret, nil
}

// DeleteSession removes a session together with all of its messages.
func (s *Store) DeleteSession(ctx context.Context, id tree.SessionID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return false, err
	}

	deleted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := clearSession(tx, id); err != nil {
			return err
		}
		res := tx.Delete(&sessionRecord{}, int64(id))
		if res.Error != nil {
			return errors.Wrap(res.Error, "deleting session")
		}
		deleted = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	if deleted {
		log.Info().Int64("session_id", int64(id)).Msg("Session deleted")
	}
	return deleted, nil
}
