package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-go-golems/vizthinker/pkg/tree"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// deleteBatchSize keeps IN lists below sqlite's bound-variable limit.
const deleteBatchSize = 500

// CreateMessage inserts a node and appends it to its session index in one
// transaction. The session must exist and the parent, if any, must belong to
// the same session.
func (s *Store) CreateMessage(ctx context.Context, n tree.NewMessage) (tree.MessageID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return 0, err
	}
	if err := n.Validate(); err != nil {
		return 0, err
	}

	var position *string
	if tree.HasPosition(n.Position) {
		p, err := tree.ParsePosition(n.Position)
		if err != nil {
			return 0, err
		}
		position, err = encodePosition(p)
		if err != nil {
			return 0, err
		}
	}

	var id int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session sessionRecord
		err := tx.Select("id").Take(&session, int64(n.SessionID)).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &tree.ReferentialError{Resource: "session", ID: int64(n.SessionID)}
		}
		if err != nil {
			return errors.Wrap(err, "looking up session")
		}

		var parentID *int64
		if n.ParentID != nil {
			var parent messageRecord
			err := tx.Select("id", "session_id").Take(&parent, int64(*n.ParentID)).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &tree.ReferentialError{Resource: "message", ID: int64(*n.ParentID)}
			}
			if err != nil {
				return errors.Wrap(err, "looking up parent message")
			}
			if parent.SessionID != int64(n.SessionID) {
				return &tree.ReferentialError{
					Resource: "message",
					ID:       parent.ID,
					Reason:   fmt.Sprintf("belongs to session %d, not %d", parent.SessionID, n.SessionID),
				}
			}
			parentID = &parent.ID
		}

		rec := &messageRecord{
			SessionID: int64(n.SessionID),
			Prompt:    n.Prompt,
			Response:  n.Response,
			ParentID:  parentID,
			Position:  position,
			IsBranch:  n.IsBranch,
		}
		if err := tx.Create(rec).Error; err != nil {
			return errors.Wrap(err, "inserting message")
		}
		if err := tx.Create(&sessionMessageRecord{SessionID: rec.SessionID, MessageID: rec.ID}).Error; err != nil {
			return errors.Wrap(err, "appending message to session index")
		}
		id = rec.ID
		return nil
	})
	if err != nil {
		return 0, err
	}

	log.Info().
		Int64("message_id", id).
		Int64("session_id", int64(n.SessionID)).
		Bool("is_branch", n.IsBranch).
		Msg("Message saved")
	return tree.MessageID(id), nil
}

func (s *Store) GetMessage(ctx context.Context, id tree.MessageID) (*tree.Message, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, false, err
	}
	return txLookup{tx: s.db}.LookupNode(ctx, id)
}

// ListMessages returns every node of a session in insertion order.
func (s *Store) ListMessages(ctx context.Context, sessionID tree.SessionID) ([]*tree.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	var recs []messageRecord
	err := s.db.WithContext(ctx).
		Where("session_id = ?", int64(sessionID)).
		Order("id ASC").
		Find(&recs).Error
	if err != nil {
		return nil, errors.Wrapf(err, "listing messages of session %d", sessionID)
	}

	ret := make([]*tree.Message, 0, len(recs))
	for i := range recs {
		ret = append(ret, recs[i].toMessage())
	}
	return ret, nil
}

// ResolveThread returns the ancestor chain of id, root-first.
func (s *Store) ResolveThread(ctx context.Context, id tree.MessageID) ([]*tree.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	return tree.ResolveThread(ctx, txLookup{tx: s.db}, id, s.maxPathDepth)
}

// ResolvePath returns the (prompt, response) history ending at id, root-first.
func (s *Store) ResolvePath(ctx context.Context, id tree.MessageID) ([]tree.Exchange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	return tree.ResolvePath(ctx, txLookup{tx: s.db}, id, s.maxPathDepth)
}

// SessionMessageIDs returns the canonical message order of a session: the
// session index when it has entries, otherwise ascending message id.
func (s *Store) SessionMessageIDs(ctx context.Context, sessionID tree.SessionID) ([]tree.MessageID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	return canonicalOrder(s.db.WithContext(ctx), sessionID)
}

func canonicalOrder(tx *gorm.DB, sessionID tree.SessionID) ([]tree.MessageID, error) {
	var ids []int64
	err := tx.Model(&sessionMessageRecord{}).
		Where("session_id = ?", int64(sessionID)).
		Order("message_id ASC").
		Pluck("message_id", &ids).Error
	if err != nil {
		return nil, errors.Wrap(err, "reading session index")
	}
	if len(ids) > 0 {
		return toMessageIDs(ids), nil
	}

	err = tx.Model(&messageRecord{}).
		Where("session_id = ?", int64(sessionID)).
		Order("id ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, errors.Wrap(err, "listing message ids")
	}
	return toMessageIDs(ids), nil
}

// ApplyPositions assigns positions[i] to the i-th message of the session in
// canonical order. Only min(len(messages), len(positions)) pairs are applied and
// malformed entries are skipped with a warning. It returns the number of
// messages updated.
func (s *Store) ApplyPositions(ctx context.Context, sessionID tree.SessionID, positions []json.RawMessage) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return 0, err
	}

	count := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids, err := canonicalOrder(tx, sessionID)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			log.Warn().Int64("session_id", int64(sessionID)).Msg("No messages found for session")
			return nil
		}
		if len(ids) != len(positions) {
			log.Debug().
				Int64("session_id", int64(sessionID)).
				Int("messages", len(ids)).
				Int("positions", len(positions)).
				Msg("Position count differs from message count, truncating")
		}

		updates, skipped := tree.PairPositions(ids, positions)
		for _, ve := range skipped {
			log.Warn().
				Err(ve).
				Int64("session_id", int64(sessionID)).
				Int64("message_id", int64(ids[ve.Index])).
				Msg("Skipping malformed position")
		}

		for _, u := range updates {
			encoded, err := encodePosition(&u.Position)
			if err != nil {
				return err
			}
			res := tx.Model(&messageRecord{}).Where("id = ?", int64(u.MessageID)).Update("position", encoded)
			if res.Error != nil {
				return errors.Wrapf(res.Error, "updating position of message %d", u.MessageID)
			}
			count += int(res.RowsAffected)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	log.Info().Int("count", count).Int64("session_id", int64(sessionID)).Msg("Updated positions")
	return count, nil
}

// DeleteSubtree removes id and all of its descendants and drops them from the
// session index, atomically. A missing id deletes nothing and returns 0.
func (s *Store) DeleteSubtree(ctx context.Context, id tree.MessageID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return 0, err
	}

	count := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var exists int64
		if err := tx.Model(&messageRecord{}).Where("id = ?", int64(id)).Count(&exists).Error; err != nil {
			return errors.Wrap(err, "looking up message")
		}
		if exists == 0 {
			return nil
		}

		ids, err := tree.CollectSubtree(ctx, txLookup{tx: tx}, id)
		if err != nil {
			return err
		}

		n, err := deleteMessages(tx, toInt64s(ids))
		if err != nil {
			return err
		}
		count = n
		return nil
	})
	if err != nil {
		return 0, err
	}

	if count == 0 {
		log.Debug().Int64("message_id", int64(id)).Msg("No messages found to delete")
	} else {
		log.Info().Int64("message_id", int64(id)).Int("count", count).Msg("Deleted message subtree")
	}
	return count, nil
}

// DeleteAllMessages truncates a session's message set and its index.
func (s *Store) DeleteAllMessages(ctx context.Context, sessionID tree.SessionID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return 0, err
	}

	count := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := clearSession(tx, sessionID)
		count = n
		return err
	})
	if err != nil {
		return 0, err
	}
	log.Info().Int64("session_id", int64(sessionID)).Int("count", count).Msg("Chat history cleared")
	return count, nil
}

func clearSession(tx *gorm.DB, sessionID tree.SessionID) (int, error) {
	if err := tx.Where("session_id = ?", int64(sessionID)).Delete(&sessionMessageRecord{}).Error; err != nil {
		return 0, errors.Wrap(err, "clearing session index")
	}
	err := tx.Model(&messageRecord{}).
		Where("session_id = ? AND parent_id IS NOT NULL", int64(sessionID)).
		Update("parent_id", nil).Error
	if err != nil {
		return 0, errors.Wrap(err, "detaching session messages")
	}
	res := tx.Where("session_id = ?", int64(sessionID)).Delete(&messageRecord{})
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "deleting session messages")
	}
	return int(res.RowsAffected), nil
}

// deleteMessages removes ids from the index and the message table in batches,
// last batch first. ids is breadth-first, so later batches hold deeper nodes.
// parent_id cascades on delete; each batch is detached from its parents first
// so nothing is removed by the cascade and RowsAffected is the real count.
func deleteMessages(tx *gorm.DB, ids []int64) (int, error) {
	deleted := 0
	for end := len(ids); end > 0; end -= deleteBatchSize {
		start := max(0, end-deleteBatchSize)
		batch := ids[start:end]
		if err := tx.Where("message_id IN ?", batch).Delete(&sessionMessageRecord{}).Error; err != nil {
			return 0, errors.Wrap(err, "removing messages from session index")
		}
		err := tx.Model(&messageRecord{}).
			Where("id IN ? AND parent_id IS NOT NULL", batch).
			Update("parent_id", nil).Error
		if err != nil {
			return 0, errors.Wrap(err, "detaching messages")
		}
		res := tx.Where("id IN ?", batch).Delete(&messageRecord{})
		if res.Error != nil {
			return 0, errors.Wrap(res.Error, "deleting messages")
		}
		deleted += int(res.RowsAffected)
	}
	return deleted, nil
}
