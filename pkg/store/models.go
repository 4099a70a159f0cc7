package store

import (
	"encoding/json"
	"time"

	"github.com/go-go-golems/vizthinker/pkg/tree"
	"github.com/rs/zerolog/log"
)

type userRecord struct {
	ID           int64     `gorm:"primaryKey;autoIncrement"`
	Username     string    `gorm:"uniqueIndex;size:255;not null"`
	PasswordHash string    `gorm:"size:255;not null"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
}

func (userRecord) TableName() string { return "users" }

type sessionRecord struct {
	ID        int64       `gorm:"primaryKey;autoIncrement"`
	UserID    int64       `gorm:"index;not null"`
	User      *userRecord `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Title     string      `gorm:"size:255"`
	CreatedAt time.Time   `gorm:"autoCreateTime"`
	UpdatedAt time.Time   `gorm:"autoUpdateTime"`
}

func (sessionRecord) TableName() string { return "sessions" }

type messageRecord struct {
	ID        int64          `gorm:"primaryKey;autoIncrement"`
	SessionID int64          `gorm:"index;not null"`
	Session   *sessionRecord `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
	Prompt    string         `gorm:"type:text"`
	Response  string         `gorm:"type:text"`
	ParentID  *int64         `gorm:"index"`
	Parent    *messageRecord `gorm:"foreignKey:ParentID;constraint:OnDelete:CASCADE"`
	Position  *string        `gorm:"type:text"`
	IsBranch  bool           `gorm:"not null"`
	CreatedAt time.Time      `gorm:"autoCreateTime"`
}

func (messageRecord) TableName() string { return "messages" }

// sessionMessageRecord is the Session -> Message-ID index.
type sessionMessageRecord struct {
	SessionID int64          `gorm:"primaryKey;autoIncrement:false"`
	MessageID int64          `gorm:"primaryKey;autoIncrement:false;uniqueIndex"`
	Session   *sessionRecord `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
	Message   *messageRecord `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE"`
}

func (sessionMessageRecord) TableName() string { return "session_messages" }

func allModels() []any {
	return []any{&userRecord{}, &sessionRecord{}, &messageRecord{}, &sessionMessageRecord{}}
}

func (r *messageRecord) toMessage() *tree.Message {
	ret := &tree.Message{
		ID:        tree.MessageID(r.ID),
		SessionID: tree.SessionID(r.SessionID),
		Prompt:    r.Prompt,
		Response:  r.Response,
		IsBranch:  r.IsBranch,
		CreatedAt: r.CreatedAt,
	}
	if r.ParentID != nil {
		p := tree.MessageID(*r.ParentID)
		ret.ParentID = &p
	}
	if r.Position != nil {
		pos, err := tree.ParsePosition(json.RawMessage(*r.Position))
		if err != nil {
			log.Warn().Err(err).Int64("message_id", r.ID).Msg("stored position is malformed, ignoring")
		} else {
			ret.Position = pos
		}
	}
	return ret
}

func encodePosition(p *tree.Position) (*string, error) {
	if p == nil {
		return nil, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}

func toInt64s(ids []tree.MessageID) []int64 {
	ret := make([]int64, len(ids))
	for i, id := range ids {
		ret[i] = int64(id)
	}
	return ret
}

func toMessageIDs(ids []int64) []tree.MessageID {
	ret := make([]tree.MessageID, len(ids))
	for i, id := range ids {
		ret[i] = tree.MessageID(id)
	}
	return ret
}
