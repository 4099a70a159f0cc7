package tree

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

type MessageID int64

type SessionID int64

type UserID int64

func (id MessageID) String() string { return strconv.FormatInt(int64(id), 10) }
func (id SessionID) String() string { return strconv.FormatInt(int64(id), 10) }
func (id UserID) String() string    { return strconv.FormatInt(int64(id), 10) }

func ParseMessageID(s string) (MessageID, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		return 0, &ValidationError{Field: "message_id", Index: -1, Reason: "must be a positive integer"}
	}
	return MessageID(v), nil
}

func ParseSessionID(s string) (SessionID, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		return 0, &ValidationError{Field: "session_id", Index: -1, Reason: "must be a positive integer"}
	}
	return SessionID(v), nil
}

func ParseUserID(s string) (UserID, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		return 0, &ValidationError{Field: "user_id", Index: -1, Reason: "must be a positive integer"}
	}
	return UserID(v), nil
}

// Message is one prompt/response exchange and a node of its session's tree.
// A nil ParentID marks a root.
type Message struct {
	ID        MessageID  `json:"id"`
	SessionID SessionID  `json:"session_id"`
	Prompt    string     `json:"prompt"`
	Response  string     `json:"response"`
	Position  *Position  `json:"position"`
	ParentID  *MessageID `json:"parent_id"`
	IsBranch  bool       `json:"is_branch"`
	CreatedAt time.Time  `json:"created_at"`
}

func (m *Message) IsRoot() bool {
	return m.ParentID == nil
}

func (m *Message) Exchange() Exchange {
	return Exchange{Prompt: m.Prompt, Response: m.Response}
}

func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	ret := *m
	if m.ParentID != nil {
		p := *m.ParentID
		ret.ParentID = &p
	}
	if m.Position != nil {
		p := *m.Position
		ret.Position = &p
	}
	return &ret
}

// NewMessage carries the fields of a message about to be inserted.
// Position is the raw payload and is validated on insert.
type NewMessage struct {
	SessionID SessionID
	Prompt    string
	Response  string
	ParentID  *MessageID
	Position  json.RawMessage
	IsBranch  bool
}

// Validate checks the parts of a NewMessage that do not need the store.
func (n NewMessage) Validate() error {
	if n.SessionID <= 0 {
		return &ValidationError{Field: "session_id", Index: -1, Reason: "must be a positive integer"}
	}
	if n.ParentID != nil && *n.ParentID <= 0 {
		return &ReferentialError{Resource: "message", ID: int64(*n.ParentID)}
	}
	if HasPosition(n.Position) {
		if _, err := ParsePosition(n.Position); err != nil {
			return errors.Wrap(err, "new message position")
		}
	}
	return nil
}

// Exchange is the (prompt, response) pair a path resolution yields.
type Exchange struct {
	Prompt   string `json:"prompt"`
	Response string `json:"response"`
}

// Session is a conversation container. MessageIDs is the session index in
// canonical order.
type Session struct {
	ID         SessionID   `json:"id"`
	UserID     UserID      `json:"user_id"`
	Title      string      `json:"title"`
	MessageIDs []MessageID `json:"messages"`
	CreatedAt  time.Time   `json:"created_at"`
}

type User struct {
	ID        UserID    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}
