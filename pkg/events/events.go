package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-go-golems/vizthinker/pkg/tree"
	"github.com/lithammer/shortuuid/v3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// TopicTree carries every mutation of a message tree.
const TopicTree = "message-tree"

const correlationIDMetadataKey = "correlation_id"

type EventType string

const (
	EventMessageCreated   EventType = "message-created"
	EventSubtreeDeleted   EventType = "subtree-deleted"
	EventSessionCleared   EventType = "session-cleared"
	EventSessionDeleted   EventType = "session-deleted"
	EventPositionsApplied EventType = "positions-applied"
)

// TreeEvent describes one committed mutation.
type TreeEvent struct {
	Type      EventType       `json:"type"`
	SessionID tree.SessionID  `json:"session_id,omitempty"`
	MessageID tree.MessageID  `json:"message_id,omitempty"`
	ParentID  *tree.MessageID `json:"parent_id,omitempty"`
	IsBranch  bool            `json:"is_branch,omitempty"`
	Count     int             `json:"count,omitempty"`
	Time      time.Time       `json:"time"`
}

// Publisher emits tree events. Publishing happens after the mutation has
// committed; a failed publish never undoes it.
type Publisher interface {
	Publish(ctx context.Context, e *TreeEvent) error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, *TreeEvent) error { return nil }

// WatermillPublisher publishes events as JSON to a watermill topic.
type WatermillPublisher struct {
	publisher message.Publisher
	topic     string
}

var _ Publisher = (*WatermillPublisher)(nil)

func NewWatermillPublisher(publisher message.Publisher, topic string) *WatermillPublisher {
	return &WatermillPublisher{publisher: publisher, topic: topic}
}

func (w *WatermillPublisher) Publish(ctx context.Context, e *TreeEvent) error {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "marshal tree event")
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(correlationIDMetadataKey, CorrelationIDFromContext(ctx))
	if err := w.publisher.Publish(w.topic, msg); err != nil {
		log.Error().Err(err).Str("topic", w.topic).Msg("Failed to publish tree event")
		return err
	}

	log.Trace().Str("topic", w.topic).Str("event_type", string(e.Type)).Msg("Published tree event")
	return nil
}

// ParseEvent decodes a watermill message published by WatermillPublisher.
func ParseEvent(msg *message.Message) (*TreeEvent, error) {
	var e TreeEvent
	if err := json.Unmarshal(msg.Payload, &e); err != nil {
		return nil, errors.Wrap(err, "unmarshal tree event")
	}
	return &e, nil
}

type correlationIDKeyType string

const correlationIDKey correlationIDKeyType = "correlation_id"

func ContextWithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

// CorrelationIDFromContext returns the request's correlation id, or a generated
// one prefixed with "gen_" when none was set.
func CorrelationIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(correlationIDKey).(string); ok && v != "" {
		return v
	}
	return "gen_" + shortuuid.New()
}

// CorrelationID returns the correlation id a message was published with.
func CorrelationID(msg *message.Message) string {
	return msg.Metadata.Get(correlationIDMetadataKey)
}
