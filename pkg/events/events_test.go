package events

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/go-go-golems/vizthinker/pkg/tree"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishAndSubscribe(t *testing.T) {
	r, err := NewRouter()
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := r.Subscriber.Subscribe(ctx, TopicTree)
	require.NoError(t, err)

	ctx = ContextWithCorrelationID(ctx, "req-1")
	parent := tree.MessageID(3)
	err = r.TreePublisher().Publish(ctx, &TreeEvent{
		Type:      EventMessageCreated,
		SessionID: 1,
		MessageID: 4,
		ParentID:  &parent,
		IsBranch:  true,
	})
	require.NoError(t, err)

	select {
	case msg := <-ch:
		msg.Ack()
		e, err := ParseEvent(msg)
		require.NoError(t, err)
		assert.Equal(t, EventMessageCreated, e.Type)
		assert.Equal(t, tree.MessageID(4), e.MessageID)
		require.NotNil(t, e.ParentID)
		assert.Equal(t, parent, *e.ParentID)
		assert.True(t, e.IsBranch)
		assert.False(t, e.Time.IsZero())
		assert.Equal(t, "req-1", CorrelationID(msg))
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestRouterDispatchesToHandler(t *testing.T) {
	r, err := NewRouter()
	require.NoError(t, err)

	received := make(chan *TreeEvent, 1)
	r.AddHandler("test", func(e *TreeEvent) error {
		received <- e
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = r.Run(ctx)
	}()
	<-r.Running()
	defer func() { _ = r.Close() }()

	require.NoError(t, r.TreePublisher().Publish(ctx, &TreeEvent{
		Type:      EventSubtreeDeleted,
		MessageID: 2,
		Count:     2,
	}))

	select {
	case e := <-received:
		assert.Equal(t, EventSubtreeDeleted, e.Type)
		assert.Equal(t, 2, e.Count)
	case <-time.After(2 * time.Second):
		t.Fatal("handler not invoked")
	}
}

func TestCorrelationIDGenerated(t *testing.T) {
	id := CorrelationIDFromContext(context.Background())
	assert.Contains(t, id, "gen_")
	assert.Equal(t, "abc", CorrelationIDFromContext(ContextWithCorrelationID(context.Background(), "abc")))
}

func TestNopPublisher(t *testing.T) {
	assert.NoError(t, NopPublisher{}.Publish(context.Background(), &TreeEvent{Type: EventSessionCleared}))
}

func TestBusLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewBusLogger(zerolog.New(&buf).Level(zerolog.TraceLevel))

	l.With(watermill.LogFields{"handler_name": "log-tree-events"}).Info("Adding handler", watermill.LogFields{
		"topic":        TopicTree,
		"message_uuid": "abc",
		"pubsub_uuid":  "noise",
	})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "event-bus", entry["component"])
	assert.Equal(t, "log-tree-events", entry["handler"])
	assert.Equal(t, TopicTree, entry["topic"])
	assert.Equal(t, "abc", entry["event_id"])
	assert.NotContains(t, entry, "pubsub_uuid")
	assert.NotContains(t, entry, "message_uuid")
}
