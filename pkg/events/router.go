package events

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog/log"
)

// Router owns an in-process pub/sub and a watermill router dispatching tree
// events to handlers.
type Router struct {
	logger     watermill.LoggerAdapter
	Publisher  message.Publisher
	Subscriber message.Subscriber
	router     *message.Router
}

type RouterOption func(*Router)

func WithLogger(logger watermill.LoggerAdapter) RouterOption {
	return func(r *Router) {
		r.logger = logger
	}
}

func WithVerbose(verbose bool) RouterOption {
	return func(r *Router) {
		if verbose {
			r.logger = NewBusLogger(log.Logger)
		}
	}
}

func NewRouter(options ...RouterOption) (*Router, error) {
	ret := &Router{
		logger: watermill.NopLogger{},
	}
	for _, o := range options {
		o(ret)
	}

	goPubSub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 64,
	}, ret.logger)
	ret.Publisher = goPubSub
	ret.Subscriber = goPubSub

	router, err := message.NewRouter(message.RouterConfig{}, ret.logger)
	if err != nil {
		return nil, err
	}
	ret.router = router
	return ret, nil
}

// TreePublisher returns a Publisher writing to TopicTree.
func (r *Router) TreePublisher() *WatermillPublisher {
	return NewWatermillPublisher(r.Publisher, TopicTree)
}

// AddHandler registers f for every tree event. Must be called before Run.
func (r *Router) AddHandler(name string, f func(*TreeEvent) error) {
	r.router.AddNoPublisherHandler(name, TopicTree, r.Subscriber, func(msg *message.Message) error {
		e, err := ParseEvent(msg)
		if err != nil {
			log.Warn().Err(err).Str("message_id", msg.UUID).Msg("Dropping undecodable tree event")
			return nil
		}
		return f(e)
	})
}

func (r *Router) Run(ctx context.Context) error {
	return r.router.Run(ctx)
}

func (r *Router) Running() chan struct{} {
	return r.router.Running()
}

func (r *Router) Close() error {
	log.Debug().Msg("Closing publisher")
	if err := r.Publisher.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close pubsub")
	}
	log.Debug().Msg("Closing router")
	if err := r.router.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close router")
	}
	return nil
}

// LogHandler logs each tree event at debug level.
func LogHandler(e *TreeEvent) error {
	log.Debug().
		Str("event_type", string(e.Type)).
		Int64("session_id", int64(e.SessionID)).
		Int64("message_id", int64(e.MessageID)).
		Int("count", e.Count).
		Msg("Tree event")
	return nil
}
