package events

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

// watermill field names and the names used in the rest of our logs
var busFieldNames = map[string]string{
	"message_uuid": "event_id",
	"handler_name": "handler",
	"subscriber":   "subscriber",
	"topic":        "topic",
}

// BusLogger routes watermill's logging into zerolog, tagged as coming from
// the tree event bus. Watermill logs every message at info, so info is
// demoted to debug.
type BusLogger struct {
	logger zerolog.Logger
}

var _ watermill.LoggerAdapter = &BusLogger{}

func NewBusLogger(logger zerolog.Logger) *BusLogger {
	return &BusLogger{
		logger: logger.With().Str("component", "event-bus").Logger(),
	}
}

func (b *BusLogger) Error(msg string, err error, fields watermill.LogFields) {
	b.logger.Error().Fields(busFields(fields)).Err(err).Msg(msg)
}

func (b *BusLogger) Info(msg string, fields watermill.LogFields) {
	b.logger.Debug().Fields(busFields(fields)).Msg(msg)
}

func (b *BusLogger) Debug(msg string, fields watermill.LogFields) {
	b.logger.Debug().Fields(busFields(fields)).Msg(msg)
}

func (b *BusLogger) Trace(msg string, fields watermill.LogFields) {
	b.logger.Trace().Fields(busFields(fields)).Msg(msg)
}

func (b *BusLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &BusLogger{logger: b.logger.With().Fields(busFields(fields)).Logger()}
}

// busFields renames watermill's keys and drops the ones that repeat on every
// line without telling anything about the tree.
func busFields(fields watermill.LogFields) map[string]interface{} {
	ret := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		if name, ok := busFieldNames[k]; ok {
			ret[name] = v
			continue
		}
		switch k {
		case "pubsub_uuid", "subscriber_uuid", "publisher_name", "subscriber_name":
			continue
		}
		ret[k] = v
	}
	return ret
}
