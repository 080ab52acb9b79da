package telemetry

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Sink consumes telemetry events. Record must not block and must not call
// back into the producer; failures stay inside the sink.
type Sink interface {
	Record(event Event)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(event Event)

func (f SinkFunc) Record(event Event) { f(event) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Fanout delivers each event to every sink in order.
type Fanout []Sink

func (f Fanout) Record(event Event) {
	for _, s := range f {
		s.Record(event)
	}
}

// LogSink writes each event as a structured log line.
type LogSink struct {
	Level zerolog.Level
}

// NewLogSink returns a LogSink logging at debug level.
func NewLogSink() *LogSink {
	return &LogSink{Level: zerolog.DebugLevel}
}

func (s *LogSink) Record(event Event) {
	e := log.WithLevel(s.Level).
		Str("event_id", event.ID.String()).
		Str("event_type", string(event.Type)).
		Str("session_id", event.SessionID.String()).
		Int("round", event.RoundIndex)
	if event.GameID != "" {
		e = e.Str("game_id", event.GameID)
	}
	if len(event.Payload) > 0 {
		e = e.RawJSON("payload", event.Payload)
	}
	e.Msg("telemetry event")
}
