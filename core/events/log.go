package events

import (
	"log/slog"

	"plnmarket/core/types"
)

// Converter is satisfied by payloads that can render themselves as a generic
// attribute event. Every payload in this package implements it.
type Converter interface {
	Event() *types.Event
}

// LogEmitter writes every event to a structured logger. It stands in for a
// real subscriber bus in single-process deployments.
type LogEmitter struct {
	log *slog.Logger
}

// NewLogEmitter wraps a logger; nil falls back to the process default.
func NewLogEmitter(log *slog.Logger) *LogEmitter {
	if log == nil {
		log = slog.Default()
	}
	return &LogEmitter{log: log}
}

// Emit implements the Emitter interface.
func (l *LogEmitter) Emit(event Event) {
	if l == nil || event == nil {
		return
	}
	converter, ok := event.(Converter)
	if !ok {
		l.log.Info("event", "type", event.EventType())
		return
	}
	generic := converter.Event()
	attrs := make([]any, 0, 2+2*len(generic.Attributes))
	attrs = append(attrs, "type", generic.Type)
	for key, value := range generic.Attributes {
		attrs = append(attrs, key, value)
	}
	l.log.Info("event", attrs...)
}
