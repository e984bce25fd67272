// Package events delivers assignment and conversion events to the outside
// world. Delivery is fire-and-forget from the engine's point of view.
package events

import (
	"context"
	"errors"
	"log/slog"
)

const (
	ExperimentAssignment = "experiment_assignment"
	ExperimentConversion = "experiment_conversion"
)

// Properties carries the event payload: experimentId, variantId, userId,
// sessionId, value, plus any conversion metadata.
type Properties map[string]any

// String returns the property as a string, or "".
func (p Properties) String(key string) string {
	s, _ := p[key].(string)
	return s
}

type Sink interface {
	Emit(ctx context.Context, name string, props Properties) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, name string, props Properties) error

func (f SinkFunc) Emit(ctx context.Context, name string, props Properties) error {
	return f(ctx, name, props)
}

// Nop discards every event.
var Nop Sink = SinkFunc(func(context.Context, string, Properties) error { return nil })

// LogSink writes each event as a structured log line.
type LogSink struct {
	logger *slog.Logger
	level  slog.Level
}

func NewLogSink(logger *slog.Logger, level slog.Level) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger, level: level}
}

func (s *LogSink) Emit(ctx context.Context, name string, props Properties) error {
	attrs := make([]slog.Attr, 0, len(props)+1)
	attrs = append(attrs, slog.String("event", name))
	for k, v := range props {
		attrs = append(attrs, slog.Any(k, v))
	}
	s.logger.LogAttrs(ctx, s.level, "experiment event", attrs...)
	return nil
}

type multiSink []Sink

// Multi fans an event out to every sink. All sinks are tried; their errors
// are joined.
func Multi(sinks ...Sink) Sink {
	return multiSink(sinks)
}

func (m multiSink) Emit(ctx context.Context, name string, props Properties) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(ctx, name, props); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
