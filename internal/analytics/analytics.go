// Package analytics emits coarse usage events for completed and failed
// sessions. Events carry mode, provider, model and timing only; transcript
// and result text never leave the session pipeline.
package analytics

import (
	"log/slog"
	"time"
)

// Event kinds.
const (
	KindCompleted  = "completed"
	KindFailed     = "failed"
	KindSuperseded = "superseded"
)

type Event struct {
	Kind       string
	Mode       string
	Provider   string
	Model      string
	Duration   time.Duration
	ErrorClass string // empty on success
}

// Sink receives events. Emit must not block the session pipeline.
type Sink interface {
	Emit(Event)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Emit(Event) {}

// LogSink writes events to a structured logger at info level.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(e Event) {
	attrs := []any{
		"kind", e.Kind,
		"mode", e.Mode,
		"provider", e.Provider,
		"model", e.Model,
		"duration_ms", e.Duration.Milliseconds(),
	}
	if e.ErrorClass != "" {
		attrs = append(attrs, "error_class", e.ErrorClass)
	}
	s.logger.Info("session event", attrs...)
}
