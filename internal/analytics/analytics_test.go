package analytics

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLogSinkEmit(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(slog.New(slog.NewTextHandler(&buf, nil)))

	sink.Emit(Event{
		Kind:     KindCompleted,
		Mode:     "dictation",
		Provider: "openai",
		Model:    "gpt-4o-mini",
		Duration: 1200 * time.Millisecond,
	})

	out := buf.String()
	assert.Contains(t, out, "kind=completed")
	assert.Contains(t, out, "mode=dictation")
	assert.Contains(t, out, "provider=openai")
	assert.Contains(t, out, "duration_ms=1200")
	assert.NotContains(t, out, "error_class")
}

func TestLogSinkEmitFailure(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(slog.New(slog.NewTextHandler(&buf, nil)))

	sink.Emit(Event{Kind: KindFailed, Mode: "command", ErrorClass: "network"})

	out := buf.String()
	assert.Contains(t, out, "kind=failed")
	assert.Contains(t, out, "error_class=network")
}

func TestNopSink(t *testing.T) {
	// Must not panic with a zero value.
	NopSink{}.Emit(Event{Kind: KindSuperseded})
}
