package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	entries := []Entry{
		{ID: "a", Mode: "dictation", Provider: "openai", Model: "gpt-4o-mini", Transcript: "hello", Result: "Hello.", Method: "typed", Duration: 900 * time.Millisecond, CreatedAt: base},
		{ID: "b", Mode: "command", Provider: "groq", Model: "llama-3.3-70b-versatile", Transcript: "open mail", Result: "Opened Mail.", Method: "history", Duration: 2 * time.Second, CreatedAt: base.Add(time.Minute)},
		{ID: "c", Mode: "write", Provider: "custom:ollama", Model: "llama3.2", Transcript: "draft a note", Result: "Dear team,", Method: "clipboard", Duration: 3 * time.Second, CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, e := range entries {
		require.NoError(t, s.Record(ctx, e))
	}

	got, err := s.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)

	// Newest first.
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
	assert.Equal(t, "a", got[2].ID)

	assert.Equal(t, "command", got[1].Mode)
	assert.Equal(t, "groq", got[1].Provider)
	assert.Equal(t, "open mail", got[1].Transcript)
	assert.Equal(t, "Opened Mail.", got[1].Result)
	assert.Equal(t, 2*time.Second, got[1].Duration)
	assert.Equal(t, base.Add(time.Minute).Unix(), got[1].CreatedAt.Unix())
}

func TestListRespectsLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Record(ctx, Entry{
			ID:        string(rune('a' + i)),
			Mode:      "dictation",
			Provider:  "openai",
			Model:     "gpt-4o-mini",
			Method:    "typed",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	got, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "e", got[0].ID)
	assert.Equal(t, "d", got[1].ID)
}

func TestTrimKeepsNewest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	ids := []string{"a", "b", "c", "d"}
	for i, id := range ids {
		require.NoError(t, s.Record(ctx, Entry{
			ID: id, Mode: "dictation", Provider: "openai", Model: "m", Method: "typed",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	removed, err := s.Trim(ctx, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 2, removed)

	got, err := s.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "d", got[0].ID)
	assert.Equal(t, "c", got[1].ID)
}

func TestRecordStampsMissingCreatedAt(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, Entry{ID: "x", Mode: "dictation", Provider: "openai", Model: "m", Method: "typed"}))

	got, err := s.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.WithinDuration(t, time.Now(), got[0].CreatedAt, time.Minute)
}

func TestOpenCreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deeply", "nested", "hist.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}
