// Package session coordinates one voice session from recording through
// delivery. The controller owns the state machine and the single-flight
// rule: starting a new session cancels whatever is still in flight.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmelis/sotto/internal/dispatch"
	"github.com/jmelis/sotto/internal/history"
	"github.com/jmelis/sotto/internal/provider"
	"github.com/jmelis/sotto/internal/registry"
)

// Mode selects the pipeline a transcript runs through.
type Mode string

const (
	// ModeDictation delivers the transcript, optionally after a
	// single-shot cleanup pass.
	ModeDictation Mode = "dictation"
	// ModeCommand interprets the transcript as an instruction and runs
	// the tool-calling loop.
	ModeCommand Mode = "command"
	// ModeWrite generates new text from the spoken instruction.
	ModeWrite Mode = "write"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeDictation:
		return ModeDictation, nil
	case ModeCommand:
		return ModeCommand, nil
	case ModeWrite:
		return ModeWrite, nil
	}
	return "", fmt.Errorf("unknown mode %q (want dictation, command, or write)", s)
}

// State is the controller's current phase. Error is transient: it is
// reported and the controller returns to Idle.
type State string

const (
	StateIdle         State = "idle"
	StateRecording    State = "recording"
	StateTranscribing State = "transcribing"
	StateEnhancing    State = "enhancing"
	StateDelivering   State = "delivering"
	StateError        State = "error"
)

var (
	// ErrNoSession means Complete was called with nothing recording.
	ErrNoSession = errors.New("no active session")
	// ErrSuperseded means a newer session replaced this one before its
	// result could be delivered.
	ErrSuperseded = errors.New("session superseded before delivery")
)

// Transcriber produces the transcript that seeds a session. Speech capture
// lives in the host application; Start begins capture and Stop ends it and
// returns the final text.
type Transcriber interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) (string, error)
}

// StaticTranscriber returns a fixed transcript, for hosts that already
// hold the text (CLI arguments, pipes, tests).
type StaticTranscriber struct {
	Text string
}

func (s StaticTranscriber) Start(context.Context) error { return nil }

func (s StaticTranscriber) Stop(context.Context) (string, error) { return s.Text, nil }

// SettingsStore supplies a read-only snapshot of the active provider and
// mode settings, resolved when the session pipeline starts.
type SettingsStore interface {
	Snapshot(mode Mode) (Snapshot, error)
}

// Snapshot is everything one session needs from configuration.
type Snapshot struct {
	Profile     registry.Profile
	Model       string
	Prompt      string
	Temperature float64
	Enhance     bool // dictation only
	Delivery    dispatch.Method
}

// CommandRunner executes the tool-calling loop for Command Mode.
type CommandRunner interface {
	Run(ctx context.Context, req provider.ChatRequest) (string, []provider.Message, error)
}

// Recorder persists delivered sessions; the CLI wires the history store.
type Recorder interface {
	Record(ctx context.Context, e history.Entry) error
}

// Result is a delivered session.
type Result struct {
	SessionID  string
	Mode       Mode
	Transcript string
	Text       string
	Method     dispatch.Method
	Provider   string
	Model      string
	Duration   time.Duration
}
