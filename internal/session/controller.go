package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jmelis/sotto/internal/analytics"
	"github.com/jmelis/sotto/internal/dispatch"
	"github.com/jmelis/sotto/internal/history"
	"github.com/jmelis/sotto/internal/provider"
)

// Config wires the controller's collaborators. Transcriber, Sender,
// Dispatcher and Settings are required; Commands may be nil when Command
// Mode is unused, Recorder when history is disabled.
type Config struct {
	Transcriber Transcriber
	Sender      provider.ChatSender
	Commands    CommandRunner
	Dispatcher  dispatch.Dispatcher
	Settings    SettingsStore
	Analytics   analytics.Sink
	Recorder    Recorder
	Logger      *slog.Logger

	// OnState is invoked on every transition while the controller's lock
	// is held; it must return quickly and must not call back into the
	// controller.
	OnState func(State)
}

// session is one in-flight run. gen ties it to the controller's
// generation counter; a mismatch means it was superseded.
type session struct {
	id        string
	mode      Mode
	gen       uint64
	ctx       context.Context
	cancel    context.CancelFunc
	startedAt time.Time
	provider  string
	model     string
}

// Controller drives Idle, Recording, Transcribing, Enhancing, Delivering
// and back to Idle. At most one session is active; Begin supersedes any
// outstanding one.
type Controller struct {
	transcriber Transcriber
	sender      provider.ChatSender
	commands    CommandRunner
	dispatcher  dispatch.Dispatcher
	settings    SettingsStore
	analytics   analytics.Sink
	recorder    Recorder
	logger      *slog.Logger
	onState     func(State)

	mu         sync.Mutex
	state      State
	generation uint64
	cur        *session
}

func NewController(cfg Config) (*Controller, error) {
	if cfg.Transcriber == nil {
		return nil, errors.New("session: transcriber is required")
	}
	if cfg.Sender == nil {
		return nil, errors.New("session: chat sender is required")
	}
	if cfg.Dispatcher == nil {
		return nil, errors.New("session: dispatcher is required")
	}
	if cfg.Settings == nil {
		return nil, errors.New("session: settings store is required")
	}
	sink := cfg.Analytics
	if sink == nil {
		sink = analytics.NopSink{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		transcriber: cfg.Transcriber,
		sender:      cfg.Sender,
		commands:    cfg.Commands,
		dispatcher:  cfg.Dispatcher,
		settings:    cfg.Settings,
		analytics:   sink,
		recorder:    cfg.Recorder,
		logger:      logger,
		onState:     cfg.OnState,
		state:       StateIdle,
	}, nil
}

// State reports the controller's current phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Begin starts a new session and begins recording. Any outstanding
// session is canceled; its late result will be discarded, not delivered.
// The returned id identifies the session in logs and history.
func (c *Controller) Begin(ctx context.Context, mode Mode) (string, error) {
	c.mu.Lock()
	if c.cur != nil {
		c.logger.Debug("superseding in-flight session", "session", c.cur.id)
		c.cur.cancel()
	}
	c.generation++
	sctx, cancel := context.WithCancel(ctx)
	cur := &session{
		id:        uuid.NewString(),
		mode:      mode,
		gen:       c.generation,
		ctx:       sctx,
		cancel:    cancel,
		startedAt: time.Now(),
	}
	c.cur = cur
	c.setStateLocked(StateRecording)
	c.mu.Unlock()

	if err := c.transcriber.Start(sctx); err != nil {
		c.mu.Lock()
		if cur.gen == c.generation {
			c.cur = nil
			cur.cancel()
			c.setStateLocked(StateError)
			c.setStateLocked(StateIdle)
		}
		c.mu.Unlock()
		c.logger.Error("failed to start recording", "session", cur.id, "error", err)
		return "", fmt.Errorf("start recording: %w", err)
	}

	c.logger.Debug("session started", "session", cur.id, "mode", mode)
	return cur.id, nil
}

// Cancel aborts the in-flight session, if any, and returns to Idle.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil {
		return
	}
	c.logger.Debug("session canceled", "session", c.cur.id)
	c.cur.cancel()
	c.generation++
	c.cur = nil
	c.setStateLocked(StateIdle)
}

// Complete stops recording and runs the rest of the pipeline: transcribe,
// enhance or orchestrate per mode, deliver, record. It returns the
// delivered result, or ErrSuperseded if a newer session replaced this one
// while it was in flight.
func (c *Controller) Complete() (*Result, error) {
	c.mu.Lock()
	cur := c.cur
	if cur == nil || c.state != StateRecording {
		c.mu.Unlock()
		return nil, ErrNoSession
	}
	c.setStateLocked(StateTranscribing)
	c.mu.Unlock()

	res, err := c.run(cur)

	c.mu.Lock()
	defer c.mu.Unlock()
	if cur.gen != c.generation {
		c.logger.Debug("discarding superseded session result", "session", cur.id)
		c.analytics.Emit(analytics.Event{
			Kind:     analytics.KindSuperseded,
			Mode:     string(cur.mode),
			Provider: cur.provider,
			Model:    cur.model,
			Duration: time.Since(cur.startedAt),
		})
		return nil, ErrSuperseded
	}
	c.cur = nil
	cur.cancel()

	if err != nil {
		c.setStateLocked(StateError)
		c.setStateLocked(StateIdle)
		c.logger.Error("session failed", "session", cur.id, "mode", cur.mode, "error", err)
		c.analytics.Emit(analytics.Event{
			Kind:       analytics.KindFailed,
			Mode:       string(cur.mode),
			Provider:   cur.provider,
			Model:      cur.model,
			Duration:   time.Since(cur.startedAt),
			ErrorClass: provider.ErrorClass(err),
		})
		return nil, err
	}

	c.setStateLocked(StateIdle)
	c.logger.Info("session delivered", "session", cur.id, "mode", cur.mode, "duration_ms", res.Duration.Milliseconds())
	c.analytics.Emit(analytics.Event{
		Kind:     analytics.KindCompleted,
		Mode:     string(cur.mode),
		Provider: res.Provider,
		Model:    res.Model,
		Duration: res.Duration,
	})
	return res, nil
}

func (c *Controller) run(cur *session) (*Result, error) {
	snap, err := c.settings.Snapshot(cur.mode)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	cur.provider = snap.Profile.Key
	cur.model = snap.Model

	transcript, err := c.transcriber.Stop(cur.ctx)
	if err != nil {
		return nil, fmt.Errorf("finish transcription: %w", err)
	}

	text, err := c.produce(cur, snap, transcript)
	if err != nil {
		return nil, err
	}

	if !c.advance(cur, StateDelivering) {
		return nil, ErrSuperseded
	}
	if err := c.dispatcher.Deliver(cur.ctx, text, snap.Delivery); err != nil {
		return nil, fmt.Errorf("deliver result: %w", err)
	}

	res := &Result{
		SessionID:  cur.id,
		Mode:       cur.mode,
		Transcript: transcript,
		Text:       text,
		Method:     snap.Delivery,
		Provider:   snap.Profile.Key,
		Model:      snap.Model,
		Duration:   time.Since(cur.startedAt),
	}
	c.record(cur, res)
	return res, nil
}

func (c *Controller) produce(cur *session, snap Snapshot, transcript string) (string, error) {
	switch cur.mode {
	case ModeDictation:
		if !snap.Enhance || strings.TrimSpace(transcript) == "" {
			return transcript, nil
		}
		if !c.advance(cur, StateEnhancing) {
			return "", ErrSuperseded
		}
		return c.singleShot(cur.ctx, snap, transcript)

	case ModeWrite:
		if !c.advance(cur, StateEnhancing) {
			return "", ErrSuperseded
		}
		return c.singleShot(cur.ctx, snap, transcript)

	case ModeCommand:
		if c.commands == nil {
			return "", errors.New("command mode is not configured")
		}
		if !c.advance(cur, StateEnhancing) {
			return "", ErrSuperseded
		}
		temp := snap.Temperature
		answer, _, err := c.commands.Run(cur.ctx, provider.ChatRequest{
			Profile: snap.Profile,
			Model:   snap.Model,
			Messages: []provider.Message{
				{Role: provider.RoleSystem, Content: snap.Prompt},
				{Role: provider.RoleUser, Content: transcript},
			},
			Temperature: &temp,
		})
		return answer, err

	default:
		return "", fmt.Errorf("unknown mode %q", cur.mode)
	}
}

func (c *Controller) singleShot(ctx context.Context, snap Snapshot, transcript string) (string, error) {
	temp := snap.Temperature
	resp, err := c.sender.SendChat(ctx, provider.ChatRequest{
		Profile: snap.Profile,
		Model:   snap.Model,
		Messages: []provider.Message{
			{Role: provider.RoleSystem, Content: snap.Prompt},
			{Role: provider.RoleUser, Content: transcript},
		},
		Temperature: &temp,
	})
	if err != nil {
		return "", err
	}
	// An empty completion falls back to the raw transcript.
	if strings.TrimSpace(resp.Text) == "" {
		return transcript, nil
	}
	return resp.Text, nil
}

func (c *Controller) record(cur *session, res *Result) {
	if c.recorder == nil {
		return
	}
	// The session is already delivered; recording uses a fresh context so
	// a supersede arriving now cannot lose the entry.
	err := c.recorder.Record(context.Background(), history.Entry{
		ID:         res.SessionID,
		Mode:       string(res.Mode),
		Provider:   res.Provider,
		Model:      res.Model,
		Transcript: res.Transcript,
		Result:     res.Text,
		Method:     string(res.Method),
		Duration:   res.Duration,
	})
	if err != nil {
		c.logger.Warn("failed to record session history", "session", cur.id, "error", err)
	}
}

// advance moves to state s if cur is still the active session. A false
// return means the session was superseded or canceled mid-flight.
func (c *Controller) advance(cur *session, s State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur.gen != c.generation {
		return false
	}
	c.setStateLocked(s)
	return true
}

func (c *Controller) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	if c.onState != nil {
		c.onState(s)
	}
}
