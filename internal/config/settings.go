package config

import (
	"fmt"

	"github.com/jmelis/sotto/internal/dispatch"
	"github.com/jmelis/sotto/internal/session"
)

// Store adapts a loaded Config to the session controller's settings
// interface.
type Store struct {
	cfg            *Config
	promptOverride string
}

func NewStore(cfg *Config) *Store {
	return &Store{cfg: cfg}
}

// WithPrompt returns a copy whose snapshots use the given prompt instead
// of the mode's configured one. Used for prompt presets.
func (s *Store) WithPrompt(prompt string) *Store {
	cp := *s
	cp.promptOverride = prompt
	return &cp
}

func (s *Store) Snapshot(mode session.Mode) (session.Snapshot, error) {
	prof, err := s.cfg.DefaultProfile()
	if err != nil {
		return session.Snapshot{}, err
	}
	if prof.SelectedModel == "" {
		return session.Snapshot{}, fmt.Errorf("no model selected for provider %s", prof.Display())
	}

	mc := s.cfg.ModeFor(mode)
	prompt := mc.Prompt
	if s.promptOverride != "" {
		prompt = s.promptOverride
	}
	return session.Snapshot{
		Profile:     prof,
		Model:       prof.SelectedModel,
		Prompt:      prompt,
		Temperature: mc.Temperature,
		Enhance:     mc.Enhance,
		Delivery:    dispatch.Method(mc.Delivery),
	}, nil
}

func (c *Config) ModeFor(mode session.Mode) ModeConfig {
	switch mode {
	case session.ModeCommand:
		return c.Modes.Command
	case session.ModeWrite:
		return c.Modes.Write
	default:
		return c.Modes.Dictation
	}
}
