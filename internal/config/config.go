// Package config loads sotto's YAML configuration and resolves it into
// provider profiles and per-mode session settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/jmelis/sotto/internal/jsonval"
	"github.com/jmelis/sotto/internal/registry"
)

type Config struct {
	DefaultProvider       string                    `yaml:"default_provider" mapstructure:"default_provider"`
	Providers             map[string]ProviderConfig `yaml:"providers" mapstructure:"providers"`
	Modes                 ModesConfig               `yaml:"modes" mapstructure:"modes"`
	Retry                 RetryConfig               `yaml:"retry" mapstructure:"retry"`
	RequestTimeoutSeconds int                       `yaml:"request_timeout_seconds" mapstructure:"request_timeout_seconds"`
	History               HistoryConfig             `yaml:"history" mapstructure:"history"`
	LogLevel              string                    `yaml:"log_level" mapstructure:"log_level"`
	Analytics             bool                      `yaml:"analytics" mapstructure:"analytics"`
}

type ProviderConfig struct {
	Name      string                     `yaml:"name,omitempty" mapstructure:"name"`
	BaseURL   string                     `yaml:"base_url" mapstructure:"base_url"`
	APIKey    string                     `yaml:"api_key,omitempty" mapstructure:"api_key"`
	Models    []string                   `yaml:"models,omitempty" mapstructure:"models"`
	Model     string                     `yaml:"model,omitempty" mapstructure:"model"`
	Reasoning map[string]ReasoningConfig `yaml:"reasoning,omitempty" mapstructure:"reasoning"`
}

// ReasoningConfig is a per-model request parameter for reasoning models,
// keyed by model name under a provider. Value may be any YAML scalar or
// structure (effort strings, boolean thinking flags, budget objects).
type ReasoningConfig struct {
	Param   string `yaml:"param" mapstructure:"param"`
	Value   any    `yaml:"value" mapstructure:"value"`
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
}

type ModesConfig struct {
	Dictation ModeConfig `yaml:"dictation" mapstructure:"dictation"`
	Command   ModeConfig `yaml:"command" mapstructure:"command"`
	Write     ModeConfig `yaml:"write" mapstructure:"write"`
}

// ModeConfig configures one pipeline. A zero Temperature or MaxRounds
// means "use the mode's default".
type ModeConfig struct {
	Prompt      string  `yaml:"prompt,omitempty" mapstructure:"prompt"`
	Temperature float64 `yaml:"temperature,omitempty" mapstructure:"temperature"`
	Enhance     bool    `yaml:"enhance" mapstructure:"enhance"`
	MaxRounds   int     `yaml:"max_rounds,omitempty" mapstructure:"max_rounds"`
	Delivery    string  `yaml:"delivery,omitempty" mapstructure:"delivery"`
}

type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`
}

type HistoryConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path,omitempty" mapstructure:"path"`
	Keep    int    `yaml:"keep" mapstructure:"keep"`
}

const (
	defaultDictationPrompt = "You clean up dictated text. Fix punctuation, capitalization and obvious transcription mistakes. Keep the speaker's words and meaning. Return only the corrected text."
	defaultCommandPrompt   = "You are a desktop command assistant. The user speaks an instruction; use the available tools to carry it out, then confirm briefly what you did."
	defaultWritePrompt     = "You write text on the user's behalf. The user dictates what they want written; produce it, matching any tone or format they ask for. Return only the text."
)

var envVarRe = regexp.MustCompile(`\$([A-Z_][A-Z0-9_]*)`)

func expandEnv(s string) string {
	return envVarRe.ReplaceAllStringFunc(s, func(match string) string {
		name := strings.TrimPrefix(match, "$")
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
}

func DefaultConfig() *Config {
	return &Config{
		DefaultProvider: "openai",
		Providers: map[string]ProviderConfig{
			"openai": {BaseURL: "https://api.openai.com/v1", APIKey: "$OPENAI_API_KEY", Model: "gpt-4o-mini"},
			"groq":   {BaseURL: "https://api.groq.com/openai/v1", APIKey: "$GROQ_API_KEY", Model: "llama-3.3-70b-versatile"},
			"ollama": {BaseURL: "http://localhost:11434/v1", Model: "llama3.2"},
		},
		Modes: ModesConfig{
			Dictation: ModeConfig{Prompt: defaultDictationPrompt, Temperature: 0.3, Delivery: "typed"},
			Command:   ModeConfig{Prompt: defaultCommandPrompt, Temperature: 0.2, MaxRounds: 5, Delivery: "typed"},
			Write:     ModeConfig{Prompt: defaultWritePrompt, Temperature: 0.7, Delivery: "typed"},
		},
		Retry:                 RetryConfig{MaxAttempts: 3},
		RequestTimeoutSeconds: 30,
		History:               HistoryConfig{Enabled: true, Keep: 200},
		LogLevel:              "info",
		Analytics:             true,
	}
}

// Load reads the configuration. With an explicit path the file must
// exist; otherwise the usual locations are searched and a missing file
// just means defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			v.AddConfigPath(filepath.Join(xdg, "sotto"))
		}
		home, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(home, ".config", "sotto"))
	}

	v.SetEnvPrefix("SOTTO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// No config file found; run on defaults.
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Expansion happens after unmarshal so env references work in both
	// the file and the defaults.
	for name, p := range cfg.Providers {
		p.APIKey = expandEnv(p.APIKey)
		p.BaseURL = expandEnv(p.BaseURL)
		cfg.Providers[name] = p
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration and backfills defaults for anything
// unset.
func (c *Config) Validate() error {
	if c.DefaultProvider == "" {
		return fmt.Errorf("config: default_provider is required")
	}
	defaultKey := registry.NormalizeKey(c.DefaultProvider)
	found := false
	for name, p := range c.Providers {
		if registry.NormalizeKey(name) == defaultKey {
			found = true
		}
		if p.BaseURL == "" {
			return fmt.Errorf("config: provider %q requires base_url", name)
		}
		for model, rc := range p.Reasoning {
			if rc.Enabled && rc.Param == "" {
				return fmt.Errorf("config: provider %q reasoning for %q requires param", name, model)
			}
			if _, err := jsonval.FromAny(rc.Value); err != nil {
				return fmt.Errorf("config: provider %q reasoning for %q: %w", name, model, err)
			}
		}
	}
	if !found {
		return fmt.Errorf("config: default_provider %q not found in providers", c.DefaultProvider)
	}

	c.Modes.Dictation.fillDefaults(defaultDictationPrompt, 0.3, 0)
	c.Modes.Command.fillDefaults(defaultCommandPrompt, 0.2, 5)
	c.Modes.Write.fillDefaults(defaultWritePrompt, 0.7, 0)
	for _, mc := range []ModeConfig{c.Modes.Dictation, c.Modes.Command, c.Modes.Write} {
		switch mc.Delivery {
		case "typed", "clipboard", "history":
		default:
			return fmt.Errorf("config: invalid delivery %q (must be typed, clipboard, or history)", mc.Delivery)
		}
	}

	if c.Retry.MaxAttempts < 1 {
		c.Retry.MaxAttempts = 3
	}
	if c.RequestTimeoutSeconds < 1 {
		c.RequestTimeoutSeconds = 30
	}
	if c.History.Keep < 1 {
		c.History.Keep = 200
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return nil
}

func (m *ModeConfig) fillDefaults(prompt string, temperature float64, maxRounds int) {
	if m.Prompt == "" {
		m.Prompt = prompt
	}
	if m.Temperature <= 0 {
		m.Temperature = temperature
	}
	if m.MaxRounds < 1 {
		m.MaxRounds = maxRounds
	}
	if m.Delivery == "" {
		m.Delivery = "typed"
	}
}

// Profiles converts the provider entries into registry profiles with
// normalized keys, sorted for stable listings.
func (c *Config) Profiles() []registry.Profile {
	out := make([]registry.Profile, 0, len(c.Providers))
	for name, p := range c.Providers {
		out = append(out, p.toProfile(name))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Registry builds the provider registry from the configured profiles.
func (c *Config) Registry() *registry.Registry {
	return registry.New(c.Profiles()...)
}

// DefaultProfile resolves default_provider to its profile.
func (c *Config) DefaultProfile() (registry.Profile, error) {
	key := registry.NormalizeKey(c.DefaultProvider)
	for _, p := range c.Profiles() {
		if p.Key == key {
			return p, nil
		}
	}
	return registry.Profile{}, fmt.Errorf("default provider %q is not configured", c.DefaultProvider)
}

func (p ProviderConfig) toProfile(name string) registry.Profile {
	prof := registry.Profile{
		Key:           registry.NormalizeKey(name),
		Name:          p.Name,
		BaseURL:       p.BaseURL,
		APIKey:        resolveAPIKey(p.APIKey),
		Models:        p.Models,
		SelectedModel: p.Model,
	}
	if len(p.Reasoning) > 0 {
		prof.Reasoning = make(map[string]registry.ReasoningConfig, len(p.Reasoning))
		for model, rc := range p.Reasoning {
			val, err := jsonval.FromAny(rc.Value)
			if err != nil {
				// Validate rejects these; skip if reached unvalidated.
				continue
			}
			prof.Reasoning[model] = registry.ReasoningConfig{
				Param:   rc.Param,
				Value:   val,
				Enabled: rc.Enabled,
			}
		}
	}
	return prof
}

// resolveAPIKey drops values that are still unexpanded env references, so
// a missing OPENAI_API_KEY behaves like "no key" instead of sending the
// literal string as a bearer token.
func resolveAPIKey(key string) string {
	if strings.HasPrefix(key, "$") && envVarRe.FindString(key) == key {
		return ""
	}
	return key
}

// RequestTimeout is the per-call provider deadline.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// HistoryPath returns the configured history database location, falling
// back to the XDG data directory.
func (c *Config) HistoryPath() string {
	if c.History.Path != "" {
		return expandEnv(c.History.Path)
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "sotto", "history.db")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "sotto", "history.db")
}

// YAML renders the effective configuration, for `sotto config show`.
func (c *Config) YAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("render config: %w", err)
	}
	return data, nil
}
