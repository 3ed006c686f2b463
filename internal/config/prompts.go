package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// PromptPreset is a reusable system prompt stored as one YAML file under
// the prompts directory. Presets let users keep task-specific phrasings
// (commit messages, ticket replies) without editing the main config.
type PromptPreset struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Mode        string `yaml:"mode,omitempty"`
	Prompt      string `yaml:"prompt"`
}

func GetPromptsDir() (string, error) {
	var dir string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		dir = filepath.Join(xdg, "sotto", "prompts")
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, ".config", "sotto", "prompts")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

func SavePromptPreset(p PromptPreset) error {
	dir, err := GetPromptsDir()
	if err != nil {
		return err
	}

	filename := filepath.Join(dir, p.Name+".yaml")
	data, err := yaml.Marshal(p)
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}

func LoadPromptPreset(name string) (*PromptPreset, error) {
	dir, err := GetPromptsDir()
	if err != nil {
		return nil, err
	}

	filename := filepath.Join(dir, name+".yaml")
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("prompt preset '%s' not found", name)
		}
		return nil, err
	}

	var p PromptPreset
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func ListPromptPresets() ([]string, error) {
	dir, err := GetPromptsDir()
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".yaml" {
			names = append(names, e.Name()[:len(e.Name())-5])
		}
	}
	return names, nil
}

func DeletePromptPreset(name string) error {
	dir, err := GetPromptsDir()
	if err != nil {
		return err
	}

	filename := filepath.Join(dir, name+".yaml")
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return fmt.Errorf("prompt preset '%s' not found", name)
	}

	return os.Remove(filename)
}
