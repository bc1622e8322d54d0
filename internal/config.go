package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all rekal settings, loaded from ~/.rekal/config.yaml.
// Missing file or missing keys fall back to defaults.
type Config struct {
	Provider         string  `yaml:"provider"`  // "claude" or "codex"
	Model            string  `yaml:"model"`     // model identifier passed to the provider CLI
	DBPath           string  `yaml:"db_path"`   // store location, supports ~
	Enabled          bool    `yaml:"enabled"`   // capture kill switch
	TimeoutSeconds   int     `yaml:"timeout_seconds"`
	MaxPromptChars   int     `yaml:"max_prompt_chars"`
	MaxResponseChars int     `yaml:"max_response_chars"`
	MaxEditChars     int     `yaml:"max_edit_chars"`
	HalfLifeDays     float64 `yaml:"half_life_days"`  // recency decay half-life
	WorkspaceBoost   float64 `yaml:"workspace_boost"` // score multiplier on workspace match
}

// DefaultConfigDir returns the rekal home directory (~/.rekal).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".rekal"
	}
	return filepath.Join(home, ".rekal")
}

// DefaultConfig returns the configuration used when no config file exists.
func DefaultConfig() Config {
	return Config{
		Provider:         "claude",
		Model:            "haiku",
		DBPath:           filepath.Join(DefaultConfigDir(), "db.sqlite"),
		Enabled:          true,
		TimeoutSeconds:   30,
		MaxPromptChars:   4000,
		MaxResponseChars: 8000,
		MaxEditChars:     2000,
		HalfLifeDays:     14,
		WorkspaceBoost:   2.0,
	}
}

// LoadConfig reads the config file at path, or the default location when
// path is empty. An absent file is not an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = filepath.Join(DefaultConfigDir(), "config.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 30
	}
	if cfg.HalfLifeDays <= 0 {
		cfg.HalfLifeDays = 14
	}
	if cfg.WorkspaceBoost < 1 {
		cfg.WorkspaceBoost = 1
	}

	return cfg, nil
}

// Timeout returns the summarizer invocation timeout as a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DBPathResolved expands a leading ~ in the configured database path.
func (c Config) DBPathResolved() string {
	if len(c.DBPath) > 1 && c.DBPath[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, c.DBPath[1:])
		}
	}
	return c.DBPath
}
