package model

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// JiraConfig holds the non-secret half of the Jira connection settings.
// The API token itself lives in the system keyring.
type JiraConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	Email   string `mapstructure:"email" yaml:"email"`

	// DefaultFilter is the saved filter id, JQL, or issue URL preselected
	// in the issue picker.
	DefaultFilter string `mapstructure:"default_filter" yaml:"default_filter"`
}

// TimerConfig holds timer behavior policies.
type TimerConfig struct {
	// Exclusive allows at most one running slot at a time.
	Exclusive bool `mapstructure:"exclusive" yaml:"exclusive"`

	// PauseOnLock stops all running slots when the system reports idle.
	PauseOnLock bool `mapstructure:"pause_on_lock" yaml:"pause_on_lock"`

	// TransitionOnStart asks Jira to move the issue to In Progress when
	// its timer starts. Best-effort; failures never block the start.
	TransitionOnStart bool `mapstructure:"transition_on_start" yaml:"transition_on_start"`
}

// SubmitConfig holds retry policy for worklog submissions.
type SubmitConfig struct {
	// MaxAttempts bounds how many times a rate-limited submission is tried.
	MaxAttempts int `mapstructure:"max_attempts" yaml:"max_attempts"`

	// InitialBackoff is the first retry delay; subsequent delays grow
	// exponentially.
	InitialBackoff time.Duration `mapstructure:"initial_backoff" yaml:"initial_backoff"`
}

// DisplayConfig holds UI/rendering preferences.
type DisplayConfig struct {
	Theme string `mapstructure:"theme" yaml:"theme"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Jira    JiraConfig    `mapstructure:"jira" yaml:"jira"`
	Timers  TimerConfig   `mapstructure:"timers" yaml:"timers"`
	Submit  SubmitConfig  `mapstructure:"submit" yaml:"submit"`
	Display DisplayConfig `mapstructure:"display" yaml:"display"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/jirawatch/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "jirawatch", "config.yaml")
}

// DefaultStatePath returns the default path for the state snapshot,
// located at ~/.local/state/jirawatch/state.json.
func DefaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "state.json")
	}
	return filepath.Join(home, ".local", "state", "jirawatch", "state.json")
}

// DefaultHistoryPath returns the default path for the worklog history
// database, next to the state snapshot.
func DefaultHistoryPath() string {
	return filepath.Join(filepath.Dir(DefaultStatePath()), "history.db")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Timers: TimerConfig{
			Exclusive:   true,
			PauseOnLock: true,
		},
		Submit: SubmitConfig{
			MaxAttempts:    4,
			InitialBackoff: 2 * time.Second,
		},
		Display: DisplayConfig{
			Theme: "default",
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("timers.exclusive", true)
	v.SetDefault("timers.pause_on_lock", true)
	v.SetDefault("timers.transition_on_start", false)
	v.SetDefault("submit.max_attempts", 4)
	v.SetDefault("submit.initial_backoff", "2s")
	v.SetDefault("display.theme", "default")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaultAppConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaultAppConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.Submit.MaxAttempts < 1 {
		cfg.Submit.MaxAttempts = 1
	}
	if cfg.Submit.InitialBackoff <= 0 {
		cfg.Submit.InitialBackoff = 2 * time.Second
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("jira", cfg.Jira)
	v.Set("timers", cfg.Timers)
	v.Set("submit", cfg.Submit)
	v.Set("display", cfg.Display)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
