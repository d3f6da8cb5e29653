// Package config loads server configuration from a YAML file, with
// environment variable and flag overrides layered on top by the caller.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Presentation strategies.
const (
	StrategyThread     = "thread"
	StrategySubprocess = "subprocess"
)

// Config holds every tunable of the server binary.
type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string
	// Strategy selects the presentation strategy: thread or subprocess.
	Strategy string
	// ExecutorPath locates the prompt executor binary. Required for the
	// subprocess strategy, ignored otherwise.
	ExecutorPath string
	// AskTimeout is how long to wait for the human per request.
	AskTimeout time.Duration
	// StartupTimeout bounds presentation strategy startup.
	StartupTimeout time.Duration
	// Color controls colored output: auto, always, never.
	Color string
}

// fileConfig is the YAML shape of the config file. Durations are strings in
// Go duration syntax ("5m", "30s").
type fileConfig struct {
	LogLevel       string `yaml:"log_level"`
	Strategy       string `yaml:"strategy"`
	ExecutorPath   string `yaml:"executor_path"`
	AskTimeout     string `yaml:"ask_timeout"`
	StartupTimeout string `yaml:"startup_timeout"`
	Color          string `yaml:"color"`
}

// Default returns the configuration used when no file and no overrides are
// present.
func Default() Config {
	return Config{
		LogLevel:       "info",
		Strategy:       StrategyThread,
		AskTimeout:     5 * time.Minute,
		StartupTimeout: 5 * time.Second,
		Color:          "auto",
	}
}

// Load reads the config file at path and applies PARLEY_* environment
// overrides. A missing file is not an error; defaults apply. An empty path
// skips the file entirely. Callers layer flag overrides on the result and
// then Validate.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		} else {
			var fc fileConfig
			if err := yaml.Unmarshal(data, &fc); err != nil {
				return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
			}
			if err := cfg.applyFile(fc); err != nil {
				return Config{}, fmt.Errorf("config file %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyFile layers non-empty file values over the defaults.
func (c *Config) applyFile(fc fileConfig) error {
	if fc.LogLevel != "" {
		c.LogLevel = fc.LogLevel
	}
	if fc.Strategy != "" {
		c.Strategy = fc.Strategy
	}
	if fc.ExecutorPath != "" {
		c.ExecutorPath = fc.ExecutorPath
	}
	if fc.Color != "" {
		c.Color = fc.Color
	}
	if fc.AskTimeout != "" {
		d, err := time.ParseDuration(fc.AskTimeout)
		if err != nil {
			return fmt.Errorf("ask_timeout: %w", err)
		}
		c.AskTimeout = d
	}
	if fc.StartupTimeout != "" {
		d, err := time.ParseDuration(fc.StartupTimeout)
		if err != nil {
			return fmt.Errorf("startup_timeout: %w", err)
		}
		c.StartupTimeout = d
	}
	return nil
}

// applyEnv layers PARLEY_* environment variables over the file values.
func (c *Config) applyEnv() error {
	if v := os.Getenv("PARLEY_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("PARLEY_STRATEGY"); v != "" {
		c.Strategy = v
	}
	if v := os.Getenv("PARLEY_EXECUTOR_PATH"); v != "" {
		c.ExecutorPath = v
	}
	if v := os.Getenv("PARLEY_COLOR"); v != "" {
		c.Color = v
	}
	if v := os.Getenv("PARLEY_ASK_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("PARLEY_ASK_TIMEOUT: %w", err)
		}
		c.AskTimeout = d
	}
	if v := os.Getenv("PARLEY_STARTUP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("PARLEY_STARTUP_TIMEOUT: %w", err)
		}
		c.StartupTimeout = d
	}
	return nil
}

// Validate rejects configurations that cannot possibly serve.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q (expected debug, info, warn, or error)", c.LogLevel)
	}

	switch c.Strategy {
	case StrategyThread:
	case StrategySubprocess:
		if c.ExecutorPath == "" {
			return fmt.Errorf("strategy %q requires executor_path", StrategySubprocess)
		}
	default:
		return fmt.Errorf("invalid strategy %q (expected %s or %s)", c.Strategy, StrategyThread, StrategySubprocess)
	}

	switch c.Color {
	case "auto", "always", "never":
	default:
		return fmt.Errorf("invalid color %q (expected auto, always, or never)", c.Color)
	}

	if c.AskTimeout <= 0 {
		return fmt.Errorf("ask_timeout must be positive, got %s", c.AskTimeout)
	}
	if c.StartupTimeout <= 0 {
		return fmt.Errorf("startup_timeout must be positive, got %s", c.StartupTimeout)
	}
	return nil
}
