package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "parley.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	want := Default()
	if cfg != want {
		t.Errorf("Config = %+v, want defaults %+v", cfg, want)
	}
	if cfg.Strategy != StrategyThread {
		t.Errorf("Default strategy = %q, want thread", cfg.Strategy)
	}
	if cfg.AskTimeout != 5*time.Minute {
		t.Errorf("Default ask timeout = %s, want 5m", cfg.AskTimeout)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg != Default() {
		t.Errorf("Config = %+v, want defaults", cfg)
	}
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
strategy: subprocess
executor_path: /usr/local/bin/parley-prompt
ask_timeout: 2m
startup_timeout: 10s
color: never
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.Strategy != StrategySubprocess {
		t.Errorf("Strategy = %q", cfg.Strategy)
	}
	if cfg.ExecutorPath != "/usr/local/bin/parley-prompt" {
		t.Errorf("ExecutorPath = %q", cfg.ExecutorPath)
	}
	if cfg.AskTimeout != 2*time.Minute {
		t.Errorf("AskTimeout = %s, want 2m", cfg.AskTimeout)
	}
	if cfg.StartupTimeout != 10*time.Second {
		t.Errorf("StartupTimeout = %s, want 10s", cfg.StartupTimeout)
	}
	if cfg.Color != "never" {
		t.Errorf("Color = %q", cfg.Color)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "log_level: warn\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.Strategy != StrategyThread || cfg.AskTimeout != 5*time.Minute {
		t.Errorf("Unset fields should keep defaults, got %+v", cfg)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "log_level: info\ncolor: always\n")

	t.Setenv("PARLEY_LOG_LEVEL", "error")
	t.Setenv("PARLEY_ASK_TIMEOUT", "90s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LogLevel != "error" {
		t.Errorf("Env should override file log level, got %q", cfg.LogLevel)
	}
	if cfg.AskTimeout != 90*time.Second {
		t.Errorf("AskTimeout = %s, want 90s", cfg.AskTimeout)
	}
	if cfg.Color != "always" {
		t.Errorf("File value without env override should survive, got %q", cfg.Color)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "log_level: [unterminated\n")

	if _, err := Load(path); err == nil {
		t.Fatal("Expected error for invalid YAML, got nil")
	}
}

func TestLoad_BadDuration(t *testing.T) {
	path := writeConfig(t, "ask_timeout: five minutes\n")

	if _, err := Load(path); err == nil {
		t.Fatal("Expected error for unparseable duration, got nil")
	}
}

func TestLoad_BadEnvDuration(t *testing.T) {
	t.Setenv("PARLEY_STARTUP_TIMEOUT", "soon")

	if _, err := Load(""); err == nil {
		t.Fatal("Expected error for unparseable env duration, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults valid", func(c *Config) {}, false},
		{"subprocess with executor", func(c *Config) {
			c.Strategy = StrategySubprocess
			c.ExecutorPath = "/bin/true"
		}, false},
		{"subprocess without executor", func(c *Config) {
			c.Strategy = StrategySubprocess
		}, true},
		{"unknown strategy", func(c *Config) { c.Strategy = "fork" }, true},
		{"unknown log level", func(c *Config) { c.LogLevel = "trace" }, true},
		{"unknown color", func(c *Config) { c.Color = "sometimes" }, true},
		{"zero ask timeout", func(c *Config) { c.AskTimeout = 0 }, true},
		{"negative startup timeout", func(c *Config) { c.StartupTimeout = -time.Second }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("Expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate failed: %v", err)
			}
		})
	}
}
