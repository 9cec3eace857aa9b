package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// Configuration Tests
// =============================================================================

func isolateXDG(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, "config"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(tmpDir, "cache"))
	t.Setenv("HOME", tmpDir)
	t.Setenv(EnvBaseURL, "")
	return tmpDir
}

// TestConfigAutoCreate verifies first run creates config file at XDG path with defaults
func TestConfigAutoCreate(t *testing.T) {
	tmpDir := isolateXDG(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	configPath := filepath.Join(tmpDir, "config", "taskdesk", "config.yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("config file not created at %s: %v", configPath, err)
	}
	if string(data) != GetSampleConfig() {
		t.Error("auto-created config should be the embedded sample")
	}

	if cfg.API.BaseURL != DefaultBaseURL {
		t.Errorf("expected BaseURL = %q, got %q", DefaultBaseURL, cfg.API.BaseURL)
	}
	if cfg.GetTimeout() != 30*time.Second {
		t.Errorf("expected 30s timeout, got %v", cfg.GetTimeout())
	}
	if cfg.GetDebounce() != 300*time.Millisecond {
		t.Errorf("expected 300ms debounce, got %v", cfg.GetDebounce())
	}
	if cfg.OutputFormat != "text" {
		t.Errorf("expected OutputFormat = 'text', got %q", cfg.OutputFormat)
	}
	if !cfg.IsCacheEnabled() || !cfg.IsCacheWatchEnabled() {
		t.Error("cache and cache watch should be enabled by default")
	}
	if want := filepath.Join(tmpDir, "cache", "taskdesk", "tasks.db"); cfg.GetCachePath() != want {
		t.Errorf("GetCachePath() = %s, want %s", cfg.GetCachePath(), want)
	}
}

// TestConfigCustomPath verifies --config /path/to/config.yaml uses specified config
func TestConfigCustomPath(t *testing.T) {
	tmpDir := isolateXDG(t)

	customConfigPath := filepath.Join(tmpDir, "custom-config.yaml")
	customConfig := `
api:
  base_url: "http://tasks.internal:8080/"
  timeout: 5s
  username: alice
ui:
  debounce_ms: 50
cache:
  enabled: false
  path: "~/snap.db"
no_prompt: true
output_format: json
`
	if err := os.WriteFile(customConfigPath, []byte(customConfig), 0644); err != nil {
		t.Fatalf("failed to write custom config: %v", err)
	}

	cfg, err := Load(customConfigPath)
	if err != nil {
		t.Fatalf("Load(%q) error = %v", customConfigPath, err)
	}

	if cfg.API.BaseURL != "http://tasks.internal:8080" {
		t.Errorf("trailing slash should be trimmed, got %q", cfg.API.BaseURL)
	}
	if cfg.GetTimeout() != 5*time.Second {
		t.Errorf("expected 5s timeout, got %v", cfg.GetTimeout())
	}
	if cfg.API.Username != "alice" {
		t.Errorf("expected username alice, got %q", cfg.API.Username)
	}
	if cfg.GetDebounce() != 50*time.Millisecond {
		t.Errorf("expected 50ms debounce, got %v", cfg.GetDebounce())
	}
	if cfg.IsCacheEnabled() || cfg.IsCacheWatchEnabled() {
		t.Error("cache should be disabled")
	}
	if cfg.GetCachePath() != filepath.Join(tmpDir, "snap.db") {
		t.Errorf("~ should expand to HOME, got %s", cfg.GetCachePath())
	}
	if !cfg.NoPrompt || cfg.OutputFormat != "json" {
		t.Errorf("unexpected prompt/output settings: %+v", cfg)
	}
}

// TestConfigEnvOverride verifies TASKDESK_BASE_URL wins over the file
func TestConfigEnvOverride(t *testing.T) {
	isolateXDG(t)
	t.Setenv(EnvBaseURL, "http://127.0.0.1:9999")

	cfg, err := Parse([]byte("api:\n  base_url: https://ignored.example\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.API.BaseURL != "http://127.0.0.1:9999" {
		t.Errorf("env override not applied, got %q", cfg.API.BaseURL)
	}
}

// TestConfigValidation verifies invalid values are rejected with the yaml key in the message
func TestConfigValidation(t *testing.T) {
	isolateXDG(t)

	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"bad output format", "output_format: xml\n", "output_format must be one of"},
		{"bad url", "api:\n  base_url: not-a-url\n", "api.base_url must be a URL"},
		{"bad timeout", "api:\n  timeout: soon\n", "api.timeout"},
		{"negative debounce", "ui:\n  debounce_ms: -5\n", "ui.debounce_ms must be gte 0"},
		{"huge debounce", "ui:\n  debounce_ms: 60000\n", "ui.debounce_ms must be lte 10000"},
		{"invalid yaml", "api: [unterminated\n", "invalid YAML"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

// TestSampleConfigParses verifies the embedded sample is itself a valid config
func TestSampleConfigParses(t *testing.T) {
	isolateXDG(t)

	cfg, err := Parse([]byte(GetSampleConfig()))
	if err != nil {
		t.Fatalf("sample config should parse: %v", err)
	}
	if cfg.API.Username != DefaultUsername {
		t.Errorf("expected username %q, got %q", DefaultUsername, cfg.API.Username)
	}
	for _, key := range []string{"base_url", "timeout", "debounce_ms", "cache:", "output_format", "no_prompt"} {
		if !strings.Contains(GetSampleConfig(), key) {
			t.Errorf("sample config should document %s", key)
		}
	}
}

// TestApplyFlags verifies CLI flags override file values
func TestApplyFlags(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ApplyFlags(false, "")
	if cfg.NoPrompt || cfg.OutputFormat != "text" {
		t.Error("empty flags should not change config")
	}

	cfg.ApplyFlags(true, "json")
	if !cfg.NoPrompt || cfg.OutputFormat != "json" {
		t.Errorf("flags not applied: %+v", cfg)
	}
}

// TestExpandPath verifies ~ and env expansion
func TestExpandPath(t *testing.T) {
	tmpDir := isolateXDG(t)
	t.Setenv("TASKDESK_TEST_DIR", "/srv/data")

	if got := ExpandPath("~/x.db"); got != filepath.Join(tmpDir, "x.db") {
		t.Errorf("ExpandPath(~/x.db) = %s", got)
	}
	if got := ExpandPath("$TASKDESK_TEST_DIR/x.db"); got != "/srv/data/x.db" {
		t.Errorf("ExpandPath($VAR) = %s", got)
	}
	if ExpandPath("") != "" {
		t.Error("empty path should stay empty")
	}
}
