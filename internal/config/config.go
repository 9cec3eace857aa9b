// Package config handles application configuration
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed config.sample.yaml
var sampleConfig string

const (
	appName = "taskdesk"

	// DefaultBaseURL is the API base URL used when none is configured
	DefaultBaseURL = "https://localhost:7140"

	// DefaultTimeout is the per-request timeout
	DefaultTimeout = "30s"

	// DefaultDebounceMs is the settle window for detail edits
	DefaultDebounceMs = 300

	// DefaultUsername is the keyring account used when none is configured
	DefaultUsername = "default"

	// EnvBaseURL overrides api.base_url
	EnvBaseURL = "TASKDESK_BASE_URL"
)

// GetSampleConfig returns the embedded sample configuration content
func GetSampleConfig() string {
	return sampleConfig
}

// APIConfig holds tasks API connection settings
type APIConfig struct {
	BaseURL  string `yaml:"base_url" validate:"required,url"`
	Timeout  string `yaml:"timeout"`
	Username string `yaml:"username"`
}

// UIConfig holds terminal UI settings
type UIConfig struct {
	DebounceMs int    `yaml:"debounce_ms" validate:"gte=0,lte=10000"`
	LogFile    string `yaml:"log_file"`
}

// CacheConfig holds local snapshot settings
type CacheConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Path    string `yaml:"path"`
	Watch   *bool  `yaml:"watch"`
}

// Config represents the application configuration
type Config struct {
	API          APIConfig   `yaml:"api"`
	UI           UIConfig    `yaml:"ui"`
	Cache        CacheConfig `yaml:"cache"`
	OutputFormat string      `yaml:"output_format" validate:"oneof=text json"`
	NoPrompt     bool        `yaml:"no_prompt"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultBaseURL
	}
	if c.API.Timeout == "" {
		c.API.Timeout = DefaultTimeout
	}
	if c.API.Username == "" {
		c.API.Username = DefaultUsername
	}
	if c.UI.DebounceMs == 0 {
		c.UI.DebounceMs = DefaultDebounceMs
	}
	if c.OutputFormat == "" {
		c.OutputFormat = "text"
	}
}

// Load loads configuration from the specified path, or the default XDG path if empty.
// If the config file doesn't exist, it creates one from the sample.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = DefaultConfigPath()
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := writeSample(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse reads configuration from YAML bytes, applies defaults and the
// environment, and validates the result
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML in config file: %w", err)
	}

	cfg.applyDefaults()
	if env := os.Getenv(EnvBaseURL); env != "" {
		cfg.API.BaseURL = env
	}
	cfg.API.BaseURL = strings.TrimRight(cfg.API.BaseURL, "/")
	cfg.Cache.Path = ExpandPath(cfg.Cache.Path)
	cfg.UI.LogFile = ExpandPath(cfg.UI.LogFile)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// writeSample writes the embedded sample config, which documents every key
func writeSample(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report yaml key names instead of Go field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, describe(fe))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return err
	}

	if _, err := time.ParseDuration(c.API.Timeout); err != nil {
		return fmt.Errorf("invalid duration for api.timeout: %q", c.API.Timeout)
	}
	return nil
}

// describe turns a validation failure into "api.base_url must be a URL"
func describe(fe validator.FieldError) string {
	// Namespace is "Config.api.base_url"
	key := fe.Namespace()
	if i := strings.Index(key, "."); i >= 0 {
		key = key[i+1:]
	}

	switch fe.Tag() {
	case "required":
		return key + " is required"
	case "url":
		return fmt.Sprintf("%s must be a URL, got %q", key, fe.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", key, fe.Param(), fe.Value())
	case "gte", "lte":
		return fmt.Sprintf("%s must be %s %s", key, fe.Tag(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s check", key, fe.Tag())
	}
}

// ApplyFlags applies CLI flag overrides to the configuration
func (c *Config) ApplyFlags(noPrompt bool, outputFormat string) {
	if noPrompt {
		c.NoPrompt = true
	}
	if outputFormat != "" {
		c.OutputFormat = outputFormat
	}
}

// GetTimeout returns api.timeout as a duration, 30s when unparseable
func (c *Config) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.API.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// GetDebounce returns the settle window for detail edits
func (c *Config) GetDebounce() time.Duration {
	if c.UI.DebounceMs <= 0 {
		return DefaultDebounceMs * time.Millisecond
	}
	return time.Duration(c.UI.DebounceMs) * time.Millisecond
}

// IsCacheEnabled returns true unless the snapshot cache was disabled.
func (c *Config) IsCacheEnabled() bool {
	if c.Cache.Enabled == nil {
		return true
	}
	return *c.Cache.Enabled
}

// IsCacheWatchEnabled returns true if the UI should follow snapshot changes
// made by other processes. Always false when the cache is disabled.
func (c *Config) IsCacheWatchEnabled() bool {
	if !c.IsCacheEnabled() {
		return false
	}
	if c.Cache.Watch == nil {
		return true
	}
	return *c.Cache.Watch
}

// GetCachePath returns the snapshot database path
func (c *Config) GetCachePath() string {
	if c.Cache.Path != "" {
		return c.Cache.Path
	}
	return filepath.Join(GetCacheDir(), "tasks.db")
}

// getXDGDir returns a directory path following XDG spec.
// envVar is the XDG environment variable (e.g., "XDG_CONFIG_HOME").
// fallbackPath is the relative path from home (e.g., ".config").
func getXDGDir(envVar, fallbackPath string) string {
	if xdgDir := os.Getenv(envVar); xdgDir != "" {
		return filepath.Join(xdgDir, appName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", fallbackPath, appName)
	}
	return filepath.Join(home, fallbackPath, appName)
}

// GetConfigDir returns the configuration directory following XDG spec
func GetConfigDir() string {
	return getXDGDir("XDG_CONFIG_HOME", ".config")
}

// GetCacheDir returns the cache directory following XDG spec
func GetCacheDir() string {
	return getXDGDir("XDG_CACHE_HOME", ".cache")
}

// DefaultConfigPath returns the XDG config file path
func DefaultConfigPath() string {
	return filepath.Join(GetConfigDir(), "config.yaml")
}

// ExpandPath expands ~ and environment variables in a path
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	}

	return os.ExpandEnv(path)
}
