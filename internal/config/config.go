// Package config loads reverse-turing configuration from file and environment.
//
// Precedence (highest to lowest):
//  1. Environment variables (REVERSE_TURING_*)
//  2. Config file
//  3. Built-in defaults
//
// Config file search order:
//  1. .reverse-turing.yaml in current directory
//  2. ~/.config/reverse-turing/config.yaml
//
// Command-line flags are applied on top by the CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const fileName = ".reverse-turing.yaml"

// Config holds all reverse-turing configuration.
type Config struct {
	// Conversation
	Rounds      int    `yaml:"rounds"`
	MaxTokens   int64  `yaml:"max_tokens"`
	Timeout     string `yaml:"timeout"`      // Go duration string per model call, "0" disables
	ErrorPolicy string `yaml:"error_policy"` // "degrade" (default) or "fail-fast"

	// Transcripts
	LogDir    string `yaml:"log_dir"`
	LogFormat string `yaml:"log_format"` // "json" or "yaml"

	// Batch runs
	Parallel int `yaml:"parallel"`

	// Per-provider model and endpoint overrides, keyed by provider name.
	Providers map[string]Provider `yaml:"providers"`

	// OTEL
	OTELEndpoint string `yaml:"otel_endpoint"`
	OTELHeaders  string `yaml:"otel_headers"` // Comma-separated key=value pairs

	// Parsed from Timeout after loading.
	TimeoutDuration time.Duration `yaml:"-"`

	// ConfigFile is the path to the config file that was loaded (empty if none).
	ConfigFile string `yaml:"-"`
}

// Provider overrides the built-in settings of one provider.
type Provider struct {
	Model     string `yaml:"model"`
	TestModel string `yaml:"test_model"`
	BaseURL   string `yaml:"base_url"`
}

// Defaults returns a Config with all default values.
func Defaults() *Config {
	return &Config{
		Rounds:      5,
		MaxTokens:   512,
		Timeout:     "60s",
		ErrorPolicy: "degrade",
		LogDir:      "logs",
		LogFormat:   "json",
		Parallel:    4,
		Providers:   map[string]Provider{},
	}
}

// Load reads configuration from file and environment variables.
// Environment variables always override file values.
func Load() (*Config, error) {
	cfg := Defaults()

	if path, data, err := findConfigFile(); err == nil {
		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
		cfg.ConfigFile = path
		mergeFile(cfg, &fileCfg)
	}

	if err := mergeEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Finalize parses derived fields and validates. Call it again after
// changing fields, e.g. from command-line flags.
func (c *Config) Finalize() error {
	if c.Rounds < 1 {
		return fmt.Errorf("rounds must be at least 1, got %d", c.Rounds)
	}
	if c.MaxTokens < 1 {
		return fmt.Errorf("max_tokens must be positive, got %d", c.MaxTokens)
	}
	if c.Parallel < 1 {
		return fmt.Errorf("parallel must be at least 1, got %d", c.Parallel)
	}
	d, err := parseDurationOrDisable(c.Timeout, 60*time.Second)
	if err != nil {
		return fmt.Errorf("invalid timeout %q: %w", c.Timeout, err)
	}
	c.TimeoutDuration = d
	return nil
}

// findConfigFile searches for a config file and returns its path and contents.
func findConfigFile() (string, []byte, error) {
	if data, err := os.ReadFile(fileName); err == nil {
		return fileName, data, nil
	}

	if home, err := os.UserHomeDir(); err == nil {
		path := filepath.Join(home, ".config", "reverse-turing", "config.yaml")
		if data, err := os.ReadFile(path); err == nil {
			return path, data, nil
		}
	}

	return "", nil, fmt.Errorf("no config file found")
}

// mergeFile applies non-zero file values onto cfg.
func mergeFile(cfg *Config, file *Config) {
	if file.Rounds > 0 {
		cfg.Rounds = file.Rounds
	}
	if file.MaxTokens > 0 {
		cfg.MaxTokens = file.MaxTokens
	}
	if file.Timeout != "" {
		cfg.Timeout = file.Timeout
	}
	if file.ErrorPolicy != "" {
		cfg.ErrorPolicy = file.ErrorPolicy
	}
	if file.LogDir != "" {
		cfg.LogDir = file.LogDir
	}
	if file.LogFormat != "" {
		cfg.LogFormat = file.LogFormat
	}
	if file.Parallel > 0 {
		cfg.Parallel = file.Parallel
	}
	for name, p := range file.Providers {
		cfg.Providers[strings.ToLower(name)] = p
	}
	if file.OTELEndpoint != "" {
		cfg.OTELEndpoint = file.OTELEndpoint
	}
	if file.OTELHeaders != "" {
		cfg.OTELHeaders = file.OTELHeaders
	}
}

// mergeEnv applies environment variables onto cfg. Env always wins.
func mergeEnv(cfg *Config) error {
	if v := os.Getenv("REVERSE_TURING_ROUNDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid REVERSE_TURING_ROUNDS %q: %w", v, err)
		}
		cfg.Rounds = n
	}
	if v := os.Getenv("REVERSE_TURING_MAX_TOKENS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid REVERSE_TURING_MAX_TOKENS %q: %w", v, err)
		}
		cfg.MaxTokens = n
	}
	if v := os.Getenv("REVERSE_TURING_TIMEOUT"); v != "" {
		cfg.Timeout = v
	}
	if v := os.Getenv("REVERSE_TURING_ERROR_POLICY"); v != "" {
		cfg.ErrorPolicy = v
	}
	if v := os.Getenv("REVERSE_TURING_LOG_DIR"); v != "" {
		cfg.LogDir = v
	}
	if v := os.Getenv("REVERSE_TURING_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.OTELEndpoint = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"); v != "" {
		cfg.OTELHeaders = v
	}

	// Azure base URL fallback
	if rn := os.Getenv("AZURE_RESOURCE_NAME"); rn != "" {
		setDefaultBaseURL(cfg, "anthropic", fmt.Sprintf("https://%s.services.ai.azure.com/anthropic/", rn))
		setDefaultBaseURL(cfg, "openai", fmt.Sprintf("https://%s.openai.azure.com/openai/v1", rn))
	}
	return nil
}

func setDefaultBaseURL(cfg *Config, provider, url string) {
	p := cfg.Providers[provider]
	if p.BaseURL == "" {
		p.BaseURL = url
		cfg.Providers[provider] = p
	}
}

// parseDurationOrDisable parses a duration string. "0", "off", "disable" return 0.
// Empty string returns the fallback value.
func parseDurationOrDisable(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	if s == "0" || s == "off" || s == "disable" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
