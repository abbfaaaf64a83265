// Package config loads the runtime configuration from a YAML file plus
// environment variables, with a .env file picked up when present.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// ProviderConfig configures one backend family.
type ProviderConfig struct {
	BaseURL string   `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	APIKeys []string `yaml:"api_keys,omitempty" json:"api_keys,omitempty"`
	Model   string   `yaml:"model,omitempty" json:"model,omitempty"`
}

// Duration is a time.Duration that unmarshals from "30s" style YAML
// strings.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("bad duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the plain time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// TimeoutConfig holds the per-call budget tiers.
type TimeoutConfig struct {
	Fast  Duration `yaml:"fast,omitempty" json:"fast,omitempty"`
	Pro   Duration `yaml:"pro,omitempty" json:"pro,omitempty"`
	Local Duration `yaml:"local,omitempty" json:"local,omitempty"`
}

// ToolsConfig lists the tools that $tool instructions may run. Tools
// outside the list are denied.
type ToolsConfig struct {
	Allow []string `yaml:"allow,omitempty" json:"allow,omitempty"`
}

// CacheConfig selects the cache backend. An empty path means in-memory.
type CacheConfig struct {
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
}

// Config is the root configuration document.
type Config struct {
	// Provider selects the default backend family: gemini, openai,
	// anthropic, or ollama.
	Provider string `yaml:"provider,omitempty" json:"provider,omitempty"`

	Gemini    ProviderConfig `yaml:"gemini,omitempty" json:"gemini,omitempty"`
	OpenAI    ProviderConfig `yaml:"openai,omitempty" json:"openai,omitempty"`
	Anthropic ProviderConfig `yaml:"anthropic,omitempty" json:"anthropic,omitempty"`
	Ollama    ProviderConfig `yaml:"ollama,omitempty" json:"ollama,omitempty"`

	Timeouts TimeoutConfig `yaml:"timeouts,omitempty" json:"timeouts,omitempty"`
	Cache    CacheConfig   `yaml:"cache,omitempty" json:"cache,omitempty"`
	Tools    ToolsConfig   `yaml:"tools,omitempty" json:"tools,omitempty"`

	// MaxChainDepth bounds script chaining and sub-script nesting.
	MaxChainDepth int `yaml:"max_chain_depth,omitempty" json:"max_chain_depth,omitempty"`

	LogLevel string `yaml:"log_level,omitempty" json:"log_level,omitempty"`
}

// DefaultPath is the conventional config file location.
const DefaultPath = "grove-script.yaml"

// Load reads the config file at path (DefaultPath when empty), layering
// environment variables over it. A missing file is not an error; env
// vars alone are enough to run.
func Load(path string) (*Config, error) {
	// A .env alongside the process is a convenience for development;
	// absence is expected.
	_ = godotenv.Load()

	if path == "" {
		path = DefaultPath
	}

	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		logrus.WithField("path", path).Debug("No config file, using environment only")
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyEnv()
	if cfg.Provider == "" {
		cfg.Provider = "gemini"
	}
	return cfg, nil
}

// applyEnv layers environment variables over the file values. Keys take
// the usual provider names; comma separation yields a rotation pool.
func (c *Config) applyEnv() {
	if keys := envKeys("GEMINI_API_KEY"); len(keys) > 0 {
		c.Gemini.APIKeys = keys
	}
	if keys := envKeys("OPENAI_API_KEY"); len(keys) > 0 {
		c.OpenAI.APIKeys = keys
	}
	if keys := envKeys("ANTHROPIC_API_KEY"); len(keys) > 0 {
		c.Anthropic.APIKeys = keys
	}
	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		c.Ollama.BaseURL = v
	}
	if v := os.Getenv("GROVE_SCRIPT_PROVIDER"); v != "" {
		c.Provider = v
	}
	if v := os.Getenv("GROVE_SCRIPT_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

func envKeys(name string) []string {
	raw := os.Getenv(name)
	if raw == "" {
		return nil
	}
	var keys []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// ProviderFor returns the configured block for a backend family name.
func (c *Config) ProviderFor(name string) (ProviderConfig, error) {
	switch name {
	case "gemini":
		return c.Gemini, nil
	case "openai":
		return c.OpenAI, nil
	case "anthropic":
		return c.Anthropic, nil
	case "ollama":
		return c.Ollama, nil
	}
	return ProviderConfig{}, fmt.Errorf("unknown provider %q", name)
}

// ConfigureLogging applies the configured level to the global logger.
func (c *Config) ConfigureLogging() {
	if c.LogLevel == "" {
		return
	}
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		logrus.WithField("level", c.LogLevel).Warn("Unrecognized log level, keeping default")
		return
	}
	logrus.SetLevel(level)
}
