// Package config loads process configuration for the toolloop CLI: defaults, then an
// optional YAML file, then a .env file, then the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"

	DefaultMaxIterations = 3
	DefaultMaxTokens     = 4096
	DefaultEnvFile       = ".env"
)

// ErrAPIKeyRequired is returned by Validate when no credential was found anywhere.
var ErrAPIKeyRequired = errors.New("config: api key is required (set TOOLLOOP_API_KEY, OPENAI_API_KEY or ANTHROPIC_API_KEY)")

// Config is the resolved process configuration.
type Config struct {
	Provider      string `yaml:"provider"`
	APIKey        string `yaml:"api_key"`
	Model         string `yaml:"model"`
	BaseURL       string `yaml:"base_url"`
	MaxIterations int    `yaml:"max_iterations"`
	MaxTokens     int    `yaml:"max_tokens"`
	SystemPrompt  string `yaml:"system_prompt"`
	OTLPEndpoint  string `yaml:"otlp_endpoint"`
	Verbose       bool   `yaml:"verbose"`
}

// DefaultConfig returns the configuration used when nothing else is set.
// Provider is left empty so the credential that is found can pick it.
func DefaultConfig() *Config {
	return &Config{
		MaxIterations: DefaultMaxIterations,
		MaxTokens:     DefaultMaxTokens,
	}
}

// Load reads the YAML file at path (skipped when path is empty or the file does not exist),
// then DefaultEnvFile, then the process environment.
func Load(path string) (*Config, error) {
	return LoadFiles(path, DefaultEnvFile)
}

// LoadFiles is Load with an explicit .env location. A missing .env file is not an error.
// Non-empty variables in the process environment win over the .env file, which is
// read without modifying the process environment.
func LoadFiles(path, envFile string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	dotenv := map[string]string{}
	if envFile != "" {
		vals, err := godotenv.Read(envFile)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read env file %s: %w", envFile, err)
		}
		if vals != nil {
			dotenv = vals
		}
	}
	getenv := func(key string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return dotenv[key]
	}

	if err := applyEnv(cfg, getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	if p := getenv("TOOLLOOP_PROVIDER"); p != "" {
		cfg.Provider = p
	}
	if key := getenv("TOOLLOOP_API_KEY"); key != "" {
		cfg.APIKey = key
	}
	if key := getenv("OPENAI_API_KEY"); key != "" && cfg.APIKey == "" && cfg.Provider != ProviderAnthropic {
		cfg.APIKey = key
		if cfg.Provider == "" {
			cfg.Provider = ProviderOpenAI
		}
	}
	if key := getenv("ANTHROPIC_API_KEY"); key != "" && cfg.APIKey == "" && cfg.Provider != ProviderOpenAI {
		cfg.APIKey = key
		if cfg.Provider == "" {
			cfg.Provider = ProviderAnthropic
		}
	}
	if cfg.Provider == "" {
		cfg.Provider = ProviderOpenAI
	}
	if model := getenv("TOOLLOOP_MODEL"); model != "" {
		cfg.Model = model
	}
	if url := getenv("TOOLLOOP_BASE_URL"); url != "" {
		cfg.BaseURL = url
	}
	if n := getenv("TOOLLOOP_MAX_ITERATIONS"); n != "" {
		parsed, err := strconv.Atoi(n)
		if err != nil {
			return fmt.Errorf("TOOLLOOP_MAX_ITERATIONS: %w", err)
		}
		cfg.MaxIterations = parsed
	}
	if endpoint := getenv("TOOLLOOP_OTLP_ENDPOINT"); endpoint != "" {
		cfg.OTLPEndpoint = endpoint
	}
	if v := getenv("TOOLLOOP_VERBOSE"); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			cfg.Verbose = parsed
		}
	}
	return nil
}

// Validate reports missing or inconsistent settings.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrAPIKeyRequired
	}
	switch c.Provider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("config: unknown provider %q", c.Provider)
	}
	if c.MaxIterations < 0 {
		return fmt.Errorf("config: max_iterations must be >= 0, got %d", c.MaxIterations)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("config: max_tokens must be > 0, got %d", c.MaxTokens)
	}
	return nil
}
