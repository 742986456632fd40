package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var envKeys = []string{
	"TOOLLOOP_PROVIDER", "TOOLLOOP_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY",
	"TOOLLOOP_MODEL", "TOOLLOOP_BASE_URL", "TOOLLOOP_MAX_ITERATIONS",
	"TOOLLOOP_OTLP_ENDPOINT", "TOOLLOOP_VERBOSE",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, DefaultMaxIterations, cfg.MaxIterations)
	assert.Equal(t, DefaultMaxTokens, cfg.MaxTokens)
	assert.Empty(t, cfg.APIKey)
}

func TestLoadFiles_MissingFilesUseDefaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	cfg, err := LoadFiles(filepath.Join(dir, "nope.yaml"), filepath.Join(dir, ".env"))
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, cfg.Provider)
	assert.Equal(t, DefaultMaxIterations, cfg.MaxIterations)
	assert.ErrorIs(t, cfg.Validate(), ErrAPIKeyRequired)
}

func TestLoadFiles_YAML(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "toolloop.yaml", `
provider: anthropic
api_key: from-file
model: claude-test
max_iterations: 5
system_prompt: be brief
otlp_endpoint: localhost:4318
`)
	cfg, err := LoadFiles(path, "")
	require.NoError(t, err)
	assert.Equal(t, ProviderAnthropic, cfg.Provider)
	assert.Equal(t, "from-file", cfg.APIKey)
	assert.Equal(t, "claude-test", cfg.Model)
	assert.Equal(t, 5, cfg.MaxIterations)
	assert.Equal(t, DefaultMaxTokens, cfg.MaxTokens)
	assert.Equal(t, "be brief", cfg.SystemPrompt)
	assert.Equal(t, "localhost:4318", cfg.OTLPEndpoint)
	require.NoError(t, cfg.Validate())
}

func TestLoadFiles_BadYAML(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "bad.yaml", "max_iterations: [")
	_, err := LoadFiles(path, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestLoadFiles_DotEnv(t *testing.T) {
	clearEnv(t)
	envFile := writeFile(t, ".env", "OPENAI_API_KEY=sk-dotenv\nTOOLLOOP_MODEL=gpt-test\n")
	cfg, err := LoadFiles("", envFile)
	require.NoError(t, err)
	assert.Equal(t, "sk-dotenv", cfg.APIKey)
	assert.Equal(t, ProviderOpenAI, cfg.Provider)
	assert.Equal(t, "gpt-test", cfg.Model)
	assert.Empty(t, os.Getenv("TOOLLOOP_MODEL"), ".env must not leak into the process environment")
}

func TestLoadFiles_EnvironmentWinsOverDotEnv(t *testing.T) {
	clearEnv(t)
	envFile := writeFile(t, ".env", "TOOLLOOP_API_KEY=from-dotenv\n")
	t.Setenv("TOOLLOOP_API_KEY", "from-env")
	cfg, err := LoadFiles("", envFile)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.APIKey)
}

func TestLoadFiles_EnvironmentWinsOverFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "toolloop.yaml", "model: file-model\nmax_iterations: 1\n")
	t.Setenv("TOOLLOOP_MODEL", "env-model")
	t.Setenv("TOOLLOOP_MAX_ITERATIONS", "7")
	t.Setenv("TOOLLOOP_BASE_URL", "http://localhost:8080/v1")
	t.Setenv("TOOLLOOP_VERBOSE", "true")
	cfg, err := LoadFiles(path, "")
	require.NoError(t, err)
	assert.Equal(t, "env-model", cfg.Model)
	assert.Equal(t, 7, cfg.MaxIterations)
	assert.Equal(t, "http://localhost:8080/v1", cfg.BaseURL)
	assert.True(t, cfg.Verbose)
}

func TestLoadFiles_BadMaxIterations(t *testing.T) {
	clearEnv(t)
	t.Setenv("TOOLLOOP_MAX_ITERATIONS", "many")
	_, err := LoadFiles("", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TOOLLOOP_MAX_ITERATIONS")
}

func TestLoadFiles_KeyPrecedence(t *testing.T) {
	tests := []struct {
		name         string
		env          map[string]string
		wantKey      string
		wantProvider string
	}{
		{
			name:         "toolloop key wins",
			env:          map[string]string{"TOOLLOOP_API_KEY": "generic", "OPENAI_API_KEY": "oa", "ANTHROPIC_API_KEY": "an"},
			wantKey:      "generic",
			wantProvider: ProviderOpenAI,
		},
		{
			name:         "openai key picks openai",
			env:          map[string]string{"OPENAI_API_KEY": "oa"},
			wantKey:      "oa",
			wantProvider: ProviderOpenAI,
		},
		{
			name:         "anthropic key picks anthropic",
			env:          map[string]string{"ANTHROPIC_API_KEY": "an"},
			wantKey:      "an",
			wantProvider: ProviderAnthropic,
		},
		{
			name:         "explicit provider selects matching key",
			env:          map[string]string{"TOOLLOOP_PROVIDER": "anthropic", "OPENAI_API_KEY": "oa", "ANTHROPIC_API_KEY": "an"},
			wantKey:      "an",
			wantProvider: ProviderAnthropic,
		},
		{
			name:         "both keys default to openai",
			env:          map[string]string{"OPENAI_API_KEY": "oa", "ANTHROPIC_API_KEY": "an"},
			wantKey:      "oa",
			wantProvider: ProviderOpenAI,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := LoadFiles("", "")
			require.NoError(t, err)
			assert.Equal(t, tt.wantKey, cfg.APIKey)
			assert.Equal(t, tt.wantProvider, cfg.Provider)
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Provider = ProviderOpenAI
		cfg.APIKey = "k"
		return cfg
	}
	require.NoError(t, valid().Validate())

	cfg := valid()
	cfg.APIKey = ""
	assert.ErrorIs(t, cfg.Validate(), ErrAPIKeyRequired)

	cfg = valid()
	cfg.Provider = "gemini"
	assert.ErrorContains(t, cfg.Validate(), `unknown provider "gemini"`)

	cfg = valid()
	cfg.MaxIterations = -1
	assert.ErrorContains(t, cfg.Validate(), "max_iterations")

	cfg = valid()
	cfg.MaxTokens = 0
	assert.ErrorContains(t, cfg.Validate(), "max_tokens")
}
