package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docgen.hcl")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaultsWithKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "secret")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, BackendGemini, cfg.LLM.Backend)
	assert.Equal(t, "secret", cfg.LLM.GeminiAPIKey)
	assert.Equal(t, 180*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 3, cfg.LLM.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Generation.BaseDelay)
	assert.Equal(t, 30*time.Second, cfg.Generation.MaxDelay)
	assert.False(t, cfg.Generation.StrictValidation)
	assert.Equal(t, StoreMongo, cfg.Store.Backend)
	assert.Equal(t, "tasks", cfg.Mongo.TargetsCollection)
}

func TestLoadRequiresGeminiKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GEMINI_API_KEY")
}

func TestLoadFileThenEnvironment(t *testing.T) {
	path := writeFile(t, `
server {
  port = 9090
  read_timeout = "45s"
}

llm {
  backend  = "openai_compat"
  base_url = "http://localhost:11434/v1"
  model    = "llama3"
  temperature = 0.2
}

generation {
  max_retries       = 1
  strict_validation = true
}

store {
  backend      = "memory"
  seed_targets = ["t1", "t2"]
}
`)
	t.Setenv("LLM_MODEL", "qwen")
	t.Setenv("GENERATION_BASE_DELAY", "500ms")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 45*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, BackendOpenAICompat, cfg.LLM.Backend)
	assert.Equal(t, "http://localhost:11434/v1", cfg.LLM.BaseURL)
	assert.Equal(t, "qwen", cfg.LLM.Model)
	assert.InDelta(t, 0.2, cfg.LLM.Temperature, 1e-6)
	assert.Equal(t, 1, cfg.Generation.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.Generation.BaseDelay)
	assert.True(t, cfg.Generation.StrictValidation)
	assert.Equal(t, StoreMemory, cfg.Store.Backend)
	assert.Equal(t, []string{"t1", "t2"}, cfg.Store.SeedTargets)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := writeFile(t, `
llm {
  timeout = "soon"
}
`)
	t.Setenv("GEMINI_API_KEY", "secret")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm.timeout")
}

func TestLoadRejectsUnknownBackends(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "secret")
	t.Setenv("STORE_BACKEND", "cassandra")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cassandra")
}

func TestWorstCaseDurationDefaults(t *testing.T) {
	cfg := Default()

	// (4*180s + 7s) * 4 + (2+4+8)s
	assert.Equal(t, 2922*time.Second, cfg.WorstCaseDuration())
}
