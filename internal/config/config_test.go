package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad_FileValuesAndDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
ai:
  provider: qwen
  qwen:
    api_key: qk
generation:
  retry_delay: 2s
storage:
  type: memory
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "qwen", cfg.AI.Provider)
	assert.Equal(t, "qk", cfg.AI.Qwen.APIKey)
	assert.Equal(t, 2*time.Second, cfg.Generation.RetryDelay)
	assert.Equal(t, 2, cfg.Generation.ImageAttempts)
	assert.Equal(t, "9-12", cfg.Generation.DefaultAgeBand)
	assert.Equal(t, "memory", cfg.StorageType())
	assert.Same(t, cfg, Get())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, "./dist", cfg.Server.StaticDir)
	assert.Equal(t, 1500*time.Millisecond, cfg.Generation.RetryDelay)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("AINA_SERVER_PORT", "8081")
	t.Setenv("OPENAI_API_KEY", "sk-env")

	cfg, err := Load(writeConfig(t, "log:\n  level: debug\n"))
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, "sk-env", cfg.AI.OpenAI.APIKey)
	assert.Equal(t, "sk-env", cfg.AI.Image.APIKey, "image key defaults to the openai key")
}

func TestStorageType(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"explicit type wins", Config{Storage: StorageConfig{Type: "SQLite"}, Redis: RedisConfig{Addr: "r:6379"}}, "sqlite"},
		{"redis when configured", Config{Redis: RedisConfig{Addr: "r:6379"}}, "redis"},
		{"disk otherwise", Config{}, "disk"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.StorageType())
		})
	}
}

func TestRequire(t *testing.T) {
	assert.NoError(t, Require("ai.openai.api_key", "sk", "ai.openai.model", "gpt"))

	err := Require("ai.openai.api_key", " ", "ai.openai.model", "gpt", "ai.image.model", "")
	var missing *MissingError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"ai.openai.api_key", "ai.image.model"}, missing.Keys)
	assert.Contains(t, err.Error(), "ai.image.model")
}
