package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/metal-classifier/models/metal"
)

// TestDefaultIsValid ensures the built-in defaults start the service with the 8 metal classes.
func TestDefaultIsValid(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5001, cfg.Server.Port)
	assert.Equal(t, "model/metal_model.onnx", cfg.Model.Path)
	assert.Equal(t, 224, cfg.Model.ImageSize)
	assert.Equal(t, 3, cfg.Model.TopK)
	assert.Len(t, cfg.Model.Classes, 8)
	assert.Equal(t, "0.0.0.0:5001", cfg.Server.Addr())
}

// TestDefaultClassesAreCopied guards the model's class list against mutation through a config.
func TestDefaultClassesAreCopied(t *testing.T) {
	cfg := Default()
	assert.Equal(t, metal.Classes, cfg.Model.Classes)

	cfg.Model.Classes[0] = "changed"
	assert.Equal(t, "black_gold", metal.Classes[0])
}

// TestLoadYAML validates that a YAML file overrides only the fields it names.
func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 8088
model:
  path: /models/metal.onnx
  top_k: 2
runtime:
  pool_size: 4
fetch:
  timeout: 3s
log:
  format: json
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8088, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "/models/metal.onnx", cfg.Model.Path)
	assert.Equal(t, 2, cfg.Model.TopK)
	assert.Equal(t, 4, cfg.Runtime.PoolSize)
	assert.Equal(t, 3*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Len(t, cfg.Model.Classes, 8)
}

// TestLoadEnvOverrides validates that environment variables win over defaults.
func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("MODEL_PATH", "/tmp/m.onnx")
	t.Setenv("SESSION_POOL_SIZE", "2")
	t.Setenv("FETCH_TIMEOUT", "1500ms")
	t.Setenv("EXECUTION_PROVIDER", "cuda")
	t.Setenv("CORS_ALLOW_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "/tmp/m.onnx", cfg.Model.Path)
	assert.Equal(t, 2, cfg.Runtime.PoolSize)
	assert.Equal(t, 1500*time.Millisecond, cfg.Fetch.Timeout)
	assert.Equal(t, "cuda", cfg.Runtime.Provider)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowOrigins)
}

// TestLoadErrors covers unreadable files, malformed values and failed validation.
func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("bad port env", func(t *testing.T) {
		t.Setenv("PORT", "eighty")
		_, err := Load("")
		assert.ErrorContains(t, err, "invalid PORT")
	})

	t.Run("bad timeout env", func(t *testing.T) {
		t.Setenv("FETCH_TIMEOUT", "soon")
		_, err := Load("")
		assert.ErrorContains(t, err, "FETCH_TIMEOUT")
	})

	t.Run("top k above classes", func(t *testing.T) {
		t.Setenv("TOP_K", "9")
		_, err := Load("")
		assert.ErrorContains(t, err, "exceeds")
	})
}

// TestValidate walks the individual validation rules.
func TestValidate(t *testing.T) {
	cases := map[string]func(c *Config){
		"port":     func(c *Config) { c.Server.Port = 0 },
		"upload":   func(c *Config) { c.Server.MaxUploadBytes = 0 },
		"path":     func(c *Config) { c.Model.Path = "" },
		"size":     func(c *Config) { c.Model.ImageSize = -1 },
		"classes":  func(c *Config) { c.Model.Classes = nil },
		"top_k":    func(c *Config) { c.Model.TopK = 0 },
		"pool":     func(c *Config) { c.Runtime.PoolSize = 0 },
		"provider": func(c *Config) { c.Runtime.Provider = "tpu" },
		"timeout":  func(c *Config) { c.Fetch.Timeout = 0 },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
