package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8787", cfg.Server.TCPBind)
	assert.Equal(t, "0.0.0.0:8699", cfg.Server.HTTPBind)
	assert.Equal(t, 100, cfg.Server.MaxConnections)
	assert.Equal(t, 50, cfg.Server.MaxConcurrentTasks)
	assert.Equal(t, 30*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, uint32(5*1024*1024), cfg.Server.MaxPayloadBytes)
	assert.Equal(t, "fastembed", cfg.Embedding.Engine)
	assert.Equal(t, "BAAI/bge-small-en-v1.5", cfg.Embedding.DefaultModel)
	assert.Equal(t, 8192, cfg.Embedding.MaxTextLength)
	require.Len(t, cfg.Models, 1)
	assert.True(t, cfg.Models[0].Enabled)
}

func TestLoadYAMLOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  tcp_bind: "127.0.0.1:9787"
  max_connections: 10
  request_timeout: 5s
embedding:
  engine: static
  default_model: tiny
  max_text_length: 1024
models:
  - name: tiny
    dimension: 128
    max_sequence_length: 256
    enabled: true
  - name: disabled-one
    dimension: 512
    enabled: false
logging:
  level: debug
  format: console
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9787", cfg.Server.TCPBind)
	assert.Equal(t, 10, cfg.Server.MaxConnections)
	assert.Equal(t, 5*time.Second, cfg.Server.RequestTimeout)
	// Untouched keys keep their defaults.
	assert.Equal(t, "0.0.0.0:8699", cfg.Server.HTTPBind)

	assert.Equal(t, "static", cfg.Embedding.Engine)
	assert.Equal(t, "tiny", cfg.Embedding.DefaultModel)
	require.Len(t, cfg.Models, 2)
	assert.Equal(t, "debug", cfg.Logging.Level)

	enabled := cfg.EnabledModels()
	require.Len(t, enabled, 1)
	assert.Equal(t, "tiny", enabled[0].Name)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
server:
  tcp_bind: "127.0.0.1:9787"
`)
	t.Setenv("EMBEDD_SERVER_TCP_BIND", "127.0.0.1:7000")
	t.Setenv("EMBEDD_LOGGING_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:7000", cfg.Server.TCPBind)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "default model missing",
			mutate:  func(c *Config) { c.Embedding.DefaultModel = "ghost" },
			wantErr: "default model",
		},
		{
			name: "default model disabled",
			mutate: func(c *Config) {
				c.Models[0].Enabled = false
			},
			wantErr: "default model",
		},
		{
			name: "duplicate model names",
			mutate: func(c *Config) {
				c.Models = append(c.Models, c.Models[0])
			},
			wantErr: "duplicate model name",
		},
		{
			name: "non-positive dimension",
			mutate: func(c *Config) {
				c.Models[0].Dimension = 0
			},
			wantErr: "dimension must be positive",
		},
		{
			name:    "no models",
			mutate:  func(c *Config) { c.Models = nil },
			wantErr: "at least one model",
		},
		{
			name:    "zero payload cap",
			mutate:  func(c *Config) { c.Server.MaxPayloadBytes = 0 },
			wantErr: "max_payload_bytes",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
