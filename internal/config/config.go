// Package config provides configuration loading for embedd.
package config

import (
	"fmt"
	"time"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Embedding EmbeddingConfig `koanf:"embedding"`
	Models    []ModelConfig   `koanf:"models"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds the network channel settings.
type ServerConfig struct {
	// TCPBind is the binary protocol listen address.
	TCPBind string `koanf:"tcp_bind"`
	// HTTPBind is the REST adapter listen address.
	HTTPBind string `koanf:"http_bind"`
	// MaxConnections caps concurrent TCP connections; 0 disables the cap.
	MaxConnections int `koanf:"max_connections"`
	// MaxConcurrentTasks caps in-flight inference tasks across both
	// channels; 0 disables the cap.
	MaxConcurrentTasks int `koanf:"max_concurrent_tasks"`
	// RequestTimeout bounds each inference call.
	RequestTimeout time.Duration `koanf:"request_timeout"`
	// IdleTimeout closes TCP connections with no traffic and no in-flight
	// requests; 0 disables it.
	IdleTimeout time.Duration `koanf:"idle_timeout"`
	// MaxPayloadBytes caps the declared payload length of a frame.
	MaxPayloadBytes uint32 `koanf:"max_payload_bytes"`
	// ShutdownTimeout bounds the graceful drain on exit.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// EmbeddingConfig holds inference engine settings.
type EmbeddingConfig struct {
	// Engine selects the backend: "fastembed" or "static".
	Engine string `koanf:"engine"`
	// DefaultModel is used when a request names no model.
	DefaultModel string `koanf:"default_model"`
	// MaxTextLength is the request text ceiling in bytes.
	MaxTextLength int `koanf:"max_text_length"`
	// CacheDir is where model files are downloaded and cached.
	CacheDir string `koanf:"cache_dir"`
	// Workers caps concurrent inference calls inside the engine. Defaults
	// to the CPU count.
	Workers int `koanf:"workers"`
}

// ModelConfig declares one servable model.
type ModelConfig struct {
	Name              string `koanf:"name"`
	Dimension         int    `koanf:"dimension"`
	MaxSequenceLength int    `koanf:"max_sequence_length"`
	Enabled           bool   `koanf:"enabled"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Server: ServerConfig{
			TCPBind:            "0.0.0.0:8787",
			HTTPBind:           "0.0.0.0:8699",
			MaxConnections:     100,
			MaxConcurrentTasks: 50,
			RequestTimeout:     30 * time.Second,
			IdleTimeout:        60 * time.Second,
			MaxPayloadBytes:    5 * 1024 * 1024,
			ShutdownTimeout:    10 * time.Second,
		},
		Embedding: EmbeddingConfig{
			Engine:        "fastembed",
			DefaultModel:  "BAAI/bge-small-en-v1.5",
			MaxTextLength: 8192,
			CacheDir:      "./model_cache",
		},
		Models: []ModelConfig{
			{Name: "BAAI/bge-small-en-v1.5", Dimension: 384, MaxSequenceLength: 512, Enabled: true},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.Server.TCPBind == "" {
		return fmt.Errorf("server.tcp_bind cannot be empty")
	}
	if c.Server.HTTPBind == "" {
		return fmt.Errorf("server.http_bind cannot be empty")
	}
	if c.Server.MaxConnections < 0 {
		return fmt.Errorf("server.max_connections cannot be negative")
	}
	if c.Server.MaxConcurrentTasks < 0 {
		return fmt.Errorf("server.max_concurrent_tasks cannot be negative")
	}
	if c.Server.MaxPayloadBytes == 0 {
		return fmt.Errorf("server.max_payload_bytes must be positive")
	}
	if c.Embedding.MaxTextLength <= 0 {
		return fmt.Errorf("embedding.max_text_length must be positive")
	}
	if len(c.Models) == 0 {
		return fmt.Errorf("at least one model must be configured")
	}

	seen := make(map[string]bool, len(c.Models))
	defaultOK := false
	for i, m := range c.Models {
		if m.Name == "" {
			return fmt.Errorf("models[%d].name cannot be empty", i)
		}
		if seen[m.Name] {
			return fmt.Errorf("duplicate model name %q", m.Name)
		}
		seen[m.Name] = true
		if m.Dimension <= 0 {
			return fmt.Errorf("model %q: dimension must be positive", m.Name)
		}
		if m.Name == c.Embedding.DefaultModel && m.Enabled {
			defaultOK = true
		}
	}
	if !defaultOK {
		return fmt.Errorf("default model %q is not among the enabled models", c.Embedding.DefaultModel)
	}
	return nil
}

// EnabledModels returns the models the server should load.
func (c *Config) EnabledModels() []ModelConfig {
	out := make([]ModelConfig, 0, len(c.Models))
	for _, m := range c.Models {
		if m.Enabled {
			out = append(out, m)
		}
	}
	return out
}
