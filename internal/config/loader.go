package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "EMBEDD_"

// Load reads configuration with the usual precedence, highest first:
//
//  1. Environment variables (EMBEDD_SERVER_TCP_BIND, EMBEDD_LOGGING_LEVEL, ...)
//  2. YAML config file, when configPath is non-empty
//  3. Built-in defaults
//
// A non-empty configPath that does not exist is an error; an empty configPath
// skips the file layer entirely.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		content, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
		}
	}

	// Environment variables are uppercased with underscore separators. The
	// first underscore after the prefix splits section from field:
	//
	//	EMBEDD_SERVER_TCP_BIND      -> server.tcp_bind
	//	EMBEDD_EMBEDDING_CACHE_DIR  -> embedding.cache_dir
	//	EMBEDD_LOGGING_LEVEL        -> logging.level
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}
