// Package engine defines the inference boundary the dispatcher calls into.
// The serving layer treats implementations as opaque: text and a resolved
// model name go in, a fixed-dimension vector or an error comes out.
package engine

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrModelNotLoaded indicates the engine has no loaded model under the
	// requested name. The dispatcher resolves models against the registry
	// first, so hitting this at runtime is a wiring defect.
	ErrModelNotLoaded = errors.New("engine: model not loaded")

	// ErrInference indicates the underlying inference call failed.
	ErrInference = errors.New("engine: inference failed")

	// ErrInvalidConfig indicates an unusable engine configuration.
	ErrInvalidConfig = errors.New("engine: invalid configuration")
)

// Options carries client-supplied chunking hints. The serving core forwards
// them untouched; whether an engine honors them is its own business.
type Options struct {
	ChunkStyle string
	ChunkSize  int
}

// Model describes one model an engine can serve.
type Model struct {
	Name              string
	Dimension         int
	MaxSequenceLength int
}

// Engine turns text into a fixed-dimension embedding vector.
type Engine interface {
	// Embed computes the embedding of text with the named model. It honors
	// ctx cancellation on a best-effort basis: the underlying inference may
	// run to completion, but Embed returns as soon as ctx is done.
	Embed(ctx context.Context, text, model string, opts Options) ([]float32, error)

	// Models lists the models this engine was configured with.
	Models() []Model

	// Close releases engine resources.
	Close() error
}

// Config selects and parameterizes an engine implementation.
type Config struct {
	// Kind is the engine implementation: "fastembed" or "static".
	Kind string
	// Models are the models to load.
	Models []Model
	// CacheDir is where fastembed caches downloaded model files.
	CacheDir string
	// Workers bounds concurrent inference calls so CPU-bound work never
	// starves the connection-handling goroutines.
	Workers int
}

// New creates an engine from config.
func New(cfg Config) (Engine, error) {
	switch cfg.Kind {
	case "fastembed", "":
		return NewFastEmbed(cfg)
	case "static":
		return NewStatic(cfg.Models), nil
	default:
		return nil, fmt.Errorf("%w: unknown engine %q", ErrInvalidConfig, cfg.Kind)
	}
}
