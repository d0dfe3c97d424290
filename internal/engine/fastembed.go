package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"

	fastembed "github.com/anush008/fastembed-go"
	"golang.org/x/sync/semaphore"
)

// modelMapping maps friendly model names to fastembed model constants.
var modelMapping = map[string]fastembed.EmbeddingModel{
	"BAAI/bge-small-en-v1.5":                 fastembed.BGESmallENV15,
	"BAAI/bge-small-en":                      fastembed.BGESmallEN,
	"BAAI/bge-base-en-v1.5":                  fastembed.BGEBaseENV15,
	"BAAI/bge-base-en":                       fastembed.BGEBaseEN,
	"BAAI/bge-small-zh-v1.5":                 fastembed.BGESmallZH,
	"sentence-transformers/all-MiniLM-L6-v2": fastembed.AllMiniLML6V2,
}

// FastEmbed runs local ONNX inference through fastembed-go. Inference is
// CPU-bound, so all Embed calls share a bounded worker pool; callers block
// in semaphore acquisition (which respects their deadline) rather than
// piling work onto the runtime.
type FastEmbed struct {
	models map[string]*fastembed.FlagEmbedding
	specs  []Model
	sem    *semaphore.Weighted
}

// NewFastEmbed loads every configured model eagerly. Loading may download
// model files into cfg.CacheDir on first use.
func NewFastEmbed(cfg Config) (*FastEmbed, error) {
	if len(cfg.Models) == 0 {
		return nil, fmt.Errorf("%w: no models configured", ErrInvalidConfig)
	}

	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(".", "model_cache")
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	fe := &FastEmbed{
		models: make(map[string]*fastembed.FlagEmbedding, len(cfg.Models)),
		specs:  cfg.Models,
		sem:    semaphore.NewWeighted(int64(workers)),
	}

	showProgress := false
	for _, m := range cfg.Models {
		constant, ok := modelMapping[m.Name]
		if !ok {
			fe.Close()
			return nil, fmt.Errorf("%w: unsupported model %q", ErrInvalidConfig, m.Name)
		}

		maxLength := m.MaxSequenceLength
		if maxLength == 0 {
			maxLength = 512
		}

		flag, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
			Model:                constant,
			CacheDir:             cacheDir,
			MaxLength:            maxLength,
			ShowDownloadProgress: &showProgress,
		})
		if err != nil {
			fe.Close()
			return nil, fmt.Errorf("initializing model %q: %w", m.Name, err)
		}
		fe.models[m.Name] = flag
	}

	return fe, nil
}

type embedResult struct {
	vec []float32
	err error
}

// Embed computes an embedding on the worker pool. Cancellation is advisory:
// when ctx expires the call returns immediately, while the inference
// goroutine finishes in the background and frees its worker slot on
// completion.
func (f *FastEmbed) Embed(ctx context.Context, text, model string, _ Options) ([]float32, error) {
	flag, ok := f.models[model]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrModelNotLoaded, model)
	}

	if err := f.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	ch := make(chan embedResult, 1)
	go func() {
		defer f.sem.Release(1)
		vec, err := flag.QueryEmbed(text)
		if err != nil {
			ch <- embedResult{err: fmt.Errorf("%w: %v", ErrInference, err)}
			return
		}
		ch <- embedResult{vec: vec}
	}()

	select {
	case res := <-ch:
		return res.vec, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Models lists the configured models.
func (f *FastEmbed) Models() []Model {
	out := make([]Model, len(f.specs))
	copy(out, f.specs)
	return out
}

// Close destroys all loaded models.
func (f *FastEmbed) Close() error {
	var firstErr error
	for name, flag := range f.models {
		if err := flag.Destroy(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("destroying model %q: %w", name, err)
		}
	}
	f.models = nil
	return firstErr
}
