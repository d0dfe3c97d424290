package engine

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"
)

// Static is a deterministic engine with no model files: the vector for a
// given (text, model) pair is derived from a hash of the input. It backs the
// "static" engine kind for smoke testing a deployment without ONNX assets,
// and the test suites use its Delay and Fail knobs to exercise timeout,
// pipelining, and failure paths.
type Static struct {
	models map[string]Model
	specs  []Model

	// Delay, when set, is how long an Embed call takes per request.
	Delay func(text string) time.Duration

	// Fail, when set, is returned by every Embed call.
	Fail error

	// Dimension overrides the resolved model's dimension when non-zero.
	// Tests use it to provoke the dimension-postcondition defect path.
	Dimension int
}

// NewStatic creates a static engine serving the given models.
func NewStatic(models []Model) *Static {
	s := &Static{
		models: make(map[string]Model, len(models)),
		specs:  models,
	}
	for _, m := range models {
		s.models[m.Name] = m
	}
	return s
}

// Embed returns a deterministic pseudo-embedding of the model's dimension.
func (s *Static) Embed(ctx context.Context, text, model string, _ Options) ([]float32, error) {
	m, ok := s.models[model]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrModelNotLoaded, model)
	}

	if s.Delay != nil {
		select {
		case <-time.After(s.Delay(text)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Fail != nil {
		return nil, s.Fail
	}

	dim := m.Dimension
	if s.Dimension != 0 {
		dim = s.Dimension
	}

	h := fnv.New64a()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	state := h.Sum64()

	vec := make([]float32, dim)
	for i := range vec {
		// xorshift64 keeps the sequence deterministic per (text, model).
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		vec[i] = float32(state%2000)/1000 - 1
	}
	return vec, nil
}

// Models lists the configured models.
func (s *Static) Models() []Model {
	out := make([]Model, len(s.specs))
	copy(out, s.specs)
	return out
}

// Close is a no-op.
func (s *Static) Close() error { return nil }
