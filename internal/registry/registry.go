// Package registry holds the model descriptors the server can route
// requests to. The registry is populated from configuration at startup,
// transitions each model Loading -> Ready (or Disabled) exactly once during
// warm-up, and is read-only for the rest of the process lifetime.
package registry

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrUnknownModel indicates a request named a model the registry has
	// never heard of.
	ErrUnknownModel = errors.New("registry: unknown model")

	// ErrNoModel indicates neither the named model nor the configured
	// default resolves to a usable model.
	ErrNoModel = errors.New("registry: no model resolves")
)

// State is a model's readiness state.
type State int

const (
	StateLoading State = iota
	StateReady
	StateDisabled
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateDisabled:
		return "disabled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Descriptor describes one configured embedding model.
type Descriptor struct {
	Name              string
	Dimension         int
	MaxSequenceLength int
	State             State
}

// Registry maps model names to descriptors.
type Registry struct {
	mu           sync.RWMutex
	models       map[string]Descriptor
	order        []string
	defaultModel string
}

// New creates a registry with the given default model name.
func New(defaultModel string) *Registry {
	return &Registry{
		models:       make(map[string]Descriptor),
		defaultModel: defaultModel,
	}
}

// Add registers a model in the Loading state. Called during startup only.
func (r *Registry) Add(d Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d.State = StateLoading
	if _, ok := r.models[d.Name]; !ok {
		r.order = append(r.order, d.Name)
	}
	r.models[d.Name] = d
}

// MarkReady transitions a model to Ready. Called once per model during
// warm-up; a model that already left Loading is not touched.
func (r *Registry) MarkReady(name string) {
	r.transition(name, StateReady)
}

// MarkDisabled transitions a model to Disabled.
func (r *Registry) MarkDisabled(name string) {
	r.transition(name, StateDisabled)
}

func (r *Registry) transition(name string, to State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.models[name]
	if !ok || d.State != StateLoading {
		return
	}
	d.State = to
	r.models[name] = d
}

// Get returns the descriptor for name.
func (r *Registry) Get(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.models[name]
	return d, ok
}

// DefaultModel returns the configured default model name.
func (r *Registry) DefaultModel() string {
	return r.defaultModel
}

// Resolve picks the model a request should run against: the named model when
// it is known and not disabled, otherwise the configured default. A name the
// registry has never seen is ErrUnknownModel; a default that is missing or
// disabled is ErrNoModel.
func (r *Registry) Resolve(name string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name != "" {
		d, ok := r.models[name]
		if !ok {
			return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownModel, name)
		}
		if d.State != StateDisabled {
			return d, nil
		}
		// Disabled named model falls back to the default.
	}

	d, ok := r.models[r.defaultModel]
	if !ok || d.State == StateDisabled {
		return Descriptor{}, fmt.Errorf("%w: default %q", ErrNoModel, r.defaultModel)
	}
	return d, nil
}

// List returns all descriptors in registration order.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.models[name])
	}
	return out
}

// AnyReady reports whether at least one model is Ready. The health endpoint
// turns this into a 200/503 decision.
func (r *Registry) AnyReady() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.models {
		if d.State == StateReady {
			return true
		}
	}
	return false
}
