package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry() *Registry {
	r := New("small")
	r.Add(Descriptor{Name: "small", Dimension: 384, MaxSequenceLength: 512})
	r.Add(Descriptor{Name: "base", Dimension: 768, MaxSequenceLength: 512})
	r.Add(Descriptor{Name: "broken", Dimension: 384, MaxSequenceLength: 512})
	r.MarkReady("small")
	r.MarkReady("base")
	r.MarkDisabled("broken")
	return r
}

func TestResolve(t *testing.T) {
	r := newTestRegistry()

	t.Run("named model", func(t *testing.T) {
		d, err := r.Resolve("base")
		require.NoError(t, err)
		assert.Equal(t, "base", d.Name)
		assert.Equal(t, 768, d.Dimension)
	})

	t.Run("empty name uses default", func(t *testing.T) {
		d, err := r.Resolve("")
		require.NoError(t, err)
		assert.Equal(t, "small", d.Name)
	})

	t.Run("unknown name", func(t *testing.T) {
		_, err := r.Resolve("no-such-model")
		assert.ErrorIs(t, err, ErrUnknownModel)
	})

	t.Run("disabled name falls back to default", func(t *testing.T) {
		d, err := r.Resolve("broken")
		require.NoError(t, err)
		assert.Equal(t, "small", d.Name)
	})

	t.Run("disabled default resolves nothing", func(t *testing.T) {
		r2 := New("only")
		r2.Add(Descriptor{Name: "only", Dimension: 384})
		r2.MarkDisabled("only")
		_, err := r2.Resolve("")
		assert.ErrorIs(t, err, ErrNoModel)
	})
}

func TestLifecycleTransitions(t *testing.T) {
	r := New("m")
	r.Add(Descriptor{Name: "m", Dimension: 384})

	d, ok := r.Get("m")
	require.True(t, ok)
	assert.Equal(t, StateLoading, d.State)

	r.MarkReady("m")
	d, _ = r.Get("m")
	assert.Equal(t, StateReady, d.State)

	// Transitions are one-shot; a Ready model never becomes Disabled.
	r.MarkDisabled("m")
	d, _ = r.Get("m")
	assert.Equal(t, StateReady, d.State)
}

func TestAnyReady(t *testing.T) {
	r := New("m")
	r.Add(Descriptor{Name: "m", Dimension: 384})
	assert.False(t, r.AnyReady())

	r.MarkReady("m")
	assert.True(t, r.AnyReady())
}

func TestListKeepsRegistrationOrder(t *testing.T) {
	r := newTestRegistry()
	list := r.List()
	require.Len(t, list, 3)
	assert.Equal(t, "small", list[0].Name)
	assert.Equal(t, "base", list[1].Name)
	assert.Equal(t, "broken", list[2].Name)
	assert.Equal(t, StateDisabled, list[2].State)
}
