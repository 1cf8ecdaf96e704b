package tool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTool struct {
	descriptor Descriptor
}

func (s *stubTool) Descriptor() Descriptor { return s.descriptor }

func (s *stubTool) Execute(context.Context, *ExecContext, map[string]any) ([]byte, error) {
	return nil, nil
}

func (s *stubTool) Parse(*ExecContext, []byte) (ParseResult, error) {
	return ParseResult{}, nil
}

func TestRegistry(t *testing.T) {
	t.Run("register and get", func(t *testing.T) {
		r := NewRegistry()
		tool := &stubTool{descriptor: Descriptor{ID: "probe"}}

		require.NoError(t, r.Register(tool))

		got, err := r.Get("probe")
		require.NoError(t, err)
		assert.Same(t, tool, got.(*stubTool))
	})

	t.Run("rejects empty id", func(t *testing.T) {
		r := NewRegistry()
		err := r.Register(&stubTool{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "tool id is required")
	})

	t.Run("rejects duplicate id", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(&stubTool{descriptor: Descriptor{ID: "probe"}}))

		err := r.Register(&stubTool{descriptor: Descriptor{ID: "probe"}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already registered")
	})

	t.Run("get unknown id", func(t *testing.T) {
		r := NewRegistry()
		_, err := r.Get("missing")
		assert.ErrorIs(t, err, ErrToolNotFound)
	})

	t.Run("list preserves registration order", func(t *testing.T) {
		r := NewRegistry()
		for _, id := range []string{"charlie", "alpha", "bravo"} {
			require.NoError(t, r.Register(&stubTool{descriptor: Descriptor{ID: id}}))
		}

		descriptors := r.List()
		require.Len(t, descriptors, 3)
		assert.Equal(t, "charlie", descriptors[0].ID)
		assert.Equal(t, "alpha", descriptors[1].ID)
		assert.Equal(t, "bravo", descriptors[2].ID)
	})
}

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()

	descriptors := r.List()
	require.Len(t, descriptors, 3)
	assert.Equal(t, "amass", descriptors[0].ID)
	assert.Equal(t, "sherlock", descriptors[1].ID)
	assert.Equal(t, "exiftool", descriptors[2].ID)

	// Every built-in descriptor is complete enough to render a form
	for _, d := range descriptors {
		assert.NotEmpty(t, d.Name, "tool %s missing name", d.ID)
		assert.NotEmpty(t, d.Description, "tool %s missing description", d.ID)
		assert.NotEmpty(t, d.Source, "tool %s missing source", d.ID)
		assert.NotEmpty(t, d.Params, "tool %s missing params", d.ID)
	}
}
