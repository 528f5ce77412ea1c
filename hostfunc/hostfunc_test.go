package hostfunc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryCall(t *testing.T) {
	r := NewRegistry()

	_, err := r.Call(context.Background(), "missing", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown function: missing")

	r.Register("echo", func(_ context.Context, args map[string]any) (any, error) {
		return args["msg"], nil
	})

	out, err := r.Call(context.Background(), "echo", map[string]any{"msg": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", out)
}

func TestRegistryOverwrite(t *testing.T) {
	r := NewRegistry()
	r.Register("f", func(context.Context, map[string]any) (any, error) { return 1, nil })
	r.Register("f", func(context.Context, map[string]any) (any, error) { return 2, nil })

	out, err := r.Call(context.Background(), "f", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, out)
}
