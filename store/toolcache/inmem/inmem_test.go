package inmem_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entityruntime/agentcore/store/toolcache/inmem"
)

func TestGet_MissingKeyReturnsFalseNoError(t *testing.T) {
	t.Parallel()

	store := inmem.New()
	_, found, err := store.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPutThenGet_RoundTripsValue(t *testing.T) {
	t.Parallel()

	store := inmem.New()
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "key-1", "cached result"))

	value, found, err := store.Get(ctx, "key-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "cached result", value)
}
