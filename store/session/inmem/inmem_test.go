package inmem_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entityruntime/agentcore/model"
	"github.com/entityruntime/agentcore/store/session/inmem"
)

func TestAppendAndHistory_PreservesOrderPerEntity(t *testing.T) {
	t.Parallel()

	store := inmem.New()
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "ent-1", model.NewUserText("hi"), model.NewUserText("hello back")))
	require.NoError(t, store.Append(ctx, "ent-2", model.NewUserText("unrelated")))

	history, err := store.History(ctx, "ent-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "hi", history[0].Text())
	assert.Equal(t, "hello back", history[1].Text())
}

func TestHistory_MutatingReturnedSliceDoesNotAffectStore(t *testing.T) {
	t.Parallel()

	store := inmem.New()
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, "ent-1", model.NewUserText("original")))

	history, err := store.History(ctx, "ent-1")
	require.NoError(t, err)
	history[0] = model.NewUserText("mutated")

	second, err := store.History(ctx, "ent-1")
	require.NoError(t, err)
	assert.Equal(t, "original", second[0].Text())
}

func TestHistory_UnknownEntityReturnsEmptySlice(t *testing.T) {
	t.Parallel()

	store := inmem.New()
	history, err := store.History(context.Background(), "does-not-exist")
	require.NoError(t, err)
	assert.Empty(t, history)
}
