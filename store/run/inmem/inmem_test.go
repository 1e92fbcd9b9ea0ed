package inmem_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	runstore "github.com/entityruntime/agentcore/store/run"
	"github.com/entityruntime/agentcore/store/run/inmem"
)

func TestUpsert_PreservesStartedAtAcrossUpdates(t *testing.T) {
	t.Parallel()

	store := inmem.New()
	started := time.Now().Add(-time.Hour)

	require.NoError(t, store.Upsert(context.Background(), runstore.Record{
		RequestID: "req-1",
		Status:    runstore.StatusRunning,
		StartedAt: started,
		UpdatedAt: started,
	}))
	require.NoError(t, store.Upsert(context.Background(), runstore.Record{
		RequestID: "req-1",
		Status:    runstore.StatusCompleted,
		UpdatedAt: time.Now(),
	}))

	rec, err := store.Load(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, runstore.StatusCompleted, rec.Status)
	assert.True(t, rec.StartedAt.Equal(started), "StartedAt must survive an update that omits it")
}

func TestLoad_UnknownRequestReturnsErrNotFound(t *testing.T) {
	t.Parallel()

	store := inmem.New()
	_, err := store.Load(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, runstore.ErrNotFound)
}
