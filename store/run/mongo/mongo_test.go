package mongo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	bsonpkg "go.mongodb.org/mongo-driver/v2/bson"
	drivermongo "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	runstore "github.com/entityruntime/agentcore/store/run"
	"github.com/entityruntime/agentcore/store/run/mongo"
)

type fakeCollection struct {
	stored map[string]bsonpkg.M
}

func newFakeCollection() *fakeCollection { return &fakeCollection{stored: make(map[string]bsonpkg.M)} }

func (f *fakeCollection) ReplaceOne(_ context.Context, filter, replacement any, _ ...options.Lister[options.ReplaceOptions]) (*drivermongo.UpdateResult, error) {
	m, ok := filter.(bsonpkg.M)
	if !ok {
		return nil, errors.New("unexpected filter type")
	}
	id, _ := m["_id"].(string)

	b, err := bsonpkg.Marshal(replacement)
	if err != nil {
		return nil, err
	}
	var out bsonpkg.M
	if err := bsonpkg.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	f.stored[id] = out
	return &drivermongo.UpdateResult{}, nil
}

func (f *fakeCollection) FindOne(_ context.Context, filter any, _ ...options.Lister[options.FindOneOptions]) *drivermongo.SingleResult {
	m, _ := filter.(bsonpkg.M)
	id, _ := m["_id"].(string)
	stored, ok := f.stored[id]
	if !ok {
		return drivermongo.NewSingleResultFromDocument(bsonpkg.M{}, drivermongo.ErrNoDocuments, nil)
	}
	return drivermongo.NewSingleResultFromDocument(stored, nil, nil)
}

func TestUpsertThenLoad_RoundTripsRecord(t *testing.T) {
	t.Parallel()

	coll := newFakeCollection()
	store, err := mongo.New(coll)
	require.NoError(t, err)

	now := time.Now().Truncate(time.Millisecond)
	rec := runstore.Record{
		RequestID: "req-1",
		RootID:    "root-1",
		EntityID:  "ent-1",
		Status:    runstore.StatusCompleted,
		StartedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.Upsert(context.Background(), rec))

	loaded, err := store.Load(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, rec.RequestID, loaded.RequestID)
	assert.Equal(t, rec.Status, loaded.Status)
	assert.True(t, loaded.StartedAt.Equal(now))
}

func TestLoad_MissingRecordReturnsErrNotFound(t *testing.T) {
	t.Parallel()

	store, err := mongo.New(newFakeCollection())
	require.NoError(t, err)

	_, err = store.Load(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, runstore.ErrNotFound)
}

func TestNew_NilCollectionReturnsError(t *testing.T) {
	t.Parallel()

	_, err := mongo.New(nil)
	assert.Error(t, err)
}
