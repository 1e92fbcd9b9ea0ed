package mongo_test

import (
	"context"
	"testing"

	bsonpkg "go.mongodb.org/mongo-driver/v2/bson"
	drivermongo "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entityruntime/agentcore/model"
	"github.com/entityruntime/agentcore/store/session/mongo"
)

type fakeCollection struct {
	docs []bsonpkg.M
}

func (f *fakeCollection) InsertOne(_ context.Context, document any, _ ...options.Lister[options.InsertOneOptions]) (*drivermongo.InsertOneResult, error) {
	b, err := bsonpkg.Marshal(document)
	if err != nil {
		return nil, err
	}
	var out bsonpkg.M
	if err := bsonpkg.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	f.docs = append(f.docs, out)
	return &drivermongo.InsertOneResult{}, nil
}

func (f *fakeCollection) Find(_ context.Context, filter any, _ ...options.Lister[options.FindOptions]) (*drivermongo.Cursor, error) {
	m, _ := filter.(bsonpkg.M)
	entityID, _ := m["entityId"].(string)

	var matched []bsonpkg.M
	for _, d := range f.docs {
		if id, _ := d["entityId"].(string); id == entityID {
			matched = append(matched, d)
		}
	}
	return drivermongo.NewCursorFromDocuments(toAnySlice(matched), nil, nil)
}

func (f *fakeCollection) CountDocuments(_ context.Context, filter any, _ ...options.Lister[options.CountOptions]) (int64, error) {
	m, _ := filter.(bsonpkg.M)
	entityID, _ := m["entityId"].(string)
	var n int64
	for _, d := range f.docs {
		if id, _ := d["entityId"].(string); id == entityID {
			n++
		}
	}
	return n, nil
}

func toAnySlice(docs []bsonpkg.M) []any {
	out := make([]any, len(docs))
	for i, d := range docs {
		out[i] = d
	}
	return out
}

func TestAppendThenHistory_PreservesOrderAcrossMultipleCalls(t *testing.T) {
	t.Parallel()

	coll := &fakeCollection{}
	store, err := mongo.New(coll)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "ent-1", model.NewUserText("first")))
	require.NoError(t, store.Append(ctx, "ent-1", model.NewUserText("second")))

	history, err := store.History(ctx, "ent-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "first", history[0].Text())
	assert.Equal(t, "second", history[1].Text())
}

func TestNew_NilCollectionReturnsError(t *testing.T) {
	t.Parallel()

	_, err := mongo.New(nil)
	assert.Error(t, err)
}
