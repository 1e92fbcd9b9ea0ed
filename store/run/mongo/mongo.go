// Package mongo is a MongoDB-backed run.Store for multi-process deployments
// that need request lifecycle state to survive past one coordinator
// process, grounded on the teacher's features/run/mongo.
package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	runstore "github.com/entityruntime/agentcore/store/run"
)

// Collection captures the subset of *mongo.Collection this store uses, so
// a fake can stand in for tests.
type Collection interface {
	ReplaceOne(ctx context.Context, filter, replacement any, opts ...options.Lister[options.ReplaceOptions]) (*mongo.UpdateResult, error)
	FindOne(ctx context.Context, filter any, opts ...options.Lister[options.FindOneOptions]) *mongo.SingleResult
}

type doc struct {
	RequestID string          `bson:"_id"`
	RootID    string          `bson:"rootId,omitempty"`
	EntityID  string          `bson:"entityId"`
	Status    runstore.Status `bson:"status"`
	StartedAt int64           `bson:"startedAt"`
	UpdatedAt int64           `bson:"updatedAt"`
	Error     string          `bson:"error,omitempty"`
}

// Store implements run.Store over a Mongo collection.
type Store struct {
	coll Collection
}

// New builds a Store bound to an existing collection handle, typically
// client.Database(name).Collection("runs").
func New(coll Collection) (*Store, error) {
	if coll == nil {
		return nil, errors.New("mongo: collection is required")
	}
	return &Store{coll: coll}, nil
}

// Upsert implements run.Store.
func (s *Store) Upsert(ctx context.Context, r runstore.Record) error {
	d := doc{
		RequestID: r.RequestID,
		RootID:    r.RootID,
		EntityID:  r.EntityID,
		Status:    r.Status,
		StartedAt: r.StartedAt.UnixMilli(),
		UpdatedAt: r.UpdatedAt.UnixMilli(),
		Error:     r.Error,
	}
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": r.RequestID}, d, options.Replace().SetUpsert(true))
	return err
}

// Load implements run.Store.
func (s *Store) Load(ctx context.Context, requestID string) (runstore.Record, error) {
	var d doc
	err := s.coll.FindOne(ctx, bson.M{"_id": requestID}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return runstore.Record{}, runstore.ErrNotFound
	}
	if err != nil {
		return runstore.Record{}, err
	}
	return runstore.Record{
		RequestID: d.RequestID,
		RootID:    d.RootID,
		EntityID:  d.EntityID,
		Status:    d.Status,
		StartedAt: time.UnixMilli(d.StartedAt).UTC(),
		UpdatedAt: time.UnixMilli(d.UpdatedAt).UTC(),
		Error:     d.Error,
	}, nil
}
