// Package mongo is a MongoDB-backed session.Store, grounded on the
// teacher's features/session/mongo, for deployments where conversation
// history must survive a coordinator restart.
package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/entityruntime/agentcore/model"
)

// Collection captures the subset of *mongo.Collection this store uses.
type Collection interface {
	InsertOne(ctx context.Context, document any, opts ...options.Lister[options.InsertOneOptions]) (*mongo.InsertOneResult, error)
	Find(ctx context.Context, filter any, opts ...options.Lister[options.FindOptions]) (*mongo.Cursor, error)
	CountDocuments(ctx context.Context, filter any, opts ...options.Lister[options.CountOptions]) (int64, error)
}

type toolCallDoc struct {
	ID        string `bson:"id"`
	Name      string `bson:"name"`
	Arguments string `bson:"arguments"`
}

type turnDoc struct {
	EntityID   string        `bson:"entityId"`
	Seq        int64         `bson:"seq"`
	Role       string        `bson:"role"`
	Text       string        `bson:"text"`
	ToolCalls  []toolCallDoc `bson:"toolCalls,omitempty"`
	ToolCallID string        `bson:"toolCallId,omitempty"`
	ToolName   string        `bson:"toolName,omitempty"`
}

// Store implements session.Store over a Mongo collection. Turns are
// flattened to their text content; non-text parts (e.g. images) are not
// round-tripped through this backend (see DESIGN.md).
type Store struct {
	coll Collection
}

// New builds a Store bound to an existing collection handle, typically
// client.Database(name).Collection("conversation_turns").
func New(coll Collection) (*Store, error) {
	if coll == nil {
		return nil, errors.New("mongo: collection is required")
	}
	return &Store{coll: coll}, nil
}

// Append implements session.Store.
func (s *Store) Append(ctx context.Context, entityID string, turns ...*model.Message) error {
	base, err := s.coll.CountDocuments(ctx, bson.M{"entityId": entityID})
	if err != nil {
		return err
	}
	for i, t := range turns {
		if t == nil {
			continue
		}
		d := turnDoc{
			EntityID:   entityID,
			Seq:        base + int64(i),
			Role:       string(t.Role),
			Text:       t.Text(),
			ToolCallID: t.ToolCallID,
			ToolName:   t.ToolName,
		}
		for _, tc := range t.ToolCalls {
			d.ToolCalls = append(d.ToolCalls, toolCallDoc{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments})
		}
		if _, err := s.coll.InsertOne(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

// History implements session.Store.
func (s *Store) History(ctx context.Context, entityID string) ([]*model.Message, error) {
	cur, err := s.coll.Find(ctx, bson.M{"entityId": entityID}, options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []*model.Message
	for cur.Next(ctx) {
		var d turnDoc
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		m := &model.Message{
			Role:       model.ConversationRole(d.Role),
			Parts:      []model.Part{model.TextPart{Text: d.Text}},
			ToolCallID: d.ToolCallID,
			ToolName:   d.ToolName,
		}
		for _, tc := range d.ToolCalls {
			m.ToolCalls = append(m.ToolCalls, model.ToolCall{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments})
		}
		out = append(out, m)
	}
	return out, cur.Err()
}
