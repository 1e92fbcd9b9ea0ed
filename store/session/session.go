// Package session persists the inbound conversation history (§3 Request.History)
// across turns, so a multi-turn conversation survives a coordinator restart
// when backed by a durable Store.
package session

import (
	"context"

	"github.com/entityruntime/agentcore/model"
)

// Store persists and retrieves ordered conversation turns keyed by entity
// (or session) id. Append is called once per completed request with the
// user message and final assistant message; History returns everything
// recorded so far, oldest first.
type Store interface {
	Append(ctx context.Context, entityID string, turns ...*model.Message) error
	History(ctx context.Context, entityID string) ([]*model.Message, error)
}
