package executor

import (
	"fmt"

	"github.com/entityruntime/agentcore/model"
)

// ErrorResponseBuilder formats a user-facing assistant message for a
// failure that occurred mid-request (§4.2 "Failure handling"). It never
// panics and always returns a usable message, regardless of err.
type ErrorResponseBuilder func(requestID string, err error) *model.Message

// DefaultErrorResponseBuilder is the built-in ErrorResponseBuilder used
// when an executor is constructed without one. It formats a short,
// apologetic message without echoing internal error detail to the user.
func DefaultErrorResponseBuilder(requestID string, err error) *model.Message {
	_ = requestID
	if err == nil {
		return model.NewSystemText("I processed your request but wasn't able to generate a response.")
	}
	return &model.Message{
		Role:  model.RoleAssistant,
		Parts: []model.Part{model.TextPart{Text: fmt.Sprintf("Something went wrong while handling your request: %v", err)}},
	}
}

// EmptyFinalTextFallback is the fixed safety-net message (§4.2) published
// when a synthesis response carries no text content at all.
const EmptyFinalTextFallback = "I processed your request but wasn't able to generate a response."
