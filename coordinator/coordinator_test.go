package coordinator_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entityruntime/agentcore/coordinator"
	"github.com/entityruntime/agentcore/memory"
	"github.com/entityruntime/agentcore/model"
	"github.com/entityruntime/agentcore/modelplugin"
	runinmem "github.com/entityruntime/agentcore/store/run/inmem"
	sessioninmem "github.com/entityruntime/agentcore/store/session/inmem"
	"github.com/entityruntime/agentcore/stream"
	"github.com/entityruntime/agentcore/toolregistry"
)

type stubPlugin struct {
	text string
}

func (s stubPlugin) Call(context.Context, modelplugin.CallArgs) (*modelplugin.Result, stream.Handle, error) {
	return &modelplugin.Result{OutputText: s.text}, nil, nil
}

func (stubPlugin) GetModelMaxPromptTokens() int { return 128000 }

func TestSubmit_SynchronousReturnsFinalMessageAndPersistsState(t *testing.T) {
	t.Parallel()

	registry := toolregistry.New()
	runs := runinmem.New()
	sessions := sessioninmem.New()
	rec := memory.NewInMemRecorder()

	coord := coordinator.New(registry, stubPlugin{text: "hello there"},
		coordinator.WithRunStore(runs),
		coordinator.WithSessionStore(sessions),
		coordinator.WithMemory(rec),
	)

	req := &model.Request{EntityID: "ent-1", UserMessage: "hi", InvocationType: model.InvocationChat}
	id, msg, err := coord.Submit(context.Background(), req, toolregistry.EntityConfig{EntityID: "ent-1"})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.NotNil(t, msg)
	assert.Equal(t, "hello there", msg.Text())

	rec2, err := runs.Load(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, rec2.RequestID)

	history, err := sessions.History(context.Background(), "ent-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "hi", history[0].Text())
	assert.Equal(t, "hello there", history[1].Text())

	events := rec.Events("ent-1")
	require.Len(t, events, 2)
}

func TestSubmit_StreamingReturnsRequestIDImmediately(t *testing.T) {
	t.Parallel()

	registry := toolregistry.New()
	coord := coordinator.New(registry, stubPlugin{text: "async reply"})

	req := &model.Request{ID: "req-known-id", EntityID: "ent-2", UserMessage: "hi", Stream: true}
	ch, cancel := coord.Subscribe(req.ID)
	defer cancel()

	id, msg, err := coord.Submit(context.Background(), req, toolregistry.EntityConfig{EntityID: "ent-2"})
	require.NoError(t, err)
	assert.Equal(t, "req-known-id", id)
	assert.Nil(t, msg)

	evt := <-ch
	assert.Equal(t, float64(1), evt.Progress)
}

func TestCancel_UnknownRequestReturnsError(t *testing.T) {
	t.Parallel()

	coord := coordinator.New(toolregistry.New(), stubPlugin{text: "x"})
	err := coord.Cancel("does-not-exist")
	assert.Error(t, err)
}
