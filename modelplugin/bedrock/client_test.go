package bedrock_test

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entityruntime/agentcore/model"
	"github.com/entityruntime/agentcore/modelplugin"
	"github.com/entityruntime/agentcore/modelplugin/bedrock"
)

type fakeRuntimeClient struct {
	converseOut    *bedrockruntime.ConverseOutput
	converseErr    error
	lastConverseIn *bedrockruntime.ConverseInput
}

func (f *fakeRuntimeClient) Converse(_ context.Context, params *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.lastConverseIn = params
	return f.converseOut, f.converseErr
}

func (f *fakeRuntimeClient) ConverseStream(context.Context, *bedrockruntime.ConverseStreamInput, ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error) {
	return nil, nil
}

func TestCall_NonStreamingTranslatesTextAndToolUse(t *testing.T) {
	t.Parallel()

	client := &fakeRuntimeClient{
		converseOut: &bedrockruntime.ConverseOutput{
			StopReason: brtypes.StopReasonToolUse,
			Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{
				Role: brtypes.ConversationRoleAssistant,
				Content: []brtypes.ContentBlock{
					&brtypes.ContentBlockMemberText{Value: "let me check"},
					&brtypes.ContentBlockMemberToolUse{Value: brtypes.ToolUseBlock{
						ToolUseId: aws.String("call-1"),
						Name:      aws.String("clock.now"),
						Input:     nil,
					}},
				},
			}},
			Usage: &brtypes.TokenUsage{
				InputTokens:  aws.Int32(10),
				OutputTokens: aws.Int32(5),
				TotalTokens:  aws.Int32(15),
			},
		},
	}

	plugin, err := bedrock.New(client, bedrock.Options{DefaultModel: "anthropic.claude-3-sonnet"})
	require.NoError(t, err)

	result, handle, err := plugin.Call(context.Background(), modelplugin.CallArgs{
		Messages: []*model.Message{model.NewUserText("what time is it?")},
	})
	require.NoError(t, err)
	assert.Nil(t, handle)
	require.NotNil(t, result)
	assert.Equal(t, "let me check", result.OutputText)
	require.Len(t, result.ToolCalls, 1)
	assert.Equal(t, "call-1", result.ToolCalls[0].ID)
	assert.Equal(t, "clock.now", result.ToolCalls[0].Name)
	require.NotNil(t, result.Usage)
	assert.Equal(t, 15, result.Usage.TotalTokens)

	require.NotNil(t, client.lastConverseIn)
	assert.Equal(t, "anthropic.claude-3-sonnet", aws.ToString(client.lastConverseIn.ModelId))
}

func TestCall_ConverseErrorIsWrapped(t *testing.T) {
	t.Parallel()

	client := &fakeRuntimeClient{converseErr: assert.AnError}
	plugin, err := bedrock.New(client, bedrock.Options{DefaultModel: "anthropic.claude-3-sonnet"})
	require.NoError(t, err)

	_, _, err = plugin.Call(context.Background(), modelplugin.CallArgs{
		Messages: []*model.Message{model.NewUserText("hi")},
	})
	assert.Error(t, err)
}

func TestNew_RequiresRuntimeClientAndDefaultModel(t *testing.T) {
	t.Parallel()

	_, err := bedrock.New(nil, bedrock.Options{DefaultModel: "m"})
	assert.Error(t, err)

	_, err = bedrock.New(&fakeRuntimeClient{}, bedrock.Options{})
	assert.Error(t, err)
}

func TestGetModelMaxPromptTokens_DefaultsWhenUnset(t *testing.T) {
	t.Parallel()

	plugin, err := bedrock.New(&fakeRuntimeClient{}, bedrock.Options{DefaultModel: "m"})
	require.NoError(t, err)
	assert.Equal(t, 200000, plugin.GetModelMaxPromptTokens())
}
