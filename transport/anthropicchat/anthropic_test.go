package anthropicchat

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/skosovsky/toolloop"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeMessages struct {
	resp   *anthropicsdk.Message
	err    error
	params anthropicsdk.MessageNewParams
	calls  int
}

func (f *fakeMessages) New(_ context.Context, params anthropicsdk.MessageNewParams, _ ...option.RequestOption) (*anthropicsdk.Message, error) {
	f.calls++
	f.params = params
	return f.resp, f.err
}

func textMessage(text string) *anthropicsdk.Message {
	return &anthropicsdk.Message{
		Role:    "assistant",
		Content: []anthropicsdk.ContentBlockUnion{{Type: "text", Text: text}},
	}
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api key required")

	tr, err := New(Config{APIKey: "key", Model: "claude-haiku-4-5"})
	require.NoError(t, err)
	assert.Equal(t, "claude-haiku-4-5", tr.Model())
}

func TestSend_TextAnswer(t *testing.T) {
	fake := &fakeMessages{resp: textMessage("It's 32°C in Paris.")}
	tr := newTransport(fake, "", 0)
	choice, err := tr.Send(context.Background(), []toolloop.Message{toolloop.UserMessage("weather?")}, nil)
	require.NoError(t, err)
	assert.Equal(t, toolloop.RoleAssistant, choice.Role)
	assert.Equal(t, "It's 32°C in Paris.", choice.Content)
	assert.Empty(t, choice.ToolCalls)

	assert.Equal(t, DefaultModel, fake.params.Model)
	assert.Equal(t, int64(DefaultMaxTokens), fake.params.MaxTokens)
	require.Len(t, fake.params.Messages, 1)
	assert.Equal(t, anthropicsdk.MessageParamRoleUser, fake.params.Messages[0].Role)
	assert.Empty(t, fake.params.Tools)
}

func TestSend_ToolUse(t *testing.T) {
	fake := &fakeMessages{resp: &anthropicsdk.Message{
		Role: "assistant",
		Content: []anthropicsdk.ContentBlockUnion{
			{Type: "text", Text: "Let me check."},
			{Type: "tool_use", ID: "toolu_1", Name: "get_weather", Input: json.RawMessage(`{"location":"Paris"}`)},
			{Type: "tool_use", ID: "toolu_2", Name: "get_time"},
		},
	}}
	tr := newTransport(fake, "", 0)
	choice, err := tr.Send(context.Background(), []toolloop.Message{toolloop.UserMessage("weather?")}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Let me check.", choice.Content)
	require.Len(t, choice.ToolCalls, 2)
	assert.Equal(t, "toolu_1", choice.ToolCalls[0].ID)
	assert.Equal(t, "get_weather", choice.ToolCalls[0].ToolName)
	assert.JSONEq(t, `{"location":"Paris"}`, string(choice.ToolCalls[0].Args))
	assert.JSONEq(t, `{}`, string(choice.ToolCalls[1].Args))
}

func TestSend_ToolDefinitions(t *testing.T) {
	fake := &fakeMessages{resp: textMessage("ok")}
	tr := newTransport(fake, "", 0)
	spec := toolloop.ToolSpec{
		Name:        "get_weather",
		Description: "Get current temperature for a given location.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"location": map[string]any{"type": "string"},
				"days":     map[string]any{"type": "integer", "minimum": json.Number("1")},
			},
			"required": []any{"location"},
		},
	}
	_, err := tr.Send(context.Background(), []toolloop.Message{toolloop.UserMessage("hi")}, []toolloop.ToolSpec{spec})
	require.NoError(t, err)
	require.Len(t, fake.params.Tools, 1)
	tool := fake.params.Tools[0].OfTool
	require.NotNil(t, tool)
	assert.Equal(t, "get_weather", tool.Name)
	assert.Equal(t, "Get current temperature for a given location.", tool.Description.Value)
	assert.Equal(t, []string{"location"}, tool.InputSchema.Required)
	data, err := json.Marshal(tool.InputSchema)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"minimum":1`)
}

func TestSend_SystemAndToolResultGrouping(t *testing.T) {
	fake := &fakeMessages{resp: textMessage("done")}
	tr := newTransport(fake, "claude-test", 256)
	transcript := []toolloop.Message{
		{Role: toolloop.RoleSystem, Content: "Be brief."},
		toolloop.UserMessage("weather in two cities?"),
		toolloop.AssistantMessage("",
			toolloop.ToolCall{ID: "a", ToolName: "get_weather", Args: []byte(`{"location":"Paris"}`)},
			toolloop.ToolCall{ID: "b", ToolName: "get_weather", Args: []byte(`{"location":"Oslo"}`)},
		),
		toolloop.ToolResultMessage("a", "error: sensor offline, showing cached 32°C"),
		toolloop.ToolErrorMessage("b", "error: invalid tool input: bad"),
	}
	_, err := tr.Send(context.Background(), transcript, nil)
	require.NoError(t, err)

	require.Len(t, fake.params.System, 1)
	assert.Equal(t, "Be brief.", fake.params.System[0].Text)
	assert.Equal(t, anthropicsdk.Model("claude-test"), fake.params.Model)
	assert.Equal(t, int64(256), fake.params.MaxTokens)

	msgs := fake.params.Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, anthropicsdk.MessageParamRoleUser, msgs[0].Role)
	assert.Equal(t, anthropicsdk.MessageParamRoleAssistant, msgs[1].Role)
	require.Len(t, msgs[1].Content, 2)
	require.NotNil(t, msgs[1].Content[0].OfToolUse)
	assert.Equal(t, "a", msgs[1].Content[0].OfToolUse.ID)
	assert.Equal(t, "get_weather", msgs[1].Content[0].OfToolUse.Name)

	assert.Equal(t, anthropicsdk.MessageParamRoleUser, msgs[2].Role)
	require.Len(t, msgs[2].Content, 2)
	first, second := msgs[2].Content[0].OfToolResult, msgs[2].Content[1].OfToolResult
	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, "a", first.ToolUseID)
	assert.Equal(t, "b", second.ToolUseID)
	assert.True(t, second.IsError.Value)
	assert.False(t, first.IsError.Value, "only failed calls are flagged, whatever the text says")
}

func TestEncodeSchema_KeepsEveryRootKeyword(t *testing.T) {
	doc := map[string]any{
		"type":                 "object",
		"description":          "Shipment lookup",
		"additionalProperties": false,
		"$defs": map[string]any{
			"address": map[string]any{"type": "string"},
		},
		"properties": map[string]any{
			"to":    map[string]any{"$ref": "#/$defs/address"},
			"count": map[string]any{"type": "integer", "minimum": json.Number("1")},
		},
		"required": []any{"to"},
	}
	schema, err := encodeSchema(doc)
	require.NoError(t, err)
	assert.Equal(t, []string{"to"}, schema.Required)

	data, err := json.Marshal(schema)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"type": "object",
		"description": "Shipment lookup",
		"additionalProperties": false,
		"$defs": {"address": {"type": "string"}},
		"properties": {
			"to": {"$ref": "#/$defs/address"},
			"count": {"type": "integer", "minimum": 1}
		},
		"required": ["to"]
	}`, string(data))
}

func TestEncodeSchema_RejectsMalformedRoot(t *testing.T) {
	_, err := encodeSchema(map[string]any{"type": "string"})
	require.Error(t, err)
	_, err = encodeSchema(map[string]any{"type": "object", "required": "location"})
	require.Error(t, err)
}

func TestSend_ToolDefinitionKeepsAdditionalProperties(t *testing.T) {
	fake := &fakeMessages{resp: textMessage("ok")}
	spec := toolloop.ToolSpec{
		Name: "get_delivery_date",
		Parameters: map[string]any{
			"type":                 "object",
			"additionalProperties": false,
			"properties":           map[string]any{"order_id": map[string]any{"type": "string"}},
			"required":             []any{"order_id"},
		},
	}
	_, err := newTransport(fake, "", 0).Send(context.Background(), []toolloop.Message{toolloop.UserMessage("hi")}, []toolloop.ToolSpec{spec})
	require.NoError(t, err)
	require.Len(t, fake.params.Tools, 1)
	data, err := json.Marshal(fake.params.Tools[0].OfTool.InputSchema)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"additionalProperties":false`)
}

func TestSend_UnknownRole(t *testing.T) {
	fake := &fakeMessages{resp: textMessage("x")}
	_, err := newTransport(fake, "", 0).Send(context.Background(), []toolloop.Message{{Role: "narrator"}}, nil)
	require.Error(t, err)
	assert.Zero(t, fake.calls)
}

func TestSend_APIError(t *testing.T) {
	boom := errors.New("overloaded")
	fake := &fakeMessages{err: boom}
	_, err := newTransport(fake, "", 0).Send(context.Background(), []toolloop.Message{toolloop.UserMessage("hi")}, nil)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, fake.calls)
}

func TestSend_NilResponse(t *testing.T) {
	fake := &fakeMessages{}
	_, err := newTransport(fake, "", 0).Send(context.Background(), []toolloop.Message{toolloop.UserMessage("hi")}, nil)
	require.ErrorIs(t, err, toolloop.ErrUnexpectedMessage)
}
