// Package anthropicchat is a toolloop.Transport for the Anthropic Messages API.
package anthropicchat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/skosovsky/toolloop"
	"github.com/skosovsky/toolloop/jsonvalue"
)

const (
	// DefaultModel is used when Config.Model is empty.
	DefaultModel = anthropicsdk.ModelClaudeSonnet4_5
	// DefaultMaxTokens bounds each response when Config.MaxTokens is not set.
	DefaultMaxTokens = 4096
)

// Config configures the transport.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxTokens  int
	HTTPClient *http.Client
}

type messagesService interface {
	New(ctx context.Context, params anthropicsdk.MessageNewParams, opts ...option.RequestOption) (*anthropicsdk.Message, error)
}

// Transport sends transcripts to /v1/messages. System messages are lifted into the
// request's system blocks; consecutive tool results are grouped into one user turn.
type Transport struct {
	msgs      messagesService
	model     anthropicsdk.Model
	maxTokens int64
}

// New builds a Transport from cfg. The API key is required. SDK retries are disabled.
func New(cfg Config) (*Transport, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("anthropic: api key required")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	client := anthropicsdk.NewClient(opts...)
	return newTransport(&client.Messages, cfg.Model, cfg.MaxTokens), nil
}

func newTransport(msgs messagesService, model string, maxTokens int) *Transport {
	m := anthropicsdk.Model(strings.TrimSpace(model))
	if m == "" {
		m = DefaultModel
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Transport{msgs: msgs, model: m, maxTokens: int64(maxTokens)}
}

// Model returns the model name sent with every request.
func (t *Transport) Model() string { return string(t.model) }

// Send implements toolloop.Transport.
func (t *Transport) Send(ctx context.Context, transcript []toolloop.Message, tools []toolloop.ToolSpec) (toolloop.Choice, error) {
	system, msgs, err := convertMessages(transcript)
	if err != nil {
		return toolloop.Choice{}, err
	}
	params := anthropicsdk.MessageNewParams{
		Model:     t.model,
		MaxTokens: t.maxTokens,
		Messages:  msgs,
	}
	if len(system) > 0 {
		params.System = system
	}
	if len(tools) > 0 {
		params.Tools, err = convertTools(tools)
		if err != nil {
			return toolloop.Choice{}, err
		}
	}
	resp, err := t.msgs.New(ctx, params)
	if err != nil {
		return toolloop.Choice{}, err
	}
	return convertResponse(resp)
}

func convertMessages(transcript []toolloop.Message) ([]anthropicsdk.TextBlockParam, []anthropicsdk.MessageParam, error) {
	var system []anthropicsdk.TextBlockParam
	out := make([]anthropicsdk.MessageParam, 0, len(transcript))
	for i, msg := range transcript {
		switch msg.Role {
		case toolloop.RoleSystem:
			system = append(system, anthropicsdk.TextBlockParam{Text: msg.Content})
		case toolloop.RoleUser:
			out = append(out, anthropicsdk.MessageParam{
				Role:    anthropicsdk.MessageParamRoleUser,
				Content: []anthropicsdk.ContentBlockParamUnion{anthropicsdk.NewTextBlock(msg.Content)},
			})
		case toolloop.RoleAssistant:
			out = append(out, anthropicsdk.MessageParam{
				Role:    anthropicsdk.MessageParamRoleAssistant,
				Content: assistantContent(msg),
			})
		case toolloop.RoleTool:
			block := anthropicsdk.NewToolResultBlock(msg.ToolCallID, msg.Content, msg.IsError)
			// Results of one assistant turn travel together in a single user turn.
			if n := len(out); n > 0 && out[n-1].Role == anthropicsdk.MessageParamRoleUser && isToolResultTurn(out[n-1]) {
				out[n-1].Content = append(out[n-1].Content, block)
				continue
			}
			out = append(out, anthropicsdk.MessageParam{
				Role:    anthropicsdk.MessageParamRoleUser,
				Content: []anthropicsdk.ContentBlockParamUnion{block},
			})
		default:
			return nil, nil, fmt.Errorf("anthropic: message %d: unknown role %q", i, msg.Role)
		}
	}
	return system, out, nil
}

func assistantContent(msg toolloop.Message) []anthropicsdk.ContentBlockParamUnion {
	blocks := make([]anthropicsdk.ContentBlockParamUnion, 0, 1+len(msg.ToolCalls))
	if msg.Content != "" {
		blocks = append(blocks, anthropicsdk.NewTextBlock(msg.Content))
	}
	for _, call := range msg.ToolCalls {
		input := json.RawMessage(call.Args)
		if len(strings.TrimSpace(string(input))) == 0 {
			input = json.RawMessage("{}")
		}
		blocks = append(blocks, anthropicsdk.NewToolUseBlock(call.ID, input, call.ToolName))
	}
	return blocks
}

func isToolResultTurn(m anthropicsdk.MessageParam) bool {
	for _, b := range m.Content {
		if b.OfToolResult == nil {
			return false
		}
	}
	return len(m.Content) > 0
}

func convertTools(tools []toolloop.ToolSpec) ([]anthropicsdk.ToolUnionParam, error) {
	out := make([]anthropicsdk.ToolUnionParam, 0, len(tools))
	for _, spec := range tools {
		schema, err := encodeSchema(spec.Parameters)
		if err != nil {
			return nil, fmt.Errorf("anthropic: tool %q schema: %w", spec.Name, err)
		}
		tool := anthropicsdk.ToolParam{
			Name:        spec.Name,
			InputSchema: schema,
		}
		if strings.TrimSpace(spec.Description) != "" {
			tool.Description = anthropicsdk.String(spec.Description)
		}
		out = append(out, anthropicsdk.ToolUnionParam{OfTool: &tool})
	}
	return out, nil
}

// encodeSchema maps a schema document onto the SDK's input schema. properties and required
// have typed fields; every other root keyword (additionalProperties, $defs, description, ...)
// travels in ExtraFields so the model sees the whole document.
func encodeSchema(doc map[string]any) (anthropicsdk.ToolInputSchemaParam, error) {
	var schema anthropicsdk.ToolInputSchemaParam
	if len(doc) == 0 {
		return schema, nil
	}
	wire, err := jsonvalue.ToWireObject(doc)
	if err != nil {
		return schema, err
	}
	extras := make(map[string]any)
	for key, val := range wire {
		switch key {
		case "type":
			if val != "object" {
				return schema, fmt.Errorf("input schema must be an object, got type %v", val)
			}
		case "properties":
			schema.Properties = val
		case "required":
			names, ok := val.([]any)
			if !ok {
				return schema, fmt.Errorf("required must be a list, got %T", val)
			}
			for _, n := range names {
				name, ok := n.(string)
				if !ok {
					return schema, fmt.Errorf("required entries must be strings, got %T", n)
				}
				schema.Required = append(schema.Required, name)
			}
		default:
			extras[key] = val
		}
	}
	if len(extras) > 0 {
		schema.ExtraFields = extras
	}
	return schema, nil
}

func convertResponse(resp *anthropicsdk.Message) (toolloop.Choice, error) {
	if resp == nil {
		return toolloop.Choice{}, fmt.Errorf("%w: empty response", toolloop.ErrUnexpectedMessage)
	}
	choice := toolloop.Choice{Role: toolloop.Role(resp.Role)}
	var text []string
	for _, block := range resp.Content {
		switch block.Type {
		case "tool_use":
			args := []byte(block.Input)
			if len(args) == 0 {
				args = []byte("{}")
			}
			choice.ToolCalls = append(choice.ToolCalls, toolloop.ToolCall{
				ID:       block.ID,
				ToolName: block.Name,
				Args:     args,
			})
		case "text":
			if block.Text != "" {
				text = append(text, block.Text)
			}
		}
	}
	choice.Content = strings.Join(text, "")
	return choice, nil
}

var _ toolloop.Transport = (*Transport)(nil)
