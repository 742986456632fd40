// Package openaichat is a toolloop.Transport for the OpenAI chat completions API.
package openaichat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/skosovsky/toolloop"
	"github.com/skosovsky/toolloop/jsonvalue"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "gpt-4o"

// Config configures the transport.
type Config struct {
	APIKey     string
	BaseURL    string // optional, for proxies and compatible endpoints
	Model      string
	HTTPClient *http.Client
}

type chatCompletions interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Transport sends transcripts to /chat/completions. SDK retries are disabled: a failed
// request is reported to the loop as is.
type Transport struct {
	completions chatCompletions
	model       string
}

// New builds a Transport from cfg. The API key is required.
func New(cfg Config) (*Transport, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("openai: api key required")
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
	client := openai.NewClient(opts...)
	return newTransport(&client.Chat.Completions, cfg.Model), nil
}

func newTransport(c chatCompletions, model string) *Transport {
	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultModel
	}
	return &Transport{completions: c, model: model}
}

// Model returns the model name sent with every request.
func (t *Transport) Model() string { return t.model }

// Send implements toolloop.Transport. Only the first choice of the completion is used.
func (t *Transport) Send(ctx context.Context, transcript []toolloop.Message, tools []toolloop.ToolSpec) (toolloop.Choice, error) {
	params, err := t.buildParams(transcript, tools)
	if err != nil {
		return toolloop.Choice{}, err
	}
	completion, err := t.completions.New(ctx, params)
	if err != nil {
		return toolloop.Choice{}, err
	}
	return convertCompletion(completion)
}

func (t *Transport) buildParams(transcript []toolloop.Message, tools []toolloop.ToolSpec) (openai.ChatCompletionNewParams, error) {
	msgs, err := convertMessages(transcript)
	if err != nil {
		return openai.ChatCompletionNewParams{}, err
	}
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(t.model),
		Messages: msgs,
	}
	if len(tools) > 0 {
		params.Tools, err = convertTools(tools)
		if err != nil {
			return openai.ChatCompletionNewParams{}, err
		}
	}
	return params, nil
}

func convertMessages(transcript []toolloop.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(transcript))
	for i, msg := range transcript {
		switch msg.Role {
		case toolloop.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case toolloop.RoleUser:
			out = append(out, openai.UserMessage(msg.Content))
		case toolloop.RoleAssistant:
			out = append(out, assistantMessage(msg))
		case toolloop.RoleTool:
			out = append(out, openai.ToolMessage(msg.Content, msg.ToolCallID))
		default:
			return nil, fmt.Errorf("openai: message %d: unknown role %q", i, msg.Role)
		}
	}
	return out, nil
}

func assistantMessage(msg toolloop.Message) openai.ChatCompletionMessageParamUnion {
	param := openai.ChatCompletionAssistantMessageParam{}
	if msg.Content != "" {
		param.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
			OfString: openai.String(msg.Content),
		}
	}
	for _, call := range msg.ToolCalls {
		args := string(call.Args)
		if strings.TrimSpace(args) == "" {
			args = "{}"
		}
		param.ToolCalls = append(param.ToolCalls, openai.ChatCompletionMessageToolCallParam{
			ID: call.ID,
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      call.ToolName,
				Arguments: args,
			},
		})
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &param}
}

func convertTools(tools []toolloop.ToolSpec) ([]openai.ChatCompletionToolParam, error) {
	out := make([]openai.ChatCompletionToolParam, 0, len(tools))
	for _, spec := range tools {
		params, err := jsonvalue.ToWireObject(spec.Parameters)
		if err != nil {
			return nil, fmt.Errorf("openai: tool %q parameters: %w", spec.Name, err)
		}
		if params == nil {
			params = map[string]any{}
		}
		if _, ok := params["type"]; !ok {
			params["type"] = "object"
		}
		tool := openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:       spec.Name,
				Parameters: shared.FunctionParameters(params),
			},
		}
		if desc := strings.TrimSpace(spec.Description); desc != "" {
			tool.Function.Description = openai.Opt(desc)
		}
		out = append(out, tool)
	}
	return out, nil
}

func convertCompletion(completion *openai.ChatCompletion) (toolloop.Choice, error) {
	if completion == nil || len(completion.Choices) == 0 {
		return toolloop.Choice{}, fmt.Errorf("%w: completion has no choices", toolloop.ErrUnexpectedMessage)
	}
	msg := completion.Choices[0].Message
	choice := toolloop.Choice{
		Role:    toolloop.Role(msg.Role),
		Content: msg.Content,
	}
	for _, tc := range msg.ToolCalls {
		choice.ToolCalls = append(choice.ToolCalls, toolloop.ToolCall{
			ID:       tc.ID,
			ToolName: tc.Function.Name,
			Args:     []byte(tc.Function.Arguments),
		})
	}
	return choice, nil
}

var _ toolloop.Transport = (*Transport)(nil)
