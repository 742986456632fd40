package testutil

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/skosovsky/toolloop"
)

// ErrScriptExhausted is returned by ScriptedTransport when more requests arrive than steps were scripted.
var ErrScriptExhausted = errors.New("scripted transport: no more steps")

// Step is one scripted reply: either a Choice or an error.
type Step struct {
	Choice toolloop.Choice
	Err    error
}

// Request is a copy of what the loop sent on one call.
type Request struct {
	Transcript []toolloop.Message
	Tools      []toolloop.ToolSpec
}

// ScriptedTransport replays Steps in order and records every request. When Repeat is set,
// it keeps returning Repeat after the scripted steps run out. Each incoming transcript is
// checked with toolloop.CheckTranscript; a violation fails the request.
type ScriptedTransport struct {
	Steps  []Step
	Repeat *Step

	mu       sync.Mutex
	requests []Request
}

// Text is a Step returning final assistant text.
func Text(content string) Step {
	return Step{Choice: toolloop.Choice{Role: toolloop.RoleAssistant, Content: content}}
}

// Calls is a Step returning tool calls.
func Calls(calls ...toolloop.ToolCall) Step {
	return Step{Choice: toolloop.Choice{Role: toolloop.RoleAssistant, ToolCalls: calls}}
}

// Call builds a ToolCall with raw JSON arguments.
func Call(id, name, args string) toolloop.ToolCall {
	return toolloop.ToolCall{ID: id, ToolName: name, Args: []byte(args)}
}

// Send implements toolloop.Transport.
func (s *ScriptedTransport) Send(ctx context.Context, transcript []toolloop.Message, tools []toolloop.ToolSpec) (toolloop.Choice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, Request{Transcript: slices.Clone(transcript), Tools: slices.Clone(tools)})
	if err := ctx.Err(); err != nil {
		return toolloop.Choice{}, err
	}
	if err := toolloop.CheckTranscript(transcript); err != nil {
		return toolloop.Choice{}, fmt.Errorf("scripted transport: invalid transcript: %w", err)
	}
	n := len(s.requests) - 1
	var step Step
	switch {
	case n < len(s.Steps):
		step = s.Steps[n]
	case s.Repeat != nil:
		step = *s.Repeat
	default:
		return toolloop.Choice{}, ErrScriptExhausted
	}
	return step.Choice, step.Err
}

// Requests returns the recorded requests.
func (s *ScriptedTransport) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.requests)
}

var _ toolloop.Transport = (*ScriptedTransport)(nil)
