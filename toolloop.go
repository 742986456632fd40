package toolloop

import (
	"context"
	"encoding/json"
	"time"
)

// Tool is the contract for an LLM-callable instrument.
// It is provider-agnostic (no knowledge of OpenAI, Anthropic, etc.).
// The registry only sees this capability; each concrete tool is specialized over its
// own decoded argument type internally (see NewTool).
type Tool interface {
	Name() string
	Description() string
	// Parameters returns the schema document describing the tool input. Numbers are json.Number
	// (see package jsonvalue); transports convert the document to their wire representation.
	Parameters() map[string]any
	// Invoke decodes argsJSON against the tool schema, runs the handler and returns its
	// result text unchanged.
	Invoke(ctx context.Context, argsJSON []byte) (string, error)
}

// ToolMetadata is implemented by tools created with NewTool and provides optional per-tool settings.
// Registry uses Timeout() to override default execution timeout when set. Other methods expose
// tags, version, and dangerous flag for orchestration or discovery.
type ToolMetadata interface {
	Timeout() time.Duration
	Tags() []string
	Version() string
	IsDangerous() bool
}

// ToolCall is a single execution request (as produced by the LLM).
type ToolCall struct {
	ID       string
	ToolName string
	Args     json.RawMessage // raw argument payload, not guaranteed to be well-formed JSON
}

// ToolSpec is the transport-facing description of a registered tool.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ExecutionSummary is passed to the after-execution hook (WithOnAfterInvoke) when a tool
// invocation finishes (success or error).
type ExecutionSummary struct {
	CallID      string
	ToolName    string
	Error       error
	ResultBytes int
}
