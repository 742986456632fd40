// Package testutil provides test helpers for toolloop (MockTool, ScriptedTransport).
package testutil

import (
	"context"

	"github.com/skosovsky/toolloop"
)

// MockTool is a configurable Tool implementation for tests.
type MockTool struct {
	NameVal   string
	DescVal   string
	ParamsVal map[string]any
	InvokeFn  func(ctx context.Context, args []byte) (string, error)
}

// Name returns the tool name.
func (m *MockTool) Name() string {
	if m.NameVal != "" {
		return m.NameVal
	}
	return "mock"
}

// Description returns the tool description.
func (m *MockTool) Description() string {
	return m.DescVal
}

// Parameters returns the parameters schema (or a bare object schema).
func (m *MockTool) Parameters() map[string]any {
	if m.ParamsVal != nil {
		return m.ParamsVal
	}
	return map[string]any{"type": "object"}
}

// Invoke runs InvokeFn if set, otherwise returns an empty result.
func (m *MockTool) Invoke(ctx context.Context, args []byte) (string, error) {
	if m.InvokeFn != nil {
		return m.InvokeFn(ctx, args)
	}
	return "", nil
}

// Ensure MockTool implements Tool.
var _ toolloop.Tool = (*MockTool)(nil)
