package toolloop

import (
	"context"
	"time"
)

type toolOptions struct {
	strict    bool
	timeout   time.Duration
	tags      []string
	version   string
	dangerous bool
}

// ToolOption configures a tool built by NewTool, NewReflectedTool or NewDynamicTool.
type ToolOption func(*toolOptions)

// WithStrict closes every object of a generated schema (additionalProperties: false) and
// requires all of its properties, as OpenAI strict function calling expects. A Schema
// handed to NewTool is never rewritten; declare it with DeclareStrict instead.
func WithStrict() ToolOption {
	return func(o *toolOptions) {
		o.strict = true
	}
}

// WithTimeout bounds one Invoke of this tool; it takes precedence over the registry default.
func WithTimeout(d time.Duration) ToolOption {
	return func(o *toolOptions) {
		o.timeout = d
	}
}

// WithTags labels the tool. Tags are exported on tracing spans (ext/toolloopotel).
func WithTags(tags ...string) ToolOption {
	return func(o *toolOptions) {
		o.tags = tags
	}
}

// WithVersion records the tool version.
func WithVersion(version string) ToolOption {
	return func(o *toolOptions) {
		o.version = version
	}
}

// WithDangerous marks a tool with side effects the caller may want to confirm.
func WithDangerous() ToolOption {
	return func(o *toolOptions) {
		o.dangerous = true
	}
}

// RegistryOption configures a Registry.
type RegistryOption func(*registryOptions)

type registryOptions struct {
	timeout        time.Duration
	maxConcurrency int
	recoverPanics  bool
	onBefore       func(context.Context, ToolCall)
	onAfter        func(context.Context, ToolCall, ExecutionSummary, time.Duration)
}

// WithDefaultTimeout bounds every Invoke whose tool sets no timeout of its own. Zero disables it.
func WithDefaultTimeout(d time.Duration) RegistryOption {
	return func(o *registryOptions) {
		o.timeout = d
	}
}

// WithMaxConcurrency caps in-flight Invoke calls across every loop sharing the registry.
// n <= 0 means no cap.
func WithMaxConcurrency(n int) RegistryOption {
	return func(o *registryOptions) {
		o.maxConcurrency = n
	}
}

// WithRecoverPanics turns a panicking handler into a HandlerError instead of crashing the run.
func WithRecoverPanics(enable bool) RegistryOption {
	return func(o *registryOptions) {
		o.recoverPanics = enable
	}
}

// WithOnBeforeInvoke is called with every call the registry accepts, before the tool runs.
func WithOnBeforeInvoke(fn func(context.Context, ToolCall)) RegistryOption {
	return func(o *registryOptions) {
		o.onBefore = fn
	}
}

// WithOnAfterInvoke is called once per accepted call with its outcome and duration, on success and failure alike.
func WithOnAfterInvoke(fn func(context.Context, ToolCall, ExecutionSummary, time.Duration)) RegistryOption {
	return func(o *registryOptions) {
		o.onAfter = fn
	}
}
