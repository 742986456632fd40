package toolloop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"time"
)

// tool is the internal implementation of Tool built by NewTool, NewReflectedTool, or NewDynamicTool.
// It closes over one concrete schema and handler; the registry only sees the Tool interface.
type tool struct {
	name        string
	description string
	schema      map[string]any
	invoke      func(context.Context, []byte) (string, error)
	opts        toolOptions
}

// NewTool binds a schema and a handler over the same decoded type T into a Tool.
// Because both are typed over T, a schema that decodes into a different type than the
// handler accepts does not compile. Invoke runs schema.Parse, then fn; the handler's
// result string is returned unchanged.
func NewTool[T any](
	name, description string,
	schema Schema[T],
	fn func(ctx context.Context, args T) (string, error),
	opts ...ToolOption,
) (Tool, error) {
	if name == "" {
		return nil, errors.New("tool name must not be empty")
	}
	if schema == nil {
		return nil, fmt.Errorf("tool %q: schema must not be nil", name)
	}
	if fn == nil {
		return nil, fmt.Errorf("tool %q: handler must not be nil", name)
	}
	var o toolOptions
	for _, opt := range opts {
		opt(&o)
	}
	invoke := func(ctx context.Context, argsJSON []byte) (string, error) {
		args, err := schema.Parse(argsJSON)
		if err != nil {
			return "", err
		}
		res, err := fn(ctx, args)
		if err != nil {
			return "", wrapHandlerError(name, err)
		}
		return res, nil
	}
	return &tool{
		name:        name,
		description: description,
		schema:      schema.Document(),
		invoke:      invoke,
		opts:        o,
	}, nil
}

// NewReflectedTool builds a Tool whose schema is reflected from T (see NewExtractor).
// Returns an error if schema generation fails (e.g. unsupported type).
func NewReflectedTool[T any](
	name, description string,
	fn func(ctx context.Context, args T) (string, error),
	opts ...ToolOption,
) (Tool, error) {
	var o toolOptions
	for _, opt := range opts {
		opt(&o)
	}
	ext, err := NewExtractor[T](o.strict)
	if err != nil {
		return nil, fmt.Errorf("tool %q: %w", name, err)
	}
	return NewTool[T](name, description, ext, fn, opts...)
}

// NewDynamicTool creates a Tool from a raw JSON Schema map and a handler that receives
// validated JSON. Useful for runtime API integration (e.g. OpenAPI/Swagger). Layer 1
// (schema) validation only. schemaMap and fn must be non-nil.
// The provided schemaMap is not mutated; a deep copy is made before any modifications (e.g. WithStrict).
func NewDynamicTool(
	name, description string,
	schemaMap map[string]any,
	fn func(ctx context.Context, argsJSON json.RawMessage) (string, error),
	opts ...ToolOption,
) (Tool, error) {
	var o toolOptions
	for _, opt := range opts {
		opt(&o)
	}
	if name == "" {
		return nil, errors.New("tool name must not be empty")
	}
	if schemaMap == nil {
		return nil, fmt.Errorf("dynamic schema map must not be nil")
	}
	if fn == nil {
		return nil, fmt.Errorf("dynamic tool handler must not be nil")
	}
	doc, err := cloneDocument(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("failed to deep copy schema map: %w", err)
	}
	doc, v, err := finishDocument(doc, o.strict)
	if err != nil {
		return nil, fmt.Errorf("failed to compile dynamic schema: %w", err)
	}
	invoke := func(ctx context.Context, argsJSON []byte) (string, error) {
		if _, err := v.validateJSON(argsJSON); err != nil {
			return "", err
		}
		res, err := fn(ctx, argsJSON)
		if err != nil {
			return "", wrapHandlerError(name, err)
		}
		return res, nil
	}
	return &tool{
		name:        name,
		description: description,
		schema:      doc,
		invoke:      invoke,
		opts:        o,
	}, nil
}

func (t *tool) Name() string        { return t.name }
func (t *tool) Description() string { return t.description }

// Parameters returns a shallow copy of the schema document (top-level keys only).
// Nested maps (e.g. under "properties") are shared; callers must not mutate them.
func (t *tool) Parameters() map[string]any { return maps.Clone(t.schema) }

func (t *tool) Invoke(ctx context.Context, argsJSON []byte) (string, error) {
	return t.invoke(ctx, argsJSON)
}

func (t *tool) Timeout() time.Duration { return t.opts.timeout }
func (t *tool) Tags() []string         { return append([]string(nil), t.opts.tags...) }
func (t *tool) Version() string        { return t.opts.version }
func (t *tool) IsDangerous() bool      { return t.opts.dangerous }

var (
	_ Tool         = (*tool)(nil)
	_ ToolMetadata = (*tool)(nil)
)
