// Package toolloopotel adds OpenTelemetry tracing to toolloop: a registry middleware that
// opens one span per tool invocation and a Transport wrapper that opens one span per
// model request.
package toolloopotel

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/skosovsky/toolloop"
)

// ScopeName is the instrumentation scope used when no tracer is supplied.
const ScopeName = "github.com/skosovsky/toolloop/ext/toolloopotel"

const (
	AttrToolName      = attribute.Key("tool.name")
	AttrToolVersion   = attribute.Key("tool.version")
	AttrToolDangerous = attribute.Key("tool.dangerous")
	AttrToolTags      = attribute.Key("tool.tags")
	AttrToolErrorKind = attribute.Key("tool.error_kind")
	AttrResultBytes   = attribute.Key("tool.result_bytes")
	AttrModel         = attribute.Key("chat.model")
	AttrMessages      = attribute.Key("chat.messages")
	AttrTools         = attribute.Key("chat.tools")
	AttrToolCalls     = attribute.Key("chat.tool_calls")
)

// Option configures the middleware and the transport wrapper.
type Option func(*options)

type options struct {
	provider trace.TracerProvider
	model    string
}

// WithTracerProvider sets the provider spans are created from. Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.provider = tp
	}
}

// WithModel records the model name on transport spans.
func WithModel(model string) Option {
	return func(o *options) {
		o.model = model
	}
}

func tracerFor(opts []Option) (trace.Tracer, options) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.provider == nil {
		o.provider = otel.GetTracerProvider()
	}
	return o.provider.Tracer(ScopeName), o
}

// Middleware returns a toolloop.Middleware tracing every Invoke as a "tool.invoke" span.
func Middleware(opts ...Option) toolloop.Middleware {
	tracer, _ := tracerFor(opts)
	return func(next toolloop.Tool) toolloop.Tool {
		return &tracedTool{ToolBase: toolloop.ToolBase{Next: next}, tracer: tracer}
	}
}

type tracedTool struct {
	toolloop.ToolBase
	tracer trace.Tracer
}

func (t *tracedTool) Invoke(ctx context.Context, args []byte) (string, error) {
	attrs := []attribute.KeyValue{AttrToolName.String(t.Name())}
	if v := t.Version(); v != "" {
		attrs = append(attrs, AttrToolVersion.String(v))
	}
	if tags := t.Tags(); len(tags) > 0 {
		attrs = append(attrs, AttrToolTags.StringSlice(tags))
	}
	if t.IsDangerous() {
		attrs = append(attrs, AttrToolDangerous.Bool(true))
	}
	ctx, span := t.tracer.Start(ctx, "tool.invoke", trace.WithAttributes(attrs...))
	defer span.End()

	res, err := t.Next.Invoke(ctx, args)
	if err != nil {
		span.SetAttributes(AttrToolErrorKind.String(errorKind(err)))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}
	span.SetAttributes(AttrResultBytes.Int(len(res)))
	span.SetStatus(codes.Ok, "")
	return res, nil
}

func errorKind(err error) string {
	switch {
	case toolloop.IsClientError(err):
		return "client"
	case errors.Is(err, toolloop.ErrTimeout):
		return "timeout"
	case toolloop.IsHandlerError(err):
		return "handler"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "other"
	}
}

// WrapTransport returns a Transport tracing every Send as a "chat.send" span.
func WrapTransport(next toolloop.Transport, opts ...Option) toolloop.Transport {
	tracer, o := tracerFor(opts)
	return &tracedTransport{next: next, tracer: tracer, model: o.model}
}

type tracedTransport struct {
	next   toolloop.Transport
	tracer trace.Tracer
	model  string
}

func (t *tracedTransport) Send(ctx context.Context, transcript []toolloop.Message, tools []toolloop.ToolSpec) (toolloop.Choice, error) {
	attrs := []attribute.KeyValue{
		AttrMessages.Int(len(transcript)),
		AttrTools.Int(len(tools)),
	}
	if t.model != "" {
		attrs = append(attrs, AttrModel.String(t.model))
	}
	ctx, span := t.tracer.Start(ctx, "chat.send", trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
	defer span.End()

	choice, err := t.next.Send(ctx, transcript, tools)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return choice, err
	}
	span.SetAttributes(AttrToolCalls.Int(len(choice.ToolCalls)))
	span.SetStatus(codes.Ok, "")
	return choice, nil
}
