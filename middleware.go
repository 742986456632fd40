package toolloop

import (
	"context"
	"log/slog"
	"time"
)

// Middleware wraps a Tool with cross-cutting behavior (logging, recovery, timeout).
type Middleware func(Tool) Tool

// WithLogging returns a middleware that logs start, end, duration, and errors.
func WithLogging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Tool) Tool {
		return &loggingTool{ToolBase: ToolBase{Next: next}, logger: logger}
	}
}

// WithRecovery returns a middleware that recovers panics and returns HandlerError.
func WithRecovery() Middleware {
	return func(next Tool) Tool {
		return &recoveryTool{ToolBase{Next: next}}
	}
}

// WithTimeoutMiddleware returns a middleware that enforces a per-tool timeout (overrides registry default for this tool).
// Named with "Middleware" suffix to avoid collision with ToolOption WithTimeout. When both registry default timeout
// and this middleware apply, the effective timeout is the minimum of the two (inner context cancels first).
func WithTimeoutMiddleware(d time.Duration) Middleware {
	return func(next Tool) Tool {
		return &timeoutTool{ToolBase: ToolBase{Next: next}, timeout: d}
	}
}

// ToolBase delegates Tool and ToolMetadata to the wrapped Tool. Embed it in middleware
// wrappers (including ones in other packages) and override Invoke.
type ToolBase struct{ Next Tool }

func (b *ToolBase) Name() string               { return b.Next.Name() }
func (b *ToolBase) Description() string        { return b.Next.Description() }
func (b *ToolBase) Parameters() map[string]any { return b.Next.Parameters() }

func (b *ToolBase) Invoke(ctx context.Context, args []byte) (string, error) {
	return b.Next.Invoke(ctx, args)
}

func (b *ToolBase) Timeout() time.Duration {
	if tm, ok := b.Next.(ToolMetadata); ok {
		return tm.Timeout()
	}
	return 0
}
func (b *ToolBase) Tags() []string {
	if tm, ok := b.Next.(ToolMetadata); ok {
		return tm.Tags()
	}
	return nil
}
func (b *ToolBase) Version() string {
	if tm, ok := b.Next.(ToolMetadata); ok {
		return tm.Version()
	}
	return ""
}
func (b *ToolBase) IsDangerous() bool {
	if tm, ok := b.Next.(ToolMetadata); ok {
		return tm.IsDangerous()
	}
	return false
}

type loggingTool struct {
	ToolBase
	logger *slog.Logger
}

func (m *loggingTool) Invoke(ctx context.Context, args []byte) (string, error) {
	m.logger.InfoContext(ctx, "tool start", "tool", m.Next.Name())
	start := time.Now()
	res, err := m.Next.Invoke(ctx, args)
	dur := time.Since(start)
	if err != nil {
		m.logger.ErrorContext(ctx, "tool error", "tool", m.Next.Name(), "duration", dur, "error", err)
		return "", err
	}
	m.logger.InfoContext(ctx, "tool end", "tool", m.Next.Name(), "duration", dur, "bytes", len(res))
	return res, nil
}

type recoveryTool struct{ ToolBase }

func (r *recoveryTool) Invoke(ctx context.Context, args []byte) (res string, err error) {
	defer func() {
		if p := recover(); p != nil {
			res = ""
			err = &HandlerError{Tool: r.Next.Name(), Err: &panicError{p: p}}
		}
	}()
	return r.Next.Invoke(ctx, args)
}

type timeoutTool struct {
	ToolBase
	timeout time.Duration
}

func (t *timeoutTool) Timeout() time.Duration {
	if t.timeout > 0 {
		return t.timeout
	}
	return t.ToolBase.Timeout()
}

func (t *timeoutTool) Invoke(ctx context.Context, args []byte) (string, error) {
	if t.timeout <= 0 {
		return t.Next.Invoke(ctx, args)
	}
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.Next.Invoke(ctx, args)
}

// Use stores the given middlewares and reapplies them from scratch to all registered tools (onion order:
// first middleware is outermost). Tools registered after Use will also get these middlewares applied.
// Calling Use multiple times replaces the middleware chain and rewraps from raw tools, avoiding double-wrapping.
func (r *Registry) Use(middlewares ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middlewares = middlewares
	for name, raw := range r.rawTools {
		t := raw
		for i := len(middlewares) - 1; i >= 0; i-- {
			t = middlewares[i](t)
		}
		r.tools[name] = t
	}
}
