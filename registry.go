package toolloop

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

// Registry holds tools and invokes them by name with timeout, semaphore, and optional panic recovery.
// Tools are registered once at startup; after that the registry may be shared by many loops.
// There is no unregister operation.
type Registry struct {
	tools       map[string]Tool // wrapped with middlewares, used by Invoke
	rawTools    map[string]Tool // unwrapped, used by Use() to re-apply middlewares from scratch
	sem         chan struct{}
	opts        registryOptions
	done        chan struct{}
	running     sync.WaitGroup
	mu          sync.RWMutex
	middlewares []Middleware
}

// NewRegistry creates a Registry with the given options.
func NewRegistry(opts ...RegistryOption) *Registry {
	o := registryOptions{
		timeout:        30 * time.Second,
		maxConcurrency: 10,
		recoverPanics:  true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	var sem chan struct{}
	if o.maxConcurrency > 0 {
		sem = make(chan struct{}, o.maxConcurrency)
	}
	return &Registry{
		tools:    make(map[string]Tool),
		rawTools: make(map[string]Tool),
		sem:      sem,
		opts:     o,
		done:     make(chan struct{}),
	}
}

// Register adds a tool. Stored middlewares (see Use) are applied to the tool before registration.
// A second tool with an already registered name is rejected with ErrDuplicateTool; the first
// registration stays in place.
func (r *Registry) Register(t Tool) error {
	if t == nil {
		return errors.New("tool must not be nil")
	}
	name := t.Name()
	if name == "" {
		return errors.New("tool name must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rawTools[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
	}
	r.rawTools[name] = t
	for i := len(r.middlewares) - 1; i >= 0; i-- {
		t = r.middlewares[i](t)
	}
	r.tools[name] = t
	return nil
}

// MustRegister is Register for startup code; it panics on error.
func (r *Registry) MustRegister(tools ...Tool) {
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			panic("toolloop: " + err.Error())
		}
	}
}

// Tools returns all registered tools, sorted by name for deterministic order.
func (r *Registry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	slices.Sort(names)
	out := make([]Tool, 0, len(names))
	for _, name := range names {
		out = append(out, r.tools[name])
	}
	return out
}

// Specs returns the transport-facing description of every tool, sorted by name.
// Model-facing tool order can bias the model, so it never depends on registration order.
func (r *Registry) Specs() []ToolSpec {
	tools := r.Tools()
	out := make([]ToolSpec, len(tools))
	for i, t := range tools {
		out[i] = ToolSpec{Name: t.Name(), Description: t.Description(), Parameters: t.Parameters()}
	}
	return out
}

// GetTool returns the tool with the given name (after middlewares are applied), or (nil, false) if not found.
func (r *Registry) GetTool(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Invoke runs one tool call and returns the handler's result text.
// Errors: ErrToolNotFound for unknown names, *ClientError for invalid arguments,
// *HandlerError for handler failures, timeouts and recovered panics.
// The after-invoke hook (WithOnAfterInvoke) is always invoked via defer with ExecutionSummary.
func (r *Registry) Invoke(ctx context.Context, call ToolCall) (res string, err error) {
	r.mu.RLock()
	select {
	case <-r.done:
		r.mu.RUnlock()
		return "", ErrShutdown
	default:
	}
	tool, ok := r.tools[call.ToolName]
	if !ok {
		r.mu.RUnlock()
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, call.ToolName)
	}
	r.running.Add(1)
	r.mu.RUnlock()
	defer r.running.Done()

	if err = r.acquireSemaphore(ctx); err != nil {
		return "", err
	}
	defer r.releaseSemaphore()

	timeout := r.opts.timeout
	if tm, ok := tool.(ToolMetadata); ok && tm.Timeout() > 0 {
		timeout = tm.Timeout()
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	summary := ExecutionSummary{CallID: call.ID, ToolName: call.ToolName}
	start := time.Now()
	// Recover defer is registered after onAfter so it runs first on panic and sets summary.Error before the hook runs.
	defer func() {
		if r.opts.onAfter != nil {
			r.opts.onAfter(ctx, call, summary, time.Since(start))
		}
	}()
	if r.opts.recoverPanics {
		defer func() {
			if p := recover(); p != nil {
				res = ""
				err = &HandlerError{Tool: call.ToolName, Err: &panicError{p: p}}
				summary.Error = err
			}
		}()
	}

	if r.opts.onBefore != nil {
		r.opts.onBefore(ctx, call)
	}

	res, err = tool.Invoke(ctx, call.Args)
	if err != nil && ctx.Err() != nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrTimeout) {
		err = &HandlerError{Tool: call.ToolName, Err: fmt.Errorf("%w: %w", ErrTimeout, err)}
	}
	summary.Error = err
	summary.ResultBytes = len(res)
	return res, err
}

func (r *Registry) acquireSemaphore(ctx context.Context) error {
	if r.sem == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	select {
	case r.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) releaseSemaphore() {
	if r.sem != nil {
		<-r.sem
	}
}

// Shutdown closes the registry for new calls and waits for in-flight invocations or ctx to cancel.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	select {
	case <-r.done:
		r.mu.Unlock()
		return nil
	default:
		close(r.done)
	}
	r.mu.Unlock()
	done := make(chan struct{})
	go func() {
		r.running.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// panicError wraps a recovered panic value for HandlerError; used by Registry and WithRecovery middleware.
type panicError struct{ p any }

func (e *panicError) Error() string {
	return "panic: " + fmt.Sprint(e.p)
}
