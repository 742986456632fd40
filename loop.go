package toolloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
)

// DefaultMaxIterations bounds the number of tool turns when WithMaxIterations is not given.
const DefaultMaxIterations = 3

// State is the position of a Loop run in its state machine.
type State int

const (
	StateAwaitingModel State = iota
	StateProcessingToolCalls
	StateDone
	StateExhausted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAwaitingModel:
		return "awaiting_model"
	case StateProcessingToolCalls:
		return "processing_tool_calls"
	case StateDone:
		return "done"
	case StateExhausted:
		return "exhausted"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// LoopOption configures a Loop.
type LoopOption func(*loopOptions)

type loopOptions struct {
	maxIterations int
	logger        *slog.Logger
	systemPrompt  string
	onToolResult  func(ctx context.Context, call ToolCall, result string, err error)
	onState       func(State)
}

// WithMaxIterations sets the tool-turn budget. A run sends at most n+1 requests.
// Negative values are treated as 0.
func WithMaxIterations(n int) LoopOption {
	return func(o *loopOptions) {
		o.maxIterations = max(n, 0)
	}
}

// WithLogger sets the logger used for loop events.
func WithLogger(logger *slog.Logger) LoopOption {
	return func(o *loopOptions) {
		o.logger = logger
	}
}

// WithSystemPrompt seeds every transcript with a system message before the user message.
func WithSystemPrompt(prompt string) LoopOption {
	return func(o *loopOptions) {
		o.systemPrompt = prompt
	}
}

// WithOnToolResult sets a hook called after each tool call with the text sent back to the
// model and the error it was produced from (nil on success).
func WithOnToolResult(fn func(ctx context.Context, call ToolCall, result string, err error)) LoopOption {
	return func(o *loopOptions) {
		o.onToolResult = fn
	}
}

// WithOnStateChange sets a hook called on every state transition.
func WithOnStateChange(fn func(State)) LoopOption {
	return func(o *loopOptions) {
		o.onState = fn
	}
}

// Loop drives the call-model, execute-tools, append-results cycle for one registry and one
// transport. A Loop holds no per-run state, so Run may be called concurrently; each run owns
// its transcript.
type Loop struct {
	transport Transport
	registry  *Registry
	opts      loopOptions
}

// NewLoop creates a Loop. The registry should be fully populated before the first Run.
func NewLoop(transport Transport, registry *Registry, opts ...LoopOption) *Loop {
	o := loopOptions{maxIterations: DefaultMaxIterations}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return &Loop{transport: transport, registry: registry, opts: o}
}

// Result is the outcome of a completed run.
type Result struct {
	Answer     string
	Transcript []Message
	Requests   int
}

// Run sends userText to the model and returns its final answer.
// It fails with ErrUnknownTool, ErrUnexpectedMessage, ErrNoResult (as *ExhaustedError),
// the transport error, or the context error; none of them is retried.
func (l *Loop) Run(ctx context.Context, userText string) (string, error) {
	res, err := l.RunTranscript(ctx, userText)
	if err != nil {
		return "", err
	}
	return res.Answer, nil
}

// RunTranscript is Run returning the full transcript and request count as well.
// The transcript does not include the final answer; it ends with the last tool results.
func (l *Loop) RunTranscript(ctx context.Context, userText string) (*Result, error) {
	transcript := make([]Message, 0, 2)
	if l.opts.systemPrompt != "" {
		transcript = append(transcript, Message{Role: RoleSystem, Content: l.opts.systemPrompt})
	}
	transcript = append(transcript, UserMessage(userText))
	specs := l.registry.Specs()
	log := l.opts.logger

	requests := 0
	for remaining := l.opts.maxIterations; remaining >= 0; remaining-- {
		if err := ctx.Err(); err != nil {
			return nil, l.fail(err)
		}
		l.setState(StateAwaitingModel)
		requests++
		log.DebugContext(ctx, "model request", "request", requests, "messages", len(transcript), "tools", len(specs))
		choice, err := l.transport.Send(ctx, slices.Clone(transcript), specs)
		if err != nil {
			return nil, l.fail(fmt.Errorf("chat transport: %w", err))
		}
		if choice.Role != "" && choice.Role != RoleAssistant {
			return nil, l.fail(fmt.Errorf("%w: role %q", ErrUnexpectedMessage, choice.Role))
		}
		if len(choice.ToolCalls) == 0 {
			l.setState(StateDone)
			log.InfoContext(ctx, "final answer", "requests", requests, "bytes", len(choice.Content))
			return &Result{Answer: choice.Content, Transcript: transcript, Requests: requests}, nil
		}

		// The assistant turn must be replayed before its answers or the endpoint rejects the transcript.
		transcript = append(transcript, AssistantMessage(choice.Content, choice.ToolCalls...))
		l.setState(StateProcessingToolCalls)
		for _, call := range choice.ToolCalls {
			msg, err := l.invoke(ctx, call)
			if err != nil {
				return nil, l.fail(err)
			}
			transcript = append(transcript, msg)
		}
	}

	l.setState(StateExhausted)
	log.WarnContext(ctx, "iteration budget exhausted", "requests", requests, "max_iterations", l.opts.maxIterations)
	return nil, &ExhaustedError{Requests: requests, Transcript: transcript}
}

// invoke runs one call and returns the tool message answering it. Validation and
// handler failures are recovered into an IsError message; the returned error is fatal for the run.
func (l *Loop) invoke(ctx context.Context, call ToolCall) (Message, error) {
	l.opts.logger.InfoContext(ctx, "tool call", "tool", call.ToolName, "call_id", call.ID)
	res, err := l.registry.Invoke(ctx, call)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Message{}, ctxErr
	}
	msg := ToolResultMessage(call.ID, res)
	if err != nil {
		if errors.Is(err, ErrToolNotFound) || errors.Is(err, ErrShutdown) {
			return Message{}, err
		}
		if !IsClientError(err) && !IsHandlerError(err) {
			err = &HandlerError{Tool: call.ToolName, Err: err}
		}
		l.opts.logger.WarnContext(ctx, "tool failed", "tool", call.ToolName, "call_id", call.ID, "error", err)
		msg = ToolErrorMessage(call.ID, FormatToolError(err))
	}
	if l.opts.onToolResult != nil {
		l.opts.onToolResult(ctx, call, msg.Content, err)
	}
	return msg, nil
}

func (l *Loop) fail(err error) error {
	l.setState(StateFailed)
	return err
}

func (l *Loop) setState(s State) {
	if l.opts.onState != nil {
		l.opts.onState(s)
	}
}

// FormatToolError renders a tool failure as the tool-result text sent back to the model.
// Validation issues are spelled out so the model can correct its arguments; handler
// failures are reported without their internal cause.
func FormatToolError(err error) string {
	var ce *ClientError
	if errors.As(err, &ce) {
		return "error: " + ce.Error()
	}
	var he *HandlerError
	if errors.As(err, &he) {
		return "error: " + he.Error()
	}
	return "error: tool execution failed"
}
