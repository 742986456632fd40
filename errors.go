package toolloop

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for toolloop. Use errors.Is to check.
var (
	ErrToolNotFound      = errors.New("tool not found")
	ErrDuplicateTool     = errors.New("tool already registered")
	ErrTimeout           = errors.New("tool execution timeout")
	ErrValidation        = errors.New("validation failed")
	ErrShutdown          = errors.New("registry is shutting down")
	ErrUnexpectedMessage = errors.New("unexpected message shape")
	ErrNoResult          = errors.New("no result within iteration budget")
)

// ErrUnknownTool is the loop-level name for ErrToolNotFound: the model named a tool
// that is not in the registry.
var ErrUnknownTool = ErrToolNotFound

// Issue is a single validation problem located inside the argument payload.
// Path is a JSON pointer ("" is the payload root).
type Issue struct {
	Path    string
	Message string
}

func (i Issue) String() string {
	path := i.Path
	if path == "" {
		path = "/"
	}
	return fmt.Sprintf("at '%s': %s", path, i.Message)
}

// ClientError is an error that should be sent back to the LLM for self-correction
// (e.g. invalid JSON, schema validation failure, bad enum value).
// Do not expose stack traces or internal details to the LLM.
// Err optionally wraps a sentinel (e.g. ErrValidation) for errors.Is/errors.As.
type ClientError struct {
	Reason string
	// Issues is the complete list of problems found in the payload, in the order the
	// validator reported them. Empty for errors raised by handlers themselves.
	Issues []Issue
	Err    error // wrapped sentinel for errors.Is/errors.As
}

func (e *ClientError) Error() string {
	if len(e.Issues) == 0 {
		return fmt.Sprintf("invalid tool input: %s", e.Reason)
	}
	parts := make([]string, len(e.Issues))
	for i, is := range e.Issues {
		parts[i] = is.String()
	}
	return fmt.Sprintf("invalid tool input: %s: %s", e.Reason, strings.Join(parts, "; "))
}

// Unwrap supports errors.Is/errors.As on wrapped chains (e.g. errors.Is(err, ErrValidation)).
func (e *ClientError) Unwrap() error { return e.Err }

// HandlerError represents a failure of the tool itself (DB down, panic, timeout).
// The LLM should not see the underlying error message or stack.
type HandlerError struct {
	Tool string
	Err  error
}

func (e *HandlerError) Error() string {
	if e.Tool == "" {
		return "internal error during tool execution"
	}
	return fmt.Sprintf("internal error during execution of tool %q", e.Tool)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// ExhaustedError is returned by the loop when the iteration budget runs out before the
// model produced a final answer. It matches ErrNoResult and carries the transcript so
// callers can inspect it or retry with a larger budget.
type ExhaustedError struct {
	Requests   int
	Transcript []Message
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s after %d requests", ErrNoResult.Error(), e.Requests)
}

func (e *ExhaustedError) Unwrap() error { return ErrNoResult }

// IsClientError returns true if err is or wraps a ClientError.
func IsClientError(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce)
}

// IsHandlerError returns true if err is or wraps a HandlerError.
func IsHandlerError(err error) bool {
	var he *HandlerError
	return errors.As(err, &he)
}

// wrapJSONParseError returns a ClientError for JSON decode failures.
// Used by every Schema implementation so parse errors are consistent.
func wrapJSONParseError(err error) error {
	return &ClientError{
		Reason: "json parse error",
		Issues: []Issue{{Message: err.Error()}},
		Err:    ErrValidation,
	}
}

// wrapHandlerError passes through ClientError; wraps other errors as HandlerError.
func wrapHandlerError(name string, err error) error {
	if err == nil {
		return nil
	}
	if IsClientError(err) || IsHandlerError(err) {
		return err
	}
	return &HandlerError{Tool: name, Err: err}
}
