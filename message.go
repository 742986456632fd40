package toolloop

import (
	"context"
	"fmt"
	"slices"
)

// Role is the author of a transcript message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of the transcript. Which fields are meaningful depends on Role:
// user and system carry Content; assistant carries optional Content and ToolCalls;
// tool carries ToolCallID and Content, and IsError when Content reports a failed call.
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	IsError    bool
}

// UserMessage returns a user-role message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// AssistantMessage returns an assistant-role message carrying text and/or tool calls.
func AssistantMessage(text string, calls ...ToolCall) Message {
	return Message{Role: RoleAssistant, Content: text, ToolCalls: slices.Clone(calls)}
}

// ToolResultMessage returns the tool-role answer to the call with the given ID.
func ToolResultMessage(callID, content string) Message {
	return Message{Role: RoleTool, ToolCallID: callID, Content: content}
}

// ToolErrorMessage is ToolResultMessage for a call that failed; content is the failure text.
func ToolErrorMessage(callID, content string) Message {
	return Message{Role: RoleTool, ToolCallID: callID, Content: content, IsError: true}
}

// Choice is the first choice of a chat completion: plain assistant text when ToolCalls is
// empty, tool invocation requests otherwise. An empty Role is read as RoleAssistant.
type Choice struct {
	Role      Role
	Content   string
	ToolCalls []ToolCall
}

// Transport sends a transcript and the tool list to a chat-completion endpoint.
// Implementations must not retain or mutate transcript.
type Transport interface {
	Send(ctx context.Context, transcript []Message, tools []ToolSpec) (Choice, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, transcript []Message, tools []ToolSpec) (Choice, error)

func (f TransportFunc) Send(ctx context.Context, transcript []Message, tools []ToolSpec) (Choice, error) {
	return f(ctx, transcript, tools)
}

// CheckTranscript verifies the call/answer invariant: every tool message answers a call of
// the closest preceding assistant message, the calls of an assistant message are answered
// by the messages directly following it in the same order, and no call is left unanswered.
func CheckTranscript(transcript []Message) error {
	var pending []string
	for i, msg := range transcript {
		switch msg.Role {
		case RoleTool:
			if len(pending) == 0 {
				return fmt.Errorf("message %d: tool result %q answers no pending call", i, msg.ToolCallID)
			}
			if msg.ToolCallID != pending[0] {
				return fmt.Errorf("message %d: tool result %q, want answer to %q", i, msg.ToolCallID, pending[0])
			}
			pending = pending[1:]
		default:
			if len(pending) > 0 {
				return fmt.Errorf("message %d: call %q left unanswered", i, pending[0])
			}
			if msg.Role == RoleAssistant {
				for _, c := range msg.ToolCalls {
					pending = append(pending, c.ID)
				}
			}
		}
	}
	if len(pending) > 0 {
		return fmt.Errorf("call %q left unanswered", pending[0])
	}
	return nil
}
