// Package llm defines the provider-neutral completion API. Driver
// implementations live in the subpackages; callers construct them
// through the clients package.
package llm

import (
	"context"
	"fmt"

	"maestro/pkg/tools"
)

// CompletionRole identifies the author of a message.
type CompletionRole string

const (
	RoleSystem    CompletionRole = "system"
	RoleUser      CompletionRole = "user"
	RoleAssistant CompletionRole = "assistant"
)

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters"`
}

// ImageContent is one image attached to a tool result.
type ImageContent struct {
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

// ToolResult carries a tool execution result back to the model. Images
// are only deliverable on providers whose wire protocol accepts image
// tool results; other drivers substitute a textual placeholder.
type ToolResult struct {
	ToolCallID string         `json:"tool_call_id"`
	Content    string         `json:"content"`
	Images     []ImageContent `json:"images,omitempty"`
	IsError    bool           `json:"is_error"`
}

// TextFallback renders the result for providers whose wire protocols
// forbid image tool results: the caption plus a note that the images
// were dropped.
func (tr *ToolResult) TextFallback() string {
	if len(tr.Images) == 0 {
		return tr.Content
	}
	note := fmt.Sprintf("[%d image(s) unavailable: this provider does not accept image tool results]", len(tr.Images))
	if tr.Content == "" {
		return note
	}
	return tr.Content + "\n" + note
}

// CompletionMessage is one turn of conversation. Assistant messages may
// carry tool calls; user messages may carry tool results.
type CompletionMessage struct {
	Role        CompletionRole `json:"role"`
	Content     string         `json:"content"`
	ToolCalls   []ToolCall     `json:"tool_calls,omitempty"`
	ToolResults []ToolResult   `json:"tool_results,omitempty"`
}

// Tool choice modes.
const (
	ToolChoiceAuto = "auto" // model decides
	ToolChoiceAny  = "any"  // model must call some tool
)

// CompletionRequest is a provider-neutral completion request.
type CompletionRequest struct {
	Messages    []CompletionMessage
	Tools       []tools.ToolDefinition
	ToolChoice  string
	System      string
	MaxTokens   int
	Temperature float64 // <0 means provider default
}

// Stop reasons reported in CompletionResponse.
const (
	StopEndTurn   = "end_turn"
	StopToolUse   = "tool_use"
	StopMaxTokens = "max_tokens"
)

// CompletionResponse is a provider-neutral completion response.
type CompletionResponse struct {
	Content    string
	ToolCalls  []ToolCall
	StopReason string
}

// LLMClient is the interface all provider drivers implement.
type LLMClient interface {
	// Complete performs a single completion request.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
	// GetModelName returns the provider model identifier.
	GetModelName() string
}

// ErrorKind classifies provider failures for retry decisions.
type ErrorKind string

const (
	ErrKindRateLimit ErrorKind = "rate_limit"
	ErrKindAuth      ErrorKind = "auth"
	ErrKindBadInput  ErrorKind = "bad_input"
	ErrKindTransient ErrorKind = "transient"
)

// Error wraps a provider failure with its classification.
type Error struct {
	Kind   ErrorKind
	Status int
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("llm %s error (status %d): %v", e.Kind, e.Status, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ClassifyStatus maps an HTTP status code onto an ErrorKind.
func ClassifyStatus(status int) ErrorKind {
	switch {
	case status == 429:
		return ErrKindRateLimit
	case status == 401 || status == 403:
		return ErrKindAuth
	case status >= 400 && status < 500:
		return ErrKindBadInput
	default:
		return ErrKindTransient
	}
}
