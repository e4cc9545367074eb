// Package toolloop drives the LLM tool-calling loop: complete, execute
// every requested tool, feed results back, repeat until the model
// answers in plain text.
package toolloop

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"maestro/pkg/llm"
	"maestro/pkg/logx"
	"maestro/pkg/tools"
)

const (
	DefaultMaxIterations = 10
	DefaultMaxTokens     = 4096
)

// ToolProvider is what the loop needs from a tool provider.
type ToolProvider interface {
	Get(name string) (tools.Tool, error)
	List() []tools.ToolMeta
}

// ToolLoop manages LLM interactions with tool calling.
type ToolLoop struct {
	client llm.LLMClient
	logger *logx.Logger
}

// New creates a ToolLoop around a provider driver.
func New(client llm.LLMClient, logger *logx.Logger) *ToolLoop {
	return &ToolLoop{client: client, logger: logger}
}

// Config defines one run of the loop.
type Config struct {
	// Conversation so far. The loop appends to a copy; the caller gets
	// the extended transcript back in Result.
	Messages []llm.CompletionMessage

	// System prompt for every request in this run.
	System string

	// Provider for tool definitions and execution.
	ToolProvider ToolProvider

	MaxIterations int
	MaxTokens     int

	// OnToolExecuted is called after each tool runs (optional).
	OnToolExecuted func(call llm.ToolCall, result any, err error)
}

// Result is the outcome of a loop run.
type Result struct {
	// Messages is the full transcript including assistant turns and
	// tool results appended during the run.
	Messages []llm.CompletionMessage

	// FinalText is the model's closing plain-text reply.
	FinalText string

	Iterations    int
	ToolsExecuted int
}

// Run executes the loop until the model stops requesting tools or the
// iteration limit is hit.
func (tl *ToolLoop) Run(ctx context.Context, cfg *Config) (*Result, error) {
	if cfg.ToolProvider == nil {
		return nil, fmt.Errorf("ToolProvider is required")
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}

	metas := cfg.ToolProvider.List()
	defs := make([]tools.ToolDefinition, len(metas))
	for i := range metas {
		defs[i] = tools.ToolDefinition{
			Name:        metas[i].Name,
			Description: metas[i].Description,
			InputSchema: metas[i].InputSchema,
		}
	}

	result := &Result{Messages: append([]llm.CompletionMessage(nil), cfg.Messages...)}

	for iteration := 0; iteration < cfg.MaxIterations; iteration++ {
		result.Iterations = iteration + 1

		req := llm.CompletionRequest{
			Messages:    result.Messages,
			Tools:       defs,
			System:      cfg.System,
			MaxTokens:   cfg.MaxTokens,
			Temperature: -1,
		}

		start := time.Now()
		resp, err := tl.client.Complete(ctx, req)
		if err != nil {
			tl.logger.Error("LLM call failed after %.3gs: %v", time.Since(start).Seconds(), err)
			return nil, fmt.Errorf("LLM completion failed: %w", err)
		}
		tl.logger.Debug("completed in %.3gs: %d chars, %d tool calls (iteration %d)",
			time.Since(start).Seconds(), len(resp.Content), len(resp.ToolCalls), iteration+1)

		result.Messages = append(result.Messages, llm.CompletionMessage{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		if len(resp.ToolCalls) == 0 {
			result.FinalText = resp.Content
			return result, nil
		}

		// Every tool_use must get a tool_result, even on failure.
		toolResults := make([]llm.ToolResult, len(resp.ToolCalls))
		for i := range resp.ToolCalls {
			call := resp.ToolCalls[i]
			out, execErr := tl.execute(ctx, cfg.ToolProvider, call)
			toolResults[i] = buildToolResult(call.ID, out, execErr)
			result.ToolsExecuted++
			if cfg.OnToolExecuted != nil {
				cfg.OnToolExecuted(call, out, execErr)
			}
		}
		result.Messages = append(result.Messages, llm.CompletionMessage{
			Role:        llm.RoleUser,
			ToolResults: toolResults,
		})
	}

	return nil, fmt.Errorf("maximum tool iterations (%d) exceeded", cfg.MaxIterations)
}

func (tl *ToolLoop) execute(ctx context.Context, provider ToolProvider, call llm.ToolCall) (any, error) {
	tool, err := provider.Get(call.Name)
	if err != nil {
		tl.logger.Error("tool lookup %s: %v", call.Name, err)
		return nil, err
	}

	start := time.Now()
	out, err := tool.Exec(ctx, call.Parameters)
	if err != nil {
		tl.logger.Error("tool %s failed after %.3fs: %v", call.Name, time.Since(start).Seconds(), err)
		return nil, err
	}
	tl.logger.Debug("tool %s completed in %.3fs", call.Name, time.Since(start).Seconds())
	return out, nil
}

// buildToolResult renders a tool outcome for the model. Image results
// keep their bytes; each driver decides whether its provider can
// actually receive them.
func buildToolResult(callID string, result any, err error) llm.ToolResult {
	if img, ok := result.(*tools.ImageResult); ok && err == nil {
		return llm.ToolResult{
			ToolCallID: callID,
			Content:    img.Text,
			Images:     []llm.ImageContent{{MIMEType: img.MIMEType, Data: img.Data}},
		}
	}
	content, isError := formatToolResult(result, err)
	return llm.ToolResult{ToolCallID: callID, Content: content, IsError: isError}
}

// formatToolResult renders a tool outcome as text for the model. A map
// carrying success=false is treated as an error result.
func formatToolResult(result any, err error) (string, bool) {
	if err != nil {
		return fmt.Sprintf("Tool execution error: %v", err), true
	}

	if m, ok := result.(map[string]any); ok {
		if success, ok := m["success"].(bool); ok && !success {
			if msg, ok := m["error"].(string); ok {
				return msg, true
			}
			return fmt.Sprintf("Tool failed: %v", result), true
		}
	}

	switch v := result.(type) {
	case string:
		return v, false
	default:
		if data, jerr := json.Marshal(v); jerr == nil {
			return string(data), false
		}
		return fmt.Sprintf("%v", result), false
	}
}
