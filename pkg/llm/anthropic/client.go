// Package anthropic provides the Anthropic Claude driver for the llm
// interface.
package anthropic

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"maestro/pkg/llm"
	"maestro/pkg/tools"
)

// ClaudeClient wraps the Anthropic API client to implement llm.LLMClient.
type ClaudeClient struct {
	client anthropic.Client
	model  anthropic.Model
}

// New creates a Claude client for the given model.
func New(apiKey, model string) llm.LLMClient {
	return &ClaudeClient{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
	}
}

// prepareMessages enforces Anthropic API requirements:
//  1. system messages move to the top-level system parameter
//  2. consecutive same-role messages merge into one turn
//  3. the sequence starts with a user message
func prepareMessages(in llm.CompletionRequest) (string, []anthropic.MessageParam, error) {
	if len(in.Messages) == 0 {
		return "", nil, fmt.Errorf("message list cannot be empty")
	}

	var systemParts []string
	if in.System != "" {
		systemParts = append(systemParts, in.System)
	}

	var merged []anthropic.MessageParam
	for i := range in.Messages {
		msg := &in.Messages[i]
		if msg.Role == llm.RoleSystem {
			systemParts = append(systemParts, msg.Content)
			continue
		}

		blocks := contentBlocks(msg)
		if len(blocks) == 0 {
			continue
		}

		role := anthropic.MessageParamRole(msg.Role)
		if n := len(merged); n > 0 && merged[n-1].Role == role {
			merged[n-1].Content = append(merged[n-1].Content, blocks...)
			continue
		}
		merged = append(merged, anthropic.MessageParam{Role: role, Content: blocks})
	}

	if len(merged) == 0 {
		return "", nil, fmt.Errorf("must have at least one non-system message")
	}
	if merged[0].Role != anthropic.MessageParamRole(llm.RoleUser) {
		return "", nil, fmt.Errorf("first message must be user role, got: %s", merged[0].Role)
	}

	return strings.Join(systemParts, "\n\n"), merged, nil
}

func contentBlocks(msg *llm.CompletionMessage) []anthropic.ContentBlockParamUnion {
	var blocks []anthropic.ContentBlockParamUnion
	// Tool results must come first in a user turn.
	for i := range msg.ToolResults {
		tr := &msg.ToolResults[i]
		blocks = append(blocks, anthropic.ContentBlockParamUnion{
			OfToolResult: &anthropic.ToolResultBlockParam{
				ToolUseID: tr.ToolCallID,
				IsError:   anthropic.Bool(tr.IsError),
				Content:   toolResultContent(tr),
			},
		})
	}
	if msg.Content != "" {
		blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
	}
	for i := range msg.ToolCalls {
		tc := &msg.ToolCalls[i]
		blocks = append(blocks, anthropic.ContentBlockParamUnion{
			OfToolUse: &anthropic.ToolUseBlockParam{
				ID:    tc.ID,
				Name:  tc.Name,
				Input: tc.Parameters,
			},
		})
	}
	return blocks
}

// toolResultContent builds the tool_result content blocks. The
// Messages API accepts image blocks inside tool results, so multimodal
// results pass through as image blocks followed by the caption text.
func toolResultContent(tr *llm.ToolResult) []anthropic.ToolResultBlockParamContentUnion {
	content := make([]anthropic.ToolResultBlockParamContentUnion, 0, len(tr.Images)+1)
	for i := range tr.Images {
		img := &tr.Images[i]
		content = append(content, anthropic.ToolResultBlockParamContentUnion{
			OfImage: &anthropic.ImageBlockParam{
				Source: anthropic.ImageBlockParamSourceUnion{
					OfBase64: &anthropic.Base64ImageSourceParam{
						MediaType: anthropic.Base64ImageSourceMediaType(img.MIMEType),
						Data:      base64.StdEncoding.EncodeToString(img.Data),
					},
				},
			},
		})
	}
	if tr.Content != "" || len(content) == 0 {
		content = append(content, anthropic.ToolResultBlockParamContentUnion{
			OfText: &anthropic.TextBlockParam{Text: tr.Content},
		})
	}
	return content
}

// Complete implements llm.LLMClient.
func (c *ClaudeClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	systemPrompt, messages, err := prepareMessages(in)
	if err != nil {
		return llm.CompletionResponse{}, &llm.Error{Kind: llm.ErrKindBadInput, Err: err}
	}

	params := anthropic.MessageNewParams{
		Model:     c.model,
		Messages:  messages,
		MaxTokens: int64(in.MaxTokens),
	}
	if in.Temperature >= 0 {
		params.Temperature = anthropic.Float(in.Temperature)
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt, Type: "text"}}
	}

	if len(in.Tools) > 0 {
		toolParams := make([]anthropic.ToolUnionParam, 0, len(in.Tools))
		for i := range in.Tools {
			tool := &in.Tools[i]
			toolParams = append(toolParams, anthropic.ToolUnionParam{
				OfTool: &anthropic.ToolParam{
					Name:        tool.Name,
					Description: anthropic.String(tool.Description),
					InputSchema: anthropic.ToolInputSchemaParam{
						Type:       "object",
						Properties: schemaProperties(tool),
						Required:   tool.InputSchema.Required,
					},
				},
			})
		}
		params.Tools = toolParams

		switch in.ToolChoice {
		case llm.ToolChoiceAny:
			params.ToolChoice = anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
		default:
			params.ToolChoice = anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
		}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return llm.CompletionResponse{}, &llm.Error{
			Kind: llm.ErrKindTransient,
			Err:  fmt.Errorf("empty response from Claude API"),
		}
	}

	var text string
	var toolCalls []llm.ToolCall
	for i := range resp.Content {
		block := &resp.Content[i]
		switch block.Type {
		case "text":
			text += block.AsText().Text
		case "tool_use":
			toolUse := block.AsToolUse()
			var args map[string]any
			if err := json.Unmarshal(toolUse.Input, &args); err != nil {
				return llm.CompletionResponse{}, fmt.Errorf("failed to parse tool input: %w", err)
			}
			toolCalls = append(toolCalls, llm.ToolCall{ID: toolUse.ID, Name: toolUse.Name, Parameters: args})
		}
	}

	return llm.CompletionResponse{
		Content:    text,
		ToolCalls:  toolCalls,
		StopReason: string(resp.StopReason),
	}, nil
}

// GetModelName returns the model identifier for this client.
func (c *ClaudeClient) GetModelName() string {
	return string(c.model)
}

func schemaProperties(tool *tools.ToolDefinition) any {
	if len(tool.InputSchema.Properties) == 0 {
		return nil
	}
	props := make(map[string]any, len(tool.InputSchema.Properties))
	for name := range tool.InputSchema.Properties {
		prop := tool.InputSchema.Properties[name]
		props[name] = propertySchema(&prop)
	}
	return props
}

func propertySchema(prop *tools.Property) map[string]any {
	schema := map[string]any{"type": prop.Type}
	if prop.Description != "" {
		schema["description"] = prop.Description
	}
	if len(prop.Enum) > 0 {
		schema["enum"] = prop.Enum
	}
	if prop.Type == "array" && prop.Items != nil {
		schema["items"] = propertySchema(prop.Items)
	}
	if prop.Type == "object" && len(prop.Properties) > 0 {
		children := make(map[string]any, len(prop.Properties))
		for name, child := range prop.Properties {
			if child != nil {
				children[name] = propertySchema(child)
			}
		}
		schema["properties"] = children
	}
	return schema
}

func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &llm.Error{Kind: llm.ErrKindTransient, Err: err}
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &llm.Error{
			Kind:   llm.ClassifyStatus(apiErr.StatusCode),
			Status: apiErr.StatusCode,
			Err:    err,
		}
	}

	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "rate") || strings.Contains(lower, "quota"):
		return &llm.Error{Kind: llm.ErrKindRateLimit, Err: err}
	case strings.Contains(lower, "unauthorized") || strings.Contains(lower, "api key"):
		return &llm.Error{Kind: llm.ErrKindAuth, Err: err}
	default:
		return &llm.Error{Kind: llm.ErrKindTransient, Err: err}
	}
}
