// Package openai provides the OpenAI driver for the llm interface,
// built on the Responses API.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/tiktoken-go/tokenizer"

	"maestro/pkg/llm"
	"maestro/pkg/logx"
	"maestro/pkg/tools"
)

// GPTClient wraps the official OpenAI Go client to implement
// llm.LLMClient.
type GPTClient struct {
	client openai.Client
	model  string
	logger *logx.Logger

	encOnce sync.Once
	enc     tokenizer.Codec
}

// New creates an OpenAI client for the given model.
func New(apiKey, model string) llm.LLMClient {
	return &GPTClient{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
		logger: logx.NewLogger("openai"),
	}
}

// Complete implements llm.LLMClient.
func (o *GPTClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	items, err := convertMessages(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, &llm.Error{Kind: llm.ErrKindBadInput, Err: err}
	}

	params := responses.ResponseNewParams{
		Model:           o.model,
		MaxOutputTokens: openai.Int(int64(in.MaxTokens)),
		Input:           responses.ResponseNewParamsInputUnion{OfInputItemList: items},
	}
	if in.System != "" {
		params.Instructions = openai.String(in.System)
	}

	if len(in.Tools) > 0 {
		toolParams := make([]responses.ToolUnionParam, len(in.Tools))
		for i := range in.Tools {
			tool := &in.Tools[i]
			properties := make(map[string]any)
			for name := range tool.InputSchema.Properties {
				prop := tool.InputSchema.Properties[name]
				properties[name] = propertySchema(&prop)
			}
			toolParams[i] = responses.ToolUnionParam{
				OfFunction: &responses.FunctionToolParam{
					Name:        tool.Name,
					Description: openai.String(tool.Description),
					Parameters: openai.FunctionParameters(map[string]any{
						"type":       "object",
						"properties": properties,
						"required":   tool.InputSchema.Required,
					}),
				},
			}
		}
		params.Tools = toolParams
	}

	o.logUsageEstimate(in)

	resp, err := o.client.Responses.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, &llm.Error{
			Kind: llm.ErrKindTransient,
			Err:  fmt.Errorf("OpenAI Responses API failed: %w", err),
		}
	}
	if resp == nil {
		return llm.CompletionResponse{}, &llm.Error{
			Kind: llm.ErrKindTransient,
			Err:  fmt.Errorf("empty response from OpenAI Responses API"),
		}
	}

	var toolCalls []llm.ToolCall
	for i := range resp.Output {
		item := &resp.Output[i]
		if item.Type != "function_call" {
			continue
		}
		call := item.AsFunctionCall()
		var args map[string]any
		if call.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
				continue
			}
		}
		id := call.CallID
		if id == "" {
			id = call.ID
		}
		toolCalls = append(toolCalls, llm.ToolCall{ID: id, Name: call.Name, Parameters: args})
	}

	out := llm.CompletionResponse{
		Content:   resp.OutputText(),
		ToolCalls: toolCalls,
	}
	if len(toolCalls) > 0 {
		out.StopReason = llm.StopToolUse
	} else {
		out.StopReason = llm.StopEndTurn
	}
	return out, nil
}

// GetModelName returns the model identifier for this client.
func (o *GPTClient) GetModelName() string {
	return o.model
}

// convertMessages converts the transcript to Responses input items.
// Tool calls echo back as function_call items; tool results become
// function_call_output items matched by call id.
func convertMessages(messages []llm.CompletionMessage) (responses.ResponseInputParam, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("message list cannot be empty")
	}

	var items responses.ResponseInputParam
	for i := range messages {
		msg := &messages[i]

		role := responses.EasyInputMessageRoleUser
		switch msg.Role {
		case llm.RoleUser:
			role = responses.EasyInputMessageRoleUser
		case llm.RoleAssistant:
			role = responses.EasyInputMessageRoleAssistant
		case llm.RoleSystem:
			role = responses.EasyInputMessageRoleSystem
		default:
			return nil, fmt.Errorf("unsupported message role: %s", msg.Role)
		}

		if msg.Content != "" {
			items = append(items, responses.ResponseInputItemUnionParam{
				OfMessage: &responses.EasyInputMessageParam{
					Role:    role,
					Content: responses.EasyInputMessageContentUnionParam{OfString: openai.String(msg.Content)},
				},
			})
		}

		for j := range msg.ToolCalls {
			tc := &msg.ToolCalls[j]
			args, err := json.Marshal(tc.Parameters)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal tool call arguments: %w", err)
			}
			items = append(items, responses.ResponseInputItemParamOfFunctionCall(string(args), tc.ID, tc.Name))
		}

		for j := range msg.ToolResults {
			tr := &msg.ToolResults[j]
			// Function call outputs are text-only on this API; image
			// results degrade to their caption plus a placeholder.
			items = append(items, responses.ResponseInputItemParamOfFunctionCallOutput(tr.ToolCallID, tr.TextFallback()))
		}
	}
	return items, nil
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
		children := make(map[string]any)
		for name, child := range prop.Properties {
			if child != nil {
				children[name] = propertySchema(child)
			}
		}
		schema["properties"] = children
	}
	return schema
}

// logUsageEstimate logs an approximate prompt token count. Tokenizer
// failures only disable the estimate.
func (o *GPTClient) logUsageEstimate(in llm.CompletionRequest) {
	o.encOnce.Do(func() {
		enc, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			o.logger.Warn("tokenizer unavailable: %v", err)
			return
		}
		o.enc = enc
	})
	if o.enc == nil {
		return
	}

	total := 0
	if in.System != "" {
		if ids, _, err := o.enc.Encode(in.System); err == nil {
			total += len(ids)
		}
	}
	for i := range in.Messages {
		if in.Messages[i].Content == "" {
			continue
		}
		if ids, _, err := o.enc.Encode(in.Messages[i].Content); err == nil {
			total += len(ids)
		}
	}
	o.logger.Debug("request to %s: ~%d prompt tokens, %d messages, %d tools",
		o.model, total, len(in.Messages), len(in.Tools))
}
