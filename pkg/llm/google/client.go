// Package google provides the Google Gemini driver for the llm
// interface.
package google

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"maestro/pkg/llm"
	"maestro/pkg/tools"
)

// GeminiClient wraps the Google GenAI client to implement llm.LLMClient.
// Client creation needs a context, so it is deferred to the first call.
type GeminiClient struct {
	client *genai.Client
	apiKey string
	model  string
}

// New creates a Gemini client for the given model.
func New(apiKey, model string) llm.LLMClient {
	return &GeminiClient{apiKey: apiKey, model: model}
}

// Complete implements llm.LLMClient.
func (g *GeminiClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	if g.client == nil {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  g.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return llm.CompletionResponse{}, &llm.Error{
				Kind: llm.ErrKindTransient,
				Err:  fmt.Errorf("failed to create Gemini client: %w", err),
			}
		}
		g.client = client
	}

	contents, systemInstruction, err := convertMessages(in)
	if err != nil {
		return llm.CompletionResponse{}, &llm.Error{Kind: llm.ErrKindBadInput, Err: err}
	}

	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(in.MaxTokens),
	}
	if in.Temperature >= 0 {
		temp := float32(in.Temperature)
		config.Temperature = &temp
	}
	if systemInstruction != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemInstruction}},
		}
	}

	if len(in.Tools) > 0 {
		config.Tools = []*genai.Tool{
			{FunctionDeclarations: convertTools(in.Tools)},
		}
		mode := genai.FunctionCallingConfigModeAuto
		if in.ToolChoice == llm.ToolChoiceAny {
			mode = genai.FunctionCallingConfigModeAny
		}
		config.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: mode},
		}
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return llm.CompletionResponse{}, &llm.Error{
			Kind: llm.ErrKindTransient,
			Err:  fmt.Errorf("Gemini API call failed: %w", err),
		}
	}
	if result == nil {
		return llm.CompletionResponse{}, &llm.Error{
			Kind: llm.ErrKindTransient,
			Err:  fmt.Errorf("empty response from Gemini API"),
		}
	}

	response := llm.CompletionResponse{
		Content:    result.Text(),
		StopReason: stopReason(result),
	}
	if calls := result.FunctionCalls(); len(calls) > 0 {
		response.ToolCalls = convertFunctionCalls(calls)
		response.StopReason = llm.StopToolUse
	}
	return response, nil
}

// GetModelName returns the model identifier for this client.
func (g *GeminiClient) GetModelName() string {
	return g.model
}

// convertMessages converts our message format to Gemini Content.
// Gemini uses "model" for the assistant role, function calls as parts
// of model turns, and function responses as parts of user turns.
func convertMessages(in llm.CompletionRequest) ([]*genai.Content, string, error) {
	if len(in.Messages) == 0 {
		return nil, "", fmt.Errorf("message list cannot be empty")
	}

	systemInstruction := in.System
	var contents []*genai.Content

	// Gemini matches function responses by name, not id, so remember
	// the name behind each call id seen so far.
	callNames := make(map[string]string)

	for i := range in.Messages {
		msg := &in.Messages[i]

		if msg.Role == llm.RoleSystem {
			if systemInstruction != "" {
				systemInstruction += "\n\n" + msg.Content
			} else {
				systemInstruction = msg.Content
			}
			continue
		}

		var role string
		switch msg.Role {
		case llm.RoleUser:
			role = "user"
		case llm.RoleAssistant:
			role = "model"
		default:
			return nil, "", fmt.Errorf("unsupported message role: %s", msg.Role)
		}

		var parts []*genai.Part
		if msg.Content != "" {
			parts = append(parts, &genai.Part{Text: msg.Content})
		}
		for j := range msg.ToolCalls {
			tc := &msg.ToolCalls[j]
			callNames[tc.ID] = tc.Name
			parts = append(parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{
					ID:   tc.ID,
					Name: tc.Name,
					Args: tc.Parameters,
				},
			})
		}
		for j := range msg.ToolResults {
			tr := &msg.ToolResults[j]
			if tr.ToolCallID == "" {
				continue
			}
			name := callNames[tr.ToolCallID]
			if name == "" {
				name = tr.ToolCallID
			}
			// Function responses are text-only; image results degrade
			// to their caption plus a placeholder.
			parts = append(parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					ID:   tr.ToolCallID,
					Name: name,
					Response: map[string]any{
						"content":  tr.TextFallback(),
						"is_error": tr.IsError,
					},
				},
			})
		}

		if len(parts) > 0 {
			contents = append(contents, &genai.Content{Role: role, Parts: parts})
		}
	}

	return contents, systemInstruction, nil
}

func convertTools(defs []tools.ToolDefinition) []*genai.FunctionDeclaration {
	declarations := make([]*genai.FunctionDeclaration, len(defs))
	for i := range defs {
		tool := &defs[i]
		properties := make(map[string]*genai.Schema)
		for name := range tool.InputSchema.Properties {
			prop := tool.InputSchema.Properties[name]
			properties[name] = convertProperty(&prop)
		}
		declarations[i] = &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: properties,
				Required:   tool.InputSchema.Required,
			},
		}
	}
	return declarations
}

func convertProperty(prop *tools.Property) *genai.Schema {
	schema := &genai.Schema{Description: prop.Description}

	switch prop.Type {
	case "string":
		schema.Type = genai.TypeString
	case "number":
		schema.Type = genai.TypeNumber
	case "integer":
		schema.Type = genai.TypeInteger
	case "boolean":
		schema.Type = genai.TypeBoolean
	case "array":
		schema.Type = genai.TypeArray
		if prop.Items != nil {
			schema.Items = convertProperty(prop.Items)
		}
	case "object":
		schema.Type = genai.TypeObject
		if len(prop.Properties) > 0 {
			properties := make(map[string]*genai.Schema)
			for name, child := range prop.Properties {
				if child != nil {
					properties[name] = convertProperty(child)
				}
			}
			schema.Properties = properties
		}
	default:
		schema.Type = genai.TypeString
	}

	if len(prop.Enum) > 0 {
		schema.Enum = prop.Enum
	}
	return schema
}

func convertFunctionCalls(calls []*genai.FunctionCall) []llm.ToolCall {
	toolCalls := make([]llm.ToolCall, len(calls))
	for i, call := range calls {
		// Gemini matches on function name; fall back to it when no id.
		id := call.ID
		if id == "" {
			id = call.Name
		}
		toolCalls[i] = llm.ToolCall{ID: id, Name: call.Name, Parameters: call.Args}
	}
	return toolCalls
}

func stopReason(result *genai.GenerateContentResponse) string {
	if len(result.Candidates) > 0 {
		if result.Candidates[0].FinishReason == genai.FinishReasonMaxTokens {
			return llm.StopMaxTokens
		}
	}
	return llm.StopEndTurn
}
