// Package tools provides the tool registry and the tools exposed to the model.
package tools

import "context"

// Property describes one field of a tool's input schema.
type Property struct {
	Type        string               `json:"type"`
	Description string               `json:"description,omitempty"`
	Enum        []string             `json:"enum,omitempty"`
	Items       *Property            `json:"items,omitempty"`
	Properties  map[string]*Property `json:"properties,omitempty"`
}

// InputSchema is the JSON schema for a tool's arguments.
type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// ToolDefinition is the provider-facing description of a tool.
type ToolDefinition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"input_schema"`
}

// Tool is the execution interface. Exec returns a JSON-serializable
// result, usually a map with a "success" field or a plain string. Tools
// that want the model to see an image return *ImageResult instead.
type Tool interface {
	Definition() ToolDefinition
	Exec(ctx context.Context, args map[string]any) (any, error)
}

// ImageResult is a multimodal tool result: an image plus caption text.
// Only providers that accept image tool results receive the bytes;
// the loop downgrades the rest to the caption with a placeholder.
type ImageResult struct {
	MIMEType string
	Data     []byte
	Text     string
}
