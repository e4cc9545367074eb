package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"maestro/pkg/llm"
	"maestro/pkg/tools"
)

func TestConvertMessagesRoundTripsToolTraffic(t *testing.T) {
	items, err := convertMessages([]llm.CompletionMessage{
		{Role: llm.RoleUser, Content: "go"},
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{
			{ID: "c1", Name: "list_pages", Parameters: map[string]any{"discipline": "Kitchen"}},
		}},
		{Role: llm.RoleUser, ToolResults: []llm.ToolResult{
			{ToolCallID: "c1", Content: "3 pages"},
		}},
	})
	require.NoError(t, err)
	require.Len(t, items, 3)

	require.NotNil(t, items[0].OfMessage)

	call := items[1].OfFunctionCall
	require.NotNil(t, call)
	assert.Equal(t, "c1", call.CallID)
	assert.Equal(t, "list_pages", call.Name)
	assert.Contains(t, call.Arguments, "Kitchen")

	output := items[2].OfFunctionCallOutput
	require.NotNil(t, output)
	assert.Equal(t, "c1", output.CallID)
}

func TestConvertMessagesImageResultPlaceholder(t *testing.T) {
	items, err := convertMessages([]llm.CompletionMessage{
		{Role: llm.RoleUser, Content: "look"},
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{
			{ID: "c1", Name: "see_page", Parameters: map[string]any{"page": "K_211"}},
		}},
		{Role: llm.RoleUser, ToolResults: []llm.ToolResult{
			{
				ToolCallID: "c1",
				Content:    "Page K_211 (Kitchen)",
				Images:     []llm.ImageContent{{MIMEType: "image/jpeg", Data: []byte{1, 2, 3}}},
			},
		}},
	})
	require.NoError(t, err)

	output := items[2].OfFunctionCallOutput
	require.NotNil(t, output)
	// The bytes never cross the wire; the caption and a placeholder do.
	assert.Contains(t, output.Output, "Page K_211 (Kitchen)")
	assert.Contains(t, output.Output, "image(s) unavailable")
}

func TestConvertMessagesRejectsEmpty(t *testing.T) {
	_, err := convertMessages(nil)
	assert.Error(t, err)
}

func TestPropertySchemaNesting(t *testing.T) {
	schema := propertySchema(&tools.Property{
		Type: "array",
		Items: &tools.Property{
			Type: "object",
			Properties: map[string]*tools.Property{
				"name": {Type: "string", Enum: []string{"a", "b"}},
			},
		},
	})

	items, ok := schema["items"].(map[string]any)
	require.True(t, ok)
	props, ok := items["properties"].(map[string]any)
	require.True(t, ok)
	name, ok := props["name"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, name["enum"])
}
