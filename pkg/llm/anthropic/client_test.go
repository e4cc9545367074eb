package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"maestro/pkg/llm"
)

func TestPrepareMessagesExtractsSystem(t *testing.T) {
	system, messages, err := prepareMessages(llm.CompletionRequest{
		System: "you are maestro",
		Messages: []llm.CompletionMessage{
			{Role: llm.RoleSystem, Content: "extra instruction"},
			{Role: llm.RoleUser, Content: "hello"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "you are maestro\n\nextra instruction", system)
	require.Len(t, messages, 1)
	assert.Equal(t, "user", string(messages[0].Role))
}

func TestPrepareMessagesMergesConsecutiveRoles(t *testing.T) {
	_, messages, err := prepareMessages(llm.CompletionRequest{
		Messages: []llm.CompletionMessage{
			{Role: llm.RoleUser, Content: "first"},
			{Role: llm.RoleUser, Content: "second"},
			{Role: llm.RoleAssistant, Content: "reply"},
			{Role: llm.RoleUser, Content: "third"},
		},
	})
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Len(t, messages[0].Content, 2)
}

func TestPrepareMessagesToolTraffic(t *testing.T) {
	_, messages, err := prepareMessages(llm.CompletionRequest{
		Messages: []llm.CompletionMessage{
			{Role: llm.RoleUser, Content: "do it"},
			{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{
				{ID: "c1", Name: "list_pages", Parameters: map[string]any{}},
			}},
			{Role: llm.RoleUser, ToolResults: []llm.ToolResult{
				{ToolCallID: "c1", Content: "12 pages", IsError: false},
			}},
		},
	})
	require.NoError(t, err)
	require.Len(t, messages, 3)

	toolUse := messages[1].Content[0].OfToolUse
	require.NotNil(t, toolUse)
	assert.Equal(t, "c1", toolUse.ID)
	assert.Equal(t, "list_pages", toolUse.Name)

	toolResult := messages[2].Content[0].OfToolResult
	require.NotNil(t, toolResult)
	assert.Equal(t, "c1", toolResult.ToolUseID)
}

func TestPrepareMessagesImageToolResult(t *testing.T) {
	_, messages, err := prepareMessages(llm.CompletionRequest{
		Messages: []llm.CompletionMessage{
			{Role: llm.RoleUser, Content: "look at the hood sheet"},
			{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{
				{ID: "c1", Name: "see_page", Parameters: map[string]any{"page": "K_211"}},
			}},
			{Role: llm.RoleUser, ToolResults: []llm.ToolResult{
				{
					ToolCallID: "c1",
					Content:    "Page K_211 (Kitchen)",
					Images: []llm.ImageContent{
						{MIMEType: "image/jpeg", Data: []byte{0xff, 0xd8, 0xff}},
					},
				},
			}},
		},
	})
	require.NoError(t, err)
	require.Len(t, messages, 3)

	toolResult := messages[2].Content[0].OfToolResult
	require.NotNil(t, toolResult)
	require.Len(t, toolResult.Content, 2)

	// Image block first, caption text after it.
	img := toolResult.Content[0].OfImage
	require.NotNil(t, img)
	require.NotNil(t, img.Source.OfBase64)
	assert.Equal(t, "image/jpeg", string(img.Source.OfBase64.MediaType))
	assert.Equal(t, "/9j/", img.Source.OfBase64.Data)

	text := toolResult.Content[1].OfText
	require.NotNil(t, text)
	assert.Equal(t, "Page K_211 (Kitchen)", text.Text)
}

func TestPrepareMessagesRejectsBadSequences(t *testing.T) {
	_, _, err := prepareMessages(llm.CompletionRequest{})
	assert.Error(t, err)

	_, _, err = prepareMessages(llm.CompletionRequest{
		Messages: []llm.CompletionMessage{{Role: llm.RoleAssistant, Content: "hi"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first message must be user")
}
