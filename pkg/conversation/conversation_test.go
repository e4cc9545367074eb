package conversation

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"maestro/pkg/bus"
	"maestro/pkg/llm"
	"maestro/pkg/store"
)

type scriptedClient struct {
	responses []llm.CompletionResponse
	requests  []llm.CompletionRequest
}

func (c *scriptedClient) Complete(_ context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	c.requests = append(c.requests, req)
	if len(c.responses) == 0 {
		return llm.CompletionResponse{Content: "ok", StopReason: llm.StopEndTurn}, nil
	}
	resp := c.responses[0]
	c.responses = c.responses[1:]
	return resp, nil
}

func (c *scriptedClient) GetModelName() string { return "scripted" }

func testStore(t *testing.T) *store.Store {
	t.Helper()
	bus.Reset()
	t.Cleanup(bus.Reset)
	db, err := store.OpenDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	s := store.NewStore(db, store.GenerateProjectID())
	require.NoError(t, s.EnsureProject("proj", "", 0))
	return s
}

func testConversation(t *testing.T, st *store.Store, client *scriptedClient) *Conversation {
	t.Helper()
	conv, err := New(Deps{
		Store:   st,
		Engine:  "gpt",
		Factory: func(string) (llm.LLMClient, error) { return client, nil },
	})
	require.NoError(t, err)
	conv.summarize = func(context.Context, string) (string, error) {
		return "summary of older exchanges", nil
	}
	return conv
}

func TestSendPersistsExchange(t *testing.T) {
	st := testStore(t)
	client := &scriptedClient{responses: []llm.CompletionResponse{
		{Content: "The pour is Thursday.", StopReason: llm.StopEndTurn},
	}}
	conv := testConversation(t, st, client)

	reply, err := conv.Send(context.Background(), "When is the pour?")
	require.NoError(t, err)
	assert.Equal(t, "The pour is Thursday.", reply)

	rows, err := st.AllMessages()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "user", rows[0].Role)
	assert.Equal(t, "assistant", rows[1].Role)

	state, err := st.GetConversationState()
	require.NoError(t, err)
	assert.Equal(t, 1, state.TotalExchanges)
	assert.Equal(t, 0, state.Compactions)
	assert.Empty(t, state.Summary)
}

func TestSendRunsToolCalls(t *testing.T) {
	st := testStore(t)
	client := &scriptedClient{responses: []llm.CompletionResponse{
		{
			StopReason: llm.StopToolUse,
			ToolCalls: []llm.ToolCall{{
				ID: "c1", Name: "create_workspace",
				Parameters: map[string]any{"title": "Kitchen Review"},
			}},
		},
		{Content: "Workspace set up.", StopReason: llm.StopEndTurn},
	}}
	conv := testConversation(t, st, client)

	reply, err := conv.Send(context.Background(), "start a kitchen review")
	require.NoError(t, err)
	assert.Equal(t, "Workspace set up.", reply)

	ws, err := st.GetWorkspace("kitchen_review")
	require.NoError(t, err)
	assert.Equal(t, "Kitchen Review", ws.Metadata.Title)

	// Tool traffic is loop-internal; only the user text and final
	// reply persist.
	rows, err := st.AllMessages()
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestSummaryInjectedAsOpeningExchange(t *testing.T) {
	st := testStore(t)
	summary := "We agreed the slab pour moves to Friday."
	require.NoError(t, st.UpdateConversationState(&store.StateUpdate{Summary: &summary}))

	client := &scriptedClient{}
	conv := testConversation(t, st, client)

	_, err := conv.Send(context.Background(), "remind me about the pour")
	require.NoError(t, err)

	require.NotEmpty(t, client.requests)
	msgs := client.requests[0].Messages
	require.GreaterOrEqual(t, len(msgs), 3)
	assert.Equal(t, "[Conversation history summary — this is context from our previous exchanges]", msgs[0].Content)
	assert.Equal(t, llm.RoleAssistant, msgs[1].Role)
	assert.Contains(t, msgs[1].Content, summary)
}

func TestCompactionAtThreshold(t *testing.T) {
	st := testStore(t)
	client := &scriptedClient{responses: []llm.CompletionResponse{
		{Content: "Noted.", StopReason: llm.StopEndTurn},
	}}
	conv := testConversation(t, st, client)
	conv.contextLimit = 40_000

	// 100 messages x 1200 chars ≈ 30k estimated tokens, over the 65%
	// line once fixed costs are added.
	body := strings.Repeat("x", 1200)
	var preloadIDs []int64
	for i := 0; i < 100; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		id, err := st.AddMessage(role, body)
		require.NoError(t, err)
		preloadIDs = append(preloadIDs, id)
	}

	var compactionEvents int
	bus.Subscribe(func(ev bus.Event) {
		if ev.Type == bus.TypeCompaction {
			compactionEvents++
		}
	})

	_, err := conv.Send(context.Background(), "status?")
	require.NoError(t, err)

	count, err := st.CountMessages()
	require.NoError(t, err)
	assert.Equal(t, 21, count)

	state, err := st.GetConversationState()
	require.NoError(t, err)
	assert.Equal(t, 1, state.Compactions)
	assert.Equal(t, "summary of older exchanges", state.Summary)
	assert.Equal(t, 1, compactionEvents)

	// The newest preloaded rows survive.
	rows, err := st.AllMessages()
	require.NoError(t, err)
	assert.Equal(t, preloadIDs[81], rows[0].ID)
}

func TestCompactionNoopUnderThreshold(t *testing.T) {
	st := testStore(t)
	conv := testConversation(t, st, &scriptedClient{})
	conv.contextLimit = 40_000

	for i := 0; i < 30; i++ {
		_, err := st.AddMessage("user", "short")
		require.NoError(t, err)
	}

	_, err := conv.Send(context.Background(), "hi")
	require.NoError(t, err)

	state, err := st.GetConversationState()
	require.NoError(t, err)
	assert.Equal(t, 0, state.Compactions)
	assert.Empty(t, state.Summary)

	count, err := st.CountMessages()
	require.NoError(t, err)
	assert.Equal(t, 32, count)
}

func TestCompactionSkippedAtOrBelowKeepRecent(t *testing.T) {
	st := testStore(t)
	conv := testConversation(t, st, &scriptedClient{})
	conv.contextLimit = 10 // force the threshold check to pass

	for i := 0; i < 15; i++ {
		_, err := st.AddMessage("user", strings.Repeat("y", 400))
		require.NoError(t, err)
	}

	require.NoError(t, conv.maybeCompact(context.Background(), 0))

	count, err := st.CountMessages()
	require.NoError(t, err)
	assert.Equal(t, 15, count)

	state, err := st.GetConversationState()
	require.NoError(t, err)
	assert.Equal(t, 0, state.Compactions)
}

func TestSummarizerFallback(t *testing.T) {
	st := testStore(t)
	conv := testConversation(t, st, &scriptedClient{})
	conv.contextLimit = 100
	conv.summarize = func(context.Context, string) (string, error) {
		return "", fmt.Errorf("flash unavailable")
	}

	for i := 0; i < 25; i++ {
		_, err := st.AddMessage("user", strings.Repeat("z", 400))
		require.NoError(t, err)
	}

	require.NoError(t, conv.maybeCompact(context.Background(), 0))

	state, err := st.GetConversationState()
	require.NoError(t, err)
	assert.Equal(t, 1, state.Compactions)
	assert.Contains(t, state.Summary, "Super: "+strings.Repeat("z", 400))
}

func TestSwitchEngine(t *testing.T) {
	st := testStore(t)
	for i := 0; i < 4; i++ {
		_, err := st.AddMessage("user", fmt.Sprintf("m%d", i))
		require.NoError(t, err)
	}
	conv := testConversation(t, st, &scriptedClient{})

	before, err := st.AllMessages()
	require.NoError(t, err)

	msg, err := conv.SwitchEngine("mystery-engine")
	require.NoError(t, err)
	assert.Equal(t, "Unknown engine 'mystery-engine'. Available: gemini, gemini-flash, gpt, opus", msg)

	msg, err = conv.SwitchEngine("gpt")
	require.NoError(t, err)
	assert.Equal(t, "Already running on gpt.", msg)

	msg, err = conv.SwitchEngine("opus")
	require.NoError(t, err)
	assert.Equal(t, "Switched from gpt to opus (Opus 4.6). Conversation preserved.", msg)
	assert.Equal(t, "opus", conv.Engine())

	// History is untouched by the switch.
	after, err := st.AllMessages()
	require.NoError(t, err)
	assert.Equal(t, before, after)

	// The choice persists; a fresh conversation picks it up.
	state, err := st.GetConversationState()
	require.NoError(t, err)
	assert.Equal(t, "opus", state.Engine)

	conv2, err := New(Deps{
		Store:   st,
		Factory: func(string) (llm.LLMClient, error) { return &scriptedClient{}, nil },
	})
	require.NoError(t, err)
	assert.Equal(t, "opus", conv2.Engine())
}

func TestStats(t *testing.T) {
	st := testStore(t)
	conv := testConversation(t, st, &scriptedClient{})

	_, err := conv.Send(context.Background(), "hello")
	require.NoError(t, err)

	stats, err := conv.Stats()
	require.NoError(t, err)
	assert.Equal(t, "gpt", stats["engine"])
	assert.Equal(t, 128_000, stats["context_limit"])
	assert.Equal(t, 2, stats["messages_in_memory"])
	assert.Equal(t, 1, stats["total_exchanges"])
	assert.Equal(t, 0, stats["compactions"])
	assert.Equal(t, false, stats["has_summary"])
	assert.Equal(t, 0, stats["summary_length"])
	assert.Regexp(t, `^\d+\.\d%$`, stats["usage_pct"])
}
