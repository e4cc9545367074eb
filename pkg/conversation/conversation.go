// Package conversation runs Maestro's single continuous conversation.
// One assistant. One superintendent. One thread. Messages persist in
// the store one row each; the summary and counters live in the
// conversation state row. At 65% estimated context usage the history
// compacts: old rows are summarized and deleted, recent ones stay.
package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"maestro/pkg/bus"
	"maestro/pkg/config"
	"maestro/pkg/identity"
	"maestro/pkg/knowledge"
	"maestro/pkg/llm"
	"maestro/pkg/llm/clients"
	"maestro/pkg/llm/toolloop"
	"maestro/pkg/logx"
	"maestro/pkg/store"
	"maestro/pkg/tools"
)

// ClientFactory builds a provider driver for an engine name.
type ClientFactory func(engine string) (llm.LLMClient, error)

// Deps are the collaborators a Conversation needs.
type Deps struct {
	Store     *store.Store
	Knowledge *knowledge.Knowledge
	Identity  *identity.Manager
	Vision    tools.HighlightSpawner

	// Engine overrides the persisted engine choice (optional).
	Engine string

	// Factory defaults to clients.New.
	Factory ClientFactory
}

// Conversation is the single entry point for talking to Maestro.
// Send serializes callers; tools run inside the send that triggered
// them.
type Conversation struct {
	mu sync.Mutex

	store    *store.Store
	identity *identity.Manager
	provider *tools.Provider
	factory  ClientFactory
	logger   *logx.Logger

	engineName   string
	contextLimit int
	client       llm.LLMClient

	// summarize is swappable for tests; the default uses the
	// gemini-flash engine.
	summarize func(ctx context.Context, prompt string) (string, error)
}

// New loads the persisted engine choice (or the configured default)
// and wires the tool registry around this conversation.
func New(deps Deps) (*Conversation, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}

	factory := deps.Factory
	if factory == nil {
		factory = clients.New
	}

	engineName := deps.Engine
	if engineName == "" {
		state, err := deps.Store.GetConversationState()
		if err != nil {
			return nil, err
		}
		engineName = state.Engine
	}
	if engineName == "" {
		engineName = config.DefaultEngine
	}
	info, ok := config.Engines[engineName]
	if !ok {
		return nil, fmt.Errorf("unknown engine: %s", engineName)
	}

	client, err := factory(engineName)
	if err != nil {
		return nil, err
	}

	c := &Conversation{
		store:        deps.Store,
		identity:     deps.Identity,
		factory:      factory,
		logger:       logx.NewLogger("conversation"),
		engineName:   engineName,
		contextLimit: info.ContextWindow,
		client:       client,
	}
	c.summarize = c.summarizeWithFlash

	c.provider = tools.NewProvider(tools.ToolContext{
		Store:     deps.Store,
		Knowledge: deps.Knowledge,
		Identity:  deps.Identity,
		Engine:    c,
		Vision:    deps.Vision,
	}, nil)

	return c, nil
}

// Engine returns the active engine name.
func (c *Conversation) Engine() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engineName
}

// Send delivers one message and returns Maestro's reply. The system
// prompt is rebuilt fresh each turn so learning edits apply
// immediately.
func (c *Conversation) Send(ctx context.Context, message string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	systemPrompt := ""
	if c.identity != nil {
		systemPrompt = c.identity.BuildSystemPrompt()
	}

	if _, err := c.store.AddMessage("user", message); err != nil {
		return "", err
	}

	if err := c.maybeCompact(ctx, c.fixedTokens(systemPrompt)); err != nil {
		c.logger.Warn("compaction failed: %v", err)
	}

	messages, err := c.buildMessages()
	if err != nil {
		return "", err
	}

	loop := toolloop.New(c.client, c.logger)
	result, err := loop.Run(ctx, &toolloop.Config{
		Messages:     messages,
		System:       systemPrompt,
		ToolProvider: c.provider,
	})
	if err != nil {
		return "", err
	}

	if _, err := c.store.AddMessage("assistant", result.FinalText); err != nil {
		return "", err
	}
	if err := c.store.UpdateConversationState(&store.StateUpdate{IncrementExchanges: true}); err != nil {
		return "", err
	}

	return result.FinalText, nil
}

// buildMessages assembles the API transcript. A stored summary is
// injected as an opening user/assistant exchange.
func (c *Conversation) buildMessages() ([]llm.CompletionMessage, error) {
	state, err := c.store.GetConversationState()
	if err != nil {
		return nil, err
	}
	rows, err := c.store.AllMessages()
	if err != nil {
		return nil, err
	}

	var messages []llm.CompletionMessage
	if state.Summary != "" {
		messages = append(messages,
			llm.CompletionMessage{
				Role:    llm.RoleUser,
				Content: "[Conversation history summary — this is context from our previous exchanges]",
			},
			llm.CompletionMessage{
				Role:    llm.RoleAssistant,
				Content: fmt.Sprintf("I remember. Here's what we've covered:\n\n%s", state.Summary),
			},
		)
	}
	for i := range rows {
		messages = append(messages, llm.CompletionMessage{
			Role:    llm.CompletionRole(rows[i].Role),
			Content: rows[i].Content,
		})
	}
	return messages, nil
}

// SwitchEngine changes the model mid-conversation. History lives in
// the store, so nothing is lost. Called from inside the tool loop, so
// it must not take the send lock.
func (c *Conversation) SwitchEngine(engineName string) (string, error) {
	info, ok := config.Engines[engineName]
	if !ok {
		return fmt.Sprintf("Unknown engine '%s'. Available: %s",
			engineName, joinEngineNames()), nil
	}
	if engineName == c.engineName {
		return fmt.Sprintf("Already running on %s.", engineName), nil
	}

	client, err := c.factory(engineName)
	if err != nil {
		return "", err
	}

	oldEngine := c.engineName
	c.engineName = engineName
	c.contextLimit = info.ContextWindow
	c.client = client

	if err := c.store.SetEngine(engineName); err != nil {
		return "", err
	}
	bus.Emit(bus.TypeEngineSwitch, map[string]any{"from": oldEngine, "to": engineName})

	// The new engine may have a smaller context window.
	systemPrompt := ""
	if c.identity != nil {
		systemPrompt = c.identity.BuildSystemPrompt()
	}
	if err := c.maybeCompact(context.Background(), c.fixedTokens(systemPrompt)); err != nil {
		c.logger.Warn("compaction after engine switch failed: %v", err)
	}

	return fmt.Sprintf("Switched from %s to %s (%s). Conversation preserved.",
		oldEngine, engineName, info.Display), nil
}

// Stats reports conversation statistics.
func (c *Conversation) Stats() (map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, err := c.store.GetConversationState()
	if err != nil {
		return nil, err
	}
	rows, err := c.store.AllMessages()
	if err != nil {
		return nil, err
	}

	systemPrompt := ""
	if c.identity != nil {
		systemPrompt = c.identity.BuildSystemPrompt()
	}
	total := c.fixedTokens(systemPrompt) + estimateTokens(state.Summary) + estimateRowTokens(rows)

	return map[string]any{
		"engine":             c.engineName,
		"context_limit":      c.contextLimit,
		"estimated_tokens":   total,
		"usage_pct":          fmt.Sprintf("%.1f%%", 100*float64(total)/float64(c.contextLimit)),
		"messages_in_memory": len(rows),
		"total_exchanges":    state.TotalExchanges,
		"compactions":        state.Compactions,
		"has_summary":        state.Summary != "",
		"summary_length":     len(state.Summary),
	}, nil
}

func joinEngineNames() string {
	names := config.EngineNames()
	out := ""
	for i, name := range names {
		if i > 0 {
			out += ", "
		}
		out += name
	}
	return out
}

// fixedTokens estimates the per-request overhead: system prompt plus
// tool definitions.
func (c *Conversation) fixedTokens(systemPrompt string) int {
	toolsText, _ := json.Marshal(c.provider.List())
	return estimateTokens(systemPrompt) + estimateTokens(string(toolsText))
}
