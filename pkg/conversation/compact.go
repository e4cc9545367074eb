package conversation

import (
	"context"
	"fmt"
	"strings"

	"maestro/pkg/bus"
	"maestro/pkg/config"
	"maestro/pkg/llm"
	"maestro/pkg/store"
)

func estimateTokens(text string) int {
	return len(text) / config.CharsPerToken
}

func estimateRowTokens(rows []store.Message) int {
	total := 0
	for i := range rows {
		total += estimateTokens(rows[i].Content)
	}
	return total
}

// maybeCompact checks estimated context usage and compacts when it
// crosses the threshold. The newest KeepRecentMessages rows survive;
// everything older folds into the summary.
func (c *Conversation) maybeCompact(ctx context.Context, fixedTokens int) error {
	state, err := c.store.GetConversationState()
	if err != nil {
		return err
	}
	rows, err := c.store.AllMessages()
	if err != nil {
		return err
	}

	total := fixedTokens + estimateTokens(state.Summary) + estimateRowTokens(rows)
	if c.contextLimit <= 0 || float64(total)/float64(c.contextLimit) < config.CompactionThreshold {
		return nil
	}
	if len(rows) <= config.KeepRecentMessages {
		return nil
	}

	c.logger.Info("compaction triggered: ~%d tokens (%.0f%% of %d)",
		total, 100*float64(total)/float64(c.contextLimit), c.contextLimit)

	old := rows[:len(rows)-config.KeepRecentMessages]
	cutoffID := rows[len(rows)-config.KeepRecentMessages].ID

	oldText := flattenMessages(old)
	prompt := buildCompactionPrompt(state.Summary, oldText)

	newSummary, err := c.summarize(ctx, prompt)
	if err != nil {
		c.logger.Warn("summarizer failed (%v), using fallback", err)
		newSummary = fallbackSummary(state.Summary, oldText)
	}

	deleted, err := c.store.DeleteMessagesBefore(cutoffID)
	if err != nil {
		return err
	}
	if err := c.store.UpdateConversationState(&store.StateUpdate{
		Summary:             &newSummary,
		IncrementCompaction: true,
	}); err != nil {
		return err
	}

	bus.Emit(bus.TypeCompaction, map[string]any{
		"deleted":        deleted,
		"summary_length": len(newSummary),
	})
	c.logger.Info("compaction done: deleted %d messages", deleted)
	return nil
}

// flattenMessages renders rows as labeled text for the summarizer.
func flattenMessages(rows []store.Message) string {
	var lines []string
	for i := range rows {
		text := strings.TrimSpace(rows[i].Content)
		if text == "" {
			continue
		}
		label := "Maestro"
		if rows[i].Role == "user" {
			label = "Super"
		}
		if len(text) > 500 {
			text = text[:500]
		}
		lines = append(lines, fmt.Sprintf("%s: %s", label, text))
	}
	return strings.Join(lines, "\n")
}

func buildCompactionPrompt(existingSummary, oldText string) string {
	parts := []string{
		"You are summarizing a conversation between Maestro (an AI construction plan analyst) " +
			"and a superintendent. Produce a concise summary that preserves:",
		"- Key decisions made",
		"- Open questions and RFIs",
		"- Important findings (coordination gaps, conflicts, missing info)",
		"- Schedule items discussed (dates, deadlines, pour dates)",
		"- Any commitments or action items",
		"- The super's preferences and communication style",
		"",
		"Be factual and specific. Include dates, sheet numbers, and detail references.",
		"Do NOT include pleasantries, greetings, or filler.",
	}
	if existingSummary != "" {
		parts = append(parts, fmt.Sprintf("\n--- EXISTING SUMMARY ---\n%s", existingSummary))
	}
	parts = append(parts,
		fmt.Sprintf("\n--- NEW CONVERSATION TO INCORPORATE ---\n%s", oldText),
		"\n--- UPDATED SUMMARY ---",
	)
	return strings.Join(parts, "\n")
}

func fallbackSummary(existingSummary, oldText string) string {
	truncated := oldText
	if len(oldText) > 2000 {
		truncated = oldText[:2000] + "\n[...truncated...]"
	}
	if existingSummary != "" {
		return fmt.Sprintf("%s\n\n[Additional context]\n%s", existingSummary, truncated)
	}
	return truncated
}

// summarizeWithFlash compacts through the cheapest engine regardless
// of what the conversation itself runs on.
func (c *Conversation) summarizeWithFlash(ctx context.Context, prompt string) (string, error) {
	client, err := c.factory("gemini-flash")
	if err != nil {
		return "", err
	}
	resp, err := client.Complete(ctx, llm.CompletionRequest{
		Messages:    []llm.CompletionMessage{{Role: llm.RoleUser, Content: prompt}},
		MaxTokens:   summaryMaxTokens,
		Temperature: -1,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

const summaryMaxTokens = 4096
