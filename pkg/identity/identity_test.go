package identity

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, v any) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	data, err := json.MarshalIndent(v, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func testManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "soul.json"), map[string]any{
		"name":       "Maestro",
		"role":       "construction plan reviewer",
		"purpose":    "Catch coordination problems before they cost money.",
		"boundaries": "Never guess at dimensions.",
	})
	writeFile(t, filepath.Join(dir, "tone.json"), map[string]any{
		"style":      "Direct, brief, jobsite-friendly.",
		"principles": []string{"Lead with the finding."},
	})
	writeFile(t, filepath.Join(dir, "experience", "tools.json"), map[string]any{
		"strategy":  "Search before reading whole pages.",
		"tool_tips": map[string]any{},
	})
	writeFile(t, filepath.Join(dir, "experience", "patterns.json"), map[string]any{
		"cross_discipline": []string{"Kitchen hoods need mechanical and electrical checks."},
	})
	writeFile(t, filepath.Join(dir, "experience", "disciplines", "kitchen.json"), map[string]any{
		"discipline":     "Kitchen",
		"sheet_prefixes": []string{"K"},
		"what_to_watch":  []string{"hood clearances"},
		"learned":        []string{},
	})
	return New(dir)
}

func TestBuildSystemPrompt(t *testing.T) {
	m := testManager(t)
	prompt := m.BuildSystemPrompt()

	assert.Contains(t, prompt, "You are Maestro. construction plan reviewer.")
	assert.Contains(t, prompt, "Communication: Direct, brief, jobsite-friendly.")
	assert.Contains(t, prompt, "- Lead with the finding.")
	assert.Contains(t, prompt, "Tool strategy: Search before reading whole pages.")
	assert.Contains(t, prompt, "### Kitchen")
	assert.Contains(t, prompt, "- Watch: hood clearances")
	assert.Contains(t, prompt, "### Cross-Discipline Patterns")
}

func TestApplyActionDenylist(t *testing.T) {
	m := testManager(t)

	result, err := m.ApplyAction("soul.json", "values", "append_to_list", "x")
	require.NoError(t, err)
	assert.Equal(t, "DENIED: soul.json is read-only (identity file)", result)

	result, err = m.ApplyAction("tone.json", "style", "set_field", "new style")
	require.NoError(t, err)
	assert.Equal(t, "DENIED: tone.json is read-only (identity file)", result)
}

func TestApplyActionAppendAndDuplicate(t *testing.T) {
	m := testManager(t)

	result, err := m.ApplyAction("disciplines/kitchen.json", "learned", "append_to_list", "Check hood CFM against exhaust fans")
	require.NoError(t, err)
	assert.Equal(t, "OK: appended to disciplines/kitchen.json → learned[]", result)

	// Same value again is a skip, not a second entry.
	result, err = m.ApplyAction("disciplines/kitchen.json", "learned", "append_to_list", "Check hood CFM against exhaust fans")
	require.NoError(t, err)
	assert.Equal(t, "SKIP: duplicate or empty value for disciplines/kitchen.json → learned", result)

	// Change survives a reload and shows up in the prompt.
	prompt := m.BuildSystemPrompt()
	assert.Contains(t, prompt, "- Learned: Check hood CFM against exhaust fans")
}

func TestApplyActionSetFieldParsesJSON(t *testing.T) {
	m := testManager(t)

	result, err := m.ApplyAction("patterns.json", "project_specific", "set_field", `["shell building reuses 1987 structure"]`)
	require.NoError(t, err)
	assert.Equal(t, "OK: set patterns.json → project_specific", result)

	prompt := m.BuildSystemPrompt()
	assert.Contains(t, prompt, "- shell building reuses 1987 structure")
}

func TestApplyActionEdgeCases(t *testing.T) {
	m := testManager(t)

	result, err := m.ApplyAction("missing.json", "f", "append_to_list", "v")
	require.NoError(t, err)
	assert.Equal(t, "NOT FOUND: missing.json does not exist in experience/", result)

	result, err = m.ApplyAction("patterns.json", "f", "rewrite_everything", "v")
	require.NoError(t, err)
	assert.Equal(t, "SKIP: unknown action 'rewrite_everything'", result)

	_, err = m.ApplyAction("../soul2.json", "f", "append_to_list", "v")
	assert.Error(t, err)
}

func TestUpdateToolTip(t *testing.T) {
	m := testManager(t)

	result, err := m.UpdateToolTip("search_knowledge", "Use short queries; the index matches substrings.")
	require.NoError(t, err)
	assert.Equal(t, "OK: updated tips for search_knowledge", result)

	prompt := m.BuildSystemPrompt()
	assert.Contains(t, prompt, "### Tool Tips (learned from experience)")
	assert.Contains(t, prompt, "- **search_knowledge**: Use short queries")
}

func TestLearningLogAppends(t *testing.T) {
	m := testManager(t)

	_, err := m.ApplyAction("patterns.json", "cross_discipline", "append_to_list", "lesson one")
	require.NoError(t, err)
	_, err = m.UpdateToolTip("read_page", "tip")
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(m.experienceDir(), learningLogFile))
	require.NoError(t, err)
	var entries []map[string]any
	require.NoError(t, json.Unmarshal(raw, &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "save_experience", entries[0]["tool"])
	assert.Equal(t, "update_tool_description", entries[1]["tool"])
}
