package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"maestro/pkg/bus"
	"maestro/pkg/knowledge"
	"maestro/pkg/store"
)

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func testKnowledge(t *testing.T) *knowledge.Knowledge {
	t.Helper()
	root := t.TempDir()
	base := filepath.Join(root, "proj")
	writeJSON(t, filepath.Join(base, "project.json"), map[string]any{"name": "proj", "total_pages": 2})
	writeJSON(t, filepath.Join(base, "index.json"), map[string]any{
		"K_211": map[string]any{
			"keywords":      []string{"equipment"},
			"modifications": []string{"Install hood H-1"},
		},
	})
	writeJSON(t, filepath.Join(base, "pages", "K_211", "pass1.json"), map[string]any{
		"sheet_reflection": "Kitchen equipment schedule.",
		"discipline":       "Kitchen",
		"regions":          []map[string]any{{"id": "r1", "label": "hoods"}},
		"cross_references": []string{"M_101"},
	})
	writeJSON(t, filepath.Join(base, "pages", "M_101", "pass1.json"), map[string]any{
		"sheet_reflection": "Mechanical plan.",
		"discipline":       "Mechanical",
		"cross_references": []string{"K_211"},
	})

	// K_211 gets a real scan so image tools have something to load.
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8))))
	require.NoError(t, os.WriteFile(filepath.Join(base, "pages", "K_211", "page.png"), buf.Bytes(), 0644))

	k, err := knowledge.Load(root, "proj")
	require.NoError(t, err)
	return k
}

func testStore(t *testing.T) *store.Store {
	t.Helper()
	bus.Reset()
	t.Cleanup(bus.Reset)
	db, err := store.OpenDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	s := store.NewStore(db, store.GenerateProjectID())
	require.NoError(t, s.EnsureProject("proj", "", 2))
	return s
}

type fakeEngine struct{ current string }

func (f *fakeEngine) SwitchEngine(name string) (string, error) {
	if name == f.current {
		return fmt.Sprintf("Already running on %s.", name), nil
	}
	old := f.current
	f.current = name
	return fmt.Sprintf("Switched from %s to %s.", old, name), nil
}

type fakeVision struct{ spawned int }

func (f *fakeVision) SpawnHighlights(_ context.Context, workspace string, pages []string, _ string) (map[string]any, error) {
	f.spawned += len(pages)
	return map[string]any{
		"workspace_slug": workspace,
		"spawned":        len(pages),
		"skipped":        0,
		"message":        fmt.Sprintf("Spawned %d highlight agents. Results will appear in the workspace as they complete.", len(pages)),
	}, nil
}

type fakeIdentity struct{}

func (fakeIdentity) ApplyAction(file, field, _, _ string) (string, error) {
	if file == "soul.json" || file == "tone.json" {
		return fmt.Sprintf("DENIED: %s is read-only (identity file)", file), nil
	}
	return fmt.Sprintf("OK: appended to %s → %s[]", file, field), nil
}

func (fakeIdentity) UpdateToolTip(name, _ string) (string, error) {
	return fmt.Sprintf("OK: updated tips for %s", name), nil
}

func testProvider(t *testing.T) (*Provider, *fakeEngine, *fakeVision) {
	t.Helper()
	engine := &fakeEngine{current: "gpt"}
	vision := &fakeVision{}
	provider := NewProvider(ToolContext{
		Store:     testStore(t),
		Knowledge: testKnowledge(t),
		Identity:  fakeIdentity{},
		Engine:    engine,
		Vision:    vision,
	}, nil)
	return provider, engine, vision
}

func exec(t *testing.T, p *Provider, name string, args map[string]any) map[string]any {
	t.Helper()
	tool, err := p.Get(name)
	require.NoError(t, err)
	result, err := tool.Exec(context.Background(), args)
	require.NoError(t, err)
	m, ok := result.(map[string]any)
	require.True(t, ok, "tool %s returned %T", name, result)
	return m
}

func TestRegistryHasAllTools(t *testing.T) {
	names := map[string]bool{}
	for _, meta := range ListTools() {
		names[meta.Name] = true
	}
	expected := []string{
		"list_pages", "read_page", "read_pointer", "search_knowledge", "check_gaps",
		"project_info", "list_disciplines", "list_pointers", "page_regions", "read_index_entry",
		"create_workspace", "list_workspaces", "get_workspace", "add_page_to_workspace",
		"remove_page_from_workspace", "add_note", "update_workspace_status", "set_page_description",
		"add_schedule_event", "list_schedule_events", "upcoming_events",
		"update_schedule_event", "delete_schedule_event", "get_schedule_event",
		"highlight_on_page", "get_highlight_status", "remove_highlight", "see_page",
		"find_cross_references", "list_modifications",
		"save_experience", "update_tool_description", "update_knowledge",
		"switch_engine",
	}
	for _, name := range expected {
		assert.True(t, names[name], "missing tool %s", name)
	}
	assert.Len(t, names, len(expected))
}

func TestProviderAllowSet(t *testing.T) {
	provider := NewProvider(ToolContext{Knowledge: testKnowledge(t)}, []string{"list_pages"})

	_, err := provider.Get("list_pages")
	require.NoError(t, err)

	_, err = provider.Get("create_workspace")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not allowed")
}

func TestKnowledgeTools(t *testing.T) {
	provider, _, _ := testProvider(t)

	result := exec(t, provider, "list_pages", nil)
	assert.EqualValues(t, 2, result["count"])

	result = exec(t, provider, "read_page", map[string]any{"page": "K-211"})
	assert.Equal(t, "K_211", result["name"])

	result = exec(t, provider, "search_knowledge", map[string]any{"query": "zzzz"})
	assert.Equal(t, "No results for 'zzzz'.", result["message"])

	result = exec(t, provider, "read_page", map[string]any{"page": "Q_9"})
	assert.Equal(t, false, result["success"])
	assert.Contains(t, result["error"], "not found")
}

func TestWorkspaceToolFlow(t *testing.T) {
	provider, _, _ := testProvider(t)

	result := exec(t, provider, "create_workspace", map[string]any{"title": "Kitchen Review"})
	assert.Equal(t, true, result["success"])
	assert.Equal(t, "kitchen_review", result["slug"])

	// Fuzzy page name resolves to the canonical one before storage.
	result = exec(t, provider, "add_page_to_workspace", map[string]any{
		"workspace": "kitchen_review", "page": "K-211", "description": "hoods",
	})
	assert.Equal(t, true, result["success"])

	result = exec(t, provider, "add_page_to_workspace", map[string]any{
		"workspace": "kitchen_review", "page": "K_211",
	})
	assert.Equal(t, false, result["success"])
	assert.Equal(t, "Page 'K_211' is already in workspace 'kitchen_review'.", result["error"])

	result = exec(t, provider, "get_workspace", map[string]any{"workspace": "Kitchen Review"})
	assert.Equal(t, true, result["success"])

	result = exec(t, provider, "remove_page_from_workspace", map[string]any{
		"workspace": "kitchen_review", "page": "K_211",
	})
	assert.Equal(t, true, result["success"])
}

func TestScheduleTools(t *testing.T) {
	provider, _, _ := testProvider(t)

	result := exec(t, provider, "add_schedule_event", map[string]any{
		"title": "Hood delivery", "start": "2026-09-01", "type": "Delivery",
	})
	require.Equal(t, true, result["success"])
	ev := result["event"].(*store.ScheduleEvent)
	assert.Equal(t, "delivery", ev.EventType)

	result = exec(t, provider, "delete_schedule_event", map[string]any{"event_id": ev.ID})
	assert.Equal(t, true, result["success"])

	result = exec(t, provider, "get_schedule_event", map[string]any{"event_id": ev.ID})
	assert.Equal(t, false, result["success"])
	assert.Equal(t, "Event '"+ev.ID+"' not found.", result["error"])
}

func TestVisionTools(t *testing.T) {
	provider, _, vision := testProvider(t)

	exec(t, provider, "create_workspace", map[string]any{"title": "Kitchen"})
	exec(t, provider, "add_page_to_workspace", map[string]any{"workspace": "kitchen", "page": "K_211"})

	result := exec(t, provider, "highlight_on_page", map[string]any{
		"workspace": "kitchen",
		"pages":     []any{"K_211"},
		"mission":   "find hoods",
	})
	assert.Equal(t, true, result["success"])
	assert.Equal(t, 1, vision.spawned)
	assert.Contains(t, result["message"], "Spawned 1 highlight agents")
}

func TestCrossReferenceTools(t *testing.T) {
	provider, _, _ := testProvider(t)

	result := exec(t, provider, "find_cross_references", map[string]any{"page": "K-211"})
	assert.Equal(t, true, result["success"])
	assert.Equal(t, "K_211", result["page"])
	assert.Equal(t, []string{"M_101"}, result["references_from_this_page"])
	assert.Equal(t, []string{"M_101"}, result["pages_that_reference_this"])

	result = exec(t, provider, "list_modifications", nil)
	assert.Equal(t, true, result["success"])
	assert.EqualValues(t, 1, result["count"])
	mods := result["modifications"].([]knowledge.Modification)
	require.Len(t, mods, 1)
	assert.Equal(t, "K_211", mods[0].PageName)
	assert.Equal(t, "Install hood H-1", mods[0].Text)
}

func TestSeePageTool(t *testing.T) {
	provider, _, _ := testProvider(t)

	tool, err := provider.Get("see_page")
	require.NoError(t, err)

	result, err := tool.Exec(context.Background(), map[string]any{"page": "K-211"})
	require.NoError(t, err)
	img, ok := result.(*ImageResult)
	require.True(t, ok, "see_page returned %T", result)
	assert.Equal(t, "image/jpeg", img.MIMEType)
	assert.NotEmpty(t, img.Data)
	assert.Contains(t, img.Text, "Page K_211")
	assert.Contains(t, img.Text, "Kitchen equipment schedule")

	// M_101 has no scan on disk.
	result, err = tool.Exec(context.Background(), map[string]any{"page": "M_101"})
	require.NoError(t, err)
	m, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, false, m["success"])
	assert.Contains(t, m["error"], "no image")
}

func TestRemoveHighlightTool(t *testing.T) {
	s := testStore(t)
	provider := NewProvider(ToolContext{Store: s, Knowledge: testKnowledge(t)}, nil)

	exec(t, provider, "create_workspace", map[string]any{"title": "Kitchen"})
	exec(t, provider, "add_page_to_workspace", map[string]any{"workspace": "kitchen", "page": "K_211"})
	h, err := s.CreateHighlight("kitchen", "K_211", "find hoods")
	require.NoError(t, err)

	// Fuzzy page name resolves before the delete.
	result := exec(t, provider, "remove_highlight", map[string]any{
		"workspace": "kitchen", "page": "K-211", "highlight_id": h.ID,
	})
	assert.Equal(t, true, result["success"])

	_, err = s.GetHighlight(h.ID)
	require.Error(t, err)
	assert.True(t, store.IsNotFound(err))

	result = exec(t, provider, "remove_highlight", map[string]any{
		"workspace": "kitchen", "page": "K_211", "highlight_id": h.ID,
	})
	assert.Equal(t, false, result["success"])
	assert.Contains(t, result["error"], "not found")
}

func TestLearningAndEngineTools(t *testing.T) {
	provider, engine, _ := testProvider(t)

	tool, err := provider.Get("save_experience")
	require.NoError(t, err)
	result, err := tool.Exec(context.Background(), map[string]any{
		"file": "soul.json", "field": "values", "action": "append_to_list", "value": "x",
	})
	require.NoError(t, err)
	assert.Equal(t, "DENIED: soul.json is read-only (identity file)", result)

	tool, err = provider.Get("switch_engine")
	require.NoError(t, err)
	result, err = tool.Exec(context.Background(), map[string]any{"engine": "opus"})
	require.NoError(t, err)
	assert.Equal(t, "Switched from gpt to opus.", result)
	assert.Equal(t, "opus", engine.current)
}

func TestUpdateKnowledgeTool(t *testing.T) {
	provider, _, _ := testProvider(t)

	result := exec(t, provider, "update_knowledge", map[string]any{
		"page":             "K_211",
		"sheet_reflection": "Better reflection.",
		"index_keywords":   []any{"hood"},
	})
	assert.Equal(t, true, result["success"])
	assert.Contains(t, result["message"], "updated K_211")

	// Nothing to do is an error the model can read.
	result = exec(t, provider, "update_knowledge", map[string]any{"page": "K_211"})
	assert.Equal(t, false, result["success"])

	// content_markdown without region_id is rejected.
	result = exec(t, provider, "update_knowledge", map[string]any{
		"page": "K_211", "content_markdown": "notes",
	})
	assert.Equal(t, false, result["success"])
	assert.Contains(t, result["error"], "region_id")
}
