package heartbeat

import (
	"encoding/json"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"maestro/pkg/knowledge"
	"maestro/pkg/store"
)

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	data, err := json.MarshalIndent(v, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))
}

// testKnowledge builds four pages. K_211 has one deep-read pointer and
// one unread region, making it the clear boredom pick (score -4 vs 0).
func testKnowledge(t *testing.T) *knowledge.Knowledge {
	t.Helper()
	root := t.TempDir()
	base := filepath.Join(root, "shopreno")

	writeJSON(t, filepath.Join(base, "project.json"), map[string]any{
		"name": "shopreno", "total_pages": 4,
	})
	writeJSON(t, filepath.Join(base, "index.json"), map[string]any{})

	pages := map[string]map[string]any{
		"K_211": {
			"sheet_reflection": "Kitchen equipment schedule.",
			"discipline":       "Foodservice Equipment",
			"regions": []map[string]any{
				{"id": "r1", "label": "hood schedule"},
				{"id": "r2", "label": "equipment legend"},
			},
		},
		"K_212": {"sheet_reflection": "Kitchen elevations.", "discipline": "Kitchen"},
		"M_101": {"sheet_reflection": "Mechanical plan.", "discipline": "Mechanical"},
		"E_101": {"sheet_reflection": "Lighting plan.", "discipline": "Lighting"},
	}
	for name, pass1 := range pages {
		writeJSON(t, filepath.Join(base, "pages", name, "pass1.json"), pass1)
	}
	writeJSON(t, filepath.Join(base, "pages", "K_211", "pointers", "r1", "pass2.json"), map[string]any{
		"region_id": "r1", "content_markdown": "Hood H-1: 3000 CFM.",
	})

	k, err := knowledge.Load(root, "shopreno")
	require.NoError(t, err)
	return k
}

func at(hour, min int) time.Time {
	return time.Date(2026, 8, 24, hour, min, 0, 0, time.Local)
}

func TestTimeWindows(t *testing.T) {
	assert.True(t, IsSilentHours(at(23, 0)))
	assert.True(t, IsSilentHours(at(3, 0)))
	assert.False(t, IsSilentHours(at(7, 0)))
	assert.False(t, IsSilentHours(at(21, 59)))

	assert.Equal(t, 0, IntervalMinutes(at(22, 0)))
	assert.Equal(t, WorkIntervalMin, IntervalMinutes(at(10, 0)))
	assert.Equal(t, OffIntervalMin, IntervalMinutes(at(19, 0)))
}

func TestShouldRun(t *testing.T) {
	state := defaultState()

	// No prior heartbeat: run immediately (outside silent hours).
	assert.True(t, ShouldRun(state, at(10, 0)))
	assert.False(t, ShouldRun(state, at(23, 30)))

	state.LastHeartbeat = at(10, 0).Format("2006-01-02T15:04:05")
	assert.False(t, ShouldRun(state, at(10, 15)))
	assert.True(t, ShouldRun(state, at(10, 30)))

	// Off hours stretch the interval to an hour.
	state.LastHeartbeat = at(19, 0).Format("2006-01-02T15:04:05")
	assert.False(t, ShouldRun(state, at(19, 45)))
	assert.True(t, ShouldRun(state, at(20, 0)))

	state.LastHeartbeat = "not-a-timestamp"
	assert.True(t, ShouldRun(state, at(10, 0)))
}

func TestDecideUrgent(t *testing.T) {
	events := []store.ScheduleEvent{{Title: "Concrete pour", StartsAt: "2026-08-25"}}
	d := Decide(events, nil, nil, defaultState(), nil, rand.New(rand.NewSource(1)))

	assert.Equal(t, ModeUrgent, d.Mode)
	assert.Equal(t, "1 event(s) in the next 2 days", d.Reason)
	assert.True(t, d.ShouldMessage)
	assert.Contains(t, d.Prompt, "HEARTBEAT — URGENT")
	assert.Contains(t, d.Prompt, "- Concrete pour (2026-08-25)")
}

func TestDecideTargetedPicksStalestWorkspace(t *testing.T) {
	workspaces := []store.WorkspaceSummary{
		{Workspace: store.Workspace{Title: "Fresh", Status: "active", UpdatedAt: "2026-08-24T10:00:00"}, PageCount: 2},
		{Workspace: store.Workspace{Title: "Stale", Status: "active", UpdatedAt: "2026-08-20T10:00:00"}, PageCount: 1},
		{Workspace: store.Workspace{Title: "Empty", Status: "active", UpdatedAt: "2026-08-01T10:00:00"}, PageCount: 0},
		{Workspace: store.Workspace{Title: "Done", Status: "archived", UpdatedAt: "2026-08-01T10:00:00"}, PageCount: 3},
	}
	d := Decide(nil, workspaces, nil, defaultState(), nil, rand.New(rand.NewSource(1)))

	assert.Equal(t, ModeTargeted, d.Mode)
	assert.Equal(t, "Workspace 'Stale' has pages to review", d.Reason)
	assert.False(t, d.ShouldMessage)
	assert.Contains(t, d.Prompt, "HEARTBEAT — TARGETED: Review workspace 'Stale'.")
}

func TestDecideCuriousCapsGaps(t *testing.T) {
	var gaps []knowledge.Gap
	for i := 0; i < 8; i++ {
		gaps = append(gaps, knowledge.Gap{Type: "broken_ref", PageName: "K_211", Detail: "ref"})
	}
	d := Decide(nil, nil, gaps, defaultState(), nil, rand.New(rand.NewSource(1)))

	assert.Equal(t, ModeCurious, d.Mode)
	assert.Equal(t, "5 gap(s) to investigate", d.Reason)
	assert.False(t, d.ShouldMessage)
	assert.Contains(t, d.Prompt, "HEARTBEAT — CURIOUS")
}

func TestDecideBoredScoresNovelty(t *testing.T) {
	k := testKnowledge(t)
	d := Decide(nil, nil, nil, defaultState(), k, rand.New(rand.NewSource(1)))

	assert.Equal(t, ModeBored, d.Mode)
	assert.Equal(t, "Nothing pressing. Boredom streak: 1", d.Reason)
	assert.Equal(t, 1, d.BoredomStreak)
	// Pool is bottom fifth (one page); K_211's unread region wins.
	assert.Equal(t, []string{"K_211"}, d.PagesExplored)
	assert.Contains(t, d.Prompt, "HEARTBEAT — BORED: Explore K_211")
}

func TestDecideBoredVisitsShiftTheScore(t *testing.T) {
	k := testKnowledge(t)
	state := defaultState()
	state.PagesVisited["K_211"] = VisitInfo{Count: 3}

	d := Decide(nil, nil, nil, state, k, rand.New(rand.NewSource(1)))
	require.Len(t, d.PagesExplored, 1)
	assert.NotEqual(t, "K_211", d.PagesExplored[0])
}

func TestDecideBoredCrossReferenceAtStreak(t *testing.T) {
	k := testKnowledge(t)
	state := defaultState()
	state.BoredomStreak = 2 // this tick makes three

	d := Decide(nil, nil, nil, state, k, rand.New(rand.NewSource(1)))

	assert.Equal(t, ModeBored, d.Mode)
	assert.Equal(t, 3, d.BoredomStreak)
	require.Len(t, d.PagesExplored, 2)
	assert.Equal(t, "K_211", d.PagesExplored[0])
	assert.NotEqual(t, "K_211", d.PagesExplored[1])
	assert.Contains(t, d.Prompt, "HEARTBEAT — BORED (cross-reference mode)")
}

func TestRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heartbeat_state.json")
	state := defaultState()
	state.BoredomStreak = 4
	now := at(10, 30)

	bored := Decision{Mode: ModeBored, BoredomStreak: 5, PagesExplored: []string{"K_211"}}
	require.NoError(t, Record(path, state, bored, now))

	loaded := LoadState(path)
	assert.Equal(t, now.Format("2006-01-02T15:04:05"), loaded.LastHeartbeat)
	assert.Equal(t, 5, loaded.BoredomStreak)
	assert.Equal(t, 1, loaded.PagesVisited["K_211"].Count)
	assert.Empty(t, loaded.LastScheduleCheck)

	urgent := Decision{Mode: ModeUrgent}
	require.NoError(t, Record(path, loaded, urgent, at(11, 0)))

	loaded = LoadState(path)
	assert.Equal(t, 0, loaded.BoredomStreak)
	assert.Equal(t, at(11, 0).Format("2006-01-02T15:04:05"), loaded.LastScheduleCheck)
	assert.Equal(t, 1, loaded.PagesVisited["K_211"].Count)
}

func TestLoadStateTolerant(t *testing.T) {
	dir := t.TempDir()

	state := LoadState(filepath.Join(dir, "missing.json"))
	assert.Equal(t, 0, state.BoredomStreak)
	assert.NotNil(t, state.PagesVisited)

	corrupt := filepath.Join(dir, "corrupt.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("{nope"), 0644))
	state = LoadState(corrupt)
	assert.Equal(t, 0, state.BoredomStreak)
	assert.NotNil(t, state.PagesVisited)
}
