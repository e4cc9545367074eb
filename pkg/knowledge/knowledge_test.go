package knowledge

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	data, err := json.MarshalIndent(v, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))
}

// buildTestStore lays out a small knowledge store on disk:
// two kitchen sheets, one mechanical, one electrical.
func buildTestStore(t *testing.T) (string, string) {
	t.Helper()
	root := t.TempDir()
	base := filepath.Join(root, "shopreno")

	writeJSON(t, filepath.Join(base, "project.json"), map[string]any{
		"name":        "shopreno",
		"source_path": "/plans/shopreno.pdf",
		"total_pages": 4,
	})
	writeJSON(t, filepath.Join(base, "index.json"), map[string]any{
		"K_211": map[string]any{
			"materials":     []string{"stainless steel", "exhaust hood"},
			"keywords":      []string{"equipment schedule"},
			"modifications": []string{"Install new exhaust hood H-1", "Demolish existing grease duct"},
		},
		"M_101": map[string]any{
			"materials":     []string{"ductwork"},
			"keywords":      []string{"hvac plan"},
			"modifications": []string{"Protect existing rooftop unit"},
		},
	})

	pages := map[string]map[string]any{
		"K_211": {
			"sheet_reflection": "Kitchen equipment schedule with hood clearances.",
			"page_type":        "schedule",
			"discipline":       "Foodservice Equipment",
			"regions": []map[string]any{
				{"id": "r1", "label": "hood schedule"},
				{"id": "r2", "label": "equipment legend"},
			},
			"cross_references": []string{"M_101", "Z_999"},
		},
		"K_212": {
			"sheet_reflection": "Kitchen elevations.",
			"discipline":       "Kitchen",
		},
		"M_101": {
			"sheet_reflection": "Mechanical plan covering kitchen exhaust routing.",
			"discipline":       "Mechanical",
			"cross_references": []string{"K-211"},
		},
		"E_101": {
			"sheet_reflection": "Lighting plan.",
			"discipline":       "Lighting",
		},
	}
	for name, pass1 := range pages {
		writeJSON(t, filepath.Join(base, "pages", name, "pass1.json"), pass1)
	}

	// One deep read on K_211 region r1.
	writeJSON(t, filepath.Join(base, "pages", "K_211", "pointers", "r1", "pass2.json"), map[string]any{
		"region_id":        "r1",
		"content_markdown": "Hood H-1: 12ft exhaust hood, 3000 CFM.",
	})

	return root, "shopreno"
}

func loadTestKnowledge(t *testing.T) *Knowledge {
	t.Helper()
	root, project := buildTestStore(t)
	k, err := Load(root, project)
	require.NoError(t, err)
	return k
}

func TestLoad(t *testing.T) {
	k := loadTestKnowledge(t)

	assert.Equal(t, "shopreno", k.Name)
	assert.Equal(t, 4, k.TotalPages)
	assert.Equal(t, []string{"E_101", "K_211", "K_212", "M_101"}, k.PageNames())

	page, ok := k.Page("K_211")
	require.True(t, ok)
	assert.Equal(t, "schedule", page.PageType)
	require.Len(t, page.Pointers, 1)
	assert.Equal(t, "r1", page.Pointers[0].RegionID)

	// Defaults applied where pass1 is sparse.
	k212, _ := k.Page("K_212")
	assert.Equal(t, "unknown", k212.PageType)
}

func TestResolvePage(t *testing.T) {
	k := loadTestKnowledge(t)

	// Exact.
	p, err := k.ResolvePage("K_211")
	require.NoError(t, err)
	assert.Equal(t, "K_211", p.Name)

	// Normalized separators.
	p, err = k.ResolvePage("K-211")
	require.NoError(t, err)
	assert.Equal(t, "K_211", p.Name)
	p, err = k.ResolvePage("K.211")
	require.NoError(t, err)
	assert.Equal(t, "K_211", p.Name)

	// Case-insensitive: the query is lowercased along with the names.
	p, err = k.ResolvePage("k_211")
	require.NoError(t, err)
	assert.Equal(t, "K_211", p.Name)
	p, err = k.ResolvePage("k-211")
	require.NoError(t, err)
	assert.Equal(t, "K_211", p.Name)

	// Unique prefix.
	p, err = k.ResolvePage("M_1")
	require.NoError(t, err)
	assert.Equal(t, "M_101", p.Name)

	// Ambiguous prefix lists candidates.
	_, err = k.ResolvePage("K_21")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous")
	assert.Contains(t, err.Error(), "K_211")
	assert.Contains(t, err.Error(), "K_212")

	// Substring matching M_101 and E_101 is ambiguous too.
	_, err = k.ResolvePage("101")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous")

	p, err = k.ResolvePage("E_1")
	require.NoError(t, err)
	assert.Equal(t, "E_101", p.Name)

	_, err = k.ResolvePage("Q_777")
	require.Error(t, err)
	assert.Equal(t, "Page 'Q_777' not found. Use list_pages() to see available pages.", err.Error())
}

func TestSearch(t *testing.T) {
	k := loadTestKnowledge(t)

	// Index hit.
	results := k.Search("stainless")
	require.NotEmpty(t, results)
	assert.Equal(t, "K_211", results[0].PageName)
	assert.Equal(t, "index", results[0].Source)

	// Reflection hit.
	results = k.Search("exhaust routing")
	require.Len(t, results, 1)
	assert.Equal(t, "M_101", results[0].PageName)
	assert.Equal(t, "reflection", results[0].Source)

	// Pointer hit.
	results = k.Search("3000 CFM")
	require.Len(t, results, 1)
	assert.Equal(t, "pointer", results[0].Source)
	assert.Contains(t, results[0].MatchContext, "r1")

	assert.Empty(t, k.Search("unobtainium"))
}

func TestCheckGaps(t *testing.T) {
	k := loadTestKnowledge(t)
	gaps := k.CheckGaps()

	var types []string
	for _, g := range gaps {
		types = append(types, g.Type+":"+g.PageName)
	}
	// K_211 references the unknown Z_999 and has one region without a
	// deep read.
	assert.Contains(t, types, "broken_ref:K_211")
	assert.Contains(t, types, "missing_pass2:K_211")
}

func TestModifications(t *testing.T) {
	k := loadTestKnowledge(t)

	mods := k.Modifications()
	require.Len(t, mods, 3)
	// Page order, then index order within a page.
	assert.Equal(t, Modification{PageName: "K_211", Text: "Install new exhaust hood H-1"}, mods[0])
	assert.Equal(t, Modification{PageName: "K_211", Text: "Demolish existing grease duct"}, mods[1])
	assert.Equal(t, Modification{PageName: "M_101", Text: "Protect existing rooftop unit"}, mods[2])
}

func TestReferencesTo(t *testing.T) {
	k := loadTestKnowledge(t)

	// M_101 references K_211 through the fuzzy form "K-211".
	assert.Equal(t, []string{"M_101"}, k.ReferencesTo("K_211"))
	assert.Equal(t, []string{"K_211"}, k.ReferencesTo("M_101"))

	// The unresolvable Z_999 reference is skipped, not reported here.
	assert.Empty(t, k.ReferencesTo("E_101"))
}

func TestNormalizeDiscipline(t *testing.T) {
	cases := map[string]string{
		"Foodservice Equipment":   "Kitchen",
		"Traffic Control":         "Civil",
		"Lighting":                "Electrical",
		"Plumbing (MEP)":          "Plumbing",
		"Irrigation":              "Landscape",
		"Environmental":           "Vapor Mitigation",
		"Signage & Canopy":        "Canopy",
		"Mechanical/Plumbing":     "Mechanical",
		"Something Unrecognized":  "General",
		"":                        "General",
	}
	for raw, want := range cases {
		assert.Equal(t, want, NormalizeDiscipline(raw), "raw %q", raw)
	}
}

func TestDisciplineGroups(t *testing.T) {
	k := loadTestKnowledge(t)
	groups := k.DisciplineGroups()

	var names []string
	for _, g := range groups {
		names = append(names, g.Name)
	}
	// MEP parent precedes its children in canonical order.
	assert.Equal(t, []string{"MEP", "Mechanical", "Electrical", "Kitchen"}, names)

	assert.Equal(t, 2, groups[0].PageCount) // M_101 + E_101
	assert.ElementsMatch(t, []string{"Mechanical", "Electrical"}, groups[0].Children)
	assert.Equal(t, 2, groups[3].PageCount) // K_211 + K_212
}

func TestPagesForDiscipline(t *testing.T) {
	k := loadTestKnowledge(t)

	assert.Equal(t, []string{"K_211", "K_212"}, k.PagesForDiscipline("Kitchen"))
	// MEP filter matches subdisciplines.
	assert.Equal(t, []string{"E_101", "M_101"}, k.PagesForDiscipline("MEP"))
}

func TestPatchOperations(t *testing.T) {
	root, project := buildTestStore(t)
	k, err := Load(root, project)
	require.NoError(t, err)

	require.NoError(t, k.UpdateSheetReflection("K_211", "Updated reflection."))
	added, err := k.ExtendCrossReferences("K_211", []string{"E_101", "M_101"})
	require.NoError(t, err)
	assert.Equal(t, 1, added) // M_101 already present

	require.NoError(t, k.MergeIndexEntry("K_211", []string{"walk-in cooler"}, nil))
	require.NoError(t, k.UpdatePointerContent("K_211", "r1", "Revised hood notes."))

	err = k.UpdatePointerContent("K_211", "r2", "nope")
	require.Error(t, err) // r2 has no pointer

	// Changes survive a reload.
	k2, err := Load(root, project)
	require.NoError(t, err)
	page, _ := k2.Page("K_211")
	assert.Equal(t, "Updated reflection.", page.SheetReflection)
	assert.Contains(t, page.CrossReferences, "E_101")
	assert.Contains(t, k2.Index["K_211"].Materials, "walk-in cooler")
	ptr, _ := page.Pointer("r1")
	assert.Equal(t, "Revised hood notes.", ptr.Content)
}
