package tools

import (
	"context"
	"fmt"

	"maestro/pkg/knowledge"
)

// Knowledge tools are read-only lookups against the loaded page map.

type listPagesTool struct{ k *knowledge.Knowledge }

func (t *listPagesTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "list_pages",
		Description: "List all pages in the plan set, optionally filtered by discipline. Returns page names with discipline and a short description.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"discipline": {Type: "string", Description: "Optional discipline filter (e.g. Kitchen, MEP, Structural)"},
			},
		},
	}
}

func (t *listPagesTool) Exec(_ context.Context, args map[string]any) (any, error) {
	discipline := strArgOrDefault(args, "discipline", "")

	names := t.k.PageNames()
	if discipline != "" {
		names = t.k.PagesForDiscipline(discipline)
	}

	pages := make([]map[string]any, 0, len(names))
	for _, name := range names {
		page, _ := t.k.Page(name)
		pages = append(pages, map[string]any{
			"name":        page.Name,
			"discipline":  knowledge.NormalizeDiscipline(page.Discipline),
			"page_type":   page.PageType,
			"description": truncateStr(page.SheetReflection, 200),
		})
	}
	return okResult(map[string]any{"pages": pages, "count": len(pages)}), nil
}

type readPageTool struct{ k *knowledge.Knowledge }

func (t *readPageTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "read_page",
		Description: "Read everything known about one page: sheet reflection, regions, cross-references, and which regions have deep-read pointers. Page names resolve fuzzily (K-2.11 finds K_211).",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"page": {Type: "string", Description: "Page name"},
			},
			Required: []string{"page"},
		},
	}
}

func (t *readPageTool) Exec(_ context.Context, args map[string]any) (any, error) {
	name, err := strArg(args, "page")
	if err != nil {
		return errResult(err), nil
	}
	page, err := t.k.ResolvePage(name)
	if err != nil {
		return errResult(err), nil
	}

	regions := make([]map[string]any, 0, len(page.Regions))
	for _, r := range page.Regions {
		_, hasPointer := page.Pointer(r.ID)
		regions = append(regions, map[string]any{
			"id": r.ID, "label": r.Label, "has_pointer": hasPointer,
		})
	}
	pointers := make([]map[string]any, 0, len(page.Pointers))
	for _, ptr := range page.Pointers {
		pointers = append(pointers, map[string]any{
			"region_id": ptr.RegionID,
			"preview":   truncateStr(ptr.Content, 150),
		})
	}

	return okResult(map[string]any{
		"name":             page.Name,
		"sheet_reflection": page.SheetReflection,
		"page_type":        page.PageType,
		"discipline":       knowledge.NormalizeDiscipline(page.Discipline),
		"regions":          regions,
		"cross_references": page.CrossReferences,
		"pointers":         pointers,
	}), nil
}

type readPointerTool struct{ k *knowledge.Knowledge }

func (t *readPointerTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "read_pointer",
		Description: "Read the full deep-read content for one region of a page.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"page":      {Type: "string", Description: "Page name"},
				"region_id": {Type: "string", Description: "Region id from read_page"},
			},
			Required: []string{"page", "region_id"},
		},
	}
}

func (t *readPointerTool) Exec(_ context.Context, args map[string]any) (any, error) {
	name, err := strArg(args, "page")
	if err != nil {
		return errResult(err), nil
	}
	regionID, err := strArg(args, "region_id")
	if err != nil {
		return errResult(err), nil
	}

	page, err := t.k.ResolvePage(name)
	if err != nil {
		return errResult(err), nil
	}
	ptr, ok := page.Pointer(regionID)
	if !ok {
		return errResult(fmt.Errorf("region '%s' has no pointer on page '%s'", regionID, page.Name)), nil
	}
	return okResult(map[string]any{
		"page":      page.Name,
		"region_id": ptr.RegionID,
		"content":   ptr.Content,
	}), nil
}

type searchKnowledgeTool struct{ k *knowledge.Knowledge }

func (t *searchKnowledgeTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "search_knowledge",
		Description: "Search the index, sheet reflections, and deep-read content for a term. Case-insensitive.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"query": {Type: "string", Description: "Search term"},
			},
			Required: []string{"query"},
		},
	}
}

func (t *searchKnowledgeTool) Exec(_ context.Context, args map[string]any) (any, error) {
	query, err := strArg(args, "query")
	if err != nil {
		return errResult(err), nil
	}
	results := t.k.Search(query)
	if len(results) == 0 {
		return okResult(map[string]any{
			"results": []any{},
			"message": fmt.Sprintf("No results for '%s'.", query),
		}), nil
	}
	return okResult(map[string]any{"results": results, "count": len(results)}), nil
}

type checkGapsTool struct{ k *knowledge.Knowledge }

func (t *checkGapsTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "check_gaps",
		Description: "Report holes in the knowledge store: cross-references to unknown pages and regions without a deep read.",
		InputSchema: InputSchema{Type: "object", Properties: map[string]Property{}},
	}
}

func (t *checkGapsTool) Exec(_ context.Context, _ map[string]any) (any, error) {
	gaps := t.k.CheckGaps()
	if len(gaps) == 0 {
		return okResult(map[string]any{"gaps": []any{}, "message": "No gaps found"}), nil
	}
	return okResult(map[string]any{"gaps": gaps, "count": len(gaps)}), nil
}

type projectInfoTool struct {
	ctx ToolContext
}

func (t *projectInfoTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "project_info",
		Description: "Summarize the project: plan source, page count, disciplines, workspaces, and upcoming schedule.",
		InputSchema: InputSchema{Type: "object", Properties: map[string]Property{}},
	}
}

func (t *projectInfoTool) Exec(_ context.Context, _ map[string]any) (any, error) {
	k := t.ctx.Knowledge
	info := map[string]any{
		"name":         k.Name,
		"source_path":  k.SourcePath,
		"total_pages":  k.TotalPages,
		"pages_loaded": len(k.PageNames()),
		"disciplines":  k.Disciplines,
	}

	if t.ctx.Store != nil {
		if workspaces, err := t.ctx.Store.ListWorkspaces("active"); err == nil {
			info["active_workspaces"] = len(workspaces)
		}
		if events, err := t.ctx.Store.UpcomingEvents(7); err == nil {
			info["events_next_7_days"] = len(events)
		}
	}
	return okResult(info), nil
}

type listDisciplinesTool struct{ k *knowledge.Knowledge }

func (t *listDisciplinesTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "list_disciplines",
		Description: "List the disciplines present in the plan set with page counts. MEP groups Mechanical, Electrical, and Plumbing.",
		InputSchema: InputSchema{Type: "object", Properties: map[string]Property{}},
	}
}

func (t *listDisciplinesTool) Exec(_ context.Context, _ map[string]any) (any, error) {
	return okResult(map[string]any{"disciplines": t.k.DisciplineGroups()}), nil
}

type listPointersTool struct{ k *knowledge.Knowledge }

func (t *listPointersTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "list_pointers",
		Description: "List the deep-read pointers on a page with content previews.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"page": {Type: "string", Description: "Page name"},
			},
			Required: []string{"page"},
		},
	}
}

func (t *listPointersTool) Exec(_ context.Context, args map[string]any) (any, error) {
	name, err := strArg(args, "page")
	if err != nil {
		return errResult(err), nil
	}
	page, err := t.k.ResolvePage(name)
	if err != nil {
		return errResult(err), nil
	}

	pointers := make([]map[string]any, 0, len(page.Pointers))
	for _, ptr := range page.Pointers {
		pointers = append(pointers, map[string]any{
			"region_id": ptr.RegionID,
			"preview":   truncateStr(ptr.Content, 150),
		})
	}
	return okResult(map[string]any{"page": page.Name, "pointers": pointers}), nil
}

type pageRegionsTool struct{ k *knowledge.Knowledge }

func (t *pageRegionsTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "page_regions",
		Description: "List the regions of interest identified on a page.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"page": {Type: "string", Description: "Page name"},
			},
			Required: []string{"page"},
		},
	}
}

func (t *pageRegionsTool) Exec(_ context.Context, args map[string]any) (any, error) {
	name, err := strArg(args, "page")
	if err != nil {
		return errResult(err), nil
	}
	page, err := t.k.ResolvePage(name)
	if err != nil {
		return errResult(err), nil
	}
	return okResult(map[string]any{"page": page.Name, "regions": page.Regions}), nil
}

type readIndexEntryTool struct{ k *knowledge.Knowledge }

func (t *readIndexEntryTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "read_index_entry",
		Description: "Read the searchable index record for a page: materials and keywords.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"page": {Type: "string", Description: "Page name"},
			},
			Required: []string{"page"},
		},
	}
}

func (t *readIndexEntryTool) Exec(_ context.Context, args map[string]any) (any, error) {
	name, err := strArg(args, "page")
	if err != nil {
		return errResult(err), nil
	}
	page, err := t.k.ResolvePage(name)
	if err != nil {
		return errResult(err), nil
	}
	entry := t.k.Index[page.Name]
	return okResult(map[string]any{
		"page":      page.Name,
		"materials": entry.Materials,
		"keywords":  entry.Keywords,
	}), nil
}

type findCrossReferencesTool struct{ k *knowledge.Knowledge }

func (t *findCrossReferencesTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "find_cross_references",
		Description: "Find what sheets reference a page and what it references.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"page": {Type: "string", Description: "Page name"},
			},
			Required: []string{"page"},
		},
	}
}

func (t *findCrossReferencesTool) Exec(_ context.Context, args map[string]any) (any, error) {
	name, err := strArg(args, "page")
	if err != nil {
		return errResult(err), nil
	}
	page, err := t.k.ResolvePage(name)
	if err != nil {
		return errResult(err), nil
	}
	return okResult(map[string]any{
		"page":                      page.Name,
		"references_from_this_page": page.CrossReferences,
		"pages_that_reference_this": t.k.ReferencesTo(page.Name),
	}), nil
}

type listModificationsTool struct{ k *knowledge.Knowledge }

func (t *listModificationsTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "list_modifications",
		Description: "List all install/demolish/protect items across the project.",
		InputSchema: InputSchema{Type: "object", Properties: map[string]Property{}},
	}
}

func (t *listModificationsTool) Exec(_ context.Context, _ map[string]any) (any, error) {
	mods := t.k.Modifications()
	if len(mods) == 0 {
		return okResult(map[string]any{
			"modifications": []any{},
			"message":       "No modification items recorded in the index.",
		}), nil
	}
	return okResult(map[string]any{"modifications": mods, "count": len(mods)}), nil
}

func truncateStr(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func requireKnowledge(ctx ToolContext) error {
	if ctx.Knowledge == nil {
		return fmt.Errorf("knowledge store not loaded")
	}
	return nil
}

//nolint:gochecknoinits // Factory pattern requires init() for tool registration
func init() {
	type kFactory func(k *knowledge.Knowledge) Tool
	register := func(name string, build kFactory) {
		factory := func(ctx ToolContext) (Tool, error) {
			if err := requireKnowledge(ctx); err != nil {
				return nil, err
			}
			return build(ctx.Knowledge), nil
		}
		// Definitions are static; build one instance for metadata.
		def := build(nil).Definition()
		Register(name, factory, &ToolMeta{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.InputSchema,
		})
	}

	register("list_pages", func(k *knowledge.Knowledge) Tool { return &listPagesTool{k: k} })
	register("read_page", func(k *knowledge.Knowledge) Tool { return &readPageTool{k: k} })
	register("read_pointer", func(k *knowledge.Knowledge) Tool { return &readPointerTool{k: k} })
	register("search_knowledge", func(k *knowledge.Knowledge) Tool { return &searchKnowledgeTool{k: k} })
	register("check_gaps", func(k *knowledge.Knowledge) Tool { return &checkGapsTool{k: k} })
	register("list_disciplines", func(k *knowledge.Knowledge) Tool { return &listDisciplinesTool{k: k} })
	register("list_pointers", func(k *knowledge.Knowledge) Tool { return &listPointersTool{k: k} })
	register("page_regions", func(k *knowledge.Knowledge) Tool { return &pageRegionsTool{k: k} })
	register("read_index_entry", func(k *knowledge.Knowledge) Tool { return &readIndexEntryTool{k: k} })
	register("find_cross_references", func(k *knowledge.Knowledge) Tool { return &findCrossReferencesTool{k: k} })
	register("list_modifications", func(k *knowledge.Knowledge) Tool { return &listModificationsTool{k: k} })

	projectInfoDef := (&projectInfoTool{}).Definition()
	Register("project_info", func(ctx ToolContext) (Tool, error) {
		if err := requireKnowledge(ctx); err != nil {
			return nil, err
		}
		return &projectInfoTool{ctx: ctx}, nil
	}, &ToolMeta{
		Name:        projectInfoDef.Name,
		Description: projectInfoDef.Description,
		InputSchema: projectInfoDef.InputSchema,
	})
}
