package tools

import (
	"context"
	"fmt"

	"maestro/pkg/knowledge"
	"maestro/pkg/vision"
)

// Vision tools queue asynchronous highlight jobs. The worker resolves
// them in the background; results land on the workspace pages.

type highlightOnPageTool struct{ ctx ToolContext }

func (t *highlightOnPageTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "highlight_on_page",
		Description: "Spawn highlight agents to find rectangular regions relevant to a mission on workspace pages. Runs in the background; results appear on the workspace as they complete.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"workspace": {Type: "string", Description: "Workspace slug or title"},
				"pages": {
					Type:        "array",
					Description: "Pages to analyze; must already be in the workspace",
					Items:       &Property{Type: "string"},
				},
				"mission": {Type: "string", Description: "What to look for, e.g. 'exhaust hood locations'"},
			},
			Required: []string{"workspace", "pages", "mission"},
		},
	}
}

func (t *highlightOnPageTool) Exec(ctx context.Context, args map[string]any) (any, error) {
	workspace, err := strArg(args, "workspace")
	if err != nil {
		return errResult(err), nil
	}
	mission, err := strArg(args, "mission")
	if err != nil {
		return errResult(err), nil
	}
	pages := strSliceArg(args, "pages")
	if len(pages) == 0 {
		return errResult(fmt.Errorf("missing required argument 'pages'")), nil
	}

	result, err := t.ctx.Vision.SpawnHighlights(ctx, workspace, pages, mission)
	if err != nil {
		return errResult(err), nil
	}
	return okResult(result), nil
}

type getHighlightStatusTool struct{ ctx ToolContext }

func (t *getHighlightStatusTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "get_highlight_status",
		Description: "Check the status and results of a highlight job by id.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"highlight_id": {Type: "string", Description: "Highlight id from highlight_on_page"},
				"page":         {Type: "string", Description: "Optional page the highlight should be on"},
			},
			Required: []string{"highlight_id"},
		},
	}
}

func (t *getHighlightStatusTool) Exec(_ context.Context, args map[string]any) (any, error) {
	id, err := strArg(args, "highlight_id")
	if err != nil {
		return errResult(err), nil
	}

	var h any
	if page := strArgOrDefault(args, "page", ""); page != "" {
		h, err = t.ctx.Store.GetHighlightOnPage(id, page)
	} else {
		h, err = t.ctx.Store.GetHighlight(id)
	}
	if err != nil {
		return errResult(err), nil
	}
	return okResult(map[string]any{"highlight": h}), nil
}

type seePageTool struct{ k *knowledge.Knowledge }

func (t *seePageTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "see_page",
		Description: "Look at the full page image yourself to visually inspect it.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"page": {Type: "string", Description: "Page name"},
			},
			Required: []string{"page"},
		},
	}
}

func (t *seePageTool) Exec(_ context.Context, args map[string]any) (any, error) {
	name, err := strArg(args, "page")
	if err != nil {
		return errResult(err), nil
	}
	page, err := t.k.ResolvePage(name)
	if err != nil {
		return errResult(err), nil
	}
	if page.ImagePath == "" {
		return errResult(fmt.Errorf("Page '%s' has no image on disk.", page.Name)), nil
	}

	// Same downscale-and-re-encode path the highlight agents upload through.
	data, w, h, err := vision.PrepareImage(page.ImagePath)
	if err != nil {
		return errResult(err), nil
	}

	caption := fmt.Sprintf("Page %s (%s, %dx%d px)", page.Name,
		knowledge.NormalizeDiscipline(page.Discipline), w, h)
	if page.SheetReflection != "" {
		caption += ": " + truncateStr(page.SheetReflection, 200)
	}
	return &ImageResult{MIMEType: "image/jpeg", Data: data, Text: caption}, nil
}

//nolint:gochecknoinits // Factory pattern requires init() for tool registration
func init() {
	highlightDef := (&highlightOnPageTool{}).Definition()
	Register("highlight_on_page", func(ctx ToolContext) (Tool, error) {
		if ctx.Vision == nil {
			return nil, fmt.Errorf("highlight_on_page requires a vision worker")
		}
		return &highlightOnPageTool{ctx: ctx}, nil
	}, &ToolMeta{Name: highlightDef.Name, Description: highlightDef.Description, InputSchema: highlightDef.InputSchema})

	statusDef := (&getHighlightStatusTool{}).Definition()
	Register("get_highlight_status", func(ctx ToolContext) (Tool, error) {
		if err := requireStore(ctx); err != nil {
			return nil, err
		}
		return &getHighlightStatusTool{ctx: ctx}, nil
	}, &ToolMeta{Name: statusDef.Name, Description: statusDef.Description, InputSchema: statusDef.InputSchema})

	seeDef := (&seePageTool{}).Definition()
	Register("see_page", func(ctx ToolContext) (Tool, error) {
		if err := requireKnowledge(ctx); err != nil {
			return nil, err
		}
		return &seePageTool{k: ctx.Knowledge}, nil
	}, &ToolMeta{Name: seeDef.Name, Description: seeDef.Description, InputSchema: seeDef.InputSchema})
}
