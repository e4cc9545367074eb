package tools

import (
	"context"
	"fmt"
)

// Workspace tools mutate the relational store. Page names are resolved
// against the knowledge store before they touch a workspace, so the
// model can use fuzzy names everywhere.

type createWorkspaceTool struct{ ctx ToolContext }

func (t *createWorkspaceTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "create_workspace",
		Description: "Create a named workspace for an investigation. The slug is derived from the title; creating the same title twice returns the existing workspace.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"title":       {Type: "string", Description: "Workspace title, e.g. 'Kitchen Equipment'"},
				"description": {Type: "string", Description: "What this workspace investigates"},
			},
			Required: []string{"title"},
		},
	}
}

func (t *createWorkspaceTool) Exec(_ context.Context, args map[string]any) (any, error) {
	title, err := strArg(args, "title")
	if err != nil {
		return errResult(err), nil
	}
	ws, created, err := t.ctx.Store.CreateWorkspace(title, strArgOrDefault(args, "description", ""))
	if err != nil {
		return errResult(err), nil
	}

	message := fmt.Sprintf("Created workspace '%s'.", ws.Slug)
	if !created {
		message = fmt.Sprintf("Workspace '%s' already exists.", ws.Slug)
	}
	return okResult(map[string]any{"slug": ws.Slug, "created": created, "message": message}), nil
}

type listWorkspacesTool struct{ ctx ToolContext }

func (t *listWorkspacesTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "list_workspaces",
		Description: "List workspaces with page and note counts. Defaults to active workspaces; pass status 'archived' or 'all' for more.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"status": {Type: "string", Description: "active, archived, or all", Enum: []string{"active", "archived", "all"}},
			},
		},
	}
}

func (t *listWorkspacesTool) Exec(_ context.Context, args map[string]any) (any, error) {
	status := strArgOrDefault(args, "status", "active")
	if status == "all" {
		status = ""
	}
	workspaces, err := t.ctx.Store.ListWorkspaces(status)
	if err != nil {
		return errResult(err), nil
	}
	return okResult(map[string]any{"workspaces": workspaces, "count": len(workspaces)}), nil
}

type getWorkspaceTool struct{ ctx ToolContext }

func (t *getWorkspaceTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "get_workspace",
		Description: "Get the full contents of a workspace: metadata, pages with highlights, and notes. Accepts slug or title.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"workspace": {Type: "string", Description: "Workspace slug or title"},
			},
			Required: []string{"workspace"},
		},
	}
}

func (t *getWorkspaceTool) Exec(_ context.Context, args map[string]any) (any, error) {
	slug, err := strArg(args, "workspace")
	if err != nil {
		return errResult(err), nil
	}
	detail, err := t.ctx.Store.GetWorkspace(slug)
	if err != nil {
		return errResult(err), nil
	}
	return okResult(map[string]any{"workspace": detail}), nil
}

type addPageToWorkspaceTool struct{ ctx ToolContext }

func (t *addPageToWorkspaceTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "add_page_to_workspace",
		Description: "Attach a plan page to a workspace with an optional description of why it matters.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"workspace":   {Type: "string", Description: "Workspace slug or title"},
				"page":        {Type: "string", Description: "Page name"},
				"description": {Type: "string", Description: "Why this page is in the workspace"},
			},
			Required: []string{"workspace", "page"},
		},
	}
}

func (t *addPageToWorkspaceTool) Exec(_ context.Context, args map[string]any) (any, error) {
	slug, err := strArg(args, "workspace")
	if err != nil {
		return errResult(err), nil
	}
	pageName, err := strArg(args, "page")
	if err != nil {
		return errResult(err), nil
	}

	page, err := t.ctx.Knowledge.ResolvePage(pageName)
	if err != nil {
		return errResult(err), nil
	}
	if err := t.ctx.Store.AddPageToWorkspace(slug, page.Name, strArgOrDefault(args, "description", ""), "maestro"); err != nil {
		return errResult(err), nil
	}
	return okResult(map[string]any{
		"message": fmt.Sprintf("Added page '%s' to workspace.", page.Name),
	}), nil
}

type removePageFromWorkspaceTool struct{ ctx ToolContext }

func (t *removePageFromWorkspaceTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "remove_page_from_workspace",
		Description: "Detach a page from a workspace.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"workspace": {Type: "string", Description: "Workspace slug or title"},
				"page":      {Type: "string", Description: "Page name"},
			},
			Required: []string{"workspace", "page"},
		},
	}
}

func (t *removePageFromWorkspaceTool) Exec(_ context.Context, args map[string]any) (any, error) {
	slug, err := strArg(args, "workspace")
	if err != nil {
		return errResult(err), nil
	}
	pageName, err := strArg(args, "page")
	if err != nil {
		return errResult(err), nil
	}
	if page, rerr := t.ctx.Knowledge.ResolvePage(pageName); rerr == nil {
		pageName = page.Name
	}
	if err := t.ctx.Store.RemovePageFromWorkspace(slug, pageName); err != nil {
		return errResult(err), nil
	}
	return okResult(map[string]any{
		"message": fmt.Sprintf("Removed page '%s' from workspace.", pageName),
	}), nil
}

type addNoteTool struct{ ctx ToolContext }

func (t *addNoteTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "add_note",
		Description: "Record a finding or observation in a workspace, optionally tied to a source page.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"workspace":   {Type: "string", Description: "Workspace slug or title"},
				"text":        {Type: "string", Description: "The finding"},
				"source_page": {Type: "string", Description: "Page the finding came from"},
			},
			Required: []string{"workspace", "text"},
		},
	}
}

func (t *addNoteTool) Exec(_ context.Context, args map[string]any) (any, error) {
	slug, err := strArg(args, "workspace")
	if err != nil {
		return errResult(err), nil
	}
	text, err := strArg(args, "text")
	if err != nil {
		return errResult(err), nil
	}
	sourcePage := strArgOrDefault(args, "source_page", "")
	if sourcePage != "" {
		if page, rerr := t.ctx.Knowledge.ResolvePage(sourcePage); rerr == nil {
			sourcePage = page.Name
		}
	}
	if err := t.ctx.Store.AddNote(slug, text, "maestro", sourcePage); err != nil {
		return errResult(err), nil
	}
	return okResult(map[string]any{"message": "Note added."}), nil
}

type updateWorkspaceStatusTool struct{ ctx ToolContext }

func (t *updateWorkspaceStatusTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "update_workspace_status",
		Description: "Mark a workspace active or archived.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"workspace": {Type: "string", Description: "Workspace slug or title"},
				"status":    {Type: "string", Enum: []string{"active", "archived"}},
			},
			Required: []string{"workspace", "status"},
		},
	}
}

func (t *updateWorkspaceStatusTool) Exec(_ context.Context, args map[string]any) (any, error) {
	slug, err := strArg(args, "workspace")
	if err != nil {
		return errResult(err), nil
	}
	status, err := strArg(args, "status")
	if err != nil {
		return errResult(err), nil
	}
	if status != "active" && status != "archived" {
		return errResult(fmt.Errorf("status must be 'active' or 'archived'")), nil
	}
	if err := t.ctx.Store.UpdateWorkspaceStatus(slug, status); err != nil {
		return errResult(err), nil
	}
	return okResult(map[string]any{"message": fmt.Sprintf("Workspace marked %s.", status)}), nil
}

type setPageDescriptionTool struct{ ctx ToolContext }

func (t *setPageDescriptionTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "set_page_description",
		Description: "Update the description of a page already in a workspace.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"workspace":   {Type: "string", Description: "Workspace slug or title"},
				"page":        {Type: "string", Description: "Page name"},
				"description": {Type: "string", Description: "New description"},
			},
			Required: []string{"workspace", "page", "description"},
		},
	}
}

func (t *setPageDescriptionTool) Exec(_ context.Context, args map[string]any) (any, error) {
	slug, err := strArg(args, "workspace")
	if err != nil {
		return errResult(err), nil
	}
	pageName, err := strArg(args, "page")
	if err != nil {
		return errResult(err), nil
	}
	description, err := strArg(args, "description")
	if err != nil {
		return errResult(err), nil
	}
	if page, rerr := t.ctx.Knowledge.ResolvePage(pageName); rerr == nil {
		pageName = page.Name
	}
	if err := t.ctx.Store.SetPageDescription(slug, pageName, description); err != nil {
		return errResult(err), nil
	}
	return okResult(map[string]any{"message": "Description updated."}), nil
}

type removeHighlightTool struct{ ctx ToolContext }

func (t *removeHighlightTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "remove_highlight",
		Description: "Remove a highlight layer from a workspace page.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"workspace":    {Type: "string", Description: "Workspace slug or title"},
				"page":         {Type: "string", Description: "Page name"},
				"highlight_id": {Type: "string", Description: "Highlight id from highlight_on_page"},
			},
			Required: []string{"workspace", "page", "highlight_id"},
		},
	}
}

func (t *removeHighlightTool) Exec(_ context.Context, args map[string]any) (any, error) {
	slug, err := strArg(args, "workspace")
	if err != nil {
		return errResult(err), nil
	}
	pageName, err := strArg(args, "page")
	if err != nil {
		return errResult(err), nil
	}
	id, err := strArg(args, "highlight_id")
	if err != nil {
		return errResult(err), nil
	}
	if page, rerr := t.ctx.Knowledge.ResolvePage(pageName); rerr == nil {
		pageName = page.Name
	}
	if err := t.ctx.Store.DeleteHighlight(slug, pageName, id); err != nil {
		return errResult(err), nil
	}
	return okResult(map[string]any{
		"message": fmt.Sprintf("Removed highlight '%s' from page '%s'.", id, pageName),
	}), nil
}

func requireStore(ctx ToolContext) error {
	if ctx.Store == nil {
		return fmt.Errorf("store not initialized")
	}
	return nil
}

//nolint:gochecknoinits // Factory pattern requires init() for tool registration
func init() {
	// needsKnowledge marks the tools that resolve page names; the rest
	// only touch the relational store and work without a knowledge store.
	register := func(name string, needsKnowledge bool, build func(ctx ToolContext) Tool) {
		def := build(ToolContext{}).Definition()
		Register(name, func(ctx ToolContext) (Tool, error) {
			if err := requireStore(ctx); err != nil {
				return nil, err
			}
			if needsKnowledge {
				if err := requireKnowledge(ctx); err != nil {
					return nil, err
				}
			}
			return build(ctx), nil
		}, &ToolMeta{Name: def.Name, Description: def.Description, InputSchema: def.InputSchema})
	}

	register("create_workspace", false, func(ctx ToolContext) Tool { return &createWorkspaceTool{ctx: ctx} })
	register("list_workspaces", false, func(ctx ToolContext) Tool { return &listWorkspacesTool{ctx: ctx} })
	register("get_workspace", false, func(ctx ToolContext) Tool { return &getWorkspaceTool{ctx: ctx} })
	register("add_page_to_workspace", true, func(ctx ToolContext) Tool { return &addPageToWorkspaceTool{ctx: ctx} })
	register("remove_page_from_workspace", true, func(ctx ToolContext) Tool { return &removePageFromWorkspaceTool{ctx: ctx} })
	register("add_note", true, func(ctx ToolContext) Tool { return &addNoteTool{ctx: ctx} })
	register("update_workspace_status", false, func(ctx ToolContext) Tool { return &updateWorkspaceStatusTool{ctx: ctx} })
	register("set_page_description", true, func(ctx ToolContext) Tool { return &setPageDescriptionTool{ctx: ctx} })
	register("remove_highlight", true, func(ctx ToolContext) Tool { return &removeHighlightTool{ctx: ctx} })
}
