package tools

import (
	"context"
	"fmt"
	"strings"
)

// Learning tools let the model improve its own identity files and the
// knowledge store. Identity writes go through the identity manager,
// which enforces the read-only denylist.

type saveExperienceTool struct{ ctx ToolContext }

func (t *saveExperienceTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "save_experience",
		Description: "Save a lesson into an identity file. Actions: append_to_list adds a value to a list field, set_field replaces a field. soul.json and tone.json are read-only.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"file":   {Type: "string", Description: "Identity file, e.g. patterns.json or disciplines/kitchen.json"},
				"field":  {Type: "string", Description: "Field to modify"},
				"action": {Type: "string", Enum: []string{"append_to_list", "set_field"}},
				"value":  {Type: "string", Description: "Value to write"},
			},
			Required: []string{"file", "field", "action", "value"},
		},
	}
}

func (t *saveExperienceTool) Exec(_ context.Context, args map[string]any) (any, error) {
	file, err := strArg(args, "file")
	if err != nil {
		return errResult(err), nil
	}
	field, err := strArg(args, "field")
	if err != nil {
		return errResult(err), nil
	}
	action, err := strArg(args, "action")
	if err != nil {
		return errResult(err), nil
	}
	value, err := strArg(args, "value")
	if err != nil {
		return errResult(err), nil
	}

	result, err := t.ctx.Identity.ApplyAction(file, field, action, value)
	if err != nil {
		return errResult(err), nil
	}
	if t.ctx.Store != nil && strings.HasPrefix(result, "OK:") {
		_ = t.ctx.Store.LogExperience("identity", result)
	}
	return result, nil
}

type updateToolDescriptionTool struct{ ctx ToolContext }

func (t *updateToolDescriptionTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "update_tool_description",
		Description: "Record a usage tip for one of your tools. Tips are folded into the system prompt.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"tool_name": {Type: "string", Description: "Tool to annotate"},
				"tip":       {Type: "string", Description: "The tip"},
			},
			Required: []string{"tool_name", "tip"},
		},
	}
}

func (t *updateToolDescriptionTool) Exec(_ context.Context, args map[string]any) (any, error) {
	toolName, err := strArg(args, "tool_name")
	if err != nil {
		return errResult(err), nil
	}
	tip, err := strArg(args, "tip")
	if err != nil {
		return errResult(err), nil
	}

	result, err := t.ctx.Identity.UpdateToolTip(toolName, tip)
	if err != nil {
		return errResult(err), nil
	}
	if t.ctx.Store != nil && strings.HasPrefix(result, "OK:") {
		_ = t.ctx.Store.LogExperience("tool_tip", result)
	}
	return result, nil
}

type updateKnowledgeTool struct{ ctx ToolContext }

func (t *updateKnowledgeTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "update_knowledge",
		Description: "Patch the knowledge store for a page: replace the sheet reflection, merge index terms, extend cross-references, or (with region_id) replace a region's deep-read content.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"page":             {Type: "string", Description: "Page name"},
				"sheet_reflection": {Type: "string", Description: "Replacement sheet reflection"},
				"index_materials":  {Type: "array", Items: &Property{Type: "string"}, Description: "Materials to merge into the index"},
				"index_keywords":   {Type: "array", Items: &Property{Type: "string"}, Description: "Keywords to merge into the index"},
				"cross_references": {Type: "array", Items: &Property{Type: "string"}, Description: "Cross-references to add"},
				"region_id":        {Type: "string", Description: "Region whose deep-read content to replace"},
				"content_markdown": {Type: "string", Description: "Replacement deep-read content (requires region_id)"},
			},
			Required: []string{"page"},
		},
	}
}

func (t *updateKnowledgeTool) Exec(_ context.Context, args map[string]any) (any, error) {
	pageName, err := strArg(args, "page")
	if err != nil {
		return errResult(err), nil
	}
	page, err := t.ctx.Knowledge.ResolvePage(pageName)
	if err != nil {
		return errResult(err), nil
	}

	var changes []string

	if reflection := strArgOrDefault(args, "sheet_reflection", ""); reflection != "" {
		if err := t.ctx.Knowledge.UpdateSheetReflection(page.Name, reflection); err != nil {
			return errResult(err), nil
		}
		changes = append(changes, "sheet_reflection")
	}

	materials := strSliceArg(args, "index_materials")
	keywords := strSliceArg(args, "index_keywords")
	if len(materials) > 0 || len(keywords) > 0 {
		if err := t.ctx.Knowledge.MergeIndexEntry(page.Name, materials, keywords); err != nil {
			return errResult(err), nil
		}
		changes = append(changes, "index")
	}

	if refs := strSliceArg(args, "cross_references"); len(refs) > 0 {
		added, err := t.ctx.Knowledge.ExtendCrossReferences(page.Name, refs)
		if err != nil {
			return errResult(err), nil
		}
		changes = append(changes, fmt.Sprintf("cross_references (+%d)", added))
	}

	if markdown := strArgOrDefault(args, "content_markdown", ""); markdown != "" {
		regionID := strArgOrDefault(args, "region_id", "")
		if regionID == "" {
			return errResult(fmt.Errorf("content_markdown requires region_id")), nil
		}
		if err := t.ctx.Knowledge.UpdatePointerContent(page.Name, regionID, markdown); err != nil {
			return errResult(err), nil
		}
		changes = append(changes, "pointer "+regionID)
	}

	if len(changes) == 0 {
		return errResult(fmt.Errorf("nothing to update: provide sheet_reflection, index terms, cross_references, or content_markdown")), nil
	}

	summary := fmt.Sprintf("updated %s: %s", page.Name, strings.Join(changes, ", "))
	if t.ctx.Store != nil {
		_ = t.ctx.Store.LogExperience("knowledge_update", summary)
	}
	return okResult(map[string]any{"page": page.Name, "updated": changes, "message": "OK: " + summary}), nil
}

//nolint:gochecknoinits // Factory pattern requires init() for tool registration
func init() {
	saveDef := (&saveExperienceTool{}).Definition()
	Register("save_experience", func(ctx ToolContext) (Tool, error) {
		if ctx.Identity == nil {
			return nil, fmt.Errorf("save_experience requires the identity manager")
		}
		return &saveExperienceTool{ctx: ctx}, nil
	}, &ToolMeta{Name: saveDef.Name, Description: saveDef.Description, InputSchema: saveDef.InputSchema})

	tipDef := (&updateToolDescriptionTool{}).Definition()
	Register("update_tool_description", func(ctx ToolContext) (Tool, error) {
		if ctx.Identity == nil {
			return nil, fmt.Errorf("update_tool_description requires the identity manager")
		}
		return &updateToolDescriptionTool{ctx: ctx}, nil
	}, &ToolMeta{Name: tipDef.Name, Description: tipDef.Description, InputSchema: tipDef.InputSchema})

	updateDef := (&updateKnowledgeTool{}).Definition()
	Register("update_knowledge", func(ctx ToolContext) (Tool, error) {
		if err := requireKnowledge(ctx); err != nil {
			return nil, err
		}
		return &updateKnowledgeTool{ctx: ctx}, nil
	}, &ToolMeta{Name: updateDef.Name, Description: updateDef.Description, InputSchema: updateDef.InputSchema})
}
