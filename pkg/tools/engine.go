package tools

import (
	"context"
	"fmt"
)

type switchEngineTool struct{ ctx ToolContext }

func (t *switchEngineTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name: "switch_engine",
		Description: "Switch the model engine powering this conversation. History is preserved across the switch. " +
			"Engines: opus (Opus 4.6, deep reasoning), gpt (GPT-5.2, fast general work), " +
			"gemini (Gemini 3 Pro, long-context analysis), gemini-flash (Gemini 3 Flash, cheap and quick).",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"engine": {
					Type:        "string",
					Description: "Engine to switch to",
					Enum:        []string{"opus", "gpt", "gemini", "gemini-flash"},
				},
			},
			Required: []string{"engine"},
		},
	}
}

func (t *switchEngineTool) Exec(_ context.Context, args map[string]any) (any, error) {
	engine, err := strArg(args, "engine")
	if err != nil {
		return errResult(err), nil
	}
	message, err := t.ctx.Engine.SwitchEngine(engine)
	if err != nil {
		return errResult(err), nil
	}
	return message, nil
}

//nolint:gochecknoinits // Factory pattern requires init() for tool registration
func init() {
	def := (&switchEngineTool{}).Definition()
	Register("switch_engine", func(ctx ToolContext) (Tool, error) {
		if ctx.Engine == nil {
			return nil, fmt.Errorf("switch_engine requires the conversation engine")
		}
		return &switchEngineTool{ctx: ctx}, nil
	}, &ToolMeta{Name: def.Name, Description: def.Description, InputSchema: def.InputSchema})
}
