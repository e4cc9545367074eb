package tools

import (
	"context"
	"fmt"

	"maestro/pkg/store"
)

// Schedule tools manage construction milestones, deliveries, and
// inspections. Dates are ISO strings (2026-09-10 or 2026-09-10T09:00).

type addScheduleEventTool struct{ ctx ToolContext }

func (t *addScheduleEventTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "add_schedule_event",
		Description: "Add an event to the project schedule: milestone, delivery, inspection, meeting, or anything dated.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"title": {Type: "string", Description: "Event title"},
				"start": {Type: "string", Description: "Start date/time, ISO format"},
				"end":   {Type: "string", Description: "End date/time; defaults to start"},
				"type":  {Type: "string", Description: "Event type, e.g. milestone, delivery, inspection"},
				"notes": {Type: "string", Description: "Extra context"},
			},
			Required: []string{"title", "start"},
		},
	}
}

func (t *addScheduleEventTool) Exec(_ context.Context, args map[string]any) (any, error) {
	title, err := strArg(args, "title")
	if err != nil {
		return errResult(err), nil
	}
	start, err := strArg(args, "start")
	if err != nil {
		return errResult(err), nil
	}
	ev, err := t.ctx.Store.CreateEvent(
		title, start,
		strArgOrDefault(args, "end", ""),
		strArgOrDefault(args, "type", ""),
		strArgOrDefault(args, "notes", ""),
	)
	if err != nil {
		return errResult(err), nil
	}
	return okResult(map[string]any{"event": ev, "message": fmt.Sprintf("Added event '%s' (%s).", ev.Title, ev.ID)}), nil
}

type listScheduleEventsTool struct{ ctx ToolContext }

func (t *listScheduleEventsTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "list_schedule_events",
		Description: "List schedule events, optionally within a date range.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"from": {Type: "string", Description: "Range start date (inclusive)"},
				"to":   {Type: "string", Description: "Range end date (inclusive)"},
			},
		},
	}
}

func (t *listScheduleEventsTool) Exec(_ context.Context, args map[string]any) (any, error) {
	events, err := t.ctx.Store.ListEvents(
		strArgOrDefault(args, "from", ""),
		strArgOrDefault(args, "to", ""),
	)
	if err != nil {
		return errResult(err), nil
	}
	return okResult(map[string]any{"events": events, "count": len(events)}), nil
}

type upcomingEventsTool struct{ ctx ToolContext }

func (t *upcomingEventsTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "upcoming_events",
		Description: "List events from today through the next N days (default 2).",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"days": {Type: "integer", Description: "Lookahead in days"},
			},
		},
	}
}

func (t *upcomingEventsTool) Exec(_ context.Context, args map[string]any) (any, error) {
	days := intArgOrDefault(args, "days", 2)
	events, err := t.ctx.Store.UpcomingEvents(days)
	if err != nil {
		return errResult(err), nil
	}
	return okResult(map[string]any{"events": events, "count": len(events), "days": days}), nil
}

type getScheduleEventTool struct{ ctx ToolContext }

func (t *getScheduleEventTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "get_schedule_event",
		Description: "Get one schedule event by id.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"event_id": {Type: "string", Description: "Event id, e.g. evt_1a2b3c4d"},
			},
			Required: []string{"event_id"},
		},
	}
}

func (t *getScheduleEventTool) Exec(_ context.Context, args map[string]any) (any, error) {
	id, err := strArg(args, "event_id")
	if err != nil {
		return errResult(err), nil
	}
	ev, err := t.ctx.Store.GetEvent(id)
	if err != nil {
		return errResult(err), nil
	}
	return okResult(map[string]any{"event": ev}), nil
}

type updateScheduleEventTool struct{ ctx ToolContext }

func (t *updateScheduleEventTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "update_schedule_event",
		Description: "Update fields of a schedule event. Only provided fields change.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"event_id": {Type: "string", Description: "Event id"},
				"title":    {Type: "string"},
				"start":    {Type: "string"},
				"end":      {Type: "string"},
				"type":     {Type: "string"},
				"notes":    {Type: "string"},
			},
			Required: []string{"event_id"},
		},
	}
}

func (t *updateScheduleEventTool) Exec(_ context.Context, args map[string]any) (any, error) {
	id, err := strArg(args, "event_id")
	if err != nil {
		return errResult(err), nil
	}

	upd := &store.EventUpdate{}
	if v, ok := args["title"].(string); ok {
		upd.Title = &v
	}
	if v, ok := args["start"].(string); ok {
		upd.StartsAt = &v
	}
	if v, ok := args["end"].(string); ok {
		upd.EndsAt = &v
	}
	if v, ok := args["type"].(string); ok {
		upd.EventType = &v
	}
	if v, ok := args["notes"].(string); ok {
		upd.Notes = &v
	}

	ev, err := t.ctx.Store.UpdateEvent(id, upd)
	if err != nil {
		return errResult(err), nil
	}
	return okResult(map[string]any{"event": ev, "message": fmt.Sprintf("Updated event '%s'.", ev.ID)}), nil
}

type deleteScheduleEventTool struct{ ctx ToolContext }

func (t *deleteScheduleEventTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "delete_schedule_event",
		Description: "Delete a schedule event by id.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"event_id": {Type: "string", Description: "Event id"},
			},
			Required: []string{"event_id"},
		},
	}
}

func (t *deleteScheduleEventTool) Exec(_ context.Context, args map[string]any) (any, error) {
	id, err := strArg(args, "event_id")
	if err != nil {
		return errResult(err), nil
	}
	if err := t.ctx.Store.DeleteEvent(id); err != nil {
		return errResult(err), nil
	}
	return okResult(map[string]any{"message": fmt.Sprintf("Deleted event '%s'.", id)}), nil
}

//nolint:gochecknoinits // Factory pattern requires init() for tool registration
func init() {
	register := func(name string, build func(ctx ToolContext) Tool) {
		def := build(ToolContext{}).Definition()
		Register(name, func(ctx ToolContext) (Tool, error) {
			if err := requireStore(ctx); err != nil {
				return nil, err
			}
			return build(ctx), nil
		}, &ToolMeta{Name: def.Name, Description: def.Description, InputSchema: def.InputSchema})
	}

	register("add_schedule_event", func(ctx ToolContext) Tool { return &addScheduleEventTool{ctx: ctx} })
	register("list_schedule_events", func(ctx ToolContext) Tool { return &listScheduleEventsTool{ctx: ctx} })
	register("upcoming_events", func(ctx ToolContext) Tool { return &upcomingEventsTool{ctx: ctx} })
	register("get_schedule_event", func(ctx ToolContext) Tool { return &getScheduleEventTool{ctx: ctx} })
	register("update_schedule_event", func(ctx ToolContext) Tool { return &updateScheduleEventTool{ctx: ctx} })
	register("delete_schedule_event", func(ctx ToolContext) Tool { return &deleteScheduleEventTool{ctx: ctx} })
}
