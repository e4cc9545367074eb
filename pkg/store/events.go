package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"maestro/pkg/bus"
)

// CreateEvent adds a schedule event. Type is normalized to lowercase;
// an empty end defaults to the start.
func (s *Store) CreateEvent(title, startsAt, endsAt, eventType, notes string) (*ScheduleEvent, error) {
	title = strings.TrimSpace(title)
	startsAt = strings.TrimSpace(startsAt)
	endsAt = strings.TrimSpace(endsAt)
	if endsAt == "" {
		endsAt = startsAt
	}
	eventType = strings.ToLower(strings.TrimSpace(eventType))
	if eventType == "" {
		eventType = "general"
	}

	now := nowStamp()
	ev := &ScheduleEvent{
		ID:        GenerateEventID(),
		Title:     title,
		StartsAt:  startsAt,
		EndsAt:    endsAt,
		EventType: eventType,
		Notes:     strings.TrimSpace(notes),
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.Exec(`
		INSERT INTO schedule_events (id, project_id, title, starts_at, ends_at, event_type, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.ID, s.projectID, ev.Title, ev.StartsAt, ev.EndsAt, ev.EventType, ev.Notes, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}

	bus.Emit(bus.TypeSchedule, map[string]any{"action": "created", "id": ev.ID, "title": ev.Title})
	return ev, nil
}

// GetEvent returns one schedule event by id.
func (s *Store) GetEvent(id string) (*ScheduleEvent, error) {
	var ev ScheduleEvent
	err := s.db.QueryRow(`
		SELECT id, title, starts_at, ends_at, event_type, notes, created_at, updated_at
		FROM schedule_events WHERE project_id = ? AND id = ?
	`, s.projectID, id).Scan(
		&ev.ID, &ev.Title, &ev.StartsAt, &ev.EndsAt, &ev.EventType,
		&ev.Notes, &ev.CreatedAt, &ev.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFoundf("Event '%s' not found.", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return &ev, nil
}

// ListEvents returns events overlapping [from, to]. Either bound may be
// empty. Comparison is on the ISO strings: an event matches when it
// ends on or after from and starts on or before to.
func (s *Store) ListEvents(from, to string) ([]ScheduleEvent, error) {
	query := `
		SELECT id, title, starts_at, ends_at, event_type, notes, created_at, updated_at
		FROM schedule_events WHERE project_id = ?`
	args := []any{s.projectID}
	if from != "" {
		query += " AND ends_at >= ?"
		args = append(args, from)
	}
	if to != "" {
		// "to" is an inclusive date; a day suffix keeps datetime starts on
		// that day in range under string comparison.
		query += " AND starts_at <= ?"
		args = append(args, to+"~")
	}
	query += " ORDER BY starts_at, id"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	events := []ScheduleEvent{}
	for rows.Next() {
		var ev ScheduleEvent
		if err := rows.Scan(
			&ev.ID, &ev.Title, &ev.StartsAt, &ev.EndsAt, &ev.EventType,
			&ev.Notes, &ev.CreatedAt, &ev.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// UpcomingEvents returns events from today through today+days.
func (s *Store) UpcomingEvents(days int) ([]ScheduleEvent, error) {
	today := time.Now().Format("2006-01-02")
	until := time.Now().AddDate(0, 0, days).Format("2006-01-02")
	return s.ListEvents(today, until)
}

// EventUpdate holds optional fields for UpdateEvent. Nil fields are
// left unchanged.
type EventUpdate struct {
	Title     *string
	StartsAt  *string
	EndsAt    *string
	EventType *string
	Notes     *string
}

// UpdateEvent applies the non-nil fields of upd to an event.
func (s *Store) UpdateEvent(id string, upd *EventUpdate) (*ScheduleEvent, error) {
	ev, err := s.GetEvent(id)
	if err != nil {
		return nil, err
	}

	if upd.Title != nil {
		ev.Title = strings.TrimSpace(*upd.Title)
	}
	if upd.StartsAt != nil {
		ev.StartsAt = strings.TrimSpace(*upd.StartsAt)
	}
	if upd.EndsAt != nil {
		ev.EndsAt = strings.TrimSpace(*upd.EndsAt)
	}
	if upd.EventType != nil {
		ev.EventType = strings.ToLower(strings.TrimSpace(*upd.EventType))
	}
	if upd.Notes != nil {
		ev.Notes = strings.TrimSpace(*upd.Notes)
	}
	ev.UpdatedAt = nowStamp()

	_, err = s.db.Exec(`
		UPDATE schedule_events SET title = ?, starts_at = ?, ends_at = ?, event_type = ?, notes = ?, updated_at = ?
		WHERE project_id = ? AND id = ?
	`, ev.Title, ev.StartsAt, ev.EndsAt, ev.EventType, ev.Notes, ev.UpdatedAt, s.projectID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update event: %w", err)
	}

	bus.Emit(bus.TypeSchedule, map[string]any{"action": "updated", "id": id, "title": ev.Title})
	return ev, nil
}

// DeleteEvent removes a schedule event.
func (s *Store) DeleteEvent(id string) error {
	res, err := s.db.Exec(`
		DELETE FROM schedule_events WHERE project_id = ? AND id = ?
	`, s.projectID, id)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return notFoundf("Event '%s' not found.", id)
	}

	bus.Emit(bus.TypeSchedule, map[string]any{"action": "deleted", "id": id})
	return nil
}
