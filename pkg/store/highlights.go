package store

import (
	"database/sql"
	"errors"
	"fmt"

	"maestro/pkg/bus"
)

// CreateHighlight queues a vision highlight job against a workspace
// page. The page must already be attached to the workspace.
func (s *Store) CreateHighlight(input, pageName, mission string) (*Highlight, error) {
	ws, err := s.ResolveWorkspace(input)
	if err != nil {
		return nil, err
	}

	var exists int
	err = s.db.QueryRow(`
		SELECT COUNT(*) FROM workspace_pages WHERE workspace_id = ? AND page_name = ?
	`, ws.ID, pageName).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check workspace page: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("Page '%s' is not in workspace '%s'.", pageName, ws.Slug)
	}

	now := nowStamp()
	h := &Highlight{
		ID:          GenerateHighlightID(),
		WorkspaceID: ws.ID,
		PageName:    pageName,
		Mission:     mission,
		Status:      HighlightPending,
		BBoxes:      []BBox{},
		CreatedAt:   now,
	}

	_, err = s.db.Exec(`
		INSERT INTO page_highlights (id, workspace_id, page_name, mission, status, bboxes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, '[]', ?, ?)
	`, h.ID, ws.ID, pageName, mission, HighlightPending, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create highlight: %w", err)
	}

	bus.Emit(bus.TypeHighlightStart, map[string]any{
		"id": h.ID, "slug": ws.Slug, "page": pageName, "mission": truncate(mission, 500),
	})
	return h, nil
}

// GetHighlight returns a highlight job by id.
func (s *Store) GetHighlight(id string) (*Highlight, error) {
	var h Highlight
	var raw string
	err := s.db.QueryRow(`
		SELECT id, workspace_id, page_name, mission, status, bboxes, result_note, created_at
		FROM page_highlights WHERE id = ?
	`, id).Scan(&h.ID, &h.WorkspaceID, &h.PageName, &h.Mission, &h.Status, &raw, &h.ResultNote, &h.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFoundf("Highlight '%s' not found.", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get highlight: %w", err)
	}
	h.BBoxes = unmarshalBBoxes(raw)
	return &h, nil
}

// GetHighlightOnPage returns a highlight by id, checking it belongs to
// the given page.
func (s *Store) GetHighlightOnPage(id, pageName string) (*Highlight, error) {
	h, err := s.GetHighlight(id)
	if err != nil {
		return nil, err
	}
	if h.PageName != pageName {
		return nil, notFoundf("Highlight '%s' not found on page '%s'.", id, pageName)
	}
	return h, nil
}

// ListHighlights returns all highlights for one workspace page, oldest first.
func (s *Store) ListHighlights(workspaceID int64, pageName string) ([]Highlight, error) {
	rows, err := s.db.Query(`
		SELECT id, workspace_id, page_name, mission, status, bboxes, result_note, created_at
		FROM page_highlights WHERE workspace_id = ? AND page_name = ?
		ORDER BY created_at, id
	`, workspaceID, pageName)
	if err != nil {
		return nil, fmt.Errorf("failed to list highlights: %w", err)
	}
	defer rows.Close()

	highlights := []Highlight{}
	for rows.Next() {
		var h Highlight
		var raw string
		if err := rows.Scan(&h.ID, &h.WorkspaceID, &h.PageName, &h.Mission, &h.Status, &raw, &h.ResultNote, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan highlight: %w", err)
		}
		h.BBoxes = unmarshalBBoxes(raw)
		highlights = append(highlights, h)
	}
	return highlights, rows.Err()
}

// PendingHighlights returns all jobs awaiting the vision worker.
func (s *Store) PendingHighlights() ([]Highlight, error) {
	rows, err := s.db.Query(`
		SELECT id, workspace_id, page_name, mission, status, bboxes, result_note, created_at
		FROM page_highlights WHERE status = ? ORDER BY created_at, id
	`, HighlightPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending highlights: %w", err)
	}
	defer rows.Close()

	highlights := []Highlight{}
	for rows.Next() {
		var h Highlight
		var raw string
		if err := rows.Scan(&h.ID, &h.WorkspaceID, &h.PageName, &h.Mission, &h.Status, &raw, &h.ResultNote, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan highlight: %w", err)
		}
		h.BBoxes = unmarshalBBoxes(raw)
		highlights = append(highlights, h)
	}
	return highlights, rows.Err()
}

// DeleteHighlight removes a highlight layer from a workspace page.
func (s *Store) DeleteHighlight(input, pageName, id string) error {
	ws, err := s.ResolveWorkspace(input)
	if err != nil {
		return err
	}

	res, err := s.db.Exec(`
		DELETE FROM page_highlights WHERE id = ? AND workspace_id = ? AND page_name = ?
	`, id, ws.ID, pageName)
	if err != nil {
		return fmt.Errorf("failed to delete highlight: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFoundf("Highlight '%s' not found on page '%s' in workspace '%s'.", id, pageName, ws.Slug)
	}

	bus.Emit(bus.TypeHighlightRemoved, map[string]any{
		"id": id, "slug": ws.Slug, "page": pageName,
	})
	return nil
}

// ResolveHighlight moves a pending job to complete or failed. Boxes are
// sanitized before storage; degenerate boxes are dropped. Complete and
// failed are terminal: resolving a job twice is an error.
func (s *Store) ResolveHighlight(id, status string, boxes []BBox, note string) error {
	if status != HighlightComplete && status != HighlightFailed {
		return fmt.Errorf("invalid highlight status %q", status)
	}

	h, err := s.GetHighlight(id)
	if err != nil {
		return err
	}

	clean := SanitizeBBoxes(boxes)
	res, err := s.db.Exec(`
		UPDATE page_highlights SET status = ?, bboxes = ?, result_note = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, status, marshalBBoxes(clean), note, nowStamp(), id, HighlightPending)
	if err != nil {
		return fmt.Errorf("failed to resolve highlight: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to resolve highlight: %w", err)
	} else if n == 0 {
		return fmt.Errorf("highlight '%s' is already %s and cannot change", id, h.Status)
	}

	eventType := bus.TypeHighlightDone
	if status == HighlightFailed {
		eventType = bus.TypeHighlightFailed
	}
	bus.Emit(eventType, map[string]any{
		"id": id, "page": h.PageName, "status": status, "boxes": len(clean),
	})
	return nil
}
