package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"maestro/pkg/bus"
)

// NotFoundError marks lookups that missed. The message is surfaced
// verbatim to the model and the web UI.
type NotFoundError struct {
	msg string
}

func (e *NotFoundError) Error() string { return e.msg }

func notFoundf(format string, args ...any) error {
	return &NotFoundError{msg: fmt.Sprintf(format, args...)}
}

// IsNotFound reports whether err is a missing-row error.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify turns a workspace title into its slug: lowercase, runs of
// non-alphanumerics collapsed to single underscores, trimmed. Empty
// input falls back to "workspace".
func Slugify(title string) string {
	slug := slugPattern.ReplaceAllString(strings.ToLower(title), "_")
	slug = strings.Trim(slug, "_")
	if slug == "" {
		slug = "workspace"
	}
	return slug
}

// EnsureProject upserts the project row this store is scoped to.
func (s *Store) EnsureProject(name, sourcePath string, totalPages int) error {
	_, err := s.db.Exec(`
		INSERT INTO projects (id, name, source_path, total_pages, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			source_path = excluded.source_path,
			total_pages = excluded.total_pages
	`, s.projectID, name, sourcePath, totalPages, nowStamp())
	if err != nil {
		return fmt.Errorf("failed to upsert project %s: %w", s.projectID, err)
	}
	return nil
}

// GetProject returns the project row.
func (s *Store) GetProject() (*Project, error) {
	var p Project
	err := s.db.QueryRow(`
		SELECT id, name, source_path, total_pages, created_at
		FROM projects WHERE id = ?
	`, s.projectID).Scan(&p.ID, &p.Name, &p.SourcePath, &p.TotalPages, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFoundf("Project '%s' not found.", s.projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &p, nil
}

// DeleteProject removes the project row and, through the schema's
// cascades, everything scoped to it: workspaces with their pages,
// notes, and highlights, schedule events, messages, conversation
// state, and the experience log.
func (s *Store) DeleteProject() error {
	res, err := s.db.Exec(`DELETE FROM projects WHERE id = ?`, s.projectID)
	if err != nil {
		return fmt.Errorf("failed to delete project %s: %w", s.projectID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFoundf("Project '%s' not found.", s.projectID)
	}
	return nil
}

// CreateWorkspace creates a workspace from a title. The slug is derived
// from the title; a slug collision returns the existing workspace
// instead of failing, so repeated create calls are idempotent.
func (s *Store) CreateWorkspace(title, description string) (*Workspace, bool, error) {
	slug := Slugify(title)

	if existing, err := s.workspaceBySlug(slug); err == nil {
		return existing, false, nil
	} else if !IsNotFound(err) {
		return nil, false, err
	}

	now := nowStamp()
	res, err := s.db.Exec(`
		INSERT INTO workspaces (project_id, slug, title, description, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'active', ?, ?)
	`, s.projectID, slug, title, description, now, now)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create workspace %s: %w", slug, err)
	}
	id, _ := res.LastInsertId()

	ws := &Workspace{
		ID:          id,
		ProjectID:   s.projectID,
		Slug:        slug,
		Title:       title,
		Description: description,
		Status:      "active",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	bus.Emit(bus.TypeWorkspace, map[string]any{"action": "created", "slug": slug, "title": title})
	return ws, true, nil
}

func (s *Store) workspaceBySlug(slug string) (*Workspace, error) {
	var ws Workspace
	err := s.db.QueryRow(`
		SELECT id, project_id, slug, title, description, status, created_at, updated_at
		FROM workspaces WHERE project_id = ? AND slug = ?
	`, s.projectID, slug).Scan(
		&ws.ID, &ws.ProjectID, &ws.Slug, &ws.Title, &ws.Description,
		&ws.Status, &ws.CreatedAt, &ws.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFoundf("Workspace '%s' not found.", slug)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query workspace %s: %w", slug, err)
	}
	return &ws, nil
}

// ResolveWorkspace finds a workspace by exact slug, then by the slugified
// input, then by case-insensitive title match.
func (s *Store) ResolveWorkspace(input string) (*Workspace, error) {
	if ws, err := s.workspaceBySlug(input); err == nil {
		return ws, nil
	} else if !IsNotFound(err) {
		return nil, err
	}

	if slug := Slugify(input); slug != input {
		if ws, err := s.workspaceBySlug(slug); err == nil {
			return ws, nil
		} else if !IsNotFound(err) {
			return nil, err
		}
	}

	var ws Workspace
	err := s.db.QueryRow(`
		SELECT id, project_id, slug, title, description, status, created_at, updated_at
		FROM workspaces WHERE project_id = ? AND LOWER(title) = LOWER(?)
	`, s.projectID, input).Scan(
		&ws.ID, &ws.ProjectID, &ws.Slug, &ws.Title, &ws.Description,
		&ws.Status, &ws.CreatedAt, &ws.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFoundf("Workspace '%s' not found.", input)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace %s: %w", input, err)
	}
	return &ws, nil
}

// WorkspaceSummary is a workspace row with content counts, for listings.
type WorkspaceSummary struct {
	Workspace
	PageCount int `json:"page_count"`
	NoteCount int `json:"note_count"`
}

// ListWorkspaces returns all workspaces with page and note counts,
// newest update first. Pass a status to filter, or "" for all.
func (s *Store) ListWorkspaces(status string) ([]WorkspaceSummary, error) {
	query := `
		SELECT w.id, w.project_id, w.slug, w.title, w.description, w.status,
		       w.created_at, w.updated_at,
		       (SELECT COUNT(*) FROM workspace_pages p WHERE p.workspace_id = w.id),
		       (SELECT COUNT(*) FROM workspace_notes n WHERE n.workspace_id = w.id)
		FROM workspaces w
		WHERE w.project_id = ?`
	args := []any{s.projectID}
	if status != "" {
		query += " AND w.status = ?"
		args = append(args, status)
	}
	query += " ORDER BY w.updated_at DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}
	defer rows.Close()

	var out []WorkspaceSummary
	for rows.Next() {
		var ws WorkspaceSummary
		if err := rows.Scan(
			&ws.ID, &ws.ProjectID, &ws.Slug, &ws.Title, &ws.Description,
			&ws.Status, &ws.CreatedAt, &ws.UpdatedAt, &ws.PageCount, &ws.NoteCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan workspace: %w", err)
		}
		out = append(out, ws)
	}
	return out, rows.Err()
}

// GetWorkspace returns the full workspace payload: metadata, pages with
// their highlights, and notes.
func (s *Store) GetWorkspace(input string) (*WorkspaceDetail, error) {
	ws, err := s.ResolveWorkspace(input)
	if err != nil {
		return nil, err
	}

	pages, err := s.workspacePages(ws.ID)
	if err != nil {
		return nil, err
	}
	notes, err := s.workspaceNotes(ws.ID)
	if err != nil {
		return nil, err
	}

	return &WorkspaceDetail{Metadata: *ws, Pages: pages, Notes: notes}, nil
}

func (s *Store) workspacePages(workspaceID int64) ([]WorkspacePage, error) {
	rows, err := s.db.Query(`
		SELECT page_name, description, added_by, added_at
		FROM workspace_pages WHERE workspace_id = ? ORDER BY added_at, id
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspace pages: %w", err)
	}
	defer rows.Close()

	pages := []WorkspacePage{}
	for rows.Next() {
		var p WorkspacePage
		if err := rows.Scan(&p.PageName, &p.Description, &p.AddedBy, &p.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan workspace page: %w", err)
		}
		pages = append(pages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range pages {
		highlights, err := s.ListHighlights(workspaceID, pages[i].PageName)
		if err != nil {
			return nil, err
		}
		pages[i].Highlights = highlights
	}
	return pages, nil
}

func (s *Store) workspaceNotes(workspaceID int64) ([]WorkspaceNote, error) {
	rows, err := s.db.Query(`
		SELECT text, source, source_page, added_at
		FROM workspace_notes WHERE workspace_id = ? ORDER BY added_at, id
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspace notes: %w", err)
	}
	defer rows.Close()

	notes := []WorkspaceNote{}
	for rows.Next() {
		var n WorkspaceNote
		if err := rows.Scan(&n.Text, &n.Source, &n.SourcePage, &n.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan workspace note: %w", err)
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// UpdateWorkspaceStatus sets a workspace to active or archived.
func (s *Store) UpdateWorkspaceStatus(input, status string) error {
	ws, err := s.ResolveWorkspace(input)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		UPDATE workspaces SET status = ?, updated_at = ? WHERE id = ?
	`, status, nowStamp(), ws.ID)
	if err != nil {
		return fmt.Errorf("failed to update workspace status: %w", err)
	}
	bus.Emit(bus.TypeWorkspace, map[string]any{"action": "status", "slug": ws.Slug, "status": status})
	return nil
}

// AddPageToWorkspace attaches a knowledge page to a workspace. Adding a
// page twice is an error surfaced to the model.
func (s *Store) AddPageToWorkspace(input, pageName, description, addedBy string) error {
	ws, err := s.ResolveWorkspace(input)
	if err != nil {
		return err
	}

	var exists int
	err = s.db.QueryRow(`
		SELECT COUNT(*) FROM workspace_pages WHERE workspace_id = ? AND page_name = ?
	`, ws.ID, pageName).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check workspace page: %w", err)
	}
	if exists > 0 {
		return fmt.Errorf("Page '%s' is already in workspace '%s'.", pageName, ws.Slug)
	}

	_, err = s.db.Exec(`
		INSERT INTO workspace_pages (workspace_id, page_name, description, added_by, added_at)
		VALUES (?, ?, ?, ?, ?)
	`, ws.ID, pageName, description, addedBy, nowStamp())
	if err != nil {
		return fmt.Errorf("failed to add page to workspace: %w", err)
	}

	if err := s.touchWorkspace(ws.ID); err != nil {
		return err
	}
	bus.Emit(bus.TypeWorkspace, map[string]any{"action": "page_added", "slug": ws.Slug, "page": pageName})
	return nil
}

// RemovePageFromWorkspace detaches a page. Removing an absent page is an
// error surfaced to the model.
func (s *Store) RemovePageFromWorkspace(input, pageName string) error {
	ws, err := s.ResolveWorkspace(input)
	if err != nil {
		return err
	}

	res, err := s.db.Exec(`
		DELETE FROM workspace_pages WHERE workspace_id = ? AND page_name = ?
	`, ws.ID, pageName)
	if err != nil {
		return fmt.Errorf("failed to remove page from workspace: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("Page '%s' is not in workspace '%s'.", pageName, ws.Slug)
	}

	if err := s.touchWorkspace(ws.ID); err != nil {
		return err
	}
	bus.Emit(bus.TypeWorkspace, map[string]any{"action": "page_removed", "slug": ws.Slug, "page": pageName})
	return nil
}

// SetPageDescription updates the description of a workspace page.
func (s *Store) SetPageDescription(input, pageName, description string) error {
	ws, err := s.ResolveWorkspace(input)
	if err != nil {
		return err
	}

	res, err := s.db.Exec(`
		UPDATE workspace_pages SET description = ? WHERE workspace_id = ? AND page_name = ?
	`, description, ws.ID, pageName)
	if err != nil {
		return fmt.Errorf("failed to set page description: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("Page '%s' is not in workspace '%s'.", pageName, ws.Slug)
	}

	if err := s.touchWorkspace(ws.ID); err != nil {
		return err
	}
	bus.Emit(bus.TypePageDescription, map[string]any{"slug": ws.Slug, "page": pageName, "description": description})
	return nil
}

// AddNote appends a note to a workspace.
func (s *Store) AddNote(input, text, source, sourcePage string) error {
	ws, err := s.ResolveWorkspace(input)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO workspace_notes (workspace_id, text, source, source_page, added_at)
		VALUES (?, ?, ?, ?, ?)
	`, ws.ID, text, source, sourcePage, nowStamp())
	if err != nil {
		return fmt.Errorf("failed to add note: %w", err)
	}

	if err := s.touchWorkspace(ws.ID); err != nil {
		return err
	}
	bus.Emit(bus.TypeFinding, map[string]any{"slug": ws.Slug, "text": truncate(text, 500)})
	return nil
}

func (s *Store) touchWorkspace(workspaceID int64) error {
	if _, err := s.db.Exec(`UPDATE workspaces SET updated_at = ? WHERE id = ?`, nowStamp(), workspaceID); err != nil {
		return fmt.Errorf("failed to touch workspace: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func marshalBBoxes(boxes []BBox) string {
	if boxes == nil {
		boxes = []BBox{}
	}
	data, err := json.Marshal(boxes)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func unmarshalBBoxes(raw string) []BBox {
	var boxes []BBox
	if err := json.Unmarshal([]byte(raw), &boxes); err != nil {
		return []BBox{}
	}
	if boxes == nil {
		boxes = []BBox{}
	}
	return boxes
}
