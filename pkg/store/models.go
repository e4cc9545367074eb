package store

import (
	"database/sql"
	"math"
	"time"

	"maestro/pkg/logx"
)

// Store provides database operations scoped to one project.
type Store struct {
	db        *sql.DB
	projectID string
	logger    *logx.Logger
}

// NewStore creates a Store bound to a connection and project.
func NewStore(db *sql.DB, projectID string) *Store {
	return &Store{
		db:        db,
		projectID: projectID,
		logger:    logx.NewLogger("store"),
	}
}

// ProjectID returns the project this store is scoped to.
func (s *Store) ProjectID() string {
	return s.projectID
}

// Project is a row in the projects table.
type Project struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	SourcePath string `json:"source_path"`
	TotalPages int    `json:"total_pages"`
	CreatedAt  string `json:"created_at"`
}

// Workspace is a row in the workspaces table.
type Workspace struct {
	ID          int64  `json:"-"`
	ProjectID   string `json:"-"`
	Slug        string `json:"slug"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created"`
	UpdatedAt   string `json:"updated"`
}

// WorkspaceDetail is the full workspace payload returned by GetWorkspace
// and served by the web UI.
type WorkspaceDetail struct {
	Metadata Workspace       `json:"metadata"`
	Pages    []WorkspacePage `json:"pages"`
	Notes    []WorkspaceNote `json:"notes"`
}

// WorkspacePage is a page attached to a workspace.
type WorkspacePage struct {
	PageName    string      `json:"page_name"`
	Description string      `json:"description"`
	AddedBy     string      `json:"added_by"`
	AddedAt     string      `json:"added_at"`
	Highlights  []Highlight `json:"highlights"`
}

// WorkspaceNote is a free-form note on a workspace.
type WorkspaceNote struct {
	Text       string `json:"text"`
	Source     string `json:"source"`
	SourcePage string `json:"source_page"`
	AddedAt    string `json:"added_at"`
}

// Highlight statuses.
const (
	HighlightPending  = "pending"
	HighlightComplete = "complete"
	HighlightFailed   = "failed"
)

// Highlight is an async vision job attached to a workspace page.
type Highlight struct {
	ID          string `json:"id"`
	WorkspaceID int64  `json:"-"`
	PageName    string `json:"page_name,omitempty"`
	Mission     string `json:"mission"`
	Status      string `json:"status"`
	BBoxes      []BBox `json:"bboxes"`
	ResultNote  string `json:"result_note,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// ScheduleEvent is a row in the schedule_events table.
type ScheduleEvent struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	StartsAt  string `json:"start"`
	EndsAt    string `json:"end"`
	EventType string `json:"type"`
	Notes     string `json:"notes"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// Message is a row in the messages table.
type Message struct {
	ID        int64  `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// ConversationState is the singleton-per-project conversation record.
type ConversationState struct {
	Summary        string `json:"summary"`
	TotalExchanges int    `json:"total_exchanges"`
	Compactions    int    `json:"compactions"`
	LastCompaction string `json:"last_compaction"`
	Engine         string `json:"engine"`
}

// ExperienceEntry is an append-only learning record.
type ExperienceEntry struct {
	ID        int64  `json:"id"`
	Category  string `json:"category"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// BBox is a normalized bounding box. All values are fractions of the
// page dimensions in [0,1].
type BBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// SanitizeBBox clamps a bounding box into the unit square and rounds to
// 6 decimals. Returns false for degenerate boxes (zero width or height
// after clamping).
func SanitizeBBox(b BBox) (BBox, bool) {
	x := clamp01(b.X)
	y := clamp01(b.Y)
	w := b.Width
	h := b.Height
	if w > 1-x {
		w = 1 - x
	}
	if h > 1-y {
		h = 1 - y
	}
	w = clamp01(w)
	h = clamp01(h)

	out := BBox{
		X:      round6(x),
		Y:      round6(y),
		Width:  round6(w),
		Height: round6(h),
	}
	if out.Width <= 0 || out.Height <= 0 {
		return BBox{}, false
	}
	return out, true
}

// SanitizeBBoxes filters a slice through SanitizeBBox, dropping
// degenerate entries.
func SanitizeBBoxes(boxes []BBox) []BBox {
	out := make([]BBox, 0, len(boxes))
	for _, b := range boxes {
		if clean, ok := SanitizeBBox(b); ok {
			out = append(out, clean)
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// nowStamp returns the canonical timestamp format used in every table.
func nowStamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
