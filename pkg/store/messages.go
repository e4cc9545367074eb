package store

import (
	"database/sql"
	"errors"
	"fmt"

	"maestro/pkg/bus"
)

// AddMessage persists one conversation message and returns its row id.
// A "message" event is emitted with the content truncated to 500 chars.
func (s *Store) AddMessage(role, content string) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO messages (project_id, role, content, created_at)
		VALUES (?, ?, ?, ?)
	`, s.projectID, role, content, nowStamp())
	if err != nil {
		return 0, fmt.Errorf("failed to add message: %w", err)
	}
	id, _ := res.LastInsertId()

	bus.Emit(bus.TypeMessage, map[string]any{
		"id": id, "role": role, "content": truncate(content, 500),
	})
	return id, nil
}

// AllMessages returns every stored message in chronological order.
func (s *Store) AllMessages() ([]Message, error) {
	rows, err := s.db.Query(`
		SELECT id, role, content, created_at
		FROM messages WHERE project_id = ?
		ORDER BY id ASC
	`, s.projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// RecentMessages returns the newest limit messages in chronological order.
func (s *Store) RecentMessages(limit int) ([]Message, error) {
	rows, err := s.db.Query(`
		SELECT id, role, content, created_at
		FROM messages WHERE project_id = ?
		ORDER BY id DESC LIMIT ?
	`, s.projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent messages: %w", err)
	}
	defer rows.Close()

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}

	// Query is newest-first; callers want chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// MessagesBefore returns up to limit messages with id < before, in
// chronological order. A before of 0 means no upper bound.
func (s *Store) MessagesBefore(before int64, limit int) ([]Message, error) {
	query := `
		SELECT id, role, content, created_at
		FROM messages WHERE project_id = ?`
	args := []any{s.projectID}
	if before > 0 {
		query += " AND id < ?"
		args = append(args, before)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// DeleteMessagesBefore removes all messages with id < cutoff and
// returns how many were deleted.
func (s *Store) DeleteMessagesBefore(cutoff int64) (int64, error) {
	res, err := s.db.Exec(`
		DELETE FROM messages WHERE project_id = ? AND id < ?
	`, s.projectID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete messages: %w", err)
	}
	deleted, _ := res.RowsAffected()
	return deleted, nil
}

// CountMessages returns the number of stored messages.
func (s *Store) CountMessages() (int, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM messages WHERE project_id = ?
	`, s.projectID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	messages := []Message{}
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// GetConversationState returns the conversation record, creating it on
// first access.
func (s *Store) GetConversationState() (*ConversationState, error) {
	var st ConversationState
	err := s.db.QueryRow(`
		SELECT summary, total_exchanges, compactions, last_compaction, engine
		FROM conversation_state WHERE project_id = ?
	`, s.projectID).Scan(&st.Summary, &st.TotalExchanges, &st.Compactions, &st.LastCompaction, &st.Engine)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := s.db.Exec(`
			INSERT INTO conversation_state (project_id) VALUES (?)
		`, s.projectID); err != nil {
			return nil, fmt.Errorf("failed to create conversation state: %w", err)
		}
		return &ConversationState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation state: %w", err)
	}
	return &st, nil
}

// StateUpdate holds optional conversation state changes.
type StateUpdate struct {
	Summary             *string
	IncrementExchanges  bool
	IncrementCompaction bool // also stamps last_compaction
}

// UpdateConversationState applies upd atomically.
func (s *Store) UpdateConversationState(upd *StateUpdate) error {
	if _, err := s.GetConversationState(); err != nil {
		return err
	}

	if upd.Summary != nil {
		if _, err := s.db.Exec(`
			UPDATE conversation_state SET summary = ? WHERE project_id = ?
		`, *upd.Summary, s.projectID); err != nil {
			return fmt.Errorf("failed to update summary: %w", err)
		}
	}
	if upd.IncrementExchanges {
		if _, err := s.db.Exec(`
			UPDATE conversation_state SET total_exchanges = total_exchanges + 1 WHERE project_id = ?
		`, s.projectID); err != nil {
			return fmt.Errorf("failed to increment exchanges: %w", err)
		}
	}
	if upd.IncrementCompaction {
		if _, err := s.db.Exec(`
			UPDATE conversation_state SET compactions = compactions + 1, last_compaction = ? WHERE project_id = ?
		`, nowStamp(), s.projectID); err != nil {
			return fmt.Errorf("failed to increment compactions: %w", err)
		}
	}
	return nil
}

// SetEngine persists the active engine name.
func (s *Store) SetEngine(engine string) error {
	if _, err := s.GetConversationState(); err != nil {
		return err
	}
	if _, err := s.db.Exec(`
		UPDATE conversation_state SET engine = ? WHERE project_id = ?
	`, engine, s.projectID); err != nil {
		return fmt.Errorf("failed to set engine: %w", err)
	}
	return nil
}

// LogExperience appends a learning record.
func (s *Store) LogExperience(category, content string) error {
	if _, err := s.db.Exec(`
		INSERT INTO experience_log (project_id, category, content, created_at)
		VALUES (?, ?, ?, ?)
	`, s.projectID, category, content, nowStamp()); err != nil {
		return fmt.Errorf("failed to log experience: %w", err)
	}
	return nil
}

// RecentExperience returns the newest limit experience entries.
func (s *Store) RecentExperience(limit int) ([]ExperienceEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, category, content, created_at
		FROM experience_log WHERE project_id = ?
		ORDER BY id DESC LIMIT ?
	`, s.projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list experience: %w", err)
	}
	defer rows.Close()

	entries := []ExperienceEntry{}
	for rows.Next() {
		var e ExperienceEntry
		if err := rows.Scan(&e.ID, &e.Category, &e.Content, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan experience entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
