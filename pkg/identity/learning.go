package identity

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// denylist names files that learning tools may never modify.
var denylist = map[string]bool{
	"soul.json": true,
	"tone.json": true,
}

const learningLogFile = "learning_log.json"

// ApplyAction applies a learning edit to an experience file. The
// returned string is model-facing: DENIED/NOT FOUND/SKIP outcomes are
// results, not errors. An error means the filesystem write failed.
func (m *Manager) ApplyAction(file, field, action, value string) (string, error) {
	if denylist[filepath.Base(file)] {
		return fmt.Sprintf("DENIED: %s is read-only (identity file)", file), nil
	}

	target, err := m.experiencePath(file)
	if err != nil {
		return "", err
	}
	if !strings.HasSuffix(target, ".json") {
		return fmt.Sprintf("SKIP: %s is not a JSON file", file), nil
	}

	raw, err := os.ReadFile(target)
	if os.IsNotExist(err) {
		return fmt.Sprintf("NOT FOUND: %s does not exist in experience/", file), nil
	}
	if err != nil {
		return "", err
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return "", fmt.Errorf("malformed JSON in %s: %w", file, err)
	}

	var result string
	switch action {
	case "append_to_list":
		list, _ := data[field].([]any)
		if value != "" && !containsString(list, value) {
			data[field] = append(list, value)
			result = fmt.Sprintf("OK: appended to %s → %s[]", file, field)
		} else {
			result = fmt.Sprintf("SKIP: duplicate or empty value for %s → %s", file, field)
		}
	case "set_field":
		if field == "" {
			result = "SKIP: no field specified"
			break
		}
		// Structured values arrive as JSON strings.
		var parsed any
		if err := json.Unmarshal([]byte(value), &parsed); err == nil {
			data[field] = parsed
		} else {
			data[field] = value
		}
		result = fmt.Sprintf("OK: set %s → %s", file, field)
	default:
		result = fmt.Sprintf("SKIP: unknown action '%s'", action)
	}

	if strings.HasPrefix(result, "OK") {
		if err := writeJSON(target, data); err != nil {
			return "", err
		}
	}

	m.logChange("save_experience", map[string]any{
		"file":   file,
		"action": action,
		"field":  field,
		"value":  truncate(value, 500),
		"result": result,
	})
	return result, nil
}

// UpdateToolTip records a usage tip for a tool in experience/tools.json.
// Tips are folded into the system prompt on the next build.
func (m *Manager) UpdateToolTip(toolName, tips string) (string, error) {
	target := filepath.Join(m.experienceDir(), "tools.json")

	raw, err := os.ReadFile(target)
	if os.IsNotExist(err) {
		return "NOT FOUND: tools.json missing", nil
	}
	if err != nil {
		return "", err
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return "", fmt.Errorf("malformed JSON in tools.json: %w", err)
	}

	tipMap, _ := data["tool_tips"].(map[string]any)
	if tipMap == nil {
		tipMap = map[string]any{}
	}
	tipMap[toolName] = tips
	data["tool_tips"] = tipMap

	if err := writeJSON(target, data); err != nil {
		return "", err
	}

	result := fmt.Sprintf("OK: updated tips for %s", toolName)
	m.logChange("update_tool_description", map[string]any{
		"tool_name": toolName,
		"tips":      truncate(tips, 500),
		"result":    result,
	})
	return result, nil
}

// experiencePath resolves a relative file inside experience/ and
// rejects paths that escape it.
func (m *Manager) experiencePath(file string) (string, error) {
	base := m.experienceDir()
	target := filepath.Clean(filepath.Join(base, file))
	if target != base && !strings.HasPrefix(target, base+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid experience file path: %s", file)
	}
	return target, nil
}

// logChange appends an audit entry to experience/learning_log.json.
// Audit failures are logged but never block the edit itself.
func (m *Manager) logChange(tool string, details map[string]any) {
	logPath := filepath.Join(m.experienceDir(), learningLogFile)

	var entries []map[string]any
	if raw, err := os.ReadFile(logPath); err == nil {
		_ = json.Unmarshal(raw, &entries)
	}

	entry := map[string]any{
		"timestamp": time.Now().Format("2006-01-02T15:04:05"),
		"tool":      tool,
	}
	for k, v := range details {
		entry[k] = v
	}
	entries = append(entries, entry)

	if err := writeJSON(logPath, entries); err != nil {
		m.logger.Warn("failed to write learning log: %v", err)
	}
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func containsString(list []any, value string) bool {
	for _, item := range list {
		if s, ok := item.(string); ok && s == value {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
