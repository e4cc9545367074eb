// Package identity assembles Maestro's system prompt from identity and
// experience files, and applies the learning tools' direct edits to
// them. Identity (soul.json, tone.json) is static; experience files
// change as the assistant learns, and the next prompt build picks the
// changes up.
package identity

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"maestro/pkg/logx"
)

// Manager owns the identity directory. soul.json and tone.json live at
// the root; everything under experience/ is writable by learning tools.
type Manager struct {
	dir    string
	logger *logx.Logger
}

// New creates a Manager rooted at the identity directory.
func New(dir string) *Manager {
	return &Manager{dir: dir, logger: logx.NewLogger("identity")}
}

func (m *Manager) experienceDir() string {
	return filepath.Join(m.dir, "experience")
}

func (m *Manager) readFile(path string) (map[string]any, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		m.logger.Warn("malformed JSON in %s: %v", path, err)
		return nil, false
	}
	return out, true
}

func getString(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func getStrings(m map[string]any, key string) []string {
	raw, _ := m[key].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Name returns the assistant's name from soul.json, defaulting to
// "Maestro".
func (m *Manager) Name() string {
	if soul, ok := m.readFile(filepath.Join(m.dir, "soul.json")); ok {
		if name := getString(soul, "name"); name != "" {
			return name
		}
	}
	return "Maestro"
}

// BuildSystemPrompt assembles the full system prompt. It is rebuilt
// fresh for each conversation turn so learning edits apply immediately.
func (m *Manager) BuildSystemPrompt() string {
	var parts []string

	if soul, ok := m.readFile(filepath.Join(m.dir, "soul.json")); ok {
		parts = append(parts, fmt.Sprintf("You are %s. %s.", m.Name(), getString(soul, "role")))
		if purpose := getString(soul, "purpose"); purpose != "" {
			parts = append(parts, purpose)
		}
		if boundaries := getString(soul, "boundaries"); boundaries != "" {
			parts = append(parts, boundaries)
		}
	}

	if tone, ok := m.readFile(filepath.Join(m.dir, "tone.json")); ok {
		if style := getString(tone, "style"); style != "" {
			parts = append(parts, fmt.Sprintf("\nCommunication: %s", style))
		}
		for _, principle := range getStrings(tone, "principles") {
			parts = append(parts, "- "+principle)
		}
	}

	if toolsFile, ok := m.readFile(filepath.Join(m.experienceDir(), "tools.json")); ok {
		for _, pair := range [][2]string{
			{"strategy", "Tool strategy"},
			{"search_tips", "Search"},
			{"vision_strategy", "Vision"},
			{"learning_strategy", "Learning"},
			{"gaps_strategy", "Gaps"},
		} {
			if v := getString(toolsFile, pair[0]); v != "" {
				prefix := ""
				if pair[0] == "strategy" {
					prefix = "\n"
				}
				parts = append(parts, fmt.Sprintf("%s%s: %s", prefix, pair[1], v))
			}
		}

		if tips, ok := toolsFile["tool_tips"].(map[string]any); ok && len(tips) > 0 {
			parts = append(parts, "\n### Tool Tips (learned from experience)")
			names := make([]string, 0, len(tips))
			for name := range tips {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				if tip, ok := tips[name].(string); ok {
					parts = append(parts, fmt.Sprintf("- **%s**: %s", name, tip))
				}
			}
		}
	}

	discDir := filepath.Join(m.experienceDir(), "disciplines")
	if entries, err := os.ReadDir(discDir); err == nil {
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}
			disc, ok := m.readFile(filepath.Join(discDir, entry.Name()))
			if !ok {
				continue
			}
			title := getString(disc, "discipline")
			if title == "" {
				title = strings.TrimSuffix(entry.Name(), ".json")
			}
			parts = append(parts, "\n### "+title)
			parts = append(parts, "Sheets: "+strings.Join(getStrings(disc, "sheet_prefixes"), ", "))
			for _, item := range getStrings(disc, "what_to_watch") {
				parts = append(parts, "- Watch: "+item)
			}
			for _, lesson := range getStrings(disc, "learned") {
				parts = append(parts, "- Learned: "+lesson)
			}
		}
	}

	if patterns, ok := m.readFile(filepath.Join(m.experienceDir(), "patterns.json")); ok {
		for _, section := range [][2]string{
			{"cross_discipline", "Cross-Discipline Patterns"},
			{"project_specific", "Project-Specific"},
			{"lessons_from_benchmarks", "Benchmark Lessons"},
		} {
			items := getStrings(patterns, section[0])
			if len(items) == 0 {
				continue
			}
			parts = append(parts, "\n### "+section[1])
			for _, item := range items {
				parts = append(parts, "- "+item)
			}
		}
	}

	return strings.Join(parts, "\n")
}
