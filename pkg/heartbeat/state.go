package heartbeat

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// VisitInfo tracks how often a page has been explored by heartbeats.
type VisitInfo struct {
	Count int    `json:"count"`
	Last  string `json:"last"`
}

// State is the heartbeat's persistent memory, stored as JSON on disk.
type State struct {
	LastHeartbeat     string               `json:"last_heartbeat"`
	BoredomStreak     int                  `json:"boredom_streak"`
	PagesVisited      map[string]VisitInfo `json:"pages_visited"`
	LastScheduleCheck string               `json:"last_schedule_check"`
	Discoveries       []string             `json:"discoveries"`
}

func defaultState() *State {
	return &State{PagesVisited: map[string]VisitInfo{}, Discoveries: []string{}}
}

// LoadState reads heartbeat state from path; a missing or corrupt file
// yields a fresh state rather than an error.
func LoadState(path string) *State {
	data, err := os.ReadFile(path)
	if err != nil {
		return defaultState()
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return defaultState()
	}
	if state.PagesVisited == nil {
		state.PagesVisited = map[string]VisitInfo{}
	}
	return &state
}

// SaveState writes state atomically via a temp file rename.
func SaveState(path string, state *State) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
