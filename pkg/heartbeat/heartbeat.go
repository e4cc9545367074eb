// Package heartbeat is Maestro's proactive engine. On an interval it
// wakes up and decides what to investigate using a priority cascade:
//
//	URGENT → TARGETED → CURIOUS → BORED
//
// Urgent:   schedule event within the lookahead window
// Targeted: active workspace with pages to review
// Curious:  known gaps in the knowledge store
// Bored:    nothing pressing, wander and cross-reference
//
// The heartbeat drives the same conversation and tools as a user turn.
// Only urgent findings message the superintendent directly.
package heartbeat

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"maestro/pkg/config"
	"maestro/pkg/knowledge"
	"maestro/pkg/store"
)

// Time-of-day windows and their tick intervals.
const (
	WorkStartHour = 7
	WorkEndHour   = 18
	OffEndHour    = 22

	WorkIntervalMin = 30
	OffIntervalMin  = 60
)

// Heartbeat modes.
const (
	ModeUrgent   = "urgent"
	ModeTargeted = "targeted"
	ModeCurious  = "curious"
	ModeBored    = "bored"
	ModeSkip     = "skip"
)

// Decision is one heartbeat's plan.
type Decision struct {
	Mode          string
	Reason        string
	Prompt        string
	ShouldMessage bool

	// BoredomStreak carries the incremented streak for bored ticks.
	BoredomStreak int

	// PagesExplored names the pages this tick will touch, for visit
	// tracking.
	PagesExplored []string
}

// IsSilentHours reports whether heartbeats are suppressed entirely.
// The silent window wraps midnight.
func IsSilentHours(now time.Time) bool {
	hour := now.Hour()
	return hour >= OffEndHour || hour < WorkStartHour
}

// IsWorkHours reports whether the work-hours interval applies.
func IsWorkHours(now time.Time) bool {
	hour := now.Hour()
	return hour >= WorkStartHour && hour < WorkEndHour
}

// IntervalMinutes returns the heartbeat interval for the current time
// of day; 0 means no heartbeats.
func IntervalMinutes(now time.Time) int {
	if IsSilentHours(now) {
		return 0
	}
	if IsWorkHours(now) {
		return WorkIntervalMin
	}
	return OffIntervalMin
}

// ShouldRun reports whether enough time has passed since the last
// heartbeat.
func ShouldRun(state *State, now time.Time) bool {
	interval := IntervalMinutes(now)
	if interval == 0 {
		return false
	}
	if state.LastHeartbeat == "" {
		return true
	}
	last, err := time.ParseInLocation("2006-01-02T15:04:05", state.LastHeartbeat, now.Location())
	if err != nil {
		return true
	}
	return now.Sub(last).Minutes() >= float64(interval)
}

// Decide picks this heartbeat's mode from the current project state.
func Decide(
	events []store.ScheduleEvent,
	workspaces []store.WorkspaceSummary,
	gaps []knowledge.Gap,
	state *State,
	k *knowledge.Knowledge,
	rng *rand.Rand,
) Decision {
	if len(events) > 0 {
		return Decision{
			Mode:          ModeUrgent,
			Reason:        fmt.Sprintf("%d event(s) in the next %d days", len(events), config.ScheduleLookaheadDays),
			Prompt:        urgentPrompt(events),
			ShouldMessage: true,
		}
	}

	var active []store.WorkspaceSummary
	for _, ws := range workspaces {
		if ws.Status == "active" && ws.PageCount > 0 {
			active = append(active, ws)
		}
	}
	if len(active) > 0 {
		// Least recently updated first.
		sort.Slice(active, func(i, j int) bool { return active[i].UpdatedAt < active[j].UpdatedAt })
		target := active[0]
		return Decision{
			Mode:   ModeTargeted,
			Reason: fmt.Sprintf("Workspace '%s' has pages to review", target.Title),
			Prompt: targetedPrompt(target.Title),
		}
	}

	if len(gaps) > 0 {
		if len(gaps) > 5 {
			gaps = gaps[:5]
		}
		return Decision{
			Mode:   ModeCurious,
			Reason: fmt.Sprintf("%d gap(s) to investigate", len(gaps)),
			Prompt: curiousPrompt(gaps),
		}
	}

	streak := state.BoredomStreak + 1
	decision := Decision{
		Mode:          ModeBored,
		Reason:        fmt.Sprintf("Nothing pressing. Boredom streak: %d", streak),
		BoredomStreak: streak,
	}
	decision.Prompt, decision.PagesExplored = boredomTarget(state, k, rng)
	return decision
}

// boredomTarget scores pages by novelty and picks one to wander into.
// Lower score = more interesting: frequent visits and rich pointer
// coverage lose points, regions that were never deep-read gain them.
func boredomTarget(state *State, k *knowledge.Knowledge, rng *rand.Rand) (string, []string) {
	if k == nil || len(k.Pages) == 0 {
		return "HEARTBEAT — Nothing to do.", nil
	}

	type scored struct {
		name  string
		score int
	}
	var pages []scored
	for _, name := range k.PageNames() {
		page := k.Pages[name]
		score := state.PagesVisited[name].Count * 10
		score += len(page.Pointers)
		score -= page.RegionsWithoutPointer() * 5
		pages = append(pages, scored{name, score})
	}
	sort.SliceStable(pages, func(i, j int) bool { return pages[i].score < pages[j].score })

	poolSize := len(pages) / 5
	if poolSize < 1 {
		poolSize = 1
	}
	chosen := pages[rng.Intn(poolSize)].name

	if state.BoredomStreak+1 >= config.BoredomAdventurousThreshold {
		discipline := k.Pages[chosen].Discipline
		var others []string
		for _, name := range k.PageNames() {
			if name != chosen && k.Pages[name].Discipline != discipline {
				others = append(others, name)
			}
		}
		if len(others) > 0 {
			cross := others[rng.Intn(len(others))]
			return crossReferencePrompt(chosen, cross), []string{chosen, cross}
		}
	}

	return explorePrompt(chosen), []string{chosen}
}

// Record updates state after a heartbeat completes and persists it.
func Record(path string, state *State, decision Decision, now time.Time) error {
	stamp := now.Format("2006-01-02T15:04:05")
	state.LastHeartbeat = stamp

	if decision.Mode == ModeBored {
		state.BoredomStreak = decision.BoredomStreak
	} else {
		state.BoredomStreak = 0
	}

	for _, page := range decision.PagesExplored {
		info := state.PagesVisited[page]
		info.Count++
		info.Last = stamp
		state.PagesVisited[page] = info
	}

	if decision.Mode == ModeUrgent || decision.Mode == ModeTargeted {
		state.LastScheduleCheck = stamp
	}

	return SaveState(path, state)
}

func urgentPrompt(events []store.ScheduleEvent) string {
	var lines []string
	for i := range events {
		lines = append(lines, fmt.Sprintf("- %s (%s)", events[i].Title, events[i].StartsAt))
	}
	return fmt.Sprintf(
		"HEARTBEAT — URGENT: These events are coming up soon:\n%s\n\n"+
			"Review the relevant pages for these events. Check for conflicts, gaps, "+
			"or anything the superintendent should know before these happen. "+
			"If you find something important, note it. Be thorough.",
		strings.Join(lines, "\n"))
}

func targetedPrompt(workspaceTitle string) string {
	return fmt.Sprintf(
		"HEARTBEAT — TARGETED: Review workspace '%s'.\n\n"+
			"Look through the pages and notes. Are there open questions? "+
			"Missing details? Cross-references to check? "+
			"Deepen your understanding. Update your experience if you learn something.",
		workspaceTitle)
}

func curiousPrompt(gaps []knowledge.Gap) string {
	var lines []string
	for _, gap := range gaps {
		detail := gap.PageName
		if detail == "" {
			detail = gap.Detail
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", gap.Type, detail))
	}
	return fmt.Sprintf(
		"HEARTBEAT — CURIOUS: Found some gaps to investigate:\n%s\n\n"+
			"Explore these gaps. Use vision if needed. "+
			"Update the knowledge store if you find corrections. "+
			"Update your experience with what you learn.",
		strings.Join(lines, "\n"))
}

func crossReferencePrompt(primary, cross string) string {
	return fmt.Sprintf(
		"HEARTBEAT — BORED (cross-reference mode): Explore %s "+
			"and look for connections to %s.\n\n"+
			"Read both sheets. Look for shared materials, dimensions that should match, "+
			"coordination points, or potential conflicts between these disciplines. "+
			"If you find something interesting, note it as a workspace note. "+
			"Update your experience.",
		primary, cross)
}

func explorePrompt(page string) string {
	return fmt.Sprintf(
		"HEARTBEAT — BORED: Explore %s — haven't visited much\n\n"+
			"Read the sheet summary for %s. Look at the regions. "+
			"Is anything surprising? Does anything connect to other work you know about? "+
			"If you find something interesting, note it. Update your experience.",
		page, page)
}
