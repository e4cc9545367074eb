// Package bus provides best-effort event fan-out from the core to UI sinks.
//
// Emitters (the store, the conversation, the heartbeat) publish typed
// events; sinks (the websocket hub) receive them. Delivery is
// fire-and-forget: a failed or absent sink never fails the operation
// that produced the event.
package bus

import (
	"sync"
	"time"

	"maestro/pkg/logx"
)

// Event types published by the core.
const (
	TypeConnected       = "connected"
	TypePong            = "pong"
	TypeMessage         = "message"
	TypeHeartbeat       = "heartbeat"
	TypeFinding         = "finding"
	TypeWorkspace       = "workspace"
	TypeSchedule        = "schedule"
	TypeCompaction      = "compaction"
	TypeEngineSwitch    = "engine_switch"
	TypeStatus          = "status"
	TypePageDescription = "page_description_updated"
	TypeHighlightStart   = "page_highlight_started"
	TypeHighlightDone    = "page_highlight_complete"
	TypeHighlightFailed  = "page_highlight_failed"
	TypeHighlightRemoved = "page_highlight_removed"
)

// Event is the envelope delivered to sinks. Time is unix seconds,
// stamped at emit.
type Event struct {
	Type string         `json:"type"`
	Time int64          `json:"time"`
	Data map[string]any `json:"-"`
}

// Sink receives events. Implementations must not block.
type Sink func(Event)

//nolint:gochecknoglobals // Process-wide bus, same singleton pattern as logx
var (
	mu     sync.RWMutex
	sinks  []Sink
	logger = logx.NewLogger("bus")
)

// Subscribe registers a sink for all subsequent events.
func Subscribe(sink Sink) {
	mu.Lock()
	defer mu.Unlock()
	sinks = append(sinks, sink)
}

// Emit publishes an event to every sink. Safe with zero sinks. A
// panicking sink is logged and skipped; emitters never see sink errors.
func Emit(eventType string, data map[string]any) {
	mu.RLock()
	targets := make([]Sink, len(sinks))
	copy(targets, sinks)
	mu.RUnlock()

	event := Event{
		Type: eventType,
		Time: time.Now().Unix(),
		Data: data,
	}

	for _, sink := range targets {
		deliver(sink, event)
	}
}

func deliver(sink Sink, event Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("Event sink panicked on %s: %v", event.Type, r)
		}
	}()
	sink(event)
}

// Reset removes all sinks. Tests use this between cases.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	sinks = nil
}
