package heartbeat

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"maestro/pkg/bus"
	"maestro/pkg/config"
	"maestro/pkg/knowledge"
	"maestro/pkg/logx"
	"maestro/pkg/store"
)

// Sender is the conversation surface the worker drives.
type Sender interface {
	Send(ctx context.Context, message string) (string, error)
}

// Outbound delivers urgent findings to the superintendent.
type Outbound interface {
	SendMessage(ctx context.Context, text string) error
}

// Worker ticks every minute and fires a heartbeat when the window
// interval has elapsed. The tick is cheap; the interval logic lives in
// ShouldRun so a restart never loses cadence.
type Worker struct {
	store     *store.Store
	knowledge *knowledge.Knowledge
	conv      Sender
	outbound  Outbound
	statePath string
	logger    *logx.Logger

	cron *cron.Cron
	rng  *rand.Rand

	mu      sync.Mutex
	running bool
}

// NewWorker wires a heartbeat worker. outbound may be nil; urgent
// findings then stay in the conversation log only.
func NewWorker(st *store.Store, k *knowledge.Knowledge, conv Sender, outbound Outbound, statePath string) *Worker {
	return &Worker{
		store:     st,
		knowledge: k,
		conv:      conv,
		outbound:  outbound,
		statePath: statePath,
		logger:    logx.NewLogger("heartbeat"),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Start begins the minute tick. Safe to call once.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	w.cron = cron.New()
	if _, err := w.cron.AddFunc("* * * * *", func() { w.tick(ctx, time.Now()) }); err != nil {
		return err
	}
	w.cron.Start()
	w.running = true
	w.logger.Info("heartbeat worker started (work %02d:00-%02d:00 every %dm, off until %02d:00 every %dm)",
		WorkStartHour, WorkEndHour, WorkIntervalMin, OffEndHour, OffIntervalMin)
	return nil
}

// Stop halts the tick and waits for a running heartbeat to finish.
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	<-w.cron.Stop().Done()
	w.running = false
	w.logger.Info("heartbeat worker stopped")
}

func (w *Worker) tick(ctx context.Context, now time.Time) {
	state := LoadState(w.statePath)
	if !ShouldRun(state, now) {
		return
	}
	w.run(ctx, state, now)
}

func (w *Worker) run(ctx context.Context, state *State, now time.Time) {
	events, err := w.store.UpcomingEvents(config.ScheduleLookaheadDays)
	if err != nil {
		w.logger.Warn("heartbeat: schedule check failed: %v", err)
	}
	workspaces, err := w.store.ListWorkspaces("")
	if err != nil {
		w.logger.Warn("heartbeat: workspace list failed: %v", err)
	}
	var gaps []knowledge.Gap
	if w.knowledge != nil {
		gaps = w.knowledge.CheckGaps()
	}

	decision := Decide(events, workspaces, gaps, state, w.knowledge, w.rng)
	w.logger.Info("heartbeat: %s — %s", decision.Mode, decision.Reason)
	bus.Emit(bus.TypeHeartbeat, map[string]any{
		"mode":   decision.Mode,
		"reason": decision.Reason,
	})

	reply, err := w.conv.Send(ctx, decision.Prompt)
	if err != nil {
		w.logger.Error("heartbeat: send failed: %v", err)
		// Record the tick anyway so failures don't turn into a
		// once-a-minute retry storm.
		if err := Record(w.statePath, state, decision, now); err != nil {
			w.logger.Error("heartbeat: state save failed: %v", err)
		}
		return
	}

	if decision.ShouldMessage && w.outbound != nil && reply != "" {
		if err := w.outbound.SendMessage(ctx, reply); err != nil {
			w.logger.Error("heartbeat: outbound message failed: %v", err)
		}
	}

	if err := Record(w.statePath, state, decision, now); err != nil {
		w.logger.Error("heartbeat: state save failed: %v", err)
	}
}
