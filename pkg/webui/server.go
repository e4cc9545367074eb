// Package webui serves Maestro's read-only dashboard API, the realtime
// websocket feed, and the inbound message webhook. All mutations happen
// through conversation; the REST surface only exposes state.
package webui

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/bcrypt"

	"maestro/pkg/config"
	"maestro/pkg/knowledge"
	"maestro/pkg/logx"
	"maestro/pkg/metrics"
	"maestro/pkg/store"
	"maestro/pkg/tools"
)

// Version is reported by /api/health; the binary overrides it at build
// time.
//
//nolint:gochecknoglobals // Set once at startup from main
var Version = "dev"

// Conversation is the surface the web layer needs from the live
// conversation.
type Conversation interface {
	Send(ctx context.Context, message string) (string, error)
	Engine() string
	Stats() (map[string]any, error)
}

// Outbound delivers webhook replies back to the superintendent.
type Outbound interface {
	SendMessage(ctx context.Context, text string) error
}

// ActivityQuerier reads aggregated activity counters back from a
// metrics store. Optional; /api/stats works without one.
type ActivityQuerier interface {
	Activity(ctx context.Context, windowDays int) (*metrics.ActivityStats, error)
}

// Server is the web UI HTTP server.
type Server struct {
	store     *store.Store
	knowledge *knowledge.Knowledge
	conv      Conversation
	outbound  Outbound
	cfg       *config.Config
	hub       *Hub
	activity  ActivityQuerier
	logger    *logx.Logger
}

// NewServer wires the web surface in pre-init mode; handlers answer 503
// until SetRuntime installs the live references.
func NewServer(cfg *config.Config) *Server {
	return &Server{
		cfg:    cfg,
		hub:    NewHub(),
		logger: logx.NewLogger("webui"),
	}
}

// SetRuntime installs the live references once the engine is up.
func (s *Server) SetRuntime(st *store.Store, k *knowledge.Knowledge, conv Conversation, out Outbound) {
	s.store = st
	s.knowledge = k
	s.conv = conv
	s.outbound = out
}

// SetActivityQuerier enables the Prometheus-backed activity section of
// /api/stats.
func (s *Server) SetActivityQuerier(q ActivityQuerier) {
	s.activity = q
}

// RegisterRoutes sets up all HTTP routes and subscribes the websocket
// hub to the event bus.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	s.hub.Start()

	mux.HandleFunc("GET /api/project", s.handleProject)
	mux.HandleFunc("GET /api/workspaces", s.handleWorkspaces)
	mux.HandleFunc("GET /api/workspaces/{slug}", s.handleWorkspace)
	mux.HandleFunc("GET /api/schedule", s.handleSchedule)
	mux.HandleFunc("GET /api/schedule/upcoming", s.handleUpcoming)
	mux.HandleFunc("GET /api/schedule/{id}", s.handleEvent)
	mux.HandleFunc("GET /api/conversation", s.handleConversation)
	mux.HandleFunc("GET /api/conversation/messages", s.handleMessages)
	mux.HandleFunc("GET /api/knowledge/disciplines", s.handleDisciplines)
	mux.HandleFunc("GET /api/knowledge/pages", s.handlePages)
	mux.HandleFunc("GET /api/knowledge/pages/{name}", s.handlePage)
	mux.HandleFunc("GET /api/knowledge/search", s.handleSearch)
	mux.HandleFunc("GET /api/knowledge/page-thumb/{name}", s.handlePageThumb)
	mux.HandleFunc("GET /api/health", s.handleHealth)

	mux.HandleFunc("GET /api/stats", s.requireAuth(s.handleStats))
	mux.HandleFunc("GET /api/logs", s.requireAuth(s.handleLogs))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /ws", s.hub.HandleWS)
	mux.HandleFunc("POST /webhook", s.handleWebhook)
}

func (s *Server) ready() bool {
	return s.store != nil && s.conv != nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, map[string]string{"detail": fmt.Sprintf(format, args...)})
}

func (s *Server) notReady(w http.ResponseWriter) bool {
	if s.ready() {
		return false
	}
	httpError(w, http.StatusServiceUnavailable, "Engine not initialized")
	return true
}

// requireAuth wraps a handler with basic auth against the configured
// bcrypt hash. With no auth configured the handler is open; dev setups
// run that way.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth := s.cfg.WebAuth
		if auth.User == "" || auth.PasswordHash == "" {
			next(w, r)
			return
		}

		user, pass, ok := r.BasicAuth()
		if !ok || user != auth.User ||
			bcrypt.CompareHashAndPassword([]byte(auth.PasswordHash), []byte(pass)) != nil {
			s.logger.Warn("Failed auth attempt from %s", r.RemoteAddr)
			w.Header().Set("WWW-Authenticate", `Basic realm="Maestro"`)
			httpError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleProject(w http.ResponseWriter, _ *http.Request) {
	if s.notReady(w) {
		return
	}
	project, err := s.store.GetProject()
	if err != nil {
		httpError(w, http.StatusNotFound, "Project not found")
		return
	}

	pageCount := 0
	pointerCount := 0
	disciplines := map[string]bool{}
	if s.knowledge != nil {
		pageCount = len(s.knowledge.Pages)
		for _, page := range s.knowledge.Pages {
			pointerCount += len(page.Pointers)
			if page.Discipline != "" {
				disciplines[page.Discipline] = true
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":               project.ID,
		"name":             project.Name,
		"source_path":      project.SourcePath,
		"total_pages":      project.TotalPages,
		"created_at":       project.CreatedAt,
		"page_count":       pageCount,
		"pointer_count":    pointerCount,
		"discipline_count": len(disciplines),
		"engine":           s.conv.Engine(),
	})
}

func (s *Server) handleWorkspaces(w http.ResponseWriter, r *http.Request) {
	if s.notReady(w) {
		return
	}
	workspaces, err := s.store.ListWorkspaces(r.URL.Query().Get("status"))
	if err != nil {
		httpError(w, http.StatusInternalServerError, "Failed to list workspaces")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"workspaces": workspaces, "count": len(workspaces)})
}

func (s *Server) handleWorkspace(w http.ResponseWriter, r *http.Request) {
	if s.notReady(w) {
		return
	}
	slug := r.PathValue("slug")
	ws, err := s.store.GetWorkspace(slug)
	if err != nil {
		httpError(w, http.StatusNotFound, "Workspace '%s' not found", slug)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	if s.notReady(w) {
		return
	}
	q := r.URL.Query()
	events, err := s.store.ListEvents(q.Get("from_date"), q.Get("to_date"))
	if err != nil {
		httpError(w, http.StatusInternalServerError, "Failed to list events")
		return
	}
	if eventType := q.Get("event_type"); eventType != "" {
		filtered := events[:0]
		for _, ev := range events {
			if ev.EventType == eventType {
				filtered = append(filtered, ev)
			}
		}
		events = filtered
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}

func (s *Server) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	if s.notReady(w) {
		return
	}
	days := intParam(r, "days", 7, 1, 365)
	events, err := s.store.UpcomingEvents(days)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "Failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events), "days": days})
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	if s.notReady(w) {
		return
	}
	id := r.PathValue("id")
	event, err := s.store.GetEvent(id)
	if err != nil {
		httpError(w, http.StatusNotFound, "Event '%s' not found", id)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (s *Server) handleConversation(w http.ResponseWriter, _ *http.Request) {
	if s.notReady(w) {
		return
	}
	state, err := s.store.GetConversationState()
	if err != nil {
		httpError(w, http.StatusInternalServerError, "Failed to load conversation state")
		return
	}

	out := map[string]any{
		"summary":         state.Summary,
		"total_exchanges": state.TotalExchanges,
		"compactions":     state.Compactions,
		"last_compaction": state.LastCompaction,
	}
	if stats, err := s.conv.Stats(); err == nil {
		for k, v := range stats {
			out[k] = v
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if s.notReady(w) {
		return
	}
	limit := intParam(r, "limit", 50, 1, 500)
	before, _ := strconv.ParseInt(r.URL.Query().Get("before"), 10, 64)

	messages, err := s.store.MessagesBefore(before, limit)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "Failed to list messages")
		return
	}
	total, err := s.store.CountMessages()
	if err != nil {
		httpError(w, http.StatusInternalServerError, "Failed to count messages")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"messages": messages, "count": len(messages), "total": total,
	})
}

func (s *Server) handleDisciplines(w http.ResponseWriter, _ *http.Request) {
	if s.knowledge == nil {
		writeJSON(w, http.StatusOK, map[string]any{"disciplines": []any{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"disciplines": s.knowledge.DisciplineGroups()})
}

func (s *Server) handlePages(w http.ResponseWriter, r *http.Request) {
	if s.knowledge == nil {
		writeJSON(w, http.StatusOK, map[string]any{"pages": []any{}, "count": 0})
		return
	}

	names := s.knowledge.PageNames()
	if discipline := r.URL.Query().Get("discipline"); discipline != "" {
		names = s.knowledge.PagesForDiscipline(discipline)
	}

	pages := make([]map[string]any, 0, len(names))
	for _, name := range names {
		page, ok := s.knowledge.Page(name)
		if !ok {
			continue
		}
		pages = append(pages, map[string]any{
			"page_name":        name,
			"discipline":       knowledge.NormalizeDiscipline(page.Discipline),
			"sheet_reflection": truncate(page.SheetReflection, 200),
			"pointer_count":    len(page.Pointers),
			"cross_references": page.CrossReferences,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"pages": pages, "count": len(pages)})
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	if s.knowledge == nil {
		httpError(w, http.StatusServiceUnavailable, "No project loaded")
		return
	}
	name := r.PathValue("name")
	page, ok := s.knowledge.Page(name)
	if !ok {
		httpError(w, http.StatusNotFound, "Page '%s' not found", name)
		return
	}

	labels := map[string]string{}
	for _, region := range page.Regions {
		labels[region.ID] = region.Label
	}
	pointers := make([]map[string]any, 0, len(page.Pointers))
	for _, ptr := range page.Pointers {
		pointers = append(pointers, map[string]any{
			"region_id":       ptr.RegionID,
			"label":           labels[ptr.RegionID],
			"content_preview": truncate(ptr.Content, 150),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"page_name":        name,
		"discipline":       page.Discipline,
		"sheet_reflection": page.SheetReflection,
		"cross_references": page.CrossReferences,
		"pointers":         pointers,
		"pointer_count":    len(pointers),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		httpError(w, http.StatusBadRequest, "Query parameter 'q' is required")
		return
	}
	if s.knowledge == nil {
		writeJSON(w, http.StatusOK, map[string]any{"results": []any{}, "count": 0, "query": query})
		return
	}
	results := s.knowledge.Search(query)
	writeJSON(w, http.StatusOK, map[string]any{"results": results, "count": len(results), "query": query})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	engine := ""
	if s.conv != nil {
		engine = s.conv.Engine()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"engine":  engine,
		"version": Version,
		"time":    time.Now().Format(time.RFC3339),
		"tools":   len(tools.ListTools()),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.notReady(w) {
		return
	}
	stats, err := s.conv.Stats()
	if err != nil {
		httpError(w, http.StatusInternalServerError, "Failed to gather stats")
		return
	}
	stats["ws_clients"] = s.hub.ClientCount()

	if s.activity != nil {
		days := intParam(r, "days", 7, 1, 90)
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if activity, err := s.activity.Activity(ctx, days); err == nil {
			stats["activity"] = activity
		} else {
			s.logger.Warn("Activity query failed: %v", err)
		}
	}

	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	entries := logx.GetRecentLogEntries(r.URL.Query().Get("component"), time.Time{})
	writeJSON(w, http.StatusOK, map[string]any{"logs": entries, "count": len(entries)})
}

func intParam(r *http.Request, name string, def, minVal, maxVal int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return def
	}
	if v < minVal {
		return minVal
	}
	if v > maxVal {
		return maxVal
	}
	return v
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
