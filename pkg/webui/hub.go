package webui

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"maestro/pkg/bus"
	"maestro/pkg/logx"
)

// Hub fans bus events out to connected websocket dashboards. Delivery
// is best effort: a client that cannot be written to is dropped.
type Hub struct {
	mu      sync.Mutex
	clients map[*wsClient]bool

	upgrader websocket.Upgrader
	logger   *logx.Logger
}

// wsClient serializes writes; the bus sink and the reader's pong reply
// both write to the same connection.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*wsClient]bool),
		upgrader: websocket.Upgrader{
			// The dashboard may be served from a different origin in dev.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logx.NewLogger("websocket"),
	}
}

// Start subscribes the hub to the event bus.
func (h *Hub) Start() {
	bus.Subscribe(h.broadcast)
}

// ClientCount returns the number of connected dashboards.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// HandleWS upgrades the connection and serves it until disconnect. The
// client may send "ping" as a text keepalive.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed: %v", err)
		return
	}

	client := &wsClient{conn: conn}
	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	_ = client.send(map[string]any{
		"type":    bus.TypeConnected,
		"clients": count,
		"time":    time.Now().Unix(),
	})

	defer func() {
		h.mu.Lock()
		delete(h.clients, client)
		h.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if string(data) == "ping" {
			_ = client.send(map[string]any{
				"type": bus.TypePong,
				"time": time.Now().Unix(),
			})
		}
	}
}

// broadcast pushes one bus event to every client. The event data is
// flattened into the envelope alongside type and time.
func (h *Hub) broadcast(ev bus.Event) {
	h.mu.Lock()
	targets := make([]*wsClient, 0, len(h.clients))
	for client := range h.clients {
		targets = append(targets, client)
	}
	h.mu.Unlock()

	if len(targets) == 0 {
		return
	}

	payload := map[string]any{"type": ev.Type, "time": ev.Time}
	for k, v := range ev.Data {
		payload[k] = v
	}

	var dead []*wsClient
	for _, client := range targets {
		if err := client.send(payload); err != nil {
			dead = append(dead, client)
		}
	}

	if len(dead) > 0 {
		h.mu.Lock()
		for _, client := range dead {
			delete(h.clients, client)
			_ = client.conn.Close()
		}
		h.mu.Unlock()
		h.logger.Debug("Dropped %d dead websocket client(s)", len(dead))
	}
}
