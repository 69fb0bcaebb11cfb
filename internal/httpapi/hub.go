package httpapi

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/meow-stack/meowctl/internal/events"
)

// Hub fans every event-bus publication out to connected WebSocket
// clients: one shared connection registry, every event written to
// every live connection, dead connections dropped on write failure.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewHub creates an empty connection registry.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]struct{}),
	}
}

// ServeHTTP upgrades a request to a WebSocket connection and registers
// it for event fan-out until the client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.conns, conn)
		h.mu.Unlock()
		conn.Close()
	}()

	// The hub only pushes; it drains inbound frames so the client's pings
	// and close frames are observed and the read deadline doesn't stall.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Pump subscribes to bus and forwards every event to every connected
// client until bus's subscription channel closes. Call it in its own
// goroutine; it never returns on its own otherwise.
func (h *Hub) Pump(bus *events.Bus) {
	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	for evt := range ch {
		h.broadcast(evt)
	}
}

func (h *Hub) broadcast(evt events.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		if err := conn.WriteJSON(evt); err != nil {
			conn.Close()
			delete(h.conns, conn)
		}
	}
}
