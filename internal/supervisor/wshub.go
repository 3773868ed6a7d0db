package supervisor

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// maxWSConnections keeps one slow client from letting the connection set
// grow unbounded.
const maxWSConnections = 200

// StatusHub is the single-broadcaster websocket hub from §4.6's DOMAIN
// STACK addition: it fans out the StatusReport built every
// StatusReportInterval to every connected
// `monitor --http` client. This is
// best-effort telemetry, never a write path — a broadcast failure only
// drops that one client.
type StatusHub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]struct{}
	latest  StatusReport
}

// NewStatusHub returns an empty hub.
func NewStatusHub() *StatusHub {
	return &StatusHub{clients: make(map[*websocket.Conn]struct{})}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeHTTP upgrades an incoming request to a websocket and registers the
// connection, sending the latest known report immediately.
func (h *StatusHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[supervisor] websocket upgrade failed: %v", err)
		return
	}

	h.mu.Lock()
	if len(h.clients) >= maxWSConnections {
		h.mu.Unlock()
		conn.Close()
		log.Printf("[supervisor] websocket connection rejected: max connections (%d) reached", maxWSConnections)
		return
	}
	h.clients[conn] = struct{}{}
	latest := h.latest
	h.mu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_ = conn.WriteJSON(latest)

	go h.readPump(conn)
}

// readPump drains and discards client messages purely to detect
// disconnects; the hub never expects inbound data from monitor clients.
func (h *StatusHub) readPump(conn *websocket.Conn) {
	defer h.unregister(conn)
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

func (h *StatusHub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
}

// Broadcast pushes report to every connected client, dropping (and
// unregistering) any client whose write fails or times out.
func (h *StatusHub) Broadcast(report StatusReport) {
	h.mu.Lock()
	h.latest = report
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(report); err != nil {
			h.unregister(conn)
		}
	}
}

// Run shuts the hub down cleanly when ctx is cancelled.
func (h *StatusHub) Run(ctx context.Context) {
	<-ctx.Done()
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.Close()
	}
	h.clients = make(map[*websocket.Conn]struct{})
}
