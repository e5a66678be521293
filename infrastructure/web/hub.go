package web

import (
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"mp4-mp3/domain/conversion"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = (pongWait * 9) / 10
	clientQueue = 32
)

// Event is one message on the progress stream
type Event struct {
	Type     string                  `json:"type"` // "stage" or "progress"
	Snapshot *conversion.JobSnapshot `json:"snapshot,omitempty"`
	Stage    conversion.Stage        `json:"stage,omitempty"`
	Progress *conversion.Indicators  `json:"progress,omitempty"`
}

// Hub fans controller notifications out to websocket clients.
// It implements the controller's listener interface and never blocks the caller:
// a client that falls behind loses messages.
type Hub struct {
	upgrader websocket.Upgrader
	logger   hclog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a hub. allowedOrigins follows the CORS setting:
// empty means same origin only, "*" allows any origin.
func NewHub(allowedOrigins []string, logger hclog.Logger) *Hub {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	h := &Hub{
		logger:  logger,
		clients: make(map[*client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if u, err := url.Parse(origin); err == nil && u.Host == r.Host {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// Serve upgrades the request, sends the current snapshot and then every following event.
// The client is registered before snapshot is called, so a change racing the
// connection is either in the snapshot or delivered after it.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, snapshot func() conversion.JobSnapshot) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &client{conn: conn, send: make(chan []byte, clientQueue)}

	// broadcasts wait on mu, so nothing reaches c.send ahead of the snapshot
	h.mu.Lock()
	h.clients[c] = struct{}{}
	count := len(h.clients)
	initial := snapshot()
	if data, err := json.Marshal(Event{Type: "stage", Snapshot: &initial}); err == nil {
		c.send <- data
	}
	h.mu.Unlock()
	h.logger.Debug("progress client connected", "remote", r.RemoteAddr, "clients", count)

	go h.writePump(c)
	go h.readPump(c)
	return nil
}

// StageChanged broadcasts a snapshot
func (h *Hub) StageChanged(snapshot conversion.JobSnapshot) {
	h.broadcast(Event{Type: "stage", Snapshot: &snapshot})
}

// ProgressChanged broadcasts new indicator values
func (h *Hub) ProgressChanged(stage conversion.Stage, progress conversion.Indicators) {
	h.broadcast(Event{Type: "progress", Stage: stage, Progress: &progress})
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for c := range clients {
		close(c.send)
	}
}

func (h *Hub) broadcast(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Warn("failed to encode event", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Trace("dropping event for slow client", "type", event.Type)
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// writePump owns all writes to the connection
func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.remove(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}

// readPump discards client messages and notices when the client goes away
func (h *Hub) readPump(c *client) {
	defer h.remove(c)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
