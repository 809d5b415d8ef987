package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muurk/ippower/internal/device"
	"github.com/muurk/ippower/internal/engine"
	"github.com/muurk/ippower/internal/logging"
	"github.com/muurk/ippower/internal/state"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512

	// Events buffered per client before it is dropped as too slow
	sendBuffer = 32
)

// Event types sent over the websocket stream
const (
	EventSnapshot = "snapshot"
	EventSocket   = "socket"
	EventStatus   = "status"
)

// Event is one message on the websocket stream
type Event struct {
	Type    string               `json:"type"`
	Socket  *SocketResponse      `json:"socket,omitempty"`
	Old     *device.SocketRecord `json:"old,omitempty"`
	Sockets []SocketResponse     `json:"sockets,omitempty"`
	Status  string               `json:"status,omitempty"`
	Error   string               `json:"error,omitempty"`
}

func newChangeEvent(ch state.Change) Event {
	rec := newSocketResponse(ch.New)
	old := ch.Old
	return Event{Type: EventSocket, Socket: &rec, Old: &old}
}

func newStatusEvent(status engine.Status, err error) Event {
	ev := Event{Type: EventStatus, Status: status.String()}
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API is unauthenticated and meant for the local network
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans engine events out to connected websocket clients.
type Hub struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool
}

type wsClient struct {
	conn *websocket.Conn
	send chan Event
	once sync.Once
}

func (c *wsClient) close() {
	c.once.Do(func() { close(c.send) })
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{clients: make(map[*wsClient]struct{})}
}

// Broadcast queues ev for every client. A client whose buffer is full is
// disconnected rather than blocking the caller.
func (h *Hub) Broadcast(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- ev:
		default:
			logging.Warn("Dropping slow websocket client",
				zap.String("remote_addr", c.conn.RemoteAddr().String()),
			)
			delete(h.clients, c)
			c.close()
		}
	}
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}

// register adds c after queueing the events returned by initial. Holding
// the lock across both means no broadcast can fall between them.
func (h *Hub) register(c *wsClient, initial func() []Event) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	for _, ev := range initial() {
		c.send <- ev
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response
		logging.Debug("WebSocket upgrade failed", zap.Error(err))
		return
	}

	c := &wsClient{conn: conn, send: make(chan Event, sendBuffer)}

	registered := s.hub.register(c, func() []Event {
		status, statusErr := s.engine.Status()
		return []Event{
			{Type: EventSnapshot, Sockets: s.socketList()},
			newStatusEvent(status, statusErr),
		}
	})
	if !registered {
		_ = conn.Close()
		return
	}

	logging.Info("WebSocket client connected", zap.String("remote_addr", r.RemoteAddr))

	go s.writePump(c)
	go s.readPump(c)
}

// readPump discards client messages and detects disconnects
func (s *Server) readPump(c *wsClient) {
	defer func() {
		s.hub.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}
	}
}

func (s *Server) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		logging.Info("WebSocket client disconnected",
			zap.String("remote_addr", c.conn.RemoteAddr().String()),
		)
	}()

	for {
		select {
		case ev, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
