package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/guidedesk/guidedesk/internal/api"
)

const (
	wsSendBuffer = 64
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

// Hub fans change events out to websocket subscribers.
type Hub struct {
	log      *zap.SugaredLogger
	upgrader websocket.Upgrader
	onCount  func(int)

	mu      sync.RWMutex
	clients map[string]*hubClient
	closed  bool
}

type hubClient struct {
	id       string
	username string
	conn     *websocket.Conn
	send     chan []byte
	once     sync.Once
}

// NewHub returns an empty hub. onCount, when set, observes the number of
// connected clients after every change.
func NewHub(log *zap.SugaredLogger, onCount func(int)) *Hub {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Hub{
		log:     log,
		onCount: onCount,
		clients: make(map[string]*hubClient),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues ev for every client. Clients whose buffer is full are
// dropped; they reconnect and refetch.
func (h *Hub) Broadcast(ev api.ChangeEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Warnw("encode change event", "error", err)
		return
	}

	var slow []*hubClient
	h.mu.RLock()
	for _, c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.log.Warnw("dropping slow websocket client", "client", c.id, "user", c.username)
		h.remove(c)
	}
}

// ServeWS upgrades the request and streams events until the peer leaves.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	username := ""
	if claims, ok := ClaimsFromContext(r.Context()); ok {
		username = claims.Username
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnw("websocket upgrade failed", "error", err)
		return
	}
	c := &hubClient{
		id:       uuid.NewString(),
		username: username,
		conn:     conn,
		send:     make(chan []byte, wsSendBuffer),
	}
	if !h.add(c) {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		_ = conn.Close()
		return
	}
	h.log.Infow("websocket client connected", "client", c.id, "user", username)

	go h.writePump(c)
	h.readPump(c)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*hubClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		h.remove(c)
	}
}

func (h *Hub) add(c *hubClient) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()
	h.report(n)
	return true
}

func (h *Hub) remove(c *hubClient) {
	c.once.Do(func() {
		h.mu.Lock()
		delete(h.clients, c.id)
		n := len(h.clients)
		h.mu.Unlock()
		close(c.send)
		h.report(n)
		h.log.Infow("websocket client disconnected", "client", c.id, "user", c.username)
	})
}

func (h *Hub) report(n int) {
	if h.onCount != nil {
		h.onCount(n)
	}
}

// readPump discards inbound frames; it exists to process pongs and notice
// the peer going away.
func (h *Hub) readPump(c *hubClient) {
	defer h.remove(c)
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *hubClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
