// Package api: the WebSocket push side of the control surface. Hub is
// the demo NotificationSink implementation the design calls out as the
// one piece of the out-of-scope web UI this repo wires: owners connect,
// subscribe to their own channel, and receive the same notifications
// the Scheduler and Executor raise for breaches and errors. Grounded on
// the teacher's internal/api/websocket.go Hub/Client shape.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/atlas-tradeops/control-plane/pkg/types"
)

// WSMessageType is the closed set of messages the hub pushes.
type WSMessageType string

const (
	WSMessageNotification WSMessageType = "notification"
	WSMessageHeartbeat    WSMessageType = "heartbeat"
)

// WSMessage is a single push frame.
type WSMessage struct {
	Type      WSMessageType `json:"type"`
	Channel   string        `json:"channel,omitempty"`
	Data      interface{}   `json:"data,omitempty"`
	Timestamp int64         `json:"timestamp"`
}

// notificationPayload is the Data field of a WSMessageNotification.
type notificationPayload struct {
	Priority types.NotificationPriority `json:"priority"`
	Title    string                     `json:"title"`
	Body     string                     `json:"body"`
	Details  map[string]any             `json:"details,omitempty"`
}

// client is a single connected owner dashboard.
type client struct {
	owner string
	conn  *websocket.Conn
	send  chan []byte
}

// Hub fans notifications out to every client subscribed to an owner's
// channel. It implements contracts.NotificationSink.
type Hub struct {
	logger     *zap.Logger
	upgrader   websocket.Upgrader
	mu         sync.RWMutex
	channels   map[string]map[*client]bool
	register   chan *client
	unregister chan *client
	stopOnce   sync.Once
	stopCh     chan struct{}
}

// NewHub creates a Hub and starts its registration loop.
func NewHub(logger *zap.Logger) *Hub {
	h := &Hub{
		logger: logger.Named("api.ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		channels:   make(map[string]map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		stopCh:     make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case c := <-h.register:
			h.mu.Lock()
			if h.channels[c.owner] == nil {
				h.channels[c.owner] = make(map[*client]bool)
			}
			h.channels[c.owner][c] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", zap.String("owner", c.owner))
		case c := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.channels[c.owner]; ok {
				if _, present := clients[c]; present {
					delete(clients, c)
					close(c.send)
				}
				if len(clients) == 0 {
					delete(h.channels, c.owner)
				}
			}
			h.mu.Unlock()
		case <-heartbeat.C:
			h.broadcastAll(WSMessage{Type: WSMessageHeartbeat, Timestamp: time.Now().UnixMilli()})
		}
	}
}

// Close stops the hub's background loop. Connected clients are not
// force-closed; their read pumps exit once the socket errors.
func (h *Hub) Close() {
	h.stopOnce.Do(func() { close(h.stopCh) })
}

// ServeHTTP upgrades an HTTP request to a WebSocket connection bound to
// the owner given by the "owner" query parameter.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		http.Error(w, "owner query parameter is required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{owner: owner, conn: conn, send: make(chan []byte, 64)}
	h.register <- c

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) broadcastAll(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, clients := range h.channels {
		for c := range clients {
			select {
			case c.send <- data:
			default:
			}
		}
	}
}

func (h *Hub) publish(owner string, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.channels[owner] {
		select {
		case c.send <- data:
		default:
		}
	}
}

// Notify implements contracts.NotificationSink by pushing the
// notification to every client currently watching owner's channel. It
// never blocks on a slow or absent client: if nobody is connected the
// notification is simply dropped from the live feed (it is still
// durably recorded by the caller's audit write).
func (h *Hub) Notify(ctx context.Context, owner string, priority types.NotificationPriority, title, body string, data map[string]any) error {
	h.publish(owner, WSMessage{
		Type:    WSMessageNotification,
		Channel: owner,
		Data: notificationPayload{
			Priority: priority,
			Title:    title,
			Body:     body,
			Details:  data,
		},
		Timestamp: time.Now().UnixMilli(),
	})
	return nil
}

// ClientCount reports how many client connections are currently open
// across all owners, mainly for tests and health diagnostics.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, clients := range h.channels {
		n += len(clients)
	}
	return n
}
