package emitter

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub fans out published channel/event pairs to subscribed WebSocket
// clients. Adapted from the teacher's api.Hub: same register/unregister/
// broadcast channel shape, generalized so a client subscribes to
// "aura.hive.events.*"-style channel names instead of market symbols.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan envelope
	register   chan *client
	unregister chan *client
	mu         sync.RWMutex
	log        *zap.SugaredLogger
}

func NewHub(log *zap.SugaredLogger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan envelope, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		log:        log,
	}
}

// Run services the hub's channels until stop is closed. Intended to be
// started once in its own goroutine from cmd/aura-core.
func (h *Hub) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case env := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if !c.isSubscribed(env.channel) {
					continue
				}
				select {
				case c.send <- env.data:
				default:
					close(c.send)
					delete(h.clients, c)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// broadcastTo hands an already-encoded payload to the hub's broadcast
// channel, non-blocking: a full channel (hub wedged) silently drops the
// event rather than stalling the publisher, preserving best-effort
// delivery.
func (h *Hub) broadcastTo(channel string, data []byte) {
	select {
	case h.broadcast <- envelope{channel: channel, data: data}:
	default:
	}
}

// ServeWS upgrades the request to a WebSocket connection and registers
// the resulting client with the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnw("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		hub:           h,
		conn:          conn,
		send:          make(chan []byte, 256),
		subscriptions: make(map[string]bool),
	}
	h.register <- c

	go c.writePump()
	go c.readPump()
}

type subscribeRequest struct {
	Op       string   `json:"op"`
	Channels []string `json:"channels"`
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	subsMu        sync.RWMutex
	subscriptions map[string]bool
}

func (c *client) isSubscribed(channel string) bool {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	if c.subscriptions["*"] {
		return true
	}
	return c.subscriptions[channel]
}

func (c *client) subscribe(channel string) {
	c.subsMu.Lock()
	c.subscriptions[channel] = true
	c.subsMu.Unlock()
}

func (c *client) unsubscribe(channel string) {
	c.subsMu.Lock()
	delete(c.subscriptions, channel)
	c.subsMu.Unlock()
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			break
		}

		var req subscribeRequest
		if err := json.Unmarshal(message, &req); err != nil {
			continue
		}
		switch req.Op {
		case "subscribe":
			for _, ch := range req.Channels {
				c.subscribe(ch)
			}
		case "unsubscribe":
			for _, ch := range req.Channels {
				c.unsubscribe(ch)
			}
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
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
