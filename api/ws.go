package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Artfain/chainledger/core"
	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// Message is a client request received over the websocket.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type client struct {
	conn  *websocket.Conn
	mutex sync.Mutex
}

func (c *client) writeJSON(v any) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

// Hub pushes node events to every connected websocket client and answers
// simple queries on the same connection.
type Hub struct {
	node    *core.Node
	clients map[*client]struct{}
	mutex   sync.Mutex
}

// NewHub creates a hub answering queries from node.
func NewHub(node *core.Node) *Hub {
	return &Hub{node: node, clients: make(map[*client]struct{})}
}

// Run broadcasts events until ctx is done or events is closed.
func (h *Hub) Run(ctx context.Context, events <-chan core.Event) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case ev, ok := <-events:
			if !ok {
				h.closeAll()
				return
			}
			h.broadcast(ev)
		}
	}
}

func (h *Hub) broadcast(ev core.Event) {
	h.mutex.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mutex.Unlock()
	for _, c := range clients {
		if err := c.writeJSON(ev); err != nil {
			slog.Warn("Failed to push event", "error", err)
			h.remove(c)
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.clients)
}

func (h *Hub) remove(c *client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.conn.Close()
	}
}

func (h *Hub) closeAll() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for c := range h.clients {
		c.conn.Close()
		delete(h.clients, c)
	}
}

// ServeHTTP upgrades the connection and answers queries until the client leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade to WebSocket", "error", err)
		return
	}
	c := &client{conn: conn}
	h.mutex.Lock()
	h.clients[c] = struct{}{}
	h.mutex.Unlock()
	defer h.remove(c)

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("Failed to read WebSocket message", "error", err)
			}
			return
		}
		if err := c.writeJSON(h.answer(msg)); err != nil {
			slog.Warn("Failed to answer WebSocket message", "error", err)
			return
		}
	}
}

func (h *Hub) answer(msg Message) any {
	switch msg.Type {
	case "get_chain":
		return h.node.Snapshot()
	case "get_balance", "get_transactions":
		var data struct {
			Address string `json:"address"`
		}
		if err := json.Unmarshal(msg.Data, &data); err != nil || data.Address == "" {
			return map[string]string{"error": "invalid data"}
		}
		if msg.Type == "get_balance" {
			return map[string]any{"address": data.Address, "balance": h.node.Balance(data.Address)}
		}
		txs, err := h.node.TransactionsFor(data.Address)
		if err != nil {
			return map[string]string{"error": err.Error()}
		}
		return map[string]any{"address": data.Address, "transactions": txs}
	default:
		return map[string]string{"error": "unknown message type"}
	}
}
