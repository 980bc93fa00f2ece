package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onnwee/market-pulse/backend/internal/logger"
	"github.com/onnwee/market-pulse/backend/internal/metrics"
	"github.com/onnwee/market-pulse/backend/internal/realtime"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 30 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins here - CORS middleware handles this
		return true
	},
}

// wsMessage is a marshaled event plus its type, kept for the sent-message
// metric label.
type wsMessage struct {
	event string
	data  []byte
}

// Client represents a WebSocket client connection
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub maintains the set of active clients and broadcasts realtime events
// to them. Events come from the realtime coordinator's subscription.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Broadcast messages to all clients
	broadcast chan wsMessage

	coord *realtime.Coordinator

	// Cancels the coordinator subscription
	unsubscribe func()

	stop     chan struct{}
	stopOnce sync.Once

	mu sync.RWMutex
}

// NewHub creates a new WebSocket hub
func NewHub(coord *realtime.Coordinator) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan wsMessage, 256),
		coord:      coord,
		stop:       make(chan struct{}),
	}
}

// Run starts the hub's main loop and subscribes to coordinator events.
func (h *Hub) Run(ctx context.Context) {
	if h.coord != nil {
		h.unsubscribe = h.coord.Subscribe(func(ev realtime.Event) {
			data, err := json.Marshal(ev)
			if err != nil {
				logger.Error("Failed to marshal realtime event for WebSocket broadcast", "error", err)
				return
			}
			select {
			case h.broadcast <- wsMessage{event: string(ev.Type), data: data}:
			default:
				// Broadcast buffer full, drop the event
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case <-h.stop:
			h.shutdown()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketConnections.Inc()
			logger.Info("WebSocket client connected", "total_clients", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				metrics.WebSocketConnections.Dec()
				logger.Info("WebSocket client disconnected", "total_clients", len(h.clients))
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message.data:
					metrics.WebSocketMessages.WithLabelValues(message.event).Inc()
				default:
					// Client's send buffer is full, close the connection
					close(client.send)
					delete(h.clients, client)
					metrics.WebSocketConnections.Dec()
				}
			}
			h.mu.Unlock()
		}
	}
}

// Stop shuts the hub down. Safe to call more than once.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

func (h *Hub) shutdown() {
	if h.unsubscribe != nil {
		h.unsubscribe()
	}
	h.mu.Lock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
		metrics.WebSocketConnections.Dec()
	}
	h.mu.Unlock()
}

// readPump pumps messages from the WebSocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		// Clients only send control frames; data frames are drained and ignored
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("WebSocket unexpected close", "error", err)
			}
			break
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current WebSocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			metrics.WebSocketMessages.WithLabelValues("ping").Inc()
		}
	}
}

// WebSocketHandler handles WebSocket connections for realtime quote updates
type WebSocketHandler struct {
	hub   *Hub
	coord *realtime.Coordinator
}

// NewWebSocketHandler creates a new WebSocket handler and starts its hub.
func NewWebSocketHandler(coord *realtime.Coordinator) *WebSocketHandler {
	hub := NewHub(coord)
	go hub.Run(context.Background())

	return &WebSocketHandler{
		hub:   hub,
		coord: coord,
	}
}

// HandleWebSocket handles WebSocket upgrade and client connection
// GET /api/realtime/ws
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response
		logger.Error("Failed to upgrade to WebSocket", "error", err)
		return
	}

	client := &Client{
		hub:  h.hub,
		conn: conn,
		send: make(chan []byte, 256),
	}

	h.hub.register <- client

	// Send current status so the client can render pause state immediately
	statusMsg := realtime.Event{
		Type:   realtime.EventStatus,
		Status: h.coord.Status(),
	}
	if data, err := json.Marshal(statusMsg); err == nil {
		select {
		case client.send <- data:
		default:
		}
	}

	go client.writePump()
	go client.readPump()
}

// GetHub returns the WebSocket hub for external broadcasting
func (h *WebSocketHandler) GetHub() *Hub {
	return h.hub
}
