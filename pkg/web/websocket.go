package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/dbehnke/turbocodec/pkg/logger"
)

// WebSocket message types
const (
	MessageResult = "result"
	MessageError  = "error"
	MessageStats  = "stats"
)

// WebSocket request operations
const (
	OpEncode = "encode"
	OpDecode = "decode"
)

// WebSocketRequest is a client frame. Data is base64 in JSON.
type WebSocketRequest struct {
	ID   string `json:"id,omitempty"`
	Op   string `json:"op"`
	Data []byte `json:"data"`
}

// WebSocketMessage is a server frame: a result or error answering a
// request with the same ID, or a broadcast stats report.
type WebSocketMessage struct {
	Type  string      `json:"type"`
	ID    string      `json:"id,omitempty"`
	Op    string      `json:"op,omitempty"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
}

// wsClient serialises writes; gorilla connections allow one writer at a
// time and both the hub and the request loop write.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// WebSocketHub manages WebSocket connections
type WebSocketHub struct {
	clients    map[*wsClient]bool
	broadcast  chan WebSocketMessage
	register   chan *wsClient
	unregister chan *wsClient
	mu         sync.RWMutex
	logger     *logger.Logger
	ctx        context.Context
}

func newWebSocketHub(ctx context.Context, log *logger.Logger) *WebSocketHub {
	return &WebSocketHub{
		ctx:        ctx,
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan WebSocketMessage, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		logger:     log,
	}
}

// WebSocket hub run loop
func (hub *WebSocketHub) run() {
	for {
		select {
		case <-hub.ctx.Done():
			hub.mu.Lock()
			for client := range hub.clients {
				delete(hub.clients, client)
				_ = client.conn.Close()
			}
			hub.mu.Unlock()
			return

		case client := <-hub.register:
			hub.mu.Lock()
			hub.clients[client] = true
			hub.mu.Unlock()

		case client := <-hub.unregister:
			hub.mu.Lock()
			if _, ok := hub.clients[client]; ok {
				delete(hub.clients, client)
				if err := client.conn.Close(); err != nil {
					hub.logger.Debug("failed to close websocket client", logger.Error(err))
				}
			}
			hub.mu.Unlock()

		case message := <-hub.broadcast:
			hub.mu.Lock()
			for client := range hub.clients {
				if err := client.writeJSON(message); err != nil {
					delete(hub.clients, client)
					_ = client.conn.Close()
				}
			}
			hub.mu.Unlock()
		}
	}
}

func (hub *WebSocketHub) clientCount() int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.clients)
}

// broadcastMessage never blocks; a full channel drops the message.
func (hub *WebSocketHub) broadcastMessage(message WebSocketMessage) {
	select {
	case hub.broadcast <- message:
	default:
		hub.logger.Warn("WebSocket broadcast channel full, dropping message",
			logger.String("message_type", message.Type))
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed", logger.Error(err))
		return
	}
	conn.SetReadLimit(s.wsReadLimit())

	s.logger.Debug("New WebSocket connection", logger.String("remote", r.RemoteAddr))

	hub := s.websocketHub
	client := &wsClient{conn: conn}
	select {
	case hub.register <- client:
	case <-hub.ctx.Done():
		_ = conn.Close()
		return
	}
	defer func() {
		select {
		case hub.unregister <- client:
		case <-hub.ctx.Done():
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("WebSocket error", logger.Error(err))
			}
			return
		}

		if err := client.writeJSON(s.handleWebSocketRequest(r.Context(), payload)); err != nil {
			s.logger.Debug("Failed to send WebSocket message", logger.Error(err))
			return
		}
	}
}

// wsReadLimit leaves room for base64 expansion and the JSON envelope.
func (s *Server) wsReadLimit() int64 {
	return s.config.Web.MaxBodyBytes*4/3 + 1024
}

func (s *Server) handleWebSocketRequest(ctx context.Context, payload []byte) WebSocketMessage {
	var req WebSocketRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return WebSocketMessage{Type: MessageError, Error: fmt.Sprintf("invalid request: %v", err)}
	}

	reply := WebSocketMessage{Type: MessageResult, ID: req.ID, Op: req.Op}

	out, _, err := s.runCodec(ctx, req.Op, req.Data)
	if err != nil {
		reply.Type = MessageError
		reply.Error = err.Error()
		return reply
	}
	if out == nil {
		out = []byte{}
	}
	reply.Data = out
	return reply
}
