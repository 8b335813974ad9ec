package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"interview-speech-service/internal/observability/logging"
	"interview-speech-service/internal/service/recognition"
)

// Update is one live session change pushed to WebSocket clients.
type Update struct {
	Type      string `json:"type"`
	Listening *bool  `json:"listening,omitempty"`
	Text      string `json:"text,omitempty"`
	ErrorKind string `json:"errorKind,omitempty"`
	Attempts  int    `json:"attempts,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Hub fans manager changes out to WebSocket clients. It implements
// speech.Observer; updates are dropped when the hub falls behind.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan Update
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex
	logger     zerolog.Logger
}

// NewHub returns a hub; call Run to start delivering updates.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan Update, 100),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		logger:     logging.WithComponent("ws-hub"),
	}
}

// Run delivers updates until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			return nil

		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info().Int("clients", n).Msg("Client connected")

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info().Int("clients", n).Msg("Client disconnected")

		case update := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				if err := conn.WriteJSON(update); err != nil {
					h.logger.Warn().Err(err).Msg("Write error")
					conn.Close()
					delete(h.clients, conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeHTTP upgrades the request and registers the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}
	h.register <- conn

	// Reads only detect disconnects.
	go func() {
		defer func() {
			h.unregister <- conn
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) publish(u Update) {
	u.Timestamp = time.Now().UnixMilli()
	select {
	case h.broadcast <- u:
	default:
		h.logger.Warn().Str("type", u.Type).Msg("Hub backlog full, dropping update")
	}
}

func (h *Hub) ListeningChanged(listening bool) {
	h.publish(Update{Type: "listening", Listening: &listening})
}

func (h *Hub) AnswerChanged(answer string) {
	h.publish(Update{Type: "answer", Text: answer})
}

func (h *Hub) InterimChanged(text string) {
	h.publish(Update{Type: "interim", Text: text})
}

func (h *Hub) SegmentFinalized(text string) {
	h.publish(Update{Type: "segment", Text: text})
}

func (h *Hub) SessionError(kind recognition.ErrorKind, _ error) {
	h.publish(Update{Type: "error", ErrorKind: kind.String()})
}

func (h *Hub) StartFailed(attempts int) {
	h.publish(Update{Type: "start_failed", Attempts: attempts})
}
