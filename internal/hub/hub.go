// Package hub fans locally derived dashboard events out to browser clients
// over WebSocket and routes their control messages back in.
package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"adas-dashboard/internal/model"
	"adas-dashboard/internal/schedule"
)

// Inbound message types sent by browser clients.
const (
	MessageTranscript = "transcript"
	MessageVoiceError = "voice_error"
	MessageDismiss    = "dismiss"
	MessageFeedError  = "feed_error"
)

// Message is a control message from a client.
type Message struct {
	Type       string `json:"type"`
	Transcript string `json:"transcript,omitempty"`
	ID         int64  `json:"id,omitempty"`
	Error      string `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub maintains the set of active clients and broadcasts events to them.
type Hub struct {
	sched  schedule.Scheduler
	logger *zap.Logger

	clients    map[*Client]struct{}
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex

	handlerMu sync.RWMutex
	handler   func(Message)
}

func New(sched schedule.Scheduler, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		sched:      sched,
		logger:     logger,
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// OnMessage sets the receiver for inbound client messages.
func (h *Hub) OnMessage(fn func(Message)) {
	h.handlerMu.Lock()
	defer h.handlerMu.Unlock()
	h.handler = fn
}

// Run serves register, unregister and broadcast until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			h.mu.Unlock()
			h.logger.Info("WebSocket client registered",
				zap.String("client_id", client.id),
				zap.String("remote_addr", client.conn.RemoteAddr().String()),
			)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.logger.Info("WebSocket client unregistered", zap.String("client_id", client.id))
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					h.logger.Warn("WebSocket client send buffer full, removing", zap.String("client_id", client.id))
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish queues an event for every connected client. Events are dropped when
// the queue is full.
func (h *Hub) Publish(event model.Event) {
	if event.At.IsZero() {
		event.At = h.sched.Now()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Failed to marshal event", zap.String("type", string(event.Type)), zap.Error(err))
		return
	}

	select {
	case h.broadcast <- payload:
	default:
		h.logger.Warn("Event queue full, dropping event", zap.String("type", string(event.Type)))
	}
}

// Emit asks clients to play the tone.
func (h *Hub) Emit(tone model.Tone) error {
	h.Publish(model.Event{Type: model.EventTone, Payload: tone})
	return nil
}

// Announce asks clients to speak text.
func (h *Hub) Announce(text string) {
	h.Publish(model.Event{Type: model.EventSpeak, Payload: map[string]string{"text": text}})
}

// ServeWS upgrades the request and starts the client's pumps.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, 256),
	}

	select {
	case h.register <- client:
	case <-h.done:
		_ = conn.Close()
		return
	case <-r.Context().Done():
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (h *Hub) dispatch(client *Client, message Message) {
	h.handlerMu.RLock()
	handler := h.handler
	h.handlerMu.RUnlock()

	if handler == nil {
		h.logger.Debug("Ignoring client message", zap.String("client_id", client.id), zap.String("type", message.Type))
		return
	}
	handler(message)
}
