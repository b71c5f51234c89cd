package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rkrmr33/bukber/internal/models"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Participants open the app from any device on the venue network
	},
}

// SnapshotSource provides the state pushed to subscribers
type SnapshotSource interface {
	ListParticipants(ctx context.Context) ([]models.Participant, error)
	GetConfig(ctx context.Context) (models.EventConfig, error)
}

// Hub pushes full snapshots to every websocket subscriber
type Hub struct {
	source SnapshotSource

	// publishMu orders snapshot reads with their delivery, so a subscriber
	// never receives an older snapshot after a newer one.
	publishMu   sync.Mutex
	closed      bool
	connections map[*websocket.Conn]struct{}
	connMu      sync.RWMutex
}

// NewHub creates a hub reading snapshots from source
func NewHub(source SnapshotSource) *Hub {
	return &Hub{
		source:      source,
		connections: make(map[*websocket.Conn]struct{}),
	}
}

// Count returns the number of connected subscribers
func (h *Hub) Count() int {
	h.connMu.RLock()
	defer h.connMu.RUnlock()
	return len(h.connections)
}

// ServeWS upgrades the request and keeps the subscriber until it disconnects.
// The current participants and config are sent immediately.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	slog.Info("WebSocket connection request", "remote_addr", r.RemoteAddr)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade error", "error", err, "remote_addr", r.RemoteAddr)
		return
	}

	h.publishMu.Lock()
	if h.closed {
		h.publishMu.Unlock()
		goAway(conn)
		conn.Close()
		return
	}
	h.connMu.Lock()
	h.connections[conn] = struct{}{}
	h.connMu.Unlock()
	h.sendSnapshots(r.Context(), conn)
	h.publishMu.Unlock()

	slog.Info("WebSocket connection established", "remote_addr", r.RemoteAddr, "subscribers", h.Count())

	defer func() {
		h.connMu.Lock()
		delete(h.connections, conn)
		h.connMu.Unlock()
		conn.Close()
		slog.Info("WebSocket connection closed", "remote_addr", r.RemoteAddr)
	}()

	// Subscribers never send anything; reading detects disconnection
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// PublishParticipants sends the current participant snapshot to everyone
func (h *Hub) PublishParticipants(ctx context.Context) {
	h.publishMu.Lock()
	defer h.publishMu.Unlock()

	list, err := h.source.ListParticipants(ctx)
	if err != nil {
		slog.Error("Publish failed to list participants", "error", err)
		return
	}
	h.broadcast(participantsMessage(list))
}

// PublishConfig sends the current config snapshot to everyone
func (h *Hub) PublishConfig(ctx context.Context) {
	h.publishMu.Lock()
	defer h.publishMu.Unlock()

	cfg, err := h.source.GetConfig(ctx)
	if err != nil {
		slog.Error("Publish failed to get config", "error", err)
		return
	}
	h.broadcast(configMessage(cfg))
}

// Close disconnects every subscriber and turns away new ones. It waits for
// any publish in flight, so no frame is written to a closing connection.
func (h *Hub) Close() {
	h.publishMu.Lock()
	defer h.publishMu.Unlock()
	h.closed = true

	h.connMu.Lock()
	defer h.connMu.Unlock()
	for conn := range h.connections {
		goAway(conn)
		conn.Close()
		delete(h.connections, conn)
	}
}

func goAway(conn *websocket.Conn) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
		time.Now().Add(writeWait))
}

func (h *Hub) sendSnapshots(ctx context.Context, conn *websocket.Conn) {
	list, err := h.source.ListParticipants(ctx)
	if err != nil {
		slog.Error("WebSocket failed to list participants", "error", err)
	} else {
		h.send(conn, participantsMessage(list))
	}

	cfg, err := h.source.GetConfig(ctx)
	if err != nil {
		slog.Error("WebSocket failed to get config", "error", err)
	} else {
		h.send(conn, configMessage(cfg))
	}
}

func (h *Hub) broadcast(msg models.WebSocketMessage) {
	h.connMu.RLock()
	defer h.connMu.RUnlock()

	for conn := range h.connections {
		h.send(conn, msg)
	}
}

func (h *Hub) send(conn *websocket.Conn, msg models.WebSocketMessage) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		slog.Error("Error broadcasting message", "error", err, "msg_type", msg.Type)
	}
}

func participantsMessage(list []models.Participant) models.WebSocketMessage {
	return models.WebSocketMessage{
		Type:    models.MessageTypeParticipants,
		Payload: models.PublicParticipants(list),
	}
}

func configMessage(cfg models.EventConfig) models.WebSocketMessage {
	return models.WebSocketMessage{
		Type:    models.MessageTypeConfig,
		Payload: cfg,
	}
}
