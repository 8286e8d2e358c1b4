// Package ws keeps per-user websocket sessions for inline notification
// delivery. Delivery is best effort: a user with no open socket simply
// misses the frame, the durable channels carry the message anyway.
package ws

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Frame is the JSON payload pushed to connected clients.
type Frame struct {
	Type    string         `json:"type"`
	Title   string         `json:"title"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// Hub tracks the open sockets per user id. A user may hold several sessions
// (one per device or tab); Publish fans out to all of them.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu       sync.RWMutex
	sessions map[string]map[*session]struct{}
}

type session struct {
	conn *websocket.Conn
	// writeMu serialises writes; gorilla connections allow one writer at a time.
	writeMu sync.Mutex
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger:   logger,
		sessions: make(map[string]map[*session]struct{}),
	}
}

// Handle upgrades the request and parks the connection until the client
// disconnects. The user is identified by the user_id query parameter.
func (h *Hub) Handle(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id query parameter is required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	s := &session{conn: conn}
	h.add(userID, s)
	h.logger.Info("websocket session opened", zap.String("user_id", userID))

	// Drain reads so close frames and pings are processed. Client payloads
	// are ignored: this socket is push-only.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.remove(userID, s)
	_ = conn.Close()
	h.logger.Info("websocket session closed", zap.String("user_id", userID))
}

// Publish pushes a frame to every open session for the user. It reports how
// many sessions received the frame; zero means the user was not connected.
func (h *Hub) Publish(_ context.Context, userID string, frame Frame) int {
	h.mu.RLock()
	targets := make([]*session, 0, len(h.sessions[userID]))
	for s := range h.sessions[userID] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		s.writeMu.Lock()
		err := s.conn.WriteJSON(frame)
		s.writeMu.Unlock()
		if err != nil {
			h.logger.Debug("websocket write failed",
				zap.String("user_id", userID), zap.Error(err))
			continue
		}
		delivered++
	}
	return delivered
}

// Connected reports whether the user has at least one open session.
func (h *Hub) Connected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[userID]) > 0
}

func (h *Hub) add(userID string, s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sessions[userID] == nil {
		h.sessions[userID] = make(map[*session]struct{})
	}
	h.sessions[userID][s] = struct{}{}
}

func (h *Hub) remove(userID string, s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions[userID], s)
	if len(h.sessions[userID]) == 0 {
		delete(h.sessions, userID)
	}
}
