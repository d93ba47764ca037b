package server

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tabwarden/tabwarden/internal/model"
)

// writeTimeout bounds a single frame write to a page session.
const writeTimeout = 5 * time.Second

// ErrTabNotConnected is returned when a directive targets a tab with
// no live session. The engine counts it as a delivery failure.
var ErrTabNotConnected = errors.New("tab not connected")

// session is one page websocket. Gorilla connections allow a single
// concurrent writer, so every write goes through the mutex.
type session struct {
	conn *websocket.Conn

	mu sync.Mutex
}

func newSession(conn *websocket.Conn) *session {
	return &session{conn: conn}
}

func (s *session) send(env model.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteJSON(env)
}

func (s *session) close() {
	s.conn.Close()
}

// hub tracks live page sessions by tab id and implements the engine's
// Sender.
type hub struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

func newHub() *hub {
	return &hub{sessions: make(map[string]*session)}
}

// add registers a session. A reconnect for the same tab displaces the
// old socket.
func (h *hub) add(tabID string, s *session) {
	h.mu.Lock()
	old := h.sessions[tabID]
	h.sessions[tabID] = s
	h.mu.Unlock()
	if old != nil && old != s {
		old.close()
	}
}

// remove drops a session unless a reconnect already replaced it.
func (h *hub) remove(tabID string, s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sessions[tabID] == s {
		delete(h.sessions, tabID)
	}
}

func (h *hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// SendToTab delivers one envelope to one tab.
func (h *hub) SendToTab(tabID string, env model.Envelope) error {
	h.mu.RLock()
	s := h.sessions[tabID]
	h.mu.RUnlock()
	if s == nil {
		return ErrTabNotConnected
	}
	return s.send(env)
}

// Broadcast delivers one envelope to every tab, best effort. A dead
// socket fails its own write and gets cleaned up by its read loop.
func (h *hub) Broadcast(env model.Envelope) {
	h.mu.RLock()
	sessions := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		_ = s.send(env)
	}
}
