package dispatch

import (
	"errors"
	"sync"

	"github.com/gorilla/websocket"
)

var ErrNoSession = errors.New("no ws session")

// WSSession is one connected provider app.
type WSSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *WSSession) Send(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(ev)
}

// WSRegistry holds provider sessions for job-offer pushes.
type WSRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*WSSession
}

func NewWSRegistry() *WSRegistry {
	return &WSRegistry{sessions: make(map[string]*WSSession)}
}

func (r *WSRegistry) Add(providerID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[providerID] = &WSSession{conn: conn}
}

// Remove drops the session for providerID if it still owns conn. A session
// replaced by a reconnect stays in place when the old read loop exits late.
func (r *WSRegistry) Remove(providerID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[providerID]; ok && s.conn == conn {
		delete(r.sessions, providerID)
	}
}

func (r *WSRegistry) Notify(providerID string, ev Event) error {
	r.mu.RLock()
	s, ok := r.sessions[providerID]
	r.mu.RUnlock()
	if !ok {
		return ErrNoSession
	}
	return s.Send(ev)
}
