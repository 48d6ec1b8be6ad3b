package core

import (
	"sync"
)

// Conn is the transport side of a session. Implementations must not block:
// Send queues or fails, Probe starts a liveness check whose answer comes back
// through Hub.Pong, Close is idempotent.
type Conn interface {
	Send(frame []byte) error
	Probe()
	Close(reason string)
}

// SessionState is the lifecycle position of a session.
type SessionState int

const (
	// StateConnected means no mobile has been claimed yet.
	StateConnected SessionState = iota
	// StateIdentified means a mobile is claimed but no room is joined.
	StateIdentified
	// StateInRoom means the session is attached to a room.
	StateInRoom
	// StateClosed is terminal.
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateIdentified:
		return "identified"
	case StateInRoom:
		return "in_room"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is one live connection as seen by the core layer.
// Its fields are owned by the hub goroutine.
type Session struct {
	ID       string
	UserID   string
	Mobile   string
	Username string
	RoomID   string

	alive  bool
	closed bool
	conn   Conn
}

// NewSession constructs a session for a freshly accepted connection.
func NewSession(id string, conn Conn) *Session {
	return &Session{
		ID:    id,
		alive: true,
		conn:  conn,
	}
}

// State derives the lifecycle state from the session fields.
func (s *Session) State() SessionState {
	switch {
	case s.closed:
		return StateClosed
	case s.RoomID != "":
		return StateInRoom
	case s.Mobile != "":
		return StateIdentified
	default:
		return StateConnected
	}
}

// Alive reports whether the session answered the last probe.
func (s *Session) Alive() bool {
	return s.alive
}

// Send hands a frame to the transport.
func (s *Session) Send(frame []byte) error {
	if s.closed {
		return ErrSessionClosed
	}
	return s.conn.Send(frame)
}

func (s *Session) close(reason string) {
	if s.closed {
		return
	}
	s.closed = true
	s.conn.Close(reason)
}

// SessionRegistry tracks live sessions by id.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*Session)}
}

// Add inserts a session. Returns false if the id is taken.
func (r *SessionRegistry) Add(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[s.ID]; exists {
		return false
	}
	r.sessions[s.ID] = s
	return true
}

// Remove deletes a session. Only the first call for an id returns true.
func (r *SessionRegistry) Remove(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	delete(r.sessions, id)
	return s, true
}

// Get looks a session up by id.
func (r *SessionRegistry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	return s, ok
}

// Snapshot returns the live sessions at call time.
func (r *SessionRegistry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// ByMobile returns the live sessions that claimed mobile.
func (r *SessionRegistry) ByMobile(mobile string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Session
	for _, s := range r.sessions {
		if s.Mobile == mobile {
			out = append(out, s)
		}
	}
	return out
}

// Len returns the number of live sessions.
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
