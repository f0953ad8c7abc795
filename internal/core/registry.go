// Package core implements the presence and room coordination layer: the
// connection registry, room manager, presence aggregator, message dispatcher,
// status scheduler, and typing notifier.
package core

import (
	"errors"
	"log"
	"sync"

	"messenger-ws/internal/domain"
)

// ErrNoIdentity is returned when a connection registers without a bound user
// or session identity. No state is created in that case.
var ErrNoIdentity = errors.New("connection has no user or session identity")

// ErrIdentityMismatch is returned when a known session re-registers under a
// different user.
var ErrIdentityMismatch = errors.New("session is bound to a different user")

// ErrUnknownSession is returned for operations on a session that was never
// registered or has been released.
var ErrUnknownSession = errors.New("unknown session")

// EventWriter is the transport half of a connection: anything that can carry
// an outbound event to one client. *websocket.Conn satisfies it via WriteJSON.
type EventWriter interface {
	WriteJSON(v interface{}) error
}

// Connection is one live transport connection bound to a logical session.
// Writes are serialized through a per-connection mutex so concurrent
// broadcasts never interleave frames.
type Connection struct {
	ID        string
	SessionID string
	UserID    string

	writer  EventWriter
	writeMu sync.Mutex
}

// Send writes one event to the connection. Panics from a torn-down transport
// are recovered and reported as an error instead of crashing the caller.
func (c *Connection) Send(ev domain.ServerEvent) (err error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic writing to connection %s: %v", c.ID, r)
			err = errors.New("connection write panicked")
		}
	}()
	return c.writer.WriteJSON(ev)
}

type sessionState struct {
	userID string
	connID string
	rooms  map[domain.RoomKey]bool
}

// Registry tracks every live connection's session identity, bound user, and
// set of joined rooms. All mutation happens under one mutex; the registry is
// the single owner of this state (no external actor mutates it directly).
type Registry struct {
	mu       sync.RWMutex
	conns    map[string]*Connection
	sessions map[string]*sessionState
}

func NewRegistry() *Registry {
	return &Registry{
		conns:    make(map[string]*Connection),
		sessions: make(map[string]*sessionState),
	}
}

// Register records a new connection for the given (userID, sessionID) pair.
// Registration is idempotent per pair: a reconnecting session reuses its
// logical identity (including joined rooms) instead of creating a duplicate.
func (r *Registry) Register(connID, sessionID, userID string, w EventWriter) (*Connection, error) {
	if userID == "" || sessionID == "" {
		return nil, ErrNoIdentity
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[sessionID]
	if ok {
		if sess.userID != userID {
			return nil, ErrIdentityMismatch
		}
		// Same logical session on a fresh transport: the new connection
		// supersedes the old one, room bindings survive.
		if old, exists := r.conns[sess.connID]; exists && old.ID != connID {
			delete(r.conns, old.ID)
		}
		sess.connID = connID
	} else {
		sess = &sessionState{
			userID: userID,
			connID: connID,
			rooms:  make(map[domain.RoomKey]bool),
		}
		r.sessions[sessionID] = sess
	}

	conn := &Connection{ID: connID, SessionID: sessionID, UserID: userID, writer: w}
	r.conns[connID] = conn
	log.Printf("Registered connection %s (session %s, user %s). Total connections: %d",
		connID, sessionID, userID, len(r.conns))
	return conn, nil
}

// BindRoom adds the session to a room. It reports whether the binding is new;
// re-binding an already joined room is a no-op.
func (r *Registry) BindRoom(sessionID string, room domain.RoomKey) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[sessionID]
	if !ok {
		return false, ErrUnknownSession
	}
	if sess.rooms[room] {
		return false, nil
	}
	sess.rooms[room] = true
	return true, nil
}

// IsMember reports whether the session is currently bound to the room.
func (r *Registry) IsMember(sessionID string, room domain.RoomKey) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[sessionID]
	return ok && sess.rooms[room]
}

// Rooms returns a snapshot of the rooms the session has joined.
func (r *Registry) Rooms(sessionID string) []domain.RoomKey {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[sessionID]
	if !ok {
		return nil
	}
	rooms := make([]domain.RoomKey, 0, len(sess.rooms))
	for room := range sess.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// Release removes the connection and, when it is still the session's current
// transport, tears down the session and all its room bindings. It returns the
// session identity so the caller can recompute presence. A connection that
// was already superseded by a reconnect releases nothing.
func (r *Registry) Release(connID string) (sessionID, userID string, released bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return "", "", false
	}
	delete(r.conns, connID)

	sess, ok := r.sessions[conn.SessionID]
	if !ok || sess.connID != connID {
		return "", "", false
	}
	delete(r.sessions, conn.SessionID)
	log.Printf("Released connection %s (session %s, user %s). Total connections: %d",
		connID, conn.SessionID, conn.UserID, len(r.conns))
	return conn.SessionID, conn.UserID, true
}

// ConnectionsInRoom returns a snapshot of every connection whose session is
// bound to the room.
func (r *Registry) ConnectionsInRoom(room domain.RoomKey) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var targets []*Connection
	for _, conn := range r.conns {
		sess, ok := r.sessions[conn.SessionID]
		if ok && sess.connID == conn.ID && sess.rooms[room] {
			targets = append(targets, conn)
		}
	}
	return targets
}

// Connections returns a snapshot of all live connections.
func (r *Registry) Connections() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		all = append(all, conn)
	}
	return all
}

// ConnectionForSession returns the session's current connection, if any.
func (r *Registry) ConnectionForSession(sessionID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[sessionID]
	if !ok {
		return nil, false
	}
	conn, ok := r.conns[sess.connID]
	return conn, ok
}

// SessionUser returns the user bound to a session.
func (r *Registry) SessionUser(sessionID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[sessionID]
	if !ok {
		return "", false
	}
	return sess.userID, true
}
