package registry

import (
	"errors"
	"sync"
)

var ErrDuplicateSession = errors.New("connection already registered")

type set map[string]struct{}

type session struct {
	userID string
	rooms  set
}

// Registry is the in-memory index of live sessions: which connection
// belongs to which user, and which conversation rooms each connection
// is subscribed to. All state is process-scoped, empty at start, and
// torn down per connection. Every operation is atomic under one lock;
// readers get copied snapshots, never aliases of internal maps.
type Registry struct {
	mu        sync.RWMutex
	sessions  map[string]*session // connID -> session
	userConns map[string]set      // userID -> connIDs
	rooms     map[string]set      // roomID -> connIDs
	typing    map[string]set      // conversationID -> userIDs currently typing
}

func New() *Registry {
	return &Registry{
		sessions:  make(map[string]*session),
		userConns: make(map[string]set),
		rooms:     make(map[string]set),
		typing:    make(map[string]set),
	}
}

// Register binds a connection to a user. Fails if the connection id is
// already registered. The returned flag reports whether this is the
// user's first live session; it is decided under the registry lock so
// two simultaneous connects cannot both (or neither) observe it.
func (r *Registry) Register(connID, userID string) (first bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[connID]; ok {
		return false, ErrDuplicateSession
	}

	r.sessions[connID] = &session{userID: userID, rooms: make(set)}
	if _, ok := r.userConns[userID]; !ok {
		r.userConns[userID] = make(set)
	}
	r.userConns[userID][connID] = struct{}{}
	return len(r.userConns[userID]) == 1, nil
}

// Unregister removes a connection and all its room subscriptions.
// It returns the userID the connection was bound to, and whether this
// was the user's last live session — decided under the lock, so presence
// never flips offline while a sibling session is still active. Calling
// it for an unknown connection is a no-op returning ok=false, so
// teardown may run more than once safely.
func (r *Registry) Unregister(connID string) (userID string, last bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, found := r.sessions[connID]
	if !found {
		return "", false, false
	}

	for roomID := range sess.rooms {
		delete(r.rooms[roomID], connID)
		if len(r.rooms[roomID]) == 0 {
			delete(r.rooms, roomID)
		}
	}

	delete(r.userConns[sess.userID], connID)
	if len(r.userConns[sess.userID]) == 0 {
		delete(r.userConns, sess.userID)
	}
	delete(r.sessions, connID)

	return sess.userID, len(r.userConns[sess.userID]) == 0, true
}

// JoinRoom subscribes a connection to a room. Joining a room the
// connection is already in, or joining from an unregistered connection,
// is a no-op.
func (r *Registry) JoinRoom(connID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[connID]
	if !ok {
		return
	}

	sess.rooms[roomID] = struct{}{}
	if _, ok := r.rooms[roomID]; !ok {
		r.rooms[roomID] = make(set)
	}
	r.rooms[roomID][connID] = struct{}{}
}

// LeaveRoom removes a connection's room subscription. Leaving a room
// the connection is not in is a no-op.
func (r *Registry) LeaveRoom(connID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[connID]
	if !ok {
		return
	}

	delete(sess.rooms, roomID)
	delete(r.rooms[roomID], connID)
	if len(r.rooms[roomID]) == 0 {
		delete(r.rooms, roomID)
	}
}

// InRoom reports whether a connection is currently subscribed to a room.
func (r *Registry) InRoom(connID, roomID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[connID]
	if !ok {
		return false
	}
	_, in := sess.rooms[roomID]
	return in
}

// RoomsOf returns the union of rooms the user's connections are
// subscribed to.
func (r *Registry) RoomsOf(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(set)
	for connID := range r.userConns[userID] {
		if sess, ok := r.sessions[connID]; ok {
			for roomID := range sess.rooms {
				seen[roomID] = struct{}{}
			}
		}
	}

	rooms := make([]string, 0, len(seen))
	for roomID := range seen {
		rooms = append(rooms, roomID)
	}
	return rooms
}

// ConnectionsInRoom returns the live connection ids subscribed to a room.
func (r *Registry) ConnectionsInRoom(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]string, 0, len(r.rooms[roomID]))
	for connID := range r.rooms[roomID] {
		conns = append(conns, connID)
	}
	return conns
}

// ConnectionsOfUser returns all live connection ids for a user.
func (r *Registry) ConnectionsOfUser(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]string, 0, len(r.userConns[userID]))
	for connID := range r.userConns[userID] {
		conns = append(conns, connID)
	}
	return conns
}

// IsUserOnline reports whether the user has at least one live session.
func (r *Registry) IsUserOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.userConns[userID]) > 0
}

// UserOf returns the user a connection is bound to.
func (r *Registry) UserOf(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[connID]
	if !ok {
		return "", false
	}
	return sess.userID, true
}
