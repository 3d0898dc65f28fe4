package presence

import (
	"log"
	"sync"

	"tutorhub/pkg/interfaces"
	"tutorhub/pkg/types"
)

// binding records which session and user a connection currently belongs to.
type binding struct {
	sessionID string
	userID    string
}

// entry is the volatile presence state for one session id. It holds a
// snapshot of the persisted session (refreshed on every join, since
// participants can change out-of-band through persistence writes), the set of
// currently joined users, and one live connection per user id.
type entry struct {
	session      *types.Session
	participants map[string]types.User
	conns        map[string]interfaces.Conn
}

func (e *entry) empty() bool {
	return len(e.participants) == 0
}

// Registry maps live connections to sessions and users. It is the single
// source of truth for who is present right now; all mutation goes through the
// session coordinator. Presence is process-local and does not survive
// restarts.
//
// Connections are indexed both per-entry (userID -> Conn) and globally
// (Conn -> binding) so leave and lookup never scan bindings.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	conns   map[interfaces.Conn]binding
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		conns:   make(map[interfaces.Conn]binding),
	}
}

// Join binds conn to (session, user), creating the session's entry on first
// join. If the user already has a connection bound in this session, the prior
// connection is closed and replaced: at most one live connection per user per
// session, and an unannounced reconnect evicts the stale one.
func (r *Registry) Join(session *types.Session, user types.User, conn interfaces.Conn) error {
	if conn == nil {
		return ErrNilConnection
	}
	if user.ID == "" {
		return ErrMissingUserID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.entries[session.ID]
	if !exists {
		e = &entry{
			participants: make(map[string]types.User),
			conns:        make(map[string]interfaces.Conn),
		}
		r.entries[session.ID] = e
	}
	// Refresh the snapshot on every join.
	e.session = snapshot(session)

	if prev, ok := e.conns[user.ID]; ok && prev != conn {
		delete(r.conns, prev)
		// Close asynchronously; the evicted connection's disconnect will
		// arrive as a leave that no longer matches any binding.
		go func() {
			if err := prev.Close(); err != nil {
				log.Printf("Failed to close replaced connection for user %s: %v", user.ID, err)
			}
		}()
	}

	e.participants[user.ID] = user
	e.conns[user.ID] = conn
	r.conns[conn] = binding{sessionID: session.ID, userID: user.ID}

	return nil
}

// Leave unbinds conn and returns the session it belonged to. Unknown
// connections return nil: disconnect races are expected, so leave is
// idempotent and never an error.
func (r *Registry) Leave(conn interfaces.Conn) *types.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.conns[conn]
	if !ok {
		return nil
	}
	delete(r.conns, conn)

	e, ok := r.entries[b.sessionID]
	if !ok {
		return nil
	}

	// Only unbind if this is still the connection registered for the user;
	// a replaced connection must not remove its successor.
	if e.conns[b.userID] == conn {
		delete(e.conns, b.userID)
		delete(e.participants, b.userID)
	}

	return snapshot(e.session)
}

// UserByConn resolves the user bound to conn. The relay uses this to
// attribute inbound events to an identity instead of trusting the payload.
func (r *Registry) UserByConn(conn interfaces.Conn) (types.User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.conns[conn]
	if !ok {
		return types.User{}, false
	}
	e, ok := r.entries[b.sessionID]
	if !ok {
		return types.User{}, false
	}
	user, ok := e.participants[b.userID]
	return user, ok
}

// Get returns the live in-memory session snapshot for a session id, if any
// connection is (or was, pre-prune) bound to it. The returned value is a
// copy: callers on any goroutine may read it while the coordinator keeps
// mutating the live state.
func (r *Registry) Get(sessionID string) (*types.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[sessionID]
	if !ok {
		return nil, false
	}
	return snapshot(e.session), true
}

// Refresh replaces the live snapshot after a persisted mutation (message
// append, end). No-op for sessions with no live entry.
func (r *Registry) Refresh(session *types.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[session.ID]; ok {
		e.session = snapshot(session)
	}
}

// Participant returns the joined user record for a user id in a session.
func (r *Registry) Participant(sessionID, userID string) (types.User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[sessionID]
	if !ok {
		return types.User{}, false
	}
	user, ok := e.participants[userID]
	return user, ok
}

// Connections returns the live connections for a session, the broadcast
// group for its events.
func (r *Registry) Connections(sessionID string) []interfaces.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[sessionID]
	if !ok {
		return nil
	}
	conns := make([]interfaces.Conn, 0, len(e.conns))
	for _, conn := range e.conns {
		conns = append(conns, conn)
	}
	return conns
}

// Prune removes every entry whose participant set is empty. Runs after every
// leave to bound memory.
func (r *Registry) Prune() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for sessionID, e := range r.entries {
		if e.empty() {
			delete(r.entries, sessionID)
		}
	}
}

// List returns the persisted-session snapshot of every live entry, for
// presence broadcasts. Order is map iteration order and carries no meaning.
// Snapshots are copies, safe to encode from HTTP goroutines.
func (r *Registry) List() []*types.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]*types.Session, 0, len(r.entries))
	for _, e := range r.entries {
		sessions = append(sessions, snapshot(e.session))
	}
	return sessions
}

// snapshot copies a session, including its message slice, so entry state is
// never shared outside the registry lock.
func snapshot(s *types.Session) *types.Session {
	copied := *s
	copied.Messages = append([]types.Message(nil), s.Messages...)
	return &copied
}

// Stats returns registry counters for the health endpoint.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]int{
		"live_sessions":    len(r.entries),
		"live_connections": len(r.conns),
	}
}
