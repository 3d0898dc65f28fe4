package relay

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"tutorhub/internal/presence"
	"tutorhub/internal/session"
	"tutorhub/pkg/interfaces"
	"tutorhub/pkg/types"
)

// event is one unit of work for the relay loop: either a parsed frame or a
// disconnect for the connection.
type event struct {
	conn       interfaces.Conn
	frame      *Frame
	disconnect bool
}

// Relay dispatches session events between the two participants of each
// session. All events run through a single loop in arrival order, so
// registry and coordinator mutations never interleave; a slow persist
// finishes before the next event for any connection is processed.
type Relay struct {
	coordinator *session.Coordinator
	registry    *presence.Registry

	events   chan event
	shutdown chan struct{}

	// clients is every attached connection, joined or not; the session list
	// broadcast goes to all of them.
	clientsMu sync.RWMutex
	clients   map[interfaces.Conn]struct{}

	running bool
	mu      sync.RWMutex
}

// NewRelay creates a relay. The event buffer absorbs whiteboard bursts
// without blocking connection read loops.
func NewRelay(coordinator *session.Coordinator, registry *presence.Registry) *Relay {
	return &Relay{
		coordinator: coordinator,
		registry:    registry,
		events:      make(chan event, 1000),
		shutdown:    make(chan struct{}),
		clients:     make(map[interfaces.Conn]struct{}),
	}
}

// Start begins event processing.
func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return ErrRelayAlreadyRunning
	}
	r.running = true
	r.mu.Unlock()

	log.Println("Starting event relay...")
	go r.run(ctx)
	return nil
}

// Stop shuts down the event loop.
func (r *Relay) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return ErrRelayNotRunning
	}
	r.running = false

	select {
	case <-r.shutdown:
	default:
		close(r.shutdown)
	}
	return nil
}

// Attach registers a connection for global broadcasts. Called by the
// transport as soon as the connection is established.
func (r *Relay) Attach(conn interfaces.Conn) {
	r.clientsMu.Lock()
	r.clients[conn] = struct{}{}
	r.clientsMu.Unlock()
}

// HandleFrame queues a raw inbound frame from a connection.
func (r *Relay) HandleFrame(conn interfaces.Conn, data []byte) error {
	r.mu.RLock()
	if !r.running {
		r.mu.RUnlock()
		return ErrRelayNotRunning
	}
	r.mu.RUnlock()

	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return ErrInvalidFrame
	}
	if frame.Type == "" {
		return ErrInvalidFrame
	}

	select {
	case r.events <- event{conn: conn, frame: &frame}:
		return nil
	default:
		return ErrEventChannelFull
	}
}

// Disconnect queues the leave for a dropped connection. Safe to call for
// connections that never joined a session.
func (r *Relay) Disconnect(conn interfaces.Conn) {
	r.clientsMu.Lock()
	delete(r.clients, conn)
	r.clientsMu.Unlock()

	r.mu.RLock()
	running := r.running
	r.mu.RUnlock()
	if !running {
		return
	}

	select {
	case r.events <- event{conn: conn, disconnect: true}:
	default:
		// Process inline rather than lose the leave; the registry tolerates
		// concurrent access and leave is idempotent.
		r.handleDisconnect(conn)
	}
}

// run is the single relay loop.
func (r *Relay) run(ctx context.Context) {
	defer log.Println("Event relay stopped")

	for {
		select {
		case ev := <-r.events:
			if ev.disconnect {
				r.handleDisconnect(ev.conn)
			} else {
				r.handleFrame(ctx, ev.conn, ev.frame)
			}
		case <-r.shutdown:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (r *Relay) handleFrame(ctx context.Context, conn interfaces.Conn, frame *Frame) {
	switch frame.Type {
	case EventJoin:
		r.handleJoin(ctx, conn, frame)
	case EventList:
		r.broadcastSessionList()
	case EventMessage:
		r.handleMessage(ctx, conn, frame)
	case EventTyping, EventNotTyping:
		r.handleTyping(ctx, conn, frame)
	case EventEnd:
		r.handleEnd(ctx, conn, frame)
	default:
		if fwd, ok := forwards[frame.Type]; ok {
			r.handleForward(ctx, conn, frame, fwd.out, fwd.includeSender)
			return
		}
		log.Printf("Dropping unknown event type %q", frame.Type)
	}
}

func (r *Relay) handleJoin(ctx context.Context, conn interfaces.Conn, frame *Frame) {
	if frame.SessionID == "" || frame.User == nil {
		r.sendError(conn, "join requires a sessionId and user")
		return
	}

	joined, err := r.coordinator.Join(ctx, frame.SessionID, *frame.User, conn)
	if err != nil {
		log.Printf("Could not join session %s: %v", frame.SessionID, err)
		r.sendError(conn, err.Error())
		return
	}

	r.broadcastSessionList()
	r.toSession(joined.ID, r.sessionChange(joined))
}

func (r *Relay) handleMessage(ctx context.Context, conn interfaces.Conn, frame *Frame) {
	user, sess, ok := r.authorize(conn, frame)
	if !ok {
		return
	}

	message, err := r.coordinator.SaveMessage(ctx, sess.ID, user, frame.Contents)
	if err != nil {
		log.Printf("Failed to save message in session %s: %v", sess.ID, err)
		r.sendError(conn, err.Error())
		return
	}

	r.toSession(sess.ID, map[string]interface{}{
		"type":        "messageSend",
		"contents":    message.Contents,
		"name":        user.FirstName,
		"email":       user.Email,
		"isVolunteer": user.IsVolunteer(),
		"picture":     user.Picture,
		"time":        message.CreatedAt,
	})
}

func (r *Relay) handleTyping(ctx context.Context, conn interfaces.Conn, frame *Frame) {
	user, sess, ok := r.authorize(conn, frame)
	if !ok {
		return
	}

	if frame.Type == EventTyping {
		r.toOthers(sess.ID, conn, map[string]interface{}{
			"type": "is-typing",
			"name": user.FirstName,
		})
	} else {
		r.toOthers(sess.ID, conn, map[string]interface{}{
			"type": "not-typing",
		})
	}
}

func (r *Relay) handleEnd(ctx context.Context, conn interfaces.Conn, frame *Frame) {
	_, sess, ok := r.authorize(conn, frame)
	if !ok {
		return
	}

	ended, err := r.coordinator.End(ctx, sess.ID, frame.WhiteboardURL)
	if err != nil {
		log.Printf("Failed to end session %s: %v", sess.ID, err)
		r.sendError(conn, err.Error())
		return
	}

	r.toOthers(ended.ID, conn, map[string]interface{}{
		"type":          "end",
		"sessionId":     ended.ID,
		"whiteboardUrl": ended.WhiteboardURL,
	})
}

// handleForward relays an opaque whiteboard event to the session group.
func (r *Relay) handleForward(ctx context.Context, conn interfaces.Conn, frame *Frame, out string, includeSender bool) {
	_, sess, ok := r.authorize(conn, frame)
	if !ok {
		return
	}

	msg := map[string]interface{}{
		"type":    out,
		"payload": frame.Payload,
	}
	if includeSender {
		r.toSession(sess.ID, msg)
	} else {
		r.toOthers(sess.ID, conn, msg)
	}
}

func (r *Relay) handleDisconnect(conn interfaces.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sess, err := r.coordinator.Leave(ctx, conn)
	if err != nil {
		log.Printf("Error leaving session: %v", err)
	}
	if sess == nil {
		return
	}

	r.toSession(sess.ID, r.sessionChange(sess))
	r.broadcastSessionList()
}

// sessionChange builds the session-change payload with participant
// references resolved to the joined user records.
func (r *Relay) sessionChange(sess *types.Session) map[string]interface{} {
	view := sessionView{Session: sess, Student: sess.StudentID}
	if user, ok := r.registry.Participant(sess.ID, sess.StudentID); ok {
		view.Student = user
	}
	if sess.VolunteerID != "" {
		view.Volunteer = sess.VolunteerID
		if user, ok := r.registry.Participant(sess.ID, sess.VolunteerID); ok {
			view.Volunteer = user
		}
	}
	return map[string]interface{}{
		"type":    "session-change",
		"session": view,
	}
}

// authorize resolves the connection's bound identity and checks it against
// the current membership of the frame's session. Stale events from removed
// connections and events from non-participants are dropped here, never
// forwarded or persisted.
func (r *Relay) authorize(conn interfaces.Conn, frame *Frame) (types.User, *types.Session, bool) {
	if frame.SessionID == "" {
		return types.User{}, nil, false
	}

	user, bound := r.registry.UserByConn(conn)
	if !bound {
		log.Printf("Dropping %s event from unbound connection", frame.Type)
		return types.User{}, nil, false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	sess, err := r.coordinator.GetByID(ctx, frame.SessionID)
	if err != nil {
		log.Printf("Dropping %s event for unknown session %s", frame.Type, frame.SessionID)
		return types.User{}, nil, false
	}

	if !r.coordinator.IsParticipant(sess, user) {
		log.Printf("Dropping %s event from non-participant %s in session %s", frame.Type, user.ID, sess.ID)
		return types.User{}, nil, false
	}

	return user, sess, true
}

// broadcastSessionList sends the live session snapshot to every attached
// client.
func (r *Relay) broadcastSessionList() {
	msg := map[string]interface{}{
		"type":     "sessions",
		"sessions": r.coordinator.List(),
	}

	r.clientsMu.RLock()
	conns := make([]interfaces.Conn, 0, len(r.clients))
	for conn := range r.clients {
		conns = append(conns, conn)
	}
	r.clientsMu.RUnlock()

	for _, conn := range conns {
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("Failed to send session list: %v", err)
		}
	}
}

// toSession delivers to every connection in the session group. Delivery
// continues past individual failures.
func (r *Relay) toSession(sessionID string, v interface{}) {
	for _, conn := range r.registry.Connections(sessionID) {
		if err := conn.WriteJSON(v); err != nil {
			log.Printf("Failed to deliver to session %s: %v", sessionID, err)
		}
	}
}

// toOthers delivers to the session group excluding the sender.
func (r *Relay) toOthers(sessionID string, sender interfaces.Conn, v interface{}) {
	for _, conn := range r.registry.Connections(sessionID) {
		if conn == sender {
			continue
		}
		if err := conn.WriteJSON(v); err != nil {
			log.Printf("Failed to deliver to session %s: %v", sessionID, err)
		}
	}
}

func (r *Relay) sendError(conn interfaces.Conn, message string) {
	err := conn.WriteJSON(map[string]interface{}{
		"type":  "error",
		"error": message,
	})
	if err != nil {
		log.Printf("Failed to send error to client: %v", err)
	}
}
