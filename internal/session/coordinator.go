package session

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"tutorhub/internal/presence"
	"tutorhub/pkg/interfaces"
	"tutorhub/pkg/types"
)

// Coordinator bridges the presence registry with the persisted session store
// and enforces the role-based join rules. It is the only component permitted
// to bind or unbind connections in the registry.
type Coordinator struct {
	store      interfaces.SessionStore
	registry   *presence.Registry
	notifier   interfaces.Notifier
	validTypes []string
}

// NewCoordinator creates a coordinator. validTypes is the configured list of
// session types students may open; matching is case-insensitive.
func NewCoordinator(store interfaces.SessionStore, registry *presence.Registry, notifier interfaces.Notifier, validTypes []string) *Coordinator {
	return &Coordinator{
		store:      store,
		registry:   registry,
		notifier:   notifier,
		validTypes: validTypes,
	}
}

// Create opens a new session for a student and pages volunteers. Volunteers
// cannot open sessions, and the type must be one of the configured valid
// types. Nothing is mutated on a validation failure.
func (c *Coordinator) Create(ctx context.Context, user types.User, sessionType, subTopic string) (*types.Session, error) {
	if user.ID == "" {
		return nil, ErrMissingUserID
	}
	if user.IsVolunteer() {
		return nil, ErrVolunteerCreate
	}
	if sessionType == "" {
		return nil, ErrMissingType
	}
	if !types.IsValidSessionType(sessionType, c.validTypes) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidType, sessionType)
	}

	session := &types.Session{
		ID:        uuid.New().String(),
		StudentID: user.ID,
		Type:      sessionType,
		SubTopic:  subTopic,
		CreatedAt: time.Now(),
	}

	if err := c.store.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	// Paging volunteers is fire-and-forget; a dead pager must not fail
	// session creation. Test users never page.
	if !user.TestUser {
		go func() {
			nctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := c.notifier.SessionWaiting(nctx, session.Type, session.SubTopic); err != nil {
				log.Printf("Failed to notify volunteers for session %s: %v", session.ID, err)
			}
		}()
	}

	log.Printf("Created session: id=%s student=%s type=%s", session.ID, session.StudentID, session.Type)
	return session, nil
}

// Join loads the persisted session, applies the role-specific participant
// mutation, persists it, and only then registers the connection. A failed
// persist never leaves a registered-but-unsaved presence; any presence the
// connection held before is dropped.
func (c *Coordinator) Join(ctx context.Context, sessionID string, user types.User, conn interfaces.Conn) (*types.Session, error) {
	if user.ID == "" {
		return nil, ErrMissingUserID
	}

	session, err := c.store.Find(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Ended() {
		return nil, ErrSessionEnded
	}

	if user.IsVolunteer() {
		session.VolunteerID = user.ID
		now := time.Now()
		session.VolunteerJoinedAt = &now
	} else {
		session.StudentID = user.ID
	}

	if err := c.store.Save(ctx, session); err != nil {
		c.registry.Leave(conn)
		c.registry.Prune()
		return nil, fmt.Errorf("failed to save session on join: %w", err)
	}

	if err := c.registry.Join(session, user, conn); err != nil {
		return nil, err
	}

	log.Printf("User %s joined session %s as %s", user.ID, session.ID, user.Role)
	return session, nil
}

// Leave unbinds the connection and prunes dead entries. The departing role's
// participant reference is retained on the persisted record so the session
// stays resumable and history shows who took part. Unbound connections are a
// benign no-op returning nil.
func (c *Coordinator) Leave(ctx context.Context, conn interfaces.Conn) (*types.Session, error) {
	user, bound := c.registry.UserByConn(conn)
	session := c.registry.Leave(conn)
	c.registry.Prune()

	if !bound || session == nil {
		log.Printf("Leave for unbound connection, ignoring")
		return session, nil
	}

	// Re-assert (not clear) the participant reference: disconnect is a
	// presence event, not a session end.
	if user.IsVolunteer() {
		session.VolunteerID = user.ID
	} else {
		session.StudentID = user.ID
	}

	if err := c.store.Save(ctx, session); err != nil {
		return session, fmt.Errorf("failed to save session on leave: %w", err)
	}

	log.Printf("User %s left session %s", user.ID, session.ID)
	return session, nil
}

// End marks the session terminal, storing the final whiteboard locator. Ended
// sessions accept no further joins or messages.
func (c *Coordinator) End(ctx context.Context, sessionID, whiteboardURL string) (*types.Session, error) {
	session, err := c.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Ended() {
		return nil, ErrSessionEnded
	}

	if whiteboardURL != "" {
		session.WhiteboardURL = whiteboardURL
	}
	now := time.Now()
	session.EndedAt = &now

	if err := c.store.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to end session: %w", err)
	}
	c.registry.Refresh(session)

	log.Printf("Ended session %s at %s", session.ID, now.Format(time.RFC3339))
	return session, nil
}

// SaveMessage appends a chat message to the session and persists it.
func (c *Coordinator) SaveMessage(ctx context.Context, sessionID string, user types.User, contents string) (*types.Message, error) {
	session, err := c.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Ended() {
		return nil, ErrSessionEnded
	}

	message := types.Message{
		ID:        uuid.New().String(),
		AuthorID:  user.ID,
		Contents:  contents,
		CreatedAt: time.Now(),
	}
	session.Messages = append(session.Messages, message)

	if err := c.store.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}
	c.registry.Refresh(session)

	return &message, nil
}

// IsParticipant reports whether the user is the session's student or its
// volunteer. A session with no volunteer yet only admits its student.
func (c *Coordinator) IsParticipant(session *types.Session, user types.User) bool {
	if session == nil || user.ID == "" {
		return false
	}
	return user.ID == session.StudentID ||
		(session.VolunteerID != "" && user.ID == session.VolunteerID)
}

// GetByID returns the live presence entry's session when one exists (fresher,
// no store round-trip), else falls back to the persisted store so ended or
// never-joined sessions still resolve.
func (c *Coordinator) GetByID(ctx context.Context, sessionID string) (*types.Session, error) {
	if session, ok := c.registry.Get(sessionID); ok {
		return session, nil
	}
	return c.store.Find(ctx, sessionID)
}

// CurrentFor returns the latest un-ended session the user participates in.
func (c *Coordinator) CurrentFor(ctx context.Context, userID, role string) (*types.Session, error) {
	return c.store.FindCurrent(ctx, userID, role)
}

// List returns the persisted snapshots of every live session.
func (c *Coordinator) List() []*types.Session {
	return c.registry.List()
}
