package interfaces

import (
	"context"

	"tutorhub/pkg/types"
)

// SessionStore is the persisted-store collaborator. Implementations must make
// Save an atomic update of the session row plus any newly appended messages.
type SessionStore interface {
	// Find loads a session with its message history.
	// Returns ErrSessionNotFound when the id is unknown.
	Find(ctx context.Context, sessionID string) (*types.Session, error)

	// Save persists the session and any messages not yet stored.
	Save(ctx context.Context, session *types.Session) error

	// FindCurrent returns the latest un-ended session the user participates
	// in with the given role, or ErrSessionNotFound.
	FindCurrent(ctx context.Context, userID, role string) (*types.Session, error)

	// HealthCheck validates store connectivity.
	HealthCheck(ctx context.Context) error

	Close() error
}
