package session

import "errors"

var (
	ErrMissingUserID   = errors.New("cannot act on a session without a user ID")
	ErrVolunteerCreate = errors.New("volunteers cannot create new sessions")
	ErrMissingType     = errors.New("must provide a type for a new session")
	ErrInvalidType     = errors.New("not a valid session type")
	ErrSessionEnded    = errors.New("session has ended")
)
