package presence

import "errors"

var (
	ErrNilConnection = errors.New("connection cannot be nil")
	ErrMissingUserID = errors.New("cannot join a session without a user ID")
)
