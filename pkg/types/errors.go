package types

import "errors"

var (
	ErrMissingUserID = errors.New("user ID is required")
	ErrInvalidRole   = errors.New("invalid role: must be 'student' or 'volunteer'")
)
