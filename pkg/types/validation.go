package types

import "strings"

// IsValidRole checks the role against the two roles the system knows.
func IsValidRole(role string) bool {
	return role == RoleStudent || role == RoleVolunteer
}

// IsValidSessionType checks a requested session type against the configured
// list. Matching is case-insensitive; "math" and "Math" name the same type.
func IsValidSessionType(sessionType string, validTypes []string) bool {
	for _, valid := range validTypes {
		if strings.EqualFold(valid, sessionType) {
			return true
		}
	}
	return false
}

// Validate ensures a user carries enough identity to act on a session.
func (u *User) Validate() error {
	if u.ID == "" {
		return ErrMissingUserID
	}
	if !IsValidRole(u.Role) {
		return ErrInvalidRole
	}
	return nil
}
