package types

import (
	"time"
)

// User roles. A session is always opened by a student; a volunteer may join
// later to tutor it.
const (
	RoleStudent   = "student"
	RoleVolunteer = "volunteer"
)

// User is the resolved identity attached to a connection at join time.
// It is supplied by the auth layer and treated as a value; the core never
// mutates or re-derives it from event payloads.
type User struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	FirstName string `json:"firstname,omitempty"`
	Email     string `json:"email,omitempty"`
	Picture   string `json:"picture,omitempty"`
	TestUser  bool   `json:"isTestUser,omitempty"`
}

// IsVolunteer reports whether the user tutors rather than requests help.
func (u *User) IsVolunteer() bool {
	return u.Role == RoleVolunteer
}

// Session is the persisted tutoring session record.
// Invariant: exactly one student, at most one volunteer. EndedAt set means the
// session is terminal and accepts no further joins or messages.
type Session struct {
	ID                string     `json:"id" db:"id"`
	StudentID         string     `json:"student" db:"student_id"`
	VolunteerID       string     `json:"volunteer,omitempty" db:"volunteer_id"`
	Type              string     `json:"type" db:"type"`
	SubTopic          string     `json:"subTopic" db:"sub_topic"`
	Messages          []Message  `json:"messages"`
	WhiteboardURL     string     `json:"whiteboardUrl,omitempty" db:"whiteboard_url"`
	CreatedAt         time.Time  `json:"createdAt" db:"created_at"`
	EndedAt           *time.Time `json:"endedAt,omitempty" db:"ended_at"`
	VolunteerJoinedAt *time.Time `json:"volunteerJoinedAt,omitempty" db:"volunteer_joined_at"`
}

// Ended reports whether the session is terminal.
func (s *Session) Ended() bool {
	return s.EndedAt != nil
}

// Message is one chat message within a session. The message sequence is
// append-only; ordering is insertion order.
type Message struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"user"`
	Contents  string    `json:"contents"`
	CreatedAt time.Time `json:"createdAt"`
}
