package domain

import "time"

// SessionID names the interview session a room is matched under.
type SessionID string

// Participant is a user's membership record inside a room.
// No transport or lifecycle logic here.
type Participant struct {
	UserID   UserID    `json:"userId"`
	Role     Role      `json:"role"`
	JoinedAt time.Time `json:"joinedAt"`
}

// NewParticipant avoids raw literals in adapters and keeps construction obvious.
func NewParticipant(id UserID, role Role) Participant {
	return Participant{UserID: id, Role: role, JoinedAt: time.Now()}
}

// SessionStatus mirrors the booking platform's session lifecycle.
type SessionStatus string

const (
	SessionScheduled SessionStatus = "scheduled"
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionCancelled SessionStatus = "cancelled"
)

// Ended reports whether a session can no longer be joined or rejoined.
func (s SessionStatus) Ended() bool {
	return s == SessionCompleted || s == SessionCancelled
}
