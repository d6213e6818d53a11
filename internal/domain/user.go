// Package domain contains entity without logic, just meta-data
package domain

import "errors"

const MaxUserIDLen = 36

var (
	ErrUserIDEmpty   = errors.New("user id empty")
	ErrUserIDTooLong = errors.New("user id too long")
)

// UserID is an opaque UUID-like identifier issued by the identity provider.
// It must be stable, comparable and collision-free: the initiator election
// breaks role ties by lexicographic comparison of UserIDs, so changing the
// id format changes who offers first.
type UserID string

// Role is the platform role a participant joins with.
type Role string

const (
	RoleInstructor Role = "instructor"
	RoleLearner    Role = "learner"
	RoleObserver   Role = "observer"
	// RoleBusinessPartner runs sessions on behalf of a business account and
	// is treated as operator-class everywhere an instructor is.
	RoleBusinessPartner Role = "business_partner"
)

// IsOperatorClass reports whether the role owns sessions: operator-class
// roles may end a session and initiate calls toward learners.
func (r Role) IsOperatorClass() bool {
	return r == RoleInstructor || r == RoleBusinessPartner
}

func ValidateUserID(id UserID) error {
	if len(id) == 0 {
		return ErrUserIDEmpty
	}
	if len(id) > MaxUserIDLen {
		return ErrUserIDTooLong
	}
	return nil
}
