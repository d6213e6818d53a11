// Package access decides whether a user may join a session room.
package access

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/edforge/interview/internal/domain"
)

// ErrNotFound is returned by Store implementations when the session or
// booking row does not exist.
var ErrNotFound = errors.New("not found")

// Store is the read side of the external booking/session storage.
type Store interface {
	// SessionOwner returns the instructor recorded for the session.
	SessionOwner(ctx context.Context, sid domain.SessionID) (domain.UserID, error)
	// HasActiveBooking reports a booking for (user, session) with status
	// confirmed or pending.
	HasActiveBooking(ctx context.Context, uid domain.UserID, sid domain.SessionID) (bool, error)
	// SessionStatus returns the session lifecycle state.
	SessionStatus(ctx context.Context, sid domain.SessionID) (domain.SessionStatus, error)
	// CompleteSession marks the session completed.
	CompleteSession(ctx context.Context, sid domain.SessionID) error
}

// Validator answers join requests against booking/ownership data. It has
// no side effects and never propagates storage failures: an unreachable
// store means not permitted (fail closed), it must not take the relay down.
type Validator struct {
	store Store
}

func NewValidator(store Store) *Validator {
	return &Validator{store: store}
}

// CanJoin permits operator-class roles only into sessions they own and
// everyone else only with a confirmed or pending booking.
func (v *Validator) CanJoin(ctx context.Context, uid domain.UserID, role domain.Role, sid domain.SessionID) bool {
	if role.IsOperatorClass() {
		owner, err := v.store.SessionOwner(ctx, sid)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				log.Error().Err(err).Str("module", "access").Str("session", string(sid)).Msg("owner lookup failed, denying")
			}
			return false
		}
		return owner == uid
	}

	ok, err := v.store.HasActiveBooking(ctx, uid, sid)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Error().Err(err).Str("module", "access").Str("user", string(uid)).Str("session", string(sid)).Msg("booking lookup failed, denying")
		}
		return false
	}
	return ok
}
