package core

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/edforge/interview/internal/domain"
)

// Member pairs a participant's room entry with its live transport handle.
type Member struct {
	Meta domain.Participant
	Conn SignalConnection
}

// room is the per-session participant set. Only the registry touches it,
// always under the registry lock.
type room struct {
	sessionID    domain.SessionID
	createdAt    time.Time
	participants map[domain.UserID]Member
}

// RegistryStats is the operational summary across all rooms.
type RegistryStats struct {
	Rooms        int `json:"totalRooms"`
	Participants int `json:"totalParticipants"`
}

// Registry is the authoritative map of session id to participant set.
// A room exists here if and only if it has at least one participant:
// rooms are created on first join and removed atomically with the
// departure of their last participant, never on a timer.
//
// One lock guards the room map and every participant set, so concurrent
// joins and leaves on the same room can never lose updates.
type Registry struct {
	mu    sync.RWMutex
	rooms map[domain.SessionID]*room
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[domain.SessionID]*room)}
}

// AddParticipant registers p in the session's room, creating the room on
// first join. A second join by the same user replaces the stale entry,
// which is what makes reconnect-without-explicit-leave safe.
func (r *Registry) AddParticipant(sid domain.SessionID, p domain.Participant, conn SignalConnection) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[sid]
	if !ok {
		rm = &room{
			sessionID:    sid,
			createdAt:    time.Now(),
			participants: make(map[domain.UserID]Member),
		}
		r.rooms[sid] = rm
		log.Info().Str("module", "core.registry").Str("session", string(sid)).Msg("room created")
	}
	rm.participants[p.UserID] = Member{Meta: p, Conn: conn}
	log.Info().Str("module", "core.registry").Str("session", string(sid)).Str("user", string(p.UserID)).Msg("participant added")
	return len(rm.participants)
}

// RemoveParticipant deletes the user's entry and, when the set becomes
// empty, the room itself. This is the sole room-deletion path. Idempotent:
// removing an absent participant reports ok=false and changes nothing.
func (r *Registry) RemoveParticipant(sid domain.SessionID, uid domain.UserID) (remaining int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, found := r.rooms[sid]
	if !found {
		return 0, false
	}
	if _, found = rm.participants[uid]; !found {
		return len(rm.participants), false
	}
	return r.removeLocked(rm, sid, uid), true
}

// RemoveParticipantIf removes the entry only while the registry still
// points at conn. A connection that lost a reconnect race to a fresh
// socket matches nothing here and must not evict the live entry.
func (r *Registry) RemoveParticipantIf(sid domain.SessionID, uid domain.UserID, conn SignalConnection) (remaining int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, found := r.rooms[sid]
	if !found {
		return 0, false
	}
	m, found := rm.participants[uid]
	if !found || m.Conn != conn {
		return len(rm.participants), false
	}
	return r.removeLocked(rm, sid, uid), true
}

// removeLocked deletes the entry and the room with it when it empties.
// Caller holds r.mu.
func (r *Registry) removeLocked(rm *room, sid domain.SessionID, uid domain.UserID) int {
	delete(rm.participants, uid)
	if len(rm.participants) == 0 {
		delete(r.rooms, sid)
		log.Info().Str("module", "core.registry").Str("session", string(sid)).Msg("room removed")
	}
	log.Info().Str("module", "core.registry").Str("session", string(sid)).Str("user", string(uid)).Msg("participant removed")
	return len(rm.participants)
}

// Find returns the session the user is currently a member of.
func (r *Registry) Find(uid domain.UserID) (domain.SessionID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for sid, rm := range r.rooms {
		if _, ok := rm.participants[uid]; ok {
			return sid, true
		}
	}
	return "", false
}

// Lookup resolves a relay target inside a room to its member record.
func (r *Registry) Lookup(sid domain.SessionID, uid domain.UserID) (Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[sid]
	if !ok {
		return Member{}, false
	}
	m, ok := rm.participants[uid]
	return m, ok
}

// Peers returns the transport handles of everyone in the room except uid.
func (r *Registry) Peers(sid domain.SessionID, except domain.UserID) []SignalConnection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[sid]
	if !ok {
		return nil
	}
	out := make([]SignalConnection, 0, len(rm.participants))
	for uid, m := range rm.participants {
		if uid == except {
			continue
		}
		out = append(out, m.Conn)
	}
	return out
}

// Snapshot returns a copy of the room's participant entries.
func (r *Registry) Snapshot(sid domain.SessionID) ([]domain.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[sid]
	if !ok {
		return nil, false
	}
	out := make([]domain.Participant, 0, len(rm.participants))
	for _, m := range rm.participants {
		out = append(out, m.Meta)
	}
	return out, true
}

// ParticipantCount reports the room size; 0 means the room does not exist.
func (r *Registry) ParticipantCount(sid domain.SessionID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[sid]
	if !ok {
		return 0
	}
	return len(rm.participants)
}

// Stats aggregates room and participant counts for the monitoring surface.
func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := RegistryStats{Rooms: len(r.rooms)}
	for _, rm := range r.rooms {
		s.Participants += len(rm.participants)
	}
	return s
}
