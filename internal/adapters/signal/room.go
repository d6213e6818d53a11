package signal

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/edforge/interview/internal/core"
	"github.com/edforge/interview/internal/domain"
	"github.com/edforge/interview/internal/protocol"
)

func (ctl *Controller) handleJoin(ctx context.Context, st *connState, c core.SignalConnection, data []byte) {
	var p protocol.JoinRoom
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		return
	}
	if p.SessionID == "" {
		ctl.sendError(c, protocol.TypeRoomJoinError, "missing session id")
		return
	}
	ctl.joinRoom(ctx, st, c, p.SessionID)
}

// joinRoom runs the authorize-register-announce sequence shared by
// join-room and reconnect-request. On denial nothing is registered and
// the requester alone is told.
func (ctl *Controller) joinRoom(ctx context.Context, st *connState, c core.SignalConnection, sid domain.SessionID) bool {
	id := st.identity
	if !ctl.Access.CanJoin(ctx, id.UserID, id.Role, sid) {
		log.Info().Str("module", "signal").Str("user", string(id.UserID)).Str("session", string(sid)).Msg("join denied")
		ctl.sendError(c, protocol.TypeRoomJoinError, "access denied: no valid booking found for this session")
		return false
	}

	// A user holds at most one room membership; switching rooms leaves
	// the old one first.
	if st.room != "" && st.room != sid {
		ctl.leaveRoom(st, c)
	}

	count := ctl.Registry.AddParticipant(sid, domain.NewParticipant(id.UserID, id.Role), c)
	st.room = sid

	others := make([]domain.Participant, 0, count)
	if snap, ok := ctl.Registry.Snapshot(sid); ok {
		for _, p := range snap {
			if p.UserID != id.UserID {
				others = append(others, p)
			}
		}
	}
	ctl.sendJSON(c, protocol.RoomJoined{
		Type:             protocol.TypeRoomJoined,
		SessionID:        sid,
		ParticipantCount: count,
		Participants:     others,
	})

	ctl.broadcast(sid, id.UserID, protocol.UserJoined{
		Type:             protocol.TypeUserJoined,
		UserID:           id.UserID,
		Role:             id.Role,
		ParticipantCount: count,
	})

	log.Info().Str("module", "signal").Str("user", string(id.UserID)).Str("session", string(sid)).Int("participants", count).Msg("joined room")
	return true
}

func (ctl *Controller) handleLeave(st *connState, c core.SignalConnection) {
	ctl.leaveRoom(st, c)
}

// leaveRoom removes the connection's membership and tells the rest of the
// room. Safe to call when the user is not in a room. Removal is keyed on
// the connection itself: after a reconnect the registry points at the
// fresh socket, and the stale connection's teardown must not evict it.
func (ctl *Controller) leaveRoom(st *connState, c core.SignalConnection) {
	if st.room == "" {
		return
	}
	sid, uid := st.room, st.identity.UserID
	st.room = ""

	remaining, ok := ctl.Registry.RemoveParticipantIf(sid, uid, c)
	if !ok {
		return
	}
	ctl.broadcast(sid, uid, protocol.UserLeft{
		Type:             protocol.TypeUserLeft,
		UserID:           uid,
		ParticipantCount: remaining,
	})
	log.Info().Str("module", "signal").Str("user", string(uid)).Str("session", string(sid)).Msg("left room")
}
