package signal

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/edforge/interview/internal/core"
	"github.com/edforge/interview/internal/protocol"
)

// handleEndSession lets the session owner close the room for everyone:
// the session is marked completed in the store, all participants are told
// and unregistered, and the room disappears with its last member.
func (ctl *Controller) handleEndSession(ctx context.Context, st *connState, c core.SignalConnection) {
	if st.room == "" {
		return
	}
	if !st.identity.Role.IsOperatorClass() {
		ctl.sendError(c, protocol.TypeEndSessionError, "only the instructor can end the session")
		return
	}
	sid := st.room

	if err := ctl.Store.CompleteSession(ctx, sid); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("session", string(sid)).Msg("complete session")
		ctl.sendError(c, protocol.TypeEndSessionError, "failed to end session")
		return
	}

	ended := protocol.SessionEnded{
		Type:      protocol.TypeSessionEnded,
		SessionID: sid,
		EndedBy:   st.identity.UserID,
		Reason:    "instructor_ended",
		Message:   "The interview session has been ended by the instructor.",
	}
	b, err := json.Marshal(ended)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("marshal session-ended")
		return
	}

	snap, _ := ctl.Registry.Snapshot(sid)
	for _, p := range snap {
		if m, ok := ctl.Registry.Lookup(sid, p.UserID); ok {
			_ = m.Conn.TrySend(b)
		}
		ctl.Registry.RemoveParticipant(sid, p.UserID)
	}
	st.room = ""
	log.Info().Str("module", "signal").Str("session", string(sid)).Str("by", string(st.identity.UserID)).Msg("session ended")
}

// handleReconnect re-validates access and session liveness, then reruns
// the join sequence. AddParticipant overwrites the stale entry, so a
// reconnect never duplicates the participant.
func (ctl *Controller) handleReconnect(ctx context.Context, st *connState, c core.SignalConnection, data []byte) {
	var p protocol.ReconnectRequest
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad reconnect payload")
		return
	}
	if p.SessionID == "" {
		ctl.sendError(c, protocol.TypeReconnectFailed, "missing session id")
		return
	}

	status, err := ctl.Store.SessionStatus(ctx, p.SessionID)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("session", string(p.SessionID)).Msg("session status lookup")
		ctl.sendError(c, protocol.TypeReconnectFailed, "reconnection failed")
		return
	}
	if status.Ended() {
		ctl.sendError(c, protocol.TypeReconnectFailed, "session has ended")
		return
	}

	if !ctl.joinRoom(ctx, st, c, p.SessionID) {
		ctl.sendError(c, protocol.TypeReconnectFailed, "access denied")
		return
	}
	ctl.sendJSON(c, protocol.ReconnectSuccess{
		Type:      protocol.TypeReconnectSuccess,
		SessionID: p.SessionID,
		Message:   "successfully reconnected to session",
	})
	log.Info().Str("module", "signal").Str("user", string(st.identity.UserID)).Str("session", string(p.SessionID)).Msg("reconnected")
}
