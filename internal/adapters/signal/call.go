package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/edforge/interview/internal/core"
	"github.com/edforge/interview/internal/domain"
	"github.com/edforge/interview/internal/protocol"
)

// relayTarget resolves a negotiation target inside the sender's current
// room. A miss is answered to the sender only.
func (ctl *Controller) relayTarget(st *connState, c core.SignalConnection, target domain.UserID) (core.Member, bool) {
	if st.room == "" {
		log.Warn().Str("module", "signal").Str("user", string(st.identity.UserID)).Msg("relay attempt outside a room")
		ctl.sendError(c, protocol.TypeCallError, "not in a room")
		return core.Member{}, false
	}
	m, ok := ctl.Registry.Lookup(st.room, target)
	if !ok {
		ctl.sendError(c, protocol.TypeCallError, "target user not found in room")
		return core.Member{}, false
	}
	return m, true
}

func (ctl *Controller) handleCallUser(st *connState, c core.SignalConnection, data []byte) {
	var p protocol.CallUser
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad call-user payload")
		return
	}
	target, ok := ctl.relayTarget(st, c, p.TargetUserID)
	if !ok {
		return
	}
	ctl.sendJSON(target.Conn, protocol.IncomingCall{
		Type:         protocol.TypeIncomingCall,
		CallerUserID: st.identity.UserID,
		CallerRole:   st.identity.Role,
		Offer:        p.Offer,
	})
	log.Info().Str("module", "signal").Str("from", string(st.identity.UserID)).Str("to", string(p.TargetUserID)).Msg("call relayed")
}

func (ctl *Controller) handleAnswerCall(st *connState, c core.SignalConnection, data []byte) {
	var p protocol.AnswerCall
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad answer-call payload")
		return
	}
	caller, ok := ctl.relayTarget(st, c, p.CallerUserID)
	if !ok {
		return
	}
	ctl.sendJSON(caller.Conn, protocol.CallAnswered{
		Type:           protocol.TypeCallAnswered,
		AnswererUserID: st.identity.UserID,
		Answer:         p.Answer,
	})
	log.Info().Str("module", "signal").Str("from", string(st.identity.UserID)).Str("to", string(p.CallerUserID)).Msg("answer relayed")
}

func (ctl *Controller) handleCandidate(st *connState, c core.SignalConnection, data []byte) {
	var p protocol.CandidateToPeer
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad candidate payload")
		return
	}
	target, ok := ctl.relayTarget(st, c, p.TargetUserID)
	if !ok {
		return
	}
	ctl.sendJSON(target.Conn, protocol.CandidateFromPeer{
		Type:       protocol.TypeICECandidate,
		FromUserID: st.identity.UserID,
		Candidate:  p.Candidate,
	})
}
