package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/edforge/interview/internal/core"
	"github.com/edforge/interview/internal/domain"
	"github.com/edforge/interview/internal/protocol"
)

func (ctl *Controller) writePump(ctx context.Context, c *WsConn) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, st *connState, c *WsConn) {
	uid := st.identity.UserID
	defer func() {
		log.Info().Str("module", "signal").Str("user", string(uid)).Msg("readPump closing")
		// Underlying disconnect counts as a leave.
		ctl.leaveRoom(st, c)
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("user", string(uid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Error().Err(err).Str("module", "signal").Str("user", string(uid)).Msg("readPump read error")
				return
			}
			ctl.handleMessage(ctx, st, c, data)
		}
	}
}

// handleMessage routes one inbound frame by its type tag. Malformed or
// unknown frames are logged and dropped; they must never take the relay
// down.
func (ctl *Controller) handleMessage(ctx context.Context, st *connState, c core.SignalConnection, data []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	switch env.Type {
	case protocol.TypeJoinRoom:
		ctl.handleJoin(ctx, st, c, data)
	case protocol.TypeLeaveRoom:
		ctl.handleLeave(st, c)
	case protocol.TypeCallUser:
		ctl.handleCallUser(st, c, data)
	case protocol.TypeAnswerCall:
		ctl.handleAnswerCall(st, c, data)
	case protocol.TypeICECandidate:
		ctl.handleCandidate(st, c, data)
	case protocol.TypeToggleAudio:
		ctl.handleToggle(st, "audio", data)
	case protocol.TypeToggleVideo:
		ctl.handleToggle(st, "video", data)
	case protocol.TypeEndSession:
		ctl.handleEndSession(ctx, st, c)
	case protocol.TypeReconnectRequest:
		ctl.handleReconnect(ctx, st, c, data)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
	}
}

func (ctl *Controller) sendJSON(c core.SignalConnection, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

func (ctl *Controller) sendError(c core.SignalConnection, typ, msg string) {
	ctl.sendJSON(c, protocol.ErrorEvent{Type: typ, Error: msg})
}

// broadcast fans a message out to everyone in the room except the sender.
// Delivery is fire-and-forget: a slow or dead peer drops the frame.
func (ctl *Controller) broadcast(sid domain.SessionID, except domain.UserID, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("broadcast marshal")
		return
	}
	for _, conn := range ctl.Registry.Peers(sid, except) {
		if err := conn.TrySend(b); err != nil {
			log.Warn().Err(err).Str("module", "signal").Str("session", string(sid)).Msg("broadcast drop")
		}
	}
}
