package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/edforge/interview/internal/domain"
	"github.com/edforge/interview/internal/protocol"
)

// RoomEvents notify the embedding application about room-level changes
// the orchestrator does not own. All optional.
type RoomEvents struct {
	OnRoomJoined   func(protocol.RoomJoined)
	OnJoinError    func(string)
	OnCallError    func(string)
	OnMediaToggled func(protocol.MediaToggled)
	OnSessionEnded func(protocol.SessionEnded)
	OnReconnect    func(ok bool, msg string)
}

// Client is one participant's signaling connection plus its peer
// orchestrator. It implements SignalSender, so the orchestrator's
// negotiation messages flow straight back through the same socket.
type Client struct {
	conn    *websocket.Conn
	orch    *Orchestrator
	events  RoomEvents
	writeMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
}

type DialOptions struct {
	// URL is the relay's signaling endpoint, e.g. wss://host/ws/signal.
	URL   string
	Token string

	LocalID         domain.UserID
	LocalRole       domain.Role
	MaxParticipants int
	Transport       TransportFactory
	Callbacks       Callbacks
	Events          RoomEvents
}

// Dial connects and authenticates against the relay. The bearer
// credential travels as a query parameter because browsers set no
// headers on websocket dials and the relay accepts both.
func Dial(ctx context.Context, opts DialOptions) (*Client, error) {
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse signaling url: %w", err)
	}
	q := u.Query()
	q.Set("token", opts.Token)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	c := &Client{
		conn:   conn,
		events: opts.Events,
		done:   make(chan struct{}),
	}
	c.orch = NewOrchestrator(OrchestratorOptions{
		LocalID:         opts.LocalID,
		LocalRole:       opts.LocalRole,
		MaxParticipants: opts.MaxParticipants,
		Sender:          c,
		Transport:       opts.Transport,
		Callbacks:       opts.Callbacks,
	})

	go c.readLoop(ctx)
	return c, nil
}

// Orchestrator exposes the peer mesh for stats and explicit teardown.
func (c *Client) Orchestrator() *Orchestrator { return c.orch }

// SetLocalSource attaches local media, releasing any queued offers.
func (c *Client) SetLocalSource(src *LocalSource) { c.orch.SetLocalSource(src) }

func (c *Client) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

// JoinRoom asks the relay to place this client in the session's room.
func (c *Client) JoinRoom(sid domain.SessionID) error {
	return c.writeJSON(protocol.JoinRoom{Type: protocol.TypeJoinRoom, SessionID: sid})
}

// LeaveRoom exits the room and tears down every peer connection.
func (c *Client) LeaveRoom() error {
	c.orch.Cleanup()
	return c.writeJSON(protocol.Envelope{Type: protocol.TypeLeaveRoom})
}

// Reconnect asks the relay to re-admit this client after a drop.
func (c *Client) Reconnect(sid domain.SessionID) error {
	return c.writeJSON(protocol.ReconnectRequest{Type: protocol.TypeReconnectRequest, SessionID: sid})
}

// EndSession closes the room for everyone (session owner only).
func (c *Client) EndSession() error {
	return c.writeJSON(protocol.Envelope{Type: protocol.TypeEndSession})
}

// ToggleAudio announces the local audio state to the room.
func (c *Client) ToggleAudio(enabled bool) error {
	return c.writeJSON(protocol.ToggleMedia{Type: protocol.TypeToggleAudio, IsEnabled: enabled})
}

// ToggleVideo announces the local video state to the room.
func (c *Client) ToggleVideo(enabled bool) error {
	return c.writeJSON(protocol.ToggleMedia{Type: protocol.TypeToggleVideo, IsEnabled: enabled})
}

// Close tears down the mesh and the signaling socket.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.orch.Cleanup()
		_ = c.conn.Close()
		close(c.done)
	})
}

// Done closes when the signaling connection is gone.
func (c *Client) Done() <-chan struct{} { return c.done }

// SignalSender implementation.

func (c *Client) CallUser(target domain.UserID, offer json.RawMessage) error {
	return c.writeJSON(protocol.CallUser{Type: protocol.TypeCallUser, TargetUserID: target, Offer: offer})
}

func (c *Client) AnswerCall(caller domain.UserID, answer json.RawMessage) error {
	return c.writeJSON(protocol.AnswerCall{Type: protocol.TypeAnswerCall, CallerUserID: caller, Answer: answer})
}

func (c *Client) SendCandidate(target domain.UserID, candidate json.RawMessage) error {
	return c.writeJSON(protocol.CandidateToPeer{Type: protocol.TypeICECandidate, TargetUserID: target, Candidate: candidate})
}

func (c *Client) readLoop(ctx context.Context) {
	defer c.Close()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			log.Info().Err(err).Str("module", "client").Msg("signaling connection closed")
			return
		}
		c.dispatch(ctx, data)
	}
}

// dispatch routes one relayed event. Unknown or malformed events are
// logged and dropped.
func (c *Client) dispatch(ctx context.Context, data []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "client").Msg("bad event json")
		return
	}

	switch env.Type {
	case protocol.TypeRoomJoined:
		var ev protocol.RoomJoined
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Error().Err(err).Str("module", "client").Msg("bad room-joined")
			return
		}
		if c.events.OnRoomJoined != nil {
			c.events.OnRoomJoined(ev)
		}
		// Offer toward every present participant the election points at;
		// the others will call us.
		for _, p := range ev.Participants {
			if err := c.orch.InitiateCall(ctx, p.UserID, p.Role); err != nil {
				log.Warn().Err(err).Str("module", "client").Str("peer", string(p.UserID)).Msg("initiate on join")
			}
		}

	case protocol.TypeUserJoined:
		var ev protocol.UserJoined
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Error().Err(err).Str("module", "client").Msg("bad user-joined")
			return
		}
		if err := c.orch.InitiateCall(ctx, ev.UserID, ev.Role); err != nil {
			log.Warn().Err(err).Str("module", "client").Str("peer", string(ev.UserID)).Msg("initiate on user-joined")
		}

	case protocol.TypeUserLeft:
		var ev protocol.UserLeft
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		c.orch.RemovePeer(ev.UserID)

	case protocol.TypeIncomingCall:
		var ev protocol.IncomingCall
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Error().Err(err).Str("module", "client").Msg("bad incoming-call")
			return
		}
		if err := c.orch.HandleIncomingCall(ev.CallerUserID, ev.Offer); err != nil {
			log.Warn().Err(err).Str("module", "client").Str("caller", string(ev.CallerUserID)).Msg("incoming call")
		}

	case protocol.TypeCallAnswered:
		var ev protocol.CallAnswered
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		c.orch.HandleCallAnswered(ev.AnswererUserID, ev.Answer)

	case protocol.TypeICECandidate:
		var ev protocol.CandidateFromPeer
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		c.orch.HandleCandidate(ev.FromUserID, ev.Candidate)

	case protocol.TypeMediaToggled:
		var ev protocol.MediaToggled
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		if c.events.OnMediaToggled != nil {
			c.events.OnMediaToggled(ev)
		}

	case protocol.TypeSessionEnded:
		var ev protocol.SessionEnded
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		c.orch.Cleanup()
		if c.events.OnSessionEnded != nil {
			c.events.OnSessionEnded(ev)
		}

	case protocol.TypeRoomJoinError:
		var ev protocol.ErrorEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		if c.events.OnJoinError != nil {
			c.events.OnJoinError(ev.Error)
		}

	case protocol.TypeCallError, protocol.TypeEndSessionError:
		var ev protocol.ErrorEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		if c.events.OnCallError != nil {
			c.events.OnCallError(ev.Error)
		}

	case protocol.TypeReconnectSuccess:
		var ev protocol.ReconnectSuccess
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		if c.events.OnReconnect != nil {
			c.events.OnReconnect(true, ev.Message)
		}

	case protocol.TypeReconnectFailed:
		var ev protocol.ErrorEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		if c.events.OnReconnect != nil {
			c.events.OnReconnect(false, ev.Error)
		}

	default:
		log.Warn().Str("module", "client").Str("type", env.Type).Msg("unknown event")
	}
}
