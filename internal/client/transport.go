// Package client is the connection-side orchestrator: it turns relayed
// signaling events into a mesh of negotiated peer connections and exposes
// the resulting remote media to the caller.
package client

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/edforge/interview/internal/domain"
)

// LinkState is the lifecycle of one negotiated connection.
type LinkState string

const (
	StateConnecting   LinkState = "connecting"
	StateConnected    LinkState = "connected"
	StateDisconnected LinkState = "disconnected"
	StateFailed       LinkState = "failed"
)

// PeerTransport is one negotiated connection to a single remote peer.
// Signaling payloads stay raw JSON so the relay and the orchestrator
// never interpret them.
//
// Callback setters must be called before the first negotiation step.
// Candidates for one transport are applied in arrival order; the
// orchestrator never reorders them.
type PeerTransport interface {
	// Offer creates and applies the local offer (initiator side).
	Offer(ctx context.Context) (json.RawMessage, error)
	// Answer applies the remote offer and produces the answer.
	Answer(ctx context.Context, offer json.RawMessage) (json.RawMessage, error)
	// AcceptAnswer applies the remote answer on the initiator side.
	AcceptAnswer(answer json.RawMessage) error
	// AddCandidate applies one remote ICE candidate.
	AddCandidate(candidate json.RawMessage) error

	OnCandidate(func(candidate json.RawMessage))
	OnStream(func(*RemoteStream))
	OnStateChange(func(LinkState))

	// Close releases the connection. Idempotent.
	Close()
}

// TransportFactory builds a transport around the local media source.
type TransportFactory func(src *LocalSource, initiator bool) (PeerTransport, error)

// SignalSender carries the orchestrator's negotiation messages back to
// the relay.
type SignalSender interface {
	CallUser(target domain.UserID, offer json.RawMessage) error
	AnswerCall(caller domain.UserID, answer json.RawMessage) error
	SendCandidate(target domain.UserID, candidate json.RawMessage) error
}

// RemoteStream is the remote media handle owned by exactly one peer link.
// StopTracks releases every underlying track reader; the owning link's
// teardown is the only caller, so a stream can never outlive its link.
type RemoteStream struct {
	id      string
	once    sync.Once
	stop    func()
	stopped atomic.Bool
}

func NewRemoteStream(id string, stop func()) *RemoteStream {
	return &RemoteStream{id: id, stop: stop}
}

func (s *RemoteStream) ID() string { return s.id }

func (s *RemoteStream) StopTracks() {
	s.once.Do(func() {
		s.stopped.Store(true)
		if s.stop != nil {
			s.stop()
		}
	})
}

// Stopped reports whether the tracks have been released.
func (s *RemoteStream) Stopped() bool { return s.stopped.Load() }
