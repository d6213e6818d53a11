package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/edforge/interview/internal/domain"
)

// DefaultMaxParticipants caps the mesh at six parties (five links per
// client); larger sessions belong on a forwarding tier, not implemented
// here.
const DefaultMaxParticipants = 6

var (
	// ErrMeshFull is surfaced when another link would exceed the mesh cap.
	ErrMeshFull = errors.New("maximum participants reached for mesh topology")
	// ErrMediaNotReady rejects outbound calls before local media exists.
	ErrMediaNotReady = errors.New("local media source not ready")
)

// ConnectionStats is the aggregate view exposed to the UI layer.
type ConnectionStats struct {
	TotalPeers     int
	ConnectedPeers int
	FailedPeers    int
}

// Callbacks notify the UI layer. All are optional and may be invoked
// from transport goroutines.
type Callbacks struct {
	OnStreamAdded   func(domain.UserID, *RemoteStream)
	OnStreamRemoved func(domain.UserID)
	OnPeerConnected func(domain.UserID)
	OnPeerLeft      func(domain.UserID)
	OnError         func(domain.UserID, error)
}

type pendingCall struct {
	caller domain.UserID
	offer  json.RawMessage
}

// Orchestrator keeps exactly one negotiated connection per remote
// participant, decides who initiates via ShouldInitiate, queues offers
// that arrive before local media, and enforces the mesh cap. One mutex
// serializes the event-delivery path against UI-triggered calls; failed
// links are never retried automatically.
type Orchestrator struct {
	localID      domain.UserID
	localRole    domain.Role
	maxPeers     int
	sender       SignalSender
	newTransport TransportFactory
	callbacks    Callbacks

	mu      sync.Mutex
	local   *LocalSource
	peers   map[domain.UserID]*peerLink
	pending []pendingCall
}

type OrchestratorOptions struct {
	LocalID         domain.UserID
	LocalRole       domain.Role
	MaxParticipants int
	Sender          SignalSender
	Transport       TransportFactory
	Callbacks       Callbacks
}

func NewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	maxPeers := opts.MaxParticipants
	if maxPeers <= 0 {
		maxPeers = DefaultMaxParticipants
	}
	return &Orchestrator{
		localID:      opts.LocalID,
		localRole:    opts.LocalRole,
		maxPeers:     maxPeers,
		sender:       opts.Sender,
		newTransport: opts.Transport,
		callbacks:    opts.Callbacks,
		peers:        make(map[domain.UserID]*peerLink),
	}
}

// SetLocalSource attaches the local media and drains, in arrival order,
// every offer that was queued while media was not ready.
func (o *Orchestrator) SetLocalSource(src *LocalSource) {
	o.mu.Lock()
	o.local = src
	queued := o.pending
	o.pending = nil
	o.mu.Unlock()

	for _, p := range queued {
		if err := o.HandleIncomingCall(p.caller, p.offer); err != nil {
			log.Warn().Err(err).Str("module", "client").Str("caller", string(p.caller)).Msg("queued call failed")
		}
	}
}

// newLink creates and registers a link toward remote, enforcing the
// one-connection-per-peer rule and the mesh cap. Caller must not hold mu.
func (o *Orchestrator) newLink(remote domain.UserID, initiator bool) (*peerLink, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, dup := o.peers[remote]; dup {
		return nil, nil
	}
	if len(o.peers) >= o.maxPeers-1 {
		return nil, ErrMeshFull
	}
	if o.local == nil {
		return nil, ErrMediaNotReady
	}

	t, err := o.newTransport(o.local, initiator)
	if err != nil {
		return nil, fmt.Errorf("create transport: %w", err)
	}
	link := &peerLink{
		id:        uuid.NewString(),
		remoteID:  remote,
		initiator: initiator,
		transport: t,
		state:     StateConnecting,
	}
	o.wire(link)
	o.peers[remote] = link
	return link, nil
}

// wire binds the transport's events to the link and the UI callbacks.
func (o *Orchestrator) wire(link *peerLink) {
	remote := link.remoteID

	link.transport.OnCandidate(func(cand json.RawMessage) {
		if err := o.sender.SendCandidate(remote, cand); err != nil {
			log.Warn().Err(err).Str("module", "client").Str("peer", string(remote)).Msg("send candidate")
		}
	})

	link.transport.OnStream(func(s *RemoteStream) {
		link.setStream(s)
		if o.callbacks.OnStreamAdded != nil {
			o.callbacks.OnStreamAdded(remote, s)
		}
	})

	link.transport.OnStateChange(func(s LinkState) {
		switch s {
		case StateConnected:
			link.setState(StateConnected)
			if o.callbacks.OnPeerConnected != nil {
				o.callbacks.OnPeerConnected(remote)
			}
		case StateFailed:
			// No automatic retry: the link stays failed until the
			// caller explicitly removes or re-initiates it.
			link.setState(StateFailed)
			if o.callbacks.OnError != nil {
				o.callbacks.OnError(remote, fmt.Errorf("connection to %s failed", remote))
			}
		case StateDisconnected:
			o.RemovePeer(remote)
		}
	})
}

// InitiateCall starts negotiation toward a newly visible participant if
// the election says this side offers first; otherwise the remote side is
// expected to call us and this is a no-op.
func (o *Orchestrator) InitiateCall(ctx context.Context, target domain.UserID, targetRole domain.Role) error {
	if !ShouldInitiate(o.localID, o.localRole, target, targetRole) {
		log.Debug().Str("module", "client").Str("peer", string(target)).Msg("waiting for remote to initiate")
		return nil
	}

	link, err := o.newLink(target, true)
	if err != nil {
		if o.callbacks.OnError != nil {
			o.callbacks.OnError(target, err)
		}
		return err
	}
	if link == nil {
		log.Debug().Str("module", "client").Str("peer", string(target)).Msg("already connected, skipping call")
		return nil
	}

	offer, err := link.transport.Offer(ctx)
	if err != nil {
		o.failLink(target, link, fmt.Errorf("create offer: %w", err))
		return err
	}
	if err := o.sender.CallUser(target, offer); err != nil {
		o.failLink(target, link, fmt.Errorf("send offer: %w", err))
		return err
	}
	log.Info().Str("module", "client").Str("peer", string(target)).Msg("call initiated")
	return nil
}

// HandleIncomingCall answers a relayed offer. Offers arriving before the
// local media source is ready are queued FIFO and drained the moment
// SetLocalSource runs.
func (o *Orchestrator) HandleIncomingCall(caller domain.UserID, offer json.RawMessage) error {
	o.mu.Lock()
	if o.local == nil {
		o.pending = append(o.pending, pendingCall{caller: caller, offer: offer})
		o.mu.Unlock()
		log.Info().Str("module", "client").Str("caller", string(caller)).Msg("local media not ready, call queued")
		return nil
	}
	o.mu.Unlock()

	link, err := o.newLink(caller, false)
	if err != nil {
		if o.callbacks.OnError != nil {
			o.callbacks.OnError(caller, err)
		}
		return err
	}
	if link == nil {
		log.Debug().Str("module", "client").Str("caller", string(caller)).Msg("duplicate call ignored")
		return nil
	}

	answer, err := link.transport.Answer(context.Background(), offer)
	if err != nil {
		o.failLink(caller, link, fmt.Errorf("answer offer: %w", err))
		return err
	}
	if err := o.sender.AnswerCall(caller, answer); err != nil {
		o.failLink(caller, link, fmt.Errorf("send answer: %w", err))
		return err
	}
	log.Info().Str("module", "client").Str("caller", string(caller)).Msg("call answered")
	return nil
}

// HandleCallAnswered applies the remote answer on the initiating side.
func (o *Orchestrator) HandleCallAnswered(answerer domain.UserID, answer json.RawMessage) {
	o.mu.Lock()
	link, ok := o.peers[answerer]
	o.mu.Unlock()
	if !ok {
		log.Warn().Str("module", "client").Str("peer", string(answerer)).Msg("answer for unknown peer")
		return
	}
	if err := link.transport.AcceptAnswer(answer); err != nil {
		o.failLink(answerer, link, fmt.Errorf("accept answer: %w", err))
	}
}

// HandleCandidate applies a relayed ICE candidate in arrival order.
func (o *Orchestrator) HandleCandidate(from domain.UserID, candidate json.RawMessage) {
	o.mu.Lock()
	link, ok := o.peers[from]
	o.mu.Unlock()
	if !ok {
		return
	}
	if err := link.transport.AddCandidate(candidate); err != nil {
		log.Warn().Err(err).Str("module", "client").Str("peer", string(from)).Msg("add candidate")
	}
}

func (o *Orchestrator) failLink(remote domain.UserID, link *peerLink, err error) {
	link.setState(StateFailed)
	log.Error().Err(err).Str("module", "client").Str("peer", string(remote)).Msg("negotiation failed")
	if o.callbacks.OnError != nil {
		o.callbacks.OnError(remote, err)
	}
}

// RemovePeer tears the link down synchronously: transport released,
// remote tracks stopped, entry gone. Safe to call for unknown peers.
func (o *Orchestrator) RemovePeer(remote domain.UserID) {
	o.mu.Lock()
	link, ok := o.peers[remote]
	if ok {
		delete(o.peers, remote)
	}
	o.mu.Unlock()
	if !ok {
		return
	}

	link.destroy()
	if o.callbacks.OnStreamRemoved != nil {
		o.callbacks.OnStreamRemoved(remote)
	}
	if o.callbacks.OnPeerLeft != nil {
		o.callbacks.OnPeerLeft(remote)
	}
}

// Cleanup destroys every tracked connection and drops queued calls.
// Idempotent; used when leaving the room.
func (o *Orchestrator) Cleanup() {
	o.mu.Lock()
	links := make([]*peerLink, 0, len(o.peers))
	for _, l := range o.peers {
		links = append(links, l)
	}
	o.peers = make(map[domain.UserID]*peerLink)
	o.pending = nil
	o.mu.Unlock()

	for _, l := range links {
		l.destroy()
	}
	log.Info().Str("module", "client").Int("links", len(links)).Msg("orchestrator cleaned up")
}

// PeerState reports the link state toward one remote, if tracked.
func (o *Orchestrator) PeerState(remote domain.UserID) (LinkState, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	link, ok := o.peers[remote]
	if !ok {
		return "", false
	}
	return link.currentState(), true
}

// RemoteStreamOf returns the remote media handle for one peer, if any.
func (o *Orchestrator) RemoteStreamOf(remote domain.UserID) (*RemoteStream, bool) {
	o.mu.Lock()
	link, ok := o.peers[remote]
	o.mu.Unlock()
	if !ok {
		return nil, false
	}
	s := link.remoteStream()
	return s, s != nil
}

// Stats aggregates link states for the UI layer.
func (o *Orchestrator) Stats() ConnectionStats {
	o.mu.Lock()
	defer o.mu.Unlock()
	stats := ConnectionStats{TotalPeers: len(o.peers)}
	for _, l := range o.peers {
		switch l.currentState() {
		case StateConnected:
			stats.ConnectedPeers++
		case StateFailed:
			stats.FailedPeers++
		}
	}
	return stats
}
