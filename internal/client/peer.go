package client

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/edforge/interview/internal/domain"
)

// peerLink is the orchestrator's record of one remote participant. It is
// the single owner of the transport and the remote stream: destroy() is
// the only way either is released, so partial cleanup cannot occur.
type peerLink struct {
	id        string
	remoteID  domain.UserID
	initiator bool
	transport PeerTransport

	mu     sync.Mutex
	state  LinkState
	stream *RemoteStream

	destroyOnce sync.Once
}

func (l *peerLink) setState(s LinkState) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

func (l *peerLink) currentState() LinkState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *peerLink) setStream(s *RemoteStream) {
	l.mu.Lock()
	l.stream = s
	l.mu.Unlock()
}

func (l *peerLink) remoteStream() *RemoteStream {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stream
}

// destroy releases the transport and stops the remote stream's tracks.
// Every exit path (explicit removal, remote close, error, bulk cleanup)
// funnels through here; idempotent.
func (l *peerLink) destroy() {
	l.destroyOnce.Do(func() {
		if s := l.remoteStream(); s != nil {
			s.StopTracks()
		}
		l.transport.Close()
		log.Info().Str("module", "client").Str("peer", string(l.remoteID)).Msg("peer link destroyed")
	})
}
