// Package rtc implements the orchestrator's peer transport on
// pion/webrtc.
package rtc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/edforge/interview/internal/client"
)

// DefaultConfig mirrors the STUN set used across the platform clients.
func DefaultConfig(urls []string) webrtc.Configuration {
	if len(urls) == 0 {
		urls = []string{"stun:stun.l.google.com:19302"}
	}
	servers := make([]webrtc.ICEServer, 0, len(urls))
	for _, u := range urls {
		servers = append(servers, webrtc.ICEServer{URLs: []string{u}})
	}
	return webrtc.Configuration{ICEServers: servers}
}

// Options configures the transports a factory produces.
type Options struct {
	Config webrtc.Configuration
	// OnRTP, when set, receives every remote packet together with its
	// stream id. Packets are dropped otherwise; reading must continue
	// either way to keep the receiver's feedback loop alive.
	OnRTP func(streamID string, pkt *rtp.Packet)
}

// Factory builds client.TransportFactory instances around pion peer
// connections.
func Factory(opts Options) client.TransportFactory {
	return func(src *client.LocalSource, initiator bool) (client.PeerTransport, error) {
		pc, err := webrtc.NewPeerConnection(opts.Config)
		if err != nil {
			return nil, fmt.Errorf("new peer connection: %w", err)
		}
		for _, track := range src.Tracks() {
			if _, err := pc.AddTrack(track); err != nil {
				_ = pc.Close()
				return nil, fmt.Errorf("add local track: %w", err)
			}
		}

		ctx, cancel := context.WithCancel(context.Background())
		t := &Transport{
			pc:        pc,
			initiator: initiator,
			ctx:       ctx,
			cancel:    cancel,
			onRTP:     opts.OnRTP,
			streams:   make(map[string]*streamReader),
		}
		t.bind()
		return t, nil
	}
}

// streamReader groups the remote tracks of one media stream under a
// shared cancel, so stopping the stream stops every reader.
type streamReader struct {
	stream *client.RemoteStream
	ctx    context.Context
	cancel context.CancelFunc
}

// Transport is one pion peer connection plus its remote stream readers.
type Transport struct {
	pc        *webrtc.PeerConnection
	initiator bool
	ctx       context.Context
	cancel    context.CancelFunc
	onRTP     func(string, *rtp.Packet)

	mu      sync.Mutex
	streams map[string]*streamReader

	onCandidate func(json.RawMessage)
	onStream    func(*client.RemoteStream)
	onState     func(client.LinkState)

	closeOnce sync.Once
}

func (t *Transport) OnCandidate(fn func(json.RawMessage)) { t.onCandidate = fn }
func (t *Transport) OnStream(fn func(*client.RemoteStream)) {
	t.onStream = fn
}
func (t *Transport) OnStateChange(fn func(client.LinkState)) { t.onState = fn }

func (t *Transport) bind() {
	t.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil || t.onCandidate == nil {
			return
		}
		b, err := json.Marshal(cand.ToJSON())
		if err != nil {
			log.Error().Err(err).Str("module", "client.rtc").Msg("marshal candidate")
			return
		}
		t.onCandidate(b)
	})

	t.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "client.rtc").Str("state", s.String()).Msg("peer state")
		if t.onState == nil {
			return
		}
		switch s {
		case webrtc.PeerConnectionStateConnected:
			t.onState(client.StateConnected)
		case webrtc.PeerConnectionStateFailed:
			t.onState(client.StateFailed)
		case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateClosed:
			t.onState(client.StateDisconnected)
		}
	})

	t.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "client.rtc").
			Str("kind", track.Kind().String()).
			Str("stream_id", track.StreamID()).
			Msg("remote track")
		t.addRemoteTrack(track)
	})
}

// addRemoteTrack attaches the track to its stream's reader group,
// announcing the stream on its first track.
func (t *Transport) addRemoteTrack(track *webrtc.TrackRemote) {
	id := track.StreamID()

	t.mu.Lock()
	sr, ok := t.streams[id]
	if !ok {
		ctx, cancel := context.WithCancel(t.ctx)
		sr = &streamReader{
			ctx:    ctx,
			cancel: cancel,
			stream: client.NewRemoteStream(id, cancel),
		}
		t.streams[id] = sr
		t.mu.Unlock()
		if t.onStream != nil {
			t.onStream(sr.stream)
		}
		go t.readTrack(ctx, id, track)
		return
	}
	t.mu.Unlock()
	go t.readTrack(sr.ctx, id, track)
}

func (t *Transport) readTrack(ctx context.Context, streamID string, track *webrtc.TrackRemote) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Warn().Err(err).Str("module", "client.rtc").Str("stream_id", streamID).Msg("read rtp")
			}
			return
		}
		if t.onRTP != nil {
			t.onRTP(streamID, pkt)
		}
	}
}

func (t *Transport) Offer(ctx context.Context) (json.RawMessage, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return nil, fmt.Errorf("create offer: %w", err)
	}
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return nil, fmt.Errorf("set local offer: %w", err)
	}
	return json.Marshal(offer)
}

func (t *Transport) Answer(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(raw, &offer); err != nil {
		return nil, fmt.Errorf("decode offer: %w", err)
	}
	if err := t.pc.SetRemoteDescription(offer); err != nil {
		return nil, fmt.Errorf("set remote offer: %w", err)
	}
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return nil, fmt.Errorf("create answer: %w", err)
	}
	if err := t.pc.SetLocalDescription(answer); err != nil {
		return nil, fmt.Errorf("set local answer: %w", err)
	}
	return json.Marshal(answer)
}

func (t *Transport) AcceptAnswer(raw json.RawMessage) error {
	var answer webrtc.SessionDescription
	if err := json.Unmarshal(raw, &answer); err != nil {
		return fmt.Errorf("decode answer: %w", err)
	}
	if err := t.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("set remote answer: %w", err)
	}
	return nil
}

func (t *Transport) AddCandidate(raw json.RawMessage) error {
	var cand webrtc.ICECandidateInit
	if err := json.Unmarshal(raw, &cand); err != nil {
		return fmt.Errorf("decode candidate: %w", err)
	}
	if err := t.pc.AddICECandidate(cand); err != nil {
		return fmt.Errorf("add ice candidate: %w", err)
	}
	return nil
}

func (t *Transport) Close() {
	t.closeOnce.Do(func() {
		t.cancel()
		t.mu.Lock()
		for _, sr := range t.streams {
			sr.cancel()
		}
		t.streams = make(map[string]*streamReader)
		t.mu.Unlock()
		if err := t.pc.Close(); err != nil {
			log.Error().Err(err).Str("module", "client.rtc").Msg("close peer connection")
		}
	})
}
