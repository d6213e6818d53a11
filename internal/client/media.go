package client

import (
	"fmt"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

const rtpOutboundMTU = 1200

// LocalSource owns the outgoing media tracks attached to every peer
// transport. Captured frames are packetized as RTP and written to the
// static tracks; toggling a kind off silently drops its writes, which
// pairs with the relay's media-toggled notice.
type LocalSource struct {
	audio *webrtc.TrackLocalStaticRTP
	video *webrtc.TrackLocalStaticRTP

	mu           sync.Mutex
	audioEnabled bool
	videoEnabled bool
	audioSeq     uint16
	audioTS      uint32
	videoSeq     uint16
	videoTS      uint32
}

// NewLocalSource builds Opus audio and VP8 video tracks with fresh ids.
func NewLocalSource(id string) (*LocalSource, error) {
	audio, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeOpus,
			ClockRate:   48000,
			Channels:    2,
			SDPFmtpLine: "minptime=10;useinbandfec=1",
		},
		"audio-"+id, "stream-"+id,
	)
	if err != nil {
		return nil, fmt.Errorf("create audio track: %w", err)
	}
	video, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeVP8,
			ClockRate: 90000,
		},
		"video-"+id, "stream-"+id,
	)
	if err != nil {
		return nil, fmt.Errorf("create video track: %w", err)
	}
	return &LocalSource{
		audio:        audio,
		video:        video,
		audioEnabled: true,
		videoEnabled: true,
	}, nil
}

// Tracks lists the local tracks a transport should attach.
func (s *LocalSource) Tracks() []webrtc.TrackLocal {
	return []webrtc.TrackLocal{s.audio, s.video}
}

// SetAudioEnabled flips the local audio gate and reports the new state.
func (s *LocalSource) SetAudioEnabled(enabled bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audioEnabled = enabled
	return s.audioEnabled
}

// SetVideoEnabled flips the local video gate and reports the new state.
func (s *LocalSource) SetVideoEnabled(enabled bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.videoEnabled = enabled
	return s.videoEnabled
}

// WriteAudio packetizes one encoded Opus frame. samples advances the RTP
// clock (48 kHz), e.g. 960 for a 20 ms frame.
func (s *LocalSource) WriteAudio(payload []byte, samples uint32) error {
	s.mu.Lock()
	if !s.audioEnabled {
		s.mu.Unlock()
		return nil
	}
	s.audioSeq++
	s.audioTS += samples
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    111,
			SequenceNumber: s.audioSeq,
			Timestamp:      s.audioTS,
			Marker:         true,
		},
		Payload: payload,
	}
	s.mu.Unlock()

	if err := s.audio.WriteRTP(pkt); err != nil {
		return fmt.Errorf("write audio rtp: %w", err)
	}
	return nil
}

// WriteVideo packetizes one encoded VP8 frame chunk. marker must be set
// on the last packet of a frame; samples advances the 90 kHz clock.
func (s *LocalSource) WriteVideo(payload []byte, samples uint32, marker bool) error {
	if len(payload) > rtpOutboundMTU {
		return fmt.Errorf("video payload %d exceeds mtu %d", len(payload), rtpOutboundMTU)
	}
	s.mu.Lock()
	if !s.videoEnabled {
		s.mu.Unlock()
		return nil
	}
	s.videoSeq++
	s.videoTS += samples
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    96,
			SequenceNumber: s.videoSeq,
			Timestamp:      s.videoTS,
			Marker:         marker,
		},
		Payload: payload,
	}
	s.mu.Unlock()

	if err := s.video.WriteRTP(pkt); err != nil {
		return fmt.Errorf("write video rtp: %w", err)
	}
	return nil
}
