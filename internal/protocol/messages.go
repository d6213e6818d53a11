// Package protocol defines the wire messages exchanged over the signaling
// connection. Every message is a JSON object tagged by "type"; negotiation
// payloads (offers, answers, candidates) pass through the relay verbatim
// as raw JSON.
package protocol

import (
	"encoding/json"

	"github.com/edforge/interview/internal/domain"
)

// Client to server.
const (
	TypeJoinRoom         = "join-room"
	TypeLeaveRoom        = "leave-room"
	TypeCallUser         = "call-user"
	TypeAnswerCall       = "answer-call"
	TypeICECandidate     = "ice-candidate"
	TypeToggleAudio      = "toggle-audio"
	TypeToggleVideo      = "toggle-video"
	TypeEndSession       = "end-session"
	TypeReconnectRequest = "reconnect-request"
)

// Server to client.
const (
	TypeRoomJoined       = "room-joined"
	TypeRoomJoinError    = "room-join-error"
	TypeUserJoined       = "user-joined"
	TypeUserLeft         = "user-left"
	TypeIncomingCall     = "incoming-call"
	TypeCallAnswered     = "call-answered"
	TypeCallError        = "call-error"
	TypeMediaToggled     = "media-toggled"
	TypeSessionEnded     = "session-ended"
	TypeEndSessionError  = "end-session-error"
	TypeReconnectSuccess = "reconnect-success"
	TypeReconnectFailed  = "reconnect-failed"
)

// Envelope carries just the tag, enough to route a raw frame.
type Envelope struct {
	Type string `json:"type"`
}

type JoinRoom struct {
	Type      string           `json:"type"`
	SessionID domain.SessionID `json:"sessionId"`
}

type CallUser struct {
	Type         string          `json:"type"`
	TargetUserID domain.UserID   `json:"targetUserId"`
	Offer        json.RawMessage `json:"offer"`
}

type AnswerCall struct {
	Type         string          `json:"type"`
	CallerUserID domain.UserID   `json:"callerUserId"`
	Answer       json.RawMessage `json:"answer"`
}

type CandidateToPeer struct {
	Type         string          `json:"type"`
	TargetUserID domain.UserID   `json:"targetUserId"`
	Candidate    json.RawMessage `json:"candidate"`
}

type ToggleMedia struct {
	Type      string `json:"type"`
	IsEnabled bool   `json:"isEnabled"`
}

type ReconnectRequest struct {
	Type      string           `json:"type"`
	SessionID domain.SessionID `json:"sessionId"`
}

type RoomJoined struct {
	Type             string               `json:"type"`
	SessionID        domain.SessionID     `json:"sessionId"`
	ParticipantCount int                  `json:"participantCount"`
	Participants     []domain.Participant `json:"participants"`
}

// ErrorEvent is the shape of every unicast error notice
// (room-join-error, call-error, end-session-error, reconnect-failed).
type ErrorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

type UserJoined struct {
	Type             string        `json:"type"`
	UserID           domain.UserID `json:"userId"`
	Role             domain.Role   `json:"role"`
	ParticipantCount int           `json:"participantCount"`
}

type UserLeft struct {
	Type             string        `json:"type"`
	UserID           domain.UserID `json:"userId"`
	ParticipantCount int           `json:"participantCount"`
}

type IncomingCall struct {
	Type         string          `json:"type"`
	CallerUserID domain.UserID   `json:"callerUserId"`
	CallerRole   domain.Role     `json:"callerRole"`
	Offer        json.RawMessage `json:"offer"`
}

type CallAnswered struct {
	Type           string          `json:"type"`
	AnswererUserID domain.UserID   `json:"answererUserId"`
	Answer         json.RawMessage `json:"answer"`
}

type CandidateFromPeer struct {
	Type       string          `json:"type"`
	FromUserID domain.UserID   `json:"fromUserId"`
	Candidate  json.RawMessage `json:"candidate"`
}

type MediaToggled struct {
	Type      string        `json:"type"`
	UserID    domain.UserID `json:"userId"`
	MediaType string        `json:"mediaType"`
	IsEnabled bool          `json:"isEnabled"`
}

type SessionEnded struct {
	Type      string           `json:"type"`
	SessionID domain.SessionID `json:"sessionId"`
	EndedBy   domain.UserID    `json:"endedBy"`
	Reason    string           `json:"reason"`
	Message   string           `json:"message"`
}

type ReconnectSuccess struct {
	Type      string           `json:"type"`
	SessionID domain.SessionID `json:"sessionId"`
	Message   string           `json:"message"`
}
