package signal

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/edforge/interview/internal/access"
	"github.com/edforge/interview/internal/auth"
	"github.com/edforge/interview/internal/core"
	"github.com/edforge/interview/internal/domain"
	"github.com/edforge/interview/internal/protocol"
)

type fakeConn struct {
	frames [][]byte
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {}

func (c *fakeConn) types(t *testing.T) []string {
	t.Helper()
	out := make([]string, 0, len(c.frames))
	for _, f := range c.frames {
		var env protocol.Envelope
		if err := json.Unmarshal(f, &env); err != nil {
			t.Fatalf("bad frame %q: %v", f, err)
		}
		out = append(out, env.Type)
	}
	return out
}

func (c *fakeConn) last(t *testing.T, v any) {
	t.Helper()
	if len(c.frames) == 0 {
		t.Fatalf("no frames sent")
	}
	if err := json.Unmarshal(c.frames[len(c.frames)-1], v); err != nil {
		t.Fatalf("decode last frame: %v", err)
	}
}

type relayStore struct {
	owner   domain.UserID
	booked  map[domain.UserID]bool
	status  domain.SessionStatus
	err     error
	statErr error
}

func (s *relayStore) SessionOwner(context.Context, domain.SessionID) (domain.UserID, error) {
	return s.owner, s.err
}

func (s *relayStore) HasActiveBooking(_ context.Context, uid domain.UserID, _ domain.SessionID) (bool, error) {
	return s.booked[uid], s.err
}

func (s *relayStore) SessionStatus(context.Context, domain.SessionID) (domain.SessionStatus, error) {
	if s.statErr != nil {
		return "", s.statErr
	}
	if s.status == "" {
		return domain.SessionActive, nil
	}
	return s.status, nil
}

func (s *relayStore) CompleteSession(context.Context, domain.SessionID) error {
	s.status = domain.SessionCompleted
	return s.err
}

func newTestController(store access.Store) *Controller {
	return NewController(core.NewRegistry(), access.NewValidator(store), store)
}

func dispatch(t *testing.T, ctl *Controller, st *connState, c core.SignalConnection, v any) {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	ctl.handleMessage(context.Background(), st, c, b)
}

func join(t *testing.T, ctl *Controller, uid domain.UserID, role domain.Role, sid domain.SessionID) (*connState, *fakeConn) {
	t.Helper()
	st := &connState{identity: auth.Identity{UserID: uid, Role: role}}
	c := &fakeConn{}
	dispatch(t, ctl, st, c, protocol.JoinRoom{Type: protocol.TypeJoinRoom, SessionID: sid})
	return st, c
}

func defaultStore() *relayStore {
	return &relayStore{
		owner:  "alice",
		booked: map[domain.UserID]bool{"bob": true, "carl": true},
	}
}

func TestJoin_RegistersAndAnnounces(t *testing.T) {
	ctl := newTestController(defaultStore())

	_, aConn := join(t, ctl, "alice", domain.RoleInstructor, "s1")
	var joined protocol.RoomJoined
	aConn.last(t, &joined)
	if joined.Type != protocol.TypeRoomJoined || joined.ParticipantCount != 1 || len(joined.Participants) != 0 {
		t.Fatalf("unexpected room-joined: %+v", joined)
	}

	_, bConn := join(t, ctl, "bob", domain.RoleLearner, "s1")
	bConn.last(t, &joined)
	if joined.ParticipantCount != 2 || len(joined.Participants) != 1 || joined.Participants[0].UserID != "alice" {
		t.Fatalf("joiner must see the other participant: %+v", joined)
	}

	var userJoined protocol.UserJoined
	aConn.last(t, &userJoined)
	if userJoined.Type != protocol.TypeUserJoined || userJoined.UserID != "bob" || userJoined.ParticipantCount != 2 {
		t.Fatalf("room must hear user-joined for bob: %+v", userJoined)
	}
}

func TestJoin_DeniedUserNeverRegistered(t *testing.T) {
	ctl := newTestController(defaultStore())
	join(t, ctl, "alice", domain.RoleInstructor, "s1")

	st, c := join(t, ctl, "mallory", domain.RoleLearner, "s1")
	var ev protocol.ErrorEvent
	c.last(t, &ev)
	if ev.Type != protocol.TypeRoomJoinError {
		t.Fatalf("expected room-join-error, got %+v", ev)
	}
	if st.room != "" {
		t.Fatalf("denied user must not hold room state")
	}
	if _, ok := ctl.Registry.Find("mallory"); ok {
		t.Fatalf("denied user must not appear in any room")
	}
	if got := ctl.Registry.ParticipantCount("s1"); got != 1 {
		t.Fatalf("room state must be unchanged, count %d", got)
	}
}

func TestJoin_FailsClosedWhenStoreErrors(t *testing.T) {
	store := defaultStore()
	store.err = errors.New("db down")
	ctl := newTestController(store)

	_, c := join(t, ctl, "bob", domain.RoleLearner, "s1")
	var ev protocol.ErrorEvent
	c.last(t, &ev)
	if ev.Type != protocol.TypeRoomJoinError {
		t.Fatalf("store failure must deny the join, got %+v", ev)
	}
}

func TestCallUser_UnicastToTargetOnly(t *testing.T) {
	ctl := newTestController(defaultStore())
	aSt, aConn := join(t, ctl, "alice", domain.RoleInstructor, "s1")
	_, bConn := join(t, ctl, "bob", domain.RoleLearner, "s1")
	_, cConn := join(t, ctl, "carl", domain.RoleLearner, "s1")

	before := len(cConn.frames)
	dispatch(t, ctl, aSt, aConn, protocol.CallUser{
		Type:         protocol.TypeCallUser,
		TargetUserID: "bob",
		Offer:        json.RawMessage(`{"type":"offer","sdp":"v=0"}`),
	})

	var call protocol.IncomingCall
	bConn.last(t, &call)
	if call.Type != protocol.TypeIncomingCall || call.CallerUserID != "alice" || call.CallerRole != domain.RoleInstructor {
		t.Fatalf("unexpected incoming-call: %+v", call)
	}
	if string(call.Offer) != `{"type":"offer","sdp":"v=0"}` {
		t.Fatalf("offer must be relayed verbatim, got %s", call.Offer)
	}
	if len(cConn.frames) != before {
		t.Fatalf("negotiation must never be broadcast: carl got %d extra frames", len(cConn.frames)-before)
	}
}

func TestCallUser_MissingTargetAnswersSenderOnly(t *testing.T) {
	ctl := newTestController(defaultStore())
	aSt, aConn := join(t, ctl, "alice", domain.RoleInstructor, "s1")
	_, bConn := join(t, ctl, "bob", domain.RoleLearner, "s1")

	before := len(bConn.frames)
	dispatch(t, ctl, aSt, aConn, protocol.CallUser{Type: protocol.TypeCallUser, TargetUserID: "ghost"})

	var ev protocol.ErrorEvent
	aConn.last(t, &ev)
	if ev.Type != protocol.TypeCallError {
		t.Fatalf("expected call-error to sender, got %+v", ev)
	}
	if len(bConn.frames) != before {
		t.Fatalf("error must not reach the room")
	}
}

func TestAnswerAndCandidate_Relay(t *testing.T) {
	ctl := newTestController(defaultStore())
	aSt, aConn := join(t, ctl, "alice", domain.RoleInstructor, "s1")
	bSt, bConn := join(t, ctl, "bob", domain.RoleLearner, "s1")

	dispatch(t, ctl, bSt, bConn, protocol.AnswerCall{
		Type:         protocol.TypeAnswerCall,
		CallerUserID: "alice",
		Answer:       json.RawMessage(`{"type":"answer"}`),
	})
	var answered protocol.CallAnswered
	aConn.last(t, &answered)
	if answered.AnswererUserID != "bob" || string(answered.Answer) != `{"type":"answer"}` {
		t.Fatalf("unexpected call-answered: %+v", answered)
	}

	dispatch(t, ctl, aSt, aConn, protocol.CandidateToPeer{
		Type:         protocol.TypeICECandidate,
		TargetUserID: "bob",
		Candidate:    json.RawMessage(`{"candidate":"c1"}`),
	})
	var cand protocol.CandidateFromPeer
	bConn.last(t, &cand)
	if cand.Type != protocol.TypeICECandidate || cand.FromUserID != "alice" || string(cand.Candidate) != `{"candidate":"c1"}` {
		t.Fatalf("unexpected candidate relay: %+v", cand)
	}
}

func TestToggle_BroadcastsToRoomOnly(t *testing.T) {
	ctl := newTestController(defaultStore())
	aSt, aConn := join(t, ctl, "alice", domain.RoleInstructor, "s1")
	_, bConn := join(t, ctl, "bob", domain.RoleLearner, "s1")

	before := len(aConn.frames)
	dispatch(t, ctl, aSt, aConn, protocol.ToggleMedia{Type: protocol.TypeToggleAudio, IsEnabled: false})

	var toggled protocol.MediaToggled
	bConn.last(t, &toggled)
	if toggled.UserID != "alice" || toggled.MediaType != "audio" || toggled.IsEnabled {
		t.Fatalf("unexpected media-toggled: %+v", toggled)
	}
	if len(aConn.frames) != before {
		t.Fatalf("toggle notice must not echo to sender")
	}
}

func TestLeave_AnnouncesAndDeletesEmptyRoom(t *testing.T) {
	ctl := newTestController(defaultStore())
	aSt, _ := join(t, ctl, "alice", domain.RoleInstructor, "s1")
	bSt, bConn := join(t, ctl, "bob", domain.RoleLearner, "s1")

	dispatch(t, ctl, aSt, &fakeConn{}, protocol.Envelope{Type: protocol.TypeLeaveRoom})
	var left protocol.UserLeft
	bConn.last(t, &left)
	if left.UserID != "alice" || left.ParticipantCount != 1 {
		t.Fatalf("unexpected user-left: %+v", left)
	}

	dispatch(t, ctl, bSt, bConn, protocol.Envelope{Type: protocol.TypeLeaveRoom})
	if s := ctl.Registry.Stats(); s.Rooms != 0 {
		t.Fatalf("room must be deleted with its last participant, stats %+v", s)
	}
	// A second leave is a no-op, not a fault.
	dispatch(t, ctl, bSt, bConn, protocol.Envelope{Type: protocol.TypeLeaveRoom})
}

func TestMalformedAndUnknownFramesAreDropped(t *testing.T) {
	ctl := newTestController(defaultStore())
	st, c := join(t, ctl, "alice", domain.RoleInstructor, "s1")

	before := len(c.frames)
	ctl.handleMessage(context.Background(), st, c, []byte(`{not json`))
	ctl.handleMessage(context.Background(), st, c, []byte(`{"type":"no-such-event"}`))
	ctl.handleMessage(context.Background(), st, c, []byte(`{"type":"call-user","offer":5,"targetUserId":{}}`))
	if len(c.frames) != before {
		t.Fatalf("malformed frames must be dropped silently, got %v", c.types(t)[before:])
	}
	if got := ctl.Registry.ParticipantCount("s1"); got != 1 {
		t.Fatalf("room state must survive malformed input")
	}
}

func TestEndSession_OperatorOnly(t *testing.T) {
	ctl := newTestController(defaultStore())
	join(t, ctl, "alice", domain.RoleInstructor, "s1")
	bSt, bConn := join(t, ctl, "bob", domain.RoleLearner, "s1")

	dispatch(t, ctl, bSt, bConn, protocol.Envelope{Type: protocol.TypeEndSession})
	var ev protocol.ErrorEvent
	bConn.last(t, &ev)
	if ev.Type != protocol.TypeEndSessionError {
		t.Fatalf("learner must not end the session, got %+v", ev)
	}
	if got := ctl.Registry.ParticipantCount("s1"); got != 2 {
		t.Fatalf("room must be untouched after refused end-session")
	}
}

func TestEndSession_ClosesRoomForEveryone(t *testing.T) {
	store := defaultStore()
	ctl := newTestController(store)
	aSt, aConn := join(t, ctl, "alice", domain.RoleInstructor, "s1")
	_, bConn := join(t, ctl, "bob", domain.RoleLearner, "s1")

	dispatch(t, ctl, aSt, aConn, protocol.Envelope{Type: protocol.TypeEndSession})

	var ended protocol.SessionEnded
	bConn.last(t, &ended)
	if ended.Type != protocol.TypeSessionEnded || ended.EndedBy != "alice" || ended.Reason != "instructor_ended" {
		t.Fatalf("unexpected session-ended: %+v", ended)
	}
	aConn.last(t, &ended)
	if ended.Type != protocol.TypeSessionEnded {
		t.Fatalf("the instructor hears session-ended too")
	}
	if s := ctl.Registry.Stats(); s.Rooms != 0 || s.Participants != 0 {
		t.Fatalf("room must be gone after end-session, stats %+v", s)
	}
	if store.status != domain.SessionCompleted {
		t.Fatalf("session must be marked completed in the store")
	}
	if aSt.room != "" {
		t.Fatalf("ender's connection state must be cleared")
	}
}

func TestReconnect_RejectedForEndedSession(t *testing.T) {
	store := defaultStore()
	store.status = domain.SessionCompleted
	ctl := newTestController(store)

	st := &connState{identity: auth.Identity{UserID: "bob", Role: domain.RoleLearner}}
	c := &fakeConn{}
	dispatch(t, ctl, st, c, protocol.ReconnectRequest{Type: protocol.TypeReconnectRequest, SessionID: "s1"})

	var ev protocol.ErrorEvent
	c.last(t, &ev)
	if ev.Type != protocol.TypeReconnectFailed {
		t.Fatalf("reconnect to ended session must fail, got %+v", ev)
	}
	if _, ok := ctl.Registry.Find("bob"); ok {
		t.Fatalf("failed reconnect must not register")
	}
}

func TestReconnect_RejoinsWithoutDuplicating(t *testing.T) {
	ctl := newTestController(defaultStore())
	join(t, ctl, "alice", domain.RoleInstructor, "s1")
	bSt, _ := join(t, ctl, "bob", domain.RoleLearner, "s1")

	// Fresh connection for the same user, as after a network blip.
	st := &connState{identity: bSt.identity}
	c := &fakeConn{}
	dispatch(t, ctl, st, c, protocol.ReconnectRequest{Type: protocol.TypeReconnectRequest, SessionID: "s1"})

	types := c.types(t)
	if types[len(types)-1] != protocol.TypeReconnectSuccess {
		t.Fatalf("expected reconnect-success last, got %v", types)
	}
	if got := ctl.Registry.ParticipantCount("s1"); got != 2 {
		t.Fatalf("reconnect must replace, not duplicate: count %d", got)
	}
	m, _ := ctl.Registry.Lookup("s1", "bob")
	if m.Conn != c {
		t.Fatalf("registry must point at the fresh connection")
	}
}

func TestStaleDisconnectKeepsReconnectedParticipant(t *testing.T) {
	ctl := newTestController(defaultStore())
	_, aConn := join(t, ctl, "alice", domain.RoleInstructor, "s1")
	bSt, bConn := join(t, ctl, "bob", domain.RoleLearner, "s1")

	// Bob comes back on a fresh socket before the old one is reaped.
	st2 := &connState{identity: bSt.identity}
	conn2 := &fakeConn{}
	dispatch(t, ctl, st2, conn2, protocol.ReconnectRequest{Type: protocol.TypeReconnectRequest, SessionID: "s1"})
	if m, _ := ctl.Registry.Lookup("s1", "bob"); m.Conn != conn2 {
		t.Fatalf("reconnect must register the fresh connection")
	}

	// The old socket's read pump now runs its disconnect cleanup.
	before := len(aConn.frames)
	ctl.leaveRoom(bSt, bConn)

	if got := ctl.Registry.ParticipantCount("s1"); got != 2 {
		t.Fatalf("stale disconnect evicted the reconnected participant: count %d, want 2", got)
	}
	if m, ok := ctl.Registry.Lookup("s1", "bob"); !ok || m.Conn != conn2 {
		t.Fatalf("registry must keep pointing at the fresh connection")
	}
	if len(aConn.frames) != before {
		t.Fatalf("no user-left may be broadcast for a stale disconnect, got %v", aConn.types(t)[before:])
	}

	// A real disconnect of the fresh socket still counts as a leave.
	ctl.leaveRoom(st2, conn2)
	if got := ctl.Registry.ParticipantCount("s1"); got != 1 {
		t.Fatalf("live disconnect must remove the participant, count %d", got)
	}
	var left protocol.UserLeft
	aConn.last(t, &left)
	if left.Type != protocol.TypeUserLeft || left.UserID != "bob" {
		t.Fatalf("room must hear user-left for the live disconnect: %+v", left)
	}
}

func TestSwitchingRoomsLeavesTheOldOne(t *testing.T) {
	store := defaultStore()
	store.booked["bob"] = true
	ctl := newTestController(store)
	join(t, ctl, "alice", domain.RoleInstructor, "s1")
	bSt, bConn := join(t, ctl, "bob", domain.RoleLearner, "s1")

	dispatch(t, ctl, bSt, bConn, protocol.JoinRoom{Type: protocol.TypeJoinRoom, SessionID: "s2"})
	if sid, _ := ctl.Registry.Find("bob"); sid != "s2" {
		t.Fatalf("bob must end up in s2 only, found %q", sid)
	}
	if got := ctl.Registry.ParticipantCount("s1"); got != 1 {
		t.Fatalf("old room must drop the switcher, count %d", got)
	}
}
