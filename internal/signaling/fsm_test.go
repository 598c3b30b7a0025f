package signaling

import (
	"testing"

	"signalrelay/internal/room"
)

type fakeMedia struct {
	sessions map[string]bool
}

func newFakeMedia() *fakeMedia {
	return &fakeMedia{sessions: make(map[string]bool)}
}

func key(roomID, peerID string) string { return roomID + "/" + peerID }

func (m *fakeMedia) CreateSession(roomID, peerID string) error {
	m.sessions[key(roomID, peerID)] = true
	return nil
}

func (m *fakeMedia) ApplyOffer(roomID, peerID, sdp string) (string, error) {
	m.sessions[key(roomID, peerID)] = true
	return "answer-for-" + sdp, nil
}

func (m *fakeMedia) ApplyAnswer(roomID, peerID, sdp string) error {
	return nil
}

func (m *fakeMedia) AddICECandidate(roomID, peerID, candidate string) error {
	return nil
}

func (m *fakeMedia) CloseSession(roomID, peerID string) error {
	delete(m.sessions, key(roomID, peerID))
	return nil
}

func (m *fakeMedia) OnConnected(fn func(roomID, peerID string)) {}

func drainEnvelopes(t *testing.T, p *room.Peer) []*Envelope {
	t.Helper()
	var out []*Envelope
	for {
		select {
		case msg := <-p.Outbound:
			env, ok := msg.(*Envelope)
			if !ok {
				t.Fatalf("unexpected message type on outbound channel: %T", msg)
			}
			out = append(out, env)
		default:
			return out
		}
	}
}

func setup(t *testing.T) (*room.Registry, *FSM, *fakeMedia) {
	t.Helper()
	reg := room.NewRegistry()
	media := newFakeMedia()
	fsm := New(reg, media)
	return reg, fsm, media
}

func TestTwoPeerCallSucceeds(t *testing.T) {
	reg, fsm, media := setup(t)

	a, _ := reg.Join("r1", "A", 8)
	b, _ := reg.Join("r1", "B", 8)
	drainEnvelopes(t, a)
	drainEnvelopes(t, b)

	if err := fsm.Handle(a, &Envelope{MessageType: MessageCallRequest, FromPeer: "A", ToPeers: []string{"B"}, SDP: "offerA"}); err != nil {
		t.Fatalf("call request: %v", err)
	}
	if a.State() != room.StateInviting {
		t.Fatalf("expected A to be inviting, got %v", a.State())
	}
	if b.State() != room.StateAnswering {
		t.Fatalf("expected B to be answering, got %v", b.State())
	}

	bMsgs := drainEnvelopes(t, b)
	if len(bMsgs) != 1 || bMsgs[0].MessageType != MessageCallRequest {
		t.Fatalf("expected B to receive a single CallRequest, got %+v", bMsgs)
	}

	accepted := true
	if err := fsm.Handle(b, &Envelope{MessageType: MessageCallResponse, FromPeer: "B", ToPeer: "A", Accepted: &accepted, SDP: "answerB"}); err != nil {
		t.Fatalf("call response: %v", err)
	}

	if a.State() != room.StateInCall || b.State() != room.StateInCall {
		t.Fatalf("expected both peers in call, got A=%v B=%v", a.State(), b.State())
	}
	if !media.sessions[key("r1", "A")] || !media.sessions[key("r1", "B")] {
		t.Fatalf("expected both media sessions to exist: %+v", media.sessions)
	}

	aMsgs := drainEnvelopes(t, a)
	if len(aMsgs) != 1 || aMsgs[0].MessageType != MessageCallResponse || !*aMsgs[0].Accepted {
		t.Fatalf("expected A to receive an accepted CallResponse, got %+v", aMsgs)
	}
}

func TestCallRejectionReturnsBothToConnected(t *testing.T) {
	reg, fsm, media := setup(t)

	a, _ := reg.Join("r1", "A", 8)
	b, _ := reg.Join("r1", "B", 8)
	drainEnvelopes(t, a)
	drainEnvelopes(t, b)

	_ = fsm.Handle(a, &Envelope{MessageType: MessageCallRequest, FromPeer: "A", ToPeers: []string{"B"}, SDP: "offerA"})
	drainEnvelopes(t, b)

	rejected := false
	if err := fsm.Handle(b, &Envelope{MessageType: MessageCallResponse, FromPeer: "B", ToPeer: "A", Accepted: &rejected, Reason: "busy"}); err != nil {
		t.Fatalf("call response: %v", err)
	}

	if a.State() != room.StateConnected || b.State() != room.StateConnected {
		t.Fatalf("expected both peers back to connected, got A=%v B=%v", a.State(), b.State())
	}
	if media.sessions[key("r1", "A")] || media.sessions[key("r1", "B")] {
		t.Fatalf("expected no media sessions after rejection: %+v", media.sessions)
	}

	aMsgs := drainEnvelopes(t, a)
	if len(aMsgs) != 1 || aMsgs[0].MessageType != MessageCallResponse || *aMsgs[0].Accepted {
		t.Fatalf("expected A to receive a rejected CallResponse, got %+v", aMsgs)
	}

	// A second call request must be immediately legal.
	if err := fsm.Handle(a, &Envelope{MessageType: MessageCallRequest, FromPeer: "A", ToPeers: []string{"B"}, SDP: "offerA2"}); err != nil {
		t.Fatalf("second call request: %v", err)
	}
}

func TestGlareResolvesByLexicographicFromPeer(t *testing.T) {
	reg, fsm, _ := setup(t)

	a, _ := reg.Join("r1", "A", 8)
	b, _ := reg.Join("r1", "B", 8)
	drainEnvelopes(t, a)
	drainEnvelopes(t, b)

	if err := fsm.Handle(a, &Envelope{MessageType: MessageCallRequest, FromPeer: "A", ToPeers: []string{"B"}, SDP: "offerA"}); err != nil {
		t.Fatalf("A call request: %v", err)
	}
	if err := fsm.Handle(b, &Envelope{MessageType: MessageCallRequest, FromPeer: "B", ToPeers: []string{"A"}, SDP: "offerB"}); err != nil {
		t.Fatalf("B call request: %v", err)
	}

	// "A" < "B" lexicographically: A's request must win.
	if b.State() != room.StateAnswering {
		t.Fatalf("expected B to end up answering A's winning request, got %v", b.State())
	}
	if a.State() != room.StateInviting {
		t.Fatalf("expected A to remain inviting, got %v", a.State())
	}

	bMsgs := drainEnvelopes(t, b)
	if len(bMsgs) != 1 || bMsgs[0].FromPeer != "A" {
		t.Fatalf("expected B to see A's request delivered as incoming, got %+v", bMsgs)
	}
}

func TestDisconnectMidCallReleasesMediaSession(t *testing.T) {
	reg, fsm, media := setup(t)

	a, _ := reg.Join("r1", "A", 8)
	b, _ := reg.Join("r1", "B", 8)
	drainEnvelopes(t, a)
	drainEnvelopes(t, b)

	_ = fsm.Handle(a, &Envelope{MessageType: MessageCallRequest, FromPeer: "A", ToPeers: []string{"B"}, SDP: "offerA"})
	drainEnvelopes(t, b)
	accepted := true
	_ = fsm.Handle(b, &Envelope{MessageType: MessageCallResponse, FromPeer: "B", ToPeer: "A", Accepted: &accepted, SDP: "answerB"})
	drainEnvelopes(t, a)

	fsm.Disconnect(a)
	reg.Leave(a)

	if media.sessions[key("r1", "A")] {
		t.Fatalf("expected A's media session released on disconnect")
	}
	if a.State() != room.StateClosed {
		t.Fatalf("expected A closed, got %v", a.State())
	}
}

func TestICECandidateBeforeRemoteDescriptionIsBuffered(t *testing.T) {
	reg, fsm, _ := setup(t)

	a, _ := reg.Join("r1", "A", 8)
	b, _ := reg.Join("r1", "B", 8)
	drainEnvelopes(t, a)
	drainEnvelopes(t, b)

	if err := fsm.Handle(a, &Envelope{MessageType: MessageIceCandidate, FromPeer: "A", ToPeer: "B", Candidate: "cand-1"}); err != nil {
		t.Fatalf("ice candidate: %v", err)
	}

	bMsgs := drainEnvelopes(t, b)
	if len(bMsgs) != 1 || bMsgs[0].Candidate != "cand-1" {
		t.Fatalf("expected candidate still routed to B even while buffered locally, got %+v", bMsgs)
	}

	key := peerKey{"r1", "A"}
	fsm.mu.Lock()
	buffered := len(fsm.iceBuffers[key])
	fsm.mu.Unlock()
	if buffered != 1 {
		t.Fatalf("expected one buffered candidate for A, got %d", buffered)
	}
}
