package room

import "testing"

func drain(t *testing.T, p *Peer) []*PeerListSnapshot {
	t.Helper()
	var out []*PeerListSnapshot
	for {
		select {
		case msg := <-p.Outbound:
			snap, ok := msg.(*PeerListSnapshot)
			if !ok {
				t.Fatalf("unexpected message type on outbound channel: %T", msg)
			}
			out = append(out, snap)
		default:
			return out
		}
	}
}

func TestJoinRejectsDuplicatePeerIDInSameRoom(t *testing.T) {
	reg := NewRegistry()

	if _, err := reg.Join("room-1", "alice", 8); err != nil {
		t.Fatalf("first join: unexpected error: %v", err)
	}
	if _, err := reg.Join("room-1", "alice", 8); err != ErrPeerIDInUse {
		t.Fatalf("expected ErrPeerIDInUse, got %v", err)
	}
}

func TestJoinAllowsSamePeerIDInDifferentRooms(t *testing.T) {
	reg := NewRegistry()

	if _, err := reg.Join("room-1", "alice", 8); err != nil {
		t.Fatalf("room-1 join: unexpected error: %v", err)
	}
	if _, err := reg.Join("room-2", "alice", 8); err != nil {
		t.Fatalf("room-2 join: unexpected error: %v", err)
	}
}

func TestJoinBroadcastsOrderedPeerListToEveryMember(t *testing.T) {
	reg := NewRegistry()

	alice, err := reg.Join("room-1", "alice", 8)
	if err != nil {
		t.Fatalf("alice join: %v", err)
	}
	drain(t, alice) // alice's own join broadcast

	bob, err := reg.Join("room-1", "bob", 8)
	if err != nil {
		t.Fatalf("bob join: %v", err)
	}

	aliceMsgs := drain(t, alice)
	bobMsgs := drain(t, bob)

	if len(aliceMsgs) != 1 || len(bobMsgs) != 1 {
		t.Fatalf("expected exactly one broadcast each, got alice=%d bob=%d", len(aliceMsgs), len(bobMsgs))
	}

	want := []string{"alice", "bob"}
	for _, snap := range [][]string{aliceMsgs[0].Peers, bobMsgs[0].Peers} {
		if len(snap) != 2 || snap[0] != want[0] || snap[1] != want[1] {
			t.Fatalf("expected insertion-ordered peer list %v, got %v", want, snap)
		}
	}
}

func TestLeaveIsIdempotentAndBroadcastsRemainingMembers(t *testing.T) {
	reg := NewRegistry()

	alice, _ := reg.Join("room-1", "alice", 8)
	bob, _ := reg.Join("room-1", "bob", 8)
	drain(t, alice)
	drain(t, bob)

	reg.Leave(alice)
	if alice.State() != StateClosed {
		t.Fatalf("expected alice to be marked closed after leave, got %v", alice.State())
	}

	bobMsgs := drain(t, bob)
	if len(bobMsgs) != 1 || len(bobMsgs[0].Peers) != 1 || bobMsgs[0].Peers[0] != "bob" {
		t.Fatalf("expected bob to see a single-member peer list after alice left, got %+v", bobMsgs)
	}

	// Leaving again must be a silent no-op, not a second broadcast.
	reg.Leave(alice)
	if msgs := drain(t, bob); len(msgs) != 0 {
		t.Fatalf("expected no further broadcast from a redundant leave, got %+v", msgs)
	}
}

func TestLeaveDestroysEmptyRoomAndAllowsRejoin(t *testing.T) {
	reg := NewRegistry()

	alice, _ := reg.Join("room-1", "alice", 8)
	reg.Leave(alice)

	if p := reg.Lookup("room-1", "alice"); p != nil {
		t.Fatalf("expected no trace of alice after leaving an emptied room, got %+v", p)
	}
	if peers := reg.PeersOf("room-1"); len(peers) != 0 {
		t.Fatalf("expected empty room to report no peers, got %v", peers)
	}

	// The room id must be reusable once empty.
	if _, err := reg.Join("room-1", "alice", 8); err != nil {
		t.Fatalf("expected rejoin into a destroyed room to succeed, got %v", err)
	}
}

func TestLookupAndPeersOfOnUnknownRoom(t *testing.T) {
	reg := NewRegistry()

	if p := reg.Lookup("ghost-room", "nobody"); p != nil {
		t.Fatalf("expected nil for unknown room, got %+v", p)
	}
	if peers := reg.PeersOf("ghost-room"); peers != nil {
		t.Fatalf("expected nil peer list for unknown room, got %v", peers)
	}
}

func TestMembershipChangeCallbackFiresOnJoinAndLeave(t *testing.T) {
	reg := NewRegistry()

	var events []string
	reg.OnMembershipChange(func(roomID string) {
		events = append(events, roomID)
	})

	alice, _ := reg.Join("room-1", "alice", 8)
	reg.Leave(alice)

	if len(events) != 2 || events[0] != "room-1" || events[1] != "room-1" {
		t.Fatalf("expected two membership-change callbacks for room-1, got %v", events)
	}
}

func TestRequestPeerListResendsCurrentMembershipWithoutMutating(t *testing.T) {
	reg := NewRegistry()

	alice, _ := reg.Join("room-1", "alice", 8)
	drain(t, alice)

	reg.RequestPeerList("room-1", "alice")
	msgs := drain(t, alice)
	if len(msgs) != 1 || len(msgs[0].Peers) != 1 || msgs[0].Peers[0] != "alice" {
		t.Fatalf("expected a single-member refresh, got %+v", msgs)
	}

	if peers := reg.PeersOf("room-1"); len(peers) != 1 {
		t.Fatalf("RequestPeerList must not mutate membership, got %v", peers)
	}
}
