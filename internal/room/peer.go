package room

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"signalrelay/internal/constants"
)

// PeerState is the per-peer signaling state from spec.md §4.3. It lives on
// the Peer record (not in the signaling FSM package) because spec.md §3
// lists "current signaling state" as a Peer attribute; the Signaling FSM
// (internal/signaling) is what drives transitions between these values, but
// the registry owns the storage, matching the design note that the
// Registry owns Peer records outright.
type PeerState int32

const (
	StateConnected PeerState = iota
	StateInviting
	StateOffered
	StateAnswering
	StateInCall
	StateEnding
	StateClosed
)

func (s PeerState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateInviting:
		return "inviting"
	case StateOffered:
		return "offered"
	case StateAnswering:
		return "answering"
	case StateInCall:
		return "in_call"
	case StateEnding:
		return "ending"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Peer is one participant: one signaling connection, at most one media
// session, reachable through exactly one outbound channel (spec.md §3
// invariant 1). Outbound is single-producer-many/single-consumer: the
// registry and the signaling FSM both enqueue onto it; the owning
// connection's writer goroutine is the sole consumer.
type Peer struct {
	ID       string
	RoomID   string
	Outbound chan any

	// CloseSignal is closed exactly once, by RequestClose, when the peer's
	// outbound backpressure policy decides the connection must go away. The
	// owning connection's writer pump selects on it alongside Outbound.
	CloseSignal chan struct{}

	state     atomic.Int32
	dropped   atomic.Int64
	closeOnce sync.Once
}

func newPeer(roomID, peerID string, outboundBuffer int) *Peer {
	p := &Peer{
		ID:          peerID,
		RoomID:      roomID,
		Outbound:    make(chan any, outboundBuffer),
		CloseSignal: make(chan struct{}),
	}
	p.state.Store(int32(StateConnected))
	return p
}

// RequestClose asks the peer's connection to close. Safe to call more than
// once or from multiple goroutines.
func (p *Peer) RequestClose() {
	p.closeOnce.Do(func() { close(p.CloseSignal) })
}

// State returns the peer's current signaling state.
func (p *Peer) State() PeerState {
	return PeerState(p.state.Load())
}

// SetState unconditionally sets the peer's signaling state. Legality of
// the transition is the Signaling FSM's concern (internal/signaling); the
// registry stores whatever it's told.
func (p *Peer) SetState(s PeerState) {
	p.state.Store(int32(s))
}

// CompareAndSwapState is the primitive the FSM uses to make a transition
// atomic with respect to concurrent readers/writers of the same peer.
func (p *Peer) CompareAndSwapState(from, to PeerState) bool {
	return p.state.CompareAndSwap(int32(from), int32(to))
}

// Enqueue pushes a droppable envelope (peer-list refresh, ICE candidate)
// onto the peer's outbound channel without blocking. A full channel counts
// as a drop rather than an immediate close: the teacher's Hub tolerates a
// slow client up to maxDroppedMessagesBeforeDisconnect drops before closing
// it, so this mirrors that threshold via
// constants.MaxDroppedEnvelopesBeforeDisconnect rather than disconnecting on
// the very first full channel.
func (p *Peer) Enqueue(msg any) bool {
	select {
	case p.Outbound <- msg:
		return true
	default:
		dropped := p.dropped.Add(1)
		if dropped%10 == 1 {
			slog.Warn("dropping envelope for slow peer", "peer_id", p.ID, "room_id", p.RoomID, "dropped", dropped)
		}
		if dropped >= constants.MaxDroppedEnvelopesBeforeDisconnect {
			slog.Warn("disconnecting slow peer", "peer_id", p.ID, "room_id", p.RoomID, "dropped", dropped)
			p.RequestClose()
		}
		return false
	}
}

// EnqueueCritical pushes an envelope that spec.md §7.4 ("resource
// exhaustion") forbids silently dropping — CallRequest, CallResponse,
// Offer/Answer, EndCall. Unlike Enqueue, a full channel here closes the
// connection immediately rather than counting toward the slow-client
// threshold: buffering further behind an unresponsive client would only
// grow an unbounded backlog of call-lifecycle state.
func (p *Peer) EnqueueCritical(msg any) bool {
	select {
	case p.Outbound <- msg:
		return true
	default:
		slog.Warn("closing peer: critical envelope dropped on full outbound queue", "peer_id", p.ID, "room_id", p.RoomID)
		p.RequestClose()
		return false
	}
}
