// Package room implements the Room Registry (spec.md §4.2): the
// process-wide directory of rooms and their peers, and the source of
// truth for room membership.
package room

import (
	"log/slog"
	"sync"

	"signalrelay/internal/constants"
)

// PeerListSnapshot is the full ordered membership of a room, broadcast to
// every member on every join/leave (spec.md §4.2 "Broadcast semantics").
// It deliberately carries only peer ids — turning this into a wire
// envelope (message_type PeerList) is the gateway's job (envelopeFor in
// internal/gateway), which keeps the registry free of any dependency on
// the wire format.
type PeerListSnapshot struct {
	RoomID string
	Peers  []string
}

// MembershipChangeFunc is invoked after a room's membership changes so the
// Media Session Manager can rebuild forwarder links (spec.md §4.4). It is
// called with the lock already released, preserving the fixed lock order
// from spec.md §9: room-lock then session-lock, never the reverse.
type MembershipChangeFunc func(roomID string)

type memberRoom struct {
	mu      sync.RWMutex
	id      string
	peers   map[string]*Peer
	order   []string // insertion order, for deterministic broadcasts
}

func newMemberRoom(id string) *memberRoom {
	return &memberRoom{id: id, peers: make(map[string]*Peer)}
}

// snapshotLocked must be called with r.mu held (read or write).
func (r *memberRoom) snapshotLocked() []string {
	out := make([]string, 0, len(r.order))
	for _, id := range r.order {
		if _, ok := r.peers[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// Registry is the process-wide directory of rooms. It is created once at
// startup and passed explicitly to every component that needs it (spec.md
// §9 "Global mutable state"); it is never a package-level singleton.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*memberRoom

	onChangeMu sync.RWMutex
	onChange   []MembershipChangeFunc
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*memberRoom)}
}

// OnMembershipChange registers a callback invoked after every join/leave.
func (reg *Registry) OnMembershipChange(fn MembershipChangeFunc) {
	reg.onChangeMu.Lock()
	defer reg.onChangeMu.Unlock()
	reg.onChange = append(reg.onChange, fn)
}

func (reg *Registry) notifyChange(roomID string) {
	reg.onChangeMu.RLock()
	fns := append([]MembershipChangeFunc(nil), reg.onChange...)
	reg.onChangeMu.RUnlock()
	for _, fn := range fns {
		fn(roomID)
	}
}

func (reg *Registry) getOrCreateRoom(roomID string) *memberRoom {
	reg.mu.RLock()
	r, ok := reg.rooms[roomID]
	reg.mu.RUnlock()
	if ok {
		return r
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if r, ok := reg.rooms[roomID]; ok {
		return r
	}
	r = newMemberRoom(roomID)
	reg.rooms[roomID] = r
	return r
}

// Join creates the room if absent, installs peerID with outboundBuffer
// capacity for its outbound channel, and broadcasts the updated peer list
// to every member of the room, itself included (spec.md §4.2). It
// rejects a duplicate peer_id within the same room.
func (reg *Registry) Join(roomID, peerID string, outboundBuffer int) (*Peer, error) {
	r := reg.getOrCreateRoom(roomID)

	r.mu.Lock()
	if _, exists := r.peers[peerID]; exists {
		r.mu.Unlock()
		return nil, ErrPeerIDInUse
	}

	peer := newPeer(roomID, peerID, outboundBuffer)
	r.peers[peerID] = peer
	r.order = append(r.order, peerID)
	snapshot := PeerListSnapshot{RoomID: roomID, Peers: r.snapshotLocked()}
	reg.broadcastLocked(r, snapshot)
	r.mu.Unlock()

	reg.notifyChange(roomID)
	return peer, nil
}

// Leave removes peer from its room, broadcasts the updated peer list, and
// destroys the room if it is now empty. Idempotent: leaving twice is a
// no-op the second time.
func (reg *Registry) Leave(peer *Peer) {
	if peer == nil {
		return
	}

	reg.mu.RLock()
	r, ok := reg.rooms[peer.RoomID]
	reg.mu.RUnlock()
	if !ok {
		return
	}

	r.mu.Lock()
	if _, exists := r.peers[peer.ID]; !exists {
		r.mu.Unlock()
		return
	}
	delete(r.peers, peer.ID)
	peer.SetState(StateClosed)

	empty := len(r.peers) == 0
	var snapshot PeerListSnapshot
	if !empty {
		snapshot = PeerListSnapshot{RoomID: peer.RoomID, Peers: r.snapshotLocked()}
		reg.broadcastLocked(r, snapshot)
	}
	r.mu.Unlock()

	if empty {
		reg.mu.Lock()
		// Re-check under the top-level lock: another Join may have
		// repopulated this room between the unlock above and here.
		if current, ok := reg.rooms[peer.RoomID]; ok && current == r {
			current.mu.RLock()
			stillEmpty := len(current.peers) == 0
			current.mu.RUnlock()
			if stillEmpty {
				delete(reg.rooms, peer.RoomID)
			}
		}
		reg.mu.Unlock()
	}

	reg.notifyChange(peer.RoomID)
}

// broadcastLocked must be called with r.mu held for writing.
func (reg *Registry) broadcastLocked(r *memberRoom, snapshot PeerListSnapshot) {
	for _, id := range r.order {
		p, ok := r.peers[id]
		if !ok {
			continue
		}
		if !p.Enqueue(&snapshot) {
			slog.Warn("peer list broadcast dropped: outbound queue full",
				"component", "room", "room_id", r.id, "peer_id", p.ID)
		}
	}
}

// Lookup returns the peer identified by (roomID, peerID), or nil.
func (reg *Registry) Lookup(roomID, peerID string) *Peer {
	reg.mu.RLock()
	r, ok := reg.rooms[roomID]
	reg.mu.RUnlock()
	if !ok {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.peers[peerID]
}

// PeersOf returns an ordered snapshot of a room's membership.
func (reg *Registry) PeersOf(roomID string) []string {
	reg.mu.RLock()
	r, ok := reg.rooms[roomID]
	reg.mu.RUnlock()
	if !ok {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// RequestPeerList re-sends the current peer list to a single peer,
// handling spec.md §6's RequestPeerList command without mutating anything.
func (reg *Registry) RequestPeerList(roomID, peerID string) {
	peer := reg.Lookup(roomID, peerID)
	if peer == nil {
		return
	}
	snapshot := PeerListSnapshot{RoomID: roomID, Peers: reg.PeersOf(roomID)}
	if !peer.Enqueue(&snapshot) {
		slog.Warn("peer list refresh dropped: outbound queue full",
			"component", "room", "room_id", roomID, "peer_id", peerID)
	}
}

// DefaultOutboundBuffer is the outbound channel capacity new peers get
// when the caller doesn't need a different bound.
const DefaultOutboundBuffer = constants.OutboundQueueHighWaterMark
