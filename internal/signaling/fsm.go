package signaling

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"signalrelay/internal/constants"
	"signalrelay/internal/room"
)

type peerKey struct {
	RoomID string
	PeerID string
}

// FSM drives the per-peer signaling state machine (spec.md §4.3): offer/
// answer/call routing, glare resolution, ICE-candidate buffering, and the
// call-acceptance / ICE-negotiation timeouts.
type FSM struct {
	registry *room.Registry
	media    MediaManager

	mu         sync.Mutex
	iceBuffers map[peerKey][]string
	timers     map[peerKey]*time.Timer
}

func New(registry *room.Registry, media MediaManager) *FSM {
	f := &FSM{
		registry:   registry,
		media:      media,
		iceBuffers: make(map[peerKey][]string),
		timers:     make(map[peerKey]*time.Timer),
	}
	media.OnConnected(f.handleMediaConnected)
	return f
}

// handleMediaConnected clears a peer's pending ICE-negotiation timeout once
// its media session actually reaches "connected" (spec.md §5).
func (f *FSM) handleMediaConnected(roomID, peerID string) {
	f.stopTimer(peerKey{roomID, peerID})
}

// Handle dispatches one inbound envelope against the sending peer's state
// machine. peer is the Room Registry record for the connection this
// envelope arrived on; env.PeerID/env.FromPeer are validated against it,
// never trusted on their own (spec.md §4.3 "Routing").
func (f *FSM) Handle(peer *room.Peer, env *Envelope) error {
	switch env.MessageType {
	case MessageCallRequest:
		return f.handleCallRequest(peer, env)
	case MessageCallResponse:
		return f.handleCallResponse(peer, env)
	case MessageOffer, MessageAnswer:
		return f.handleRenegotiation(peer, env)
	case MessageIceCandidate:
		return f.handleICE(peer, env)
	case MessageEndCall:
		return f.handleEndCall(peer, env)
	default:
		return newProtocolError(peer.ID, "handle", fmt.Errorf("%w: %s", ErrUnknownMessageType, env.MessageType))
	}
}

// Disconnect tears down a peer unconditionally: releases its media
// session and clears any buffered ICE candidates or pending timers
// (spec.md §4.3 "Any | Disconnect or connection close | Closed").
// The Room Registry removal itself is the gateway's job, since the
// registry owns the peer record's lifetime, not the FSM.
func (f *FSM) Disconnect(peer *room.Peer) {
	key := peerKey{peer.RoomID, peer.ID}

	f.mu.Lock()
	delete(f.iceBuffers, key)
	if t, ok := f.timers[key]; ok {
		t.Stop()
		delete(f.timers, key)
	}
	f.mu.Unlock()

	peer.SetState(room.StateClosed)
	if err := f.media.CloseSession(peer.RoomID, peer.ID); err != nil {
		slog.Warn("close session on disconnect failed", "room_id", peer.RoomID, "peer_id", peer.ID, "error", err)
	}
}

func (f *FSM) handleCallRequest(peer *room.Peer, env *Envelope) error {
	if env.FromPeer != "" && env.FromPeer != peer.ID {
		return newProtocolError(peer.ID, "call_request", ErrFromPeerMismatch)
	}
	if len(env.ToPeers) == 0 {
		return newProtocolError(peer.ID, "call_request", ErrMissingField)
	}

	if !peer.CompareAndSwapState(room.StateConnected, room.StateInviting) {
		slog.Debug("call request dropped: sender not in connected state",
			"room_id", peer.RoomID, "peer_id", peer.ID, "state", peer.State())
		return nil
	}

	if _, err := f.media.ApplyOffer(peer.RoomID, peer.ID, env.SDP); err != nil {
		peer.SetState(room.StateConnected)
		return newProtocolError(peer.ID, "call_request", err)
	}

	delivered := false
	for _, targetID := range env.ToPeers {
		target := f.registry.Lookup(peer.RoomID, targetID)
		if target == nil {
			slog.Debug("call request target not found", "room_id", peer.RoomID, "peer_id", peer.ID, "target", targetID)
			continue
		}
		if f.deliverCallRequest(peer, target, env) {
			delivered = true
		}
	}

	if !delivered {
		peer.SetState(room.StateConnected)
		_ = f.media.CloseSession(peer.RoomID, peer.ID)
		return newRoutingError(peer.ID, "call_request", ErrTargetNotFound)
	}

	f.armCallAcceptanceTimeout(peer)
	return nil
}

// deliverCallRequest installs target in Answering and enqueues the
// envelope, resolving glare against a reciprocal pending invite per
// spec.md §4.3 "Glare".
func (f *FSM) deliverCallRequest(from, target *room.Peer, env *Envelope) bool {
	if target.CompareAndSwapState(room.StateConnected, room.StateAnswering) {
		target.EnqueueCritical(buildEnvelope(env, func(e *Envelope) { e.FromPeer = from.ID; e.ToPeer = target.ID }))
		return true
	}

	if target.State() == room.StateInviting && glareWinner(from.ID, target.ID) == from.ID {
		// target's own outgoing request to `from` loses; cancel it and
		// accept this one instead.
		target.SetState(room.StateConnected)
		_ = f.media.CloseSession(target.RoomID, target.ID)
		if target.CompareAndSwapState(room.StateConnected, room.StateAnswering) {
			target.EnqueueCritical(buildEnvelope(env, func(e *Envelope) { e.FromPeer = from.ID; e.ToPeer = target.ID }))
			return true
		}
	}

	slog.Debug("call request glare: this request loses", "from", from.ID, "to", target.ID, "target_state", target.State())
	return false
}

// glareWinner returns whichever of a, b has the lexicographically smaller
// peer id, since from_peer values necessarily differ between the two
// reciprocal CallRequests (spec.md §4.3 "Glare").
func glareWinner(a, b string) string {
	if a < b {
		return a
	}
	return b
}

func (f *FSM) handleCallResponse(peer *room.Peer, env *Envelope) error {
	if env.FromPeer != "" && env.FromPeer != peer.ID {
		return newProtocolError(peer.ID, "call_response", ErrFromPeerMismatch)
	}
	if env.ToPeer == "" || env.Accepted == nil {
		return newProtocolError(peer.ID, "call_response", ErrMissingField)
	}

	caller := f.registry.Lookup(peer.RoomID, env.ToPeer)
	if caller == nil {
		return newRoutingError(peer.ID, "call_response", ErrTargetNotFound)
	}

	if !peer.CompareAndSwapState(room.StateAnswering, room.StateInCall) {
		if peer.CompareAndSwapState(room.StateAnswering, room.StateConnected) {
			// accepted=false path below handles the cleanup/notify.
		} else {
			slog.Debug("call response dropped: peer not answering", "room_id", peer.RoomID, "peer_id", peer.ID, "state", peer.State())
			return nil
		}
	}

	f.clearCallAcceptanceTimeout(peer)

	if !*env.Accepted {
		peer.SetState(room.StateConnected)
		_ = f.media.CloseSession(peer.RoomID, peer.ID)
		caller.SetState(room.StateConnected)
		_ = f.media.CloseSession(caller.RoomID, caller.ID)
		caller.EnqueueCritical(buildEnvelope(env, func(e *Envelope) { e.FromPeer = peer.ID; e.ToPeer = caller.ID }))
		return nil
	}

	if err := f.media.CreateSession(peer.RoomID, peer.ID); err != nil {
		peer.SetState(room.StateConnected)
		return newProtocolError(peer.ID, "call_response", err)
	}
	if err := f.media.ApplyAnswer(peer.RoomID, peer.ID, env.SDP); err != nil {
		peer.SetState(room.StateConnected)
		_ = f.media.CloseSession(peer.RoomID, peer.ID)
		return newProtocolError(peer.ID, "call_response", err)
	}

	f.flushICEBuffer(peer)
	f.armICENegotiationTimeout(peer)

	if !caller.CompareAndSwapState(room.StateInviting, room.StateInCall) {
		slog.Warn("caller not in inviting state on accepted call response", "room_id", peer.RoomID, "peer_id", caller.ID, "state", caller.State())
	}
	f.clearCallAcceptanceTimeout(caller)
	f.flushICEBuffer(caller)
	f.armICENegotiationTimeout(caller)

	caller.EnqueueCritical(buildEnvelope(env, func(e *Envelope) { e.FromPeer = peer.ID; e.ToPeer = caller.ID }))
	return nil
}

func (f *FSM) handleRenegotiation(peer *room.Peer, env *Envelope) error {
	if env.FromPeer != "" && env.FromPeer != peer.ID {
		return newProtocolError(peer.ID, string(env.MessageType), ErrFromPeerMismatch)
	}
	if env.ToPeer == "" || env.SDP == "" {
		return newProtocolError(peer.ID, string(env.MessageType), ErrMissingField)
	}

	target := f.registry.Lookup(peer.RoomID, env.ToPeer)
	if target == nil {
		return newRoutingError(peer.ID, string(env.MessageType), ErrTargetNotFound)
	}

	target.EnqueueCritical(buildEnvelope(env, func(e *Envelope) { e.FromPeer = peer.ID; e.ToPeer = target.ID }))
	return nil
}

func (f *FSM) handleICE(peer *room.Peer, env *Envelope) error {
	if env.FromPeer != "" && env.FromPeer != peer.ID {
		return newProtocolError(peer.ID, "ice_candidate", ErrFromPeerMismatch)
	}
	if env.ToPeer == "" || env.Candidate == "" {
		return newProtocolError(peer.ID, "ice_candidate", ErrMissingField)
	}

	target := f.registry.Lookup(peer.RoomID, env.ToPeer)
	if target == nil {
		return newRoutingError(peer.ID, "ice_candidate", ErrTargetNotFound)
	}

	switch peer.State() {
	case room.StateInCall:
		if err := f.media.AddICECandidate(peer.RoomID, peer.ID, env.Candidate); err != nil {
			slog.Debug("add ice candidate failed", "room_id", peer.RoomID, "peer_id", peer.ID, "error", err)
		}
	default:
		f.bufferICE(peer, env.Candidate)
	}

	target.Enqueue(buildEnvelope(env, func(e *Envelope) { e.FromPeer = peer.ID; e.ToPeer = target.ID }))
	return nil
}

func (f *FSM) handleEndCall(peer *room.Peer, env *Envelope) error {
	fromID := env.FromPeer
	if fromID == "" {
		fromID = env.PeerID
	}
	if fromID != "" && fromID != peer.ID {
		return newProtocolError(peer.ID, "end_call", ErrFromPeerMismatch)
	}

	prior := peer.State()
	peer.SetState(room.StateEnding)
	_ = f.media.CloseSession(peer.RoomID, peer.ID)
	peer.SetState(room.StateConnected)

	if prior != room.StateInCall && prior != room.StateInviting && prior != room.StateAnswering {
		return nil
	}

	if env.ToPeer != "" {
		if target := f.registry.Lookup(peer.RoomID, env.ToPeer); target != nil {
			target.SetState(room.StateEnding)
			_ = f.media.CloseSession(target.RoomID, target.ID)
			target.SetState(room.StateConnected)
			target.EnqueueCritical(buildEnvelope(env, func(e *Envelope) { e.FromPeer = peer.ID; e.ToPeer = target.ID }))
		}
	}
	return nil
}

func (f *FSM) bufferICE(peer *room.Peer, candidate string) {
	key := peerKey{peer.RoomID, peer.ID}

	f.mu.Lock()
	defer f.mu.Unlock()

	buf := f.iceBuffers[key]
	buf = append(buf, candidate)
	if len(buf) > constants.ICECandidateBufferCap {
		buf = buf[len(buf)-constants.ICECandidateBufferCap:]
	}
	f.iceBuffers[key] = buf
}

func (f *FSM) flushICEBuffer(peer *room.Peer) {
	key := peerKey{peer.RoomID, peer.ID}

	f.mu.Lock()
	buf := f.iceBuffers[key]
	delete(f.iceBuffers, key)
	f.mu.Unlock()

	for _, candidate := range buf {
		if err := f.media.AddICECandidate(peer.RoomID, peer.ID, candidate); err != nil {
			slog.Debug("flush buffered ice candidate failed", "room_id", peer.RoomID, "peer_id", peer.ID, "error", err)
		}
	}
}

// armTimer replaces any pending timer for peer with one that fires expire
// after d. Shared by the call-acceptance and ICE-negotiation timeouts,
// which never overlap for a given peer (spec.md §5).
func (f *FSM) armTimer(peer *room.Peer, d time.Duration, expire func(*room.Peer)) {
	key := peerKey{peer.RoomID, peer.ID}
	timer := time.AfterFunc(d, func() { expire(peer) })

	f.mu.Lock()
	if old, ok := f.timers[key]; ok {
		old.Stop()
	}
	f.timers[key] = timer
	f.mu.Unlock()
}

func (f *FSM) stopTimer(key peerKey) {
	f.mu.Lock()
	if t, ok := f.timers[key]; ok {
		t.Stop()
		delete(f.timers, key)
	}
	f.mu.Unlock()
}

func (f *FSM) armCallAcceptanceTimeout(peer *room.Peer) {
	f.armTimer(peer, constants.CallAcceptanceTimeout, f.expireCallAcceptance)
}

func (f *FSM) clearCallAcceptanceTimeout(peer *room.Peer) {
	f.stopTimer(peerKey{peer.RoomID, peer.ID})
}

func (f *FSM) expireCallAcceptance(peer *room.Peer) {
	if peer.CompareAndSwapState(room.StateInviting, room.StateConnected) {
		slog.Debug("call acceptance timed out", "room_id", peer.RoomID, "peer_id", peer.ID)
		_ = f.media.CloseSession(peer.RoomID, peer.ID)
	}
}

// armICENegotiationTimeout bounds how long a peer may stay in InCall before
// its media session actually finishes ICE negotiation (spec.md §5: "30s
// from Offer to InCall"). handleMediaConnected clears it on success.
func (f *FSM) armICENegotiationTimeout(peer *room.Peer) {
	f.armTimer(peer, constants.ICENegotiationTimeout, f.expireICENegotiation)
}

func (f *FSM) expireICENegotiation(peer *room.Peer) {
	if peer.CompareAndSwapState(room.StateInCall, room.StateConnected) {
		slog.Warn("ice negotiation timed out, closing media session", "room_id", peer.RoomID, "peer_id", peer.ID)
		_ = f.media.CloseSession(peer.RoomID, peer.ID)
	}
}

// buildEnvelope copies src and applies mutations, so routed envelopes
// don't alias the caller's struct or leak unrelated fields.
func buildEnvelope(src *Envelope, mutate func(*Envelope)) *Envelope {
	cp := *src
	mutate(&cp)
	return &cp
}
