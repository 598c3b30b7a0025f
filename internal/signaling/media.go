package signaling

// MediaManager is the subset of the Media Session Manager (internal/media,
// component D) the FSM needs. Defining the interface here, at the
// consumer, keeps this package's only compile-time dependency on D narrow
// and matches the leaf-first dependency order from spec.md §2 (E -> B ->
// D -> C -> A): C depends on D's behavior, not its internals.
type MediaManager interface {
	// CreateSession establishes a peer's server-side media session, idempotent
	// if one already exists for (roomID, peerID).
	CreateSession(roomID, peerID string) error
	// ApplyOffer hands the session the peer's own SDP offer and returns the
	// SFU's answer.
	ApplyOffer(roomID, peerID, sdp string) (answerSDP string, err error)
	// ApplyAnswer hands the session the peer's own SDP answer to a
	// previously issued offer.
	ApplyAnswer(roomID, peerID, sdp string) error
	// AddICECandidate feeds one trickle candidate to the session. It does
	// not buffer: candidates that arrive before the remote description is
	// set are buffered by the FSM and flushed once the description is
	// applied.
	AddICECandidate(roomID, peerID, candidate string) error
	// CloseSession releases a peer's media session, if any. Safe to call
	// when no session exists.
	CloseSession(roomID, peerID string) error
	// OnConnected registers a callback fired once per session when its
	// underlying transport first reaches "connected", so the FSM can clear
	// the ICE-negotiation timeout it armed on entering InCall.
	OnConnected(fn func(roomID, peerID string))
}
