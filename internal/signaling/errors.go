package signaling

import "errors"

// ErrorKind categorizes signaling failures the way the media session
// manager categorizes its own (internal/media), so the gateway can apply
// one consistent policy for both.
type ErrorKind int

const (
	// ErrKindProtocol is a malformed envelope or illegal transition: drop
	// the envelope, tell the client, keep the connection open.
	ErrKindProtocol ErrorKind = iota
	// ErrKindRouting is a cross-room or unknown-target delivery attempt.
	ErrKindRouting
	// ErrKindFatal means the connection itself must be closed.
	ErrKindFatal
)

// ProtocolError wraps a signaling failure with enough context for the
// gateway to decide whether to drop, warn, or close (spec.md §7).
type ProtocolError struct {
	Kind   ErrorKind
	PeerID string
	Op     string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err == nil {
		return e.Op + " failed for peer " + e.PeerID
	}
	return e.Op + " failed for peer " + e.PeerID + ": " + e.Err.Error()
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

func newProtocolError(peerID, op string, err error) *ProtocolError {
	return &ProtocolError{Kind: ErrKindProtocol, PeerID: peerID, Op: op, Err: err}
}

func newRoutingError(peerID, op string, err error) *ProtocolError {
	return &ProtocolError{Kind: ErrKindRouting, PeerID: peerID, Op: op, Err: err}
}

var (
	ErrUnknownMessageType  = errors.New("unknown message_type")
	ErrMissingField        = errors.New("missing required field")
	ErrFromPeerMismatch    = errors.New("from_peer does not match connection identity")
	ErrCrossRoomTarget     = errors.New("target peer is not in the sender's room")
	ErrTargetNotFound      = errors.New("target peer not found")
	ErrIllegalTransition   = errors.New("event not legal in current state")
)
