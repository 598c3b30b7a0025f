// Package media implements the Media Session Manager (spec.md §4.4): one
// server-side WebRTC peer connection per room peer, RTP fan-out to every
// co-resident peer, and connection-health escalation.
package media

import "errors"

// ErrorKind categorizes media-session failures (spec.md §7 "Media
// transport error"), mirrored from the teacher's sfu.ErrorKind so the
// gateway can apply one failure-handling vocabulary across signaling and
// media.
type ErrorKind int

const (
	// ErrKindFatal requires the session to be torn down.
	ErrKindFatal ErrorKind = iota
	// ErrKindTransient may clear on its own or on retry.
	ErrKindTransient
	// ErrKindSessionClosed is a normal-closure no-op.
	ErrKindSessionClosed
)

// SessionError wraps a media-session failure with enough context for the
// signaling FSM to decide whether to retry, close, or ignore.
type SessionError struct {
	Kind   ErrorKind
	RoomID string
	PeerID string
	Op     string
	Err    error
}

func (e *SessionError) Error() string {
	if e.Err == nil {
		return e.Op + " failed for " + e.RoomID + "/" + e.PeerID
	}
	return e.Op + " failed for " + e.RoomID + "/" + e.PeerID + ": " + e.Err.Error()
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

var (
	ErrSessionNotFound = errors.New("media session not found")
	ErrSessionClosed   = errors.New("media session not active")
)

func newFatalError(roomID, peerID, op string, err error) *SessionError {
	return &SessionError{Kind: ErrKindFatal, RoomID: roomID, PeerID: peerID, Op: op, Err: err}
}

func newTransientError(roomID, peerID, op string, err error) *SessionError {
	return &SessionError{Kind: ErrKindTransient, RoomID: roomID, PeerID: peerID, Op: op, Err: err}
}

func newSessionClosedError(roomID, peerID, op string) *SessionError {
	return &SessionError{Kind: ErrKindSessionClosed, RoomID: roomID, PeerID: peerID, Op: op, Err: ErrSessionClosed}
}
