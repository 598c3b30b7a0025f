// Package constants collects the tunable numbers and wire error codes that
// spec.md pins down explicitly, so they aren't scattered as magic numbers
// through the component packages.
package constants

import "time"

// HTTP/WS error codes (ConnectionError.Error and the HTTP error envelope).
const (
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeInternal           = "INTERNAL_ERROR"
	ErrCodeNotImplemented     = "NOT_IMPLEMENTED"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodePeerIDInUse        = "PEER_ID_IN_USE"
	ErrCodeRoutingViolation   = "ROUTING_VIOLATION"
	ErrCodeProtocolViolation  = "PROTOCOL_VIOLATION"
	ErrCodeResourceExhausted  = "RESOURCE_EXHAUSTED"
	ErrCodeMediaTransportFail = "MEDIA_TRANSPORT_FAILED"
)

// Signaling connection tuning (spec.md §5 Timeouts, §4.1 Per-connection loop).
const (
	// ConnectionIdleTimeout is the upper bound the keepalive settings below
	// stay under. The gateway does not read it; a connection is closed once
	// no frame or pong arrives within PongWait.
	ConnectionIdleTimeout = 60 * time.Second
	// PingPeriod is how often the gateway pings an idle connection.
	PingPeriod = 10 * time.Second
	// PongWait is how long the gateway waits for a pong before treating the
	// connection as dead; kept comfortably under ConnectionIdleTimeout.
	PongWait = 20 * time.Second
	// WriteWait bounds a single outbound frame write.
	WriteWait = 10 * time.Second
	// UnidentifiedConnectionTimeout closes a connection that never Joins.
	UnidentifiedConnectionTimeout = 10 * time.Second
	// MaxFrameBytes bounds one inbound signaling frame (SDP can be large).
	MaxFrameBytes = 65536

	// OutboundQueueHighWaterMark is the bound on a peer's outbound envelope
	// channel before non-critical envelopes start getting dropped (spec.md §4.1).
	OutboundQueueHighWaterMark = 64
	// MaxProtocolViolationsBeforeClose is the spec.md §7.1 "three such errors
	// within 10s" threshold.
	MaxProtocolViolationsBeforeClose = 3
	ProtocolViolationWindow          = 10 * time.Second
	// MaxDroppedEnvelopesBeforeDisconnect is the slow-client disconnect
	// threshold for non-critical envelopes (spec.md §7.4 "resource
	// exhaustion"), carried over from the teacher's
	// maxDroppedMessagesBeforeDisconnect.
	MaxDroppedEnvelopesBeforeDisconnect = 100
)

// Signaling FSM tuning (spec.md §5 Timeouts, §9 ICE-candidate buffering).
const (
	// CallAcceptanceTimeout is how long Inviting waits for a CallResponse.
	CallAcceptanceTimeout = 30 * time.Second
	// ICENegotiationTimeout bounds how long a peer stays InCall after an
	// accepted CallResponse before its media session reaches "connected";
	// on expiry the peer returns to Connected and its session is closed.
	ICENegotiationTimeout = 30 * time.Second
	// ICECandidateBufferCap is the per-peer FIFO buffer for trickle candidates
	// that arrive before a remote description is set.
	ICECandidateBufferCap = 64
)

// Media session tuning (spec.md §4.4).
const (
	// ForwarderLinkQueueSize bounds one outbound RTP forwarder link.
	ForwarderLinkQueueSize = 256
	// RTPReadBufferBytes sizes the scratch buffer used to read one RTP/RTCP packet.
	RTPReadBufferBytes = 1500
	// ICEFailedRetryBudget is the number of restart attempts allowed after
	// a peer connection transitions to "failed" before the session is closed.
	ICEFailedRetryBudget = 1
	// ICEFailedRetryWindow bounds the restart attempt.
	ICEFailedRetryWindow = 15 * time.Second
	// DisconnectedGrace is how long a "disconnected" transition is tolerated
	// before it escalates to closing the session.
	DisconnectedGrace = 10 * time.Second
)

// Credential issuer tuning (spec.md §4.5).
const (
	DefaultCredentialTTL = 24 * time.Hour
)
