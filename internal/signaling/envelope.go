// Package signaling implements the Signaling FSM (spec.md §4.3): the
// per-peer state machine that drives offer/answer/ICE exchange and routes
// envelopes to their intended recipients.
package signaling

// MessageType discriminates the wire envelope (spec.md §6).
type MessageType string

const (
	MessageJoin            MessageType = "Join"
	MessageDisconnect      MessageType = "Disconnect"
	MessageRequestPeerList MessageType = "RequestPeerList"
	MessagePeerList        MessageType = "PeerList"
	MessageCallRequest     MessageType = "CallRequest"
	MessageCallResponse    MessageType = "CallResponse"
	MessageOffer           MessageType = "Offer"
	MessageAnswer          MessageType = "Answer"
	MessageIceCandidate    MessageType = "IceCandidate"
	MessageEndCall         MessageType = "EndCall"
	MessageConnectionError MessageType = "ConnectionError"
)

// Envelope is the common frame every signaling message shares (spec.md §3
// "Signaling Envelope"). Fields unused by a given message_type are left
// zero; validation of which fields a given type requires happens in
// validateRequiredFields (codec.go), not in struct tags on this shared
// shape, since required-ness depends on MessageType.
type Envelope struct {
	MessageType MessageType `json:"message_type" validate:"required"`
	RoomID      string      `json:"room_id,omitempty"`
	PeerID      string      `json:"peer_id,omitempty"`

	FromPeer string   `json:"from_peer,omitempty"`
	ToPeer   string   `json:"to_peer,omitempty"`
	ToPeers  []string `json:"to_peers,omitempty"`

	SDP       string   `json:"sdp,omitempty"`
	Candidate string   `json:"candidate,omitempty"`
	Accepted  *bool    `json:"accepted,omitempty"`
	Reason    string   `json:"reason,omitempty"`
	Peers     []string `json:"peers,omitempty"`

	Error       string `json:"error,omitempty"`
	ShouldRetry bool   `json:"should_retry,omitempty"`
}

// ConnectionError builds the S→C envelope sent for non-fatal protocol
// problems and for media-transport failures that permit a retry (spec.md
// §7 "Client-visible mapping").
func ConnectionError(roomID, message string, shouldRetry bool) *Envelope {
	return &Envelope{
		MessageType: MessageConnectionError,
		RoomID:      roomID,
		Error:       message,
		ShouldRetry: shouldRetry,
	}
}
