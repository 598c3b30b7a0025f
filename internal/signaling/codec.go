package signaling

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/tidwall/gjson"
)

var validate = validator.New()

// PeekMessageType reads just the message_type field out of a raw frame
// without committing to a full unmarshal, and reports whether it is one of
// the recognized types, so the gateway can decide "unknown type -> log and
// drop" before paying for JSON struct decoding (spec.md §4.1 "unknown
// message_type -> log and drop, do not close").
func PeekMessageType(raw []byte) (MessageType, bool) {
	result := gjson.GetBytes(raw, "message_type")
	if !result.Exists() || result.Type != gjson.String {
		return "", false
	}
	mt := MessageType(result.String())
	return mt, isKnownMessageType(mt)
}

// Decode parses a raw frame into an Envelope and validates that the
// fields required by its message_type are present (spec.md §6 "required
// fields" column). Unknown message_type is reported as ErrUnknownMessageType
// rather than a JSON error, so the caller can apply the "drop, don't close"
// policy uniformly.
func Decode(raw []byte) (*Envelope, error) {
	msgType, ok := PeekMessageType(raw)
	if !ok {
		return nil, newProtocolError("", "decode", ErrUnknownMessageType)
	}
	if !isKnownMessageType(msgType) {
		return nil, newProtocolError("", "decode", fmt.Errorf("%w: %s", ErrUnknownMessageType, msgType))
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, newProtocolError("", "decode", err)
	}
	if err := validateRequiredFields(&env); err != nil {
		return nil, newProtocolError(env.PeerID, "decode", err)
	}
	return &env, nil
}

// Encode serializes an outbound envelope for the gateway's writer pump.
func Encode(env *Envelope) ([]byte, error) {
	return json.Marshal(env)
}

func isKnownMessageType(t MessageType) bool {
	switch t {
	case MessageJoin, MessageDisconnect, MessageRequestPeerList, MessagePeerList,
		MessageCallRequest, MessageCallResponse, MessageOffer, MessageAnswer,
		MessageIceCandidate, MessageEndCall, MessageConnectionError:
		return true
	default:
		return false
	}
}

// validateRequiredFields checks the per-type required-field contract from
// spec.md §6's wire inventory table. Each check is a single field
// validation through go-playground/validator rather than a hand-rolled
// "== \"\"" chain, so the same validation vocabulary (required, dive,
// etc.) is available if a field grows richer constraints later.
func validateRequiredFields(env *Envelope) error {
	must := func(field, value, tag string) error {
		if err := validate.Var(value, tag); err != nil {
			return fmt.Errorf("%w: %s (%s)", ErrMissingField, field, err.Error())
		}
		return nil
	}
	mustSlice := func(field string, value []string, tag string) error {
		if err := validate.Var(value, tag); err != nil {
			return fmt.Errorf("%w: %s (%s)", ErrMissingField, field, err.Error())
		}
		return nil
	}

	switch env.MessageType {
	case MessageJoin:
		if err := must("room_id", env.RoomID, "required"); err != nil {
			return err
		}
		return must("peer_id", env.PeerID, "required")
	case MessageDisconnect:
		if err := must("room_id", env.RoomID, "required"); err != nil {
			return err
		}
		return must("peer_id", env.PeerID, "required")
	case MessageRequestPeerList:
		return must("room_id", env.RoomID, "required")
	case MessageCallRequest:
		if err := must("from_peer", env.FromPeer, "required"); err != nil {
			return err
		}
		if err := mustSlice("to_peers", env.ToPeers, "required,min=1"); err != nil {
			return err
		}
		return must("sdp", env.SDP, "required")
	case MessageCallResponse:
		if err := must("from_peer", env.FromPeer, "required"); err != nil {
			return err
		}
		if err := must("to_peer", env.ToPeer, "required"); err != nil {
			return err
		}
		if env.Accepted == nil {
			return fmt.Errorf("%w: accepted", ErrMissingField)
		}
		if *env.Accepted {
			return must("sdp", env.SDP, "required")
		}
		return nil
	case MessageOffer, MessageAnswer:
		if err := must("from_peer", env.FromPeer, "required"); err != nil {
			return err
		}
		if err := must("to_peer", env.ToPeer, "required"); err != nil {
			return err
		}
		return must("sdp", env.SDP, "required")
	case MessageIceCandidate:
		if err := must("from_peer", env.FromPeer, "required"); err != nil {
			return err
		}
		if err := must("to_peer", env.ToPeer, "required"); err != nil {
			return err
		}
		return must("candidate", env.Candidate, "required")
	case MessageEndCall:
		if env.FromPeer == "" && env.PeerID == "" {
			return fmt.Errorf("%w: from_peer or peer_id", ErrMissingField)
		}
		return must("room_id", env.RoomID, "required")
	default:
		return nil
	}
}
