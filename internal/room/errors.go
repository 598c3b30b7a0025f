package room

import "errors"

// ErrPeerIDInUse is returned by Join when peer_id is already taken within
// the target room (spec.md §3 invariant: "peer_id is unique within a
// room"). The same peer_id is legal in a different room.
var ErrPeerIDInUse = errors.New("peer id already in use in this room")
