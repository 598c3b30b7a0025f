// Package gateway is the Signaling Gateway (component A): it terminates
// WebSocket connections, decodes/encodes signaling envelopes, and wires
// each connection into the Room Registry and Signaling FSM. Connection-
// scoped concerns (Join lifecycle, ping/pong, backpressure) live here;
// everything about *what a message means* lives in internal/signaling.
package gateway

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"signalrelay/internal/room"
	"signalrelay/internal/signaling"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Gateway accepts signaling connections and dispatches decoded envelopes
// to the Room Registry (for Join/Disconnect/RequestPeerList) or the
// Signaling FSM (for everything else), per spec.md §4.1.
type Gateway struct {
	registry *room.Registry
	fsm      *signaling.FSM
}

func New(registry *room.Registry, fsm *signaling.FSM) *Gateway {
	return &Gateway{registry: registry, fsm: fsm}
}

// ServeHTTP upgrades the request to a WebSocket and runs the connection's
// reader/writer pumps until it closes.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := newConnection(g, conn)
	go c.writePump()
	c.readPump()
}

// HandleMediaEscalation is registered with the Media Session Manager
// (media.Manager.OnEscalation) so a forced session close surfaces as a
// ConnectionError{should_retry} to the owning peer without this package
// needing the gateway to track sessions itself (spec.md §4.4 "Connection
// health", §7 kind 3).
func (g *Gateway) HandleMediaEscalation(roomID, peerID string, shouldRetry bool) {
	peer := g.registry.Lookup(roomID, peerID)
	if peer == nil {
		return
	}
	peer.Enqueue(signaling.ConnectionError(roomID, "media transport failed", shouldRetry))
}
