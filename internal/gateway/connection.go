package gateway

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/google/uuid"

	"signalrelay/internal/constants"
	"signalrelay/internal/room"
	"signalrelay/internal/signaling"
)

// connection is one signaling connection: an internal id, a websocket, and
// at most one Room Registry peer once a Join succeeds (spec.md §4.1).
// Reader and writer run as two cooperative goroutines; the only state they
// share is peer (set once by the reader, read by the writer and by
// HandleMediaEscalation through the registry, never mutated concurrently
// after Join).
type connection struct {
	id      string
	gateway *Gateway
	conn    *websocket.Conn

	mu   sync.Mutex
	peer *room.Peer

	violations     []time.Time
	closeOnce      sync.Once
	unidentifiedAt *time.Timer
}

func newConnection(g *Gateway, conn *websocket.Conn) *connection {
	return &connection{
		id:      uuid.New().String(),
		gateway: g,
		conn:    conn,
	}
}

func (c *connection) getPeer() *room.Peer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peer
}

func (c *connection) setPeer(p *room.Peer) {
	c.mu.Lock()
	c.peer = p
	c.mu.Unlock()
}

// readPump decodes inbound frames and dispatches them; it never blocks on
// the outbound side (spec.md §4.1 "Backpressure from a slow client must
// not block the Reader").
func (c *connection) readPump() {
	defer func() {
		c.teardown()
	}()

	c.conn.SetReadLimit(constants.MaxFrameBytes)
	c.conn.SetReadDeadline(time.Now().Add(constants.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(constants.PongWait))
		return nil
	})

	c.unidentifiedAt = time.AfterFunc(constants.UnidentifiedConnectionTimeout, func() {
		if c.getPeer() == nil {
			slog.Debug("closing connection that never joined", "conn_id", c.id)
			c.conn.Close()
		}
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Debug("websocket read error", "conn_id", c.id, "error", err)
			}
			return
		}

		mt, known := signaling.PeekMessageType(raw)
		if !known {
			slog.Debug("unknown message_type, dropping", "conn_id", c.id, "message_type", string(mt))
			continue
		}

		env, err := signaling.Decode(raw)
		if err != nil {
			if c.recordViolation() {
				c.sendError("malformed envelope", false)
				return
			}
			c.sendError("malformed envelope", false)
			continue
		}

		if err := c.dispatch(env); err != nil {
			c.handleDispatchError(err)
		}
	}
}

// dispatch routes connection-lifecycle messages (Join/Disconnect/
// RequestPeerList) to the Room Registry directly; everything else goes to
// the Signaling FSM, matching the dependency order in spec.md §2 (the
// gateway is the only component that talks to both).
func (c *connection) dispatch(env *signaling.Envelope) error {
	switch env.MessageType {
	case signaling.MessageJoin:
		return c.handleJoin(env)
	case signaling.MessageDisconnect:
		c.teardown()
		return nil
	case signaling.MessageRequestPeerList:
		peer := c.getPeer()
		if peer == nil {
			return nil
		}
		c.gateway.registry.RequestPeerList(peer.RoomID, peer.ID)
		return nil
	default:
		peer := c.getPeer()
		if peer == nil {
			return nil
		}
		return c.gateway.fsm.Handle(peer, env)
	}
}

func (c *connection) handleJoin(env *signaling.Envelope) error {
	if c.getPeer() != nil {
		return nil
	}
	if env.RoomID == "" || env.PeerID == "" {
		return nil
	}

	peer, err := c.gateway.registry.Join(env.RoomID, env.PeerID, room.DefaultOutboundBuffer)
	if err != nil {
		c.sendError("peer id already in use", false)
		return nil
	}

	c.setPeer(peer)
	if c.unidentifiedAt != nil {
		c.unidentifiedAt.Stop()
	}
	return nil
}

func (c *connection) handleDispatchError(err error) {
	slog.Debug("dispatch error", "conn_id", c.id, "error", err)
	if c.recordViolation() {
		c.sendError(err.Error(), false)
		c.conn.Close()
		return
	}
	c.sendError(err.Error(), false)
}

// recordViolation tracks protocol violations in a rolling window and
// reports whether the connection has now crossed spec.md §7 kind 1's
// "three such errors within 10s" threshold. Only ever called from the
// reader goroutine, so no lock is needed.
func (c *connection) recordViolation() bool {
	now := time.Now()
	cutoff := now.Add(-constants.ProtocolViolationWindow)

	filtered := c.violations[:0]
	for _, t := range c.violations {
		if t.After(cutoff) {
			filtered = append(filtered, t)
		}
	}
	filtered = append(filtered, now)
	c.violations = filtered

	return len(c.violations) >= constants.MaxProtocolViolationsBeforeClose
}

func (c *connection) sendError(message string, shouldRetry bool) {
	roomID := ""
	if peer := c.getPeer(); peer != nil {
		roomID = peer.RoomID
	}
	if peer := c.getPeer(); peer != nil {
		peer.Enqueue(signaling.ConnectionError(roomID, message, shouldRetry))
		return
	}
	// Not joined yet: there is no peer outbound channel to route through,
	// so write directly.
	c.writeDirect(signaling.ConnectionError(roomID, message, shouldRetry))
}

func (c *connection) writeDirect(env *signaling.Envelope) {
	raw, err := signaling.Encode(env)
	if err != nil {
		return
	}
	c.conn.SetWriteDeadline(time.Now().Add(constants.WriteWait))
	_ = c.conn.WriteMessage(websocket.TextMessage, raw)
}

// teardown synthesizes a Disconnect against the FSM and releases the
// Room Registry entry exactly once, regardless of which side closed the
// connection or why (spec.md §4.1 "Lifecycle").
func (c *connection) teardown() {
	c.closeOnce.Do(func() {
		if c.unidentifiedAt != nil {
			c.unidentifiedAt.Stop()
		}
		if peer := c.getPeer(); peer != nil {
			c.gateway.fsm.Disconnect(peer)
			c.gateway.registry.Leave(peer)
		}
		c.conn.Close()
	})
}

// writePump drains the peer's outbound channel and writes frames, and
// pings an idle connection. It is the sole writer of c.conn, so c.conn's
// concurrent-write safety requirement (one writer at a time) holds.
func (c *connection) writePump() {
	ticker := time.NewTicker(constants.PingPeriod)
	defer func() {
		ticker.Stop()
		c.teardown()
	}()

	for {
		peer := c.getPeer()
		if peer == nil {
			// Not joined yet: the reader's unidentified-connection timer
			// closes c.conn directly after constants.UnidentifiedConnectionTimeout,
			// which will surface here as a ping write error.
			<-ticker.C
			if !c.ping() {
				return
			}
			continue
		}

		select {
		case <-peer.CloseSignal:
			// Peer's outbound backpressure policy (room.Peer.Enqueue /
			// EnqueueCritical) decided this connection must close — a
			// slow-client drop threshold or a critical envelope that
			// couldn't be delivered (spec.md §7.4 "resource exhaustion").
			return
		case msg, ok := <-peer.Outbound:
			if !ok {
				return
			}
			env := envelopeFor(msg)
			if env == nil {
				continue
			}
			raw, err := signaling.Encode(env)
			if err != nil {
				slog.Warn("encode outbound envelope failed", "conn_id", c.id, "error", err)
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(constants.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			if !c.ping() {
				return
			}
		}
	}
}

// envelopeFor translates whatever the Room Registry or Signaling FSM put
// on a peer's outbound channel into a wire envelope. The registry enqueues
// *room.PeerListSnapshot (spec.md §4.2); the FSM enqueues already-built
// *signaling.Envelope values ready to route as-is.
func envelopeFor(msg any) *signaling.Envelope {
	switch v := msg.(type) {
	case *signaling.Envelope:
		return v
	case *room.PeerListSnapshot:
		return &signaling.Envelope{
			MessageType: signaling.MessagePeerList,
			RoomID:      v.RoomID,
			Peers:       v.Peers,
		}
	default:
		return nil
	}
}

func (c *connection) ping() bool {
	c.conn.SetWriteDeadline(time.Now().Add(constants.WriteWait))
	return c.conn.WriteMessage(websocket.PingMessage, nil) == nil
}
