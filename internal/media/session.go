package media

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"

	"signalrelay/internal/constants"
)

type sessionState int32

const (
	sessionConnecting sessionState = iota
	sessionActive
	sessionClosing
	sessionClosed
)

// Session is one peer's server-side media session (spec.md §3 "Media
// Session"). It owns a pion PeerConnection, the local track built from
// whatever this peer sends in, and the set of forwarder links carrying
// that track's RTP out to every other session in the room. The state
// machine and close sequencing mirror the teacher's sfu.Peer.
type Session struct {
	roomID string
	peerID string

	manager *Manager
	pc      *webrtc.PeerConnection
	state   atomic.Int32

	mu         sync.RWMutex
	localTrack *webrtc.TrackLocalStaticRTP
	links      map[string]*forwarderLink // targetPeerID -> link

	iceFailures   int
	iceFirstFail  time.Time
	disconnectedAt time.Time
	healthTimer   *time.Timer
}

func newSession(roomID, peerID string, pc *webrtc.PeerConnection, manager *Manager) *Session {
	s := &Session{
		roomID:  roomID,
		peerID:  peerID,
		manager: manager,
		pc:      pc,
		links:   make(map[string]*forwarderLink),
	}
	s.state.Store(int32(sessionConnecting))

	pc.OnConnectionStateChange(func(cs webrtc.PeerConnectionState) {
		s.handleConnectionStateChange(cs)
	})
	pc.OnTrack(func(remote *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		s.handleRemoteTrack(remote)
	})

	return s
}

func (s *Session) state_() sessionState { return sessionState(s.state.Load()) }

func (s *Session) isClosed() bool {
	st := s.state_()
	return st == sessionClosing || st == sessionClosed
}

func (s *Session) handleConnectionStateChange(cs webrtc.PeerConnectionState) {
	switch cs {
	case webrtc.PeerConnectionStateConnected:
		if s.state.CompareAndSwap(int32(sessionConnecting), int32(sessionActive)) {
			s.manager.notifyConnected(s.roomID, s.peerID)
		}
		s.iceFailures = 0
	case webrtc.PeerConnectionStateDisconnected:
		s.mu.Lock()
		s.disconnectedAt = time.Now()
		s.mu.Unlock()
		time.AfterFunc(constants.DisconnectedGrace, func() {
			s.mu.RLock()
			since := s.disconnectedAt
			s.mu.RUnlock()
			if !since.IsZero() && time.Since(since) >= constants.DisconnectedGrace && s.pc.ConnectionState() == webrtc.PeerConnectionStateDisconnected {
				slog.Warn("media session still disconnected past grace period, closing",
					"room_id", s.roomID, "peer_id", s.peerID)
				s.manager.closeAndNotify(s, true)
			}
		})
	case webrtc.PeerConnectionStateFailed:
		s.iceFailures++
		if s.iceFailures > constants.ICEFailedRetryBudget {
			slog.Warn("media session ICE failed past retry budget, closing",
				"room_id", s.roomID, "peer_id", s.peerID, "failures", s.iceFailures)
			s.manager.closeAndNotify(s, true)
		}
	case webrtc.PeerConnectionStateClosed:
		s.state.Store(int32(sessionClosed))
	}
}

func (s *Session) handleRemoteTrack(remote *webrtc.TrackRemote) {
	localTrack, err := webrtc.NewTrackLocalStaticRTP(remote.Codec().RTPCodecCapability, remote.Kind().String(), s.peerID)
	if err != nil {
		slog.Warn("create local track failed", "room_id", s.roomID, "peer_id", s.peerID, "error", err)
		return
	}

	s.mu.Lock()
	s.localTrack = localTrack
	s.mu.Unlock()

	s.manager.rebuildLinksFor(s.roomID, s.peerID)

	go s.forwardInbound(remote)
}

// forwardInbound reads RTP off the remote track and pushes it to every
// current forwarder link. It never blocks on a receiver (spec.md §4.4):
// forwarderLink.push is itself non-blocking.
func (s *Session) forwardInbound(remote *webrtc.TrackRemote) {
	for {
		pkt, _, err := remote.ReadRTP()
		if err != nil {
			return
		}
		if s.isClosed() {
			return
		}

		s.mu.RLock()
		links := make([]*forwarderLink, 0, len(s.links))
		for _, l := range s.links {
			links = append(links, l)
		}
		s.mu.RUnlock()

		for _, l := range links {
			l.push(pkt)
		}
	}
}

// setLinks replaces the forwarder-link set under the session's own lock,
// closing any link that dropped out. Invoked by the Manager, never while
// holding the Room Registry lock (spec.md §4.4 "room-lock then
// session-lock, never the reverse").
func (s *Session) setLinks(targets map[string]*webrtc.TrackLocalStaticRTP) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, link := range s.links {
		if _, ok := targets[id]; !ok {
			link.close()
			delete(s.links, id)
		}
	}
	for id, track := range targets {
		if _, ok := s.links[id]; ok {
			continue
		}
		s.links[id] = newForwarderLink(id, track, constants.ForwarderLinkQueueSize)
	}
}

func (s *Session) ownTrack() *webrtc.TrackLocalStaticRTP {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.localTrack
}

func (s *Session) close() {
	if !s.state.CompareAndSwap(int32(sessionConnecting), int32(sessionClosing)) &&
		!s.state.CompareAndSwap(int32(sessionActive), int32(sessionClosing)) {
		return
	}

	s.mu.Lock()
	for _, l := range s.links {
		l.close()
	}
	s.links = nil
	s.mu.Unlock()

	_ = s.pc.Close()
	s.state.Store(int32(sessionClosed))
}
