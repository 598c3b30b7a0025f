package media

import (
	"fmt"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pion/webrtc/v4"

	"signalrelay/internal/room"
)

type sessionKey struct {
	RoomID string
	PeerID string
}

// EscalationFunc is invoked when a session closes because of a transport
// failure rather than a normal EndCall, so the gateway can deliver a
// ConnectionError{should_retry} to the owning peer without this package
// needing to import the signaling wire format (spec.md §7 "Media
// transport error").
type EscalationFunc func(roomID, peerID string, shouldRetry bool)

// ConnectedFunc is invoked the first time a session's underlying
// PeerConnection reaches "connected", so the Signaling FSM can clear its
// ICE-negotiation timeout for that peer (spec.md §5 "ICE negotiation
// timeout: 30s from Offer to InCall").
type ConnectedFunc func(roomID, peerID string)

// Manager is the Media Session Manager (component D): it owns one
// Session per active peer and rebuilds forwarder links whenever room
// membership changes.
type Manager struct {
	config   Config
	api      *webrtc.API
	registry *room.Registry

	mu       sync.RWMutex
	sessions map[sessionKey]*Session

	escalateMu sync.RWMutex
	escalate   EscalationFunc

	connectedMu sync.RWMutex
	connected   ConnectedFunc
}

// NewManager builds a Manager. Codec registration mirrors the teacher's
// sfu.New: Opus for audio with low-latency FEC params, VP9 for video.
func NewManager(cfg Config, registry *room.Registry) (*Manager, error) {
	settingEngine := webrtc.SettingEngine{}
	if cfg.MinPort > 0 && cfg.MaxPort > 0 {
		if err := settingEngine.SetEphemeralUDPPortRange(cfg.MinPort, cfg.MaxPort); err != nil {
			return nil, fmt.Errorf("set ephemeral port range: %w", err)
		}
	}
	if cfg.PublicIP != "" {
		settingEngine.SetNAT1To1IPs([]string{cfg.PublicIP}, webrtc.ICECandidateTypeHost)
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeOpus,
			ClockRate:   48000,
			Channels:    2,
			SDPFmtpLine: "minptime=10;useinbandfec=1",
		},
		PayloadType: 111,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("register opus codec: %w", err)
	}
	if err := mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeVP9,
			ClockRate:   90000,
			SDPFmtpLine: "profile-id=0",
		},
		PayloadType: 98,
	}, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, fmt.Errorf("register vp9 codec: %w", err)
	}

	api := webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine), webrtc.WithMediaEngine(mediaEngine))

	m := &Manager{
		config:   cfg,
		api:      api,
		registry: registry,
		sessions: make(map[sessionKey]*Session),
	}
	registry.OnMembershipChange(m.onMembershipChange)
	return m, nil
}

// OnEscalation registers the callback used to surface a forced session
// close to the owning peer's connection.
func (m *Manager) OnEscalation(fn EscalationFunc) {
	m.escalateMu.Lock()
	defer m.escalateMu.Unlock()
	m.escalate = fn
}

// OnConnected registers the callback invoked once per session when its
// PeerConnection first reaches "connected". Takes the plain func type
// (rather than ConnectedFunc) so Manager satisfies signaling.MediaManager's
// OnConnected method signature exactly.
func (m *Manager) OnConnected(fn func(roomID, peerID string)) {
	m.connectedMu.Lock()
	defer m.connectedMu.Unlock()
	m.connected = fn
}

func (m *Manager) notifyConnected(roomID, peerID string) {
	m.connectedMu.RLock()
	fn := m.connected
	m.connectedMu.RUnlock()
	if fn != nil {
		fn(roomID, peerID)
	}
}

func (m *Manager) CreateSession(roomID, peerID string) error {
	key := sessionKey{roomID, peerID}

	m.mu.Lock()
	if _, exists := m.sessions[key]; exists {
		m.mu.Unlock()
		return nil
	}

	pc, err := m.api.NewPeerConnection(webrtc.Configuration{ICEServers: m.config.iceServers()})
	if err != nil {
		m.mu.Unlock()
		return newFatalError(roomID, peerID, "create_session", err)
	}
	session := newSession(roomID, peerID, pc, m)
	m.sessions[key] = session
	m.mu.Unlock()

	return nil
}

func (m *Manager) getSession(roomID, peerID string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[sessionKey{roomID, peerID}]
}

func (m *Manager) ApplyOffer(roomID, peerID, sdp string) (string, error) {
	session := m.getSession(roomID, peerID)
	if session == nil {
		if err := m.CreateSession(roomID, peerID); err != nil {
			return "", err
		}
		session = m.getSession(roomID, peerID)
	}
	if session.isClosed() {
		return "", newSessionClosedError(roomID, peerID, "apply_offer")
	}

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
	if err := session.pc.SetRemoteDescription(offer); err != nil {
		return "", newTransientError(roomID, peerID, "apply_offer.set_remote", err)
	}
	answer, err := session.pc.CreateAnswer(nil)
	if err != nil {
		return "", newTransientError(roomID, peerID, "apply_offer.create_answer", err)
	}
	if err := session.pc.SetLocalDescription(answer); err != nil {
		return "", newTransientError(roomID, peerID, "apply_offer.set_local", err)
	}
	return answer.SDP, nil
}

func (m *Manager) ApplyAnswer(roomID, peerID, sdp string) error {
	session := m.getSession(roomID, peerID)
	if session == nil {
		return newFatalError(roomID, peerID, "apply_answer", ErrSessionNotFound)
	}
	if session.isClosed() {
		return newSessionClosedError(roomID, peerID, "apply_answer")
	}

	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}
	if err := session.pc.SetRemoteDescription(answer); err != nil {
		return newTransientError(roomID, peerID, "apply_answer.set_remote", err)
	}
	return nil
}

func (m *Manager) AddICECandidate(roomID, peerID, candidate string) error {
	session := m.getSession(roomID, peerID)
	if session == nil {
		return newFatalError(roomID, peerID, "add_ice_candidate", ErrSessionNotFound)
	}
	if session.isClosed() {
		return newSessionClosedError(roomID, peerID, "add_ice_candidate")
	}

	if err := session.pc.AddICECandidate(webrtc.ICECandidateInit{Candidate: candidate}); err != nil {
		return newTransientError(roomID, peerID, "add_ice_candidate", err)
	}
	return nil
}

func (m *Manager) CloseSession(roomID, peerID string) error {
	key := sessionKey{roomID, peerID}

	m.mu.Lock()
	session, exists := m.sessions[key]
	if exists {
		delete(m.sessions, key)
	}
	m.mu.Unlock()

	if !exists {
		return nil
	}
	session.close()
	return nil
}

// closeAndNotify is the connection-health escalation path (spec.md §4.4
// "Connection health"): close the session and tell the gateway to surface
// a ConnectionError{should_retry} to the owning peer.
func (m *Manager) closeAndNotify(session *Session, shouldRetry bool) {
	key := sessionKey{session.roomID, session.peerID}

	m.mu.Lock()
	if current, ok := m.sessions[key]; ok && current == session {
		delete(m.sessions, key)
	}
	m.mu.Unlock()

	session.close()

	m.escalateMu.RLock()
	fn := m.escalate
	m.escalateMu.RUnlock()
	if fn != nil {
		fn(session.roomID, session.peerID, shouldRetry)
	}
}

// onMembershipChange is registered with the Room Registry and rebuilds
// forwarder links for every session owned by a peer in roomID (spec.md
// §4.4 "Membership changes"). It is called with the room lock already
// released (room.Registry's contract), so taking each session's own lock
// here preserves the fixed room-lock-then-session-lock order.
func (m *Manager) onMembershipChange(roomID string) {
	memberIDs := m.registry.PeersOf(roomID)

	m.mu.RLock()
	affected := make([]*Session, 0, len(memberIDs))
	for _, id := range memberIDs {
		if s, ok := m.sessions[sessionKey{roomID, id}]; ok {
			affected = append(affected, s)
		}
	}
	m.mu.RUnlock()

	for _, s := range affected {
		m.rebuildLinksForSession(roomID, memberIDs, s)
	}
}

// rebuildLinksFor is called by a Session when its own local track becomes
// ready, so every *other* session in the room picks it up without waiting
// for the next membership event.
func (m *Manager) rebuildLinksFor(roomID, ownerPeerID string) {
	memberIDs := m.registry.PeersOf(roomID)

	m.mu.RLock()
	affected := make([]*Session, 0, len(memberIDs))
	for _, id := range memberIDs {
		if s, ok := m.sessions[sessionKey{roomID, id}]; ok {
			affected = append(affected, s)
		}
	}
	m.mu.RUnlock()

	for _, s := range affected {
		m.rebuildLinksForSession(roomID, memberIDs, s)
	}
}

// rebuildLinksForSession computes spec.md §3 invariant 2 directly as the
// set difference it is: room membership minus the session's own owner.
func (m *Manager) rebuildLinksForSession(roomID string, memberIDs []string, s *Session) {
	targetIDs := mapset.NewSet(memberIDs...).Difference(mapset.NewSet(s.peerID))

	targets := make(map[string]*webrtc.TrackLocalStaticRTP, targetIDs.Cardinality())

	m.mu.RLock()
	for _, id := range targetIDs.ToSlice() {
		other, ok := m.sessions[sessionKey{roomID, id}]
		if !ok {
			continue
		}
		if track := other.ownTrack(); track != nil {
			targets[id] = track
		}
	}
	m.mu.RUnlock()

	s.setLinks(targets)
}

// DropCounts returns the per-target drop counters for peerID's session.
// Nothing in the repository calls it; the monitoring routes are 501 stubs.
func (m *Manager) DropCounts(roomID, peerID string) map[string]uint64 {
	session := m.getSession(roomID, peerID)
	if session == nil {
		return nil
	}

	session.mu.RLock()
	defer session.mu.RUnlock()

	out := make(map[string]uint64, len(session.links))
	for target, link := range session.links {
		out[target] = link.DropCount()
	}
	return out
}
