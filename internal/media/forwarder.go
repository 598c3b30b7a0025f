package media

import (
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// forwarderLink is one bounded RTP pipe from one peer's inbound track to
// another peer's outbound session in the same room (spec.md's "Forwarder
// Link" glossary entry). It is drop-on-full: a slow receiver never stalls
// the sender's fan-out path (spec.md §4.4 "Fan-out").
type forwarderLink struct {
	targetPeerID string
	track        *webrtc.TrackLocalStaticRTP

	queue   chan *rtp.Packet
	dropped atomic.Uint64

	done chan struct{}
}

func newForwarderLink(targetPeerID string, track *webrtc.TrackLocalStaticRTP, queueSize int) *forwarderLink {
	l := &forwarderLink{
		targetPeerID: targetPeerID,
		track:        track,
		queue:        make(chan *rtp.Packet, queueSize),
		done:         make(chan struct{}),
	}
	go l.run()
	return l
}

// push enqueues pkt without blocking. A full queue drops pkt and
// increments the per-link counter; it never blocks the caller (the
// inbound RTP handler), per spec.md §4.4.
func (l *forwarderLink) push(pkt *rtp.Packet) {
	select {
	case l.queue <- pkt:
	default:
		l.dropped.Add(1)
	}
}

// DropCount reports how many packets this link has dropped. It is read by
// Manager.DropCounts; no HTTP route serves it (the monitoring routes are
// 501 stubs).
func (l *forwarderLink) DropCount() uint64 {
	return l.dropped.Load()
}

func (l *forwarderLink) run() {
	for {
		select {
		case pkt := <-l.queue:
			if err := l.track.WriteRTP(pkt); err != nil {
				// Target session torn down underneath us; stop forwarding.
				return
			}
		case <-l.done:
			return
		}
	}
}

func (l *forwarderLink) close() {
	select {
	case <-l.done:
	default:
		close(l.done)
	}
}
