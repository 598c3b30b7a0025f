package media

import (
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

func newTestTrack(t *testing.T) *webrtc.TrackLocalStaticRTP {
	t.Helper()
	track, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "test")
	if err != nil {
		t.Fatalf("new track: %v", err)
	}
	return track
}

func TestForwarderLinkDropsOnFullQueueWithoutBlocking(t *testing.T) {
	track := newTestTrack(t)
	link := newForwarderLink("target", track, 1)
	defer link.close()

	// The queue holds one packet, so 100 pushes outrun it unless the run
	// goroutine drains every packet in time; either way, pushing more than
	// the queue size must return promptly.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			link.push(&rtp.Packet{Header: rtp.Header{SequenceNumber: uint16(i)}})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("push blocked on a full queue instead of dropping")
	}
}

func TestForwarderLinkDropCountIncrementsOnceConsumerStops(t *testing.T) {
	track := newTestTrack(t)
	link := newForwarderLink("target", track, 0)
	link.close() // stop the run goroutine so nothing drains the queue

	for i := 0; i < 10; i++ {
		link.push(&rtp.Packet{Header: rtp.Header{SequenceNumber: uint16(i)}})
	}

	if got := link.DropCount(); got != 10 {
		t.Fatalf("expected all 10 pushes to drop once the consumer stopped, got %d", got)
	}
}
