package media

import (
	"fmt"

	"github.com/pion/webrtc/v4"
)

// Config configures the server-side peer connections the Manager creates.
// The SFU only needs STUN for candidate gathering, same as the teacher's
// sfu.Config: the media server has a public (or port-forwarded) address,
// so its own connections never need a TURN relay, unlike the browser
// clients the Credential Issuer serves.
type Config struct {
	STUNServer string
	STUNPort   int
	PublicIP   string
	MinPort    uint16
	MaxPort    uint16
}

func (c Config) iceServers() []webrtc.ICEServer {
	if c.STUNServer == "" {
		return nil
	}
	return []webrtc.ICEServer{{URLs: []string{formatSTUNURL(c.STUNServer, c.STUNPort)}}}
}

func formatSTUNURL(host string, port int) string {
	if port == 0 {
		port = 3478
	}
	return fmt.Sprintf("stun:%s:%d", host, port)
}
