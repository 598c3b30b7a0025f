// Package turn implements the Credential Issuer (spec.md §4.5): short-lived
// HMAC-derived TURN credentials that the embedded TURN relay (an external
// collaborator, spec.md §1) validates by recomputing the same HMAC.
package turn

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Credential is the full payload returned to a client by the
// /api/turn-credentials façade (spec.md §6).
type Credential struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	TTL        int64  `json:"ttl"`
	TURNServer string `json:"turn_server"`
	TURNPort   int    `json:"turn_port"`
	STUNServer string `json:"stun_server"`
	STUNPort   int    `json:"stun_port"`
}

// Issuer computes time-bounded HMAC-SHA1 credentials. It is pure and
// holds no mutable state beyond its immutable configuration (spec.md §4.5:
// "no state, no locking"), so a single Issuer value can be shared freely
// across goroutines.
type Issuer struct {
	secret     string
	ttl        time.Duration
	turnServer string
	turnPort   int
	stunServer string
	stunPort   int
}

// NewIssuer builds an Issuer from the shared secret and server addresses
// configured at process start (spec.md §5 "never rewritten").
func NewIssuer(secret string, ttl time.Duration, turnServer string, turnPort int, stunServer string, stunPort int) *Issuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Issuer{
		secret:     secret,
		ttl:        ttl,
		turnServer: turnServer,
		turnPort:   turnPort,
		stunServer: stunServer,
		stunPort:   stunPort,
	}
}

// Issue computes a credential for requesterID, valid through its expiry
// inclusive (spec.md §3 invariant 4).
//
// The same (requesterID, minute-bucket) pair always produces the same
// credential within that minute (spec.md §4.5): now is truncated down to
// the start of its minute before ttl is added to form the expiry folded
// into the username, so an accidental double-fetch inside the same minute
// is idempotent without the issuer needing to remember anything. The
// credential therefore stays valid for up to a minute less than ttl after
// now; with a ttl under a minute it can already be expired when issued.
func (i *Issuer) Issue(requesterID string, now time.Time) Credential {
	expiry := minuteBucketExpiry(now, i.ttl)
	username := formatUsername(expiry, requesterID)
	password := sign(i.secret, username)

	return Credential{
		Username:   username,
		Password:   password,
		TTL:        int64(i.ttl.Seconds()),
		TURNServer: i.turnServer,
		TURNPort:   i.turnPort,
		STUNServer: i.stunServer,
		STUNPort:   i.stunPort,
	}
}

// Verify recomputes the HMAC for username and reports whether credential
// matches and the credential has not yet expired as of now. This is the
// check the embedded TURN relay performs against incoming long-term
// credentials (spec.md §4.5 "Verification (at TURN)").
func Verify(secret, username, credential string, now time.Time) bool {
	if !hmac.Equal([]byte(sign(secret, username)), []byte(credential)) {
		return false
	}
	expiry, _, ok := parseUsername(username)
	if !ok {
		return false
	}
	return now.Unix() <= expiry
}

func minuteBucketExpiry(now time.Time, ttl time.Duration) int64 {
	bucketed := now.Truncate(time.Minute)
	return bucketed.Add(ttl).Unix()
}

func formatUsername(expiryUnix int64, requesterID string) string {
	return fmt.Sprintf("%d:%s", expiryUnix, requesterID)
}

func parseUsername(username string) (expiry int64, requesterID string, ok bool) {
	idx := strings.IndexByte(username, ':')
	if idx < 0 {
		return 0, "", false
	}
	expiry, err := strconv.ParseInt(username[:idx], 10, 64)
	if err != nil {
		return 0, "", false
	}
	return expiry, username[idx+1:], true
}

func sign(secret, username string) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(username))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
