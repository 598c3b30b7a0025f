package turn

import (
	"testing"
	"time"
)

func TestIssueIsDeterministicWithinAMinuteBucket(t *testing.T) {
	issuer := NewIssuer("shared-secret", time.Hour, "turn.example.com", 3478, "stun.example.com", 3478)

	base := time.Date(2026, 1, 1, 12, 30, 10, 0, time.UTC)
	a := issuer.Issue("peer-1", base)
	b := issuer.Issue("peer-1", base.Add(20*time.Second))

	if a != b {
		t.Fatalf("expected identical credentials within the same minute bucket, got %+v vs %+v", a, b)
	}
}

func TestIssueVariesAcrossRequesters(t *testing.T) {
	issuer := NewIssuer("shared-secret", time.Hour, "turn.example.com", 3478, "stun.example.com", 3478)
	now := time.Now()

	a := issuer.Issue("peer-1", now)
	b := issuer.Issue("peer-2", now)

	if a.Username == b.Username || a.Password == b.Password {
		t.Fatalf("expected distinct credentials per requester, got %+v vs %+v", a, b)
	}
}

func TestRoundTripVerification(t *testing.T) {
	secret := "shared-secret"
	issuer := NewIssuer(secret, time.Minute, "turn.example.com", 3478, "stun.example.com", 3478)
	now := time.Now()

	cred := issuer.Issue("peer-1", now)

	if !Verify(secret, cred.Username, cred.Password, now) {
		t.Fatal("expected freshly issued credential to verify")
	}

	future := now.Add(2 * time.Minute)
	if Verify(secret, cred.Username, cred.Password, future) {
		t.Fatal("expected expired credential to be rejected")
	}
}

func TestVerifyRejectsTamperedPassword(t *testing.T) {
	secret := "shared-secret"
	issuer := NewIssuer(secret, time.Hour, "turn.example.com", 3478, "stun.example.com", 3478)
	now := time.Now()

	cred := issuer.Issue("peer-1", now)

	if Verify(secret, cred.Username, cred.Password+"x", now) {
		t.Fatal("expected tampered password to fail verification")
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	issuer := NewIssuer("shared-secret", time.Hour, "turn.example.com", 3478, "stun.example.com", 3478)
	now := time.Now()

	cred := issuer.Issue("peer-1", now)

	if Verify("different-secret", cred.Username, cred.Password, now) {
		t.Fatal("expected mismatched secret to fail verification")
	}
}
