package httpapi

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"signalrelay/internal/turn"
)

func TestTurnCredentialsHandlerRequiresRequesterID(t *testing.T) {
	issuer := turn.NewIssuer("secret", time.Hour, "turn.example.com", 3478, "stun.example.com", 3478)
	handler := NewTurnCredentialsHandler(issuer)

	req := httptest.NewRequest("GET", "/api/turn-credentials", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != 400 {
		t.Fatalf("expected 400 without requester_id, got %d", rec.Code)
	}
}

func TestTurnCredentialsHandlerReturnsValidCredential(t *testing.T) {
	issuer := turn.NewIssuer("secret", time.Hour, "turn.example.com", 3478, "stun.example.com", 3478)
	handler := NewTurnCredentialsHandler(issuer)

	req := httptest.NewRequest("GET", "/api/turn-credentials?requester_id=peer-1", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var cred turn.Credential
	if err := json.Unmarshal(rec.Body.Bytes(), &cred); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if cred.Username == "" || cred.Password == "" {
		t.Fatalf("expected populated credential, got %+v", cred)
	}
	if !turn.Verify("secret", cred.Username, cred.Password, time.Now()) {
		t.Fatal("expected the issued credential to verify against the shared secret")
	}
}
