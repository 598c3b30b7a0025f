package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"signalrelay/internal/turn"
)

type fakeSignalingHandler struct{ called bool }

func (f *fakeSignalingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.called = true
	w.WriteHeader(http.StatusOK)
}

func TestRouterServesTurnCredentials(t *testing.T) {
	issuer := turn.NewIssuer("secret", time.Hour, "turn.example.com", 3478, "stun.example.com", 3478)
	srv, err := NewServer(issuer, &fakeSignalingHandler{}, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/turn-credentials?requester_id=peer-1", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRouterMonitoringRoutesReturnNotImplemented(t *testing.T) {
	issuer := turn.NewIssuer("secret", time.Hour, "turn.example.com", 3478, "stun.example.com", 3478)
	srv, err := NewServer(issuer, &fakeSignalingHandler{}, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	for _, path := range []string{"/api/monitoring/metrics", "/api/monitoring/alerts", "/api/monitoring/ws"} {
		req := httptest.NewRequest("GET", path, nil)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotImplemented {
			t.Fatalf("%s: expected 501, got %d", path, rec.Code)
		}
	}
}

func TestRouterDispatchesWebSocketUpgradePathToSignalingHandler(t *testing.T) {
	issuer := turn.NewIssuer("secret", time.Hour, "turn.example.com", 3478, "stun.example.com", 3478)
	handler := &fakeSignalingHandler{}
	srv, err := NewServer(issuer, handler, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	req := httptest.NewRequest("GET", "/ws", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if !handler.called {
		t.Fatal("expected /ws to route to the signaling handler")
	}
}
