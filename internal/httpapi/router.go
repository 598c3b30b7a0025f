// Package httpapi serves the read-only HTTP façade spec.md §6 requires for
// the core to function: TURN credential issuance and a stub monitoring
// surface. Everything account/message/upload-shaped from the teacher's
// router was dropped — see DESIGN.md — since spec.md §6's data model has
// no persisted users or chat history left to serve.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"signalrelay/internal/turn"
)

// Server is the HTTP façade: chi router plus the WebSocket signaling
// gateway mounted at /ws.
type Server struct {
	router *chi.Mux
}

// SignalingHandler is the subset of gateway.Gateway the façade mounts at
// /ws. Defined at the consumer to avoid httpapi depending on gateway's
// pion/webrtc-adjacent transitive closure beyond what it needs.
type SignalingHandler interface {
	ServeHTTP(w http.ResponseWriter, r *http.Request)
}

// NewServer builds the façade. trustedProxyCIDRs configures the client-IP
// resolver used for rate limiting (spec.md is silent on this; it mirrors
// the teacher's router, which trusts X-Forwarded-For only from configured
// proxies).
func NewServer(issuer *turn.Issuer, signaling SignalingHandler, trustedProxyCIDRs []string) (*Server, error) {
	ipResolver, err := NewClientIPResolver(trustedProxyCIDRs)
	if err != nil {
		return nil, err
	}

	turnHandler := NewTurnCredentialsHandler(issuer)

	credentialsLimiter := NewRateLimiter(60, time.Minute)
	wsUpgradeLimiter := NewRateLimiter(30, time.Minute)

	r := chi.NewRouter()
	r.Use(slogRequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)
	r.Use(securityHeadersMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.With(RateLimitMiddleware(credentialsLimiter, ipResolver)).Get("/turn-credentials", turnHandler.ServeHTTP)

		r.Route("/monitoring", func(r chi.Router) {
			r.Get("/metrics", notImplemented)
			r.Get("/alerts", notImplemented)
			r.Get("/ws", notImplemented)
		})
	})

	r.With(RateLimitMiddleware(wsUpgradeLimiter, ipResolver)).Get("/ws", signaling.ServeHTTP)

	return &Server{router: r}, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

func slogRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
			"remote", r.RemoteAddr,
		)
	})
}
