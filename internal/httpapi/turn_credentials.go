package httpapi

import (
	"net/http"
	"time"

	"signalrelay/internal/turn"
)

// TurnCredentialsHandler serves GET /api/turn-credentials (spec.md §6): a
// read-only façade over the Credential Issuer (internal/turn) that the
// browser client calls before attempting an ICE gather.
type TurnCredentialsHandler struct {
	issuer *turn.Issuer
}

func NewTurnCredentialsHandler(issuer *turn.Issuer) *TurnCredentialsHandler {
	return &TurnCredentialsHandler{issuer: issuer}
}

func (h *TurnCredentialsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requesterID := r.URL.Query().Get("requester_id")
	if requesterID == "" {
		badRequest(w, "requester_id query parameter is required")
		return
	}

	cred := h.issuer.Issue(requesterID, time.Now())
	writeJSON(w, http.StatusOK, cred)
}
