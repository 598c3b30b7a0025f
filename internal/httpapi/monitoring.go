package httpapi

import "net/http"

// notImplemented backs /api/monitoring/* (spec.md §6). Monitoring is
// explicitly named as an external collaborator outside the core's scope
// (spec.md §1 "Out of scope", §9 "not load-bearing on the core") — these
// routes exist only so the endpoint names spec.md lists resolve to
// something, rather than a 404 a client could mistake for a routing bug.
func notImplemented(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotImplemented, ErrCodeNotImplemented, "monitoring is served outside this core")
}
