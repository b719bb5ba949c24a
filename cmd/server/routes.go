package main

import (
	"net/http"

	"github.com/rhuss/tenantgate/pkg/auth"
	"github.com/rhuss/tenantgate/pkg/gateway"
	"github.com/rhuss/tenantgate/pkg/transport"
)

// registerRoutes mounts the routes served by the standalone binary.
func registerRoutes(gw *gateway.Gateway) error {
	return gw.Handle("GET /api/me", gw.DefaultPolicy(), http.HandlerFunc(handleMe))
}

// handleMe echoes the caller's identity with the token redacted.
func handleMe(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	if id == nil {
		transport.WriteJSON(w, http.StatusOK, map[string]any{"subject": nil, "authenticated": false})
		return
	}
	transport.WriteJSON(w, http.StatusOK, id)
}
