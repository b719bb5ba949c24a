package integration

import (
	"net/http"
	"testing"
	"time"

	"github.com/rhuss/tenantgate/pkg/api"
)

func TestPreflightAnsweredBeforeAuthentication(t *testing.T) {
	resp := doRequest(t, http.MethodOptions, "/api/orders", http.Header{
		"Origin":                         {allowedOrigin},
		"Access-Control-Request-Method":  {http.MethodPost},
		"Access-Control-Request-Headers": {"Authorization, Content-Type"},
	})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != allowedOrigin {
		t.Errorf("ACAO = %q", got)
	}
	if got := resp.Header.Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("ACAC = %q", got)
	}
}

func TestDisallowedOriginRejected(t *testing.T) {
	token := accessToken(t, "alice", time.Hour, nil)
	h := bearer(token)
	h.Set("Origin", "https://evil.example.com")

	resp := doRequest(t, http.MethodGet, "/api/me", h)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
	if code := readError(t, resp).Code; code != api.CodeCORSDenied {
		t.Errorf("code = %q, want %q", code, api.CodeCORSDenied)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("ACAO on denied request = %q", got)
	}
}

func TestAllowedOriginEchoed(t *testing.T) {
	token := accessToken(t, "alice", time.Hour, nil)
	h := bearer(token)
	h.Set("Origin", allowedOrigin)

	resp := doRequest(t, http.MethodGet, "/api/me", h)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != allowedOrigin {
		t.Errorf("ACAO = %q", got)
	}
	if got := resp.Header.Values("Vary"); len(got) == 0 {
		t.Error("missing Vary: Origin")
	}
}
