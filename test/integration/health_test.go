package integration

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestHealthz(t *testing.T) {
	resp := doRequest(t, http.MethodGet, "/healthz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if strings.TrimSpace(string(body)) != "ok" {
		t.Errorf("body = %q", body)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestReadyz(t *testing.T) {
	resp := doRequest(t, http.MethodGet, "/readyz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		Status  string   `json:"status"`
		Schemes []string `json:"schemes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	want := []string{"bearer", "apikey", "cookie", "redirect"}
	if strings.Join(body.Schemes, ",") != strings.Join(want, ",") {
		t.Errorf("schemes = %v, want %v", body.Schemes, want)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	// Produce at least one authentication failure first.
	doRequest(t, http.MethodGet, "/api/me", nil)

	resp := doRequest(t, http.MethodGet, "/metrics", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	for _, name := range []string{"tenantgate_requests_total", "tenantgate_auth_failures_total"} {
		if !strings.Contains(string(body), name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}

func TestRequestIDPropagated(t *testing.T) {
	resp := doRequest(t, http.MethodGet, "/healthz", http.Header{"X-Request-ID": {"req-from-client"}})
	if got := resp.Header.Get("X-Request-ID"); got != "req-from-client" {
		t.Errorf("X-Request-ID = %q, want req-from-client", got)
	}
}
