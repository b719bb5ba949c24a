package idptest

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

func startIdP(t *testing.T, opts ...Option) *Server {
	t.Helper()
	srv, err := Start(opts...)
	if err != nil {
		t.Fatalf("start idp: %v", err)
	}
	t.Cleanup(srv.Close)
	return srv
}

func noRedirectClient() *http.Client {
	return &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
}

func TestKeysEndpoint(t *testing.T) {
	srv := startIdP(t)
	tc, err := srv.Tenant("api://demo", "client-1", "https://app.example.com/signin-oidc")
	if err != nil {
		t.Fatalf("tenant: %v", err)
	}

	resp, err := http.Get(tc.KeysURL())
	if err != nil {
		t.Fatalf("GET keys: %v", err)
	}
	defer resp.Body.Close()

	var doc struct {
		Keys []map[string]string `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(doc.Keys) != 1 || doc.Keys[0]["kty"] != "RSA" || doc.Keys[0]["kid"] == "" {
		t.Errorf("unexpected key set: %v", doc.Keys)
	}
	if srv.KeyFetches() != 1 {
		t.Errorf("KeyFetches = %d, want 1", srv.KeyFetches())
	}
}

func TestKeysUnavailable(t *testing.T) {
	srv := startIdP(t)
	srv.SetKeysUnavailable(true)

	resp, err := http.Get(srv.Issuer() + "discovery/keys")
	if err != nil {
		t.Fatalf("GET keys: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestAccessTokenClaims(t *testing.T) {
	srv := startIdP(t)

	raw, err := srv.AccessToken("bob", "api://demo", -time.Minute, map[string]any{"scp": "read"})
	if err != nil {
		t.Fatalf("AccessToken: %v", err)
	}

	claims := jwtlib.MapClaims{}
	if _, _, err := jwtlib.NewParser().ParseUnverified(raw, claims); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims["sub"] != "bob" || claims["aud"] != "api://demo" || claims["iss"] != srv.Issuer() {
		t.Errorf("claims = %v", claims)
	}
	exp, _ := claims.GetExpirationTime()
	if exp == nil || !exp.Before(time.Now()) {
		t.Errorf("exp = %v, want past", exp)
	}
}

func TestAuthorizationCodeFlow(t *testing.T) {
	srv := startIdP(t, WithAudience("api://demo"), WithSubject("carol"))
	tc, err := srv.Tenant("api://demo", "client-1", "https://app.example.com/signin-oidc")
	if err != nil {
		t.Fatalf("tenant: %v", err)
	}

	authURL := tc.AuthorizeURL() + "?" + url.Values{
		"response_type": {"code"},
		"client_id":     {"client-1"},
		"redirect_uri":  {tc.RedirectURL},
		"state":         {"st-1"},
		"nonce":         {"n-1"},
		"scope":         {"openid user_impersonation"},
	}.Encode()

	resp, err := noRedirectClient().Get(authURL)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("authorize status = %d, want 302", resp.StatusCode)
	}
	loc, _ := url.Parse(resp.Header.Get("Location"))
	if loc.Query().Get("state") != "st-1" || loc.Query().Get("code") == "" {
		t.Fatalf("redirect = %s", loc)
	}

	form := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {loc.Query().Get("code")},
		"redirect_uri": {tc.RedirectURL},
		"client_id":    {"client-1"},
	}
	tokResp, err := http.Post(tc.TokenURL(), "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	defer tokResp.Body.Close()
	if tokResp.StatusCode != http.StatusOK {
		t.Fatalf("token status = %d", tokResp.StatusCode)
	}

	var tok tokenResponse
	if err := json.NewDecoder(tokResp.Body).Decode(&tok); err != nil {
		t.Fatalf("decode: %v", err)
	}
	idClaims := jwtlib.MapClaims{}
	if _, _, err := jwtlib.NewParser().ParseUnverified(tok.IDToken, idClaims); err != nil {
		t.Fatalf("parse id token: %v", err)
	}
	if idClaims["nonce"] != "n-1" || idClaims["sub"] != "carol" || idClaims["aud"] != "client-1" {
		t.Errorf("id token claims = %v", idClaims)
	}

	// Codes are single use.
	again, err := http.Post(tc.TokenURL(), "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatalf("token replay: %v", err)
	}
	again.Body.Close()
	if again.StatusCode != http.StatusBadRequest {
		t.Errorf("replayed code status = %d, want 400", again.StatusCode)
	}
}
