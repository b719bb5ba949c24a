package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/rhuss/tenantgate/pkg/idptest"
)

func TestTokenHandler(t *testing.T) {
	idp, err := idptest.New(idptest.WithBaseURL("http://localhost:9091"))
	if err != nil {
		t.Fatal(err)
	}
	h := tokenHandler(idp, "api://orders")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dev/token?sub=bob&ttl=10m", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp tokenResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.ExpiresIn != 600 || resp.TokenType != "Bearer" {
		t.Errorf("response = %+v", resp)
	}

	claims := jwtlib.MapClaims{}
	if _, _, err := jwtlib.NewParser().ParseUnverified(resp.AccessToken, claims); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims["sub"] != "bob" || claims["aud"] != "api://orders" {
		t.Errorf("claims = %v", claims)
	}
	if claims["iss"] != "http://localhost:9091/tenant-123/" {
		t.Errorf("iss = %v", claims["iss"])
	}
}

func TestTokenHandlerInvalidTTL(t *testing.T) {
	idp, err := idptest.New(idptest.WithBaseURL("http://localhost:9091"))
	if err != nil {
		t.Fatal(err)
	}
	rec := httptest.NewRecorder()
	tokenHandler(idp, "").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dev/token?ttl=forever", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
