package idptest

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// codeTTL bounds how long an authorization code may wait for exchange.
const codeTTL = time.Minute

// Handler returns the HTTP handler serving the tenant endpoints.
func (p *IdP) Handler() http.Handler {
	prefix := "/" + p.directoryID
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+prefix+"/discovery/keys", p.handleKeys)
	mux.HandleFunc("GET "+prefix+"/oauth2/authorize", p.handleAuthorize)
	mux.HandleFunc("POST "+prefix+"/oauth2/token", p.handleToken)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	return mux
}

func (p *IdP) handleKeys(w http.ResponseWriter, r *http.Request) {
	if p.keysDown.Load() {
		http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
		return
	}
	p.keyFetches.Add(1)
	writeJSON(w, http.StatusOK, p.jwks())
}

// handleAuthorize signs in the configured subject without interaction and
// redirects back with a code.
func (p *IdP) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("response_type") != "code" {
		http.Error(w, "unsupported_response_type", http.StatusBadRequest)
		return
	}
	clientID := q.Get("client_id")
	redirectURI := q.Get("redirect_uri")
	target, err := url.Parse(redirectURI)
	if clientID == "" || err != nil || !target.IsAbs() {
		http.Error(w, "invalid_request", http.StatusBadRequest)
		return
	}

	code := uuid.NewString()
	p.mu.Lock()
	p.codes[code] = grant{
		clientID:    clientID,
		redirectURI: redirectURI,
		nonce:       q.Get("nonce"),
		scope:       q.Get("scope"),
		expires:     time.Now().Add(codeTTL),
	}
	p.mu.Unlock()

	params := target.Query()
	params.Set("code", code)
	if state := q.Get("state"); state != "" {
		params.Set("state", state)
	}
	target.RawQuery = params.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	IDToken     string `json:"id_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope,omitempty"`
}

type oauthError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

func (p *IdP) handleToken(w http.ResponseWriter, r *http.Request) {
	p.tokenCalls.Add(1)

	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, oauthError{Error: "invalid_request"})
		return
	}
	if r.PostForm.Get("grant_type") != "authorization_code" {
		writeJSON(w, http.StatusBadRequest, oauthError{Error: "unsupported_grant_type"})
		return
	}

	clientID, _, ok := r.BasicAuth()
	if !ok {
		clientID = r.PostForm.Get("client_id")
	}

	code := r.PostForm.Get("code")
	p.mu.Lock()
	g, found := p.codes[code]
	delete(p.codes, code)
	p.mu.Unlock()

	if !found || time.Now().After(g.expires) {
		writeJSON(w, http.StatusBadRequest, oauthError{Error: "invalid_grant", ErrorDescription: "unknown or expired code"})
		return
	}
	if g.clientID != clientID || g.redirectURI != r.PostForm.Get("redirect_uri") {
		writeJSON(w, http.StatusBadRequest, oauthError{Error: "invalid_grant", ErrorDescription: "client or redirect mismatch"})
		return
	}

	const ttl = time.Hour
	audience := p.audience
	if audience == "" {
		audience = g.clientID
	}
	access, err := p.AccessToken(p.subject, audience, ttl, map[string]any{"scp": g.scope})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, oauthError{Error: "server_error"})
		return
	}

	now := time.Now()
	idClaims := jwtlib.MapClaims{
		"iss":                p.Issuer(),
		"sub":                p.subject,
		"aud":                g.clientID,
		"iat":                now.Unix(),
		"exp":                now.Add(ttl).Unix(),
		"tid":                p.directoryID,
		"preferred_username": p.subject,
	}
	if g.nonce != "" {
		idClaims["nonce"] = g.nonce
	}
	idToken, err := p.Sign(idClaims)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, oauthError{Error: "server_error"})
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: access,
		IDToken:     idToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(ttl.Seconds()),
		Scope:       g.scope,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
