// Package redirect provides the redirect-challenge scheme: an OpenID Connect
// sign-in for browsers. Unauthenticated browser requests are redirected to
// the tenant's authorize endpoint; the callback exchanges the code, verifies
// the id_token and establishes a cookie session.
//
// The scheme never authenticates a request by itself. Its Verify abstains;
// the session it issues is verified by the cookie scheme.
package redirect

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/rhuss/tenantgate/pkg/api"
	"github.com/rhuss/tenantgate/pkg/auth"
	"github.com/rhuss/tenantgate/pkg/auth/cookie"
	"github.com/rhuss/tenantgate/pkg/debug"
	"github.com/rhuss/tenantgate/pkg/tenant"
	"github.com/rhuss/tenantgate/pkg/transport"
)

// DefaultCallbackPath is where the tenant redirects back after sign-in.
const DefaultCallbackPath = "/signin-oidc"

// flowCookie carries state, nonce, PKCE verifier and return path between
// the challenge and the callback.
const flowCookie = "tenantgate_oidc"

const flowMaxAge = 600

// Config holds the redirect scheme configuration.
type Config struct {
	// Tenant supplies the authorize, token and keys endpoints, the client id
	// and the redirect URL.
	Tenant tenant.Config

	// ClientSecret authenticates the code exchange. Optional for public clients.
	ClientSecret string

	// Scopes requested at sign-in. "openid" is always included.
	Scopes []string

	// ExtraParams are added to the authorize request (for example resource).
	ExtraParams map[string]string

	// Issuer is the expected id_token issuer. Default: the tenant authority.
	Issuer string

	// CallbackPath is the local path of the redirect URL. Default: DefaultCallbackPath.
	CallbackPath string

	// Sessions issues the cookie session after a successful sign-in. Required.
	Sessions *cookie.Sessions

	// Secure marks the flow cookie HTTPS-only.
	Secure bool

	// HTTPClient is used for the token exchange and key fetches.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Scheme implements the sign-in challenge and callback.
type Scheme struct {
	oauth    *oauth2.Config
	verifier *oidc.IDTokenVerifier
	config   Config
	logger   *slog.Logger
}

// New creates the redirect scheme.
func New(cfg Config) (*Scheme, error) {
	if cfg.Tenant.IsZero() {
		return nil, api.NewConfigError(api.MissingField, "tenant", "redirect scheme requires a tenant")
	}
	if cfg.Tenant.ClientID == "" {
		return nil, api.NewConfigError(api.MissingField, "tenant.client_id", "redirect scheme requires a client id")
	}
	if cfg.Tenant.RedirectURL == "" {
		return nil, api.NewConfigError(api.MissingField, "tenant.redirect_url", "redirect scheme requires a redirect url")
	}
	if cfg.Sessions == nil {
		return nil, api.NewConfigError(api.MissingField, "auth.cookie", "redirect scheme requires the cookie scheme")
	}
	if cfg.CallbackPath == "" {
		cfg.CallbackPath = DefaultCallbackPath
	}
	if cfg.Issuer == "" {
		cfg.Issuer = cfg.Tenant.Authority()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	scopes := slices.Clone(cfg.Scopes)
	if !slices.Contains(scopes, oidc.ScopeOpenID) {
		scopes = append([]string{oidc.ScopeOpenID}, scopes...)
	}

	keys := oidc.NewRemoteKeySet(oidc.ClientContext(context.Background(), cfg.HTTPClient), cfg.Tenant.KeysURL())

	return &Scheme{
		oauth: &oauth2.Config{
			ClientID:     cfg.Tenant.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.Tenant.RedirectURL,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.Tenant.AuthorizeURL(),
				TokenURL:  cfg.Tenant.TokenURL(),
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		verifier: oidc.NewVerifier(cfg.Issuer, keys, &oidc.Config{ClientID: cfg.Tenant.ClientID}),
		config:   cfg,
		logger:   cfg.Logger,
	}, nil
}

// CallbackPath returns the local path the callback handler must be mounted on.
func (s *Scheme) CallbackPath() string { return s.config.CallbackPath }

// Verify implements auth.Verifier. The redirect scheme carries no credential
// of its own, so it always abstains.
func (s *Scheme) Verify(context.Context, auth.Credentials) auth.AuthResult {
	return auth.AuthResult{Decision: auth.Abstain}
}

// Challenge redirects browser navigations to the tenant sign-in page. It
// returns false for API clients so they receive a 401 instead.
func (s *Scheme) Challenge(w http.ResponseWriter, r *http.Request) bool {
	if !isBrowserNavigation(r) || r.URL.Path == s.config.CallbackPath {
		return false
	}

	state := uuid.NewString()
	nonce := uuid.NewString()
	pkce := oauth2.GenerateVerifier()

	http.SetCookie(w, s.flowCookie(encodeFlow(flow{
		state:    state,
		nonce:    nonce,
		verifier: pkce,
		returnTo: safeReturnPath(r.URL.RequestURI()),
	}), flowMaxAge))

	opts := []oauth2.AuthCodeOption{
		oidc.Nonce(nonce),
		oauth2.S256ChallengeOption(pkce),
	}
	for k, v := range s.config.ExtraParams {
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}

	debug.Log("auth", "redirecting to sign-in", "path", r.URL.Path)
	http.Redirect(w, r, s.oauth.AuthCodeURL(state, opts...), http.StatusFound)
	return true
}

// CallbackHandler completes the sign-in: it checks state, exchanges the code,
// verifies the id_token and nonce, issues the session and redirects back to
// the page that triggered the challenge.
func (s *Scheme) CallbackHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, returnTo, err := s.complete(r)
		// The flow cookie is single use.
		http.SetCookie(w, s.flowCookie("", -1))
		if err != nil {
			s.logger.Warn("sign-in failed", "reason", err.Error(), "remote_addr", r.RemoteAddr)
			transport.WriteErrorResponse(w, api.NewUnauthenticatedError(), http.StatusUnauthorized)
			return
		}

		if err := s.config.Sessions.Issue(w, id); err != nil {
			s.logger.Error("issuing session failed", "error", err)
			transport.WriteErrorResponse(w, api.NewServerError(), http.StatusInternalServerError)
			return
		}

		s.logger.Info("sign-in completed", "subject", id.Subject)
		http.Redirect(w, r, returnTo, http.StatusFound)
	})
}

// SignOutHandler clears the session and redirects to the site root.
func (s *Scheme) SignOutHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.config.Sessions.Clear(w)
		http.Redirect(w, r, "/", http.StatusFound)
	})
}

func (s *Scheme) complete(r *http.Request) (*auth.Identity, string, error) {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		return nil, "", fmt.Errorf("authorization error %q", e)
	}

	c, err := r.Cookie(flowCookie)
	if err != nil {
		return nil, "", errors.New("missing sign-in state")
	}
	f, ok := decodeFlow(c.Value)
	if !ok || f.state == "" || q.Get("state") != f.state {
		return nil, "", errors.New("state mismatch")
	}
	code := q.Get("code")
	if code == "" {
		return nil, "", errors.New("missing authorization code")
	}

	ctx := context.WithValue(r.Context(), oauth2.HTTPClient, s.config.HTTPClient)
	tok, err := s.oauth.Exchange(ctx, code, oauth2.VerifierOption(f.verifier))
	if err != nil {
		return nil, "", fmt.Errorf("code exchange: %w", err)
	}

	rawID, _ := tok.Extra("id_token").(string)
	if rawID == "" {
		return nil, "", errors.New("token response without id_token")
	}

	idToken, err := s.verifier.Verify(oidc.ClientContext(r.Context(), s.config.HTTPClient), rawID)
	if err != nil {
		return nil, "", fmt.Errorf("id_token: %w", err)
	}
	if idToken.Nonce != f.nonce {
		return nil, "", errors.New("nonce mismatch")
	}

	var claims map[string]any
	if err := idToken.Claims(&claims); err != nil {
		return nil, "", fmt.Errorf("id_token claims: %w", err)
	}
	if scope, _ := tok.Extra("scope").(string); scope != "" {
		claims["scp"] = scope
	}

	return auth.NewIdentity(idToken.Subject, auth.FlattenClaims(claims)), safeReturnPath(f.returnTo), nil
}

func (s *Scheme) flowCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     flowCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.config.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

type flow struct {
	state    string
	nonce    string
	verifier string
	returnTo string
}

// encodeFlow joins the flow fields with ':'. state and nonce are UUIDs and
// the verifier is base64url, so only the return path needs encoding.
func encodeFlow(f flow) string {
	return strings.Join([]string{
		f.state,
		f.nonce,
		f.verifier,
		base64.RawURLEncoding.EncodeToString([]byte(f.returnTo)),
	}, ":")
}

func decodeFlow(v string) (flow, bool) {
	parts := strings.Split(v, ":")
	if len(parts) != 4 {
		return flow{}, false
	}
	ret, err := base64.RawURLEncoding.DecodeString(parts[3])
	if err != nil {
		return flow{}, false
	}
	return flow{state: parts[0], nonce: parts[1], verifier: parts[2], returnTo: string(ret)}, true
}

// safeReturnPath keeps only local absolute paths so the callback cannot be
// used as an open redirect.
func safeReturnPath(p string) string {
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.HasPrefix(p, "/\\") {
		return "/"
	}
	return p
}

func isBrowserNavigation(r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return false
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
