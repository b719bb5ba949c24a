// Package idptest provides a mock tenant identity provider for tests and local
// demos. It serves the endpoints a tenant authority exposes under
// {instance}/{directory}/: the signing key set, an authorize endpoint that
// signs in a fixed user without interaction, and a token endpoint for the
// authorization code grant.
//
// Tokens are RS256 JWTs signed with a key generated at construction time.
package idptest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/rhuss/tenantgate/pkg/tenant"
)

// DefaultDirectoryID is the directory the mock serves unless configured.
const DefaultDirectoryID = "tenant-123"

// DefaultSubject is the user signed in by the authorize endpoint.
const DefaultSubject = "alice@example.com"

// IdP is a mock tenant identity provider.
type IdP struct {
	directoryID string
	subject     string
	audience    string

	mu      sync.RWMutex
	baseURL string
	key     *rsa.PrivateKey
	kid     string
	codes   map[string]grant

	keysDown   atomic.Bool
	keyFetches atomic.Int32
	tokenCalls atomic.Int32
}

// grant is an issued authorization code waiting to be exchanged.
type grant struct {
	clientID    string
	redirectURI string
	nonce       string
	scope       string
	expires     time.Time
}

// Option configures an IdP.
type Option func(*IdP)

// WithDirectoryID sets the directory (tenant) identifier.
func WithDirectoryID(id string) Option {
	return func(p *IdP) { p.directoryID = id }
}

// WithSubject sets the user signed in by the authorize endpoint.
func WithSubject(sub string) Option {
	return func(p *IdP) { p.subject = sub }
}

// WithAudience sets the aud claim of access tokens issued by the token endpoint.
func WithAudience(aud string) Option {
	return func(p *IdP) { p.audience = aud }
}

// WithBaseURL sets the instance root the IdP is reachable under.
// Start sets it automatically.
func WithBaseURL(u string) Option {
	return func(p *IdP) { p.baseURL = strings.TrimRight(u, "/") }
}

// New creates an IdP with a fresh signing key.
func New(opts ...Option) (*IdP, error) {
	p := &IdP{
		directoryID: DefaultDirectoryID,
		subject:     DefaultSubject,
		codes:       make(map[string]grant),
	}
	for _, opt := range opts {
		opt(p)
	}
	if err := p.RotateKey(); err != nil {
		return nil, err
	}
	return p, nil
}

// Server is an IdP listening on a loopback httptest server.
type Server struct {
	*IdP
	ts *httptest.Server
}

// Start creates an IdP and serves it on a loopback address.
func Start(opts ...Option) (*Server, error) {
	p, err := New(opts...)
	if err != nil {
		return nil, err
	}
	ts := httptest.NewServer(p.Handler())
	p.mu.Lock()
	p.baseURL = ts.URL
	p.mu.Unlock()
	return &Server{IdP: p, ts: ts}, nil
}

// Close shuts the server down.
func (s *Server) Close() { s.ts.Close() }

// Client returns an HTTP client for the server.
func (s *Server) Client() *http.Client { return s.ts.Client() }

// InstanceRoot returns the base URL of the IdP.
func (p *IdP) InstanceRoot() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.baseURL
}

// DirectoryID returns the tenant directory the IdP serves.
func (p *IdP) DirectoryID() string { return p.directoryID }

// Subject returns the user signed in by the authorize endpoint.
func (p *IdP) Subject() string { return p.subject }

// Issuer returns the iss claim of issued tokens: the tenant authority.
func (p *IdP) Issuer() string {
	return p.InstanceRoot() + "/" + p.directoryID + "/"
}

// Tenant resolves the tenant configuration pointing at this IdP.
func (p *IdP) Tenant(audience, clientID, redirectURL string) (tenant.Config, error) {
	return tenant.Resolve(p.InstanceRoot(), p.directoryID, audience, clientID, redirectURL)
}

// RotateKey replaces the signing key. Tokens signed before the rotation no
// longer verify once clients refresh the key set.
func (p *IdP) RotateKey() error {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return fmt.Errorf("generating signing key: %w", err)
	}
	p.mu.Lock()
	p.key = key
	p.kid = uuid.NewString()
	p.mu.Unlock()
	return nil
}

// SetKeysUnavailable makes the key set endpoint answer 503.
func (p *IdP) SetKeysUnavailable(down bool) { p.keysDown.Store(down) }

// KeyFetches returns how often the key set was served.
func (p *IdP) KeyFetches() int { return int(p.keyFetches.Load()) }

// TokenCalls returns how often the token endpoint was called.
func (p *IdP) TokenCalls() int { return int(p.tokenCalls.Load()) }

// Sign signs claims with the current key.
func (p *IdP) Sign(claims jwtlib.MapClaims) (string, error) {
	p.mu.RLock()
	key, kid := p.key, p.kid
	p.mu.RUnlock()

	token := jwtlib.NewWithClaims(jwtlib.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	return token.SignedString(key)
}

// AccessToken issues an access token for subject and audience that expires
// after ttl. A negative ttl yields an already expired token. extra claims
// are merged last and may override the standard ones.
func (p *IdP) AccessToken(subject, audience string, ttl time.Duration, extra map[string]any) (string, error) {
	now := time.Now()
	claims := jwtlib.MapClaims{
		"iss": p.Issuer(),
		"sub": subject,
		"aud": audience,
		"iat": now.Add(min(ttl, 0)).Add(-time.Minute).Unix(),
		"nbf": now.Add(min(ttl, 0)).Add(-time.Minute).Unix(),
		"exp": now.Add(ttl).Unix(),
		"tid": p.directoryID,
	}
	for k, v := range extra {
		claims[k] = v
	}
	return p.Sign(claims)
}

func (p *IdP) jwks() map[string]any {
	p.mu.RLock()
	pub, kid := p.key.PublicKey, p.kid
	p.mu.RUnlock()

	return map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"use": "sig",
			"alg": "RS256",
			"kid": kid,
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	}
}
