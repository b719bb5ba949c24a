// Package cookie provides the cookie session scheme. A session is an
// HS256-signed JWT stored in a named cookie; it is issued by the sign-in
// callback of the redirect scheme and cleared on sign-out.
package cookie

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/rhuss/tenantgate/pkg/api"
	"github.com/rhuss/tenantgate/pkg/auth"
	"github.com/rhuss/tenantgate/pkg/debug"
	"github.com/rhuss/tenantgate/pkg/observability"
)

// MinSecretLen is the minimum session secret length in bytes.
const MinSecretLen = 32

// DefaultName is the session cookie name unless configured.
const DefaultName = "tenantgate_session"

// sessionIssuer is the iss claim of session tokens.
const sessionIssuer = "tenantgate"

// carriedClaims are copied from the sign-in identity into the session.
// Everything else is dropped to keep the cookie small.
var carriedClaims = []string{"name", "preferred_username", "email", "oid", "tid", "scp", "roles", "groups"}

// Config holds the session configuration.
type Config struct {
	// Name is the cookie name. Default: DefaultName.
	Name string

	// Secret signs session tokens. Required, at least MinSecretLen bytes.
	Secret []byte

	// TTL is the session lifetime. Default: 8 hours.
	TTL time.Duration

	// Secure marks the cookie HTTPS-only.
	Secure bool

	// Path scopes the cookie. Default: "/".
	Path string
}

// Sessions issues and verifies cookie sessions.
type Sessions struct {
	config Config
}

type sessionClaims struct {
	Claims map[string][]string `json:"clm,omitempty"`
	Tier   string              `json:"tier,omitempty"`
	jwtlib.RegisteredClaims
}

// New creates a session manager.
func New(cfg Config) (*Sessions, error) {
	if len(cfg.Secret) == 0 {
		return nil, api.NewConfigError(api.MissingField, "auth.cookie.session_secret", "cookie scheme requires a session secret")
	}
	if len(cfg.Secret) < MinSecretLen {
		return nil, api.NewConfigError(api.InvalidValue, "auth.cookie.session_secret",
			fmt.Sprintf("session secret must be at least %d bytes", MinSecretLen))
	}
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 8 * time.Hour
	}
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	cfg.Secret = slices.Clone(cfg.Secret)
	return &Sessions{config: cfg}, nil
}

// Name returns the cookie name.
func (s *Sessions) Name() string { return s.config.Name }

// Verify implements auth.Verifier.
// Returns Abstain without a session cookie, No for an invalid or expired one.
func (s *Sessions) Verify(_ context.Context, creds auth.Credentials) auth.AuthResult {
	raw, ok := creds.Cookie(s.config.Name)
	if !ok || raw == "" {
		return auth.AuthResult{Decision: auth.Abstain}
	}

	var claims sessionClaims
	_, err := jwtlib.ParseWithClaims(raw, &claims, func(*jwtlib.Token) (any, error) {
		return s.config.Secret, nil
	},
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithIssuer(sessionIssuer),
		jwtlib.WithExpirationRequired(),
	)
	if err != nil {
		debug.Log("auth", "session cookie rejected", "error", err)
		if errors.Is(err, jwtlib.ErrTokenExpired) {
			return auth.AuthResult{Decision: auth.No, Err: fmt.Errorf("session: %w", auth.ErrTokenExpired)}
		}
		return auth.AuthResult{Decision: auth.No, Err: fmt.Errorf("%w: %w", auth.ErrInvalidCredentials, err)}
	}
	if claims.Subject == "" {
		return auth.AuthResult{Decision: auth.No, Err: fmt.Errorf("%w: session without subject", auth.ErrInvalidCredentials)}
	}

	return auth.AuthResult{
		Decision: auth.Yes,
		Identity: auth.NewIdentity(claims.Subject, claims.Claims, auth.WithServiceTier(claims.Tier)),
	}
}

// Issue writes a session cookie for id.
func (s *Sessions) Issue(w http.ResponseWriter, id *auth.Identity) error {
	if id == nil || id.Subject == "" {
		return errors.New("session: identity without subject")
	}

	carried := make(map[string][]string)
	for _, name := range carriedClaims {
		if vals := id.Claim(name); len(vals) > 0 {
			carried[name] = vals
		}
	}

	now := time.Now()
	claims := sessionClaims{
		Claims: carried,
		Tier:   id.ServiceTier,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    sessionIssuer,
			Subject:   id.Subject,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(s.config.TTL)),
		},
	}
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(s.config.Secret)
	if err != nil {
		return fmt.Errorf("signing session: %w", err)
	}

	http.SetCookie(w, s.cookie(signed, int(s.config.TTL.Seconds())))
	observability.SessionsIssuedTotal.Inc()
	return nil
}

// Clear removes the session cookie.
func (s *Sessions) Clear(w http.ResponseWriter) {
	http.SetCookie(w, s.cookie("", -1))
}

func (s *Sessions) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     s.config.Name,
		Value:    value,
		Path:     s.config.Path,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.config.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
