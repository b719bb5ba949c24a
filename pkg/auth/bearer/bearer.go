// Package bearer provides the bearer-token scheme: JWT access tokens issued
// by the tenant authority, validated against the tenant's JSON Web Key Set.
//
// The token must carry the configured audience. The issuer is checked only
// when configured, since tenants issue tokens under more than one issuer
// form. Signature validation is delegated to golang-jwt.
package bearer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/rhuss/tenantgate/pkg/api"
	"github.com/rhuss/tenantgate/pkg/auth"
	"github.com/rhuss/tenantgate/pkg/debug"
)

// Config holds the bearer verifier configuration.
type Config struct {
	// Audience is the expected aud claim. Required.
	Audience string

	// KeysURL is the tenant JWKS endpoint. Required.
	KeysURL string

	// Issuer is the expected iss claim. If empty, issuer is not validated.
	Issuer string

	// SubjectClaim is the claim used as the identity subject. Default: "sub".
	SubjectClaim string

	// TierClaim names the claim carrying the rate-limit tier. Optional.
	TierClaim string

	// SaveToken keeps the validated raw token on the identity.
	SaveToken bool

	// Leeway tolerates clock skew on exp/nbf/iat. Default: 30s.
	Leeway time.Duration

	// CacheTTL controls how long JWKS keys are cached. Default: 1 hour.
	CacheTTL time.Duration

	// HTTPClient allows injecting a custom HTTP client (useful for testing).
	// If nil, a client with a 10s timeout is used.
	HTTPClient *http.Client
}

func (c *Config) applyDefaults() {
	if c.SubjectClaim == "" {
		c.SubjectClaim = "sub"
	}
	if c.Leeway == 0 {
		c.Leeway = 30 * time.Second
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = time.Hour
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
}

// Verifier validates JWT bearer tokens against a JWKS endpoint.
type Verifier struct {
	config Config
	keys   *keySet
}

// New creates a bearer verifier. Audience and KeysURL are required.
func New(cfg Config) (*Verifier, error) {
	if cfg.Audience == "" {
		return nil, api.NewConfigError(api.MissingField, "tenant.audience", "bearer scheme requires an audience")
	}
	if cfg.KeysURL == "" {
		return nil, api.NewConfigError(api.MissingField, "keys_url", "bearer scheme requires a keys URL")
	}
	cfg.applyDefaults()
	return &Verifier{
		config: cfg,
		keys:   newKeySet(cfg.KeysURL, cfg.HTTPClient, cfg.CacheTTL),
	}, nil
}

// Verify implements auth.Verifier.
//
// Decision outcomes:
//   - Abstain: no Authorization header or not a Bearer scheme
//   - No: bearer token present but invalid (expired, wrong audience, bad signature, etc.)
//   - Yes: valid JWT with populated Identity
func (v *Verifier) Verify(ctx context.Context, creds auth.Credentials) auth.AuthResult {
	tokenStr, ok := creds.BearerToken()
	if !ok {
		return auth.AuthResult{Decision: auth.Abstain}
	}
	if tokenStr == "" {
		return reject(fmt.Errorf("%w: empty bearer token", auth.ErrInvalidCredentials))
	}

	token, err := jwtlib.Parse(tokenStr, func(token *jwtlib.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("%w: token missing kid header", auth.ErrInvalidCredentials)
		}
		return v.keys.get(ctx, kid)
	}, v.parserOptions()...)
	if err != nil {
		debug.Log("auth", "bearer token rejected", "error", err)
		return reject(classify(err))
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok || !token.Valid {
		return reject(fmt.Errorf("%w: invalid claims", auth.ErrInvalidCredentials))
	}

	subject, _ := claims[v.config.SubjectClaim].(string)
	if subject == "" {
		return reject(fmt.Errorf("%w: missing %q claim", auth.ErrInvalidCredentials, v.config.SubjectClaim))
	}

	var opts []auth.IdentityOption
	if v.config.SaveToken {
		opts = append(opts, auth.WithToken(tokenStr))
	}
	if v.config.TierClaim != "" {
		if tier, _ := claims[v.config.TierClaim].(string); tier != "" {
			opts = append(opts, auth.WithServiceTier(tier))
		}
	}

	return auth.AuthResult{
		Decision: auth.Yes,
		Identity: auth.NewIdentity(subject, auth.FlattenClaims(claims), opts...),
	}
}

func (v *Verifier) parserOptions() []jwtlib.ParserOption {
	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
		jwtlib.WithAudience(v.config.Audience),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithLeeway(v.config.Leeway),
	}
	if v.config.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(v.config.Issuer))
	}
	return opts
}

func reject(err error) auth.AuthResult {
	return auth.AuthResult{Decision: auth.No, Err: err}
}

// classify maps a golang-jwt parse error onto the auth sentinels.
func classify(err error) error {
	switch {
	case errors.Is(err, auth.ErrSchemeUnavailable):
		return err
	case errors.Is(err, jwtlib.ErrTokenExpired):
		return fmt.Errorf("bearer: %w", auth.ErrTokenExpired)
	case errors.Is(err, auth.ErrInvalidCredentials):
		return err
	default:
		return fmt.Errorf("%w: %w", auth.ErrInvalidCredentials, err)
	}
}
