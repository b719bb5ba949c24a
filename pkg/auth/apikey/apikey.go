// Package apikey provides an API key scheme that validates bearer tokens
// against a static key store using SHA-256 hashing and constant-time
// comparison.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"strings"

	"github.com/rhuss/tenantgate/pkg/api"
	"github.com/rhuss/tenantgate/pkg/auth"
)

// RawKey is the configuration format for API keys.
type RawKey struct {
	Key         string
	Subject     string
	ServiceTier string
	Scopes      []string
}

// entry maps a key hash to the identity it grants.
type entry struct {
	hash    [32]byte
	subject string
	tier    string
	claims  map[string][]string
}

// Verifier validates bearer tokens against a static key store.
type Verifier struct {
	keys []entry
}

// New creates an API key verifier. Keys are hashed immediately; plaintext
// keys are not stored.
func New(keys []RawKey) (*Verifier, error) {
	v := &Verifier{}
	seen := make(map[[32]byte]struct{}, len(keys))
	for i, k := range keys {
		field := fmt.Sprintf("auth.api_keys.keys[%d]", i)
		if k.Key == "" {
			return nil, api.NewConfigError(api.MissingField, field+".key", "api key is empty")
		}
		if k.Subject == "" {
			return nil, api.NewConfigError(api.MissingField, field+".subject", "api key has no subject")
		}
		h := sha256.Sum256([]byte(k.Key))
		if _, dup := seen[h]; dup {
			return nil, api.NewConfigError(api.DuplicateName, field+".key", "api key configured twice")
		}
		seen[h] = struct{}{}

		claims := map[string][]string{}
		if len(k.Scopes) > 0 {
			claims["scp"] = []string{strings.Join(k.Scopes, " ")}
		}
		v.keys = append(v.keys, entry{hash: h, subject: k.Subject, tier: k.ServiceTier, claims: claims})
	}
	return v, nil
}

// Verify implements auth.Verifier.
// Returns Yes if valid, No if a bearer key is present but unknown, Abstain
// if there is no bearer token or the token is a JWT.
func (v *Verifier) Verify(_ context.Context, creds auth.Credentials) auth.AuthResult {
	token, ok := creds.BearerToken()
	if !ok || looksLikeJWT(token) {
		return auth.AuthResult{Decision: auth.Abstain}
	}
	if token == "" {
		return auth.AuthResult{Decision: auth.No, Err: fmt.Errorf("%w: empty api key", auth.ErrInvalidCredentials)}
	}

	tokenHash := sha256.Sum256([]byte(token))

	// Every entry is compared so timing does not depend on the match position.
	match := -1
	for i, e := range v.keys {
		if subtle.ConstantTimeCompare(tokenHash[:], e.hash[:]) == 1 {
			match = i
		}
	}
	if match < 0 {
		return auth.AuthResult{Decision: auth.No, Err: fmt.Errorf("%w: unknown api key", auth.ErrInvalidCredentials)}
	}

	e := v.keys[match]
	return auth.AuthResult{
		Decision: auth.Yes,
		Identity: auth.NewIdentity(e.subject, e.claims, auth.WithServiceTier(e.tier)),
	}
}

// looksLikeJWT reports whether token has the three-segment compact JWS shape.
func looksLikeJWT(token string) bool {
	return strings.Count(token, ".") == 2 && strings.HasPrefix(token, "eyJ")
}
