package auth

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// Identity represents an authenticated caller. It is created per request and
// never mutated afterwards: claims are only reachable through accessors that
// return copies.
type Identity struct {
	// Subject is the unique identifier (required, non-empty).
	Subject string

	// SchemeName is the registry name of the scheme that produced the identity.
	SchemeName string

	// ServiceTier determines rate limits. Empty means "default".
	ServiceTier string

	claims map[string][]string
	token  string
}

// IdentityOption configures optional Identity fields at construction time.
type IdentityOption func(*Identity)

// WithToken keeps the validated raw token on the identity for downstream reuse.
func WithToken(token string) IdentityOption {
	return func(id *Identity) { id.token = token }
}

// WithServiceTier sets the rate-limit tier.
func WithServiceTier(tier string) IdentityOption {
	return func(id *Identity) { id.ServiceTier = tier }
}

// NewIdentity creates an identity. The claims map is deep-copied.
func NewIdentity(subject string, claims map[string][]string, opts ...IdentityOption) *Identity {
	id := &Identity{
		Subject: subject,
		claims:  cloneClaims(claims),
	}
	for _, opt := range opts {
		opt(id)
	}
	return id
}

// withScheme returns a copy of id stamped with the registry scheme name.
func (id *Identity) withScheme(name string) *Identity {
	c := *id
	c.SchemeName = name
	return &c
}

// Claim returns a copy of the values of the named claim.
func (id *Identity) Claim(name string) []string {
	if id == nil {
		return nil
	}
	return slices.Clone(id.claims[name])
}

// FirstClaim returns the first value of the named claim, or "".
func (id *Identity) FirstClaim(name string) string {
	if id == nil || len(id.claims[name]) == 0 {
		return ""
	}
	return id.claims[name][0]
}

// HasClaim reports whether the named claim is present.
func (id *Identity) HasClaim(name string) bool {
	if id == nil {
		return false
	}
	_, ok := id.claims[name]
	return ok
}

// ClaimNames returns the sorted claim names.
func (id *Identity) ClaimNames() []string {
	if id == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(id.claims))
}

// Claims returns a deep copy of all claims.
func (id *Identity) Claims() map[string][]string {
	if id == nil {
		return nil
	}
	return cloneClaims(id.claims)
}

// Scopes returns the granted scopes from the "scp" and "scope" claims.
// Either claim may hold a space-separated string or several values.
func (id *Identity) Scopes() []string {
	if id == nil {
		return nil
	}
	var scopes []string
	for _, name := range []string{"scp", "scope"} {
		for _, v := range id.claims[name] {
			for _, s := range strings.Fields(v) {
				if !slices.Contains(scopes, s) {
					scopes = append(scopes, s)
				}
			}
		}
	}
	return scopes
}

// Token returns the raw validated token when the scheme was configured to save it.
func (id *Identity) Token() string {
	if id == nil {
		return ""
	}
	return id.token
}

// String returns a representation with the token redacted.
func (id *Identity) String() string {
	if id == nil {
		return "<nil>"
	}
	return fmt.Sprintf("Identity{Subject:%q, Scheme:%q}", id.Subject, id.SchemeName)
}

// MarshalJSON redacts the token so identities can be logged or echoed safely.
func (id *Identity) MarshalJSON() ([]byte, error) {
	if id == nil {
		return []byte("null"), nil
	}

	type safeIdentity struct {
		Subject     string              `json:"subject"`
		Scheme      string              `json:"scheme"`
		ServiceTier string              `json:"service_tier,omitempty"`
		Claims      map[string][]string `json:"claims,omitempty"`
		Token       string              `json:"token,omitempty"`
	}

	token := ""
	if id.token != "" {
		token = "REDACTED"
	}

	return json.Marshal(&safeIdentity{
		Subject:     id.Subject,
		Scheme:      id.SchemeName,
		ServiceTier: id.ServiceTier,
		Claims:      id.claims,
		Token:       token,
	})
}

func cloneClaims(in map[string][]string) map[string][]string {
	if in == nil {
		return map[string][]string{}
	}
	out := make(map[string][]string, len(in))
	for k, v := range in {
		out[k] = slices.Clone(v)
	}
	return out
}

// FlattenClaims converts decoded JWT claims to the identity claim form:
// strings stay as one value, string arrays become several values, numbers
// and booleans are formatted. Nested objects are dropped.
func FlattenClaims(claims map[string]any) map[string][]string {
	out := make(map[string][]string, len(claims))
	for k, val := range claims {
		switch t := val.(type) {
		case string:
			out[k] = []string{t}
		case []any:
			var vals []string
			for _, item := range t {
				if s, ok := item.(string); ok {
					vals = append(vals, s)
				}
			}
			if len(vals) > 0 {
				out[k] = vals
			}
		case []string:
			if len(t) > 0 {
				out[k] = slices.Clone(t)
			}
		case float64:
			out[k] = []string{strconv.FormatFloat(t, 'f', -1, 64)}
		case bool:
			out[k] = []string{strconv.FormatBool(t)}
		}
	}
	return out
}
