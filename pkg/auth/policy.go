package auth

import (
	"slices"
	"strings"
)

// Policy is the authorization requirement attached to a route.
type Policy struct {
	// RequiredSchemes restricts which schemes may have produced the identity.
	// Empty accepts any registered scheme.
	RequiredSchemes []string

	// RequireAuthenticated rejects requests without an identity.
	RequireAuthenticated bool

	// RequiredScopes lists scopes that must all be granted to the identity.
	RequiredScopes []string
}

// DefaultPolicy requires an authenticated caller from any registered scheme.
func DefaultPolicy() Policy {
	return Policy{RequireAuthenticated: true}
}

// AnonymousPolicy places no requirement on the caller.
func AnonymousPolicy() Policy {
	return Policy{}
}

// String describes the policy for logs.
func (p Policy) String() string {
	var b strings.Builder
	if p.RequireAuthenticated {
		b.WriteString("authenticated")
	} else {
		b.WriteString("anonymous")
	}
	if len(p.RequiredSchemes) > 0 {
		b.WriteString(" schemes=" + strings.Join(p.RequiredSchemes, ","))
	}
	if len(p.RequiredScopes) > 0 {
		b.WriteString(" scopes=" + strings.Join(p.RequiredScopes, ","))
	}
	return b.String()
}

// Authorize decides whether id satisfies p. It is pure: the same inputs always
// yield the same decision. A nil return allows the request; otherwise the
// error is a *Failure with code Unauthenticated or Forbidden.
func Authorize(id *Identity, p Policy) error {
	if id == nil {
		if p.RequireAuthenticated || len(p.RequiredSchemes) > 0 || len(p.RequiredScopes) > 0 {
			return unauthenticated("identity required", ErrNoCredentials)
		}
		return nil
	}

	if len(p.RequiredSchemes) > 0 && !slices.Contains(p.RequiredSchemes, id.SchemeName) {
		return forbidden("scheme " + id.SchemeName + " not accepted")
	}

	if len(p.RequiredScopes) > 0 {
		granted := id.Scopes()
		for _, s := range p.RequiredScopes {
			if !slices.Contains(granted, s) {
				return forbidden("missing scope " + s)
			}
		}
	}

	return nil
}
