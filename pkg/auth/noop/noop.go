// Package noop provides a scheme that accepts every request as an anonymous
// caller. Used for development deployments without a tenant.
package noop

import (
	"context"

	"github.com/rhuss/tenantgate/pkg/auth"
)

// Subject is the subject of identities produced by the verifier.
const Subject = "anonymous"

// Verifier always returns Yes with a default anonymous identity.
type Verifier struct{}

// Verify implements auth.Verifier.
func (Verifier) Verify(_ context.Context, _ auth.Credentials) auth.AuthResult {
	return auth.AuthResult{
		Decision: auth.Yes,
		Identity: auth.NewIdentity(Subject, nil, auth.WithServiceTier("default")),
	}
}
