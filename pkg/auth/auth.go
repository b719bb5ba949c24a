package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rhuss/tenantgate/pkg/api"
)

// AuthDecision represents the three possible outcomes of a verification.
type AuthDecision int

const (
	// Yes means credentials are valid. Resolution stops and the identity is used.
	Yes AuthDecision = iota

	// No means credentials of this scheme's kind are present but invalid.
	// The resolver records the failure and continues with the next scheme.
	No

	// Abstain means the credentials are not of this scheme's kind.
	// The resolver continues with the next scheme.
	Abstain
)

// String returns the lowercase name of the decision.
func (d AuthDecision) String() string {
	switch d {
	case Yes:
		return "yes"
	case No:
		return "no"
	case Abstain:
		return "abstain"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// AuthResult carries the outcome of a verification.
type AuthResult struct {
	Decision AuthDecision
	Identity *Identity // populated only when Decision == Yes
	Err      error     // populated only when Decision == No
}

// Kind is the credential family a scheme handles.
type Kind int

const (
	KindBearer Kind = iota
	KindCookie
	KindRedirectChallenge
)

func (k Kind) String() string {
	switch k {
	case KindBearer:
		return "bearer"
	case KindCookie:
		return "cookie"
	case KindRedirectChallenge:
		return "redirect"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Verifier examines request credentials and returns a three-outcome vote.
// Implementations may block (for example to fetch signing keys) and must
// honor ctx.
type Verifier interface {
	Verify(ctx context.Context, creds Credentials) AuthResult
}

// VerifierFunc adapts a function to the Verifier interface.
type VerifierFunc func(ctx context.Context, creds Credentials) AuthResult

// Verify calls f(ctx, creds).
func (f VerifierFunc) Verify(ctx context.Context, creds Credentials) AuthResult {
	return f(ctx, creds)
}

// Scheme is a named authentication scheme owned by a Registry.
type Scheme struct {
	Name     string
	Kind     Kind
	Priority int
	Verifier Verifier
}

// Sentinel errors. Verifiers wrap these with %w so the resolver can classify failures.
var (
	ErrNoCredentials      = errors.New("no credentials")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenExpired       = errors.New("token expired")
	ErrSchemeUnavailable  = errors.New("scheme unavailable")
	ErrRegistrySealed     = errors.New("scheme registry is sealed")
	ErrTooManyRequests    = errors.New("rate limit exceeded")
)

// FailureCode is the stable machine-readable outcome of a rejected request.
type FailureCode string

const (
	Unauthenticated FailureCode = api.CodeUnauthenticated
	Forbidden       FailureCode = api.CodeForbidden
)

// Failure is a request-time authentication or authorization failure.
// Reason is for logs only and is never written to the response.
type Failure struct {
	Code   FailureCode
	Reason string
	Err    error
}

func (f *Failure) Error() string {
	if f.Reason == "" {
		return string(f.Code)
	}
	return string(f.Code) + ": " + f.Reason
}

func (f *Failure) Unwrap() error { return f.Err }

// HTTPStatus maps the failure code to 401 or 403.
func (f *Failure) HTTPStatus() int {
	if f.Code == Forbidden {
		return http.StatusForbidden
	}
	return http.StatusUnauthorized
}

// APIError returns the response body for the failure. It carries no reason.
func (f *Failure) APIError() *api.APIError {
	if f.Code == Forbidden {
		return api.NewForbiddenError()
	}
	return api.NewUnauthenticatedError()
}

func unauthenticated(reason string, err error) *Failure {
	return &Failure{Code: Unauthenticated, Reason: reason, Err: err}
}

func forbidden(reason string) *Failure {
	return &Failure{Code: Forbidden, Reason: reason}
}

// AsFailure extracts a *Failure from err.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
