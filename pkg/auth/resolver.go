package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rhuss/tenantgate/pkg/debug"
	"github.com/rhuss/tenantgate/pkg/observability"
)

// Reasons recorded on Unauthenticated failures that are not produced by a verifier error.
const (
	reasonNoSchemes     = "no authentication schemes registered"
	reasonNoCredentials = "no credentials"
	reasonUnavailable   = "scheme unavailable"
	reasonCancelled     = "request cancelled"
)

// specificity ranks recorded failures; the highest wins.
const (
	rankAbstain = iota + 1
	rankUnavailable
	rankRejected
)

// Resolver authenticates requests against a sealed registry snapshot.
type Resolver struct {
	schemes []Scheme
	logger  *slog.Logger
}

// NewResolver seals reg and returns a resolver over its ordered schemes.
// A registry with zero schemes yields a resolver that always fails closed.
func NewResolver(reg *Registry, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		schemes: reg.Seal(),
		logger:  logger,
	}
}

// SchemeNames returns the scheme names in trial order.
func (r *Resolver) SchemeNames() []string {
	names := make([]string, len(r.schemes))
	for i, s := range r.schemes {
		names[i] = s.Name
	}
	return names
}

// HasKind reports whether any scheme handles credentials of kind k.
func (r *Resolver) HasKind(k Kind) bool {
	for _, s := range r.schemes {
		if s.Kind == k {
			return true
		}
	}
	return false
}

// Authenticate tries the schemes in priority order and returns the first
// identity produced. If no scheme succeeds it returns a *Failure with code
// Unauthenticated carrying the most specific reason encountered.
func (r *Resolver) Authenticate(ctx context.Context, creds Credentials) (*Identity, error) {
	if len(r.schemes) == 0 {
		return nil, unauthenticated(reasonNoSchemes, ErrNoCredentials)
	}

	var (
		best     *Failure
		bestRank int
	)
	record := func(rank int, f *Failure) {
		// Earlier schemes have higher priority, so only a strictly more
		// specific failure replaces the recorded one.
		if rank > bestRank {
			best, bestRank = f, rank
		}
	}

	for _, s := range r.schemes {
		if err := ctx.Err(); err != nil {
			return nil, unauthenticated(reasonCancelled, err)
		}

		result := r.verify(ctx, s, creds)
		observability.AuthAttemptsTotal.WithLabelValues(s.Name, result.Decision.String()).Inc()

		switch result.Decision {
		case Yes:
			if result.Identity == nil || result.Identity.Subject == "" {
				r.logger.Error("scheme returned identity without subject", "scheme", s.Name)
				record(rankRejected, unauthenticated("identity without subject", ErrInvalidCredentials))
				continue
			}
			debug.Log("auth", "scheme accepted credentials", "scheme", s.Name, "subject", result.Identity.Subject)
			return result.Identity.withScheme(s.Name), nil

		case No:
			reason := reasonOf(result.Err)
			debug.Log("auth", "scheme rejected credentials", "scheme", s.Name, "reason", reason)
			if errors.Is(result.Err, ErrSchemeUnavailable) {
				record(rankUnavailable, unauthenticated(reason, result.Err))
			} else {
				record(rankRejected, unauthenticated(reason, result.Err))
			}

		default:
			debug.Log("auth", "scheme abstained", "scheme", s.Name)
			record(rankAbstain, unauthenticated(reasonNoCredentials, ErrNoCredentials))
		}
	}

	return nil, best
}

// verify calls the scheme's verifier, converting a panic into an unavailable
// result so one broken scheme cannot take the request down.
func (r *Resolver) verify(ctx context.Context, s Scheme, creds Credentials) (result AuthResult) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("scheme verifier panicked", "scheme", s.Name, "panic", fmt.Sprint(p))
			result = AuthResult{
				Decision: No,
				Err:      fmt.Errorf("%w: verifier panic", ErrSchemeUnavailable),
			}
		}
		observability.SchemeVerifyDuration.WithLabelValues(s.Name).Observe(time.Since(start).Seconds())
	}()
	return s.Verifier.Verify(ctx, creds)
}

// reasonOf converts a verifier error into a log-only reason.
func reasonOf(err error) string {
	switch {
	case err == nil:
		return ErrInvalidCredentials.Error()
	case errors.Is(err, ErrSchemeUnavailable):
		return reasonUnavailable
	case errors.Is(err, ErrTokenExpired):
		return ErrTokenExpired.Error()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return reasonCancelled
	default:
		return err.Error()
	}
}
