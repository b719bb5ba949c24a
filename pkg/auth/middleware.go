package auth

import (
	"log/slog"
	"net/http"

	"github.com/rhuss/tenantgate/pkg/api"
	"github.com/rhuss/tenantgate/pkg/debug"
	"github.com/rhuss/tenantgate/pkg/observability"
	"github.com/rhuss/tenantgate/pkg/transport"
)

// Challenger turns an unauthenticated browser request into an interactive
// sign-in. Challenge returns false when it does not handle the request.
type Challenger interface {
	Challenge(w http.ResponseWriter, r *http.Request) bool
}

// MiddlewareOptions holds the optional collaborators of Middleware.
type MiddlewareOptions struct {
	// Limiter enforces per-subject rate limits after authorization. Nil disables it.
	Limiter RateLimiter

	// Challenger handles Unauthenticated failures before a 401 is written. Nil disables it.
	Challenger Challenger

	// Logger receives rejection records, including the log-only reason.
	Logger *slog.Logger
}

// Middleware creates HTTP middleware that authenticates the request, applies
// policy, optionally rate limits, and injects the identity into the context.
//
// Authentication failures do not reject the request by themselves: a route
// whose policy admits anonymous callers is served without an identity.
func Middleware(resolver *Resolver, policy Policy, opts MiddlewareOptions) func(http.Handler) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	// Only advertise a bearer challenge when a scheme accepts one.
	bearerChallenge := resolver.HasKind(KindBearer)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			identity, authErr := resolver.Authenticate(ctx, CredentialsFromRequest(r))

			if err := Authorize(identity, policy); err != nil {
				failure, _ := AsFailure(err)
				if failure.Code == Unauthenticated {
					// The resolver knows why no identity exists; prefer its reason.
					if af, ok := AsFailure(authErr); ok {
						failure = af
					}
				}

				logger.Warn("request rejected",
					"code", string(failure.Code),
					"reason", failure.Reason,
					"policy", policy.String(),
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
				)
				observability.AuthFailuresTotal.WithLabelValues(string(failure.Code)).Inc()

				if failure.Code == Unauthenticated && opts.Challenger != nil && opts.Challenger.Challenge(w, r) {
					return
				}

				if failure.Code == Unauthenticated && bearerChallenge {
					w.Header().Set("WWW-Authenticate", "Bearer")
				}
				transport.WriteErrorResponse(w, failure.APIError(), failure.HTTPStatus())
				return
			}

			if identity != nil {
				debug.Log("auth", "authentication succeeded",
					"subject", identity.Subject,
					"scheme", identity.SchemeName,
					"path", r.URL.Path,
				)
			}

			// Rate limiting (if configured).
			if opts.Limiter != nil && identity != nil {
				if err := opts.Limiter.Allow(ctx, identity); err != nil {
					tier := identity.ServiceTier
					if tier == "" {
						tier = "default"
					}
					logger.Warn("rate limit exceeded",
						"subject", identity.Subject,
						"tier", tier,
					)
					observability.RateLimitRejectedTotal.WithLabelValues(tier).Inc()
					transport.WriteErrorResponse(w, api.NewTooManyRequestsError(), http.StatusTooManyRequests)
					return
				}
			}

			if identity != nil {
				ctx = SetIdentity(ctx, identity)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
