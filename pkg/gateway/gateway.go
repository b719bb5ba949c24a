// Package gateway assembles the request pipeline from configuration:
//
//	HSTS / HTTPS redirect -> metrics -> CORS gate -> authentication -> authorization -> route
//
// The tenant is derived exactly once here and handed to both the scheme
// registry and the documentation OAuth bridge.
package gateway

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rhuss/tenantgate/pkg/api"
	"github.com/rhuss/tenantgate/pkg/auth"
	"github.com/rhuss/tenantgate/pkg/auth/apikey"
	"github.com/rhuss/tenantgate/pkg/auth/bearer"
	"github.com/rhuss/tenantgate/pkg/auth/cookie"
	"github.com/rhuss/tenantgate/pkg/auth/noop"
	"github.com/rhuss/tenantgate/pkg/auth/redirect"
	"github.com/rhuss/tenantgate/pkg/config"
	"github.com/rhuss/tenantgate/pkg/cors"
	"github.com/rhuss/tenantgate/pkg/docs"
	"github.com/rhuss/tenantgate/pkg/observability"
	"github.com/rhuss/tenantgate/pkg/tenant"
	"github.com/rhuss/tenantgate/pkg/transport"
)

// Scheme names registered from configuration.
const (
	SchemeBearer    = "bearer"
	SchemeAPIKey    = "apikey"
	SchemeCookie    = "cookie"
	SchemeRedirect  = "redirect"
	SchemeAnonymous = "anonymous"
)

// SignOutPath clears the cookie session when the redirect scheme is enabled.
const SignOutPath = "/signout"

// ErrRoutesClosed is returned by Handle after Handler has been called.
var ErrRoutesClosed = errors.New("gateway routes are closed")

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// WithHTTPClient sets the client used for key fetches and token exchange.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) { g.httpClient = c }
}

// WithDocsSink delivers the documentation OAuth configuration to s instead
// of the built-in documentation handler.
func WithDocsSink(s docs.Sink) Option {
	return func(g *Gateway) { g.docsSink = s }
}

// WithScheme registers an additional scheme next to the configured ones.
func WithScheme(s auth.Scheme) Option {
	return func(g *Gateway) { g.extraSchemes = append(g.extraSchemes, s) }
}

type route struct {
	pattern string
	policy  auth.Policy
	handler http.Handler
}

// Gateway owns the scheme registry, the CORS gate and the routes.
type Gateway struct {
	cfg          config.Config
	tenant       tenant.Config
	logger       *slog.Logger
	httpClient   *http.Client
	extraSchemes []auth.Scheme

	registry *auth.Registry
	cors     *cors.Gate
	limiter  auth.RateLimiter
	sessions *cookie.Sessions
	redirect *redirect.Scheme
	docsSink docs.Sink
	docs     *docs.Handler
	oauth    docs.OAuthConfig

	mu     sync.Mutex
	probe  *http.ServeMux
	routes []route
	closed bool

	once    sync.Once
	handler http.Handler
	ready   atomic.Bool
}

// New validates cfg and builds the gateway. All failures are *api.ConfigError
// or wrap one.
func New(cfg *config.Config, opts ...Option) (*Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	g := &Gateway{
		cfg:      *cfg,
		logger:   slog.Default(),
		registry: auth.NewRegistry(),
		probe:    http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(g)
	}

	if cfg.NeedsTenant() {
		t, err := tenant.Resolve(cfg.Tenant.Instance, cfg.Tenant.DirectoryID, cfg.Tenant.Audience, cfg.Tenant.ClientID, cfg.Tenant.RedirectURL)
		if err != nil {
			return nil, err
		}
		g.tenant = t
	}

	if err := g.registerSchemes(); err != nil {
		return nil, err
	}

	if len(cfg.CORS.AllowedOrigins) > 0 {
		gate, err := cors.New(cors.Policy{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowedMethods:   cfg.CORS.AllowedMethods,
			AllowedHeaders:   cfg.CORS.AllowedHeaders,
			ExposedHeaders:   cfg.CORS.ExposedHeaders,
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           cfg.CORS.MaxAge,
		})
		if err != nil {
			return nil, err
		}
		g.cors = gate
	}

	if cfg.Auth.RateLimit.Enabled {
		tiers := make(map[string]auth.TierConfig, len(cfg.Auth.RateLimit.Tiers))
		for name, rpm := range cfg.Auth.RateLimit.Tiers {
			tiers[name] = auth.TierConfig{RequestsPerMinute: rpm}
		}
		g.limiter = auth.NewInProcessLimiter(tiers, cfg.Auth.RateLimit.DefaultRPM)
	}

	if cfg.Docs.Enabled {
		if err := g.configureDocs(); err != nil {
			return nil, err
		}
	}

	if err := g.reserveSystemRoutes(); err != nil {
		return nil, err
	}

	g.logger.Info("gateway configured",
		"schemes", schemeNames(g.registry.SchemesInPriorityOrder()),
		"anonymous", cfg.Auth.Anonymous,
		"cors", g.cors != nil,
		"docs", cfg.Docs.Enabled,
	)
	return g, nil
}

func (g *Gateway) registerSchemes() error {
	cfg := g.cfg

	if cfg.Auth.Bearer.Enabled {
		v, err := bearer.New(bearer.Config{
			Audience:   g.tenant.Audience,
			KeysURL:    g.tenant.KeysURL(),
			Issuer:     cfg.Auth.Bearer.Issuer,
			TierClaim:  cfg.Auth.Bearer.TierClaim,
			SaveToken:  cfg.Tenant.SaveToken,
			Leeway:     cfg.Auth.Bearer.Leeway,
			CacheTTL:   cfg.Auth.Bearer.CacheTTL,
			HTTPClient: g.httpClient,
		})
		if err != nil {
			return err
		}
		if err := g.registry.Register(auth.Scheme{Name: SchemeBearer, Kind: auth.KindBearer, Priority: cfg.Auth.Bearer.Priority, Verifier: v}); err != nil {
			return err
		}
	}

	if len(cfg.Auth.APIKeys.Keys) > 0 {
		raw := make([]apikey.RawKey, len(cfg.Auth.APIKeys.Keys))
		for i, k := range cfg.Auth.APIKeys.Keys {
			raw[i] = apikey.RawKey{Key: k.Key, Subject: k.Subject, ServiceTier: k.ServiceTier, Scopes: k.Scopes}
		}
		v, err := apikey.New(raw)
		if err != nil {
			return err
		}
		if err := g.registry.Register(auth.Scheme{Name: SchemeAPIKey, Kind: auth.KindBearer, Priority: cfg.Auth.APIKeys.Priority, Verifier: v}); err != nil {
			return err
		}
	}

	if cfg.Auth.Cookie.Enabled {
		s, err := cookie.New(cookie.Config{
			Name:   cfg.Auth.Cookie.Name,
			Secret: []byte(cfg.Auth.Cookie.SessionSecret),
			TTL:    cfg.Auth.Cookie.TTL,
			Secure: cfg.Auth.Cookie.Secure,
		})
		if err != nil {
			return err
		}
		g.sessions = s
		if err := g.registry.Register(auth.Scheme{Name: SchemeCookie, Kind: auth.KindCookie, Priority: cfg.Auth.Cookie.Priority, Verifier: s}); err != nil {
			return err
		}
	}

	if cfg.Auth.Redirect.Enabled {
		s, err := redirect.New(redirect.Config{
			Tenant:       g.tenant,
			ClientSecret: cfg.Tenant.ClientSecret,
			Scopes:       cfg.Auth.Redirect.Scopes,
			ExtraParams:  g.extraQueryParams(),
			CallbackPath: cfg.Tenant.CallbackPath,
			Sessions:     g.sessions,
			Secure:       cfg.Auth.Cookie.Secure,
			HTTPClient:   g.httpClient,
			Logger:       g.logger,
		})
		if err != nil {
			return err
		}
		g.redirect = s
		if err := g.registry.Register(auth.Scheme{Name: SchemeRedirect, Kind: auth.KindRedirectChallenge, Priority: cfg.Auth.Redirect.Priority, Verifier: s}); err != nil {
			return err
		}
	}

	for _, s := range g.extraSchemes {
		if err := g.registry.Register(s); err != nil {
			return err
		}
	}

	if g.registry.Len() == 0 && cfg.Auth.Anonymous {
		return g.registry.Register(auth.Scheme{Name: SchemeAnonymous, Kind: auth.KindBearer, Priority: math.MinInt, Verifier: noop.Verifier{}})
	}
	return nil
}

// extraQueryParams returns the configured authorize parameters, defaulting
// to resource=<audience>.
func (g *Gateway) extraQueryParams() map[string]string {
	if g.cfg.Docs.ExtraQueryParams != nil {
		return maps.Clone(g.cfg.Docs.ExtraQueryParams)
	}
	if g.tenant.Audience == "" {
		return nil
	}
	return map[string]string{"resource": g.tenant.Audience}
}

func (g *Gateway) configureDocs() error {
	oc := docs.Build(g.tenant, g.cfg.Docs.Scopes, g.extraQueryParams(), g.cfg.Docs.ScopeSeparator)
	if g.cfg.Docs.Flow != "" {
		oc.Flow = docs.Flow(g.cfg.Docs.Flow)
	}
	oc.UsePKCE = g.cfg.Docs.UsePKCE
	g.oauth = oc

	sink := g.docsSink
	if sink == nil {
		path := g.cfg.Docs.Path
		if strings.Trim(path, "/") == "" {
			path = "/docs"
		}
		g.docs = docs.NewHandler(path)
		sink = g.docs
	}
	if err := sink.Configure(oc); err != nil {
		return fmt.Errorf("configuring documentation sink: %w", err)
	}
	return nil
}

func (g *Gateway) reserveSystemRoutes() error {
	reserved := []string{"GET /healthz", "GET /readyz"}
	if g.cfg.Observability.Metrics.Enabled {
		reserved = append(reserved, "GET "+g.cfg.Observability.Metrics.Path)
	}
	if g.docs != nil {
		reserved = append(reserved, "GET "+g.docs.Prefix()+"/")
	}
	if g.redirect != nil {
		reserved = append(reserved, g.redirect.CallbackPath(), SignOutPath)
	}
	for _, p := range reserved {
		if err := probeRegister(g.probe, p); err != nil {
			return err
		}
	}
	return nil
}

// probeRegister registers pattern on a scratch mux so conflicting or
// malformed patterns fail at Handle time instead of when the handler is built.
func probeRegister(mux *http.ServeMux, pattern string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = api.NewConfigError(api.DuplicateName, "route", fmt.Sprint(r))
		}
	}()
	mux.Handle(pattern, http.NotFoundHandler())
	return nil
}

// Tenant returns the tenant the gateway was configured with.
func (g *Gateway) Tenant() tenant.Config { return g.tenant }

// Registry returns the scheme registry. It is sealed by Handler.
func (g *Gateway) Registry() *auth.Registry { return g.registry }

// DocsConfig returns the OAuth configuration handed to the documentation sink.
func (g *Gateway) DocsConfig() docs.OAuthConfig { return g.oauth.Clone() }

// DefaultPolicy is the policy applied by routes that do not need a specific one.
// Anonymous deployments admit unauthenticated callers.
func (g *Gateway) DefaultPolicy() auth.Policy {
	if g.cfg.Auth.Anonymous {
		return auth.AnonymousPolicy()
	}
	return auth.DefaultPolicy()
}

// Handle registers h for pattern behind the authentication pipeline with policy.
// Patterns use http.ServeMux syntax.
func (g *Gateway) Handle(pattern string, policy auth.Policy, h http.Handler) error {
	if strings.TrimSpace(pattern) == "" {
		return api.NewConfigError(api.MissingField, "route", "pattern is required")
	}
	if h == nil {
		return api.NewConfigError(api.MissingField, "route", "handler is required for "+pattern)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrRoutesClosed
	}
	if err := probeRegister(g.probe, pattern); err != nil {
		return err
	}
	g.routes = append(g.routes, route{pattern: pattern, policy: policy, handler: h})
	return nil
}

// Handler seals the registry, closes route registration and returns the
// assembled pipeline. Later calls return the same handler.
func (g *Gateway) Handler() http.Handler {
	g.once.Do(func() {
		g.mu.Lock()
		g.closed = true
		routes := g.routes
		g.mu.Unlock()

		resolver := auth.NewResolver(g.registry, g.logger)
		opts := auth.MiddlewareOptions{Limiter: g.limiter, Logger: g.logger}
		if g.redirect != nil {
			opts.Challenger = g.redirect
		}

		mux := http.NewServeMux()
		mux.HandleFunc("GET /healthz", g.healthz)
		mux.HandleFunc("GET /readyz", g.readyz(resolver))
		if g.cfg.Observability.Metrics.Enabled {
			mux.Handle("GET "+g.cfg.Observability.Metrics.Path, promhttp.Handler())
		}
		if g.docs != nil {
			mux.Handle("GET "+g.docs.Prefix()+"/", g.docs)
		}
		if g.redirect != nil {
			mux.Handle(g.redirect.CallbackPath(), g.redirect.CallbackHandler())
			mux.Handle(SignOutPath, g.redirect.SignOutHandler())
		}
		for _, rt := range routes {
			mux.Handle(rt.pattern, auth.Middleware(resolver, rt.policy, opts)(rt.handler))
		}

		var h http.Handler = mux
		if g.cors != nil {
			h = g.cors.Middleware(h)
		}
		h = observability.MetricsMiddleware(h)

		var outer []transport.Middleware
		if g.cfg.Server.HTTPSRedirect.Enabled {
			outer = append(outer, transport.HTTPSRedirect(g.cfg.Server.HTTPSRedirect.HTTPSPort))
		}
		if g.cfg.Server.HSTS.Enabled {
			outer = append(outer, transport.HSTS(g.cfg.Server.HSTS.MaxAge, g.cfg.Server.HSTS.IncludeSubdomains))
		}
		g.handler = transport.Chain(outer...)(h)
		g.ready.Store(true)

		g.logger.Info("gateway sealed",
			"schemes", resolver.SchemeNames(),
			"routes", len(routes),
		)
	})
	return g.handler
}

// SetReady flips the readiness probe, for example while draining.
func (g *Gateway) SetReady(ready bool) { g.ready.Store(ready) }

func (g *Gateway) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

type readiness struct {
	Status  string   `json:"status"`
	Schemes []string `json:"schemes"`
}

func (g *Gateway) readyz(resolver *auth.Resolver) http.HandlerFunc {
	names := resolver.SchemeNames()
	return func(w http.ResponseWriter, _ *http.Request) {
		if !g.ready.Load() {
			transport.WriteJSON(w, http.StatusServiceUnavailable, readiness{Status: "draining", Schemes: names})
			return
		}
		transport.WriteJSON(w, http.StatusOK, readiness{Status: "ready", Schemes: names})
	}
}

func schemeNames(schemes []auth.Scheme) []string {
	names := make([]string, len(schemes))
	for i, s := range schemes {
		names[i] = s.Name
	}
	return names
}
