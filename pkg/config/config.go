// Package config provides unified configuration for the tenantgate gateway.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (TENANTGATE_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for the tenantgate gateway.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Tenant        TenantConfig        `yaml:"tenant"`
	Auth          AuthConfig          `yaml:"auth"`
	CORS          CORSConfig          `yaml:"cors"`
	Docs          DocsConfig          `yaml:"docs"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int                 `yaml:"port"`             // default: 8080
	ReadTimeout     time.Duration       `yaml:"read_timeout"`     // default: 30s
	WriteTimeout    time.Duration       `yaml:"write_timeout"`    // default: 60s
	ShutdownTimeout time.Duration       `yaml:"shutdown_timeout"` // default: 15s
	TLS             TLSConfig           `yaml:"tls"`
	HSTS            HSTSConfig          `yaml:"hsts"`
	HTTPSRedirect   HTTPSRedirectConfig `yaml:"https_redirect"`
}

// TLSConfig enables TLS termination in the server itself.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// Enabled reports whether both certificate and key are configured.
func (t TLSConfig) Enabled() bool { return t.CertFile != "" && t.KeyFile != "" }

// HSTSConfig controls the Strict-Transport-Security header.
type HSTSConfig struct {
	Enabled           bool          `yaml:"enabled"`            // default: true
	MaxAge            time.Duration `yaml:"max_age"`            // default: 720h (30 days)
	IncludeSubdomains bool          `yaml:"include_subdomains"` // default: false
}

// HTTPSRedirectConfig controls the plain HTTP to HTTPS redirect.
type HTTPSRedirectConfig struct {
	Enabled   bool `yaml:"enabled"`    // default: false
	HTTPSPort int  `yaml:"https_port"` // default: 443
}

// TenantConfig describes the identity provider tenant the gateway trusts.
type TenantConfig struct {
	Instance         string `yaml:"instance"`     // required, e.g. https://login.microsoftonline.com/
	DirectoryID      string `yaml:"directory_id"` // required
	Domain           string `yaml:"domain"`       // informational
	Audience         string `yaml:"audience"`
	ClientID         string `yaml:"client_id"`
	ClientSecret     string `yaml:"client_secret"`
	ClientSecretFile string `yaml:"client_secret_file"` // _file variant for client_secret
	RedirectURL      string `yaml:"redirect_url"`
	CallbackPath     string `yaml:"callback_path"` // default: /signin-oidc
	SaveToken        bool   `yaml:"save_token"`
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	// Anonymous admits unauthenticated callers on routes with the default
	// policy. Required to run without any scheme.
	Anonymous bool `yaml:"anonymous"`

	Bearer    BearerConfig    `yaml:"bearer"`
	Cookie    CookieConfig    `yaml:"cookie"`
	Redirect  RedirectConfig  `yaml:"redirect"`
	APIKeys   APIKeysConfig   `yaml:"api_keys"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// BearerConfig configures JWT bearer validation against the tenant keys.
type BearerConfig struct {
	Enabled   bool          `yaml:"enabled"`    // default: true
	Priority  int           `yaml:"priority"`   // default: 10
	Issuer    string        `yaml:"issuer"`     // optional expected iss
	TierClaim string        `yaml:"tier_claim"` // optional
	Leeway    time.Duration `yaml:"leeway"`     // default: 30s
	CacheTTL  time.Duration `yaml:"cache_ttl"`  // default: 1h
}

// CookieConfig configures signed session cookies.
type CookieConfig struct {
	Enabled           bool          `yaml:"enabled"`  // default: false
	Priority          int           `yaml:"priority"` // default: 5
	Name              string        `yaml:"name"`     // default: tenantgate_session
	SessionSecret     string        `yaml:"session_secret"`
	SessionSecretFile string        `yaml:"session_secret_file"` // _file variant for session_secret
	TTL               time.Duration `yaml:"ttl"`                 // default: 8h
	Secure            bool          `yaml:"secure"`              // default: true
}

// RedirectConfig configures the interactive sign-in challenge. It requires
// the cookie scheme to hold the resulting session.
type RedirectConfig struct {
	Enabled  bool     `yaml:"enabled"`  // default: false
	Priority int      `yaml:"priority"` // default: 1
	Scopes   []string `yaml:"scopes"`   // "openid" is always added
}

// APIKeysConfig configures static API keys.
type APIKeysConfig struct {
	Priority int            `yaml:"priority"` // default: 8
	Keys     []APIKeyConfig `yaml:"keys"`
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key         string   `yaml:"key" json:"key"`
	KeyFile     string   `yaml:"key_file" json:"key_file"` // _file variant for key
	Subject     string   `yaml:"subject" json:"subject"`
	ServiceTier string   `yaml:"service_tier" json:"service_tier"`
	Scopes      []string `yaml:"scopes" json:"scopes"`
}

// RateLimitConfig configures per-subject rate limiting after authorization.
type RateLimitConfig struct {
	Enabled    bool           `yaml:"enabled"`     // default: false
	DefaultRPM int            `yaml:"default_rpm"` // default: 600
	Tiers      map[string]int `yaml:"tiers"`       // tier name -> requests per minute
}

// CORSConfig configures the cross-origin gate.
type CORSConfig struct {
	AllowedOrigins   []string      `yaml:"allowed_origins"`
	AllowedMethods   []string      `yaml:"allowed_methods"`
	AllowedHeaders   []string      `yaml:"allowed_headers"`
	ExposedHeaders   []string      `yaml:"exposed_headers"`
	AllowCredentials bool          `yaml:"allow_credentials"`
	MaxAge           time.Duration `yaml:"max_age"`
}

// DocsConfig configures the documentation OAuth client.
type DocsConfig struct {
	Enabled          bool              `yaml:"enabled"`            // default: true
	Path             string            `yaml:"path"`               // default: /docs
	Scopes           []string          `yaml:"scopes"`             // default: [user_impersonation]
	ScopeSeparator   string            `yaml:"scope_separator"`    // default: " "
	ExtraQueryParams map[string]string `yaml:"extra_query_params"` // default: resource=<audience>
	Flow             string            `yaml:"flow"`               // "implicit" or "authorizationCode", default: implicit
	UsePKCE          bool              `yaml:"use_pkce"`
}

// LoggingConfig controls slog output and debug categories.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // default: INFO
	Format string `yaml:"format"` // "text" or "json", default: text
	Debug  string `yaml:"debug"`  // comma-separated categories
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			HSTS: HSTSConfig{
				Enabled: true,
				MaxAge:  30 * 24 * time.Hour,
			},
			HTTPSRedirect: HTTPSRedirectConfig{
				HTTPSPort: 443,
			},
		},
		Tenant: TenantConfig{
			CallbackPath: "/signin-oidc",
		},
		Auth: AuthConfig{
			Bearer: BearerConfig{
				Enabled:  true,
				Priority: 10,
				Leeway:   30 * time.Second,
				CacheTTL: time.Hour,
			},
			Cookie: CookieConfig{
				Priority: 5,
				Name:     "tenantgate_session",
				TTL:      8 * time.Hour,
				Secure:   true,
			},
			Redirect: RedirectConfig{
				Priority: 1,
			},
			APIKeys: APIKeysConfig{
				Priority: 8,
			},
			RateLimit: RateLimitConfig{
				DefaultRPM: 600,
			},
		},
		Docs: DocsConfig{
			Enabled:        true,
			Path:           "/docs",
			Scopes:         []string{"user_impersonation"},
			ScopeSeparator: " ",
			Flow:           "implicit",
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}
