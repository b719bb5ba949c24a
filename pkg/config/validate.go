package config

import (
	"errors"
	"fmt"
	"slices"

	"github.com/rhuss/tenantgate/pkg/api"
)

// minSessionSecretLen mirrors the cookie scheme's requirement.
const minSessionSecretLen = 32

// Validate checks the configuration for required fields and valid values.
// Every failure is an *api.ConfigError naming the field; all failures are
// reported together.
func (c *Config) Validate() error {
	var errs []error
	add := func(kind api.ConfigErrorKind, field, format string, args ...any) {
		errs = append(errs, api.NewConfigError(kind, field, fmt.Sprintf(format, args...)))
	}

	if c.Server.Port <= 0 {
		add(api.InvalidValue, "server.port", "must be > 0, got %d", c.Server.Port)
	}
	if (c.Server.TLS.CertFile == "") != (c.Server.TLS.KeyFile == "") {
		add(api.MissingField, "server.tls", "cert_file and key_file must be set together")
	}
	if c.Server.HTTPSRedirect.Enabled && c.Server.HTTPSRedirect.HTTPSPort <= 0 {
		add(api.InvalidValue, "server.https_redirect.https_port", "must be > 0, got %d", c.Server.HTTPSRedirect.HTTPSPort)
	}

	if c.NeedsTenant() {
		if c.Tenant.Instance == "" {
			add(api.MissingField, "tenant.instance", "is required")
		}
		if c.Tenant.DirectoryID == "" {
			add(api.MissingField, "tenant.directory_id", "is required")
		}
	}

	if c.Auth.Bearer.Enabled && c.Tenant.Audience == "" {
		add(api.MissingField, "tenant.audience", "is required when auth.bearer is enabled")
	}

	if c.Auth.Cookie.Enabled {
		switch {
		case c.Auth.Cookie.SessionSecret == "":
			add(api.MissingField, "auth.cookie.session_secret", "is required when auth.cookie is enabled")
		case len(c.Auth.Cookie.SessionSecret) < minSessionSecretLen:
			add(api.InvalidValue, "auth.cookie.session_secret", "must be at least %d bytes", minSessionSecretLen)
		}
	}

	if c.Auth.Redirect.Enabled {
		if !c.Auth.Cookie.Enabled {
			add(api.MissingField, "auth.cookie.enabled", "auth.redirect requires auth.cookie")
		}
		if c.Tenant.ClientID == "" {
			add(api.MissingField, "tenant.client_id", "is required when auth.redirect is enabled")
		}
		if c.Tenant.RedirectURL == "" {
			add(api.MissingField, "tenant.redirect_url", "is required when auth.redirect is enabled")
		}
	}

	seen := make(map[string]int, len(c.Auth.APIKeys.Keys))
	for i, k := range c.Auth.APIKeys.Keys {
		field := fmt.Sprintf("auth.api_keys.keys[%d]", i)
		if k.Key == "" {
			add(api.MissingField, field+".key", "is required")
			continue
		}
		if k.Subject == "" {
			add(api.MissingField, field+".subject", "is required")
		}
		if j, dup := seen[k.Key]; dup {
			add(api.DuplicateName, field+".key", "duplicates auth.api_keys.keys[%d]", j)
		}
		seen[k.Key] = i
	}

	if len(c.EnabledSchemes()) == 0 && !c.Auth.Anonymous {
		add(api.MissingField, "auth", "no authentication scheme is enabled and auth.anonymous is false")
	}

	if c.Auth.RateLimit.Enabled {
		if c.Auth.RateLimit.DefaultRPM <= 0 {
			add(api.InvalidValue, "auth.rate_limit.default_rpm", "must be > 0, got %d", c.Auth.RateLimit.DefaultRPM)
		}
		for tier, rpm := range c.Auth.RateLimit.Tiers {
			if rpm <= 0 {
				add(api.InvalidValue, "auth.rate_limit.tiers."+tier, "must be > 0, got %d", rpm)
			}
		}
	}

	if c.CORS.AllowCredentials && slices.Contains(c.CORS.AllowedOrigins, "*") {
		add(api.InsecureCorsCombination, "cors.allowed_origins", "wildcard origin cannot be combined with allow_credentials")
	}

	if c.Docs.Enabled {
		if c.Tenant.ClientID == "" {
			add(api.MissingField, "tenant.client_id", "is required when docs are enabled")
		}
		switch c.Docs.Flow {
		case "implicit", "authorizationCode", "":
		default:
			add(api.InvalidValue, "docs.flow", "must be \"implicit\" or \"authorizationCode\", got %q", c.Docs.Flow)
		}
	}

	switch c.Logging.Format {
	case "text", "json", "":
	default:
		add(api.InvalidValue, "logging.format", "must be \"text\" or \"json\", got %q", c.Logging.Format)
	}

	return errors.Join(errs...)
}

// NeedsTenant reports whether any enabled component derives URLs from the tenant.
func (c *Config) NeedsTenant() bool {
	return c.Auth.Bearer.Enabled || c.Auth.Redirect.Enabled || c.Docs.Enabled
}

// EnabledSchemes lists the authentication schemes the configuration turns on.
func (c *Config) EnabledSchemes() []string {
	var names []string
	if c.Auth.Bearer.Enabled {
		names = append(names, "bearer")
	}
	if len(c.Auth.APIKeys.Keys) > 0 {
		names = append(names, "apikey")
	}
	if c.Auth.Cookie.Enabled {
		names = append(names, "cookie")
	}
	if c.Auth.Redirect.Enabled {
		names = append(names, "redirect")
	}
	return names
}
