// Package tenant derives the per-tenant identity provider URLs that both the
// bearer scheme and the documentation OAuth client are configured from.
//
// Derived URLs are methods, not fields: they are recomputed from the instance
// root and directory id on every call, so a Config can never carry a stale
// authority next to a changed directory id.
package tenant

import (
	"net/url"
	"strings"

	"github.com/rhuss/tenantgate/pkg/api"
)

// Config is the immutable tenant configuration created once at startup.
type Config struct {
	instanceRoot string
	directoryID  string

	// Audience is the expected token audience (the API's application id URI).
	Audience string

	// ClientID is the OAuth2 client the documentation UI and redirect scheme use.
	ClientID string

	// RedirectURL is where the identity provider sends the browser back to.
	RedirectURL string
}

// Resolve validates the inputs and returns a Config.
//
// instanceRoot and directoryID are required because every derived URL depends
// on them. Trailing slashes on instanceRoot and surrounding slashes on
// directoryID are ignored.
func Resolve(instanceRoot, directoryID, audience, clientID, redirectURL string) (Config, error) {
	root := normalizeRoot(instanceRoot)
	if root == "" {
		return Config{}, api.NewConfigError(api.MissingField, "tenant.instance", "instance root is required")
	}
	u, err := url.Parse(root)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return Config{}, api.NewConfigError(api.InvalidValue, "tenant.instance", "instance root must be an absolute URL")
	}

	dir := strings.Trim(strings.TrimSpace(directoryID), "/")
	if dir == "" {
		return Config{}, api.NewConfigError(api.MissingField, "tenant.directory_id", "directory id is required")
	}

	if redirectURL != "" {
		if r, err := url.Parse(redirectURL); err != nil || r.Scheme == "" || r.Host == "" {
			return Config{}, api.NewConfigError(api.InvalidValue, "tenant.redirect_url", "redirect url must be an absolute URL")
		}
	}

	return Config{
		instanceRoot: root,
		directoryID:  dir,
		Audience:     strings.TrimSpace(audience),
		ClientID:     strings.TrimSpace(clientID),
		RedirectURL:  redirectURL,
	}, nil
}

// InstanceRoot returns the normalized instance root without a trailing slash.
func (c Config) InstanceRoot() string { return c.instanceRoot }

// DirectoryID returns the tenant directory identifier.
func (c Config) DirectoryID() string { return c.directoryID }

// IsZero reports whether c was not produced by Resolve.
func (c Config) IsZero() bool { return c.instanceRoot == "" }

// Authority is the tenant root: instanceRoot + "/" + directoryID + "/".
func (c Config) Authority() string {
	return c.instanceRoot + "/" + c.directoryID + "/"
}

// AuthorizeURL is the OAuth2 authorization endpoint of the tenant.
func (c Config) AuthorizeURL() string {
	return c.Authority() + "oauth2/authorize"
}

// TokenURL is the OAuth2 token endpoint of the tenant.
func (c Config) TokenURL() string {
	return c.Authority() + "oauth2/token"
}

// KeysURL is the tenant's JSON Web Key Set endpoint.
func (c Config) KeysURL() string {
	return c.Authority() + "discovery/keys"
}

func normalizeRoot(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), "/")
}
