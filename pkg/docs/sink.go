package docs

import (
	"errors"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/rhuss/tenantgate/pkg/api"
	"github.com/rhuss/tenantgate/pkg/debug"
	"github.com/rhuss/tenantgate/pkg/transport"
)

// ErrAlreadyConfigured is returned when a sink is configured twice.
var ErrAlreadyConfigured = errors.New("documentation sink already configured")

// Sink receives the resolved documentation OAuth configuration once at startup.
type Sink interface {
	Configure(OAuthConfig) error
}

// Handler is a Sink that serves the received configuration as JSON:
//
//	GET {prefix}/oauth2-config.json  swagger-ui initOAuth configuration
//	GET {prefix}/security.json       OpenAPI securitySchemes and security
type Handler struct {
	prefix string
	cfg    atomic.Pointer[OAuthConfig]
}

// NewHandler creates a Handler serving under prefix (for example "/docs").
func NewHandler(prefix string) *Handler {
	return &Handler{prefix: strings.TrimRight(prefix, "/")}
}

// Prefix returns the path prefix the handler serves under.
func (h *Handler) Prefix() string { return h.prefix }

// Configure implements Sink. Only the first call succeeds.
func (h *Handler) Configure(c OAuthConfig) error {
	if c.ClientID == "" {
		return api.NewConfigError(api.MissingField, "tenant.client_id", "documentation OAuth client requires a client id")
	}
	if c.AuthorizeURL == "" {
		return api.NewConfigError(api.MissingField, "tenant.instance", "documentation OAuth client requires an authorize url")
	}
	cp := c.Clone()
	if !h.cfg.CompareAndSwap(nil, &cp) {
		return ErrAlreadyConfigured
	}
	debug.Log("docs", "documentation OAuth configured", "authorize_url", c.AuthorizeURL, "flow", string(c.Flow))
	return nil
}

// Config returns the received configuration.
func (h *Handler) Config() (OAuthConfig, bool) {
	c := h.cfg.Load()
	if c == nil {
		return OAuthConfig{}, false
	}
	return c.Clone(), true
}

type securityDocument struct {
	Components struct {
		SecuritySchemes map[string]SecurityScheme `json:"securitySchemes"`
	} `json:"components"`
	Security []map[string][]string `json:"security"`
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	c := h.cfg.Load()
	if c == nil {
		transport.WriteErrorResponse(w, api.NewNotConfiguredError("documentation OAuth client not configured"), http.StatusServiceUnavailable)
		return
	}

	switch strings.TrimPrefix(r.URL.Path, h.prefix) {
	case "/oauth2-config.json":
		transport.WriteJSON(w, http.StatusOK, c.UI())
	case "/security.json":
		var doc securityDocument
		doc.Components.SecuritySchemes = map[string]SecurityScheme{SecuritySchemeName: c.SecurityScheme()}
		doc.Security = []map[string][]string{c.SecurityRequirement()}
		transport.WriteJSON(w, http.StatusOK, doc)
	default:
		http.NotFound(w, r)
	}
}
