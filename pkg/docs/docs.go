// Package docs bridges the tenant configuration to the interactive API
// documentation surface. The OAuth2 client the documentation UI uses for
// "try it out" is derived from the same tenant.Config as the
// authentication pipeline, so both always point at the same authority.
package docs

import (
	"maps"
	"slices"
	"strings"

	"golang.org/x/oauth2"

	"github.com/rhuss/tenantgate/pkg/tenant"
)

// Flow is the OAuth2 grant the documentation UI uses.
type Flow string

const (
	FlowImplicit          Flow = "implicit"
	FlowAuthorizationCode Flow = "authorizationCode"
)

// DefaultScopeSeparator joins scopes when none is configured.
const DefaultScopeSeparator = " "

// SecuritySchemeName is the name of the OpenAPI security scheme.
const SecuritySchemeName = "oauth2"

// OAuthConfig is the resolved OAuth2 client configuration of the
// documentation UI.
type OAuthConfig struct {
	AuthorizeURL     string
	TokenURL         string
	ClientID         string
	RedirectURL      string
	Scopes           []string
	ScopeSeparator   string
	ExtraQueryParams map[string]string
	Flow             Flow
	UsePKCE          bool
}

// Build derives the UI OAuth configuration from t. It is pure and copies
// scopes and extra so later changes by the caller are not observed.
// An empty separator means DefaultScopeSeparator.
func Build(t tenant.Config, scopes []string, extra map[string]string, separator string) OAuthConfig {
	if separator == "" {
		separator = DefaultScopeSeparator
	}
	return OAuthConfig{
		AuthorizeURL:     t.AuthorizeURL(),
		TokenURL:         t.TokenURL(),
		ClientID:         t.ClientID,
		RedirectURL:      t.RedirectURL,
		Scopes:           slices.Clone(scopes),
		ScopeSeparator:   separator,
		ExtraQueryParams: maps.Clone(extra),
		Flow:             FlowImplicit,
	}
}

// Clone returns a deep copy of c.
func (c OAuthConfig) Clone() OAuthConfig {
	c.Scopes = slices.Clone(c.Scopes)
	c.ExtraQueryParams = maps.Clone(c.ExtraQueryParams)
	return c
}

// ScopeString joins the scopes with the configured separator.
func (c OAuthConfig) ScopeString() string {
	sep := c.ScopeSeparator
	if sep == "" {
		sep = DefaultScopeSeparator
	}
	return strings.Join(c.Scopes, sep)
}

// OAuth2 returns an oauth2.Config for the same endpoints and client.
func (c OAuthConfig) OAuth2() *oauth2.Config {
	return &oauth2.Config{
		ClientID:    c.ClientID,
		RedirectURL: c.RedirectURL,
		Scopes:      slices.Clone(c.Scopes),
		Endpoint: oauth2.Endpoint{
			AuthURL:  c.AuthorizeURL,
			TokenURL: c.TokenURL,
		},
	}
}

// AuthCodeURL builds the authorize link the UI opens, including the extra
// query parameters. For the implicit flow the response type is token.
func (c OAuthConfig) AuthCodeURL(state string) string {
	var opts []oauth2.AuthCodeOption
	if len(c.Scopes) > 0 {
		opts = append(opts, oauth2.SetAuthURLParam("scope", c.ScopeString()))
	}
	if c.Flow == FlowImplicit {
		opts = append(opts, oauth2.SetAuthURLParam("response_type", "token"))
	}
	for _, k := range slices.Sorted(maps.Keys(c.ExtraQueryParams)) {
		opts = append(opts, oauth2.SetAuthURLParam(k, c.ExtraQueryParams[k]))
	}
	return c.OAuth2().AuthCodeURL(state, opts...)
}

// OAuthFlow is an OpenAPI 3 OAuth flow object.
type OAuthFlow struct {
	AuthorizationURL string            `json:"authorizationUrl,omitempty"`
	TokenURL         string            `json:"tokenUrl,omitempty"`
	Scopes           map[string]string `json:"scopes"`
}

// SecurityScheme is an OpenAPI 3 security scheme object of type oauth2.
type SecurityScheme struct {
	Type  string               `json:"type"`
	Flows map[string]OAuthFlow `json:"flows"`
}

// SecurityScheme renders the OpenAPI security scheme for the configured flow.
func (c OAuthConfig) SecurityScheme() SecurityScheme {
	scopes := make(map[string]string, len(c.Scopes))
	for _, s := range c.Scopes {
		scopes[s] = ""
	}
	f := OAuthFlow{AuthorizationURL: c.AuthorizeURL, Scopes: scopes}
	if c.Flow == FlowAuthorizationCode {
		f.TokenURL = c.TokenURL
	}
	flow := c.Flow
	if flow == "" {
		flow = FlowImplicit
	}
	return SecurityScheme{Type: "oauth2", Flows: map[string]OAuthFlow{string(flow): f}}
}

// SecurityRequirement renders the matching OpenAPI security requirement.
func (c OAuthConfig) SecurityRequirement() map[string][]string {
	scopes := slices.Clone(c.Scopes)
	if scopes == nil {
		scopes = []string{}
	}
	return map[string][]string{SecuritySchemeName: scopes}
}

// UIConfig is the swagger-ui initOAuth configuration plus the endpoints.
type UIConfig struct {
	ClientID                          string            `json:"clientId"`
	Scopes                            string            `json:"scopes"`
	ScopeSeparator                    string            `json:"scopeSeparator"`
	AdditionalQueryStringParams       map[string]string `json:"additionalQueryStringParams,omitempty"`
	UsePkceWithAuthorizationCodeGrant bool              `json:"usePkceWithAuthorizationCodeGrant"`
	OAuth2RedirectURL                 string            `json:"oauth2RedirectUrl,omitempty"`
	AuthorizationURL                  string            `json:"authorizationUrl"`
	TokenURL                          string            `json:"tokenUrl"`
	Flow                              Flow              `json:"flow"`
}

// UI renders the configuration in the shape the UI consumes.
func (c OAuthConfig) UI() UIConfig {
	sep := c.ScopeSeparator
	if sep == "" {
		sep = DefaultScopeSeparator
	}
	flow := c.Flow
	if flow == "" {
		flow = FlowImplicit
	}
	return UIConfig{
		ClientID:                          c.ClientID,
		Scopes:                            c.ScopeString(),
		ScopeSeparator:                    sep,
		AdditionalQueryStringParams:       maps.Clone(c.ExtraQueryParams),
		UsePkceWithAuthorizationCodeGrant: c.UsePKCE && flow == FlowAuthorizationCode,
		OAuth2RedirectURL:                 c.RedirectURL,
		AuthorizationURL:                  c.AuthorizeURL,
		TokenURL:                          c.TokenURL,
		Flow:                              flow,
	}
}
