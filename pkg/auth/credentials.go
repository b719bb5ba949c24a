package auth

import (
	"net/http"
	"strings"
)

// Credentials is the read-only view of a request that verifiers receive.
// Header keys are canonicalized; each header holds its first value.
type Credentials struct {
	Headers map[string]string
	Cookies map[string]string
}

// CredentialsFromRequest copies the credential-bearing parts of r.
// Only the Authorization header and cookies are taken; r is not modified.
func CredentialsFromRequest(r *http.Request) Credentials {
	c := Credentials{
		Headers: make(map[string]string, 1),
		Cookies: make(map[string]string),
	}
	if v := r.Header.Get("Authorization"); v != "" {
		c.Headers["Authorization"] = v
	}
	for _, ck := range r.Cookies() {
		if _, dup := c.Cookies[ck.Name]; !dup {
			c.Cookies[ck.Name] = ck.Value
		}
	}
	return c
}

// Authorization returns the Authorization header value. Lookup is case-insensitive.
func (c Credentials) Authorization() string {
	if v, ok := c.Headers["Authorization"]; ok {
		return v
	}
	for k, v := range c.Headers {
		if strings.EqualFold(k, "Authorization") {
			return v
		}
	}
	return ""
}

// BearerToken returns the token of a "Bearer" Authorization header.
// ok is false when the header is absent or uses another scheme; the token
// may be empty when ok is true.
func (c Credentials) BearerToken() (token string, ok bool) {
	h := c.Authorization()
	const prefix = "Bearer "
	if len(h) < len(prefix)-1 || !strings.EqualFold(h[:len(prefix)-1], prefix[:len(prefix)-1]) {
		return "", false
	}
	if len(h) == len(prefix)-1 {
		return "", true
	}
	if h[len(prefix)-1] != ' ' {
		return "", false
	}
	return strings.TrimSpace(h[len(prefix):]), true
}

// Cookie returns the named cookie value.
func (c Credentials) Cookie(name string) (string, bool) {
	v, ok := c.Cookies[name]
	return v, ok
}
