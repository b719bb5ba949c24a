package transport

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HSTS returns middleware that sets Strict-Transport-Security on responses
// served over TLS (directly or behind a proxy setting X-Forwarded-Proto).
func HSTS(maxAge time.Duration, includeSubdomains bool) Middleware {
	value := "max-age=" + strconv.Itoa(int(maxAge.Seconds()))
	if includeSubdomains {
		value += "; includeSubDomains"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isHTTPS(r) {
				w.Header().Set("Strict-Transport-Security", value)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HTTPSRedirect returns middleware that redirects plain HTTP requests to
// HTTPS with 308, preserving method and body. httpsPort is appended to the
// host when it is not 443; zero keeps the request host unchanged.
func HTTPSRedirect(httpsPort int) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isHTTPS(r) {
				next.ServeHTTP(w, r)
				return
			}
			host := r.Host
			if httpsPort != 0 {
				if i := strings.LastIndexByte(host, ':'); i > 0 && !strings.HasSuffix(host, "]") {
					host = host[:i]
				}
				if httpsPort != 443 {
					host += ":" + strconv.Itoa(httpsPort)
				}
			}
			target := "https://" + host + r.URL.RequestURI()
			http.Redirect(w, r, target, http.StatusPermanentRedirect)
		})
	}
}

func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
