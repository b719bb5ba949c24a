// Package cors implements the cross-origin gate that runs before
// authentication. Preflight requests are answered here and never reach the
// authentication resolver; actual requests from disallowed origins are
// rejected with 403 CorsDenied.
//
// A policy that allows any origin ("*") together with credentials is
// rejected when the gate is built.
package cors

import (
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rhuss/tenantgate/pkg/api"
	"github.com/rhuss/tenantgate/pkg/debug"
	"github.com/rhuss/tenantgate/pkg/observability"
	"github.com/rhuss/tenantgate/pkg/transport"
)

// Wildcard is the policy entry that matches any origin, method or header.
const Wildcard = "*"

// Policy describes which cross-origin requests are allowed.
type Policy struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// DefaultMethods are allowed when a policy names none.
var DefaultMethods = []string{http.MethodGet, http.MethodHead, http.MethodPost}

// DefaultHeaders are allowed in preflight requests when a policy names none.
var DefaultHeaders = []string{"Authorization", "Content-Type"}

// Decision is the outcome of evaluating one request against the policy.
type Decision struct {
	Allowed bool
	// Headers are the response headers to add when Allowed.
	Headers http.Header
	// Reason explains a denial. Logged only.
	Reason string
}

// Gate evaluates requests against an immutable policy.
type Gate struct {
	origins      map[string]struct{}
	anyOrigin    bool
	methods      []string
	anyMethod    bool
	headers      map[string]struct{}
	anyHeader    bool
	allowHeaders string
	allowMethods string
	exposed      string
	credentials  bool
	maxAge       string
}

// New validates p and builds a gate.
func New(p Policy) (*Gate, error) {
	g := &Gate{
		origins:     make(map[string]struct{}),
		headers:     make(map[string]struct{}),
		credentials: p.AllowCredentials,
	}

	for _, o := range p.AllowedOrigins {
		o = strings.TrimSpace(o)
		if o == Wildcard {
			g.anyOrigin = true
			continue
		}
		norm, ok := normalizeOrigin(o)
		if !ok {
			return nil, api.NewConfigError(api.InvalidValue, "cors.allowed_origins", "origin "+strconv.Quote(o)+" is not scheme://host[:port]")
		}
		g.origins[norm] = struct{}{}
	}

	if g.anyOrigin && g.credentials {
		return nil, api.NewConfigError(api.InsecureCorsCombination, "cors",
			"allowing any origin together with credentials exposes credentialed responses to every site")
	}

	methods := p.AllowedMethods
	if len(methods) == 0 {
		methods = DefaultMethods
	}
	for _, m := range methods {
		m = strings.ToUpper(strings.TrimSpace(m))
		if m == Wildcard {
			g.anyMethod = true
			continue
		}
		if m != "" && !slices.Contains(g.methods, m) {
			g.methods = append(g.methods, m)
		}
	}
	g.allowMethods = strings.Join(g.methods, ", ")

	headers := p.AllowedHeaders
	if len(headers) == 0 {
		headers = DefaultHeaders
	}
	var canonical []string
	for _, h := range headers {
		h = strings.TrimSpace(h)
		if h == Wildcard {
			g.anyHeader = true
			continue
		}
		if h != "" {
			c := http.CanonicalHeaderKey(h)
			g.headers[c] = struct{}{}
			canonical = append(canonical, c)
		}
	}
	g.allowHeaders = strings.Join(canonical, ", ")

	var exposed []string
	for _, h := range p.ExposedHeaders {
		if h = strings.TrimSpace(h); h != "" {
			exposed = append(exposed, http.CanonicalHeaderKey(h))
		}
	}
	g.exposed = strings.Join(exposed, ", ")

	if p.MaxAge > 0 {
		g.maxAge = strconv.Itoa(int(p.MaxAge.Seconds()))
	}
	return g, nil
}

// Evaluate decides whether a request from origin may proceed. For a
// preflight, method is the requested method and requestHeaders the
// requested header names. An empty origin is not a cross-origin request
// and is always allowed with no headers.
func (g *Gate) Evaluate(origin, method string, preflight bool, requestHeaders ...string) Decision {
	if origin == "" {
		return Decision{Allowed: true, Headers: http.Header{}}
	}

	h := http.Header{}
	if !g.anyOrigin {
		h.Add("Vary", "Origin")
	}

	if !g.originAllowed(origin) {
		return Decision{Headers: h, Reason: "origin not allowed"}
	}

	if g.anyOrigin {
		h.Set("Access-Control-Allow-Origin", Wildcard)
	} else {
		h.Set("Access-Control-Allow-Origin", origin)
	}
	if g.credentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}

	if !preflight {
		if g.exposed != "" {
			h.Set("Access-Control-Expose-Headers", g.exposed)
		}
		return Decision{Allowed: true, Headers: h}
	}

	h.Add("Vary", "Access-Control-Request-Method")
	h.Add("Vary", "Access-Control-Request-Headers")

	// Denied preflights carry only the Vary headers.
	deny := func(reason string) Decision {
		return Decision{Headers: http.Header{"Vary": h.Values("Vary")}, Reason: reason}
	}
	if !g.anyMethod && !slices.Contains(g.methods, method) {
		return deny("method " + method + " not allowed")
	}
	for _, rh := range requestHeaders {
		if !g.anyHeader {
			if _, ok := g.headers[http.CanonicalHeaderKey(rh)]; !ok {
				return deny("header " + rh + " not allowed")
			}
		}
	}

	if g.anyMethod {
		h.Set("Access-Control-Allow-Methods", method)
	} else {
		h.Set("Access-Control-Allow-Methods", g.allowMethods)
	}
	switch {
	case g.anyHeader && len(requestHeaders) > 0:
		h.Set("Access-Control-Allow-Headers", strings.Join(requestHeaders, ", "))
	case g.allowHeaders != "":
		h.Set("Access-Control-Allow-Headers", g.allowHeaders)
	}
	if g.maxAge != "" {
		h.Set("Access-Control-Max-Age", g.maxAge)
	}
	return Decision{Allowed: true, Headers: h}
}

// Middleware applies the gate: requests without Origin pass through,
// preflights are answered with 204, and disallowed origins get 403.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			next.ServeHTTP(w, r)
			return
		}

		preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
		method := r.Method
		var requested []string
		if preflight {
			method = r.Header.Get("Access-Control-Request-Method")
			requested = splitHeaderList(r.Header.Values("Access-Control-Request-Headers"))
		}

		d := g.Evaluate(origin, method, preflight, requested...)
		for k, vals := range d.Headers {
			for _, v := range vals {
				w.Header().Add(k, v)
			}
		}

		outcome := "allowed"
		if !d.Allowed {
			outcome = "denied"
		}
		observability.CORSDecisionsTotal.WithLabelValues(outcome, strconv.FormatBool(preflight)).Inc()

		if !d.Allowed {
			debug.Log("cors", "cross-origin request denied", "origin", origin, "method", method, "reason", d.Reason)
			transport.WriteErrorResponse(w, api.NewCORSDeniedError(), http.StatusForbidden)
			return
		}

		if preflight {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *Gate) originAllowed(origin string) bool {
	if g.anyOrigin {
		return true
	}
	norm, ok := normalizeOrigin(origin)
	if !ok {
		return false
	}
	_, found := g.origins[norm]
	return found
}

// normalizeOrigin lowercases scheme and host and drops a trailing slash.
// Origins with a path, query or user info are invalid.
func normalizeOrigin(o string) (string, bool) {
	u, err := url.Parse(strings.TrimSuffix(o, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" || u.User != nil ||
		u.Path != "" || u.RawQuery != "" || u.Fragment != "" {
		return "", false
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host), true
}

func splitHeaderList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
