package bearer

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rhuss/tenantgate/pkg/auth"
	"github.com/rhuss/tenantgate/pkg/debug"
)

// maxJWKSBody bounds the key set response.
const maxJWKSBody = 1 << 20

// refreshTimeout bounds a shared key set fetch. The fetch is detached from
// the request that started it so other waiters are not cancelled with it.
const refreshTimeout = 10 * time.Second

// keySet caches RSA public keys fetched from a JWKS endpoint.
// Concurrent refreshes are collapsed into one fetch.
type keySet struct {
	url    string
	client *http.Client
	ttl    time.Duration

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey // kid -> public key
	fetchedAt time.Time

	group singleflight.Group
}

func newKeySet(url string, client *http.Client, ttl time.Duration) *keySet {
	return &keySet{
		url:    url,
		client: client,
		ttl:    ttl,
		keys:   make(map[string]*rsa.PublicKey),
	}
}

// get returns the key for kid, refreshing the set when the cache is stale or
// the kid is unknown. Fetch failures wrap auth.ErrSchemeUnavailable; a kid
// still missing after a successful refresh wraps auth.ErrInvalidCredentials.
func (s *keySet) get(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	s.mu.RLock()
	key, ok := s.keys[kid]
	fresh := time.Since(s.fetchedAt) < s.ttl
	s.mu.RUnlock()
	if ok && fresh {
		return key, nil
	}

	ch := s.group.DoChan("refresh", func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return nil, s.refresh(fetchCtx)
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", auth.ErrSchemeUnavailable, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("%w: %w", auth.ErrSchemeUnavailable, res.Err)
		}
	}

	s.mu.RLock()
	key, ok = s.keys[kid]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: signing key %q not found", auth.ErrInvalidCredentials, kid)
	}
	return key, nil
}

func (s *keySet) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return fmt.Errorf("creating JWKS request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSBody))
	if err != nil {
		return fmt.Errorf("reading JWKS response: %w", err)
	}

	var doc jwksDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("parsing JWKS: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, jwk := range doc.Keys {
		if jwk.Kty != "RSA" {
			continue
		}
		if jwk.Use != "" && jwk.Use != "sig" {
			continue
		}

		pub, err := parseRSAPublicKey(jwk)
		if err != nil {
			slog.Warn("skipping JWKS key", "kid", jwk.Kid, "error", err)
			continue
		}
		keys[jwk.Kid] = pub
	}

	s.mu.Lock()
	s.keys = keys
	s.fetchedAt = time.Now()
	s.mu.Unlock()

	debug.Log("auth", "JWKS cache refreshed", "keys", len(keys), "url", s.url)
	return nil
}

// jwksDocument represents the JSON Web Key Set response.
type jwksDocument struct {
	Keys []jwkKey `json:"keys"`
}

// jwkKey represents a single JSON Web Key.
type jwkKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func parseRSAPublicKey(jwk jwkKey) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(jwk.N)
	if err != nil {
		return nil, fmt.Errorf("decoding modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(jwk.E)
	if err != nil {
		return nil, fmt.Errorf("decoding exponent: %w", err)
	}

	n := new(big.Int).SetBytes(nBytes)
	e := new(big.Int).SetBytes(eBytes)
	if !e.IsInt64() {
		return nil, fmt.Errorf("RSA exponent too large")
	}

	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}
