// Command mock-idp runs the mock tenant identity provider standalone so the
// gateway can be exercised locally without a real tenant.
//
// Configuration:
//
//	MOCK_IDP_PORT      - Listen port (default: 9091)
//	MOCK_IDP_BASE_URL  - Externally visible instance root (default: http://localhost:<port>)
//	MOCK_IDP_DIRECTORY - Directory id (default: tenant-123)
//	MOCK_IDP_SUBJECT   - User signed in by the authorize endpoint (default: alice@example.com)
//	MOCK_IDP_AUDIENCE  - aud claim of issued access tokens
//
// Besides the tenant endpoints it serves GET /dev/token?sub=...&ttl=... which
// mints an access token for curl-based testing.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rhuss/tenantgate/pkg/idptest"
	"github.com/rhuss/tenantgate/pkg/transport"
)

func main() {
	port := envOrDefault("MOCK_IDP_PORT", "9091")
	audience := os.Getenv("MOCK_IDP_AUDIENCE")

	idp, err := idptest.New(
		idptest.WithBaseURL(envOrDefault("MOCK_IDP_BASE_URL", "http://localhost:"+port)),
		idptest.WithDirectoryID(envOrDefault("MOCK_IDP_DIRECTORY", idptest.DefaultDirectoryID)),
		idptest.WithSubject(envOrDefault("MOCK_IDP_SUBJECT", idptest.DefaultSubject)),
		idptest.WithAudience(audience),
	)
	if err != nil {
		slog.Error("mock idp setup failed", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle("/", idp.Handler())
	mux.Handle("GET /dev/token", tokenHandler(idp, audience))

	srv := &http.Server{Addr: ":" + port, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock idp starting",
			"port", port,
			"authority", idp.Issuer(),
			"subject", idp.Subject(),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("mock idp failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock idp shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// tokenHandler mints access tokens on demand. ttl accepts Go durations and
// may be negative to produce an expired token.
func tokenHandler(idp *idptest.IdP, audience string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		sub := q.Get("sub")
		if sub == "" {
			sub = idp.Subject()
		}
		aud := q.Get("aud")
		if aud == "" {
			aud = audience
		}
		ttl := time.Hour
		if v := q.Get("ttl"); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				http.Error(w, "invalid ttl", http.StatusBadRequest)
				return
			}
			ttl = d
		}

		token, err := idp.AccessToken(sub, aud, ttl, nil)
		if err != nil {
			slog.Error("minting token failed", "error", err)
			http.Error(w, "token error", http.StatusInternalServerError)
			return
		}
		transport.WriteJSON(w, http.StatusOK, tokenResponse{
			AccessToken: token,
			TokenType:   "Bearer",
			ExpiresIn:   int(ttl.Seconds()),
		})
	})
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
