package auth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func yes(subject string) Verifier {
	return VerifierFunc(func(context.Context, Credentials) AuthResult {
		return AuthResult{Decision: Yes, Identity: NewIdentity(subject, nil)}
	})
}

func no(err error) Verifier {
	return VerifierFunc(func(context.Context, Credentials) AuthResult {
		return AuthResult{Decision: No, Err: err}
	})
}

// bearerOnly says yes to a bearer token and abstains otherwise.
func bearerOnly(subject string) Verifier {
	return VerifierFunc(func(_ context.Context, c Credentials) AuthResult {
		if _, ok := c.BearerToken(); !ok {
			return AuthResult{Decision: Abstain}
		}
		return AuthResult{Decision: Yes, Identity: NewIdentity(subject, nil)}
	})
}

// cookieOnly says yes to a "session" cookie and abstains otherwise.
func cookieOnly(subject string) Verifier {
	return VerifierFunc(func(_ context.Context, c Credentials) AuthResult {
		if _, ok := c.Cookie("session"); !ok {
			return AuthResult{Decision: Abstain}
		}
		return AuthResult{Decision: Yes, Identity: NewIdentity(subject, nil)}
	})
}

func newResolver(t *testing.T, schemes ...Scheme) *Resolver {
	t.Helper()
	reg := NewRegistry()
	for _, s := range schemes {
		if err := reg.Register(s); err != nil {
			t.Fatalf("register %s: %v", s.Name, err)
		}
	}
	return NewResolver(reg, quietLogger())
}

func bothCredentials() Credentials {
	return Credentials{
		Headers: map[string]string{"Authorization": "Bearer tok"},
		Cookies: map[string]string{"session": "sess"},
	}
}

func TestResolver_HigherPriorityWins(t *testing.T) {
	r := newResolver(t,
		Scheme{Name: "cookie", Kind: KindCookie, Priority: 5, Verifier: cookieOnly("from-cookie")},
		Scheme{Name: "bearer", Kind: KindBearer, Priority: 10, Verifier: bearerOnly("from-bearer")},
	)

	id, err := r.Authenticate(context.Background(), bothCredentials())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.SchemeName != "bearer" || id.Subject != "from-bearer" {
		t.Errorf("identity = %v, want bearer/from-bearer", id)
	}
}

func TestResolver_FallsThroughAbstain(t *testing.T) {
	r := newResolver(t,
		Scheme{Name: "bearer", Priority: 10, Verifier: bearerOnly("from-bearer")},
		Scheme{Name: "cookie", Priority: 5, Verifier: cookieOnly("from-cookie")},
	)

	creds := Credentials{Cookies: map[string]string{"session": "sess"}}
	id, err := r.Authenticate(context.Background(), creds)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.SchemeName != "cookie" {
		t.Errorf("scheme = %q, want cookie", id.SchemeName)
	}
}

func TestResolver_InvalidBearerContinuesToCookie(t *testing.T) {
	r := newResolver(t,
		Scheme{Name: "bearer", Priority: 10, Verifier: no(fmt.Errorf("%w: bad signature", ErrInvalidCredentials))},
		Scheme{Name: "cookie", Priority: 5, Verifier: cookieOnly("from-cookie")},
	)

	id, err := r.Authenticate(context.Background(), bothCredentials())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.SchemeName != "cookie" {
		t.Errorf("scheme = %q, want cookie", id.SchemeName)
	}
}

func TestResolver_MostSpecificFailure(t *testing.T) {
	expired := fmt.Errorf("bearer: %w", ErrTokenExpired)
	unavailable := fmt.Errorf("%w: keys endpoint down", ErrSchemeUnavailable)
	unknownKey := fmt.Errorf("%w: unknown api key", ErrInvalidCredentials)

	tests := []struct {
		name       string
		schemes    []Scheme
		wantReason string
		wantErr    error
	}{
		{
			name: "all abstain",
			schemes: []Scheme{
				{Name: "a", Priority: 2, Verifier: abstain()},
				{Name: "b", Priority: 1, Verifier: abstain()},
			},
			wantReason: "no credentials",
			wantErr:    ErrNoCredentials,
		},
		{
			name: "rejection beats abstain",
			schemes: []Scheme{
				{Name: "a", Priority: 2, Verifier: abstain()},
				{Name: "b", Priority: 1, Verifier: no(expired)},
			},
			wantReason: "token expired",
			wantErr:    ErrTokenExpired,
		},
		{
			name: "rejection beats unavailable",
			schemes: []Scheme{
				{Name: "a", Priority: 2, Verifier: no(unavailable)},
				{Name: "b", Priority: 1, Verifier: no(expired)},
			},
			wantReason: "token expired",
			wantErr:    ErrTokenExpired,
		},
		{
			name: "unavailable beats abstain",
			schemes: []Scheme{
				{Name: "a", Priority: 2, Verifier: abstain()},
				{Name: "b", Priority: 1, Verifier: no(unavailable)},
			},
			wantReason: "scheme unavailable",
			wantErr:    ErrSchemeUnavailable,
		},
		{
			name: "equal specificity keeps higher priority",
			schemes: []Scheme{
				{Name: "apikey", Priority: 5, Verifier: no(unknownKey)},
				{Name: "bearer", Priority: 10, Verifier: no(expired)},
			},
			wantReason: "token expired",
			wantErr:    ErrTokenExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newResolver(t, tt.schemes...)

			id, err := r.Authenticate(context.Background(), bothCredentials())
			if id != nil {
				t.Fatalf("identity = %v, want nil", id)
			}
			f, ok := AsFailure(err)
			if !ok {
				t.Fatalf("err = %v, want *Failure", err)
			}
			if f.Code != Unauthenticated {
				t.Errorf("code = %q, want Unauthenticated", f.Code)
			}
			if f.Reason != tt.wantReason {
				t.Errorf("reason = %q, want %q", f.Reason, tt.wantReason)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("errors.Is(err, %v) = false", tt.wantErr)
			}
		})
	}
}

func TestResolver_ZeroSchemesFailsClosed(t *testing.T) {
	r := newResolver(t)

	_, err := r.Authenticate(context.Background(), bothCredentials())
	f, ok := AsFailure(err)
	if !ok || f.Code != Unauthenticated {
		t.Fatalf("err = %v, want Unauthenticated", err)
	}
	if f.Reason != "no authentication schemes registered" {
		t.Errorf("reason = %q", f.Reason)
	}
}

func TestResolver_PanicBecomesUnavailable(t *testing.T) {
	var buf bytes.Buffer
	reg := NewRegistry()
	reg.MustRegister(Scheme{Name: "broken", Priority: 10, Verifier: VerifierFunc(func(context.Context, Credentials) AuthResult {
		panic("nil map")
	})})
	r := NewResolver(reg, slog.New(slog.NewTextHandler(&buf, nil)))

	_, err := r.Authenticate(context.Background(), bothCredentials())
	f, ok := AsFailure(err)
	if !ok {
		t.Fatalf("err = %v, want *Failure", err)
	}
	if f.Reason != "scheme unavailable" {
		t.Errorf("reason = %q, want scheme unavailable", f.Reason)
	}
	if !bytes.Contains(buf.Bytes(), []byte("scheme verifier panicked")) {
		t.Errorf("panic not logged: %s", buf.String())
	}
}

func TestResolver_PanicDoesNotStopLaterSchemes(t *testing.T) {
	r := newResolver(t,
		Scheme{Name: "broken", Priority: 10, Verifier: VerifierFunc(func(context.Context, Credentials) AuthResult {
			panic("boom")
		})},
		Scheme{Name: "cookie", Priority: 5, Verifier: cookieOnly("carol")},
	)

	id, err := r.Authenticate(context.Background(), bothCredentials())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.Subject != "carol" {
		t.Errorf("subject = %q, want carol", id.Subject)
	}
}

func TestResolver_CancelledContextAborts(t *testing.T) {
	var calls int
	counting := VerifierFunc(func(context.Context, Credentials) AuthResult {
		calls++
		return AuthResult{Decision: Abstain}
	})
	r := newResolver(t,
		Scheme{Name: "a", Priority: 2, Verifier: counting},
		Scheme{Name: "b", Priority: 1, Verifier: counting},
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Authenticate(ctx, bothCredentials())
	f, ok := AsFailure(err)
	if !ok || f.Reason != "request cancelled" {
		t.Fatalf("err = %v, want request cancelled", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Error("failure does not wrap context.Canceled")
	}
	if calls != 0 {
		t.Errorf("verifier calls = %d, want 0", calls)
	}
}

func TestResolver_CancelBetweenSchemes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var secondCalled bool
	r := newResolver(t,
		Scheme{Name: "a", Priority: 2, Verifier: VerifierFunc(func(context.Context, Credentials) AuthResult {
			cancel()
			return AuthResult{Decision: Abstain}
		})},
		Scheme{Name: "b", Priority: 1, Verifier: VerifierFunc(func(context.Context, Credentials) AuthResult {
			secondCalled = true
			return AuthResult{Decision: Abstain}
		})},
	)

	_, err := r.Authenticate(ctx, bothCredentials())
	if f, ok := AsFailure(err); !ok || f.Reason != "request cancelled" {
		t.Fatalf("err = %v, want request cancelled", err)
	}
	if secondCalled {
		t.Error("scheme after cancellation was tried")
	}
}

func TestResolver_YesWithoutSubjectIsRejected(t *testing.T) {
	r := newResolver(t,
		Scheme{Name: "bad", Priority: 2, Verifier: yes("")},
		Scheme{Name: "good", Priority: 1, Verifier: yes("dave")},
	)

	id, err := r.Authenticate(context.Background(), Credentials{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.SchemeName != "good" {
		t.Errorf("scheme = %q, want good", id.SchemeName)
	}
}

func TestResolver_StampsSchemeName(t *testing.T) {
	src := NewIdentity("erin", map[string][]string{"role": {"admin"}})
	r := newResolver(t, Scheme{Name: "custom", Verifier: VerifierFunc(func(context.Context, Credentials) AuthResult {
		return AuthResult{Decision: Yes, Identity: src}
	})})

	id, err := r.Authenticate(context.Background(), Credentials{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.SchemeName != "custom" {
		t.Errorf("SchemeName = %q, want custom", id.SchemeName)
	}
	if src.SchemeName != "" {
		t.Error("verifier's identity was mutated")
	}
	if diff := cmp.Diff([]string{"admin"}, id.Claim("role")); diff != "" {
		t.Errorf("claims mismatch (-want +got):\n%s", diff)
	}
}

func TestResolver_SealsRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(Scheme{Name: "b", Priority: 1, Verifier: abstain()})
	reg.MustRegister(Scheme{Name: "a", Priority: 2, Verifier: abstain()})
	r := NewResolver(reg, quietLogger())

	if !reg.Sealed() {
		t.Error("registry not sealed by NewResolver")
	}
	if diff := cmp.Diff([]string{"a", "b"}, r.SchemeNames()); diff != "" {
		t.Errorf("scheme names mismatch (-want +got):\n%s", diff)
	}
}
