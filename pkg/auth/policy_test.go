package auth

import (
	"net/http"
	"testing"

	"pgregory.net/rapid"
)

func identityFrom(scheme string, claims map[string][]string) *Identity {
	return NewIdentity("alice", claims).withScheme(scheme)
}

func TestAuthorize(t *testing.T) {
	cookieUser := identityFrom("cookie", nil)
	bearerUser := identityFrom("bearer", map[string][]string{"scp": {"user_impersonation read"}})

	tests := []struct {
		name     string
		id       *Identity
		policy   Policy
		wantCode FailureCode // empty means allowed
	}{
		{"anonymous policy, no identity", nil, AnonymousPolicy(), ""},
		{"anonymous policy, identity", cookieUser, AnonymousPolicy(), ""},
		{"default policy, no identity", nil, DefaultPolicy(), Unauthenticated},
		{"default policy, identity", cookieUser, DefaultPolicy(), ""},
		{"required scheme, no identity", nil, Policy{RequiredSchemes: []string{"bearer"}}, Unauthenticated},
		{"required scheme mismatch", cookieUser, Policy{RequiredSchemes: []string{"bearer"}, RequireAuthenticated: true}, Forbidden},
		{"required scheme match", bearerUser, Policy{RequiredSchemes: []string{"bearer", "cookie"}}, ""},
		{"required scope, no identity", nil, Policy{RequiredScopes: []string{"read"}}, Unauthenticated},
		{"required scope missing", cookieUser, Policy{RequiredScopes: []string{"read"}}, Forbidden},
		{"required scope granted", bearerUser, Policy{RequiredScopes: []string{"read", "user_impersonation"}}, ""},
		{"one of two scopes missing", bearerUser, Policy{RequiredScopes: []string{"read", "write"}}, Forbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Authorize(tt.id, tt.policy)
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("Authorize = %v, want nil", err)
				}
				return
			}
			f, ok := AsFailure(err)
			if !ok {
				t.Fatalf("Authorize = %v, want *Failure", err)
			}
			if f.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", f.Code, tt.wantCode)
			}
		})
	}
}

func TestFailureHTTPMapping(t *testing.T) {
	if got := (&Failure{Code: Unauthenticated}).HTTPStatus(); got != http.StatusUnauthorized {
		t.Errorf("Unauthenticated status = %d", got)
	}
	if got := (&Failure{Code: Forbidden}).HTTPStatus(); got != http.StatusForbidden {
		t.Errorf("Forbidden status = %d", got)
	}
	body := (&Failure{Code: Forbidden, Reason: "scheme cookie not accepted"}).APIError()
	if body.Code != "Forbidden" || body.Message != "access denied" {
		t.Errorf("APIError = %+v", body)
	}
}

// Authorize is a pure function: repeated calls on the same inputs agree,
// and a nil identity never yields Forbidden.
func TestAuthorize_PureAndTotal(t *testing.T) {
	schemes := []string{"bearer", "cookie", "apikey"}
	scopes := []string{"read", "write", "admin"}

	rapid.Check(t, func(t *rapid.T) {
		p := Policy{
			RequireAuthenticated: rapid.Bool().Draw(t, "authn"),
			RequiredSchemes:      rapid.SliceOfDistinct(rapid.SampledFrom(schemes), rapid.ID[string]).Draw(t, "schemes"),
			RequiredScopes:       rapid.SliceOfDistinct(rapid.SampledFrom(scopes), rapid.ID[string]).Draw(t, "scopes"),
		}

		var id *Identity
		if rapid.Bool().Draw(t, "hasIdentity") {
			granted := rapid.SliceOfDistinct(rapid.SampledFrom(scopes), rapid.ID[string]).Draw(t, "granted")
			id = identityFrom(rapid.SampledFrom(schemes).Draw(t, "scheme"), map[string][]string{"scp": granted})
		}

		first := Authorize(id, p)
		second := Authorize(id, p)
		if (first == nil) != (second == nil) {
			t.Fatalf("Authorize not deterministic: %v vs %v", first, second)
		}
		if first != nil {
			f1, _ := AsFailure(first)
			f2, _ := AsFailure(second)
			if f1.Code != f2.Code {
				t.Fatalf("codes differ: %s vs %s", f1.Code, f2.Code)
			}
			if id == nil && f1.Code != Unauthenticated {
				t.Fatalf("nil identity got %s, want Unauthenticated", f1.Code)
			}
		}
	})
}
