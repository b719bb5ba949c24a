package tenant

import (
	"errors"
	"strings"
	"testing"

	"github.com/rhuss/tenantgate/pkg/api"
	"pgregory.net/rapid"
)

func TestResolve_DerivedURLs(t *testing.T) {
	cfg, err := Resolve("https://login.example.com", "tenant-123", "api://my-api", "client-1", "https://app.example.com/oauth2-redirect.html")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"authority", cfg.Authority(), "https://login.example.com/tenant-123/"},
		{"authorize", cfg.AuthorizeURL(), "https://login.example.com/tenant-123/oauth2/authorize"},
		{"token", cfg.TokenURL(), "https://login.example.com/tenant-123/oauth2/token"},
		{"keys", cfg.KeysURL(), "https://login.example.com/tenant-123/discovery/keys"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
		}
	}

	if cfg.Audience != "api://my-api" || cfg.ClientID != "client-1" {
		t.Errorf("pass-through fields not kept: %+v", cfg)
	}
}

func TestResolve_TrailingSlashes(t *testing.T) {
	roots := []string{
		"https://login.example.com",
		"https://login.example.com/",
		"https://login.example.com///",
		"  https://login.example.com/ ",
	}
	for _, root := range roots {
		cfg, err := Resolve(root, "/tenant-123/", "", "", "")
		if err != nil {
			t.Fatalf("Resolve(%q) error: %v", root, err)
		}
		if got := cfg.Authority(); got != "https://login.example.com/tenant-123/" {
			t.Errorf("Resolve(%q).Authority() = %q", root, got)
		}
	}
}

func TestResolve_MissingFields(t *testing.T) {
	tests := []struct {
		name      string
		root, dir string
		field     string
	}{
		{"empty root", "", "tenant-123", "tenant.instance"},
		{"slash root", "/", "tenant-123", "tenant.instance"},
		{"empty directory", "https://login.example.com", "", "tenant.directory_id"},
		{"slash directory", "https://login.example.com", "//", "tenant.directory_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(tt.root, tt.dir, "", "", "")
			if !errors.Is(err, api.ErrMissingField) {
				t.Fatalf("err = %v, want MissingField", err)
			}
			var ce *api.ConfigError
			if errors.As(err, &ce) && ce.Field != tt.field {
				t.Errorf("Field = %q, want %q", ce.Field, tt.field)
			}
		})
	}
}

func TestResolve_InvalidURLs(t *testing.T) {
	if _, err := Resolve("login.example.com", "t", "", "", ""); !errors.Is(err, api.ErrInvalidValue) {
		t.Errorf("relative root: err = %v, want InvalidValue", err)
	}
	if _, err := Resolve("https://login.example.com", "t", "", "", "/relative"); !errors.Is(err, api.ErrInvalidValue) {
		t.Errorf("relative redirect: err = %v, want InvalidValue", err)
	}
}

func TestConfig_IsZero(t *testing.T) {
	if !(Config{}).IsZero() {
		t.Error("zero Config should report IsZero")
	}
	cfg, _ := Resolve("https://login.example.com", "t", "", "", "")
	if cfg.IsZero() {
		t.Error("resolved Config should not report IsZero")
	}
}

// authorize and token URLs share the authority and differ only in the last path segment.
func TestResolve_SharedAuthorityProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		host := rapid.StringMatching(`[a-z][a-z0-9-]{0,20}\.[a-z]{2,5}`).Draw(rt, "host")
		slashes := rapid.IntRange(0, 3).Draw(rt, "slashes")
		dir := rapid.StringMatching(`[A-Za-z0-9][A-Za-z0-9.-]{0,35}`).Draw(rt, "dir")

		root := "https://" + host + strings.Repeat("/", slashes)
		cfg, err := Resolve(root, dir, "", "", "")
		if err != nil {
			rt.Fatalf("Resolve(%q, %q) error: %v", root, dir, err)
		}

		authority := cfg.Authority()
		if !strings.HasPrefix(cfg.AuthorizeURL(), authority) || !strings.HasPrefix(cfg.TokenURL(), authority) {
			rt.Fatalf("derived URLs do not share authority %q", authority)
		}
		if rest := strings.TrimPrefix(cfg.AuthorizeURL(), authority); rest != "oauth2/authorize" {
			rt.Fatalf("authorize suffix = %q", rest)
		}
		if rest := strings.TrimPrefix(cfg.TokenURL(), authority); rest != "oauth2/token" {
			rt.Fatalf("token suffix = %q", rest)
		}

		// Normalization is idempotent.
		again, err := Resolve(cfg.InstanceRoot()+"/", cfg.DirectoryID(), "", "", "")
		if err != nil || again.Authority() != authority {
			rt.Fatalf("re-resolving changed authority: %q vs %q (%v)", again.Authority(), authority, err)
		}
	})
}
