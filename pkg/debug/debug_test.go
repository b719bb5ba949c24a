package debug

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseCategories(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  map[string]bool
	}{
		{"empty", "", map[string]bool{}},
		{"single", "auth", map[string]bool{"auth": true}},
		{"multiple", "auth,cors", map[string]bool{"auth": true, "cors": true}},
		{"all", "all", map[string]bool{"all": true}},
		{"with spaces", " auth , cors ", map[string]bool{"auth": true, "cors": true}},
		{"uppercase normalized", "AUTH,Cors", map[string]bool{"auth": true, "cors": true}},
		{"empty segments", "auth,,cors", map[string]bool{"auth": true, "cors": true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseCategories(tt.input)
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("got[%q] = %v, want %v", k, got[k], v)
				}
			}
			if len(got) != len(tt.want) {
				t.Errorf("len(got) = %d, want %d", len(got), len(tt.want))
			}
		})
	}
}

func TestEnabled(t *testing.T) {
	// Save and restore.
	orig := categories
	defer func() { categories = orig }()

	categories = parseCategories("auth,docs")

	if !Enabled("auth") {
		t.Error("auth should be enabled")
	}
	if !Enabled("docs") {
		t.Error("docs should be enabled")
	}
	if Enabled("cors") {
		t.Error("cors should not be enabled")
	}
}

func TestEnabled_All(t *testing.T) {
	orig := categories
	defer func() { categories = orig }()

	categories = parseCategories("all")

	for _, c := range []string{"auth", "cors", "anything"} {
		if !Enabled(c) {
			t.Errorf("%s should be enabled via 'all'", c)
		}
	}
}

func TestCategories_Sorted(t *testing.T) {
	orig := categories
	defer func() { categories = orig }()

	categories = parseCategories("transport,auth,cors")
	got := strings.Join(Categories(), ",")
	if got != "auth,cors,transport" {
		t.Errorf("Categories() = %q", got)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"TRACE", LevelTrace},
		{"trace", LevelTrace},
		{"DEBUG", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"unknown", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewHandler_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, "json", slog.LevelInfo))
	logger.Info("hello", "k", "v")
	if !strings.HasPrefix(buf.String(), "{") {
		t.Errorf("json handler output = %q", buf.String())
	}

	buf.Reset()
	logger = slog.New(NewHandler(&buf, "text", slog.LevelWarn))
	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info record passed a warn-level handler: %q", buf.String())
	}
}

func TestLog_DisabledCategory(t *testing.T) {
	orig := categories
	defer func() { categories = orig }()

	categories = parseCategories("")

	// Should not panic or produce output.
	Log("auth", "test message", "key", "value")
	Trace("auth", "trace message", "key", "value")
}
