// Package debug provides category-based debug logging for tenantgate.
//
// Two orthogonal controls:
//   - Categories (WHAT to debug): controlled via TENANTGATE_DEBUG env or config
//   - Levels (HOW MUCH detail): controlled via TENANTGATE_LOG_LEVEL env or config
//
// Usage:
//
//	debug.Log("auth", "scheme rejected credentials", "scheme", name, "reason", reason)
//	if debug.Enabled("cors") { /* expensive formatting */ }
//
// Categories: auth, cors, docs, config, transport, all.
// Levels: ERROR, WARN, INFO, DEBUG, TRACE.
//
// Credentials never pass through this package: callers log reasons, not tokens.
package debug

import (
	"context"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
)

// LevelTrace is below slog.LevelDebug for maximum verbosity.
const LevelTrace = slog.LevelDebug - 4

// categories holds the set of enabled debug categories.
// Access is read-only after Init(), so no synchronization needed.
var categories map[string]bool

func init() {
	// Initialize from environment for immediate availability.
	// Can be re-initialized later via Init() with config values.
	categories = parseCategories(os.Getenv("TENANTGATE_DEBUG"))
}

// Init configures the debug system and installs the default slog logger.
// Called once at startup with values from config; environment overrides config.
// format is "text" (default) or "json".
func Init(configCategories, configLevel, format string) {
	cats := os.Getenv("TENANTGATE_DEBUG")
	if cats == "" {
		cats = configCategories
	}
	categories = parseCategories(cats)

	level := os.Getenv("TENANTGATE_LOG_LEVEL")
	if level == "" {
		level = configLevel
	}

	slog.SetDefault(slog.New(NewHandler(os.Stderr, format, ParseLevel(level))))
}

// NewHandler builds the slog handler used by Init.
func NewHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// Enabled reports whether debug output is active for the given category.
func Enabled(category string) bool {
	return categories["all"] || categories[category]
}

// Log emits a debug message for the given category.
// If the category is not enabled, this is a no-op.
func Log(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Debug(msg, append([]any{"debug", category}, args...)...)
}

// Trace emits a trace-level message for the given category.
// Only visible when TENANTGATE_LOG_LEVEL=TRACE.
func Trace(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Log(context.Background(), LevelTrace, msg, append([]any{"debug", category}, args...)...)
}

// ParseLevel converts a level string to a slog.Level.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "INFO", "":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Categories returns the sorted list of enabled categories.
func Categories() []string {
	result := make([]string, 0, len(categories))
	for k := range categories {
		result = append(result, k)
	}
	slices.Sort(result)
	return result
}

func parseCategories(s string) map[string]bool {
	m := make(map[string]bool)
	if s == "" {
		return m
	}
	for _, cat := range strings.Split(s, ",") {
		cat = strings.TrimSpace(strings.ToLower(cat))
		if cat != "" {
			m[cat] = true
		}
	}
	return m
}
