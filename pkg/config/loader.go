package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rhuss/tenantgate/pkg/debug"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, TENANTGATE_CONFIG env, ./config.yaml, /etc/tenantgate/config.yaml)
//  3. TENANTGATE_* environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
		debug.Log("config", "loaded config file", "path", filePath)
	}

	applyEnvOverrides(&cfg)

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. TENANTGATE_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/tenantgate/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}

	if envPath := os.Getenv("TENANTGATE_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{
		"config.yaml",
		"/etc/tenantgate/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
// Unknown keys are rejected so a misspelled tenant key fails at startup.
func loadYAMLFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnvOverrides maps TENANTGATE_* environment variables to config fields.
func applyEnvOverrides(cfg *Config) {
	setString := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	setBool := func(name string, dst *bool) {
		if v := os.Getenv(name); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	if v := os.Getenv("TENANTGATE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	setString("TENANTGATE_INSTANCE", &cfg.Tenant.Instance)
	setString("TENANTGATE_DIRECTORY_ID", &cfg.Tenant.DirectoryID)
	setString("TENANTGATE_DOMAIN", &cfg.Tenant.Domain)
	setString("TENANTGATE_AUDIENCE", &cfg.Tenant.Audience)
	setString("TENANTGATE_CLIENT_ID", &cfg.Tenant.ClientID)
	setString("TENANTGATE_CLIENT_SECRET", &cfg.Tenant.ClientSecret)
	setString("TENANTGATE_REDIRECT_URL", &cfg.Tenant.RedirectURL)
	setString("TENANTGATE_CALLBACK_PATH", &cfg.Tenant.CallbackPath)
	setBool("TENANTGATE_SAVE_TOKEN", &cfg.Tenant.SaveToken)

	setBool("TENANTGATE_ANONYMOUS", &cfg.Auth.Anonymous)
	setString("TENANTGATE_SESSION_SECRET", &cfg.Auth.Cookie.SessionSecret)

	// TENANTGATE_API_KEYS: JSON array of API key configs.
	if v := os.Getenv("TENANTGATE_API_KEYS"); v != "" {
		keys, err := parseAPIKeysJSON(v)
		if err == nil && len(keys) > 0 {
			cfg.Auth.APIKeys.Keys = keys
		}
	}

	// TENANTGATE_CORS_ORIGINS: comma-separated origin list.
	if v := os.Getenv("TENANTGATE_CORS_ORIGINS"); v != "" {
		cfg.CORS.AllowedOrigins = splitList(v)
	}

	setString("TENANTGATE_LOG_FORMAT", &cfg.Logging.Format)
}

// parseAPIKeysJSON parses a JSON array of API key configurations.
func parseAPIKeysJSON(jsonStr string) ([]APIKeyConfig, error) {
	var keys []APIKeyConfig
	if err := json.Unmarshal([]byte(jsonStr), &keys); err != nil {
		return nil, fmt.Errorf("parsing API keys JSON: %w", err)
	}
	return keys, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// For each field ending in _file, if the value field is empty and the file field is set,
// the file is read, whitespace is trimmed, and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	// tenant.client_secret_file -> tenant.client_secret
	if cfg.Tenant.ClientSecretFile != "" && cfg.Tenant.ClientSecret == "" {
		val, err := readSecretFile(cfg.Tenant.ClientSecretFile)
		if err != nil {
			return fmt.Errorf("tenant.client_secret_file: %w", err)
		}
		cfg.Tenant.ClientSecret = val
	}

	// auth.cookie.session_secret_file -> auth.cookie.session_secret
	if cfg.Auth.Cookie.SessionSecretFile != "" && cfg.Auth.Cookie.SessionSecret == "" {
		val, err := readSecretFile(cfg.Auth.Cookie.SessionSecretFile)
		if err != nil {
			return fmt.Errorf("auth.cookie.session_secret_file: %w", err)
		}
		cfg.Auth.Cookie.SessionSecret = val
	}

	// auth.api_keys.keys[*].key_file -> auth.api_keys.keys[*].key
	for i := range cfg.Auth.APIKeys.Keys {
		k := &cfg.Auth.APIKeys.Keys[i]
		if k.KeyFile != "" && k.Key == "" {
			val, err := readSecretFile(k.KeyFile)
			if err != nil {
				return fmt.Errorf("auth.api_keys.keys[%d].key_file: %w", i, err)
			}
			k.Key = val
		}
	}

	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
