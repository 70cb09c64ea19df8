package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrMissingKey marks a required per-tenant configuration value that is absent.
var ErrMissingKey = errors.New("missing configuration")

// ErrUnknownTenant marks a lookup for a tenant that has no configuration block.
var ErrUnknownTenant = errors.New("unknown tenant")

// Config is the root runtime configuration loaded from config.json.
type Config struct {
	Gateway GatewayConfig           `json:"gateway"`
	Engine  EngineConfig            `json:"engine"`
	Mongo   MongoConfig             `json:"mongo,omitempty"`
	Tenants map[string]TenantConfig `json:"tenants"`
	Logging LoggingConfig           `json:"logging,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty"`
}

// GatewayConfig configures HTTP webhook bind settings.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// EngineConfig selects and configures the dialog engine backend.
type EngineConfig struct {
	Kind   string             `json:"kind"`
	Remote RemoteEngineConfig `json:"remote"`
	OpenAI OpenAIEngineConfig `json:"openai"`
}

// RemoteEngineConfig configures the remote dialog-engine client.
type RemoteEngineConfig struct {
	BaseURL               string `json:"base_url"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds"`
}

// OpenAIEngineConfig configures the OpenAI-backed dialog engine.
type OpenAIEngineConfig struct {
	BaseURL               string `json:"base_url"`
	Organization          string `json:"organization"`
	Project               string `json:"project"`
	APIKeyEnv             string `json:"api_key_env"`
	Model                 string `json:"model"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds"`
}

// MongoConfig configures the sender-profile store. An empty URI selects the
// in-memory repository.
type MongoConfig struct {
	URI      string `json:"uri,omitempty"`
	Database string `json:"database,omitempty"`
}

// TenantConfig holds one tenant's Facebook credentials and runtime flags.
type TenantConfig struct {
	APIBaseURL       string `json:"api_base_url"`
	AccessToken      string `json:"access_token"`
	VerifyToken      string `json:"verify_token"`
	SuspendAutoReply bool   `json:"suspend_auto_reply,omitempty"`
	Locale           string `json:"locale,omitempty"`
}

// Credentials is the per-tenant send-API identity, resolved fresh for every
// outbound call so token rotation takes effect immediately.
type Credentials struct {
	APIBaseURL  string
	AccessToken string
}

// TenantSource resolves tenant configuration by name. *Config implements it;
// tests and reloading wrappers provide their own.
type TenantSource interface {
	Tenant(name string) (TenantConfig, error)
}

// Tenant returns the configuration block for one tenant.
func (c *Config) Tenant(name string) (TenantConfig, error) {
	tenant, ok := c.Tenants[strings.TrimSpace(name)]
	if !ok {
		return TenantConfig{}, fmt.Errorf("%w: %s", ErrUnknownTenant, name)
	}

	return tenant, nil
}

// Credentials returns the send-API identity for this tenant.
func (t TenantConfig) Credentials() Credentials {
	return Credentials{
		APIBaseURL:  strings.TrimRight(strings.TrimSpace(t.APIBaseURL), "/"),
		AccessToken: strings.TrimSpace(t.AccessToken),
	}
}

// Validate checks the values every tenant must carry before it can serve
// webhook traffic.
func (t TenantConfig) Validate(name string) error {
	if strings.TrimSpace(t.APIBaseURL) == "" {
		return fmt.Errorf("tenant %q: %w: api_base_url", name, ErrMissingKey)
	}
	if strings.TrimSpace(t.AccessToken) == "" {
		return fmt.Errorf("tenant %q: %w: access_token", name, ErrMissingKey)
	}
	if strings.TrimSpace(t.VerifyToken) == "" {
		return fmt.Errorf("tenant %q: %w: verify_token", name, ErrMissingKey)
	}

	return nil
}

// LoadConfig resolves config.json, unmarshals it, and applies environment
// overrides.
func LoadConfig() (*Config, error) {
	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyEnvOverrides(&cfg)

	for name, tenant := range cfg.Tenants {
		if err := tenant.Validate(name); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

// applyEnvOverrides injects per-tenant secrets from the environment on top of
// file config. FBGATE_TENANT_<NAME>_ACCESS_TOKEN and
// FBGATE_TENANT_<NAME>_VERIFY_TOKEN take precedence over file values.
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	for name, tenant := range cfg.Tenants {
		prefix := "FBGATE_TENANT_" + envName(name)
		if token := strings.TrimSpace(os.Getenv(prefix + "_ACCESS_TOKEN")); token != "" {
			tenant.AccessToken = token
		}
		if token := strings.TrimSpace(os.Getenv(prefix + "_VERIFY_TOKEN")); token != "" {
			tenant.VerifyToken = token
		}
		cfg.Tenants[name] = tenant
	}
}

// envName maps a tenant name onto the charset allowed in env variable names.
func envName(name string) string {
	upper := strings.ToUpper(strings.TrimSpace(name))
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, upper)
}

// findConfigPath resolves the active config file location.
//
// Precedence is FBGATE_CONFIG first, then cwd-local fallback paths.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv("FBGATE_CONFIG")); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("FBGATE_CONFIG does not point to a file: %s", value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("config.json not found (checked %s and %s)", candidates[0], candidates[1])
}
