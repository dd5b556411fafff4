package authserver

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config holds the authorization server configuration. Endpoint paths are
// configuration-supplied rather than fixed.
type Config struct {
	// ServerURL is the public base URL of the server, used for security
	// headers (HSTS is only set for https URLs)
	ServerURL string `env:"AUTH_SERVER_URL" envDefault:"http://localhost:8080"`

	// AuthorizePath is the path of the end-user authorization endpoint
	AuthorizePath string `env:"AUTH_AUTHORIZE_PATH" envDefault:"/oauth/authorize"`

	// TokenPath is the path of the token endpoint
	TokenPath string `env:"AUTH_TOKEN_PATH" envDefault:"/oauth/token"`

	// TrustProxyHeaders enables X-Forwarded-For / X-Real-IP handling.
	// Only enable behind a reverse proxy you control.
	TrustProxyHeaders bool `env:"AUTH_TRUST_PROXY_HEADERS" envDefault:"false"`

	// TrustedProxyCount is the number of proxies in front of the server,
	// used to pick the client entry out of X-Forwarded-For
	TrustedProxyCount int `env:"AUTH_TRUSTED_PROXY_COUNT" envDefault:"0"`

	// RateLimitPerSecond is the per-IP request rate on both endpoints.
	// Zero disables rate limiting.
	RateLimitPerSecond int `env:"AUTH_RATE_LIMIT_RPS" envDefault:"10"`

	// RateLimitBurst is the per-IP burst allowance
	RateLimitBurst int `env:"AUTH_RATE_LIMIT_BURST" envDefault:"20"`

	// AuditEnabled turns on security audit logging
	AuditEnabled bool `env:"AUTH_AUDIT_ENABLED" envDefault:"true"`
}

// DefaultConfig returns a Config with the documented defaults
func DefaultConfig() *Config {
	return &Config{
		ServerURL:          "http://localhost:8080",
		AuthorizePath:      "/oauth/authorize",
		TokenPath:          "/oauth/token",
		RateLimitPerSecond: 10,
		RateLimitBurst:     20,
		AuditEnabled:       true,
	}
}

// ConfigFromEnv builds a Config from AUTH_* environment variables,
// falling back to the documented defaults.
func ConfigFromEnv() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config from environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values that would misroute or
// weaken the server.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server URL must not be empty")
	}
	if !strings.HasPrefix(c.AuthorizePath, "/") {
		return fmt.Errorf("authorize path %q must start with /", c.AuthorizePath)
	}
	if !strings.HasPrefix(c.TokenPath, "/") {
		return fmt.Errorf("token path %q must start with /", c.TokenPath)
	}
	if c.AuthorizePath == c.TokenPath {
		return fmt.Errorf("authorize and token paths must differ")
	}
	if c.RateLimitPerSecond < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("rate limit values must not be negative")
	}
	if c.TrustedProxyCount < 0 {
		return fmt.Errorf("trusted proxy count must not be negative")
	}
	return nil
}
