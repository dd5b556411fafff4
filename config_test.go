package authserver

import "testing"

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() error = %v", err)
	}
	if cfg.AuthorizePath != "/oauth/authorize" {
		t.Errorf("AuthorizePath = %q", cfg.AuthorizePath)
	}
	if cfg.TokenPath != "/oauth/token" {
		t.Errorf("TokenPath = %q", cfg.TokenPath)
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("AUTH_SERVER_URL", "https://auth.example.com")
	t.Setenv("AUTH_AUTHORIZE_PATH", "/authorize")
	t.Setenv("AUTH_TOKEN_PATH", "/token")
	t.Setenv("AUTH_RATE_LIMIT_RPS", "5")
	t.Setenv("AUTH_TRUST_PROXY_HEADERS", "true")

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv() error = %v", err)
	}

	if cfg.ServerURL != "https://auth.example.com" {
		t.Errorf("ServerURL = %q", cfg.ServerURL)
	}
	if cfg.AuthorizePath != "/authorize" || cfg.TokenPath != "/token" {
		t.Errorf("paths = %q, %q", cfg.AuthorizePath, cfg.TokenPath)
	}
	if cfg.RateLimitPerSecond != 5 {
		t.Errorf("RateLimitPerSecond = %d, want 5", cfg.RateLimitPerSecond)
	}
	if !cfg.TrustProxyHeaders {
		t.Error("TrustProxyHeaders = false, want true")
	}
}

func TestConfigFromEnv_Defaults(t *testing.T) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv() error = %v", err)
	}
	if cfg.AuthorizePath != "/oauth/authorize" {
		t.Errorf("AuthorizePath = %q", cfg.AuthorizePath)
	}
	if !cfg.AuditEnabled {
		t.Error("AuditEnabled = false, want true by default")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults valid", func(*Config) {}, false},
		{"empty server URL", func(c *Config) { c.ServerURL = "" }, true},
		{"authorize path without slash", func(c *Config) { c.AuthorizePath = "authorize" }, true},
		{"token path without slash", func(c *Config) { c.TokenPath = "token" }, true},
		{"identical paths", func(c *Config) { c.TokenPath = c.AuthorizePath }, true},
		{"negative rate", func(c *Config) { c.RateLimitPerSecond = -1 }, true},
		{"negative proxy count", func(c *Config) { c.TrustedProxyCount = -1 }, true},
		{"zero rate disables limiting", func(c *Config) { c.RateLimitPerSecond = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
