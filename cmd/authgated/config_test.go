package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
provider:
  client_id: abc
  client_secret: "123"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if !cfg.Server.DevMode {
		t.Fatalf("expected dev mode by default")
	}
	if cfg.Server.DevListenAddr != "127.0.0.1:8080" {
		t.Fatalf("unexpected dev listen addr: %q", cfg.Server.DevListenAddr)
	}
	if cfg.Provider.Dialect != "auth0" {
		t.Fatalf("unexpected default dialect: %q", cfg.Provider.Dialect)
	}
	if cfg.Upstream.Target != "http://127.0.0.1:3000" {
		t.Fatalf("unexpected default upstream: %q", cfg.Upstream.Target)
	}
}

func TestLoadConfigRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
provider:
  client_id: abc
  not_a_field: true
`)

	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected unknown field to fail strict decoding")
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
provider:
  client_id: abc
  client_secret: "123"
`)

	t.Setenv("AUTHGATE_PROVIDER_CLIENT_ID", "from-env")
	t.Setenv("AUTHGATE_UPSTREAM_TARGET", "http://backend:9000")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Provider.ClientID != "from-env" {
		t.Fatalf("env override lost: %q", cfg.Provider.ClientID)
	}
	if cfg.Upstream.Target != "http://backend:9000" {
		t.Fatalf("env override lost: %q", cfg.Upstream.Target)
	}
}

func TestValidateRejectsBadUpstream(t *testing.T) {
	cfg := defaultConfig()
	cfg.Upstream.Target = "backend:9000"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected invalid upstream target to fail validation")
	}
}

func TestValidateRequiresTLSDomainsInProd(t *testing.T) {
	cfg := defaultConfig()
	cfg.Server.DevMode = false
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected production mode without tls domains to fail")
	}
}

func TestGateOptionsTranslation(t *testing.T) {
	cfg := defaultConfig()
	cfg.Provider.ClientID = "abc"
	cfg.Provider.ClientSecret = "123"
	cfg.Gate.CookieTTL = "1h"
	cfg.Gate.ExemptPaths = []string{"/health"}

	opts := cfg.GateOptions(nil, nil)
	if opts.ClientID != "abc" || opts.ClientSecret != "123" {
		t.Fatalf("credentials not translated")
	}
	if opts.CookieTTL != time.Hour {
		t.Fatalf("cookie ttl not translated: %v", opts.CookieTTL)
	}
	if len(opts.ExemptPaths) != 1 || opts.ExemptPaths[0] != "/health" {
		t.Fatalf("exempt paths not translated: %v", opts.ExemptPaths)
	}
	if !opts.CookieInsecure {
		t.Fatalf("dev mode must allow insecure cookies")
	}
}
