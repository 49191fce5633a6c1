package main

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"authgate/gate"
)

// Config captures the daemon configuration loaded from YAML and
// environment variables.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Provider ProviderConfig `yaml:"provider"`
	Gate     GateConfig     `yaml:"gate"`
	Upstream UpstreamConfig `yaml:"upstream"`
}

// ServerConfig controls listeners and TLS.
type ServerConfig struct {
	DevListenAddr   string    `yaml:"dev_listen_addr"`
	HTTPListenAddr  string    `yaml:"http_listen_addr"`
	HTTPSListenAddr string    `yaml:"https_listen_addr"`
	DevMode         bool      `yaml:"dev_mode"`
	SecretsPath     string    `yaml:"secrets_path"`
	TLS             TLSConfig `yaml:"tls"`
}

// TLSConfig defines autocert behaviour.
type TLSConfig struct {
	Domains []string `yaml:"domains"`
	Email   string   `yaml:"email"`
}

// ProviderConfig describes the upstream identity provider.
type ProviderConfig struct {
	Issuer       string `yaml:"issuer"`
	AuthorizeURL string `yaml:"authorize_url"`
	TokenURL     string `yaml:"token_url"`
	JWKSURL      string `yaml:"jwks_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURI  string `yaml:"redirect_uri"`
	Dialect      string `yaml:"dialect"`
	Scope        string `yaml:"scope"`
}

// GateConfig tunes paths, cookies, and exemptions.
type GateConfig struct {
	LoginPath       string   `yaml:"login_path"`
	CallbackPath    string   `yaml:"callback_path"`
	LogoutPath      string   `yaml:"logout_path"`
	SuccessRedirect string   `yaml:"success_redirect"`
	LogoutRedirect  string   `yaml:"logout_redirect"`
	ExemptPaths     []string `yaml:"exempt_paths"`
	CookieName      string   `yaml:"cookie_name"`
	CookieDomain    string   `yaml:"cookie_domain"`
	CookieTTL       string   `yaml:"cookie_ttl"`
	TokenField      string   `yaml:"token_field"`
	CredentialsKey  string   `yaml:"credentials_key"`
}

// UpstreamConfig maps the protected application backend.
type UpstreamConfig struct {
	Target       string `yaml:"target"`
	PreserveHost bool   `yaml:"preserve_host"`
	Timeout      string `yaml:"timeout"`
}

// LoadConfig reads the YAML config file and merges environment overrides.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}

		// Strict unmarshaling to detect unknown fields.
		decoder := yaml.NewDecoder(bytes.NewReader(b))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil {
			slog.Error("failed to parse configuration", "error", err, "file", path)
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		slog.Error("configuration validation failed", "error", err)
		return Config{}, err
	}

	return cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			DevListenAddr:   "127.0.0.1:8080",
			HTTPListenAddr:  ":80",
			HTTPSListenAddr: ":443",
			DevMode:         true,
			SecretsPath:     ".secrets",
		},
		Provider: ProviderConfig{
			Dialect: string(gate.DialectAuth0),
			Scope:   "openid profile email",
		},
		Upstream: UpstreamConfig{
			Target:  "http://127.0.0.1:3000",
			Timeout: "30s",
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	overrides := map[string]func(string){
		"AUTHGATE_DEV_LISTEN_ADDR":        func(v string) { cfg.Server.DevListenAddr = v },
		"AUTHGATE_HTTP_LISTEN_ADDR":       func(v string) { cfg.Server.HTTPListenAddr = v },
		"AUTHGATE_HTTPS_LISTEN_ADDR":      func(v string) { cfg.Server.HTTPSListenAddr = v },
		"AUTHGATE_DEV_MODE":               func(v string) { cfg.Server.DevMode = parseBool(v, cfg.Server.DevMode) },
		"AUTHGATE_TLS_DOMAINS":            func(v string) { cfg.Server.TLS.Domains = splitAndTrim(v) },
		"AUTHGATE_PROVIDER_CLIENT_ID":     func(v string) { cfg.Provider.ClientID = v },
		"AUTHGATE_PROVIDER_CLIENT_SECRET": func(v string) { cfg.Provider.ClientSecret = v },
		"AUTHGATE_PROVIDER_ISSUER":        func(v string) { cfg.Provider.Issuer = v },
		"AUTHGATE_UPSTREAM_TARGET":        func(v string) { cfg.Upstream.Target = v },
	}

	for key, fn := range overrides {
		if val, ok := os.LookupEnv(key); ok {
			fn(val)
		}
	}
}

func parseBool(val string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate performs sanity checks the gate itself cannot: listener and
// upstream wiring. Provider/gate fields are validated by gate.New, which
// reports every violation at once.
func (c Config) Validate() error {
	if c.Upstream.Target == "" {
		slog.Error("missing required configuration", "field", "upstream.target")
		return errors.New("upstream.target is required")
	}
	if !strings.HasPrefix(c.Upstream.Target, "http://") && !strings.HasPrefix(c.Upstream.Target, "https://") {
		slog.Error("invalid configuration value", "field", "upstream.target", "value", c.Upstream.Target)
		return fmt.Errorf("upstream.target must start with http:// or https://, got: %s", c.Upstream.Target)
	}
	if c.Upstream.Timeout != "" {
		if _, err := time.ParseDuration(c.Upstream.Timeout); err != nil {
			slog.Error("invalid upstream timeout", "timeout", c.Upstream.Timeout, "error", err)
			return fmt.Errorf("upstream.timeout: %w", err)
		}
	}
	if c.Gate.CookieTTL != "" {
		if _, err := time.ParseDuration(c.Gate.CookieTTL); err != nil {
			slog.Error("invalid cookie ttl", "cookie_ttl", c.Gate.CookieTTL, "error", err)
			return fmt.Errorf("gate.cookie_ttl: %w", err)
		}
	}
	if !c.Server.DevMode && len(c.Server.TLS.Domains) == 0 {
		slog.Error("missing required configuration for production mode", "field", "server.tls.domains")
		return errors.New("server.tls.domains must be provided in production")
	}
	return nil
}

// GateOptions translates the daemon config into gate options.
func (c Config) GateOptions(logger *slog.Logger, client *http.Client) gate.Options {
	cookieTTL, _ := time.ParseDuration(c.Gate.CookieTTL)

	return gate.Options{
		IssuerURL:       c.Provider.Issuer,
		AuthorizeURL:    c.Provider.AuthorizeURL,
		TokenURL:        c.Provider.TokenURL,
		JWKSURL:         c.Provider.JWKSURL,
		ClientID:        c.Provider.ClientID,
		ClientSecret:    c.Provider.ClientSecret,
		RedirectURI:     c.Provider.RedirectURI,
		Dialect:         gate.Dialect(c.Provider.Dialect),
		Scope:           c.Provider.Scope,
		LoginPath:       c.Gate.LoginPath,
		CallbackPath:    c.Gate.CallbackPath,
		LogoutPath:      c.Gate.LogoutPath,
		SuccessRedirect: c.Gate.SuccessRedirect,
		LogoutRedirect:  c.Gate.LogoutRedirect,
		ExemptPaths:     c.Gate.ExemptPaths,
		CookieName:      c.Gate.CookieName,
		CookieDomain:    c.Gate.CookieDomain,
		CookieTTL:       cookieTTL,
		CookieInsecure:  c.Server.DevMode,
		TokenField:      c.Gate.TokenField,
		CredentialsKey:  c.Gate.CredentialsKey,
		HTTPClient:      client,
		Logger:          logger,
	}
}
