// Package gate implements a cookie-based login gate for server-rendered
// web applications: it drives the OAuth2/OIDC authorization-code flow
// against an external identity provider and verifies the resulting token
// on every request.
package gate

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"authgate/jwks"
	"authgate/token"
)

// Dialect selects the shape of the code-exchange request.
type Dialect string

const (
	// DialectAuth0 posts a JSON body to the token endpoint.
	DialectAuth0 Dialect = "auth0"
	// DialectForm posts a URL-encoded form to the token endpoint.
	DialectForm Dialect = "form"
)

// Default paths and cookie attributes.
const (
	DefaultLoginPath       = "/login"
	DefaultCallbackPath    = "/callback"
	DefaultLogoutPath      = "/logout"
	DefaultSuccessRedirect = "/"
	DefaultCookieName      = "token"
	DefaultCredentialsKey  = "credentials"
	DefaultTokenField      = "id_token"
	DefaultScope           = "openid"
	DefaultCookieTTL       = 24 * time.Hour
)

// Verifier validates a raw token and returns its decoded claims.
type Verifier interface {
	Verify(ctx context.Context, raw string) (*token.Claims, error)
}

// PostAuthFunc runs after a successful callback verification. Errors are
// logged and never block the login.
type PostAuthFunc func(ctx context.Context, resp TokenResponse, r *http.Request) error

// TransformFunc maps verified claims to the value attached to the request
// context.
type TransformFunc func(claims *token.Claims) any

// Options is the caller-supplied configuration for a Gate.
type Options struct {
	// IssuerURL, when set, resolves AuthorizeURL, TokenURL, and JWKSURL
	// from the issuer's OIDC discovery document.
	IssuerURL    string
	AuthorizeURL string
	TokenURL     string
	JWKSURL      string

	ClientID     string
	ClientSecret string
	RedirectURI  string

	Dialect Dialect
	Scope   string
	// AuthorizeParams are extra query parameters on the authorization URL.
	AuthorizeParams map[string]string
	// TokenParams are extra fields in the code-exchange request body.
	TokenParams map[string]string
	// ExpectedIssuer, when set, must match the verified token's iss claim.
	ExpectedIssuer string

	LoginPath       string
	CallbackPath    string
	LogoutPath      string
	SuccessRedirect string
	LogoutRedirect  string
	// ExemptPaths are reachable without a valid session. Entries are exact
	// paths or patterns with * matching a single segment. Defaults to the
	// login and callback paths.
	ExemptPaths []string

	// CredentialsKey names the request-context attribute holding verified
	// claims.
	CredentialsKey string
	// TokenField names the exchange-response field holding the token.
	TokenField string

	CookieName     string
	CookieDomain   string
	CookiePath     string
	CookieSameSite http.SameSite
	CookieTTL      time.Duration
	CookieInsecure bool
	CookieHTTPOnly *bool

	KeyCacheTTL time.Duration
	KeyCacheMax int

	// Exchanger overrides the code-exchange stage.
	Exchanger Exchanger
	// Verifier overrides the token-verification stage.
	Verifier Verifier
	// PostAuth runs after successful callback verification.
	PostAuth PostAuthFunc
	// TransformClaims maps verified claims before context attachment.
	TransformClaims TransformFunc

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// policy is the immutable runtime configuration resolved from Options.
type policy struct {
	authorizeURL string
	tokenURL     string
	jwksURL      string

	clientID     string
	clientSecret string
	redirectURI  string

	dialect         Dialect
	scope           string
	authorizeParams map[string]string
	tokenParams     map[string]string

	loginPath       string
	callbackPath    string
	logoutPath      string
	successRedirect string
	logoutRedirect  string
	exemptRules     []pathRule

	credentialsKey string
	tokenField     string

	cookieName     string
	cookieDomain   string
	cookiePath     string
	cookieSameSite http.SameSite
	cookieTTL      time.Duration
	cookieSecure   bool
	cookieHTTPOnly bool
}

// Gate mediates between the browser, the identity provider, and the
// protected application routes.
type Gate struct {
	policy    policy
	oauth     *oauth2.Config
	exchanger Exchanger
	verifier  Verifier
	postAuth  PostAuthFunc
	transform TransformFunc
	logger    *slog.Logger
}

// New resolves opts into an immutable policy and constructs the gate.
// Missing or malformed required fields produce a *ConfigError naming every
// violation. The context is only used when IssuerURL discovery is
// requested.
func New(ctx context.Context, opts Options) (*Gate, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if opts.IssuerURL != "" {
		ep, err := discoverEndpoints(ctx, opts.IssuerURL, opts.HTTPClient)
		if err != nil {
			return nil, err
		}
		if opts.AuthorizeURL == "" {
			opts.AuthorizeURL = ep.authorizeURL
		}
		if opts.TokenURL == "" {
			opts.TokenURL = ep.tokenURL
		}
		if opts.JWKSURL == "" {
			opts.JWKSURL = ep.jwksURL
		}
		if opts.ExpectedIssuer == "" {
			opts.ExpectedIssuer = opts.IssuerURL
		}
	}

	if err := validate(opts); err != nil {
		return nil, err
	}

	p := resolvePolicy(opts)

	g := &Gate{
		policy: p,
		oauth: &oauth2.Config{
			ClientID:     p.clientID,
			ClientSecret: p.clientSecret,
			RedirectURL:  p.redirectURI,
			Endpoint: oauth2.Endpoint{
				AuthURL:  p.authorizeURL,
				TokenURL: p.tokenURL,
			},
			Scopes: strings.Fields(p.scope),
		},
		postAuth:  opts.PostAuth,
		transform: opts.TransformClaims,
		logger:    logger,
	}

	g.exchanger = opts.Exchanger
	if g.exchanger == nil {
		g.exchanger = newCodeExchanger(p, opts.HTTPClient)
	}

	g.verifier = opts.Verifier
	if g.verifier == nil {
		resolver := jwks.NewResolver(jwks.Config{
			URL:        opts.JWKSURL,
			TTL:        opts.KeyCacheTTL,
			MaxKeys:    opts.KeyCacheMax,
			HTTPClient: opts.HTTPClient,
			Logger:     logger,
		})
		g.verifier = token.NewVerifier(resolver, opts.ExpectedIssuer)
	}

	return g, nil
}

func resolvePolicy(opts Options) policy {
	p := policy{
		authorizeURL:    opts.AuthorizeURL,
		tokenURL:        opts.TokenURL,
		jwksURL:         opts.JWKSURL,
		clientID:        opts.ClientID,
		clientSecret:    opts.ClientSecret,
		redirectURI:     opts.RedirectURI,
		dialect:         opts.Dialect,
		scope:           opts.Scope,
		authorizeParams: opts.AuthorizeParams,
		tokenParams:     opts.TokenParams,
		loginPath:       opts.LoginPath,
		callbackPath:    opts.CallbackPath,
		logoutPath:      opts.LogoutPath,
		successRedirect: opts.SuccessRedirect,
		logoutRedirect:  opts.LogoutRedirect,
		credentialsKey:  opts.CredentialsKey,
		tokenField:      opts.TokenField,
		cookieName:      opts.CookieName,
		cookieDomain:    opts.CookieDomain,
		cookiePath:      opts.CookiePath,
		cookieSameSite:  opts.CookieSameSite,
		cookieTTL:       opts.CookieTTL,
		cookieSecure:    !opts.CookieInsecure,
		cookieHTTPOnly:  true,
	}

	if p.dialect == "" {
		p.dialect = DialectAuth0
	}
	if p.scope == "" {
		p.scope = DefaultScope
	}
	if p.loginPath == "" {
		p.loginPath = DefaultLoginPath
	}
	if p.callbackPath == "" {
		p.callbackPath = DefaultCallbackPath
	}
	if p.logoutPath == "" {
		p.logoutPath = DefaultLogoutPath
	}
	if p.successRedirect == "" {
		p.successRedirect = DefaultSuccessRedirect
	}
	if p.logoutRedirect == "" {
		p.logoutRedirect = p.successRedirect
	}
	if p.credentialsKey == "" {
		p.credentialsKey = DefaultCredentialsKey
	}
	if p.tokenField == "" {
		p.tokenField = DefaultTokenField
	}
	if p.cookieName == "" {
		p.cookieName = DefaultCookieName
	}
	if p.cookiePath == "" {
		p.cookiePath = "/"
	}
	if p.cookieSameSite == 0 {
		p.cookieSameSite = http.SameSiteLaxMode
	}
	if p.cookieTTL <= 0 {
		p.cookieTTL = DefaultCookieTTL
	}
	if opts.CookieHTTPOnly != nil {
		p.cookieHTTPOnly = *opts.CookieHTTPOnly
	}

	exempt := opts.ExemptPaths
	if exempt == nil {
		exempt = []string{p.loginPath, p.callbackPath}
	}
	p.exemptRules = compileRules(exempt)

	return p
}

func validate(opts Options) error {
	var cerr ConfigError

	requireField := func(field, value string) {
		if strings.TrimSpace(value) == "" {
			cerr.add(field, "required")
		}
	}
	requireURL := func(field, value string) {
		if strings.TrimSpace(value) == "" {
			cerr.add(field, "required")
			return
		}
		u, err := url.Parse(value)
		if err != nil || u.Scheme == "" || u.Host == "" {
			cerr.add(field, "must be an absolute URL")
		}
	}

	requireField("client_id", opts.ClientID)
	requireField("client_secret", opts.ClientSecret)
	requireURL("authorize_url", opts.AuthorizeURL)
	requireURL("token_url", opts.TokenURL)
	requireURL("jwks_url", opts.JWKSURL)
	requireURL("redirect_uri", opts.RedirectURI)

	if opts.Dialect != "" && opts.Dialect != DialectAuth0 && opts.Dialect != DialectForm {
		cerr.add("dialect", "must be auth0 or form")
	}

	if len(cerr.Fields) == 0 {
		return nil
	}
	sort.Slice(cerr.Fields, func(i, j int) bool { return cerr.Fields[i].Field < cerr.Fields[j].Field })
	return &cerr
}

// LoginPath returns the configured login path.
func (g *Gate) LoginPath() string { return g.policy.loginPath }

// CallbackPath returns the configured callback path.
func (g *Gate) CallbackPath() string { return g.policy.callbackPath }

// LogoutPath returns the configured logout path.
func (g *Gate) LogoutPath() string { return g.policy.logoutPath }
