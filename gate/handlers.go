package gate

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/oauth2"
)

type credentialsKey struct{ name string }

// CredentialsFromContext retrieves the claims attached by the middleware
// under the given attribute name.
func CredentialsFromContext(ctx context.Context, name string) (any, bool) {
	v := ctx.Value(credentialsKey{name: name})
	return v, v != nil
}

// Credentials retrieves the claims attached by this gate's middleware.
func (g *Gate) Credentials(ctx context.Context) (any, bool) {
	return CredentialsFromContext(ctx, g.policy.credentialsKey)
}

// Middleware is the protected-route gate. It reads the session cookie,
// evaluates the state machine, and either admits the request (attaching
// verified credentials when present) or redirects to login, clearing the
// cookie when it failed verification on a protected path.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := ""
		if c, err := r.Cookie(g.policy.cookieName); err == nil {
			raw = c.Value
		}

		decision := g.Evaluate(r.Context(), r.URL.Path, raw)
		switch decision.Action {
		case AdmitWithCredentials:
			ctx := context.WithValue(r.Context(), credentialsKey{name: g.policy.credentialsKey}, decision.Credentials)
			next.ServeHTTP(w, r.WithContext(ctx))
		case RedirectToLogin:
			if decision.ClearCookie {
				http.SetCookie(w, g.clearCookie())
			}
			http.Redirect(w, r, g.policy.loginPath, http.StatusFound)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// Mount registers the login, callback, and logout endpoints on r.
func (g *Gate) Mount(r chi.Router) {
	r.Get(g.policy.loginPath, g.handleLogin)
	r.Get(g.policy.callbackPath, g.handleCallback)
	r.Get(g.policy.logoutPath, g.handleLogout)
}

// Routes returns a router serving only the gate's own endpoints.
func (g *Gate) Routes() http.Handler {
	r := chi.NewRouter()
	g.Mount(r)
	return r
}

// Handler wraps app with the full gate surface: the auth endpoints plus
// the protected-route middleware in front of everything else.
func (g *Gate) Handler(app http.Handler) http.Handler {
	r := chi.NewRouter()
	g.Mount(r)
	r.Handle("/*", g.Middleware(app))
	return r
}

func (g *Gate) handleLogin(w http.ResponseWriter, r *http.Request) {
	var opts []oauth2.AuthCodeOption
	for k, v := range g.policy.authorizeParams {
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}
	authURL := g.oauth.AuthCodeURL("", opts...)
	g.logger.Debug("redirecting to provider", "url", authURL)
	http.Redirect(w, r, authURL, http.StatusFound)
}

func (g *Gate) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, g.clearCookie())
	http.Redirect(w, r, g.policy.logoutRedirect, http.StatusFound)
}

func (g *Gate) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	// The provider reports user-facing failures (denied consent, expired
	// request) via the error parameter; no exchange is attempted.
	if errCode := q.Get("error"); errCode != "" {
		g.logger.Warn("provider returned error", "error", errCode, "description", q.Get("error_description"))
		http.Redirect(w, r, g.policy.loginPath, http.StatusFound)
		return
	}

	code := q.Get("code")
	if code == "" {
		g.logger.Warn("callback missing code")
		http.Redirect(w, r, g.policy.loginPath, http.StatusFound)
		return
	}

	resp, err := g.exchanger.Exchange(r.Context(), code)
	if err != nil {
		g.logger.Error("code exchange failed", "error", err)
		http.Error(w, "code exchange failed", http.StatusBadGateway)
		return
	}

	raw, ok := resp.Field(g.policy.tokenField)
	if !ok || raw == "" {
		g.logger.Error("exchange response missing token field", "field", g.policy.tokenField, "error", ErrMissingTokenField)
		http.Error(w, ErrMissingTokenField.Error(), http.StatusInternalServerError)
		return
	}

	claims, err := g.verifier.Verify(r.Context(), raw)
	if err != nil {
		// Fail closed: no cookie, back to login.
		g.logger.Warn("callback token rejected", "error", err)
		http.Redirect(w, r, g.policy.loginPath, http.StatusFound)
		return
	}
	g.logger.Info("login succeeded", "sub", claims.Subject, "iss", claims.Issuer)

	if g.postAuth != nil {
		if err := g.postAuth(r.Context(), resp, r); err != nil {
			g.logger.Warn("post-auth hook failed", "error", err)
		}
	}

	http.SetCookie(w, g.sessionCookie(raw))
	http.Redirect(w, r, g.policy.successRedirect, http.StatusFound)
}
