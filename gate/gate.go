package gate

import "context"

// Action is the terminal outcome of the per-request gate.
type Action int

const (
	// Admit lets the request through without credentials.
	Admit Action = iota
	// AdmitWithCredentials lets the request through with verified claims
	// attached.
	AdmitWithCredentials
	// RedirectToLogin sends the client to the login path.
	RedirectToLogin
)

// Decision is the typed result of evaluating a request against the gate.
// A thin adapter translates it into response calls, keeping the state
// machine independent of the transport.
type Decision struct {
	Action      Action
	Credentials any
	// ClearCookie expires the session cookie alongside the redirect, so an
	// invalid cookie cannot loop the client through a stale session.
	ClearCookie bool
}

// Evaluate runs the protected-route state machine for one request.
// path must be the bare path component; rawToken is the session cookie
// value, empty when no cookie was presented.
func (g *Gate) Evaluate(ctx context.Context, path, rawToken string) Decision {
	exempt := isExempt(path, g.policy.exemptRules)

	if rawToken == "" {
		if exempt {
			return Decision{Action: Admit}
		}
		g.logger.Debug("no session cookie", "path", path)
		return Decision{Action: RedirectToLogin}
	}

	claims, err := g.verifier.Verify(ctx, rawToken)
	if err != nil {
		g.logger.Debug("session token rejected", "path", path, "error", err)
		if exempt {
			// The route does not require identity; a bad cookie is not
			// fatal here.
			return Decision{Action: Admit}
		}
		return Decision{Action: RedirectToLogin, ClearCookie: true}
	}

	var creds any = claims
	if g.transform != nil {
		creds = g.transform(claims)
	}
	return Decision{Action: AdmitWithCredentials, Credentials: creds}
}
