package gate

import (
	"net/http"
	"time"
)

// sessionCookie builds the Set-Cookie attributes for a fresh session. The
// expiry is stamped from the current time plus the configured lifetime.
func (g *Gate) sessionCookie(value string) *http.Cookie {
	c := g.cookieTemplate()
	c.Value = value
	c.Expires = time.Now().Add(g.policy.cookieTTL)
	c.MaxAge = int(g.policy.cookieTTL.Seconds())
	return c
}

// clearCookie builds attributes whose expiry lies strictly in the past,
// which a conforming cookie store treats as immediate deletion.
func (g *Gate) clearCookie() *http.Cookie {
	c := g.cookieTemplate()
	c.Expires = time.Unix(0, 0)
	c.MaxAge = -1
	return c
}

func (g *Gate) cookieTemplate() *http.Cookie {
	return &http.Cookie{
		Name:     g.policy.cookieName,
		Path:     g.policy.cookiePath,
		Domain:   g.policy.cookieDomain,
		HttpOnly: g.policy.cookieHTTPOnly,
		Secure:   g.policy.cookieSecure,
		SameSite: g.policy.cookieSameSite,
	}
}
