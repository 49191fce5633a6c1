package gate

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
)

type endpoints struct {
	authorizeURL string
	tokenURL     string
	jwksURL      string
}

// discoverEndpoints resolves the provider's authorize, token, and JWKS URLs
// from its OIDC discovery document.
func discoverEndpoints(ctx context.Context, issuer string, client *http.Client) (endpoints, error) {
	if client != nil {
		ctx = oidc.ClientContext(ctx, client)
	}

	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return endpoints{}, fmt.Errorf("discover issuer %s: %w", issuer, err)
	}

	var doc struct {
		JWKSURL string `json:"jwks_uri"`
	}
	if err := provider.Claims(&doc); err != nil {
		return endpoints{}, fmt.Errorf("parse discovery document: %w", err)
	}

	ep := provider.Endpoint()
	return endpoints{
		authorizeURL: ep.AuthURL,
		tokenURL:     ep.TokenURL,
		jwksURL:      doc.JWKSURL,
	}, nil
}
