// Package token verifies signed JWTs against remotely resolved keys.
package token

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMalformed indicates the token could not be parsed.
	ErrMalformed = errors.New("token: malformed")
	// ErrKeyUnresolvable indicates the signing key could not be obtained.
	ErrKeyUnresolvable = errors.New("token: signing key unresolvable")
	// ErrSignatureInvalid indicates the signature did not verify.
	ErrSignatureInvalid = errors.New("token: signature invalid")
	// ErrExpired indicates the token is past its expiry.
	ErrExpired = errors.New("token: expired")
)

// KeySource resolves a verification key for a token's kid header.
type KeySource interface {
	Key(ctx context.Context, kid string) (crypto.PublicKey, error)
}

// Claims is the decoded claim set of a verified token.
type Claims struct {
	KeyID     string
	Issuer    string
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Raw       map[string]any
}

// Verifier validates token signatures and structural claims.
type Verifier struct {
	keys   KeySource
	issuer string
	parser *jwt.Parser
}

// NewVerifier creates a verifier over the given key source. If issuer is
// non-empty, the iss claim must match it.
func NewVerifier(keys KeySource, issuer string) *Verifier {
	return &Verifier{
		keys:   keys,
		issuer: issuer,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{
				jwt.SigningMethodRS256.Alg(),
				jwt.SigningMethodRS384.Alg(),
				jwt.SigningMethodRS512.Alg(),
				jwt.SigningMethodES256.Alg(),
				jwt.SigningMethodES384.Alg(),
				jwt.SigningMethodES512.Alg(),
			}),
			jwt.WithLeeway(30*time.Second),
		),
	}
}

// Verify parses and validates raw, returning the decoded claims.
func (v *Verifier) Verify(ctx context.Context, raw string) (*Claims, error) {
	var kid string
	var keyErr error

	claims := jwt.MapClaims{}
	tok, err := v.parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		kid, _ = t.Header["kid"].(string)
		key, err := v.keys.Key(ctx, kid)
		if err != nil {
			keyErr = err
			return nil, err
		}
		return key, nil
	})
	if err != nil {
		switch {
		case keyErr != nil:
			return nil, fmt.Errorf("%w: %w", ErrKeyUnresolvable, keyErr)
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, fmt.Errorf("%w: %w", ErrExpired, err)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, fmt.Errorf("%w: %w", ErrSignatureInvalid, err)
		default:
			return nil, fmt.Errorf("token: verify: %w", err)
		}
	}
	if !tok.Valid {
		return nil, ErrSignatureInvalid
	}

	iss, _ := claims["iss"].(string)
	if v.issuer != "" && iss != v.issuer {
		return nil, fmt.Errorf("token: issuer mismatch: got %q want %q", iss, v.issuer)
	}

	sub, _ := claims["sub"].(string)

	raw2 := make(map[string]any, len(claims))
	for k, val := range claims {
		raw2[k] = val
	}

	return &Claims{
		KeyID:     kid,
		Issuer:    iss,
		Subject:   sub,
		IssuedAt:  parseUnix(claims["iat"]),
		ExpiresAt: parseUnix(claims["exp"]),
		Raw:       raw2,
	}, nil
}

func parseUnix(val any) time.Time {
	switch v := val.(type) {
	case float64:
		return time.Unix(int64(v), 0)
	case int64:
		return time.Unix(v, 0)
	default:
		return time.Time{}
	}
}
