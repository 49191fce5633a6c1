package gate

import (
	"context"
	"errors"
	"testing"
	"time"

	"authgate/token"
)

type fakeVerifier struct {
	claims *token.Claims
	err    error
}

func (f fakeVerifier) Verify(_ context.Context, _ string) (*token.Claims, error) {
	return f.claims, f.err
}

func newTestGate(t *testing.T, opts Options) *Gate {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = testLogger()
	}
	g, err := New(context.Background(), opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

func TestEvaluateNoCookieProtected(t *testing.T) {
	opts := validOptions()
	opts.Verifier = fakeVerifier{err: errors.New("should not be called")}
	g := newTestGate(t, opts)

	d := g.Evaluate(context.Background(), "/private", "")
	if d.Action != RedirectToLogin {
		t.Fatalf("expected redirect, got %v", d.Action)
	}
	if d.ClearCookie {
		t.Fatalf("no cookie present, nothing to clear")
	}
}

func TestEvaluateNoCookieExempt(t *testing.T) {
	opts := validOptions()
	opts.Verifier = fakeVerifier{err: errors.New("should not be called")}
	g := newTestGate(t, opts)

	d := g.Evaluate(context.Background(), "/login", "")
	if d.Action != Admit {
		t.Fatalf("expected admit on exempt path, got %v", d.Action)
	}
}

func TestEvaluateValidCookie(t *testing.T) {
	claims := &token.Claims{Subject: "user-1", ExpiresAt: time.Now().Add(time.Hour)}
	opts := validOptions()
	opts.Verifier = fakeVerifier{claims: claims}
	g := newTestGate(t, opts)

	d := g.Evaluate(context.Background(), "/private", "sometoken")
	if d.Action != AdmitWithCredentials {
		t.Fatalf("expected admit with credentials, got %v", d.Action)
	}
	got, ok := d.Credentials.(*token.Claims)
	if !ok || got.Subject != "user-1" {
		t.Fatalf("unexpected credentials: %#v", d.Credentials)
	}
}

func TestEvaluateInvalidCookieProtected(t *testing.T) {
	opts := validOptions()
	opts.Verifier = fakeVerifier{err: token.ErrSignatureInvalid}
	g := newTestGate(t, opts)

	d := g.Evaluate(context.Background(), "/private", "garbage")
	if d.Action != RedirectToLogin {
		t.Fatalf("expected redirect, got %v", d.Action)
	}
	if !d.ClearCookie {
		t.Fatalf("invalid cookie on protected path must be cleared")
	}
}

func TestEvaluateInvalidCookieExempt(t *testing.T) {
	opts := validOptions()
	opts.Verifier = fakeVerifier{err: token.ErrExpired}
	g := newTestGate(t, opts)

	d := g.Evaluate(context.Background(), "/callback", "stale")
	if d.Action != Admit {
		t.Fatalf("verification failure on exempt path is not fatal, got %v", d.Action)
	}
}

func TestEvaluateTransform(t *testing.T) {
	claims := &token.Claims{Subject: "user-1"}
	opts := validOptions()
	opts.Verifier = fakeVerifier{claims: claims}
	opts.TransformClaims = func(c *token.Claims) any {
		return map[string]string{"sub": c.Subject}
	}
	g := newTestGate(t, opts)

	d := g.Evaluate(context.Background(), "/private", "sometoken")
	m, ok := d.Credentials.(map[string]string)
	if !ok || m["sub"] != "user-1" {
		t.Fatalf("transform not applied: %#v", d.Credentials)
	}
}
