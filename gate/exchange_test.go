package gate

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func newExchanger(t *testing.T, tokenURL string, dialect Dialect) *codeExchanger {
	t.Helper()
	opts := validOptions()
	opts.TokenURL = tokenURL
	opts.Dialect = dialect
	opts.TokenParams = map[string]string{"response_mode": "id_token token"}
	return newCodeExchanger(resolvePolicy(opts), nil)
}

func TestExchangeJSONDialect(t *testing.T) {
	var gotContentType string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id_token":"tok123","token_type":"Bearer"}`))
	}))
	t.Cleanup(srv.Close)

	e := newExchanger(t, srv.URL, DialectAuth0)
	resp, err := e.Exchange(context.Background(), "code456")
	if err != nil {
		t.Fatalf("Exchange returned error: %v", err)
	}

	if gotContentType != "application/json" {
		t.Fatalf("expected JSON body, got %q", gotContentType)
	}
	want := map[string]string{
		"grant_type":    "authorization_code",
		"client_id":     "abc",
		"client_secret": "123",
		"redirect_uri":  "https://app.test/callback",
		"code":          "code456",
		"response_mode": "id_token token",
	}
	for k, v := range want {
		if gotBody[k] != v {
			t.Fatalf("body field %s = %q, want %q", k, gotBody[k], v)
		}
	}

	tok, ok := resp.Field("id_token")
	if !ok || tok != "tok123" {
		t.Fatalf("unexpected id_token: %q ok=%v", tok, ok)
	}
}

func TestExchangeFormDialect(t *testing.T) {
	var gotContentType string
	var gotForm url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		_ = r.ParseForm()
		gotForm = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id_token":"tok123"}`))
	}))
	t.Cleanup(srv.Close)

	e := newExchanger(t, srv.URL, DialectForm)
	if _, err := e.Exchange(context.Background(), "code456"); err != nil {
		t.Fatalf("Exchange returned error: %v", err)
	}

	if gotContentType != "application/x-www-form-urlencoded" {
		t.Fatalf("expected form body, got %q", gotContentType)
	}
	if gotForm.Get("grant_type") != "authorization_code" || gotForm.Get("code") != "code456" {
		t.Fatalf("unexpected form: %v", gotForm)
	}
}

func TestExchangeToleratesNonJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("this is not json"))
	}))
	t.Cleanup(srv.Close)

	e := newExchanger(t, srv.URL, DialectAuth0)
	resp, err := e.Exchange(context.Background(), "code")
	if err != nil {
		t.Fatalf("unparsable body must not fail the exchange: %v", err)
	}
	if _, ok := resp.Field("id_token"); ok {
		t.Fatalf("field lookup must miss on non-JSON body")
	}
	if string(resp.Raw()) != "this is not json" {
		t.Fatalf("raw body not retained: %q", resp.Raw())
	}
}

func TestExchangeTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	e := newExchanger(t, srv.URL, DialectAuth0)
	if _, err := e.Exchange(context.Background(), "code"); !errors.Is(err, ErrExchange) {
		t.Fatalf("expected ErrExchange, got %v", err)
	}
}

func TestExchangeBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)

	e := newExchanger(t, srv.URL, DialectAuth0)
	if _, err := e.Exchange(context.Background(), "code"); !errors.Is(err, ErrExchange) {
		t.Fatalf("expected ErrExchange, got %v", err)
	}
}
