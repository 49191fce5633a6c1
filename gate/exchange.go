package gate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxExchangeBody = 1 << 20

// TokenResponse is the parsed body of a code-exchange response. When the
// body is not valid JSON the raw bytes are retained and field lookups
// simply miss.
type TokenResponse struct {
	fields map[string]any
	raw    []byte
}

// Field returns the named string field of the response.
func (tr TokenResponse) Field(name string) (string, bool) {
	v, ok := tr.fields[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Fields returns the decoded response fields, nil if the body was not JSON.
func (tr TokenResponse) Fields() map[string]any { return tr.fields }

// Raw returns the raw response body.
func (tr TokenResponse) Raw() []byte { return tr.raw }

// Exchanger trades an authorization code for a token response.
type Exchanger interface {
	Exchange(ctx context.Context, code string) (TokenResponse, error)
}

// codeExchanger is the default Exchanger. It builds the provider-dialect
// request shape and posts it to the token endpoint. No retries; retry
// policy belongs to the caller.
type codeExchanger struct {
	tokenURL     string
	clientID     string
	clientSecret string
	redirectURI  string
	dialect      Dialect
	extras       map[string]string
	client       *http.Client
}

func newCodeExchanger(p policy, client *http.Client) *codeExchanger {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &codeExchanger{
		tokenURL:     p.tokenURL,
		clientID:     p.clientID,
		clientSecret: p.clientSecret,
		redirectURI:  p.redirectURI,
		dialect:      p.dialect,
		extras:       p.tokenParams,
		client:       client,
	}
}

func (e *codeExchanger) Exchange(ctx context.Context, code string) (TokenResponse, error) {
	req, err := e.buildRequest(ctx, code)
	if err != nil {
		return TokenResponse{}, fmt.Errorf("%w: build request: %w", ErrExchange, err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return TokenResponse{}, fmt.Errorf("%w: %w", ErrExchange, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxExchangeBody))
	if err != nil {
		return TokenResponse{}, fmt.Errorf("%w: read body: %w", ErrExchange, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return TokenResponse{}, fmt.Errorf("%w: unexpected status %s", ErrExchange, resp.Status)
	}

	tr := TokenResponse{raw: body}
	// Tolerate non-JSON bodies; field extraction will miss and the caller
	// surfaces the mismatch.
	_ = json.Unmarshal(body, &tr.fields)
	return tr, nil
}

func (e *codeExchanger) buildRequest(ctx context.Context, code string) (*http.Request, error) {
	if e.dialect == DialectForm {
		form := url.Values{}
		for k, v := range e.grantFields(code) {
			form.Set(k, v)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.tokenURL, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	}

	payload, err := json.Marshal(e.grantFields(code))
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.tokenURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (e *codeExchanger) grantFields(code string) map[string]string {
	fields := map[string]string{
		"grant_type":    "authorization_code",
		"client_id":     e.clientID,
		"client_secret": e.clientSecret,
		"redirect_uri":  e.redirectURI,
		"code":          code,
	}
	for k, v := range e.extras {
		fields[k] = v
	}
	return fields
}
