// Package jwks fetches and caches signing keys from a remote JSON Web Key
// Set endpoint, keyed by key ID.
package jwks

import (
	"context"
	"crypto"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v3"
)

var (
	// ErrKeyNotFound indicates the fetched key set has no key for the kid.
	ErrKeyNotFound = errors.New("jwks: no key for kid")
	// ErrFetchFailed indicates the key set could not be retrieved or decoded.
	ErrFetchFailed = errors.New("jwks: fetch failed")
)

const (
	defaultTTL     = 10 * time.Minute
	defaultMaxKeys = 16
)

// Config configures a Resolver.
type Config struct {
	// URL is the JWKS endpoint.
	URL string
	// TTL bounds how long a cached key is served before re-fetching.
	TTL time.Duration
	// MaxKeys bounds the cache size; the oldest entry is evicted on overflow.
	MaxKeys int
	// HTTPClient defaults to a client with a 10s timeout.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

type cachedKey struct {
	key       crypto.PublicKey
	fetchedAt time.Time
}

// Resolver resolves signing keys by kid, caching fetched keys with a
// bounded age and count. Safe for concurrent use; concurrent misses on the
// same kid may race to fetch, which is harmless since entries for a kid are
// equivalent.
type Resolver struct {
	url     string
	ttl     time.Duration
	maxKeys int
	client  *http.Client
	logger  *slog.Logger

	mu   sync.RWMutex
	keys map[string]cachedKey
}

// NewResolver creates a resolver with sane defaults.
func NewResolver(cfg Config) *Resolver {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = defaultMaxKeys
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		url:     cfg.URL,
		ttl:     cfg.TTL,
		maxKeys: cfg.MaxKeys,
		client:  client,
		logger:  logger,
		keys:    make(map[string]cachedKey),
	}
}

// Key returns the public key for kid, fetching the remote key set on a
// cache miss. Fetch failures are never cached.
func (r *Resolver) Key(ctx context.Context, kid string) (crypto.PublicKey, error) {
	r.mu.RLock()
	entry, ok := r.keys[kid]
	r.mu.RUnlock()
	if ok && time.Since(entry.fetchedAt) < r.ttl {
		return entry.key, nil
	}

	set, err := r.fetch(ctx)
	if err != nil {
		return nil, err
	}

	matches := set.Key(kid)
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, kid)
	}

	key := matches[0].Key
	r.store(kid, key)
	return key, nil
}

func (r *Resolver) store(kid string, key crypto.PublicKey) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.keys[kid]; !ok && len(r.keys) >= r.maxKeys {
		oldest := ""
		var oldestAt time.Time
		for k, e := range r.keys {
			if oldest == "" || e.fetchedAt.Before(oldestAt) {
				oldest, oldestAt = k, e.fetchedAt
			}
		}
		delete(r.keys, oldest)
	}
	r.keys[kid] = cachedKey{key: key, fetchedAt: time.Now()}
}

func (r *Resolver) fetch(ctx context.Context) (*jose.JSONWebKeySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrFetchFailed, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %s", ErrFetchFailed, resp.Status)
	}

	var set jose.JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrFetchFailed, err)
	}

	r.logger.Debug("jwks fetched", "url", r.url, "keys", len(set.Keys))
	return &set, nil
}
