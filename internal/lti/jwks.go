package lti

import (
	"context"
	"crypto"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	keySetCacheSize = 16
	keySetCacheTTL  = time.Hour
)

// KeyFetcher retrieves platform JWKS documents and caches them per key-set
// URL. A lookup miss on a cached set triggers one refetch so key rotation is
// picked up without waiting for the cache TTL.
type KeyFetcher struct {
	httpClient *http.Client
	cache      *expirable.LRU[string, *jose.JSONWebKeySet]
}

// NewKeyFetcher creates a fetcher using the given HTTP client.
func NewKeyFetcher(httpClient *http.Client) *KeyFetcher {
	return &KeyFetcher{
		httpClient: httpClient,
		cache:      expirable.NewLRU[string, *jose.JSONWebKeySet](keySetCacheSize, nil, keySetCacheTTL),
	}
}

// Key returns the public key identified by kid within the JWKS at keySetURL.
// With an empty kid a single-key set resolves to that key.
func (f *KeyFetcher) Key(ctx context.Context, keySetURL, kid string) (crypto.PublicKey, error) {
	if set, ok := f.cache.Get(keySetURL); ok {
		if key, ok := selectKey(set, kid); ok {
			return key, nil
		}
	}

	set, err := f.fetch(ctx, keySetURL)
	if err != nil {
		return nil, err
	}
	f.cache.Add(keySetURL, set)

	key, ok := selectKey(set, kid)
	if !ok {
		return nil, fmt.Errorf("%w: key %q not present in %s", ErrValidation, kid, keySetURL)
	}
	return key, nil
}

func (f *KeyFetcher) fetch(ctx context.Context, keySetURL string) (*jose.JSONWebKeySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, keySetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build key set request: %w", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch key set %s: %v", ErrUpstream, keySetURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: key set %s returned status %d", ErrUpstream, keySetURL, resp.StatusCode)
	}

	var set jose.JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, fmt.Errorf("%w: decode key set %s: %v", ErrUpstream, keySetURL, err)
	}
	return &set, nil
}

func selectKey(set *jose.JSONWebKeySet, kid string) (crypto.PublicKey, bool) {
	if kid == "" {
		if len(set.Keys) == 1 {
			return set.Keys[0].Key, true
		}
		return nil, false
	}
	for _, key := range set.Key(kid) {
		return key.Key, true
	}
	return nil, false
}
