package lti

import (
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/edurelay/ltirelay/internal/cachebox"
)

const (
	defaultNonceTTL  = 10 * time.Minute
	defaultLaunchTTL = 24 * time.Hour
	defaultClockSkew = 30 * time.Second

	tokenCacheSize = 64
	tokenCacheTTL  = time.Hour
)

// Client is the trust-protocol collaborator: it initiates OIDC logins,
// validates signed launch messages and hands out the per-launch service
// clients. All blocking operations take a context.
type Client struct {
	conf       ConfigSource
	store      cachebox.Store
	keys       *KeyFetcher
	tokens     *expirable.LRU[string, cachedToken]
	httpClient *http.Client
	nonceTTL   time.Duration
	launchTTL  time.Duration

	// nonceMu serializes nonce consumption; the store has no atomic
	// check-and-delete.
	nonceMu sync.Mutex
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for platform calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLaunchTTL sets how long validated launch claim sets stay resolvable.
func WithLaunchTTL(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl > 0 {
			c.launchTTL = ttl
		}
	}
}

// WithNonceTTL sets the validity window of login nonces.
func WithNonceTTL(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl > 0 {
			c.nonceTTL = ttl
		}
	}
}

// NewClient creates a Client over the given tool configuration source and
// cache store. The store carries nonces and cached launch claim sets.
func NewClient(conf ConfigSource, store cachebox.Store, opts ...Option) *Client {
	c := &Client{
		conf:       conf,
		store:      store,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		nonceTTL:   defaultNonceTTL,
		launchTTL:  defaultLaunchTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.keys = NewKeyFetcher(c.httpClient)
	c.tokens = expirable.NewLRU[string, cachedToken](tokenCacheSize, nil, tokenCacheTTL)
	return c
}
