package microsoft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dropDatabas3/fedgate/internal/metrics"
)

// ErrDiscovery wraps any failure to obtain or parse the provider's
// discovery document.
var ErrDiscovery = errors.New("provider discovery failed")

// Metadata is the subset of the OIDC discovery document the client needs.
type Metadata struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	JWKSURI               string `json:"jwks_uri"`

	FetchedAt time.Time `json:"-"`
}

// MetadataCache lazily fetches and caches the discovery document with a
// TTL. Refresh is not mutually exclusive: concurrent callers hitting an
// expired cache may each fetch, which is fine because the fetch is
// idempotent and rare relative to logins.
type MetadataCache struct {
	discoveryURL string
	ttl          time.Duration
	http         *http.Client

	mu   sync.RWMutex
	meta *Metadata
}

// NewMetadataCache builds a cache for the issuer's well-known document.
// A nil client gets a default with a bounded timeout; outbound calls must
// never hang unbounded.
func NewMetadataCache(issuer string, ttl time.Duration, hc *http.Client) *MetadataCache {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MetadataCache{
		discoveryURL: strings.TrimRight(issuer, "/") + "/.well-known/openid-configuration",
		ttl:          ttl,
		http:         hc,
	}
}

// Metadata returns the cached document when fresh, otherwise fetches and
// replaces it. A failed fetch leaves any previous cache untouched.
func (c *MetadataCache) Metadata(ctx context.Context) (*Metadata, error) {
	c.mu.RLock()
	meta := c.meta
	stale := meta == nil || time.Since(meta.FetchedAt) > c.ttl
	c.mu.RUnlock()
	if !stale {
		return meta, nil
	}

	fetched, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.meta = fetched
	c.mu.Unlock()
	return fetched, nil
}

// Invalidate clears the cache; the next call refetches.
func (c *MetadataCache) Invalidate() {
	c.mu.Lock()
	c.meta = nil
	c.mu.Unlock()
}

func (c *MetadataCache) fetch(ctx context.Context) (*Metadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.discoveryURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDiscovery, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDiscovery, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%w: http %d", ErrDiscovery, resp.StatusCode)
	}

	var meta Metadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrDiscovery, err)
	}
	if err := meta.validate(); err != nil {
		return nil, err
	}
	meta.FetchedAt = time.Now()
	metrics.DiscoveryRefreshes.Inc()
	return &meta, nil
}

func (m *Metadata) validate() error {
	switch {
	case m.Issuer == "":
		return fmt.Errorf("%w: document missing issuer", ErrDiscovery)
	case m.AuthorizationEndpoint == "":
		return fmt.Errorf("%w: document missing authorization_endpoint", ErrDiscovery)
	case m.TokenEndpoint == "":
		return fmt.Errorf("%w: document missing token_endpoint", ErrDiscovery)
	case m.JWKSURI == "":
		return fmt.Errorf("%w: document missing jwks_uri", ErrDiscovery)
	}
	return nil
}
