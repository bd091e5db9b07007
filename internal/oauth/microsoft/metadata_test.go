package microsoft

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestMetadataCache_FetchAndCache(t *testing.T) {
	var fetches int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fetches, 1)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"issuer":                 "https://idp.example",
			"authorization_endpoint": "https://idp.example/authorize",
			"token_endpoint":         "https://idp.example/token",
			"jwks_uri":               "https://idp.example/keys",
		})
	}))
	defer srv.Close()

	c := NewMetadataCache(srv.URL, time.Hour, srv.Client())

	meta, err := c.Metadata(context.Background())
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}
	if meta.TokenEndpoint != "https://idp.example/token" {
		t.Fatalf("unexpected token endpoint %q", meta.TokenEndpoint)
	}

	// Second call must hit the cache.
	if _, err := c.Metadata(context.Background()); err != nil {
		t.Fatalf("Metadata (cached): %v", err)
	}
	if n := atomic.LoadInt32(&fetches); n != 1 {
		t.Fatalf("expected 1 fetch, got %d", n)
	}

	c.Invalidate()
	if _, err := c.Metadata(context.Background()); err != nil {
		t.Fatalf("Metadata (after invalidate): %v", err)
	}
	if n := atomic.LoadInt32(&fetches); n != 2 {
		t.Fatalf("expected refetch after invalidate, got %d fetches", n)
	}
}

func TestMetadataCache_MissingTokenEndpoint(t *testing.T) {
	var fetches int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fetches, 1)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"issuer":                 "https://idp.example",
			"authorization_endpoint": "https://idp.example/authorize",
			"jwks_uri":               "https://idp.example/keys",
		})
	}))
	defer srv.Close()

	c := NewMetadataCache(srv.URL, time.Hour, srv.Client())

	_, err := c.Metadata(context.Background())
	if !errors.Is(err, ErrDiscovery) {
		t.Fatalf("expected ErrDiscovery, got %v", err)
	}

	// The failed document must not populate the cache: the next call
	// fetches again.
	_, _ = c.Metadata(context.Background())
	if n := atomic.LoadInt32(&fetches); n != 2 {
		t.Fatalf("expected 2 fetches, got %d", n)
	}
}

func TestMetadataCache_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewMetadataCache(srv.URL, time.Hour, srv.Client())
	if _, err := c.Metadata(context.Background()); !errors.Is(err, ErrDiscovery) {
		t.Fatalf("expected ErrDiscovery, got %v", err)
	}
}
