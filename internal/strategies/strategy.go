// Package strategies implements the per-class response strategies used by the
// offline cache manager.
//
// Available strategies:
//   - CacheFirst:   answer from the named caches, fall back to the network.
//   - NetworkFirst: answer from the network, fall back to the named caches.
//   - Passthrough:  always go to the network, never touch the caches.
//
// Strategies never return errors: every failure is turned into a cached
// fallback or a synthetic response.
package strategies

import (
	"context"
	"net/http"
	"time"

	"github.com/dittox/eventgw/internal/cache"
	"github.com/dittox/eventgw/internal/logging"
	"github.com/dittox/eventgw/internal/metrics"
)

// Outcome describes where a response came from.
type Outcome string

// Outcome values, also exposed in the X-Offline-Cache header.
const (
	OutcomeHit     Outcome = "hit"     // served from a named cache, no network
	OutcomeMiss    Outcome = "miss"    // cache miss, served from the network
	OutcomeNetwork Outcome = "network" // network-first success
	OutcomeStale   Outcome = "stale"   // network failed, served from a named cache
	OutcomeOffline Outcome = "offline" // synthetic fallback
	OutcomeBypass  Outcome = "bypass"  // not handled by the caches at all
)

// Result is a strategy's answer to one request.
type Result struct {
	Entry   *cache.Entry
	Outcome Outcome
}

// Strategy defines the interface for response strategies.
type Strategy interface {
	// Handle answers req. It never fails; see the package doc.
	Handle(ctx context.Context, req *http.Request) Result
}

// FetchFunc performs the network request for req and captures the complete
// response. An error means no response was received at all.
type FetchFunc func(ctx context.Context, req *http.Request) (*cache.Entry, error)

// OfflinePage is the static-class fallback.
func OfflinePage() *cache.Entry {
	return &cache.Entry{
		Status:     http.StatusServiceUnavailable,
		StatusText: "Service Unavailable",
		Header:     http.Header{"Content-Type": {"text/plain;charset=UTF-8"}},
		Body:       []byte("Offline - Please check your connection"),
		StoredAt:   time.Now().UTC(),
	}
}

// OfflineJSON is the api-class fallback when nothing is cached.
func OfflineJSON() *cache.Entry {
	return &cache.Entry{
		Status:     http.StatusServiceUnavailable,
		StatusText: http.StatusText(http.StatusServiceUnavailable),
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       []byte(`{"error":"Offline and no cached data available","offline":true}`),
		StoredAt:   time.Now().UTC(),
	}
}

// OfflineImage is the image-class fallback: an empty 404.
func OfflineImage() *cache.Entry {
	return &cache.Entry{
		Status:     http.StatusNotFound,
		StatusText: http.StatusText(http.StatusNotFound),
		Header:     make(http.Header),
		Body:       []byte{},
		StoredAt:   time.Now().UTC(),
	}
}

// store puts an independent copy of entry into the named cache. Failures are
// logged and otherwise ignored; the caller still returns the live response.
func store(ctx context.Context, storage cache.Storage, name, key string, entry *cache.Entry) {
	c, err := storage.Open(ctx, name)
	if err == nil {
		err = c.Put(ctx, key, entry.Clone())
	}
	if err != nil {
		metrics.OfflineCacheOps.WithLabelValues(name, "put_error").Inc()
		logging.FromContext(ctx).Warn().Err(err).Str("cache", name).Str("key", key).Msg("cache put failed")
		return
	}
	metrics.OfflineCacheOps.WithLabelValues(name, "put").Inc()
}
