package strategies

import (
	"context"
	"errors"
	"net/http"

	"github.com/dittox/eventgw/internal/cache"
	"github.com/dittox/eventgw/internal/logging"
)

// CacheFirst answers from any named cache when it can and only goes to the
// network on a miss. Successful network responses are stored into its own
// cache. Stale content is served as is.
type CacheFirst struct {
	storage   cache.Storage
	cacheName string
	fetch     FetchFunc
	offline   func() *cache.Entry
}

// NewCacheFirst creates a cache-first strategy writing into cacheName. offline
// builds the response returned when neither the caches nor the network can
// answer.
func NewCacheFirst(storage cache.Storage, cacheName string, fetch FetchFunc, offline func() *cache.Entry) *CacheFirst {
	return &CacheFirst{
		storage:   storage,
		cacheName: cacheName,
		fetch:     fetch,
		offline:   offline,
	}
}

// Handle implements Strategy.
func (s *CacheFirst) Handle(ctx context.Context, req *http.Request) Result {
	key := cache.Key(req)
	log := logging.FromContext(ctx)

	cached, err := s.storage.Match(ctx, key)
	if err == nil {
		log.Debug().Str("key", key).Msg("serving from cache")
		return Result{Entry: cached, Outcome: OutcomeHit}
	}
	if !errors.Is(err, cache.ErrNotFound) {
		log.Error().Err(err).Str("key", key).Msg("cache lookup failed")
		return Result{Entry: s.offline(), Outcome: OutcomeOffline}
	}

	log.Debug().Str("key", key).Msg("fetching from network")
	resp, err := s.fetch(ctx, req)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("fetch failed")
		return Result{Entry: s.offline(), Outcome: OutcomeOffline}
	}
	if resp.OK() {
		store(ctx, s.storage, s.cacheName, key, resp)
	}
	return Result{Entry: resp, Outcome: OutcomeMiss}
}
