package strategies

import (
	"context"
	"net/http"

	"github.com/dittox/eventgw/internal/cache"
	"github.com/dittox/eventgw/internal/logging"
)

// NetworkFirst prefers fresh data: it always tries the network and only falls
// back to the named caches when the network errors or answers with anything
// other than 200.
type NetworkFirst struct {
	storage   cache.Storage
	cacheName string
	fetch     FetchFunc
	offline   func() *cache.Entry
}

// NewNetworkFirst creates a network-first strategy writing into cacheName.
func NewNetworkFirst(storage cache.Storage, cacheName string, fetch FetchFunc, offline func() *cache.Entry) *NetworkFirst {
	return &NetworkFirst{
		storage:   storage,
		cacheName: cacheName,
		fetch:     fetch,
		offline:   offline,
	}
}

// Handle implements Strategy.
func (s *NetworkFirst) Handle(ctx context.Context, req *http.Request) Result {
	key := cache.Key(req)
	log := logging.FromContext(ctx)

	resp, err := s.fetch(ctx, req)
	if err == nil && resp.OK() {
		store(ctx, s.storage, s.cacheName, key, resp)
		return Result{Entry: resp, Outcome: OutcomeNetwork}
	}
	if err != nil {
		log.Info().Err(err).Str("key", key).Msg("network failed, trying cache")
	} else {
		log.Info().Int("status", resp.Status).Str("key", key).Msg("network response not ok, trying cache")
	}

	cached, merr := s.storage.Match(ctx, key)
	if merr == nil {
		log.Info().Str("key", key).Msg("serving stale data from cache")
		return Result{Entry: cached, Outcome: OutcomeStale}
	}

	log.Error().Str("key", key).Msg("no cached data available")
	return Result{Entry: s.offline(), Outcome: OutcomeOffline}
}
