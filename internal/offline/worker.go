package offline

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dittox/eventgw/internal/cache"
	"github.com/dittox/eventgw/internal/logging"
	"github.com/dittox/eventgw/internal/metrics"
	"github.com/dittox/eventgw/internal/strategies"
)

// State is a worker lifecycle state.
type State string

// Worker states.
const (
	StateInstalling State = "installing"
	StateInstalled  State = "installed"
	StateActivating State = "activating"
	StateActivated  State = "activated"
	StateRedundant  State = "redundant"
)

// Worker is one installed deployment of the cache manager.
type Worker struct {
	ID  string
	cfg Config

	storage     cache.Storage
	fetch       strategies.FetchFunc
	classifier  *strategies.Classifier
	byClass     map[strategies.Class]strategies.Strategy
	passthrough strategies.Strategy

	mu      sync.RWMutex
	state   State
	claimed bool
}

// NewWorker builds a worker for cfg. It does not install it.
func NewWorker(cfg Config, storage cache.Storage, fetch strategies.FetchFunc) *Worker {
	return &Worker{
		ID:         uuid.NewString(),
		cfg:        cfg,
		storage:    storage,
		fetch:      fetch,
		classifier: strategies.NewClassifier(strategies.DefaultRules(cfg.APIPrefix, cfg.CDNHosts), strategies.ClassStatic),
		byClass: map[strategies.Class]strategies.Strategy{
			strategies.ClassAPI:    strategies.NewNetworkFirst(storage, cfg.APICache, fetch, strategies.OfflineJSON),
			strategies.ClassImage:  strategies.NewCacheFirst(storage, cfg.ImageCache, fetch, strategies.OfflineImage),
			strategies.ClassStatic: strategies.NewCacheFirst(storage, cfg.StaticCache, fetch, strategies.OfflinePage),
		},
		passthrough: strategies.NewPassthrough(fetch),
		state:       StateInstalling,
	}
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// Claimed reports whether the worker controls traffic.
func (w *Worker) Claimed() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.claimed
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	w.state = s
	if s == StateRedundant {
		w.claimed = false
	}
	w.mu.Unlock()
}

// Install opens the static cache, fetches every precache URL and, only when
// all of them succeeded, stores the batch. Any network error or non-2xx status
// fails the whole step and leaves the static cache as it was.
func (w *Worker) Install(ctx context.Context) error {
	log := logging.FromContext(ctx).With().Str("worker", w.ID).Logger()
	log.Info().Int("assets", len(w.cfg.Precache)).Msg("installing")

	type item struct {
		key   string
		entry *cache.Entry
	}
	urls := make([]*url.URL, 0, len(w.cfg.Precache))
	for _, raw := range w.cfg.Precache {
		u, err := w.cfg.resolve(raw)
		if err != nil {
			return fmt.Errorf("install: %w", err)
		}
		urls = append(urls, u)
	}
	items := make([]item, len(urls))

	c, err := w.storage.Open(ctx, w.cfg.StaticCache)
	if err != nil {
		return fmt.Errorf("install: open %s: %w", w.cfg.StaticCache, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, u := range urls {
		g.Go(func() error {
			req, err := http.NewRequestWithContext(gctx, http.MethodGet, u.String(), nil)
			if err != nil {
				return fmt.Errorf("build request for %s: %w", u, err)
			}
			e, err := w.fetch(gctx, req)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", u, err)
			}
			if e.Status < 200 || e.Status > 299 {
				return fmt.Errorf("fetch %s: unexpected status %d", u, e.Status)
			}
			items[i] = item{key: cache.KeyFor(http.MethodGet, u), entry: e}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("install: %w", err)
	}

	for _, it := range items {
		if err := c.Put(ctx, it.key, it.entry); err != nil {
			return fmt.Errorf("install: store %s: %w", it.key, err)
		}
		metrics.OfflineCacheOps.WithLabelValues(w.cfg.StaticCache, "put").Inc()
	}

	w.setState(StateInstalled)
	log.Info().Msg("installation complete")
	return nil
}

// Activate deletes every cache outside the Version Set and then claims all
// traffic. Running it twice leaves the same caches behind.
func (w *Worker) Activate(ctx context.Context) error {
	log := logging.FromContext(ctx).With().Str("worker", w.ID).Logger()
	w.setState(StateActivating)
	log.Info().Msg("activating")

	names, err := w.storage.Keys(ctx)
	if err != nil {
		return fmt.Errorf("activate: list caches: %w", err)
	}
	for _, name := range names {
		if w.cfg.inVersionSet(name) {
			continue
		}
		log.Info().Str("cache", name).Msg("deleting old cache")
		if _, err := w.storage.Delete(ctx, name); err != nil {
			return fmt.Errorf("activate: delete %s: %w", name, err)
		}
		metrics.OfflineCacheOps.WithLabelValues(name, "delete").Inc()
	}

	w.mu.Lock()
	w.state = StateActivated
	w.claimed = true
	w.mu.Unlock()
	log.Info().Msg("activation complete")
	return nil
}

// Classify returns the request class req would be handled as.
func (w *Worker) Classify(req *http.Request) strategies.Class {
	return w.classifier.Classify(req)
}

// Handle classifies req once and runs the matching strategy. Non-GET requests
// bypass the caches.
func (w *Worker) Handle(ctx context.Context, req *http.Request) (strategies.Class, strategies.Result) {
	start := time.Now()
	class := w.Classify(req)
	var res strategies.Result
	if req.Method != http.MethodGet {
		res = w.passthrough.Handle(ctx, req)
	} else {
		res = w.byClass[class].Handle(ctx, req)
	}
	metrics.OfflineRequests.WithLabelValues(string(class), string(res.Outcome)).Inc()
	logging.FromContext(ctx).Debug().
		Str("class", string(class)).
		Str("outcome", string(res.Outcome)).
		Int("status", res.Entry.Status).
		Dur("duration", time.Since(start)).
		Str("url", req.URL.String()).
		Msg("offline request")
	return class, res
}
