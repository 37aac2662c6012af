package offline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dittox/eventgw/internal/cache"
	"github.com/dittox/eventgw/internal/logging"
	"github.com/dittox/eventgw/internal/metrics"
	"github.com/dittox/eventgw/internal/strategies"
)

// ClassUncontrolled labels requests served while no worker has claimed.
const ClassUncontrolled strategies.Class = "passthrough"

// Registration tracks the active and waiting workers sharing one cache
// storage and routes requests through the controlling worker.
type Registration struct {
	storage     cache.Storage
	fetch       strategies.FetchFunc
	passthrough strategies.Strategy

	mu      sync.Mutex // serializes lifecycle transitions
	waiting *Worker
	active  atomic.Pointer[Worker]

	commands chan Command
}

// NewRegistration creates an empty registration.
func NewRegistration(storage cache.Storage, fetch strategies.FetchFunc) *Registration {
	return &Registration{
		storage:     storage,
		fetch:       fetch,
		passthrough: strategies.NewPassthrough(fetch),
		commands:    make(chan Command, 16),
	}
}

// Storage returns the shared cache storage.
func (r *Registration) Storage() cache.Storage { return r.storage }

// Active returns the worker that currently controls traffic, if any.
func (r *Registration) Active() *Worker { return r.active.Load() }

// Waiting returns the installed worker waiting to be promoted, if any.
func (r *Registration) Waiting() *Worker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.waiting
}

// Register installs a new worker for cfg. A failed install leaves the worker
// redundant and the previous active worker in charge. A successful one is
// promoted right away when cfg.SkipWaiting is set or nothing is active yet;
// otherwise it waits for SkipWaiting.
func (r *Registration) Register(ctx context.Context, cfg Config) (*Worker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logging.FromContext(ctx)

	w := NewWorker(cfg, r.storage, r.fetch)
	if err := w.Install(ctx); err != nil {
		w.setState(StateRedundant)
		log.Error().Err(err).Str("worker", w.ID).Msg("installation failed")
		return w, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.waiting != nil {
		r.waiting.setState(StateRedundant)
	}
	r.waiting = w
	if cfg.SkipWaiting || r.active.Load() == nil {
		return w, r.promoteLocked(ctx)
	}
	log.Info().Str("worker", w.ID).Msg("installed, waiting for SKIP_WAITING")
	return w, nil
}

// RegisterWithRetry calls Register until it succeeds or ctx is done.
func (r *Registration) RegisterWithRetry(ctx context.Context, cfg Config, interval time.Duration) (*Worker, error) {
	for {
		w, err := r.Register(ctx, cfg)
		if err == nil || w == nil {
			return w, err
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(ctx.Err(), err)
		case <-time.After(interval):
		}
	}
}

func (r *Registration) promoteLocked(ctx context.Context) error {
	w := r.waiting
	if w == nil {
		return nil
	}
	r.waiting = nil
	if err := w.Activate(ctx); err != nil {
		w.setState(StateRedundant)
		return err
	}
	if old := r.active.Swap(w); old != nil {
		old.setState(StateRedundant)
	}
	return nil
}

// SkipWaiting promotes the waiting worker, if any.
func (r *Registration) SkipWaiting(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.promoteLocked(ctx)
}

// ClearCaches deletes every named cache regardless of the Version Set.
func (r *Registration) ClearCaches(ctx context.Context) error {
	names, err := r.storage.Keys(ctx)
	if err != nil {
		return fmt.Errorf("clear caches: %w", err)
	}
	if err := cache.DeleteAll(ctx, r.storage); err != nil {
		return fmt.Errorf("clear caches: %w", err)
	}
	for _, name := range names {
		metrics.OfflineCacheOps.WithLabelValues(name, "delete").Inc()
	}
	logging.FromContext(ctx).Info().Int("caches", len(names)).Msg("cleared all caches")
	return nil
}

// Apply executes cmd synchronously.
func (r *Registration) Apply(ctx context.Context, cmd Command) error {
	switch cmd {
	case CommandSkipWaiting:
		return r.SkipWaiting(ctx)
	case CommandClearCache:
		return r.ClearCaches(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
	}
}

// Post queues cmd for Run. It does not wait for the command to take effect.
func (r *Registration) Post(ctx context.Context, cmd Command) error {
	select {
	case r.commands <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run consumes posted commands until ctx is done.
func (r *Registration) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-r.commands:
			if err := r.Apply(ctx, cmd); err != nil {
				logging.FromContext(ctx).Error().Err(err).Str("command", string(cmd)).Msg("control command failed")
			}
		}
	}
}

// Handle answers req through the controlling worker, or straight from the
// network when no worker has claimed yet.
func (r *Registration) Handle(ctx context.Context, req *http.Request) (strategies.Class, strategies.Result) {
	if w := r.active.Load(); w != nil && w.Claimed() {
		return w.Handle(ctx, req)
	}
	res := r.passthrough.Handle(ctx, req)
	metrics.OfflineRequests.WithLabelValues(string(ClassUncontrolled), string(res.Outcome)).Inc()
	return ClassUncontrolled, res
}
