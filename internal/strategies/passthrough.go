package strategies

import (
	"context"
	"net/http"
	"time"

	"github.com/dittox/eventgw/internal/cache"
	"github.com/dittox/eventgw/internal/logging"
)

// Passthrough routes every request to the network and never reads or writes
// the caches. It serves requests that are not cacheable (non-GET) and
// requests arriving before a worker controls the registration.
type Passthrough struct {
	fetch FetchFunc
}

// NewPassthrough creates a new pass-through strategy.
func NewPassthrough(fetch FetchFunc) *Passthrough {
	return &Passthrough{fetch: fetch}
}

// Handle sends the request to the network. With no response at all it
// answers 502.
func (s *Passthrough) Handle(ctx context.Context, req *http.Request) Result {
	resp, err := s.fetch(ctx, req)
	if err != nil {
		logging.FromContext(ctx).Warn().Err(err).Str("method", req.Method).Str("url", req.URL.String()).Msg("pass-through fetch failed")
		return Result{
			Entry: &cache.Entry{
				Status:     http.StatusBadGateway,
				StatusText: http.StatusText(http.StatusBadGateway),
				Header:     http.Header{"Content-Type": {"text/plain; charset=utf-8"}},
				Body:       []byte("bad gateway"),
				StoredAt:   time.Now().UTC(),
			},
			Outcome: OutcomeBypass,
		}
	}
	return Result{Entry: resp, Outcome: OutcomeBypass}
}
