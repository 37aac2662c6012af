package ratelimit

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/dittox/eventgw/internal/logging"
	"github.com/dittox/eventgw/internal/metrics"
)

// Middleware rejects requests with 429 once the client IP has used up its
// bucket. It expects r.RemoteAddr to already hold the real client address
// (chi's middleware.RealIP does that).
func Middleware(store *Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !store.Allow(ip) {
				metrics.RateLimitRejections.Inc()
				logging.FromContext(r.Context()).Warn().Str("ip", ip).Str("path", r.URL.Path).Msg("rate limit exceeded")
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RunJanitor calls Prune every interval until ctx is done.
func (s *Store) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Prune(); n > 0 {
				logging.Logger.Debug().Int("removed", n).Msg("pruned idle rate limiters")
			}
		}
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
