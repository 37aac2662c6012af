// Package eventgw is a backend-for-frontend for an event schedule app.
//
// The Gateway serves the aggregated CMS document at /api/all-data, the
// single-page app shell for every other path, and health and metrics
// endpoints. The companion edge cache manager lives in internal/offline and
// is started with the edge command.
//
// Configuration is loaded from a YAML or JSON file using [LoadConfig] and
// overlaid from the environment by [Load].
package eventgw

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dittox/eventgw/internal/aggregate"
	"github.com/dittox/eventgw/internal/logging"
	"github.com/dittox/eventgw/internal/metrics"
	"github.com/dittox/eventgw/internal/ratelimit"
)

// DataSource produces the aggregated document.
type DataSource interface {
	AllData(ctx context.Context) (*aggregate.Document, error)
}

// Gateway is the HTTP surface of the app.
type Gateway struct {
	config  Config
	data    DataSource
	static  http.Handler
	limiter *ratelimit.Store
}

// New creates a Gateway. static answers every path not routed elsewhere.
func New(cfg Config, data DataSource, static http.Handler) *Gateway {
	g := &Gateway{config: cfg, data: data, static: static}
	if cfg.RateLimit.Enabled {
		g.limiter = ratelimit.NewStore(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	}
	return g
}

// RunJanitor prunes idle rate limiters until ctx is done.
func (g *Gateway) RunJanitor(ctx context.Context) {
	if g.limiter == nil {
		return
	}
	g.limiter.RunJanitor(ctx, time.Minute)
}

// Handler builds the HTTP router.
func (g *Gateway) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(logging.Middleware)
	r.Use(countRequests)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		if g.limiter != nil {
			r.Use(ratelimit.Middleware(g.limiter))
		}
		r.With(corsMiddleware).Get("/all-data", g.allData)
		r.With(corsMiddleware).Get("/all-data/", g.allData)
		r.With(corsMiddleware).Options("/all-data", g.allData)
		r.With(corsMiddleware).Options("/all-data/", g.allData)
		r.NotFound(g.static.ServeHTTP)
		r.MethodNotAllowed(g.static.ServeHTTP)
	})

	r.NotFound(g.static.ServeHTTP)
	r.MethodNotAllowed(g.static.ServeHTTP)
	return r
}

func (g *Gateway) allData(w http.ResponseWriter, r *http.Request) {
	doc, err := g.data.AllData(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error().Err(err).Msg("all-data failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// countRequests records RequestsTotal by matched route pattern.
func countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "static"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" && p != "/*" && p != "/api/*" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	})
}
