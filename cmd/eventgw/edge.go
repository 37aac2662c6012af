package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	eventgw "github.com/dittox/eventgw"
	"github.com/dittox/eventgw/internal/cache"
	"github.com/dittox/eventgw/internal/logging"
	"github.com/dittox/eventgw/internal/offline"
)

func newEdgeCmd() *cobra.Command {
	var retry time.Duration
	cmd := &cobra.Command{
		Use:   "edge",
		Short: "Run the offline cache manager in front of the app origin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := eventgw.Load(path)
			if err != nil {
				return err
			}
			oc, err := cfg.EdgeConfig()
			if err != nil {
				return err
			}

			storage, err := openStorage(cfg.Offline.Storage)
			if err != nil {
				return err
			}
			defer func() { _ = storage.Close() }()

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			fetcher := offline.NewHTTPFetcher(cfg.FetchTimeout())
			reg := offline.NewRegistration(storage, fetcher.Fetch)
			go reg.Run(ctx)
			go func() {
				if _, err := reg.RegisterWithRetry(ctx, oc, retry); err != nil && ctx.Err() == nil {
					logging.Logger.Error().Err(err).Msg("edge cache registration failed")
				}
			}()

			logging.Logger.Info().
				Int("port", cfg.Offline.Port).
				Str("origin", oc.Origin.String()).
				Str("storage", cfg.Offline.Storage.Driver).
				Strs("caches", oc.VersionSet()).
				Msg("edge cache listening")
			return listen(ctx, newServer(cfg.Offline.Port, edgeHandler(reg, oc)))
		},
	}
	cmd.Flags().DurationVar(&retry, "install-retry", 10*time.Second, "delay between failed installs")
	return cmd
}

func edgeHandler(reg *offline.Registration, oc offline.Config) http.Handler {
	var h http.Handler = offline.NewHandler(reg, oc.Origin)
	h = logging.Middleware(h)
	h = middleware.Recoverer(h)
	return middleware.RealIP(h)
}

func openStorage(sc eventgw.StorageConfig) (cache.Storage, error) {
	switch sc.Driver {
	case eventgw.DriverMemory, "":
		return cache.NewMemory(sc.MaxEntries), nil
	case eventgw.DriverLevelDB:
		s, err := cache.NewLevelDB(sc.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case eventgw.DriverSQLite, eventgw.DriverPostgres:
		open := cache.NewSQLiteStorage
		if sc.Driver == eventgw.DriverPostgres {
			open = cache.NewPostgresStorage
		}
		s, err := open(sc.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown offline storage driver %q", sc.Driver)
	}
}
