package main

import (
	"errors"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	eventgw "github.com/dittox/eventgw"
	"github.com/dittox/eventgw/internal/aggregate"
	"github.com/dittox/eventgw/internal/logging"
	"github.com/dittox/eventgw/internal/static"
	"github.com/dittox/eventgw/internal/version"
	"github.com/dittox/eventgw/internal/webflow"
	"github.com/dittox/eventgw/web"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the app shell and the aggregated /api/all-data document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := eventgw.Load(path)
			if err != nil {
				return err
			}

			gw, err := buildGateway(*cfg)
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			go gw.RunJanitor(ctx)

			logging.Logger.Info().
				Str("version", version.Short()).
				Int("port", cfg.Server.Port).
				Str("site", cfg.Webflow.SiteID).
				Msg("eventgw listening")
			return listen(ctx, newServer(cfg.Server.Port, gw.Handler()))
		},
	}
}

func buildGateway(cfg eventgw.Config) (*eventgw.Gateway, error) {
	if cfg.Webflow.APIToken == "" {
		return nil, errors.New("WEBFLOW_API_TOKEN not configured")
	}
	client, err := webflow.New(cfg.Webflow.APIToken,
		webflow.WithBaseURL(cfg.Webflow.BaseURL),
		webflow.WithTimeout(cfg.WebflowTimeout()),
	)
	if err != nil {
		return nil, err
	}
	agg := aggregate.New(client, cfg.AggregateOptions())
	return eventgw.New(cfg, agg, static.New(publicFiles(cfg.Server.PublicDir))), nil
}

func publicFiles(dir string) fs.FS {
	if dir == "" {
		return web.Public()
	}
	return os.DirFS(dir)
}
