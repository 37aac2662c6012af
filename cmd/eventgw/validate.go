package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	eventgw "github.com/dittox/eventgw"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a configuration file (JSON/YAML)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := eventgw.LoadConfig(args[0])
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if err := eventgw.ValidateConfig(*cfg); err != nil {
				return fmt.Errorf("validation error: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "✓ Config is valid")
			fmt.Fprintf(out, "  Site:      %s\n", cfg.Webflow.SiteID)
			fmt.Fprintf(out, "  Events:    stages=%s schedule=%s\n", cfg.Event.StageEvent, cfg.Event.ScheduleEvent)
			fmt.Fprintf(out, "  Caches:    %s, %s, %s\n", cfg.Offline.StaticCache, cfg.Offline.APICache, cfg.Offline.ImageCache)
			fmt.Fprintf(out, "  Precache:  %d url(s)\n", len(cfg.Offline.Precache))
			fmt.Fprintf(out, "  Storage:   %s\n", cfg.Offline.Storage.Driver)
			if len(cfg.Webflow.Collections) > 0 {
				pinned := make([]string, 0, len(cfg.Webflow.Collections))
				for k, id := range cfg.Webflow.Collections {
					pinned = append(pinned, k+"="+id)
				}
				sort.Strings(pinned)
				fmt.Fprintf(out, "  Pinned:    %s\n", strings.Join(pinned, ", "))
			}
			return nil
		},
	}
}
