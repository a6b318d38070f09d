package cmd

import (
	"context"
	"log/slog"

	"column-indexer/internal/config"
	"column-indexer/internal/server"
	"column-indexer/worker"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP/WebSocket service and the cache warmer",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		ctx := cmd.Context()

		ix, err := newIndexer(ctx, cfg)
		if err != nil {
			return err
		}
		defer ix.Close()
		slog.Info("serve: cache ready", "backend", cfg.Cache.Backend, "ttl", ix.cache.TTL())

		hub := server.NewHub(ix.agg)
		srv := server.New(hub, cfg.Server.Addr)
		warmer := worker.NewWarmer(hub, cfg.WarmInterval(), cfg.Warm.Columns)
		if cols := warmer.Columns(); len(cols) > 0 {
			slog.Info("serve: warming columns", "columns", len(cols), "interval", warmer.Interval)
		}

		// Pick up warm list edits without a restart.
		if viper.ConfigFileUsed() != "" {
			viper.OnConfigChange(func(e fsnotify.Event) {
				var next config.Config
				if err := viper.Unmarshal(&next); err != nil {
					slog.Error("serve: reload config failed", "file", e.Name, "error", err)
					return
				}
				next.FillDefaults()
				warmer.SetColumns(next.Warm.Columns)
				slog.Info("serve: config reloaded", "file", e.Name, "warm_columns", len(warmer.Columns()))
			})
			viper.WatchConfig()
		}

		mgr := worker.NewManager(srv, warmer)

		err = mgr.Start(ctx)
		if ctx.Err() != nil {
			slog.Info("serve: shutting down", "cause", context.Cause(ctx))
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
