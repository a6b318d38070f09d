package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"column-indexer/internal/model"
	"column-indexer/internal/storage"

	"github.com/spf13/cobra"
)

var cacheFormat string

// cacheCmd groups cache-related subcommands.
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Cache utilities",
}

// cachePingCmd checks that the configured backend accepts a write and a read.
var cachePingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Round-trip a probe key through the cache backend and print PONG",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()

		store, err := storage.Open(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		const probe = "ping:probe"
		if err := store.Set(ctx, probe, []byte("PONG")); err != nil {
			return err
		}
		v, err := store.Get(ctx, probe)
		if err != nil {
			return err
		}
		if err := store.Delete(ctx, probe); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", v, cfg.Cache.Backend)
		return nil
	},
}

// cacheShowCmd prints a cached column index without touching the network.
var cacheShowCmd = &cobra.Command{
	Use:   "show <owner> <column>",
	Short: "Print the cached index of a column",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ix, err := newIndexer(cmd.Context(), GetConfig())
		if err != nil {
			return err
		}
		defer ix.Close()

		key := model.ColumnKey{Owner: args[0], ColumnID: args[1]}
		idx, ok := ix.cache.Get(cmd.Context(), key.CacheKey())
		if !ok {
			return fmt.Errorf("%s is not cached or has expired", key)
		}
		return render(cmd.OutOrStdout(), cacheFormat, idx, func(w io.Writer) error {
			for i, a := range idx {
				if _, err := fmt.Fprintf(w, "%3d. %s  %s\n", i+1, a.Title, a.URL); err != nil {
					return err
				}
			}
			return nil
		})
	},
}

// cachePurgeCmd drops cached column indexes so the next lookup refetches.
var cachePurgeCmd = &cobra.Command{
	Use:   "purge <owner> <column>...",
	Short: "Remove cached column indexes",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ix, err := newIndexer(cmd.Context(), GetConfig())
		if err != nil {
			return err
		}
		defer ix.Close()

		owner := args[0]
		for _, col := range args[1:] {
			key := model.ColumnKey{Owner: owner, ColumnID: col}
			if err := ix.agg.Invalidate(cmd.Context(), key); err != nil {
				return fmt.Errorf("purge %s: %w", key, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %s\n", key)
		}
		return nil
	},
}

func init() {
	cacheShowCmd.Flags().StringVarP(&cacheFormat, "format", "o", "text", "output format: text, json or yaml")
	cacheCmd.AddCommand(cachePingCmd, cacheShowCmd, cachePurgeCmd)
	rootCmd.AddCommand(cacheCmd)
}
