package cmd

import (
	"context"
	"fmt"

	"column-indexer/internal/aggregator"
	"column-indexer/internal/config"
	"column-indexer/internal/csdn"
	"column-indexer/internal/model"
	"column-indexer/internal/storage"
	"column-indexer/internal/ttlcache"
)

// indexer bundles the pieces every index-producing command needs.
type indexer struct {
	store  storage.Store
	client *csdn.Client
	cache  *ttlcache.Cache[model.ArticleIndex]
	agg    *aggregator.Aggregator
}

func newIndexer(ctx context.Context, cfg config.Config) (*indexer, error) {
	store, err := storage.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s cache: %w", cfg.Cache.Backend, err)
	}
	client := newSourceClient(cfg)
	cache := ttlcache.New[model.ArticleIndex](store, ttlcache.WithTTL(cfg.CacheTTL()))
	return &indexer{
		store:  store,
		client: client,
		cache:  cache,
		agg:    aggregator.New(client, cache, aggregator.WithConcurrency(cfg.Source.Concurrency)),
	}, nil
}

// Close waits for background refinements so their cache writes land, then
// closes the store.
func (ix *indexer) Close() error {
	ix.agg.Wait()
	return ix.store.Close()
}

func newSourceClient(cfg config.Config) *csdn.Client {
	return csdn.NewClient(csdn.Options{
		BaseURL:       cfg.Source.BaseURL,
		Mode:          cfg.Source.Mode,
		UserAgent:     cfg.Source.UserAgent,
		Timeout:       cfg.SourceTimeout(),
		RetryMax:      cfg.Source.RetryMax,
		RatePerSecond: cfg.Source.RatePerSecond,
	})
}
