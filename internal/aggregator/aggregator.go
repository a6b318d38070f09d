// Package aggregator assembles a column's full article index from a paged
// remote listing.
//
// GetIndex answers from cache when it can. On a miss it waits only for the
// first page and returns it right away; the remaining pages are fetched
// together in the background, merged, sorted, cached, and delivered once
// through the onRefined callback. A failed page contributes nothing to the
// merge and never aborts the batch.
//
// Callers own de-duplication of concurrent GetIndex calls for the same key.
package aggregator

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"column-indexer/internal/metrics"
	"column-indexer/internal/model"

	"golang.org/x/sync/errgroup"
)

// Fetcher loads one page of a column listing.
type Fetcher interface {
	FetchPage(ctx context.Context, req model.PageRequest) ([]model.ArticleRef, error)
}

// IndexCache is the TTL cache the aggregator reads and writes.
type IndexCache interface {
	Get(ctx context.Context, key string) (model.ArticleIndex, bool)
	Set(ctx context.Context, key string, idx model.ArticleIndex) error
	Remove(ctx context.Context, key string) error
}

// Aggregator implements the cache → first page → background batch flow.
type Aggregator struct {
	fetcher     Fetcher
	cache       IndexCache
	concurrency int
	wg          sync.WaitGroup
}

// Option customizes an Aggregator.
type Option func(*Aggregator)

// WithConcurrency bounds how many remaining pages are in flight at once.
// Zero or less means no bound.
func WithConcurrency(n int) Option {
	return func(a *Aggregator) { a.concurrency = n }
}

// New returns an Aggregator reading pages from f and caching in c.
func New(f Fetcher, c IndexCache, opts ...Option) *Aggregator {
	a := &Aggregator{fetcher: f, cache: c, concurrency: 8}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// GetIndex returns the best index available now for key. When more than one
// page is expected the result is page 1 only, in remote order, and onRefined
// later receives the complete sorted index.
func (a *Aggregator) GetIndex(ctx context.Context, key model.ColumnKey, reportedCount int, onRefined func(model.ArticleIndex)) model.ArticleIndex {
	idx, _ := a.Resolve(ctx, key, reportedCount, onRefined)
	return idx
}

// Resolve is GetIndex that also reports whether onRefined will be called.
func (a *Aggregator) Resolve(ctx context.Context, key model.ColumnKey, reportedCount int, onRefined func(model.ArticleIndex)) (model.ArticleIndex, bool) {
	if idx, ok := a.cache.Get(ctx, key.CacheKey()); ok {
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		return idx, false
	}
	metrics.CacheLookups.WithLabelValues("miss").Inc()

	pages := model.PageCount(reportedCount)
	first, err := a.fetcher.FetchPage(ctx, model.PageRequest{Key: key, Page: 1, PageSize: model.PageSize})
	firstOK := err == nil
	if err != nil {
		slog.Warn("aggregator: first page failed", "column", key.String(), "error", err)
		first = nil
	}

	if pages <= 1 {
		idx := model.SortArticles(first)
		if firstOK {
			a.store(ctx, key, idx)
		}
		return idx, false
	}

	partial := model.ArticleIndex(slices.Clone(first))
	a.wg.Add(1)
	go a.refine(context.WithoutCancel(ctx), key, pages, first, firstOK, onRefined)
	return partial, true
}

// Invalidate drops the cached index for key so the next GetIndex refetches.
func (a *Aggregator) Invalidate(ctx context.Context, key model.ColumnKey) error {
	return a.cache.Remove(ctx, key.CacheKey())
}

// Wait blocks until every background batch started so far has finished.
func (a *Aggregator) Wait() {
	a.wg.Wait()
}

func (a *Aggregator) refine(ctx context.Context, key model.ColumnKey, pages int, first []model.ArticleRef, firstOK bool, onRefined func(model.ArticleIndex)) {
	defer a.wg.Done()
	start := time.Now()

	results := make([][]model.ArticleRef, pages-1)
	succeeded := make([]bool, pages-1)
	var g errgroup.Group
	if a.concurrency > 0 {
		g.SetLimit(a.concurrency)
	}
	for p := 2; p <= pages; p++ {
		g.Go(func() error {
			refs, err := a.fetcher.FetchPage(ctx, model.PageRequest{Key: key, Page: p, PageSize: model.PageSize})
			if err != nil {
				slog.Warn("aggregator: page failed", "column", key.String(), "page", p, "error", err)
				return nil
			}
			results[p-2] = refs
			succeeded[p-2] = true
			return nil
		})
	}
	_ = g.Wait()

	all := make([]model.ArticleRef, 0, len(first)+model.PageSize*(pages-1))
	all = append(all, first...)
	anyOK := firstOK
	for i, refs := range results {
		all = append(all, refs...)
		anyOK = anyOK || succeeded[i]
	}
	idx := model.SortArticles(all)
	if anyOK {
		a.store(ctx, key, idx)
	}
	metrics.Refinements.Inc()
	metrics.RefineSeconds.Observe(time.Since(start).Seconds())
	slog.Info("aggregator: refined column", "column", key.String(), "pages", pages, "articles", len(idx))

	if onRefined != nil {
		onRefined(idx)
	}
}

func (a *Aggregator) store(ctx context.Context, key model.ColumnKey, idx model.ArticleIndex) {
	if err := a.cache.Set(ctx, key.CacheKey(), idx); err != nil {
		slog.Error("aggregator: cache write failed", "column", key.String(), "error", err)
	}
}
