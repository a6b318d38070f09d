package server

import (
	"context"
	"sync"

	"column-indexer/internal/model"

	"golang.org/x/sync/singleflight"
)

// Resolver is the aggregator as the hub sees it.
type Resolver interface {
	Resolve(ctx context.Context, key model.ColumnKey, reportedCount int, onRefined func(model.ArticleIndex)) (model.ArticleIndex, bool)
	Invalidate(ctx context.Context, key model.ColumnKey) error
}

// IndexResult is one answer for a column. Complete is false while a
// background refinement is still running.
type IndexResult struct {
	Articles model.ArticleIndex `json:"articles"`
	Complete bool               `json:"complete"`
}

// Hub collapses concurrent index requests for the same column into one
// aggregator call and fans the refined result out to every caller that saw
// the partial one.
type Hub struct {
	agg      Resolver
	group    singleflight.Group
	mu       sync.Mutex
	refining map[string]*refinement
}

type refinement struct {
	partial   model.ArticleIndex
	ready     bool
	done      bool
	final     model.ArticleIndex
	listeners []func(model.ArticleIndex)
}

type flight struct {
	res IndexResult
	r   *refinement
}

// NewHub returns a Hub in front of agg.
func NewHub(agg Resolver) *Hub {
	return &Hub{agg: agg, refining: map[string]*refinement{}}
}

// Get returns the current index for key. When the result is not complete,
// onRefined (if non-nil) is called once with the refined index.
func (h *Hub) Get(ctx context.Context, key model.ColumnKey, reportedCount int, onRefined func(model.ArticleIndex)) IndexResult {
	k := key.CacheKey()

	h.mu.Lock()
	if r, ok := h.refining[k]; ok && r.ready {
		partial := r.partial
		h.mu.Unlock()
		h.listen(r, onRefined)
		return IndexResult{Articles: partial}
	}
	h.mu.Unlock()

	v, _, _ := h.group.Do(k, func() (any, error) {
		h.mu.Lock()
		if r, ok := h.refining[k]; ok && r.ready {
			h.mu.Unlock()
			return &flight{res: IndexResult{Articles: r.partial}, r: r}, nil
		}
		r := &refinement{}
		h.refining[k] = r
		h.mu.Unlock()

		// Every joined caller shares this result; it is detached from the
		// leader's cancellation.
		idx, pending := h.agg.Resolve(context.WithoutCancel(ctx), key, reportedCount, func(full model.ArticleIndex) {
			h.complete(k, r, full)
		})

		h.mu.Lock()
		if pending {
			r.partial, r.ready = idx, true
		} else if h.refining[k] == r {
			delete(h.refining, k)
		}
		h.mu.Unlock()
		return &flight{res: IndexResult{Articles: idx, Complete: !pending}, r: r}, nil
	})
	f := v.(*flight)
	if !f.res.Complete {
		h.listen(f.r, onRefined)
	}
	return f.res
}

// Invalidate drops the cached index for key.
func (h *Hub) Invalidate(ctx context.Context, key model.ColumnKey) error {
	return h.agg.Invalidate(ctx, key)
}

// Pending reports how many columns are being refined right now.
func (h *Hub) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.refining)
}

func (h *Hub) listen(r *refinement, fn func(model.ArticleIndex)) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	if r.done {
		final := r.final
		h.mu.Unlock()
		fn(final)
		return
	}
	r.listeners = append(r.listeners, fn)
	h.mu.Unlock()
}

func (h *Hub) complete(k string, r *refinement, full model.ArticleIndex) {
	h.mu.Lock()
	r.done, r.final = true, full
	ls := r.listeners
	r.listeners = nil
	if h.refining[k] == r {
		delete(h.refining, k)
	}
	h.mu.Unlock()
	// Listeners run on their own goroutines and never block the batch.
	for _, fn := range ls {
		go fn(full)
	}
}
