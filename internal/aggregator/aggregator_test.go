package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"column-indexer/internal/model"
	"column-indexer/internal/storage"
	"column-indexer/internal/ttlcache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var key = model.ColumnKey{ColumnID: "42", Owner: "author"}

// pageFetcher serves pages from a map and fails the pages listed in fail.
type pageFetcher struct {
	mu    sync.Mutex
	pages map[int][]model.ArticleRef
	fail  map[int]bool
	calls []int
}

func (f *pageFetcher) FetchPage(_ context.Context, req model.PageRequest) ([]model.ArticleRef, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.Page)
	f.mu.Unlock()
	if req.PageSize != model.PageSize {
		return nil, fmt.Errorf("unexpected page size %d", req.PageSize)
	}
	if f.fail[req.Page] {
		return nil, errors.New("boom")
	}
	return f.pages[req.Page], nil
}

func (f *pageFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// countingCache counts writes on top of a real TTL cache.
type countingCache struct {
	*ttlcache.Cache[model.ArticleIndex]
	sets atomic.Int32
}

func (c *countingCache) Set(ctx context.Context, k string, idx model.ArticleIndex) error {
	c.sets.Add(1)
	return c.Cache.Set(ctx, k, idx)
}

func newCache() *countingCache {
	return &countingCache{Cache: ttlcache.New[model.ArticleIndex](storage.NewMemoryStore())}
}

// makePage builds n refs with ids descending from hi, so pages arrive unsorted.
func makePage(hi, n int) []model.ArticleRef {
	out := make([]model.ArticleRef, n)
	for i := range n {
		id := hi - i
		out[i] = model.ArticleRef{URL: fmt.Sprintf("https://blog.csdn.net/author/article/details/%d", id), Title: fmt.Sprintf("t%d", id)}
	}
	return out
}

func ids(t *testing.T, idx model.ArticleIndex) []int64 {
	t.Helper()
	out := make([]int64, len(idx))
	for i, a := range idx {
		id, ok := model.ArticleID(a.URL)
		require.True(t, ok)
		out[i] = id
	}
	return out
}

func refinedChan() (chan model.ArticleIndex, func(model.ArticleIndex)) {
	ch := make(chan model.ArticleIndex, 2)
	return ch, func(idx model.ArticleIndex) { ch <- idx }
}

func waitRefined(t *testing.T, ch chan model.ArticleIndex) model.ArticleIndex {
	t.Helper()
	select {
	case idx := <-ch:
		return idx
	case <-time.After(5 * time.Second):
		t.Fatal("refinement never arrived")
		return nil
	}
}

func TestSinglePageCachesImmediately(t *testing.T) {
	f := &pageFetcher{pages: map[int][]model.ArticleRef{1: makePage(50, 3)}}
	c := newCache()
	a := New(f, c)

	called := false
	idx := a.GetIndex(context.Background(), key, 3, func(model.ArticleIndex) { called = true })
	a.Wait()

	assert.Equal(t, []int64{48, 49, 50}, ids(t, idx))
	assert.Equal(t, 1, f.callCount())
	assert.Equal(t, int32(1), c.sets.Load())
	assert.False(t, called)

	cached, ok := c.Get(context.Background(), key.CacheKey())
	require.True(t, ok)
	assert.Equal(t, idx, cached)
}

func TestCachedKeyIssuesNoCalls(t *testing.T) {
	f := &pageFetcher{pages: map[int][]model.ArticleRef{1: makePage(10, 2)}}
	c := newCache()
	a := New(f, c)

	first := a.GetIndex(context.Background(), key, 2, nil)
	require.Equal(t, 1, f.callCount())

	again := a.GetIndex(context.Background(), key, 2, nil)
	assert.Equal(t, 1, f.callCount())
	assert.Equal(t, first, again)
}

func TestMultiPageRefinement(t *testing.T) {
	f := &pageFetcher{pages: map[int][]model.ArticleRef{
		1: makePage(300, 100),
		2: makePage(200, 100),
		3: makePage(100, 50),
	}}
	c := newCache()
	a := New(f, c, WithConcurrency(2))

	ch, onRefined := refinedChan()
	partial := a.GetIndex(context.Background(), key, 250, onRefined)
	assert.Len(t, partial, 100)
	assert.Equal(t, int64(300), ids(t, partial)[0], "partial keeps remote order")

	refined := waitRefined(t, ch)
	a.Wait()

	require.Len(t, refined, 250)
	got := ids(t, refined)
	for i := 1; i < len(got); i++ {
		assert.Less(t, got[i-1], got[i])
	}
	assert.Equal(t, 3, f.callCount())
	assert.Equal(t, int32(1), c.sets.Load())
	assert.Empty(t, ch, "onRefined fires once")

	cached, ok := c.Get(context.Background(), key.CacheKey())
	require.True(t, ok)
	assert.Equal(t, refined, cached)
}

func TestPartialFailure(t *testing.T) {
	pages := map[int][]model.ArticleRef{}
	for p := 1; p <= 5; p++ {
		pages[p] = makePage(p*1000, 10)
	}
	f := &pageFetcher{pages: pages, fail: map[int]bool{3: true}}
	c := newCache()
	a := New(f, c)

	ch, onRefined := refinedChan()
	a.GetIndex(context.Background(), key, 450, onRefined)
	refined := waitRefined(t, ch)
	a.Wait()

	assert.Len(t, refined, 40)
	for _, id := range ids(t, refined) {
		assert.False(t, id > 2000 && id <= 3000, "page 3 ids must be absent, got %d", id)
	}
	assert.Equal(t, int32(1), c.sets.Load())
}

func TestFirstPageFailureStillRefines(t *testing.T) {
	f := &pageFetcher{
		pages: map[int][]model.ArticleRef{2: makePage(20, 5)},
		fail:  map[int]bool{1: true},
	}
	c := newCache()
	a := New(f, c)

	ch, onRefined := refinedChan()
	partial := a.GetIndex(context.Background(), key, 150, onRefined)
	assert.Empty(t, partial)

	refined := waitRefined(t, ch)
	a.Wait()
	assert.Equal(t, []int64{16, 17, 18, 19, 20}, ids(t, refined))
	assert.Equal(t, int32(1), c.sets.Load())
}

func TestAllPagesFailNoCacheWrite(t *testing.T) {
	f := &pageFetcher{fail: map[int]bool{1: true, 2: true}}
	c := newCache()
	a := New(f, c)

	ch, onRefined := refinedChan()
	a.GetIndex(context.Background(), key, 200, onRefined)
	refined := waitRefined(t, ch)
	a.Wait()

	assert.Empty(t, refined)
	assert.Equal(t, int32(0), c.sets.Load())
}

func TestSinglePageFailureNoCacheWrite(t *testing.T) {
	f := &pageFetcher{fail: map[int]bool{1: true}}
	c := newCache()
	a := New(f, c)

	idx := a.GetIndex(context.Background(), key, 10, nil)
	assert.Empty(t, idx)
	assert.Equal(t, int32(0), c.sets.Load())
}

func TestOvercountedPagesAreHarmless(t *testing.T) {
	f := &pageFetcher{pages: map[int][]model.ArticleRef{1: makePage(5, 5)}}
	c := newCache()
	a := New(f, c)

	ch, onRefined := refinedChan()
	a.GetIndex(context.Background(), key, 300, onRefined)
	refined := waitRefined(t, ch)
	a.Wait()

	assert.Len(t, refined, 5)
	assert.Equal(t, 3, f.callCount())
}

func TestBackgroundSurvivesCallerCancel(t *testing.T) {
	f := &pageFetcher{pages: map[int][]model.ArticleRef{1: makePage(2, 1), 2: makePage(1, 1)}}
	c := newCache()
	a := New(f, c)

	ctx, cancel := context.WithCancel(context.Background())
	ch, onRefined := refinedChan()
	a.GetIndex(ctx, key, 101, onRefined)
	cancel()

	refined := waitRefined(t, ch)
	a.Wait()
	assert.Equal(t, []int64{1, 2}, ids(t, refined))
}

func TestInvalidateForcesRefetch(t *testing.T) {
	f := &pageFetcher{pages: map[int][]model.ArticleRef{1: makePage(3, 3)}}
	c := newCache()
	a := New(f, c)

	a.GetIndex(context.Background(), key, 3, nil)
	require.NoError(t, a.Invalidate(context.Background(), key))
	a.GetIndex(context.Background(), key, 3, nil)
	assert.Equal(t, 2, f.callCount())
	assert.Equal(t, int32(2), c.sets.Load())
}

func TestResolveReportsPending(t *testing.T) {
	f := &pageFetcher{pages: map[int][]model.ArticleRef{1: makePage(2, 1), 2: makePage(1, 1)}}
	a := New(f, newCache())

	ch, onRefined := refinedChan()
	_, pending := a.Resolve(context.Background(), key, 101, onRefined)
	assert.True(t, pending)
	waitRefined(t, ch)
	a.Wait()

	_, pending = a.Resolve(context.Background(), key, 101, onRefined)
	assert.False(t, pending, "cache hit has nothing to refine")
}
