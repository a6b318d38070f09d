package spy

import (
	"sync"
	"testing"

	"column-indexer/internal/model"
	"column-indexer/internal/outline"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var headings = []model.HeadingRecord{
	{ID: "intro", Title: "Intro", Level: 1},
	{ID: "setup", Title: "Setup", Level: 2},
	{ID: "deps", Title: "Deps", Level: 3},
	{ID: "usage", Title: "Usage", Level: 1},
}

var vp = Viewport{Height: 1000}

func attach(opts ...Option) *Spy {
	return Attach(headings, outline.Build(headings), opts...)
}

func TestObserveBand(t *testing.T) {
	s := attach()
	defer s.Detach()

	// below the upper fifth: not active
	_, changed := s.Observe(vp, []Position{{ID: "intro", Top: 450}})
	assert.False(t, changed)
	assert.Equal(t, "", s.Active())

	ev, changed := s.Observe(vp, []Position{{ID: "intro", Top: 120}})
	require.True(t, changed)
	assert.Equal(t, ActiveEvent{ID: "intro", Path: []string{"intro"}}, ev)

	// band end is exclusive
	_, changed = s.Observe(vp, []Position{{ID: "setup", Top: 200}})
	assert.False(t, changed)

	// above the viewport top is outside the band
	_, changed = s.Observe(vp, []Position{{ID: "setup", Top: -5}})
	assert.False(t, changed)
	assert.Equal(t, "intro", s.Active())
}

func TestLastIntersectingWins(t *testing.T) {
	s := attach()
	defer s.Detach()

	ev, changed := s.Observe(vp, []Position{
		{ID: "setup", Top: 10},
		{ID: "deps", Top: 150},
		{ID: "usage", Top: 900},
	})
	require.True(t, changed)
	assert.Equal(t, "deps", ev.ID)
	assert.Equal(t, []string{"intro", "setup", "deps"}, ev.Path)
	assert.Equal(t, "deps", s.Active())
}

func TestNoRepeatEventForSameHeading(t *testing.T) {
	s := attach()
	defer s.Detach()

	s.Observe(vp, []Position{{ID: "usage", Top: 0}})
	_, changed := s.Observe(vp, []Position{{ID: "usage", Top: 50}})
	assert.False(t, changed)
	assert.Len(t, s.Events(), 1)
}

func TestUnknownIDsIgnored(t *testing.T) {
	s := attach()
	defer s.Detach()

	_, changed := s.Observe(vp, []Position{{ID: "ghost", Top: 10}})
	assert.False(t, changed)
	assert.Equal(t, "", s.Active())
}

func TestCustomMargins(t *testing.T) {
	s := attach(WithMargins(Margins{Top: 0.5, Bottom: 0}))
	defer s.Detach()

	_, changed := s.Observe(vp, []Position{{ID: "intro", Top: 100}})
	assert.False(t, changed)
	_, changed = s.Observe(vp, []Position{{ID: "intro", Top: 700}})
	assert.True(t, changed)
}

func TestEventsDropOldest(t *testing.T) {
	s := attach(WithBuffer(2))
	s.Observe(vp, []Position{{ID: "intro", Top: 0}})
	s.Observe(vp, []Position{{ID: "setup", Top: 0}})
	s.Observe(vp, []Position{{ID: "deps", Top: 0}})
	s.Detach()

	var got []string
	for ev := range s.Events() {
		got = append(got, ev.ID)
	}
	assert.Equal(t, []string{"setup", "deps"}, got)
}

func TestDetach(t *testing.T) {
	s := attach()
	s.Detach()
	s.Detach()

	_, changed := s.Observe(vp, []Position{{ID: "intro", Top: 0}})
	assert.False(t, changed)
	_, open := <-s.Events()
	assert.False(t, open)
}

func TestConcurrentObserve(t *testing.T) {
	s := attach(WithBuffer(1))
	defer s.Detach()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := headings[i%len(headings)].ID
			s.Observe(vp, []Position{{ID: id, Top: 1}})
		}()
	}
	wg.Wait()
	assert.Contains(t, []string{"intro", "setup", "deps", "usage"}, s.Active())
}
