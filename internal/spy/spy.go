// Package spy tracks which heading of an article is currently being read.
//
// The host reports heading positions relative to the viewport in batches. A
// heading intersects when its top edge falls inside the active band, which
// by default is the upper fifth of the viewport. Within a batch the last
// intersecting heading wins; a batch with no intersecting heading keeps the
// previous active id.
package spy

import (
	"sync"

	"column-indexer/internal/model"
	"column-indexer/internal/outline"
)

// Margins shrink the viewport to the active band, as fractions of its height.
type Margins struct {
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
}

// DefaultMargins keep the band to the top 20% of the viewport.
var DefaultMargins = Margins{Top: 0, Bottom: 0.8}

// Viewport is the visible area at observation time.
type Viewport struct {
	Height float64 `json:"height"`
}

// Position is a heading's top edge in pixels from the top of the viewport.
type Position struct {
	ID  string  `json:"id"`
	Top float64 `json:"top"`
}

// ActiveEvent announces a new active heading and the ids leading to it.
type ActiveEvent struct {
	ID   string   `json:"id"`
	Path []string `json:"path"`
}

// Spy is attached to one heading sequence.
type Spy struct {
	mu       sync.Mutex
	known    map[string]struct{}
	forest   outline.Forest
	margins  Margins
	active   string
	events   chan ActiveEvent
	detached bool
}

// Option customizes a Spy.
type Option func(*Spy)

// WithMargins replaces DefaultMargins.
func WithMargins(m Margins) Option {
	return func(s *Spy) { s.margins = m }
}

// WithBuffer sets how many undelivered events are kept before the oldest is dropped.
func WithBuffer(n int) Option {
	return func(s *Spy) {
		if n > 0 {
			s.events = make(chan ActiveEvent, n)
		}
	}
}

// Attach starts tracking headings. forest is used to report ancestor paths
// and may be nil.
func Attach(headings []model.HeadingRecord, forest outline.Forest, opts ...Option) *Spy {
	s := &Spy{
		known:   make(map[string]struct{}, len(headings)),
		forest:  forest,
		margins: DefaultMargins,
		events:  make(chan ActiveEvent, 16),
	}
	for _, h := range headings {
		s.known[h.ID] = struct{}{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Observe applies one batch of positions. It reports the event emitted, if
// the active heading changed.
func (s *Spy) Observe(vp Viewport, batch []Position) (ActiveEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.detached || vp.Height <= 0 {
		return ActiveEvent{}, false
	}
	top := vp.Height * s.margins.Top
	bottom := vp.Height * (1 - s.margins.Bottom)

	winner := ""
	for _, p := range batch {
		if _, ok := s.known[p.ID]; !ok {
			continue
		}
		if p.Top >= top && p.Top < bottom {
			winner = p.ID
		}
	}
	if winner == "" || winner == s.active {
		return ActiveEvent{}, false
	}
	s.active = winner
	ev := ActiveEvent{ID: winner, Path: s.forest.Path(winner)}
	s.publish(ev)
	return ev, true
}

// publish delivers ev without blocking, dropping the oldest pending event
// when the buffer is full. Caller holds s.mu.
func (s *Spy) publish(ev ActiveEvent) {
	select {
	case s.events <- ev:
		return
	default:
	}
	select {
	case <-s.events:
	default:
	}
	select {
	case s.events <- ev:
	default:
	}
}

// Active returns the current active heading id, or "".
func (s *Spy) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Events streams active-heading changes. The channel closes on Detach.
func (s *Spy) Events() <-chan ActiveEvent {
	return s.events
}

// Detach stops tracking and closes the event channel. It is safe to call twice.
func (s *Spy) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.detached {
		return
	}
	s.detached = true
	s.known = nil
	close(s.events)
}
