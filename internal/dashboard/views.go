package dashboard

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joeblew999/plat-tweetmap/internal/backend"
)

// ErrInvalidView means a view id is not one this server could have issued.
var ErrInvalidView = errors.New("invalid view id")

// Defaults for Views.
const (
	DefaultViewTTL  = 30 * time.Minute
	DefaultMaxViews = 1024
)

// Page holds the view-models of one browser page. Selection, the removal
// dialog and request fencing are all scoped to it.
type Page struct {
	ID     string
	Active *Active
	Query  *QueryView

	lastSeen time.Time // guarded by Views.mu
}

// Views keys pages by the view id each page load is issued. Pages idle
// past the TTL are discarded, and past the cap the least recently used
// page goes first.
type Views struct {
	backend   backend.Backend
	limit     int
	scoreProp string
	ttl       time.Duration
	max       int
	now       func() time.Time

	mu    sync.Mutex
	pages map[string]*Page
}

// ViewOption configures Views.
type ViewOption func(*Views)

// WithViewTTL sets the idle TTL. Zero or negative keeps the default.
func WithViewTTL(d time.Duration) ViewOption {
	return func(v *Views) {
		if d > 0 {
			v.ttl = d
		}
	}
}

// WithMaxViews caps the number of live pages.
func WithMaxViews(n int) ViewOption {
	return func(v *Views) {
		if n > 0 {
			v.max = n
		}
	}
}

// WithViewClock replaces time.Now, for tests.
func WithViewClock(now func() time.Time) ViewOption {
	return func(v *Views) { v.now = now }
}

// NewViews creates an empty page registry over b.
func NewViews(b backend.Backend, limit int, scoreProp string, opts ...ViewOption) *Views {
	v := &Views{
		backend:   b,
		limit:     limit,
		scoreProp: scoreProp,
		ttl:       DefaultViewTTL,
		max:       DefaultMaxViews,
		now:       time.Now,
		pages:     make(map[string]*Page),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// NewID issues a view id for a page load.
func NewID() string {
	return uuid.NewString()
}

// Page returns the page for id, creating it on first use so that open tabs
// survive a restart. Ids must be UUIDs.
func (v *Views) Page(id string) (*Page, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrInvalidView
	}

	now := v.now()
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sweepLocked(now)

	p, ok := v.pages[id]
	if !ok {
		if len(v.pages) >= v.max {
			v.evictOldestLocked()
		}
		p = &Page{
			ID:     id,
			Active: NewActive(v.backend, v.limit, v.scoreProp),
			Query:  NewQueryView(v.backend, v.limit, v.scoreProp),
		}
		v.pages[id] = p
	}
	p.lastSeen = now
	return p, nil
}

// Sweep discards idle pages and returns how many were removed.
func (v *Views) Sweep() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sweepLocked(v.now())
}

// Len returns the number of live pages.
func (v *Views) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.pages)
}

func (v *Views) sweepLocked(now time.Time) int {
	n := 0
	for id, p := range v.pages {
		if now.Sub(p.lastSeen) >= v.ttl {
			delete(v.pages, id)
			n++
		}
	}
	return n
}

func (v *Views) evictOldestLocked() {
	var oldest *Page
	for _, p := range v.pages {
		if oldest == nil || p.lastSeen.Before(oldest.lastSeen) {
			oldest = p
		}
	}
	if oldest != nil {
		delete(v.pages, oldest.ID)
	}
}
