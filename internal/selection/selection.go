// Package selection resolves renderer hit-test results into the single
// selected feature shown in the map popup.
package selection

import (
	"sync"

	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-tweetmap/internal/geo"
)

// Hit is one feature returned by the renderer's hit test, in renderer
// order (topmost first).
type Hit = *geojson.Feature

// Resolve picks the first hit. Absent hits, non-point geometry and
// features without properties resolve to no selection.
func Resolve(hits []Hit, scoreProp string) (geo.ScoredFeature, bool) {
	if len(hits) == 0 {
		return geo.ScoredFeature{}, false
	}
	return geo.FeatureFromGeoJSON(hits[0], scoreProp)
}

// State holds at most one selected feature.
type State struct {
	mu        sync.RWMutex
	scoreProp string
	current   *geo.ScoredFeature
}

// NewState returns an empty selection that reads scores from scoreProp.
func NewState(scoreProp string) *State {
	return &State{scoreProp: scoreProp}
}

// Click replaces the selection with the resolution of hits and returns
// the new selection.
func (s *State) Click(hits []Hit) (geo.ScoredFeature, bool) {
	f, ok := Resolve(hits, s.scoreProp)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !ok {
		s.current = nil
		return geo.ScoredFeature{}, false
	}
	s.current = &f
	return f, true
}

// Clear drops any selection.
func (s *State) Clear() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
}

// Current returns the selected feature, if any.
func (s *State) Current() (geo.ScoredFeature, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return geo.ScoredFeature{}, false
	}
	return *s.current, true
}
