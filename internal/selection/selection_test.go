package selection

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-tweetmap/internal/geo"
)

func pointFeature(id string, score, lng, lat float64) *geojson.Feature {
	f := geojson.NewFeature(orb.Point{lng, lat})
	f.Properties["id"] = id
	f.Properties["score"] = score
	return f
}

func TestClickSelectsPoint(t *testing.T) {
	s := NewState("score")
	got, ok := s.Click([]Hit{pointFeature("42", 7.5, 1, 2)})
	if !ok {
		t.Fatal("no selection")
	}
	want := geo.ScoredFeature{ID: "42", Score: 7.5, Location: geo.GeoPoint{Longitude: 1, Latitude: 2}}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	cur, ok := s.Current()
	if !ok || cur != want {
		t.Fatalf("Current=%+v,%v", cur, ok)
	}
}

func TestClickEmptyClears(t *testing.T) {
	s := NewState("score")
	s.Click([]Hit{pointFeature("1", 1, 0, 0)})
	if _, ok := s.Click(nil); ok {
		t.Fatal("empty hit set selected something")
	}
	if _, ok := s.Current(); ok {
		t.Fatal("selection not cleared")
	}
}

func TestClickNonPointClears(t *testing.T) {
	s := NewState("score")
	s.Click([]Hit{pointFeature("1", 1, 0, 0)})

	poly := geojson.NewFeature(orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}})
	poly.Properties["id"] = "poly"
	if _, ok := s.Click([]Hit{poly, pointFeature("2", 2, 0, 0)}); ok {
		t.Fatal("non-point topmost hit selected")
	}
	if _, ok := s.Current(); ok {
		t.Fatal("selection not cleared")
	}
}

func TestClickWithoutPropertiesClears(t *testing.T) {
	s := NewState("score")
	s.Click([]Hit{pointFeature("1", 1, 0, 0)})
	bare := geojson.NewFeature(orb.Point{3, 3})
	if _, ok := s.Click([]Hit{bare}); ok {
		t.Fatal("feature without properties selected")
	}
	if _, ok := s.Click([]Hit{nil}); ok {
		t.Fatal("nil hit selected")
	}
}

func TestFirstHitWins(t *testing.T) {
	s := NewState("score")
	got, _ := s.Click([]Hit{
		pointFeature("top", 1, 0, 0),
		pointFeature("below", 9, 0, 0),
	})
	if got.ID != "top" {
		t.Fatalf("selected %q, want top", got.ID)
	}
}

func TestClickReplaces(t *testing.T) {
	s := NewState("score")
	s.Click([]Hit{pointFeature("a", 1, 0, 0)})
	s.Click([]Hit{pointFeature("b", 2, 5, 5)})
	cur, _ := s.Current()
	if cur.ID != "b" || cur.Score != 2 {
		t.Fatalf("Current=%+v, want b", cur)
	}
	s.Clear()
	if _, ok := s.Current(); ok {
		t.Fatal("Clear left a selection")
	}
}
