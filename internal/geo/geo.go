// Package geo holds the map data model: points, scored features and
// feature collections, plus their GeoJSON representation.
package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// ErrOutOfRange is returned when a coordinate is outside the WGS84 bounds.
var ErrOutOfRange = errors.New("coordinate out of range")

// GeoPoint is an immutable longitude/latitude pair in degrees.
type GeoPoint struct {
	Longitude float64 `json:"longitude" minimum:"-180" maximum:"180" doc:"Longitude in degrees" example:"-122.4"`
	Latitude  float64 `json:"latitude" minimum:"-90" maximum:"90" doc:"Latitude in degrees" example:"37.8"`
}

// NewGeoPoint validates lng/lat and returns the point.
func NewGeoPoint(lng, lat float64) (GeoPoint, error) {
	p := GeoPoint{Longitude: lng, Latitude: lat}
	if err := p.Validate(); err != nil {
		return GeoPoint{}, err
	}
	return p, nil
}

// Validate reports whether the point satisfies the coordinate bounds.
func (p GeoPoint) Validate() error {
	if math.IsNaN(p.Longitude) || p.Longitude < -180 || p.Longitude > 180 {
		return fmt.Errorf("longitude %v: %w", p.Longitude, ErrOutOfRange)
	}
	if math.IsNaN(p.Latitude) || p.Latitude < -90 || p.Latitude > 90 {
		return fmt.Errorf("latitude %v: %w", p.Latitude, ErrOutOfRange)
	}
	return nil
}

// Normalize wraps the longitude into [-180,180] and clamps the latitude
// into [-90,90]. Map renderers report drag positions past the antimeridian
// as longitudes beyond ±180.
func Normalize(lng, lat float64) GeoPoint {
	if math.IsNaN(lng) || math.IsInf(lng, 0) {
		lng = 0
	}
	if math.IsNaN(lat) {
		lat = 0
	}
	if lng < -180 || lng > 180 {
		lng = math.Mod(lng+180, 360)
		if lng < 0 {
			lng += 360
		}
		lng -= 180
	}
	return GeoPoint{
		Longitude: lng,
		Latitude:  math.Max(-90, math.Min(90, lat)),
	}
}

// Point returns the orb representation of p.
func (p GeoPoint) Point() orb.Point {
	return orb.Point{p.Longitude, p.Latitude}
}

// FromPoint converts an orb point without validation.
func FromPoint(pt orb.Point) GeoPoint {
	return GeoPoint{Longitude: pt.Lon(), Latitude: pt.Lat()}
}

// ScoredFeature is a single geo-located data point with a score.
type ScoredFeature struct {
	ID       string   `json:"id" doc:"Feature identifier" example:"1523861436456"`
	Location GeoPoint `json:"location" doc:"Feature position"`
	Score    float64  `json:"score" minimum:"0" doc:"Interaction/relevance score" example:"7.5"`
}

// FeatureCollection is an ordered sequence of scored features.
// Duplicate ids are tolerated.
type FeatureCollection []ScoredFeature

// Lookup returns the last feature with the given id.
func (fc FeatureCollection) Lookup(id string) (ScoredFeature, bool) {
	for i := len(fc) - 1; i >= 0; i-- {
		if fc[i].ID == id {
			return fc[i], true
		}
	}
	return ScoredFeature{}, false
}

// Bound returns the bounding box of all features, or false when empty.
func (fc FeatureCollection) Bound() (orb.Bound, bool) {
	if len(fc) == 0 {
		return orb.Bound{}, false
	}
	b := fc[0].Location.Point().Bound()
	for _, f := range fc[1:] {
		b = b.Extend(f.Location.Point())
	}
	return b, true
}
