package geo

import (
	"fmt"
	"math"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// DefaultScoreProperty is the GeoJSON property read as the feature score.
const DefaultScoreProperty = "score"

// FeatureFromGeoJSON builds a ScoredFeature from a GeoJSON point feature.
// It returns false for nil features, non-point geometry, or features that
// carry no properties. Coordinates go through Normalize; a negative or
// non-finite score reads as 0.
func FeatureFromGeoJSON(f *geojson.Feature, scoreProp string) (ScoredFeature, bool) {
	if f == nil || len(f.Properties) == 0 {
		return ScoredFeature{}, false
	}
	pt, ok := f.Geometry.(orb.Point)
	if !ok {
		return ScoredFeature{}, false
	}
	if scoreProp == "" {
		scoreProp = DefaultScoreProperty
	}

	score := toFloat(f.Properties[scoreProp])
	if score < 0 || math.IsNaN(score) || math.IsInf(score, 0) {
		score = 0
	}
	return ScoredFeature{
		ID:       featureID(f),
		Location: Normalize(pt.Lon(), pt.Lat()),
		Score:    score,
	}, true
}

// FromGeoJSON decodes every usable point feature of fc, preserving order.
func FromGeoJSON(fc *geojson.FeatureCollection, scoreProp string) FeatureCollection {
	if fc == nil {
		return nil
	}
	out := make(FeatureCollection, 0, len(fc.Features))
	for _, f := range fc.Features {
		if sf, ok := FeatureFromGeoJSON(f, scoreProp); ok {
			out = append(out, sf)
		}
	}
	return out
}

// ParseFeatureCollection unmarshals raw GeoJSON and decodes its features.
func ParseFeatureCollection(data []byte, scoreProp string) (FeatureCollection, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse feature collection: %w", err)
	}
	return FromGeoJSON(fc, scoreProp), nil
}

// ToGeoJSON renders the collection as GeoJSON with id and score properties.
func (fc FeatureCollection) ToGeoJSON() *geojson.FeatureCollection {
	out := geojson.NewFeatureCollection()
	for _, sf := range fc {
		f := geojson.NewFeature(sf.Location.Point())
		f.ID = sf.ID
		f.Properties["id"] = sf.ID
		f.Properties[DefaultScoreProperty] = sf.Score
		out.Append(f)
	}
	return out
}

// featureID prefers the "id" property, then the feature's top-level id.
func featureID(f *geojson.Feature) string {
	if v, ok := f.Properties["id"]; ok && v != nil {
		return toString(v)
	}
	if f.ID != nil {
		return toString(f.ID)
	}
	return ""
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprint(t)
	}
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
